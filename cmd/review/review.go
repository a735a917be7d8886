// Package review implements the administrator review commands.
package review

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/adilrumy05/SmartPlant-Backend/internal/conf"
	"github.com/adilrumy05/SmartPlant-Backend/internal/datastore"
	"github.com/adilrumy05/SmartPlant-Backend/internal/runtime"
	"github.com/adilrumy05/SmartPlant-Backend/internal/triage"
)

// Command returns the review subcommand tree.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review",
		Short: "Manage the observation review queue",
	}

	cmd.AddCommand(
		listCommand(settings),
		showCommand(settings),
		verifyCommand(settings),
		rejectCommand(settings),
		unsureCommand(settings),
		confirmCommand(settings),
	)
	return cmd
}

// withApp builds the runtime context, runs fn and tears the context down.
func withApp(settings *conf.Settings, fn func(app *runtime.Context) error) error {
	app, err := runtime.Build(settings)
	if err != nil {
		return err
	}
	defer app.Close()
	return fn(app)
}

func parseObservationID(arg string) (uint, error) {
	id, err := strconv.ParseUint(arg, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid observation id %q", arg)
	}
	return uint(id), nil
}

func listCommand(settings *conf.Settings) *cobra.Command {
	var (
		statuses    []string
		page        int
		pageSize    int
		autoFlagged bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List observations awaiting review",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(settings, func(app *runtime.Context) error {
				rows, err := app.Reviewer.ListReviewQueue(datastore.ObservationQuery{
					Statuses:        statuses,
					Page:            page,
					PageSize:        pageSize,
					AutoFlaggedOnly: autoFlagged,
					Threshold:       settings.Triage.Threshold,
				})
				if err != nil {
					return err
				}

				w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tSTATUS\tCONFIDENCE\tSPECIES\tLOCATION\tCREATED")
				for _, row := range rows {
					fmt.Fprintf(w, "%d\t%s\t%.4f\t%s\t%s\t%s\n",
						row.ObservationID, row.Status, row.TopConfidence,
						row.TopSpeciesName, row.LocationName,
						row.CreatedAt.Format("2006-01-02 15:04"))
				}
				return w.Flush()
			})
		},
	}

	cmd.Flags().StringSliceVar(&statuses, "status", []string{datastore.StatusPending}, "Statuses to include")
	cmd.Flags().IntVar(&page, "page", 1, "Page number")
	cmd.Flags().IntVar(&pageSize, "page-size", 50, "Rows per page")
	cmd.Flags().BoolVar(&autoFlagged, "auto-flagged", false, "Only observations below the confidence threshold")
	return cmd
}

func showCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "show [observation-id]",
		Short: "Show an observation with its ranked predictions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseObservationID(args[0])
			if err != nil {
				return err
			}
			return withApp(settings, func(app *runtime.Context) error {
				obs, results, err := app.Reviewer.Detail(id)
				if err != nil {
					return err
				}
				detail := struct {
					Observation datastore.Observation         `json:"observation"`
					Predictions []datastore.ResultWithSpecies `json:"predictions"`
				}{obs, results}
				encoded, err := json.MarshalIndent(detail, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(encoded))
				return nil
			})
		},
	}
}

func verifyCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "verify [observation-id]",
		Short: "Accept the top-ranked prediction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseObservationID(args[0])
			if err != nil {
				return err
			}
			return withApp(settings, func(app *runtime.Context) error {
				return app.Reviewer.Verify(id)
			})
		},
	}
}

func rejectCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "reject [observation-id]",
		Short: "Reject the observation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseObservationID(args[0])
			if err != nil {
				return err
			}
			return withApp(settings, func(app *runtime.Context) error {
				return app.Reviewer.Reject(id)
			})
		},
	}
}

func unsureCommand(settings *conf.Settings) *cobra.Command {
	var notes string

	cmd := &cobra.Command{
		Use:   "unsure [observation-id]",
		Short: "Keep the observation in the queue, optionally with notes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseObservationID(args[0])
			if err != nil {
				return err
			}
			return withApp(settings, func(app *runtime.Context) error {
				return app.Reviewer.FlagUnsure(id, notes)
			})
		},
	}

	cmd.Flags().StringVar(&notes, "notes", "", "Reviewer notes to record")
	return cmd
}

func confirmCommand(settings *conf.Settings) *cobra.Command {
	var (
		speciesID      uint
		scientificName string
		asNew          bool
		commonName     string
		endangered     bool
		description    string
	)

	cmd := &cobra.Command{
		Use:   "confirm [observation-id]",
		Short: "Confirm the observation as a specific species",
		Long: `Confirm assigns a species to the observation and verifies it. With
--species-id or --name the species is resolved against the database; with
--new a fresh species row is always created, even when the name already
exists. The observation photo becomes the species reference image when the
species has none yet.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseObservationID(args[0])
			if err != nil {
				return err
			}
			return withApp(settings, func(app *runtime.Context) error {
				if asNew {
					return app.Reviewer.ConfirmNew(id, triage.NewSpecies{
						ScientificName: scientificName,
						CommonName:     commonName,
						IsEndangered:   endangered,
						Description:    description,
					})
				}
				target := triage.ConfirmTarget{ScientificName: scientificName}
				if cmd.Flags().Changed("species-id") {
					target.SpeciesID = &speciesID
				}
				return app.Reviewer.ConfirmExisting(id, target)
			})
		},
	}

	cmd.Flags().UintVar(&speciesID, "species-id", 0, "Existing species id to confirm as")
	cmd.Flags().StringVar(&scientificName, "name", "", "Scientific name to confirm as")
	cmd.Flags().BoolVar(&asNew, "new", false, "Always create a brand-new species row")
	cmd.Flags().StringVar(&commonName, "common-name", "", "Common name for a new species")
	cmd.Flags().BoolVar(&endangered, "endangered", false, "Mark a new species as endangered")
	cmd.Flags().StringVar(&description, "description", "", "Description for a new species")
	return cmd
}
