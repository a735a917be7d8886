// Package scan implements the photo ingestion commands.
package scan

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/adilrumy05/SmartPlant-Backend/internal/conf"
	"github.com/adilrumy05/SmartPlant-Backend/internal/errors"
	"github.com/adilrumy05/SmartPlant-Backend/internal/logging"
	"github.com/adilrumy05/SmartPlant-Backend/internal/runtime"
	"github.com/adilrumy05/SmartPlant-Backend/internal/triage"
)

// Command returns the scan subcommand.
func Command(settings *conf.Settings) *cobra.Command {
	var (
		latitude  float64
		longitude float64
		location  string
		source    string
		masked    bool
		watch     bool
	)

	cmd := &cobra.Command{
		Use:   "scan [image.jpg | directory]",
		Short: "Identify the plant on a photo and queue the observation for review",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := runtime.Build(settings)
			if err != nil {
				return err
			}
			defer app.Close()

			meta := triage.UploadMeta{
				LocationName: location,
				Source:       source,
				Masked:       masked,
			}
			if cmd.Flags().Changed("latitude") {
				meta.Latitude = &latitude
			}
			if cmd.Flags().Changed("longitude") {
				meta.Longitude = &longitude
			}

			if watch {
				return watchDirectory(cmd.Context(), app, args[0], meta)
			}
			return scanOne(cmd.Context(), app, args[0], meta)
		},
	}

	cmd.Flags().Float64Var(&latitude, "latitude", 0, "Latitude where the photo was taken")
	cmd.Flags().Float64Var(&longitude, "longitude", 0, "Longitude where the photo was taken")
	cmd.Flags().StringVar(&location, "location", "", "Human-readable location label")
	cmd.Flags().StringVar(&source, "source", "camera", "Capture channel tag")
	cmd.Flags().BoolVar(&masked, "masked", false, "Hide the exact location in public views")
	cmd.Flags().BoolVar(&watch, "watch", false, "Treat the argument as a directory and ingest photos as they appear")

	return cmd
}

// scanOne stores the upload, runs one ingestion and prints the triage
// result as JSON.
func scanOne(ctx context.Context, app *runtime.Context, imagePath string, meta triage.UploadMeta) error {
	storedPath, photoURL, err := storeUpload(app.Settings.Triage.UploadPath, imagePath)
	if err != nil {
		return err
	}
	meta.PhotoURL = photoURL

	result, err := app.Ingestor.Ingest(ctx, meta, storedPath)
	if err != nil {
		return err
	}
	return printResult(result)
}

// watchDirectory ingests every image dropped into the directory until
// interrupted. The metrics endpoint, if enabled, serves for the lifetime of
// the watch.
func watchDirectory(ctx context.Context, app *runtime.Context, dir string, meta triage.UploadMeta) error {
	log := logging.ForService("scan")

	if app.Settings.Metrics.Enabled {
		go func() {
			if err := app.Metrics.Serve(app.Settings.Metrics.Listen); err != nil {
				log.Error("metrics endpoint failed", "error", err)
			}
		}()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Newf("scan: starting watcher: %w", err).
			Component("scan").
			Category(errors.CategoryFileIO).
			Build()
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return errors.Newf("scan: watching %s: %w", dir, err).
			Component("scan").
			Category(errors.CategoryFileIO).
			Build()
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("watching for photos", "directory", dir)
	for {
		select {
		case <-ctx.Done():
			log.Info("watch stopped")
			return nil
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Error("watcher error", "error", err)
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if !isImage(event.Name) {
				continue
			}
			if err := scanOne(ctx, app, event.Name, meta); err != nil {
				log.Error("ingestion failed", "path", event.Name, "error", err)
			}
		}
	}
}

// storeUpload copies the submitted photo into the upload directory under a
// collision-free name and returns the stored path plus its public URL.
func storeUpload(uploadRoot, srcPath string) (storedPath, photoURL string, err error) {
	if err := os.MkdirAll(uploadRoot, 0o755); err != nil {
		return "", "", errors.Newf("scan: creating upload directory: %w", err).
			Component("scan").
			Category(errors.CategoryFileIO).
			Build()
	}

	name := uuid.New().String() + strings.ToLower(filepath.Ext(srcPath))
	dst := filepath.Join(uploadRoot, name)

	in, err := os.Open(srcPath)
	if err != nil {
		return "", "", errors.Newf("scan: opening %s: %w", srcPath, err).
			Component("scan").
			Category(errors.CategoryFileIO).
			Build()
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return "", "", errors.Newf("scan: storing upload: %w", err).
			Component("scan").
			Category(errors.CategoryFileIO).
			Build()
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return "", "", errors.Newf("scan: storing upload: %w", err).
			Component("scan").
			Category(errors.CategoryFileIO).
			Build()
	}
	if err := out.Close(); err != nil {
		return "", "", errors.Newf("scan: storing upload: %w", err).
			Component("scan").
			Category(errors.CategoryFileIO).
			Build()
	}

	return dst, "/uploads/" + name, nil
}

func isImage(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg", ".png", ".webp":
		return true
	}
	return false
}

func printResult(result triage.TriageResult) error {
	encoded, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(encoded))
	return nil
}
