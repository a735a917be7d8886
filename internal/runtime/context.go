// Package runtime assembles the application components from configuration
// and hands the wired set to commands.
package runtime

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/adilrumy05/SmartPlant-Backend/internal/conf"
	"github.com/adilrumy05/SmartPlant-Backend/internal/datastore"
	"github.com/adilrumy05/SmartPlant-Backend/internal/encryption"
	"github.com/adilrumy05/SmartPlant-Backend/internal/errors"
	"github.com/adilrumy05/SmartPlant-Backend/internal/imagestore"
	"github.com/adilrumy05/SmartPlant-Backend/internal/logging"
	"github.com/adilrumy05/SmartPlant-Backend/internal/observability"
	"github.com/adilrumy05/SmartPlant-Backend/internal/triage"
	"github.com/adilrumy05/SmartPlant-Backend/internal/worker"
)

// Context holds the wired application components for one process.
type Context struct {
	Settings *conf.Settings
	Metrics  *observability.Metrics

	Store      datastore.Interface
	Supervisor *worker.Supervisor
	Ingestor   *triage.Ingestor
	Reviewer   *triage.Reviewer

	runner   *worker.Runner
	closeLog func() error
}

// Build opens the datastore, starts no processes yet (the worker launches
// lazily on the first inference) and wires the triage pipeline.
func Build(settings *conf.Settings) (*Context, error) {
	metrics, err := observability.NewMetrics()
	if err != nil {
		return nil, err
	}

	store := datastore.New(settings, metrics.Datastore)
	if store == nil {
		return nil, errors.Newf("no database backend enabled").
			Component("runtime").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if err := store.Open(); err != nil {
		return nil, err
	}

	workerLog := logging.ForService("worker")
	var closeLog func() error
	if settings.Log.Path != "" {
		fileLog, closer, err := logging.NewFileLogger(settings.Log.Path, "worker", nil)
		if err != nil {
			return nil, errors.New(err).
				Component("runtime").
				Category(errors.CategoryFileIO).
				Build()
		}
		workerLog = fileLog
		closeLog = closer
	}

	runner := worker.NewRunner(settings.Worker, workerLog, metrics.Worker)
	timeout := time.Duration(settings.Worker.TimeoutSeconds) * time.Second
	supervisor := worker.NewSupervisor(runner, timeout, workerLog, metrics.Worker)

	var cipher triage.LocationCipher
	if settings.Security.DataKey != "" {
		c, err := encryption.New(settings.Security.DataKey)
		if err != nil {
			return nil, err
		}
		cipher = c
	}

	archiver := &uploadArchiver{
		store:      imagestore.New(settings.Triage.SpeciesImagePath),
		uploadRoot: settings.Triage.UploadPath,
	}

	ctx := &Context{
		Settings:   settings,
		Metrics:    metrics,
		Store:      store,
		Supervisor: supervisor,
		Ingestor:   triage.NewIngestor(store, supervisor, cipher, settings, metrics.Triage),
		Reviewer:   triage.NewReviewer(store, archiver, metrics.Triage),
		runner:     runner,
		closeLog:   closeLog,
	}
	return ctx, nil
}

// Close stops the worker process and closes the datastore.
func (c *Context) Close() error {
	if c.runner != nil {
		c.runner.Stop()
	}
	if c.closeLog != nil {
		if err := c.closeLog(); err != nil {
			logging.Error("closing worker log", "error", err)
		}
	}
	if c.Store != nil {
		return c.Store.Close()
	}
	return nil
}

// uploadArchiver adapts the species image store to observation photo URLs:
// a public "/uploads/..." path is resolved against the upload directory
// before copying.
type uploadArchiver struct {
	store      *imagestore.Store
	uploadRoot string
}

func (a *uploadArchiver) ArchiveObservationPhoto(scientificName, photoURL string) (string, error) {
	src := photoURL
	if rel, ok := strings.CutPrefix(photoURL, "/uploads/"); ok {
		src = filepath.Join(a.uploadRoot, rel)
	}
	return a.store.ArchiveObservationPhoto(scientificName, src)
}
