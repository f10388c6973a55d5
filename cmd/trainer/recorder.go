package main

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync/atomic"

	"gorm.io/gorm"

	"github.com/stickshift/trainer/internal/api"
	"github.com/stickshift/trainer/internal/config"
	"github.com/stickshift/trainer/internal/influx"
	"github.com/stickshift/trainer/internal/monitor"
	"github.com/stickshift/trainer/internal/session"
	"github.com/stickshift/trainer/internal/storage"
	"github.com/stickshift/trainer/internal/worker"
	"github.com/stickshift/trainer/pkg/core"
)

// recorder is the storage pipeline behind one session: backend, batching
// worker, optional influx mirror and status monitor.
type recorder struct {
	app     *app
	Backend storage.Backend
	Worker  *worker.Manager
	Influx  *influx.Manager
	Monitor *monitor.Service

	current atomic.Pointer[session.Session]
}

// gormBacked is satisfied by the sqlite and postgres backends.
type gormBacked interface {
	DB() *gorm.DB
}

func newRecorder(ctx context.Context, a *app) (*recorder, error) {
	r := &recorder{app: a}

	stamp := a.StartTime.Format("20060102_150405")
	sc := config.GetStorageConfig()
	if (sc.Type == "sqlite" || sc.Type == "postgres") && sc.SQLite.DumpPath != "" {
		sc.SQLite.DumpPath = runDumpPath(sc.SQLite.DumpPath, stamp)
	}
	backend, err := storage.NewBackend(stamp, sc, config.GetDBConfig(), a.Zerolog)
	if err != nil {
		return nil, err
	}
	if err := backend.Init(); err != nil {
		return nil, err
	}
	r.Backend = backend

	var mirror worker.Mirror
	if ic := config.GetInfluxConfig(); ic.Enabled {
		r.Influx = influx.NewManager(ic, a.Zerolog)
		if err := r.Influx.Connect(ctx); err != nil {
			a.Logger.Error("Influx unavailable, frames are not mirrored", "error", err)
			r.Influx = nil
		} else {
			mirror = r.Influx
		}
	}

	sess := config.GetSessionConfig()
	r.Worker = worker.NewManager(worker.Dependencies{
		Backend:       backend,
		Mirror:        mirror,
		Logger:        a.Logger,
		FlushInterval: sess.FlushInterval,
		BatchSize:     sess.BatchSize,
		QueueLimit:    sess.QueueLimit,
	})

	if mc := config.GetMonitorConfig(); mc.Enabled {
		deps := monitor.Dependencies{
			Source:   r.Worker,
			Snapshot: r.snapshot,
			Logger:   a.Logger,
			Config:   mc,
		}
		if gb, ok := backend.(gormBacked); ok {
			deps.DB = gb.DB()
		}
		if r.Influx != nil {
			deps.Influx = r.Influx
		}
		r.Monitor = monitor.NewService(deps)
		if err := r.Monitor.Start(); err != nil {
			a.Logger.Error("Failed to start status monitor", "error", err)
			r.Monitor = nil
		}
	}
	return r, nil
}

// runDumpPath gives every run its own dump: recordings/trainer.db becomes
// recordings/trainer_20260401_081530.db.
func runDumpPath(configured, stamp string) string {
	ext := filepath.Ext(configured)
	return strings.TrimSuffix(configured, ext) + "_" + stamp + ext
}

func (r *recorder) snapshot() core.Frame {
	if s := r.current.Load(); s != nil {
		return s.Snapshot()
	}
	return core.Frame{}
}

// Attach registers s with the backend and routes its ids into later records.
func (r *recorder) Attach(s *session.Session) error {
	info := s.Info()
	if err := r.Worker.Start(&info); err != nil {
		return err
	}
	s.SetID(info.ID)
	r.current.Store(s)
	return nil
}

// Finish ends the recording of the attached session and uploads the export
// when the backend produced one and uploads are on.
func (r *recorder) Finish(ctx context.Context, sum core.Summary) error {
	if err := r.Worker.Finish(sum); err != nil {
		return err
	}
	if r.app.OTel != nil {
		if err := r.app.OTel.Flush(ctx); err != nil {
			r.app.Logger.Warn("OTel flush failed", "error", err)
		}
	}

	ac := config.GetAPIConfig()
	up, ok := r.Backend.(storage.Uploadable)
	if !ac.Upload || !ok || up.GetExportedFilePath() == "" {
		return nil
	}
	client := api.New(ac.ServerURL, ac.APIKey)
	if err := client.Healthcheck(ctx); err != nil {
		return err
	}
	path := up.GetExportedFilePath()
	if err := client.Upload(ctx, path, up.GetExportMetadata()); err != nil {
		return err
	}
	r.app.Logger.Info("Uploaded session", "path", path, "server", ac.ServerURL)
	return nil
}

// Close stops the monitor, drains the worker and closes every sink.
func (r *recorder) Close() error {
	if r.Monitor != nil {
		r.Monitor.Stop()
	}
	var errs []error
	if r.Worker != nil {
		errs = append(errs, r.Worker.Close())
	} else if r.Backend != nil {
		errs = append(errs, r.Backend.Close())
	}
	if r.Influx != nil {
		errs = append(errs, r.Influx.Close())
	}
	return errors.Join(errs...)
}
