package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/stickshift/trainer/internal/config"
	"github.com/stickshift/trainer/internal/database"
	"github.com/stickshift/trainer/internal/storage"
	gormstorage "github.com/stickshift/trainer/internal/storage/gorm"
	"github.com/stickshift/trainer/internal/storage/memory"
	"github.com/stickshift/trainer/internal/storage/postgres"
	"github.com/stickshift/trainer/pkg/core"
)

func sessionsCommand(_ context.Context, args []string, out, errOut io.Writer) error {
	fs := flag.NewFlagSet("sessions", flag.ContinueOnError)
	fs.SetOutput(errOut)
	cfg, err := ParseSessionsConfig(fs, args)
	if err != nil {
		return err
	}

	a, err := setup(cfg.CommonConfig, errOut)
	if err != nil {
		return err
	}
	defer a.Close()

	listings, err := listSessions(a, cfg.Limit)
	if err != nil {
		return err
	}
	printSessions(out, listings)
	return nil
}

// listSessions reads the configured store. The memory backend keeps nothing
// across runs, so its exports are read back from disk instead.
func listSessions(a *app, limit int) ([]core.SessionListing, error) {
	sc := config.GetStorageConfig()
	if sc.Type == "memory" || sc.Type == "" {
		return memory.ListExports(sc.Memory.OutputDir, limit)
	}

	if sc.Type == "websocket" {
		return nil, fmt.Errorf("live sessions are kept by the instructor server at %s", sc.WebSocket.URL)
	}

	// The sqlite backend lists its disk dump, not a fresh memory database.
	if sc.Type == "sqlite" {
		return listSQLiteDump(sc.SQLite.DumpPath, limit, a)
	}

	dumps := sc.SQLite.DumpPath
	sc.SQLite.DumpPath = ""
	backend, err := storage.NewBackend("list", sc, config.GetDBConfig(), a.Zerolog)
	if err != nil {
		return nil, err
	}
	if err := backend.Init(); err != nil {
		return nil, err
	}
	defer backend.Close()

	// Runs recorded while Postgres was down live in sqlite dumps.
	if pg, ok := backend.(*postgres.Backend); ok && pg.Local() {
		a.Logger.Warn("Postgres unreachable, listing local dumps")
		return listSQLiteDump(dumps, limit, a)
	}

	lister, ok := backend.(storage.Lister)
	if !ok {
		return nil, fmt.Errorf("storage type %q cannot list sessions", sc.Type)
	}
	return lister.ListSessions(limit)
}

func printSessions(w io.Writer, listings []core.SessionListing) {
	if len(listings) == 0 {
		fmt.Fprintln(w, "no sessions recorded")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tDRIVER\tSOURCE\tDURATION\tDISTANCE\tSTALLS\tSTEPS\tDONE")
	for _, l := range listings {
		s, sum := l.Session, l.Summary
		id := "-"
		if s.ID != 0 {
			id = fmt.Sprint(s.ID)
		}
		driver := s.Driver
		if driver == "" {
			driver = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%.1f m\t%d\t%d/%d\t%t\n",
			id, s.StartTime.Local().Format(time.DateTime), driver, s.Source,
			sum.Duration.Round(time.Millisecond), sum.Distance, sum.Stalls,
			sum.StepsReached, sum.TutorialSteps, sum.Completed)
	}
	tw.Flush()
}

// listSQLiteDump merges the sessions of every per-run dump next to the
// configured dump path.
func listSQLiteDump(configured string, limit int, a *app) ([]core.SessionListing, error) {
	if configured == "" {
		return nil, fmt.Errorf("storage.sqlite.dumpPath is not set")
	}
	paths, err := database.BackupPaths(filepath.Dir(configured))
	if err != nil {
		return nil, err
	}

	prefix := strings.TrimSuffix(filepath.Base(configured), filepath.Ext(configured))
	var out []core.SessionListing
	for _, p := range paths {
		if !strings.HasPrefix(filepath.Base(p), prefix) {
			continue
		}
		db, err := database.OpenSQLite(p)
		if err != nil {
			a.Logger.Warn("Skipping unreadable dump", "path", p, "error", err)
			continue
		}
		ls, err := gormstorage.New(gormstorage.Dependencies{DB: db, Logger: a.Zerolog}).ListSessions(0)
		if sqlDB, dbErr := db.DB(); dbErr == nil {
			sqlDB.Close()
		}
		if err != nil {
			a.Logger.Warn("Skipping unreadable dump", "path", p, "error", err)
			continue
		}
		out = append(out, ls...)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Session.StartTime.After(out[j].Session.StartTime)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
