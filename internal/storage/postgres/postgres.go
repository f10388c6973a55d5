// Package postgres records to a PostgreSQL/PostGIS server through the GORM
// backend. When the server cannot be reached it records to an in-memory
// sqlite database instead and dumps that to disk on Close.
package postgres

import (
	"github.com/rs/zerolog"

	"github.com/stickshift/trainer/internal/config"
	"github.com/stickshift/trainer/internal/database"
	gormstorage "github.com/stickshift/trainer/internal/storage/gorm"
)

// Backend is the GORM backend on a Postgres connection.
type Backend struct {
	*gormstorage.Backend
	db  *database.Manager
	log zerolog.Logger
}

// New creates a backend; nothing connects until Init. fallbackPath is where
// the local database is dumped when Postgres is down; empty keeps it in
// memory only.
func New(cfg config.DBConfig, fallbackPath string, log zerolog.Logger) *Backend {
	return &Backend{db: database.NewManager(cfg, fallbackPath, log), log: log}
}

// Init connects, falling back to sqlite, and migrates.
func (b *Backend) Init() error {
	if err := b.db.Connect(); err != nil {
		return err
	}
	if !b.db.ShouldSaveLocal {
		b.db.SqlDB.SetMaxOpenConns(10)
	}

	b.Backend = gormstorage.New(gormstorage.Dependencies{DB: b.db.DB, Logger: b.log})
	if err := b.Backend.Init(); err != nil {
		_ = b.db.SqlDB.Close()
		return err
	}
	return nil
}

// Local reports whether the backend fell back to sqlite.
func (b *Backend) Local() bool { return b.db.ShouldSaveLocal }

// Close flushes, dumps a fallback database and releases the connection.
func (b *Backend) Close() error {
	if b.Backend == nil {
		return nil
	}
	err := b.Backend.Close()
	if err == nil && b.db.ShouldSaveLocal && b.db.SqliteFilePath != "" {
		err = b.db.DumpMemoryToDisk()
	}
	if b.db.SqlDB != nil {
		if cerr := b.db.SqlDB.Close(); err == nil {
			err = cerr
		}
		b.db.SqlDB = nil
	}
	return err
}
