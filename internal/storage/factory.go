package storage

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/stickshift/trainer/internal/config"
	"github.com/stickshift/trainer/internal/storage/memory"
	"github.com/stickshift/trainer/internal/storage/postgres"
	sqlitestorage "github.com/stickshift/trainer/internal/storage/sqlite"
	wsstorage "github.com/stickshift/trainer/internal/storage/websocket"
)

// NewBackend creates a storage backend based on configuration. name tells
// apart concurrent in-memory databases of one process. Postgres dumps its
// sqlite fallback to the sqlite dump path.
func NewBackend(name string, cfg config.StorageConfig, db config.DBConfig, log zerolog.Logger) (Backend, error) {
	switch cfg.Type {
	case "postgres":
		return postgres.New(db, cfg.SQLite.DumpPath, log), nil
	case "sqlite":
		return sqlitestorage.New(name, cfg.SQLite, log)
	case "websocket":
		return wsstorage.New(wsstorage.Config{URL: cfg.WebSocket.URL, Secret: cfg.WebSocket.Secret}, nil), nil
	case "memory", "":
		return memory.New(cfg.Memory), nil
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
