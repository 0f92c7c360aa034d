package database

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"hs-go/internal/config"
)

// catalogFileName is the SQLite file created under data_dir.
const catalogFileName = "catalog.db"

// NewDatabaseFromConfig opens the catalog described by cfg and migrates it
// to the latest schema.
func NewDatabaseFromConfig(cfg config.DatabaseConfig) (*SQLiteDatabase, error) {
	timeout := time.Duration(cfg.BusyTimeoutMS) * time.Millisecond

	var path string
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("creating data_dir: %w", err)
		}
		path = filepath.Join(cfg.DataDir, catalogFileName)
	case "memory":
		path = ":memory:"
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}

	db, err := NewSQLiteDatabase(path, timeout)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating catalog: %w", err)
	}
	return db, nil
}
