// Package db manages the embedded libsql database used by the lexical
// index and the parent-document store.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	_ "github.com/tursodatabase/go-libsql"
)

// Config holds configuration for embedded libsql connections.
type Config struct {
	DatabasePath string // Path to .db file
}

func Connect(path string, logger zerolog.Logger) (*sql.DB, error) {
	return ConnectWithConfig(&Config{DatabasePath: path}, logger)
}

func ConnectWithConfig(config *Config, logger zerolog.Logger) (*sql.DB, error) {
	dir := filepath.Dir(config.DatabasePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("could not create database directory %s: %w", dir, err)
	}

	if _, err := os.Stat(config.DatabasePath); os.IsNotExist(err) {
		logger.Info().Str("path", config.DatabasePath).Msg("database not found, creating a new one")
		file, err := os.Create(config.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("could not create db at path %s: %w", config.DatabasePath, err)
		}
		file.Close()
	}

	// Embedded mode with enhanced pragmas
	dsn := fmt.Sprintf("file:%s?_foreign_keys=1&_journal_mode=WAL&_synchronous=NORMAL&_cache_size=-64000&_temp_store=memory",
		config.DatabasePath)

	logger.Debug().Str("dsn", dsn).Msg("connecting to embedded libsql")

	db, err := sql.Open("libsql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open libsql connection: %w", err)
	}

	if err := verifyEmbedded(db, logger); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// verifyEmbedded ensures built-in features are present; it does not load extensions.
func verifyEmbedded(db *sql.DB, logger zerolog.Logger) error {
	ctx := context.Background()

	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("basic connectivity test failed: %w", err)
	}
	if result != 1 {
		return fmt.Errorf("basic connectivity test failed: unexpected result %d", result)
	}

	// FTS5 should be present in our build
	if _, err := db.ExecContext(ctx, "CREATE VIRTUAL TABLE IF NOT EXISTS temp._fts5_probe USING fts5(content)"); err != nil {
		logger.Warn().Err(err).Msg("FTS5 probe failed")
	} else {
		_, _ = db.ExecContext(ctx, "DROP TABLE IF EXISTS temp._fts5_probe")
	}

	// JSON1 should be present
	var jsonResult string
	if err := db.QueryRowContext(ctx, "SELECT json_extract('{\"probe\":\"value\"}', '$.probe')").Scan(&jsonResult); err != nil {
		logger.Warn().Err(err).Msg("JSON1 probe failed")
	} else if jsonResult != "value" {
		logger.Warn().Str("result", jsonResult).Msg("JSON1 probe returned unexpected result")
	}

	return nil
}
