package ygggo_pg

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteConfig holds SQLite-specific configuration
type SQLiteConfig struct {
	// Database file path, use ":memory:" for a private in-memory database
	// per connection
	Path string

	BusyTimeout time.Duration
	JournalMode string // WAL, DELETE, TRUNCATE, PERSIST, MEMORY, OFF
	Synchronous string // FULL, NORMAL, OFF
	CacheSize   int    // Number of pages in cache
}

// DefaultSQLiteConfig returns a default SQLite configuration
func DefaultSQLiteConfig() SQLiteConfig {
	return SQLiteConfig{
		Path:        ":memory:",
		BusyTimeout: 5 * time.Second,
		JournalMode: "WAL",
		Synchronous: "NORMAL",
		CacheSize:   2000,
	}
}

// NewSQLiteConnector returns a connector opening SQLite databases through
// modernc.org/sqlite. Clean recycling releases the memory the session
// holds in its page cache.
func NewSQLiteConnector(config SQLiteConfig) *SQLConnector {
	dsn := buildSQLiteDSN(config)
	return &SQLConnector{
		Open: func(ctx context.Context) (*sql.DB, error) {
			db, err := sql.Open("sqlite", dsn)
			if err != nil {
				return nil, fmt.Errorf("failed to open SQLite database: %w", err)
			}
			return db, nil
		},
		VerifySQL: "SELECT 1",
		CleanSQL:  "PRAGMA shrink_memory",
	}
}

// buildSQLiteDSN builds a modernc.org/sqlite DSN from config
func buildSQLiteDSN(config SQLiteConfig) string {
	pragmas := []string{"foreign_keys(1)"}
	if config.BusyTimeout > 0 {
		pragmas = append(pragmas, fmt.Sprintf("busy_timeout(%d)", config.BusyTimeout.Milliseconds()))
	}
	if config.JournalMode != "" {
		pragmas = append(pragmas, "journal_mode("+strings.ToUpper(config.JournalMode)+")")
	}
	if config.Synchronous != "" {
		pragmas = append(pragmas, "synchronous("+strings.ToUpper(config.Synchronous)+")")
	}
	if config.CacheSize > 0 {
		pragmas = append(pragmas, fmt.Sprintf("cache_size(%d)", config.CacheSize))
	}
	q := url.Values{"_pragma": pragmas}
	return config.Path + "?" + q.Encode()
}
