// Package storage implements the persistence layer: a raw database/sql +
// modernc.org/sqlite ledger for the append-only Trade/SystemLog/
// PerformanceMetric tables, and a GORM layer for the mutable relational
// Portfolio/PortfolioRule/Strategy/Position/GridOrder models, grounded on
// the teacher's internal/database/db.go profile-based PRAGMA tuning.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Profile selects a PRAGMA tuning preset for a given database's durability
// and speed tradeoff, exactly as the teacher's DatabaseProfile does.
type Profile string

const (
	// ProfileLedger is maximum-safety: fsync on every write, never
	// auto-vacuum, for the append-only Trade/SystemLog/PerformanceMetric
	// tables that are the audit trail for real trading activity.
	ProfileLedger Profile = "ledger"
	// ProfileStandard is the balanced preset for the mutable relational
	// tables GORM manages.
	ProfileStandard Profile = "standard"
)

// DB wraps a *sql.DB with the teacher's production PRAGMA and connection
// pool tuning.
type DB struct {
	conn    *sql.DB
	path    string
	profile Profile
	name    string
}

// Config configures a New database connection.
type Config struct {
	Path    string
	Profile Profile
	Name    string
}

// New opens a sqlite database with profile-appropriate PRAGMAs.
func New(cfg Config) (*DB, error) {
	if !strings.HasPrefix(cfg.Path, "file:") {
		absPath, err := filepath.Abs(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("storage: resolve path: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(absPath), 0755); err != nil {
			return nil, fmt.Errorf("storage: create data directory: %w", err)
		}
		cfg.Path = absPath
	}
	if cfg.Profile == "" {
		cfg.Profile = ProfileStandard
	}

	conn, err := sql.Open("sqlite", buildConnectionString(cfg.Path, cfg.Profile))
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", cfg.Name, err)
	}
	configurePool(conn, cfg.Profile)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("storage: ping %s: %w", cfg.Name, err)
	}

	return &DB{conn: conn, path: cfg.Path, profile: cfg.Profile, name: cfg.Name}, nil
}

func buildConnectionString(path string, profile Profile) string {
	connStr := path + "?_pragma=journal_mode(WAL)"
	switch profile {
	case ProfileLedger:
		connStr += "&_pragma=synchronous(FULL)"
		connStr += "&_pragma=auto_vacuum(NONE)"
	case ProfileStandard:
		connStr += "&_pragma=synchronous(NORMAL)"
		connStr += "&_pragma=auto_vacuum(INCREMENTAL)"
		connStr += "&_pragma=temp_store(MEMORY)"
	}
	connStr += "&_pragma=foreign_keys(1)"
	connStr += "&_pragma=wal_autocheckpoint(1000)"
	connStr += "&_pragma=cache_size(-64000)"
	return connStr
}

func configurePool(conn *sql.DB, profile Profile) {
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(24 * time.Hour)
	conn.SetConnMaxIdleTime(30 * time.Minute)
}

// Conn returns the underlying *sql.DB for repositories and GORM's sqlite
// dialector to share.
func (db *DB) Conn() *sql.DB { return db.conn }

// Close closes the connection.
func (db *DB) Close() error { return db.conn.Close() }

// HealthCheck pings and runs an integrity check.
func (db *DB) HealthCheck(ctx context.Context) error {
	if err := db.conn.PingContext(ctx); err != nil {
		return fmt.Errorf("storage: ping failed for %s: %w", db.name, err)
	}
	var result string
	if err := db.conn.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("storage: integrity check failed for %s: %w", db.name, err)
	}
	if result != "ok" {
		return fmt.Errorf("storage: integrity check reported %q for %s", result, db.name)
	}
	return nil
}

// WALCheckpoint forces a WAL checkpoint to bound file growth.
func (db *DB) WALCheckpoint(mode string) error {
	if mode == "" {
		mode = "TRUNCATE"
	}
	_, err := db.conn.Exec(fmt.Sprintf("PRAGMA wal_checkpoint(%s)", mode))
	return err
}
