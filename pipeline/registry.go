package pipeline

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Registry is the SQLite-backed persistent module registry: it survives
// process restarts and tracks every installed module's status, health,
// and usage counters, separate from the in-memory adapter registry a
// running server consults per request.
//
// Grounded on
// _examples/original_source/shared/modules/registry.py::ModuleRegistry.
type Registry struct {
	db *sql.DB
}

// OpenRegistry opens (creating if needed) a SQLite database at dsn and
// ensures the modules table exists. dsn may be a file path or ":memory:".
func OpenRegistry(dsn string) (*Registry, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("pipeline: open registry: %w", err)
	}
	db.SetMaxOpenConns(1) // WAL + single-writer: avoid SQLITE_BUSY under concurrent callers

	if _, err := db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		return nil, fmt.Errorf("pipeline: enable WAL: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout=5000;`); err != nil {
		return nil, fmt.Errorf("pipeline: set busy timeout: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS modules (
			module_id      TEXT PRIMARY KEY,
			name           TEXT NOT NULL,
			category       TEXT NOT NULL,
			platform       TEXT NOT NULL,
			status         TEXT NOT NULL DEFAULT 'pending',
			health_status  TEXT NOT NULL DEFAULT 'unknown',
			manifest_json  TEXT NOT NULL,
			installed_at   TEXT,
			updated_at     TEXT,
			failure_count  INTEGER NOT NULL DEFAULT 0,
			success_count  INTEGER NOT NULL DEFAULT 0,
			last_used      TEXT
		)
	`); err != nil {
		return nil, fmt.Errorf("pipeline: create modules table: %w", err)
	}

	return &Registry{db: db}, nil
}

// Close releases the underlying database handle.
func (r *Registry) Close() error {
	return r.db.Close()
}

// Install records manifest as installed, replacing any prior entry for
// the same module_id.
func (r *Registry) Install(manifest Manifest) error {
	manifestJSON, err := json.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("pipeline: marshal manifest: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339)

	_, err = r.db.Exec(`
		INSERT OR REPLACE INTO modules
			(module_id, name, category, platform, status, health_status,
			 manifest_json, installed_at, updated_at, failure_count, success_count, last_used)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, manifest.ModuleID(), manifest.Name, manifest.Category, manifest.Platform,
		string(StatusInstalled), string(manifest.HealthStatus), string(manifestJSON),
		now, now, manifest.FailureCount, manifest.SuccessCount, nil)
	if err != nil {
		return fmt.Errorf("pipeline: insert module: %w", err)
	}
	return nil
}

// Uninstall removes a module_id from the registry. Reports whether a row
// was actually removed.
func (r *Registry) Uninstall(moduleID string) (bool, error) {
	result, err := r.db.Exec(`DELETE FROM modules WHERE module_id = ?`, moduleID)
	if err != nil {
		return false, fmt.Errorf("pipeline: delete module: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("pipeline: rows affected: %w", err)
	}
	return affected > 0, nil
}

// SetEnabled flips a module between installed and disabled.
func (r *Registry) SetEnabled(moduleID string, enabled bool) error {
	status := string(StatusDisabled)
	if enabled {
		status = string(StatusInstalled)
	}
	_, err := r.db.Exec(`UPDATE modules SET status = ?, updated_at = ? WHERE module_id = ?`,
		status, time.Now().UTC().Format(time.RFC3339), moduleID)
	if err != nil {
		return fmt.Errorf("pipeline: update status: %w", err)
	}
	return nil
}

// UpdateHealth records a health transition, optionally incrementing the
// failure counter in the same statement.
func (r *Registry) UpdateHealth(moduleID string, health HealthStatus, incrementFailure bool) error {
	now := time.Now().UTC().Format(time.RFC3339)
	var err error
	if incrementFailure {
		_, err = r.db.Exec(`UPDATE modules SET health_status = ?, failure_count = failure_count + 1, updated_at = ? WHERE module_id = ?`,
			string(health), now, moduleID)
	} else {
		_, err = r.db.Exec(`UPDATE modules SET health_status = ?, updated_at = ? WHERE module_id = ?`, string(health), now, moduleID)
	}
	if err != nil {
		return fmt.Errorf("pipeline: update health: %w", err)
	}
	return nil
}

// RecordUsage increments success_count and stamps last_used.
func (r *Registry) RecordUsage(moduleID string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := r.db.Exec(`UPDATE modules SET success_count = success_count + 1, last_used = ?, updated_at = ? WHERE module_id = ?`, now, now, moduleID)
	if err != nil {
		return fmt.Errorf("pipeline: record usage: %w", err)
	}
	return nil
}

// Entry is one row of the module registry, denormalized for read access.
type Entry struct {
	ModuleID     string
	Name         string
	Category     string
	Platform     string
	Status       Status
	HealthStatus HealthStatus
	Manifest     Manifest
	InstalledAt  string
	UpdatedAt    string
	FailureCount int
	SuccessCount int
}

// Get returns a module's registry entry, or (Entry{}, false) if absent.
func (r *Registry) Get(moduleID string) (Entry, bool, error) {
	row := r.db.QueryRow(`SELECT module_id, name, category, platform, status, health_status, manifest_json, installed_at, updated_at, failure_count, success_count FROM modules WHERE module_id = ?`, moduleID)
	return scanEntry(row)
}

func scanEntry(row *sql.Row) (Entry, bool, error) {
	var e Entry
	var manifestJSON string
	var status, health string
	err := row.Scan(&e.ModuleID, &e.Name, &e.Category, &e.Platform, &status, &health, &manifestJSON, &e.InstalledAt, &e.UpdatedAt, &e.FailureCount, &e.SuccessCount)
	if err == sql.ErrNoRows {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("pipeline: scan module row: %w", err)
	}
	e.Status = Status(status)
	e.HealthStatus = HealthStatus(health)
	if jerr := json.Unmarshal([]byte(manifestJSON), &e.Manifest); jerr != nil {
		return Entry{}, false, fmt.Errorf("pipeline: unmarshal manifest: %w", jerr)
	}
	return e, true, nil
}

// List returns every registered module, optionally filtered by status.
func (r *Registry) List(status Status) ([]Entry, error) {
	var rows *sql.Rows
	var err error
	if status != "" {
		rows, err = r.db.Query(`SELECT module_id, name, category, platform, status, health_status, manifest_json, installed_at, updated_at, failure_count, success_count FROM modules WHERE status = ? ORDER BY category, platform`, string(status))
	} else {
		rows, err = r.db.Query(`SELECT module_id, name, category, platform, status, health_status, manifest_json, installed_at, updated_at, failure_count, success_count FROM modules ORDER BY category, platform`)
	}
	if err != nil {
		return nil, fmt.Errorf("pipeline: list modules: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var manifestJSON, st, health string
		if err := rows.Scan(&e.ModuleID, &e.Name, &e.Category, &e.Platform, &st, &health, &manifestJSON, &e.InstalledAt, &e.UpdatedAt, &e.FailureCount, &e.SuccessCount); err != nil {
			return nil, fmt.Errorf("pipeline: scan module row: %w", err)
		}
		e.Status = Status(st)
		e.HealthStatus = HealthStatus(health)
		if jerr := json.Unmarshal([]byte(manifestJSON), &e.Manifest); jerr != nil {
			return nil, fmt.Errorf("pipeline: unmarshal manifest: %w", jerr)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
