package version

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/nexuscore/nexus/artifact"
)

// Status is a recorded version's lifecycle state. Versions are never
// deleted; ARCHIVED only means "not currently active anywhere".
type Status string

const (
	StatusValidated Status = "VALIDATED"
	StatusArchived  Status = "ARCHIVED"
)

// ModuleVersion is one content-addressed, validated build of a module.
type ModuleVersion struct {
	VersionID        string
	ModuleID         string
	BundleSHA256     string
	Status           Status
	CreatedAt        string
	CreatedBy        string
	ValidationReport *artifact.Report
	Source           string
	OrgID            string
}

// Manager records every validated bundle for a module and maintains one
// active pointer per (module_id, org_id). Rollback is pointer movement
// only — no version is ever deleted.
//
// Grounded on _examples/original_source/shared/modules/versioning.py::VersionManager.
type Manager struct {
	db    *sql.DB
	audit *artifact.DevModeLog
}

// OpenManager opens (creating if needed) a SQLite database at dsn with
// the versions + active_versions tables.
func OpenManager(dsn string, audit *artifact.DevModeLog) (*Manager, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("version: open db: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{`PRAGMA journal_mode=WAL;`, `PRAGMA busy_timeout=5000;`} {
		if _, err := db.Exec(pragma); err != nil {
			return nil, fmt.Errorf("version: %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS versions (
			version_id        TEXT PRIMARY KEY,
			module_id         TEXT NOT NULL,
			bundle_sha256     TEXT NOT NULL,
			status            TEXT NOT NULL DEFAULT 'VALIDATED',
			created_at        TEXT NOT NULL,
			created_by        TEXT NOT NULL,
			validation_report TEXT,
			source            TEXT DEFAULT 'generated',
			org_id            TEXT NOT NULL DEFAULT 'default'
		)
	`); err != nil {
		return nil, fmt.Errorf("version: create versions table: %w", err)
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS active_versions (
			module_id  TEXT NOT NULL,
			org_id     TEXT NOT NULL DEFAULT 'default',
			version_id TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (module_id, org_id)
		)
	`); err != nil {
		return nil, fmt.Errorf("version: create active_versions table: %w", err)
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_versions_module_id ON versions(module_id)`); err != nil {
		return nil, fmt.Errorf("version: create index: %w", err)
	}

	return &Manager{db: db, audit: audit}, nil
}

// Close releases the underlying database handle.
func (m *Manager) Close() error { return m.db.Close() }

// RecordVersion inserts a new VALIDATED version. If module_id/org_id has
// no active version yet, the new version becomes active.
func (m *Manager) RecordVersion(moduleID, bundleSHA256, actor, source, orgID string, report *artifact.Report) (string, error) {
	if orgID == "" {
		orgID = "default"
	}
	if source == "" {
		source = "generated"
	}

	versionID := fmt.Sprintf("%s_v_%s", sanitizeModuleID(moduleID), time.Now().UTC().Format("20060102_150405.000000"))
	now := time.Now().UTC().Format(time.RFC3339Nano)

	var reportJSON sql.NullString
	if report != nil {
		data, err := json.Marshal(report)
		if err != nil {
			return "", fmt.Errorf("version: marshal report: %w", err)
		}
		reportJSON = sql.NullString{String: string(data), Valid: true}
	}

	tx, err := m.db.Begin()
	if err != nil {
		return "", fmt.Errorf("version: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		INSERT INTO versions (version_id, module_id, bundle_sha256, status, created_at, created_by, validation_report, source, org_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, versionID, moduleID, bundleSHA256, string(StatusValidated), now, actor, reportJSON, source, orgID); err != nil {
		return "", fmt.Errorf("version: insert version: %w", err)
	}

	row := tx.QueryRow(`SELECT version_id FROM active_versions WHERE module_id = ? AND org_id = ?`, moduleID, orgID)
	var existing string
	if err := row.Scan(&existing); err == sql.ErrNoRows {
		if _, err := tx.Exec(`INSERT INTO active_versions (module_id, org_id, version_id, updated_at) VALUES (?, ?, ?, ?)`,
			moduleID, orgID, versionID, now); err != nil {
			return "", fmt.Errorf("version: set initial active: %w", err)
		}
	} else if err != nil {
		return "", fmt.Errorf("version: query active: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("version: commit: %w", err)
	}
	return versionID, nil
}

// ListVersions returns every version recorded for moduleID/orgID, newest
// first. orgID == "" lists across all orgs.
func (m *Manager) ListVersions(moduleID, orgID string) ([]ModuleVersion, error) {
	var rows *sql.Rows
	var err error
	if orgID != "" {
		rows, err = m.db.Query(`SELECT version_id, module_id, bundle_sha256, status, created_at, created_by, validation_report, source, org_id FROM versions WHERE module_id = ? AND org_id = ? ORDER BY created_at DESC`, moduleID, orgID)
	} else {
		rows, err = m.db.Query(`SELECT version_id, module_id, bundle_sha256, status, created_at, created_by, validation_report, source, org_id FROM versions WHERE module_id = ? ORDER BY created_at DESC`, moduleID)
	}
	if err != nil {
		return nil, fmt.Errorf("version: list versions: %w", err)
	}
	defer rows.Close()

	var versions []ModuleVersion
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanVersion(row rowScanner) (ModuleVersion, error) {
	var v ModuleVersion
	var status string
	var reportJSON sql.NullString
	if err := row.Scan(&v.VersionID, &v.ModuleID, &v.BundleSHA256, &status, &v.CreatedAt, &v.CreatedBy, &reportJSON, &v.Source, &v.OrgID); err != nil {
		return ModuleVersion{}, fmt.Errorf("version: scan row: %w", err)
	}
	v.Status = Status(status)
	if reportJSON.Valid {
		var report artifact.Report
		if err := json.Unmarshal([]byte(reportJSON.String), &report); err != nil {
			return ModuleVersion{}, fmt.Errorf("version: unmarshal report: %w", err)
		}
		v.ValidationReport = &report
	}
	return v, nil
}

// GetActiveVersion returns the version currently installed for
// moduleID/orgID, or (nil, nil) if none is active.
func (m *Manager) GetActiveVersion(moduleID, orgID string) (*ModuleVersion, error) {
	if orgID == "" {
		orgID = "default"
	}
	row := m.db.QueryRow(`
		SELECT v.version_id, v.module_id, v.bundle_sha256, v.status, v.created_at, v.created_by, v.validation_report, v.source, v.org_id
		FROM versions v JOIN active_versions a ON v.version_id = a.version_id
		WHERE a.module_id = ? AND a.org_id = ?
	`, moduleID, orgID)
	v, err := scanVersion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// RollbackResult describes the outcome of a rollback_to_version call.
type RollbackResult struct {
	ModuleID     string
	FromVersion  string
	ToVersion    string
	BundleSHA256 string
}

// ErrVersionNotFound is returned when target_version_id does not exist
// for module_id/org_id.
type ErrVersionNotFound struct {
	ModuleID  string
	VersionID string
}

func (e *ErrVersionNotFound) Error() string {
	return fmt.Sprintf("version: version %q not found for module %q", e.VersionID, e.ModuleID)
}

// ErrVersionNotValidated is returned when rollback targets a version
// whose status is not VALIDATED.
type ErrVersionNotValidated struct {
	VersionID string
	Status    Status
}

func (e *ErrVersionNotValidated) Error() string {
	return fmt.Sprintf("version: cannot rollback to version %q with status %s, only VALIDATED allowed", e.VersionID, e.Status)
}

// RollbackToVersion moves the active pointer to targetVersionID. This is
// pointer movement only: no code is regenerated and no prior version is
// deleted. Emits a version_rollback audit event.
func (m *Manager) RollbackToVersion(moduleID, targetVersionID, actor, reason, orgID string) (RollbackResult, error) {
	if orgID == "" {
		orgID = "default"
	}

	tx, err := m.db.Begin()
	if err != nil {
		return RollbackResult{}, fmt.Errorf("version: begin tx: %w", err)
	}
	defer tx.Rollback()

	var bundleSHA256, status string
	err = tx.QueryRow(`SELECT bundle_sha256, status FROM versions WHERE version_id = ? AND module_id = ? AND org_id = ?`,
		targetVersionID, moduleID, orgID).Scan(&bundleSHA256, &status)
	if err == sql.ErrNoRows {
		return RollbackResult{}, &ErrVersionNotFound{ModuleID: moduleID, VersionID: targetVersionID}
	}
	if err != nil {
		return RollbackResult{}, fmt.Errorf("version: lookup target: %w", err)
	}
	if Status(status) != StatusValidated {
		return RollbackResult{}, &ErrVersionNotValidated{VersionID: targetVersionID, Status: Status(status)}
	}

	var fromVersion string
	err = tx.QueryRow(`SELECT version_id FROM active_versions WHERE module_id = ? AND org_id = ?`, moduleID, orgID).Scan(&fromVersion)
	hadActive := err == nil
	if err != nil && err != sql.ErrNoRows {
		return RollbackResult{}, fmt.Errorf("version: lookup active: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	if hadActive {
		if _, err := tx.Exec(`UPDATE active_versions SET version_id = ?, updated_at = ? WHERE module_id = ? AND org_id = ?`,
			targetVersionID, now, moduleID, orgID); err != nil {
			return RollbackResult{}, fmt.Errorf("version: move pointer: %w", err)
		}
	} else {
		if _, err := tx.Exec(`INSERT INTO active_versions (module_id, org_id, version_id, updated_at) VALUES (?, ?, ?, ?)`,
			moduleID, orgID, targetVersionID, now); err != nil {
			return RollbackResult{}, fmt.Errorf("version: set pointer: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return RollbackResult{}, fmt.Errorf("version: commit: %w", err)
	}

	result := RollbackResult{ModuleID: moduleID, FromVersion: fromVersion, ToVersion: targetVersionID, BundleSHA256: bundleSHA256}

	if m.audit != nil {
		m.audit.LogAction(artifact.ActionVersionRollback, actor, moduleID, "", map[string]string{
			"from_version":  fromVersion,
			"to_version":    targetVersionID,
			"bundle_sha256": bundleSHA256,
			"reason":        reason,
		})
	}
	return result, nil
}

func sanitizeModuleID(moduleID string) string {
	out := make([]byte, len(moduleID))
	for i := 0; i < len(moduleID); i++ {
		if moduleID[i] == '/' {
			out[i] = '_'
		} else {
			out[i] = moduleID[i]
		}
	}
	return string(out)
}
