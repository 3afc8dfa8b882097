package authz

import (
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// DefaultGraceDays is the rotation grace window: a rotated key's old
// value keeps validating for this many days after rotate_key.
const DefaultGraceDays = 7

// Store is the SQLite-backed API key / organization / user store. Keys
// are hashed with SHA-256 before being written; plaintext is returned
// only from CreateKey and RotateKey, never read back.
//
// Grounded on _examples/original_source/shared/auth/api_keys.py::APIKeyStore.
type Store struct {
	db *sql.DB
}

// OpenStore opens (creating if needed) a SQLite database at dsn with the
// organizations/users/api_keys tables.
func OpenStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("authz: open store: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{`PRAGMA journal_mode=WAL;`, `PRAGMA busy_timeout=10000;`} {
		if _, err := db.Exec(pragma); err != nil {
			return nil, fmt.Errorf("authz: %s: %w", pragma, err)
		}
	}

	statements := []string{
		`CREATE TABLE IF NOT EXISTS organizations (
			org_id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			created_at TEXT NOT NULL,
			plan TEXT DEFAULT 'free'
		)`,
		`CREATE TABLE IF NOT EXISTS users (
			user_id TEXT PRIMARY KEY,
			org_id TEXT NOT NULL,
			email TEXT,
			role TEXT NOT NULL DEFAULT 'viewer',
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS api_keys (
			key_id TEXT PRIMARY KEY,
			org_id TEXT NOT NULL,
			key_hash TEXT NOT NULL UNIQUE,
			role TEXT NOT NULL DEFAULT 'viewer',
			user_id TEXT,
			created_at TEXT NOT NULL,
			last_used TEXT,
			status TEXT NOT NULL DEFAULT 'active',
			rotation_grace_until TEXT
		)`,
	}
	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("authz: init schema: %w", err)
		}
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("authz: generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func hashKey(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

// CreateKey mints a new API key for orgID/role, optionally attributed to
// userID. Returns (plaintext, keyID); the plaintext is never persisted.
func (s *Store) CreateKey(orgID string, role Role, userID string) (plaintext, keyID string, err error) {
	plaintext, err = generateToken()
	if err != nil {
		return "", "", err
	}
	keyID, err = generateToken()
	if err != nil {
		return "", "", err
	}
	keyID = keyID[:16]

	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = s.db.Exec(`
		INSERT INTO api_keys (key_id, org_id, key_hash, role, user_id, created_at, status)
		VALUES (?, ?, ?, ?, ?, ?, 'active')
	`, keyID, orgID, hashKey(plaintext), string(role), nullableString(userID), now)
	if err != nil {
		return "", "", fmt.Errorf("authz: create key: %w", err)
	}
	return plaintext, keyID, nil
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// ValidateKey looks up plaintext by its hash and returns the associated
// User if the key is active or within its rotation grace period. Always
// hashes the input before querying, so lookup cost doesn't leak which
// branch failed.
func (s *Store) ValidateKey(plaintext string) (*User, error) {
	hash := hashKey(plaintext)

	row := s.db.QueryRow(`
		SELECT key_id, org_id, role, user_id, status, rotation_grace_until
		FROM api_keys WHERE key_hash = ? AND status IN ('active', 'rotation_pending')
	`, hash)

	var keyID, orgID, role string
	var userID, graceUntil sql.NullString
	var status string
	if err := row.Scan(&keyID, &orgID, &role, &userID, &status, &graceUntil); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("authz: validate key: %w", err)
	}

	if status == string(KeyRotationPending) {
		if !graceUntil.Valid {
			return nil, nil
		}
		until, err := time.Parse(time.RFC3339Nano, graceUntil.String)
		if err != nil || time.Now().UTC().After(until) {
			return nil, nil
		}
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := s.db.Exec(`UPDATE api_keys SET last_used = ? WHERE key_id = ?`, now, keyID); err != nil {
		return nil, fmt.Errorf("authz: record last_used: %w", err)
	}

	resolvedUserID := keyID
	if userID.Valid {
		resolvedUserID = userID.String
	}
	return &User{UserID: resolvedUserID, OrgID: orgID, Role: Role(role)}, nil
}

// RotateKey issues a new key sharing keyID's org/role/user, then marks
// keyID as rotation_pending with a graceDays window during which both
// keys validate.
func (s *Store) RotateKey(orgID, keyID string, graceDays int) (newPlaintext, newKeyID string, err error) {
	if graceDays <= 0 {
		graceDays = DefaultGraceDays
	}

	row := s.db.QueryRow(`SELECT role, user_id FROM api_keys WHERE key_id = ? AND org_id = ?`, keyID, orgID)
	var role string
	var userID sql.NullString
	if err := row.Scan(&role, &userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", "", fmt.Errorf("authz: rotate key: %w", &ErrKeyNotFound{OrgID: orgID, KeyID: keyID})
		}
		return "", "", fmt.Errorf("authz: rotate key: %w", err)
	}

	newPlaintext, newKeyID, err = s.CreateKey(orgID, Role(role), userID.String)
	if err != nil {
		return "", "", err
	}

	graceUntil := time.Now().UTC().AddDate(0, 0, graceDays).Format(time.RFC3339Nano)
	if _, err := s.db.Exec(`UPDATE api_keys SET status = 'rotation_pending', rotation_grace_until = ? WHERE key_id = ? AND org_id = ?`,
		graceUntil, keyID, orgID); err != nil {
		return "", "", fmt.Errorf("authz: mark rotation_pending: %w", err)
	}
	return newPlaintext, newKeyID, nil
}

// ErrKeyNotFound is returned by RotateKey when keyID doesn't exist under orgID.
type ErrKeyNotFound struct {
	OrgID, KeyID string
}

func (e *ErrKeyNotFound) Error() string {
	return fmt.Sprintf("authz: key %q not found for org %q", e.KeyID, e.OrgID)
}

// RevokeKey sets a key's status to revoked. Reports whether a row matched.
func (s *Store) RevokeKey(keyID string) (bool, error) {
	result, err := s.db.Exec(`UPDATE api_keys SET status = 'revoked' WHERE key_id = ?`, keyID)
	if err != nil {
		return false, fmt.Errorf("authz: revoke key: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("authz: revoke key: %w", err)
	}
	return n > 0, nil
}

// ListKeys returns every non-revoked key for orgID, newest first.
func (s *Store) ListKeys(orgID string) ([]APIKeyRecord, error) {
	rows, err := s.db.Query(`
		SELECT key_id, org_id, role, created_at, last_used, status
		FROM api_keys WHERE org_id = ? AND status != 'revoked'
		ORDER BY created_at DESC
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("authz: list keys: %w", err)
	}
	defer rows.Close()

	var records []APIKeyRecord
	for rows.Next() {
		var rec APIKeyRecord
		var role, status string
		var lastUsed sql.NullString
		if err := rows.Scan(&rec.KeyID, &rec.OrgID, &role, &rec.CreatedAt, &lastUsed, &status); err != nil {
			return nil, fmt.Errorf("authz: scan key: %w", err)
		}
		rec.Role = Role(role)
		rec.Status = KeyStatus(status)
		if lastUsed.Valid {
			rec.LastUsed = lastUsed.String
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// CreateOrganization inserts a new organization row.
func (s *Store) CreateOrganization(orgID, name, plan string) (Organization, error) {
	if plan == "" {
		plan = "free"
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := s.db.Exec(`INSERT INTO organizations (org_id, name, created_at, plan) VALUES (?, ?, ?, ?)`,
		orgID, name, now, plan); err != nil {
		return Organization{}, fmt.Errorf("authz: create organization: %w", err)
	}
	return Organization{OrgID: orgID, Name: name, CreatedAt: now, Plan: plan}, nil
}

// GetOrganization looks up an organization by id, or (Organization{}, false).
func (s *Store) GetOrganization(orgID string) (Organization, bool, error) {
	row := s.db.QueryRow(`SELECT org_id, name, created_at, plan FROM organizations WHERE org_id = ?`, orgID)
	var org Organization
	if err := row.Scan(&org.OrgID, &org.Name, &org.CreatedAt, &org.Plan); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Organization{}, false, nil
		}
		return Organization{}, false, fmt.Errorf("authz: get organization: %w", err)
	}
	return org, true, nil
}

// CreateUser inserts a new user row within orgID.
func (s *Store) CreateUser(userID, orgID string, role Role, email string) (User, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := s.db.Exec(`INSERT INTO users (user_id, org_id, email, role, created_at) VALUES (?, ?, ?, ?, ?)`,
		userID, orgID, nullableString(email), string(role), now); err != nil {
		return User{}, fmt.Errorf("authz: create user: %w", err)
	}
	return User{UserID: userID, OrgID: orgID, Role: role, Email: email, CreatedAt: now}, nil
}
