// Package authz implements API key authentication, RBAC, and the
// organization/user models every admin endpoint authorizes against.
//
// Grounded on _examples/original_source/shared/auth/models.py,
// shared/auth/rbac.py, shared/auth/api_keys.py.
package authz

// Role is a closed set of access levels, strictly ordered by the
// permissions they carry (viewer ⊂ operator ⊂ admin ⊂ owner).
type Role string

const (
	RoleViewer   Role = "viewer"
	RoleOperator Role = "operator"
	RoleAdmin    Role = "admin"
	RoleOwner    Role = "owner"
)

// Valid reports whether r is one of the defined roles.
func (r Role) Valid() bool {
	switch r {
	case RoleViewer, RoleOperator, RoleAdmin, RoleOwner:
		return true
	}
	return false
}

// KeyStatus is an API key's lifecycle state.
type KeyStatus string

const (
	KeyActive          KeyStatus = "active"
	KeyRotationPending KeyStatus = "rotation_pending"
	KeyRevoked         KeyStatus = "revoked"
)

// Organization is the billing/scoping unit every user and API key
// belongs to.
type Organization struct {
	OrgID     string `json:"org_id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
	Plan      string `json:"plan"`
}

// User is an authenticated principal resolved from a valid API key.
type User struct {
	UserID    string `json:"user_id"`
	OrgID     string `json:"org_id"`
	Role      Role   `json:"role"`
	Email     string `json:"email,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

// APIKeyRecord is a key's metadata, never its plaintext or hash.
type APIKeyRecord struct {
	KeyID     string    `json:"key_id"`
	OrgID     string    `json:"org_id"`
	Role      Role      `json:"role"`
	CreatedAt string    `json:"created_at"`
	LastUsed  string    `json:"last_used,omitempty"`
	Status    KeyStatus `json:"status"`
}
