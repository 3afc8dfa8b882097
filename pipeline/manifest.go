// Package pipeline implements the module build→write→validate→install
// lifecycle: scaffolding a new adapter, replacing its source, merging
// static+runtime validation into a report, a bounded repair loop with
// thrash detection, and an attestation-gated install guard backed by a
// persistent SQLite module registry.
//
// Grounded on
// _examples/original_source/shared/modules/manifest.py,
// shared/modules/registry.py, and shared/modules/loader.py.
package pipeline

import (
	"encoding/json"
	"fmt"
)

func manifestJSON(m Manifest) ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

// Status is a ModuleManifest's lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusValidating Status = "validating"
	StatusValidated  Status = "validated"
	StatusApproved   Status = "approved"
	StatusInstalled  Status = "installed"
	StatusDisabled   Status = "disabled"
	StatusFailed     Status = "failed"
	StatusUninstalled Status = "uninstalled"
)

// AuthType names how a module's upstream API authenticates.
type AuthType string

const (
	AuthNone   AuthType = "none"
	AuthAPIKey AuthType = "api_key"
	AuthOAuth2 AuthType = "oauth2"
	AuthBasic  AuthType = "basic"
)

// HealthStatus is a coarse installed-module health signal, separate
// from Status, updated by usage outside the build pipeline.
type HealthStatus string

const (
	HealthUnknown  HealthStatus = "unknown"
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthDown     HealthStatus = "down"
)

// Manifest describes one module adapter: its identity, lifecycle state,
// and cumulative usage counters.
type Manifest struct {
	Name            string       `json:"name"`
	Category        string       `json:"category"`
	Platform        string       `json:"platform"`
	Version         string       `json:"version"`
	EntryPoint      string       `json:"entry_point"`
	ClassName       string       `json:"class_name"`
	RequiresAuth    bool         `json:"requires_auth"`
	AuthType        AuthType     `json:"auth_type"`
	Status          Status       `json:"status"`
	HealthStatus    HealthStatus `json:"health_status"`
	FailureCount    int          `json:"failure_count"`
	SuccessCount    int          `json:"success_count"`
	Description     string       `json:"description,omitempty"`
	APIBaseURL      string       `json:"api_base_url,omitempty"`
}

// ModuleID returns the manifest's canonical identity, category/platform.
func (m Manifest) ModuleID() string {
	return fmt.Sprintf("%s/%s", m.Category, m.Platform)
}

// BuildSpec is the input to the Build (scaffold) stage.
type BuildSpec struct {
	Name           string
	Category       string
	Platform       string
	Description    string
	APIBaseURL     string
	RequiresAPIKey bool
	AuthType       AuthType
}

func (s BuildSpec) moduleID() string {
	return fmt.Sprintf("%s/%s", s.Category, s.Platform)
}
