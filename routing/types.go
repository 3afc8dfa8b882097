// Package routing implements the hot-reloadable routing configuration and
// capability-to-tier map that the delegation manager consults on every
// request: which inference tier a capability category should use, how
// categories fall back when unconfigured, and the performance thresholds
// that gate direct-vs-decomposed execution.
package routing

import "fmt"

// Tier names a model capability class, ordered from most to least
// capable/expensive. "external" denotes a non-LLM tool call routed
// through the same preference machinery as a model tier.
type Tier string

const (
	TierUltra    Tier = "ultra"
	TierHeavy    Tier = "heavy"
	TierStandard Tier = "standard"
	TierLight    Tier = "light"
	TierMicro    Tier = "micro"
	TierExternal Tier = "external"
)

// tierPriority mirrors capability_map.py's tie-break table: lower value
// wins when resolving the required tier across several capabilities.
// "external" is intentionally ranked last so that a task whose sole
// capability is external resolves to "standard" rather than to the
// lowest class, since external tool calls carry no model-cost signal.
var tierPriority = map[Tier]int{
	TierUltra:    0,
	TierHeavy:    1,
	TierStandard: 2,
	TierLight:    3,
	TierMicro:    4,
	TierExternal: 5,
}

// Valid reports whether t is one of the closed set of known tiers.
func (t Tier) Valid() bool {
	_, ok := tierPriority[t]
	return ok
}

// Priority returns the tie-break rank for t (lower wins). Unknown tiers
// sort after every known tier.
func (t Tier) Priority() int {
	if p, ok := tierPriority[t]; ok {
		return p
	}
	return len(tierPriority)
}

// Priority names the scheduling priority of a capability category.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// CategoryRouting is the routing configuration for a single capability
// category, e.g. "code_generation" or "search".
type CategoryRouting struct {
	Tier        Tier     `json:"tier" yaml:"tier"`
	Provider    string   `json:"provider,omitempty" yaml:"provider,omitempty"`
	Model       string   `json:"model,omitempty" yaml:"model,omitempty"`
	Priority    Priority `json:"priority" yaml:"priority"`
	MaxLatencyMs int     `json:"max_latency_ms,omitempty" yaml:"max_latency_ms,omitempty"`
}

// TierConfig describes a single inference tier's endpoint and admission
// control.
type TierConfig struct {
	Endpoint              string `json:"endpoint" yaml:"endpoint"`
	MaxConcurrentRequests int    `json:"max_concurrent_requests" yaml:"max_concurrent_requests"`
	Priority              int    `json:"priority" yaml:"priority"`
	Enabled               bool   `json:"enabled" yaml:"enabled"`
}

// PerformanceConstraints are the configurable thresholds the delegation
// manager uses to decide between direct execution, decomposition, and
// when a self-consistency check counts as verified.
type PerformanceConstraints struct {
	ComplexityThresholdDirect   float64 `json:"complexity_threshold_direct" yaml:"complexity_threshold_direct"`
	SelfConsistencyThreshold    float64 `json:"self_consistency_threshold" yaml:"self_consistency_threshold"`
	DelegationLatencyThresholdMs int    `json:"delegation_latency_threshold_ms" yaml:"delegation_latency_threshold_ms"`
	MaxSubTasks                 int     `json:"max_sub_tasks" yaml:"max_sub_tasks"`
}

// DefaultPerformanceConstraints matches the original system's defaults.
func DefaultPerformanceConstraints() PerformanceConstraints {
	return PerformanceConstraints{
		ComplexityThresholdDirect:    0.5,
		SelfConsistencyThreshold:     0.6,
		DelegationLatencyThresholdMs: 5000,
		MaxSubTasks:                  5,
	}
}

// Config is the top-level routing document, loaded from a JSON file and
// hot-reloadable via the admin API without a process restart.
type Config struct {
	Version     string                     `json:"version" yaml:"version"`
	Categories  map[string]CategoryRouting `json:"categories" yaml:"categories"`
	Tiers       map[string]TierConfig      `json:"tiers" yaml:"tiers"`
	Performance PerformanceConstraints     `json:"performance" yaml:"performance"`
}

// TierForCategory resolves a category to its configured tier, or ("", false)
// if the category is not present in the config.
func (c Config) TierForCategory(category string) (Tier, bool) {
	entry, ok := c.Categories[category]
	if !ok {
		return "", false
	}
	return entry.Tier, true
}

// TierEndpoints returns the enabled tier -> endpoint mapping.
func (c Config) TierEndpoints() map[string]string {
	out := make(map[string]string, len(c.Tiers))
	for name, t := range c.Tiers {
		if t.Enabled && t.Endpoint != "" {
			out[name] = t.Endpoint
		}
	}
	return out
}

// Validate checks structural invariants before a config is accepted by
// the manager (every category must name a known tier, every tier used by
// a category should ideally be declared — a missing tier declaration is
// a warning-level condition handled by the caller, not an error here).
func (c Config) Validate() error {
	for name, cat := range c.Categories {
		if !cat.Tier.Valid() {
			return fmt.Errorf("category %q: unknown tier %q", name, cat.Tier)
		}
	}
	return nil
}
