// Package gateway implements the provider gateway: purpose-lane model
// preference lists, deterministic fallback, bounded retry with jitter,
// schema-validated JSON responses, and per-job token budgets.
//
// Grounded on _examples/original_source/shared/providers/llm_gateway.py
// and itsneelabh/gomind/ai's Provider/AIConfig functional-options idiom.
package gateway

import (
	"sync"

	"github.com/nexuscore/nexus/artifact"
)

// Purpose names a request's routing lane.
type Purpose string

const (
	PurposeCodegen Purpose = "codegen"
	PurposeRepair  Purpose = "repair"
	PurposeCritic  Purpose = "critic"
)

// ModelPreference is one entry in a purpose lane's ordered fallback list.
// Lower Priority is tried first.
type ModelPreference struct {
	Provider string
	Model    string
	Priority int
}

// RoutingPolicy maps each purpose to its ordered model preference list.
type RoutingPolicy map[Purpose][]ModelPreference

// Sorted returns p's preferences for purpose, ordered by ascending
// Priority (lower tried first).
func (p RoutingPolicy) Sorted(purpose Purpose) []ModelPreference {
	prefs := append([]ModelPreference(nil), p[purpose]...)
	for i := 1; i < len(prefs); i++ {
		for j := i; j > 0 && prefs[j].Priority < prefs[j-1].Priority; j-- {
			prefs[j], prefs[j-1] = prefs[j-1], prefs[j]
		}
	}
	return prefs
}

// BudgetConfig bounds retry behavior and per-request token spend.
type BudgetConfig struct {
	MaxTokensPerRequest int
	BaseDelaySeconds    float64
	MaxDelaySeconds     float64
	MaxRetries          int
}

// DefaultBudgetConfig matches llm_gateway.py's defaults.
func DefaultBudgetConfig() BudgetConfig {
	return BudgetConfig{MaxTokensPerRequest: 8000, BaseDelaySeconds: 1, MaxDelaySeconds: 30, MaxRetries: 5}
}

// JobBudget tracks cumulative token spend for one job across many
// generate() calls. Safe for concurrent use.
type JobBudget struct {
	JobID        string
	MaxTokens    int
	mu           sync.Mutex
	totalTokens  int
	requestCount int
}

// NewJobBudget creates a budget with the given token ceiling.
func NewJobBudget(jobID string, maxTokens int) *JobBudget {
	return &JobBudget{JobID: jobID, MaxTokens: maxTokens}
}

// Remaining returns the token headroom left in the budget.
func (b *JobBudget) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.MaxTokens - b.totalTokens
}

// WouldExceed reports whether spending requestedTokens would exceed the
// remaining headroom.
func (b *JobBudget) WouldExceed(requestedTokens int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.totalTokens+requestedTokens > b.MaxTokens
}

// Record adds usage to the running total and increments the request
// counter. Called only after a successful provider response.
func (b *JobBudget) Record(promptTokens, completionTokens int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.totalTokens += promptTokens + completionTokens
	b.requestCount++
}

// Snapshot returns the budget's current totals.
func (b *JobBudget) Snapshot() (totalTokens, requestCount int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.totalTokens, b.requestCount
}

// FileChange is one entry of GeneratorResponseContract.ChangedFiles.
type FileChange struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// GeneratorResponseContract is the schema-validated envelope every
// codegen/repair/critic response must conform to before it is accepted.
type GeneratorResponseContract struct {
	Stage            string            `json:"stage"`
	Module           string            `json:"module"`
	ChangedFiles     []FileChange      `json:"changed_files"`
	DeletedFiles     []string          `json:"deleted_files"`
	Assumptions      string            `json:"assumptions,omitempty"`
	Rationale        string            `json:"rationale,omitempty"`
	Policy           string            `json:"policy,omitempty"`
	ValidationReport *artifact.Report  `json:"validation_report,omitempty"`
}

// ResponseMetadata describes which preference satisfied a generate()
// call and how much it cost.
type ResponseMetadata struct {
	Provider string
	Model    string
	Attempt  int // 1-based index into the purpose's preference list
	Usage    Usage
}

// Usage is a provider response's token accounting.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}
