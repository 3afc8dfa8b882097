package artifact

// ValidationStatus is the outcome of a module validate pass.
type ValidationStatus string

const (
	ValidationValidated ValidationStatus = "VALIDATED"
	ValidationFailed    ValidationStatus = "FAILED"
	ValidationError     ValidationStatus = "ERROR"
)

// FixHint is a structured, LLM-consumable correction hint attached to a
// failing validation report: category names the kind of problem, the
// rest give the repair step enough context to act without re-deriving it.
type FixHint struct {
	Category   string `json:"category"`
	Message    string `json:"message"`
	Context    string `json:"context,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
	LineNumber int    `json:"line_number,omitempty"`
}

// Fix hint categories, mapped onto from static/runtime validation
// failures per spec.md §4.2.
const (
	CategoryImportViolation = "import_violation"
	CategoryMissingMethod   = "missing_method"
	CategorySyntaxError     = "syntax_error"
	CategoryTestFailure     = "test_failure"
	CategorySchemaError     = "schema_error"
	CategoryPolicyViolation = "policy_violation"
	CategoryBudgetExceeded  = "budget_exceeded"
)

// StaticResult is the outcome of the no-sandbox static checks: syntax,
// AST contract compliance, manifest schema, path allowlist.
type StaticResult struct {
	Passed          bool     `json:"passed"`
	ForbiddenImports []string `json:"forbidden_imports,omitempty"`
	MissingMethods  []string `json:"missing_methods,omitempty"`
	SyntaxErrors    []string `json:"syntax_errors,omitempty"`
}

// RuntimeResult is the outcome of executing the test file under the
// sandbox's module_validation policy.
type RuntimeResult struct {
	ExitCode    int    `json:"exit_code"`
	Stdout      string `json:"stdout"`
	Stderr      string `json:"stderr"`
	DurationMs  int64  `json:"duration_ms"`
	Passed      int    `json:"passed"`
	Failed      int    `json:"failed"`
	Errored     int    `json:"errored"`
	TimedOut    bool   `json:"timed_out"`
	MemExceeded bool   `json:"memory_exceeded"`
}

// Report is the merged static+runtime validation outcome for one
// build/repair attempt.
type Report struct {
	Status        ValidationStatus `json:"status"`
	ModuleID      string           `json:"module_id"`
	StaticResults StaticResult     `json:"static_results"`
	RuntimeResults RuntimeResult   `json:"runtime_results"`
	FixHints      []FixHint        `json:"fix_hints"`
	Artifacts     []string         `json:"artifacts"`
	ValidatedAt   string           `json:"validated_at"`
}

// Passed reports whether the report represents a fully validated attempt.
func (r Report) Passed() bool {
	return r.Status == ValidationValidated
}
