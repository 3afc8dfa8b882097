package gateway

import (
	"context"
	"errors"
	"fmt"
)

// ChatMessage is one turn in a chat-completion request.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is what LLMGateway hands to a Provider.
type ChatRequest struct {
	Model       string
	Messages    []ChatMessage
	Schema      map[string]interface{} // JSON schema for response_format
	Temperature float64
	Seed        *int64
}

// ChatResponse is a Provider's successful reply.
type ChatResponse struct {
	Content string
	Usage   Usage
}

// ModelInfo describes one model a provider exposes.
type ModelInfo struct {
	ID          string
	ContextSize int
}

// Provider is the abstract LLM backend contract. Concrete providers
// (OpenAI, Anthropic, GitHub Models, Ollama, ...) implement this; the
// gateway never depends on a concrete provider, only on this interface
// plus RoutingPolicy to pick one.
type Provider interface {
	Name() string
	Generate(ctx context.Context, req ChatRequest) (ChatResponse, error)
	GenerateStream(ctx context.Context, req ChatRequest) (<-chan string, error)
	ListModels(ctx context.Context) ([]ModelInfo, error)
	HealthCheck(ctx context.Context) bool
}

// Typed provider errors. AuthError and SchemaValidationError are never
// retried against the same model; RateLimitError and ConnectionError are
// retried with backoff; AllModelsFailedError is the terminal-but-
// recoverable condition raised once every preference is exhausted.

// AuthError indicates the provider rejected credentials.
type AuthError struct {
	Provider string
	Err      error
}

func (e *AuthError) Error() string { return fmt.Sprintf("auth error (%s): %v", e.Provider, e.Err) }
func (e *AuthError) Unwrap() error { return e.Err }

// RateLimitError indicates the provider is throttling; may include a
// server-provided Retry-After hint in seconds (0 means none given).
type RateLimitError struct {
	Provider   string
	RetryAfter float64
	Err        error
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited (%s): %v", e.Provider, e.Err)
}
func (e *RateLimitError) Unwrap() error { return e.Err }

// ConnectionError indicates a transient network/connection failure.
type ConnectionError struct {
	Provider string
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection error (%s): %v", e.Provider, e.Err)
}
func (e *ConnectionError) Unwrap() error { return e.Err }

// SchemaValidationError indicates the provider's response failed
// GeneratorResponseContract validation.
type SchemaValidationError struct {
	Provider string
	Reason   string
}

func (e *SchemaValidationError) Error() string {
	return fmt.Sprintf("schema validation failed (%s): %s", e.Provider, e.Reason)
}

// BudgetExceededError indicates the call was rejected before any
// provider was contacted, because it would exceed the job's token
// budget or the per-request cap.
type BudgetExceededError struct {
	JobID   string
	Reason  string
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("budget exceeded (job=%s): %s", e.JobID, e.Reason)
}

// AllModelsFailedError is raised when every preference in a purpose lane
// has been tried and none succeeded.
type AllModelsFailedError struct {
	Purpose Purpose
	Errors  []error
}

func (e *AllModelsFailedError) Error() string {
	return fmt.Sprintf("all models failed for purpose %q (%d attempts)", e.Purpose, len(e.Errors))
}

var errNoProviderRegistered = errors.New("gateway: no provider registered for preference")
