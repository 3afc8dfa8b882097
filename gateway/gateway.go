package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/nexuscore/nexus/core"
	"github.com/nexuscore/nexus/resilience"
)

// Gateway dispatches generate() requests to purpose-lane model
// preferences with deterministic fallback, bounded retry+jitter,
// schema-validated responses, and per-job budget enforcement.
//
// Grounded on
// _examples/original_source/shared/providers/llm_gateway.py::LLMGateway.
type Gateway struct {
	providers map[string]Provider
	policy    RoutingPolicy
	budget    BudgetConfig
	health    *Registry
	log       core.Logger
	telemetry core.Telemetry
	rng       *rand.Rand
}

// New builds a Gateway. providers is keyed by ModelPreference.Provider.
func New(providers map[string]Provider, policy RoutingPolicy, budget BudgetConfig, log core.Logger, telemetry core.Telemetry) *Gateway {
	if log == nil {
		log = &core.NoOpLogger{}
	}
	if telemetry == nil {
		telemetry = &core.NoOpTelemetry{}
	}
	return &Gateway{
		providers: providers,
		policy:    policy,
		budget:    budget,
		health:    NewRegistry(),
		log:       log,
		telemetry: telemetry,
		rng:       rand.New(rand.NewSource(1)),
	}
}

// estimatedTokens is a coarse pre-flight estimate used only for the
// budget pre-check, not for post-hoc accounting (which uses the
// provider's reported usage).
func estimatedTokens(req ChatRequest) int {
	total := 0
	for _, m := range req.Messages {
		total += len(m.Content) / 4
	}
	return total
}

// Generate routes a request through purpose's preference list. allowedDirs
// scopes which file paths a GeneratorResponseContract may touch. jobBudget
// may be nil when the caller doesn't need cross-call budget tracking.
func (g *Gateway) Generate(ctx context.Context, purpose Purpose, messages []ChatMessage, schema map[string]interface{}, allowedDirs []string, jobBudget *JobBudget, temperature float64, seed *int64) (GeneratorResponseContract, ResponseMetadata, error) {
	req := ChatRequest{Messages: messages, Schema: schema, Temperature: temperature, Seed: seed}

	requested := estimatedTokens(req)
	if requested > g.budget.MaxTokensPerRequest {
		return GeneratorResponseContract{}, ResponseMetadata{}, &BudgetExceededError{
			JobID:  jobIDOf(jobBudget),
			Reason: fmt.Sprintf("requested ~%d tokens exceeds per-request max %d", requested, g.budget.MaxTokensPerRequest),
		}
	}
	if jobBudget != nil && jobBudget.WouldExceed(requested) {
		return GeneratorResponseContract{}, ResponseMetadata{}, &BudgetExceededError{
			JobID:  jobBudget.JobID,
			Reason: fmt.Sprintf("requested ~%d tokens exceeds remaining job budget %d", requested, jobBudget.Remaining()),
		}
	}

	prefs := g.policy.Sorted(purpose)
	var errs []error

	ctx, span := g.telemetry.StartSpan(ctx, "gateway.generate")
	defer span.End()
	span.SetAttribute("purpose", string(purpose))

	for i, pref := range prefs {
		attempt := i + 1
		provider, ok := g.providers[pref.Provider]
		if !ok {
			errs = append(errs, fmt.Errorf("%s/%s: %w", pref.Provider, pref.Model, errNoProviderRegistered))
			continue
		}

		h := g.health.Get(pref.Provider)
		if !h.IsAvailable(time.Now()) {
			g.log.Debug("skipping unhealthy provider", map[string]interface{}{"provider": pref.Provider})
			continue
		}

		req.Model = pref.Model
		contract, usage, err := g.callWithRetry(ctx, provider, req)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		if verr := ValidateContract(contract, allowedDirs); verr != nil {
			errs = append(errs, &SchemaValidationError{Provider: pref.Provider, Reason: verr.Error()})
			continue // schema errors never retry the same model
		}

		if jobBudget != nil {
			jobBudget.Record(usage.PromptTokens, usage.CompletionTokens)
		}

		meta := ResponseMetadata{Provider: pref.Provider, Model: pref.Model, Attempt: attempt, Usage: usage}
		g.log.Info("gateway generate succeeded", map[string]interface{}{
			"purpose": string(purpose), "provider": pref.Provider, "attempt": attempt,
		})
		return contract, meta, nil
	}

	return GeneratorResponseContract{}, ResponseMetadata{}, &AllModelsFailedError{Purpose: purpose, Errors: errs}
}

// callWithRetry calls provider.Generate, retrying transient errors
// (rate limit, connection, timeout) with exponential backoff + jitter
// per resilience.ComputeBackoff, up to g.budget.MaxRetries. Auth and
// schema errors are never retried here — auth errors propagate
// immediately to the caller's fallback loop.
func (g *Gateway) callWithRetry(ctx context.Context, provider Provider, req ChatRequest) (GeneratorResponseContract, Usage, error) {
	cfg := resilience.BackoffConfig{
		Base:       time.Duration(g.budget.BaseDelaySeconds * float64(time.Second)),
		Cap:        time.Duration(g.budget.MaxDelaySeconds * float64(time.Second)),
		JitterFrac: 0.5,
	}

	h := g.health.Get(provider.Name())
	var lastErr error

	for attempt := 0; attempt <= g.budget.MaxRetries; attempt++ {
		start := time.Now()
		resp, err := provider.Generate(ctx, req)
		if err == nil {
			h.RecordSuccess(time.Since(start))
			var contract GeneratorResponseContract
			if jerr := json.Unmarshal([]byte(resp.Content), &contract); jerr != nil {
				return GeneratorResponseContract{}, Usage{}, &SchemaValidationError{Provider: provider.Name(), Reason: "response is not valid JSON: " + jerr.Error()}
			}
			return contract, resp.Usage, nil
		}

		h.RecordFailure(time.Now())
		lastErr = err

		var authErr *AuthError
		if errors.As(err, &authErr) {
			return GeneratorResponseContract{}, Usage{}, err // no retry on auth
		}

		retryable := false
		var rl *RateLimitError
		if errors.As(err, &rl) {
			retryable = true
		}
		var ce *ConnectionError
		if errors.As(err, &ce) {
			retryable = true
		}
		if !retryable || attempt == g.budget.MaxRetries {
			break
		}

		delay := resilience.ComputeBackoff(cfg, attempt, g.rng)
		if rl != nil && rl.RetryAfter > 0 {
			delay = time.Duration(rl.RetryAfter * float64(time.Second))
		}

		select {
		case <-ctx.Done():
			return GeneratorResponseContract{}, Usage{}, ctx.Err()
		case <-time.After(delay):
		}
	}

	return GeneratorResponseContract{}, Usage{}, lastErr
}

func jobIDOf(b *JobBudget) string {
	if b == nil {
		return ""
	}
	return b.JobID
}
