package delegation

import (
	"context"
	"strings"

	"github.com/nexuscore/nexus/gateway"
	"github.com/nexuscore/nexus/routing"
)

// HTTPTierPool implements TierPool by resolving each configured
// routing.Tier to its own gateway.HTTPProvider, built from
// routing.Config's tiers{endpoint,...} table — the same config-driven
// endpoint map spec.md's routing config persists. Unlike gateway.Gateway
// (purpose-lane fallback across providers for module codegen),
// HTTPTierPool is a direct one-tier-one-endpoint caller for the
// delegation manager's classify/decompose/verify prompts, which want
// raw text back, not a GeneratorResponseContract.
//
// Grounded on _examples/original_source/orchestrator/delegation_manager.py's
// TierPool/get_client(tier) indirection.
type HTTPTierPool struct {
	providers map[routing.Tier]*gateway.HTTPProvider
}

// NewHTTPTierPool builds a pool from cfg's enabled tiers, authenticating
// every tier's endpoint with the same apiKey (tiers are assumed to be
// the same backend family; a per-tier key can be added by constructing
// providers directly when that stops being true).
func NewHTTPTierPool(cfg routing.Config, apiKey string) *HTTPTierPool {
	providers := make(map[routing.Tier]*gateway.HTTPProvider)
	for name, endpoint := range cfg.TierEndpoints() {
		providers[routing.Tier(name)] = gateway.NewHTTPProvider(name, endpoint, apiKey)
	}
	return &HTTPTierPool{providers: providers}
}

// HasTier implements TierPool.
func (p *HTTPTierPool) HasTier(tier routing.Tier) bool {
	_, ok := p.providers[tier]
	return ok
}

// Generate implements TierPool, issuing req.NumSamples (or 1) chat
// completions against the tier's provider and, when more than one
// sample was requested, scoring majority agreement across them as
// SelfConsistencyScore.
func (p *HTTPTierPool) Generate(ctx context.Context, req GenerateRequest) (GenerateResult, error) {
	provider, ok := p.providers[req.Tier]
	if !ok {
		return GenerateResult{}, &ErrTierUnavailable{Tier: req.Tier}
	}

	n := req.NumSamples
	if n < 1 {
		n = 1
	}

	chatReq := gateway.ChatRequest{
		Messages:    []gateway.ChatMessage{{Role: "user", Content: req.Prompt}},
		Temperature: req.Temperature,
	}
	if req.JSONFormat {
		chatReq.Schema = map[string]interface{}{"type": "object"}
	}

	samples := make([]string, 0, n)
	for i := 0; i < n; i++ {
		resp, err := provider.Generate(ctx, chatReq)
		if err != nil {
			return GenerateResult{}, err
		}
		samples = append(samples, resp.Content)
	}

	result := GenerateResult{Text: samples[0], Samples: samples}
	if n > 1 {
		result.SelfConsistencyScore = majorityAgreement(samples)
	}
	return result, nil
}

// majorityAgreement scores self-consistency as the fraction of samples
// matching the most common normalized sample, the majority-vote scheme
// self-consistency prompting is named for.
func majorityAgreement(samples []string) float64 {
	counts := make(map[string]int, len(samples))
	best := 0
	for _, s := range samples {
		key := strings.ToLower(strings.TrimSpace(s))
		counts[key]++
		if counts[key] > best {
			best = counts[key]
		}
	}
	return float64(best) / float64(len(samples))
}
