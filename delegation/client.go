// Package delegation implements the Local Inference Delegation Manager:
// classify → decompose → route → execute → aggregate → verify.
//
// Grounded on
// _examples/original_source/orchestrator/delegation_manager.py.
package delegation

import (
	"context"
	"fmt"

	"github.com/nexuscore/nexus/routing"
)

// GenerateRequest is one tier-routed text generation call.
type GenerateRequest struct {
	Prompt      string
	Tier        routing.Tier
	MaxTokens   int
	Temperature float64
	JSONFormat  bool
	NumSamples  int // >1 requests a self-consistency batch
}

// GenerateResult is a tier client's response, optionally carrying a
// self-consistency score when NumSamples > 1 was requested.
type GenerateResult struct {
	Text                string
	Samples             []string
	SelfConsistencyScore float64
}

// TierPool resolves a routing.Tier to a callable backend and runs
// generation requests against it. Implementations typically wrap a
// gateway.Gateway plus a routing.Config for endpoint lookup.
type TierPool interface {
	// HasTier reports whether a usable backend is configured for tier.
	HasTier(tier routing.Tier) bool
	// Generate runs req against the backend for req.Tier.
	Generate(ctx context.Context, req GenerateRequest) (GenerateResult, error)
}

// ErrTierUnavailable is returned by a TierPool when no backend is
// configured for the requested tier.
type ErrTierUnavailable struct {
	Tier routing.Tier
}

func (e *ErrTierUnavailable) Error() string {
	return fmt.Sprintf("delegation: no backend configured for tier %q", e.Tier)
}
