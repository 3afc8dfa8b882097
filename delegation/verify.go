package delegation

import (
	"context"
	"fmt"

	"github.com/nexuscore/nexus/routing"
)

// VerifyResult runs the cascading verification pass for a high-stakes
// answer: self-consistency on the standard tier, then a model-upgrade
// regeneration on the heavy tier, then an ultra-tier deep verify for
// complex queries, finally failing closed if nothing above confirms it.
func (m *Manager) VerifyResult(ctx context.Context, query, answer string, complexity float64) VerificationResult {
	_, consistencyThreshold, _, _ := m.thresholds()

	if !m.pool.HasTier(routing.TierStandard) {
		return VerificationResult{Verified: true, Method: MethodSkip, Confidence: 0, RevisedAnswer: answer}
	}

	prompt := fmt.Sprintf(`Question: %s

Proposed answer: %s

Is this answer correct and complete? Respond with a JSON object:
{"correct": true/false, "confidence": 0.0-1.0, "issues": "description if any"}`, query, answer)

	batch, err := m.pool.Generate(ctx, GenerateRequest{
		Prompt: prompt, Tier: routing.TierStandard, MaxTokens: 256, Temperature: 0.3, JSONFormat: true, NumSamples: 3,
	})
	if err != nil {
		m.log.Error("verification failed", map[string]interface{}{"error": err.Error()})
		return VerificationResult{Verified: false, Method: MethodFailed, Confidence: 0, RevisedAnswer: answer}
	}

	if batch.SelfConsistencyScore >= consistencyThreshold {
		return VerificationResult{Verified: true, Method: MethodSelfConsistency, Confidence: batch.SelfConsistencyScore, RevisedAnswer: answer}
	}

	m.log.Info("self-consistency low, upgrading to heavy tier", map[string]interface{}{"score": batch.SelfConsistencyScore})
	if m.pool.HasTier(routing.TierHeavy) {
		revised, err := m.pool.Generate(ctx, GenerateRequest{
			Prompt: "Answer this question carefully and completely:\n\n" + query, Tier: routing.TierHeavy, MaxTokens: 1024, Temperature: 0.15,
		})
		if err != nil {
			m.log.Error("verification failed", map[string]interface{}{"error": err.Error()})
			return VerificationResult{Verified: false, Method: MethodFailed, Confidence: 0, RevisedAnswer: answer}
		}
		return VerificationResult{Verified: true, Method: MethodModelUpgrade, Confidence: 0.7, RevisedAnswer: revised.Text}
	}

	if m.pool.HasTier(routing.TierUltra) && complexity > 0.8 {
		m.log.Info("routing to ultra tier for deep verification", nil)
		revised, err := m.pool.Generate(ctx, GenerateRequest{
			Prompt: "Carefully verify and answer:\n\n" + query, Tier: routing.TierUltra, MaxTokens: 1024, Temperature: 0.3,
		})
		if err != nil {
			m.log.Error("verification failed", map[string]interface{}{"error": err.Error()})
			return VerificationResult{Verified: false, Method: MethodFailed, Confidence: 0, RevisedAnswer: answer}
		}
		return VerificationResult{Verified: true, Method: MethodAirllmDeep, Confidence: 0.85, RevisedAnswer: revised.Text}
	}

	return VerificationResult{Verified: false, Method: MethodFailed, Confidence: 0, RevisedAnswer: answer}
}
