package delegation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexuscore/nexus/routing"
)

func chatCompletionServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": content}},
			},
		})
	}))
}

func TestHTTPTierPool_HasTier(t *testing.T) {
	srv := chatCompletionServer(t, "ok")
	defer srv.Close()

	cfg := routing.Config{Tiers: map[string]routing.TierConfig{
		"standard": {Endpoint: srv.URL, Enabled: true},
		"heavy":    {Endpoint: srv.URL, Enabled: false},
	}}
	pool := NewHTTPTierPool(cfg, "")

	assert.True(t, pool.HasTier(routing.TierStandard))
	assert.False(t, pool.HasTier(routing.TierHeavy))
}

func TestHTTPTierPool_GenerateSingleSample(t *testing.T) {
	srv := chatCompletionServer(t, "hello world")
	defer srv.Close()

	cfg := routing.Config{Tiers: map[string]routing.TierConfig{"standard": {Endpoint: srv.URL, Enabled: true}}}
	pool := NewHTTPTierPool(cfg, "")

	result, err := pool.Generate(context.Background(), GenerateRequest{Prompt: "hi", Tier: routing.TierStandard})
	require.NoError(t, err)
	assert.Equal(t, "hello world", result.Text)
	assert.Zero(t, result.SelfConsistencyScore)
}

func TestHTTPTierPool_GenerateUnavailableTier(t *testing.T) {
	pool := NewHTTPTierPool(routing.Config{}, "")
	_, err := pool.Generate(context.Background(), GenerateRequest{Prompt: "hi", Tier: routing.TierUltra})
	require.Error(t, err)
	var unavailable *ErrTierUnavailable
	require.ErrorAs(t, err, &unavailable)
}

func TestMajorityAgreement(t *testing.T) {
	assert.Equal(t, 1.0, majorityAgreement([]string{"yes", "Yes", " yes "}))
	assert.InDelta(t, 2.0/3.0, majorityAgreement([]string{"yes", "yes", "no"}), 0.0001)
}
