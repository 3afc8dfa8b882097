package delegation

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexuscore/nexus/core"
	"github.com/nexuscore/nexus/routing"
)

type fakePool struct {
	tiers     map[routing.Tier]bool
	responses map[routing.Tier][]func(GenerateRequest) (GenerateResult, error)
	calls     map[routing.Tier]int
}

func newFakePool(tiers ...routing.Tier) *fakePool {
	set := make(map[routing.Tier]bool, len(tiers))
	for _, t := range tiers {
		set[t] = true
	}
	return &fakePool{tiers: set, responses: make(map[routing.Tier][]func(GenerateRequest) (GenerateResult, error)), calls: make(map[routing.Tier]int)}
}

func (f *fakePool) on(tier routing.Tier, fn func(GenerateRequest) (GenerateResult, error)) {
	f.responses[tier] = append(f.responses[tier], fn)
}

func (f *fakePool) HasTier(tier routing.Tier) bool { return f.tiers[tier] }

func (f *fakePool) Generate(ctx context.Context, req GenerateRequest) (GenerateResult, error) {
	fns := f.responses[req.Tier]
	i := f.calls[req.Tier]
	f.calls[req.Tier] = i + 1
	if i >= len(fns) {
		return GenerateResult{}, &ErrTierUnavailable{Tier: req.Tier}
	}
	return fns[i](req)
}

func testConfig() routing.Config {
	return routing.Config{
		Categories: routing.DefaultCapabilityMap(),
		Performance: routing.PerformanceConstraints{
			ComplexityThresholdDirect: 0.5,
			SelfConsistencyThreshold:  0.6,
			MaxSubTasks:               5,
		},
	}
}

func jsonResult(v interface{}) (GenerateResult, error) {
	b, _ := json.Marshal(v)
	return GenerateResult{Text: string(b)}, nil
}

func TestAnalyzeAndRoute_SimpleQueryGoesDirect(t *testing.T) {
	pool := newFakePool(routing.TierStandard)
	pool.on(routing.TierStandard, func(GenerateRequest) (GenerateResult, error) {
		return jsonResult(Classification{TaskType: "general", Capabilities: []string{"fast_response"}, Complexity: 0.2})
	})

	mgr := New(pool, &core.NoOpLogger{}, testConfig(), nil)
	decomp, err := mgr.AnalyzeAndRoute(context.Background(), "what time is it", "")
	require.NoError(t, err)
	assert.Equal(t, StrategyDirect, decomp.Strategy)
	require.Len(t, decomp.SubTasks, 1)
	assert.Equal(t, string(routing.TierStandard), decomp.SubTasks[0].TargetTier)
}

func TestAnalyzeAndRoute_ComplexQueryDecomposes(t *testing.T) {
	pool := newFakePool(routing.TierStandard)
	pool.on(routing.TierStandard, func(GenerateRequest) (GenerateResult, error) {
		return jsonResult(Classification{TaskType: "finance", Capabilities: []string{"finance", "analysis"}, Complexity: 0.9})
	})
	pool.on(routing.TierStandard, func(GenerateRequest) (GenerateResult, error) {
		return jsonResult([]decomposedItem{
			{ID: "st_1", Instruction: "pull the filings", Capabilities: []string{"extraction"}},
			{ID: "st_2", Instruction: "analyze the numbers", Capabilities: []string{"analysis"}, DependsOn: []string{"st_1"}},
		})
	})

	mgr := New(pool, &core.NoOpLogger{}, testConfig(), nil)
	decomp, err := mgr.AnalyzeAndRoute(context.Background(), "analyze this company's 10-K", "")
	require.NoError(t, err)
	assert.Equal(t, StrategyDecompose, decomp.Strategy)
	require.Len(t, decomp.SubTasks, 2)
	assert.Equal(t, "st_1", decomp.SubTasks[0].ID)
	assert.Equal(t, []string{"st_1"}, decomp.SubTasks[1].DependsOn)
	assert.Equal(t, string(routing.TierHeavy), decomp.SubTasks[1].TargetTier) // analysis -> heavy
}

func TestAnalyzeAndRoute_ClassificationParseFailureFallsBackToDefaults(t *testing.T) {
	pool := newFakePool(routing.TierStandard)
	pool.on(routing.TierStandard, func(GenerateRequest) (GenerateResult, error) {
		return GenerateResult{Text: "not json"}, nil
	})

	mgr := New(pool, &core.NoOpLogger{}, testConfig(), nil)
	decomp, err := mgr.AnalyzeAndRoute(context.Background(), "anything", "")
	require.NoError(t, err)
	assert.Equal(t, StrategyDirect, decomp.Strategy)
	assert.Equal(t, 0.3, decomp.ComplexityScore)
	assert.Equal(t, []string{"fast_response"}, decomp.SubTasks[0].RequiredCapabilities)
}

func TestExecuteDelegation_RunsInDependencyOrder(t *testing.T) {
	pool := newFakePool(routing.TierStandard, routing.TierHeavy)
	pool.on(routing.TierStandard, func(req GenerateRequest) (GenerateResult, error) {
		return GenerateResult{Text: "fact A"}, nil
	})
	pool.on(routing.TierHeavy, func(req GenerateRequest) (GenerateResult, error) {
		assert.Contains(t, req.Prompt, "[Previous result]: fact A")
		return GenerateResult{Text: "conclusion from A"}, nil
	})

	decomp := &TaskDecomposition{
		SubTasks: []SubTask{
			{ID: "st_1", Instruction: "find fact A", TargetTier: string(routing.TierStandard)},
			{ID: "st_2", Instruction: "conclude", TargetTier: string(routing.TierHeavy), DependsOn: []string{"st_1"}},
		},
	}

	mgr := New(pool, &core.NoOpLogger{}, testConfig(), nil)
	result := mgr.ExecuteDelegation(context.Background(), decomp)
	assert.Equal(t, "fact A", result.Completed["st_1"])
	assert.Equal(t, "conclusion from A", result.Completed["st_2"])
	assert.Equal(t, StatusCompleted, decomp.SubTasks[0].Status)
	assert.Equal(t, StatusCompleted, decomp.SubTasks[1].Status)
}

func TestExecuteDelegation_DependencyDeadlockMarksRemainingFailed(t *testing.T) {
	pool := newFakePool(routing.TierStandard)
	decomp := &TaskDecomposition{
		SubTasks: []SubTask{
			{ID: "st_1", Instruction: "a", TargetTier: string(routing.TierStandard), DependsOn: []string{"st_2"}},
			{ID: "st_2", Instruction: "b", TargetTier: string(routing.TierStandard), DependsOn: []string{"st_1"}},
		},
	}
	mgr := New(pool, &core.NoOpLogger{}, testConfig(), nil)
	result := mgr.ExecuteDelegation(context.Background(), decomp)
	assert.Empty(t, result.Completed)
	assert.Equal(t, StatusFailed, decomp.SubTasks[0].Status)
	assert.Equal(t, "Dependency deadlock", decomp.SubTasks[0].Result)
	assert.Equal(t, StatusFailed, decomp.SubTasks[1].Status)
}

func TestExecuteDelegation_SubTaskFailureIsolated(t *testing.T) {
	pool := newFakePool(routing.TierStandard)
	pool.on(routing.TierStandard, func(req GenerateRequest) (GenerateResult, error) {
		return GenerateResult{}, &ErrTierUnavailable{Tier: routing.TierStandard}
	})
	pool.on(routing.TierStandard, func(req GenerateRequest) (GenerateResult, error) {
		return GenerateResult{Text: "ok"}, nil
	})

	decomp := &TaskDecomposition{
		SubTasks: []SubTask{
			{ID: "st_1", Instruction: "fails", TargetTier: string(routing.TierStandard)},
			{ID: "st_2", Instruction: "succeeds", TargetTier: string(routing.TierStandard)},
		},
	}
	mgr := New(pool, &core.NoOpLogger{}, testConfig(), nil)
	result := mgr.ExecuteDelegation(context.Background(), decomp)
	assert.Equal(t, StatusFailed, decomp.SubTasks[0].Status)
	assert.Equal(t, StatusCompleted, decomp.SubTasks[1].Status)
	assert.Len(t, result.SubResults, 2)
}

func TestAggregateResults_SingleTaskReturnsDirectly(t *testing.T) {
	mgr := New(newFakePool(), &core.NoOpLogger{}, testConfig(), nil)
	decomp := TaskDecomposition{SubTasks: []SubTask{{ID: "st_1", Result: "the answer"}}}
	got, err := mgr.AggregateResults(context.Background(), "q", decomp)
	require.NoError(t, err)
	assert.Equal(t, "the answer", got)
}

func TestAggregateResults_MultiTaskSynthesizes(t *testing.T) {
	pool := newFakePool(routing.TierStandard)
	pool.on(routing.TierStandard, func(req GenerateRequest) (GenerateResult, error) {
		assert.Contains(t, req.Prompt, "synthesizing")
		return GenerateResult{Text: "unified answer"}, nil
	})
	mgr := New(pool, &core.NoOpLogger{}, testConfig(), nil)
	decomp := TaskDecomposition{SubTasks: []SubTask{
		{ID: "st_1", RequiredCapabilities: []string{"extraction"}, Result: "a"},
		{ID: "st_2", RequiredCapabilities: []string{"analysis"}, Result: "b"},
	}}
	got, err := mgr.AggregateResults(context.Background(), "q", decomp)
	require.NoError(t, err)
	assert.Equal(t, "unified answer", got)
}

func TestVerifyResult_SelfConsistencyPasses(t *testing.T) {
	pool := newFakePool(routing.TierStandard)
	pool.on(routing.TierStandard, func(req GenerateRequest) (GenerateResult, error) {
		return GenerateResult{SelfConsistencyScore: 0.8}, nil
	})
	mgr := New(pool, &core.NoOpLogger{}, testConfig(), nil)
	v := mgr.VerifyResult(context.Background(), "q", "a", 0.4)
	assert.True(t, v.Verified)
	assert.Equal(t, MethodSelfConsistency, v.Method)
	assert.Equal(t, 0.8, v.Confidence)
}

func TestVerifyResult_UpgradesToHeavyOnLowConsistency(t *testing.T) {
	pool := newFakePool(routing.TierStandard, routing.TierHeavy)
	pool.on(routing.TierStandard, func(req GenerateRequest) (GenerateResult, error) {
		return GenerateResult{SelfConsistencyScore: 0.2}, nil
	})
	pool.on(routing.TierHeavy, func(req GenerateRequest) (GenerateResult, error) {
		return GenerateResult{Text: "careful answer"}, nil
	})
	mgr := New(pool, &core.NoOpLogger{}, testConfig(), nil)
	v := mgr.VerifyResult(context.Background(), "q", "a", 0.4)
	assert.True(t, v.Verified)
	assert.Equal(t, MethodModelUpgrade, v.Method)
	assert.Equal(t, "careful answer", v.RevisedAnswer)
}

func TestVerifyResult_EscalatesToUltraWhenHeavyAbsentAndComplex(t *testing.T) {
	pool := newFakePool(routing.TierStandard, routing.TierUltra)
	pool.on(routing.TierStandard, func(req GenerateRequest) (GenerateResult, error) {
		return GenerateResult{SelfConsistencyScore: 0.1}, nil
	})
	pool.on(routing.TierUltra, func(req GenerateRequest) (GenerateResult, error) {
		return GenerateResult{Text: "deep answer"}, nil
	})
	mgr := New(pool, &core.NoOpLogger{}, testConfig(), nil)
	v := mgr.VerifyResult(context.Background(), "q", "a", 0.9)
	assert.True(t, v.Verified)
	assert.Equal(t, MethodAirllmDeep, v.Method)
	assert.Equal(t, 0.85, v.Confidence)
}

func TestVerifyResult_FailsClosedWhenNoEscalationAvailable(t *testing.T) {
	pool := newFakePool(routing.TierStandard)
	pool.on(routing.TierStandard, func(req GenerateRequest) (GenerateResult, error) {
		return GenerateResult{SelfConsistencyScore: 0.1}, nil
	})
	mgr := New(pool, &core.NoOpLogger{}, testConfig(), nil)
	v := mgr.VerifyResult(context.Background(), "q", "original", 0.4)
	assert.False(t, v.Verified)
	assert.Equal(t, MethodFailed, v.Method)
	assert.Equal(t, "original", v.RevisedAnswer)
}

func TestOnConfigChanged_UpdatesThresholdsLive(t *testing.T) {
	mgr := New(newFakePool(), &core.NoOpLogger{}, testConfig(), nil)
	newCfg := testConfig()
	newCfg.Performance.ComplexityThresholdDirect = 0.9
	mgr.OnConfigChanged(newCfg)
	complexity, _, _, _ := mgr.thresholds()
	assert.Equal(t, 0.9, complexity)
}
