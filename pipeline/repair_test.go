package pipeline

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/nexuscore/nexus/artifact"
	"github.com/nexuscore/nexus/gateway"
	"github.com/nexuscore/nexus/sandbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRepairProvider struct {
	name string
	fns  []func() (gateway.ChatResponse, error)
	n    int
}

func (f *fakeRepairProvider) Name() string { return f.name }
func (f *fakeRepairProvider) Generate(ctx context.Context, req gateway.ChatRequest) (gateway.ChatResponse, error) {
	fn := f.fns[f.n]
	if f.n < len(f.fns)-1 {
		f.n++
	}
	return fn()
}
func (f *fakeRepairProvider) GenerateStream(ctx context.Context, req gateway.ChatRequest) (<-chan string, error) {
	return nil, nil
}
func (f *fakeRepairProvider) ListModels(ctx context.Context) ([]gateway.ModelInfo, error) {
	return nil, nil
}
func (f *fakeRepairProvider) HealthCheck(ctx context.Context) bool { return true }

func repairContract(moduleID, content string) (gateway.ChatResponse, error) {
	body, _ := json.Marshal(gateway.GeneratorResponseContract{
		Stage:   "repair",
		Module:  moduleID,
		ChangedFiles: []gateway.FileChange{
			{Path: "modules/" + moduleID + "/adapter.go", Content: content},
		},
	})
	return gateway.ChatResponse{Content: string(body)}, nil
}

func repairTestGateway(provider gateway.Provider) *gateway.Gateway {
	policy := gateway.RoutingPolicy{
		gateway.PurposeRepair: {{Provider: "github", Model: "gpt-4o-mini", Priority: 1}},
	}
	return gateway.New(map[string]gateway.Provider{"github": provider}, policy, gateway.DefaultBudgetConfig(), nil, nil)
}

func TestRepairLoop_SucceedsOnFirstFix(t *testing.T) {
	ws := NewWorkspace(t.TempDir())
	manifest, err := ws.Build(BuildSpec{Name: "Plaid", Category: "finance", Platform: "plaid"})
	require.NoError(t, err)

	validator := NewValidator(sandbox.ModuleValidationPolicy(), sandbox.NewRunner(sandbox.DefaultRunLimits()), []string{"modules/finance/plaid"})
	badSrc := []byte(brokenValidateAdapter)
	initial := validator.Validate(context.Background(), "finance/plaid", badSrc, "")
	require.False(t, initial.Passed())

	provider := &fakeRepairProvider{name: "github", fns: []func() (gateway.ChatResponse, error){
		func() (gateway.ChatResponse, error) { return repairContract("finance/plaid", validValidateAdapter) },
	}}
	loop := NewRepairLoop(repairTestGateway(provider), validator, ws, nil)

	log := loop.Run(context.Background(), "job-1", &manifest, initial, badSrc, []string{"modules/finance/plaid"})
	assert.Equal(t, "success", log.FinalStatus)
	assert.Equal(t, StatusValidated, manifest.Status)
	assert.Len(t, log.Attempts, 2) // 1 failed validate + 1 success validate
}

func TestRepairLoop_StopsOnThrash(t *testing.T) {
	ws := NewWorkspace(t.TempDir())
	manifest, err := ws.Build(BuildSpec{Name: "Plaid", Category: "finance", Platform: "plaid"})
	require.NoError(t, err)

	validator := NewValidator(sandbox.ModuleValidationPolicy(), sandbox.NewRunner(sandbox.DefaultRunLimits()), []string{"modules/finance/plaid"})
	badSrc := []byte(brokenValidateAdapter)
	initial := validator.Validate(context.Background(), "finance/plaid", badSrc, "")
	require.False(t, initial.Passed())

	provider := &fakeRepairProvider{name: "github", fns: []func() (gateway.ChatResponse, error){
		func() (gateway.ChatResponse, error) { return repairContract("finance/plaid", brokenValidateAdapter) },
	}}
	loop := NewRepairLoop(repairTestGateway(provider), validator, ws, nil)

	log := loop.Run(context.Background(), "job-2", &manifest, initial, badSrc, []string{"modules/finance/plaid"})
	assert.Equal(t, "failed", log.FinalStatus)
	assert.Equal(t, StatusFailed, manifest.Status)
	assert.True(t, log.HasConsecutiveIdenticalFailures())
}

func TestRepairLoop_StopsImmediatelyOnTerminalFailure(t *testing.T) {
	ws := NewWorkspace(t.TempDir())
	manifest, err := ws.Build(BuildSpec{Name: "Plaid", Category: "finance", Platform: "plaid"})
	require.NoError(t, err)

	validator := NewValidator(sandbox.ModuleValidationPolicy(), sandbox.NewRunner(sandbox.DefaultRunLimits()), nil)
	terminal := artifact.Report{
		Status:   artifact.ValidationFailed,
		ModuleID: "finance/plaid",
		FixHints: []artifact.FixHint{{Category: artifact.CategoryPolicyViolation, Message: "forbidden"}},
	}

	loop := NewRepairLoop(repairTestGateway(&fakeRepairProvider{name: "github"}), validator, ws, nil)
	log := loop.Run(context.Background(), "job-3", &manifest, terminal, []byte(brokenValidateAdapter), nil)
	assert.Equal(t, "failed", log.FinalStatus)
	assert.Len(t, log.Attempts, 1)
}
