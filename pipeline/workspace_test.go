package pipeline

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkspace_BuildScaffoldsModule(t *testing.T) {
	ws := NewWorkspace(t.TempDir())

	manifest, err := ws.Build(BuildSpec{
		Name: "Plaid", Category: "finance", Platform: "plaid",
		Description: "bank account data", RequiresAPIKey: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "finance/plaid", manifest.ModuleID())
	assert.Equal(t, StatusPending, manifest.Status)
	assert.Equal(t, AuthAPIKey, manifest.AuthType)
	assert.True(t, ws.Exists("finance", "plaid"))

	files, err := ws.ReadFiles("finance", "plaid")
	require.NoError(t, err)
	assert.Contains(t, files, filepath.Join("finance", "plaid", "manifest.json"))
	assert.Contains(t, files, filepath.Join("finance", "plaid", "adapter.go"))
	assert.Contains(t, files, filepath.Join("finance", "plaid", "adapter_test.go"))
}

func TestWorkspace_BuildRejectsDuplicate(t *testing.T) {
	ws := NewWorkspace(t.TempDir())
	spec := BuildSpec{Name: "Plaid", Category: "finance", Platform: "plaid"}

	_, err := ws.Build(spec)
	require.NoError(t, err)

	_, err = ws.Build(spec)
	assert.Error(t, err)
}

func TestWorkspace_WriteCodeResetsToPending(t *testing.T) {
	ws := NewWorkspace(t.TempDir())
	manifest, err := ws.Build(BuildSpec{Name: "Plaid", Category: "finance", Platform: "plaid"})
	require.NoError(t, err)

	manifest.Status = StatusValidated
	err = ws.WriteCode(&manifest, "package plaid\n", "")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, manifest.Status)

	files, err := ws.ReadFiles("finance", "plaid")
	require.NoError(t, err)
	assert.Equal(t, "package plaid\n", string(files[filepath.Join("finance", "plaid", "adapter.go")]))
}
