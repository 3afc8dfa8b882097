package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testManifest() Manifest {
	return Manifest{
		Name: "Plaid", Category: "finance", Platform: "plaid",
		Version: "0.1.0", Status: StatusInstalled, HealthStatus: HealthHealthy,
	}
}

func TestRegistry_InstallAndGet(t *testing.T) {
	r, err := OpenRegistry(":memory:")
	require.NoError(t, err)
	defer r.Close()

	m := testManifest()
	require.NoError(t, r.Install(m))

	entry, ok, err := r.Get("finance/plaid")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Plaid", entry.Name)
	assert.Equal(t, StatusInstalled, entry.Status)
}

func TestRegistry_Uninstall(t *testing.T) {
	r, err := OpenRegistry(":memory:")
	require.NoError(t, err)
	defer r.Close()

	require.NoError(t, r.Install(testManifest()))
	removed, err := r.Uninstall("finance/plaid")
	require.NoError(t, err)
	assert.True(t, removed)

	_, ok, err := r.Get("finance/plaid")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRegistry_SetEnabledTogglesStatus(t *testing.T) {
	r, err := OpenRegistry(":memory:")
	require.NoError(t, err)
	defer r.Close()

	require.NoError(t, r.Install(testManifest()))
	require.NoError(t, r.SetEnabled("finance/plaid", false))

	entry, ok, err := r.Get("finance/plaid")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, StatusDisabled, entry.Status)
}

func TestRegistry_UpdateHealthIncrementsFailureCount(t *testing.T) {
	r, err := OpenRegistry(":memory:")
	require.NoError(t, err)
	defer r.Close()

	require.NoError(t, r.Install(testManifest()))
	require.NoError(t, r.UpdateHealth("finance/plaid", HealthDegraded, true))
	require.NoError(t, r.UpdateHealth("finance/plaid", HealthDown, true))

	entry, _, err := r.Get("finance/plaid")
	require.NoError(t, err)
	assert.Equal(t, HealthDown, entry.HealthStatus)
	assert.Equal(t, 2, entry.FailureCount)
}

func TestRegistry_RecordUsageIncrementsSuccessCount(t *testing.T) {
	r, err := OpenRegistry(":memory:")
	require.NoError(t, err)
	defer r.Close()

	require.NoError(t, r.Install(testManifest()))
	require.NoError(t, r.RecordUsage("finance/plaid"))
	require.NoError(t, r.RecordUsage("finance/plaid"))

	entry, _, err := r.Get("finance/plaid")
	require.NoError(t, err)
	assert.Equal(t, 2, entry.SuccessCount)
}

func TestRegistry_ListFiltersByStatus(t *testing.T) {
	r, err := OpenRegistry(":memory:")
	require.NoError(t, err)
	defer r.Close()

	installed := testManifest()
	disabled := testManifest()
	disabled.Category, disabled.Platform = "finance", "stripe"
	disabled.Status = StatusDisabled

	require.NoError(t, r.Install(installed))
	require.NoError(t, r.Install(disabled))
	require.NoError(t, r.SetEnabled("finance/stripe", false))

	all, err := r.List("")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	onlyInstalled, err := r.List(StatusInstalled)
	require.NoError(t, err)
	require.Len(t, onlyInstalled, 1)
	assert.Equal(t, "finance/plaid", onlyInstalled[0].ModuleID)
}
