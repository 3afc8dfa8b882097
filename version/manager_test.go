package version

import (
	"testing"

	"github.com/nexuscore/nexus/artifact"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	audit, err := artifact.NewDevModeLog(t.TempDir())
	require.NoError(t, err)
	m, err := OpenManager(":memory:", audit)
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}

func TestManager_RecordVersionSetsInitialActive(t *testing.T) {
	m := newTestManager(t)

	versionID, err := m.RecordVersion("finance/plaid", "hash1", "alice", "generated", "", nil)
	require.NoError(t, err)
	assert.NotEmpty(t, versionID)

	active, err := m.GetActiveVersion("finance/plaid", "")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, versionID, active.VersionID)
}

func TestManager_SecondVersionDoesNotAutoActivate(t *testing.T) {
	m := newTestManager(t)

	v1, err := m.RecordVersion("finance/plaid", "hash1", "alice", "generated", "", nil)
	require.NoError(t, err)
	_, err = m.RecordVersion("finance/plaid", "hash2", "alice", "generated", "", nil)
	require.NoError(t, err)

	active, err := m.GetActiveVersion("finance/plaid", "")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, v1, active.VersionID)
}

func TestManager_ListVersionsNewestFirst(t *testing.T) {
	m := newTestManager(t)

	_, err := m.RecordVersion("finance/plaid", "hash1", "alice", "generated", "", nil)
	require.NoError(t, err)
	_, err = m.RecordVersion("finance/plaid", "hash2", "alice", "draft_promoted", "", nil)
	require.NoError(t, err)

	versions, err := m.ListVersions("finance/plaid", "")
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, "hash2", versions[0].BundleSHA256)
}

func TestManager_RollbackMovesPointerWithoutDeletingVersions(t *testing.T) {
	m := newTestManager(t)

	v1, err := m.RecordVersion("finance/plaid", "hash1", "alice", "generated", "", nil)
	require.NoError(t, err)
	v2, err := m.RecordVersion("finance/plaid", "hash2", "alice", "generated", "", nil)
	require.NoError(t, err)
	_, err = m.RollbackToVersion("finance/plaid", v2, "alice", "activate v2", "")
	require.NoError(t, err)

	result, err := m.RollbackToVersion("finance/plaid", v1, "alice", "regression in v2", "")
	require.NoError(t, err)
	assert.Equal(t, v2, result.FromVersion)
	assert.Equal(t, v1, result.ToVersion)
	assert.Equal(t, "hash1", result.BundleSHA256)

	active, err := m.GetActiveVersion("finance/plaid", "")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, v1, active.VersionID)

	versions, err := m.ListVersions("finance/plaid", "")
	require.NoError(t, err)
	assert.Len(t, versions, 2)
}

func TestManager_RollbackRejectsUnknownVersion(t *testing.T) {
	m := newTestManager(t)
	_, err := m.RecordVersion("finance/plaid", "hash1", "alice", "generated", "", nil)
	require.NoError(t, err)

	_, err = m.RollbackToVersion("finance/plaid", "nope", "alice", "", "")
	var notFound *ErrVersionNotFound
	assert.ErrorAs(t, err, &notFound)
}

func TestManager_GetActiveVersionReturnsNilWhenNoneSet(t *testing.T) {
	m := newTestManager(t)
	active, err := m.GetActiveVersion("unknown/module", "")
	require.NoError(t, err)
	assert.Nil(t, active)
}
