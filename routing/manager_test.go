package routing

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexuscore/nexus/core"
)

func TestNewManager_CreatesDefaultOnMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "routing_config.json")

	m, err := NewManager(path, &core.NoOpLogger{})
	require.NoError(t, err)

	cfg := m.Get()
	assert.Equal(t, "1.0", cfg.Version)
	assert.NotEmpty(t, cfg.Categories)

	// File should now exist on disk (atomic persist of the default).
	m2, err := NewManager(path, &core.NoOpLogger{})
	require.NoError(t, err)
	assert.Equal(t, cfg.Categories, m2.Get().Categories)
}

func TestManager_UpdateNotifiesObserversInOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "routing_config.json")
	m, err := NewManager(path, &core.NoOpLogger{})
	require.NoError(t, err)

	var calls []int
	m.RegisterObserver(func(Config) { calls = append(calls, 1) })
	m.RegisterObserver(func(Config) { calls = append(calls, 2) })

	newCfg := m.Get()
	newCfg.Version = "2.0"
	require.NoError(t, m.Update(newCfg))

	assert.Equal(t, []int{1, 2}, calls)
	assert.Equal(t, "2.0", m.Get().Version)
}

func TestManager_ObserverPanicDoesNotBlockOthers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "routing_config.json")
	m, err := NewManager(path, &core.NoOpLogger{})
	require.NoError(t, err)

	second := false
	m.RegisterObserver(func(Config) { panic("boom") })
	m.RegisterObserver(func(Config) { second = true })

	require.NoError(t, m.Update(m.Get()))
	assert.True(t, second)
}

func TestManager_UpdateRejectsUnknownTier(t *testing.T) {
	path := filepath.Join(t.TempDir(), "routing_config.json")
	m, err := NewManager(path, &core.NoOpLogger{})
	require.NoError(t, err)

	bad := m.Get()
	bad.Categories["bogus"] = CategoryRouting{Tier: "not_a_tier"}

	err = m.Update(bad)
	assert.Error(t, err)
}

func TestManager_ReloadKeepsCurrentOnCorruptFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "routing_config.json")
	m, err := NewManager(path, &core.NoOpLogger{})
	require.NoError(t, err)

	original := m.Get()

	require.NoError(t, os.WriteFile(path, []byte("{ not json"), 0o644))
	got := m.Reload()
	assert.Equal(t, original.Version, got.Version)
}
