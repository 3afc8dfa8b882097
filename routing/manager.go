package routing

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/nexuscore/nexus/core"
)

// Observer is notified synchronously, outside the manager's lock, every
// time the routing config changes (initial load excluded). Grounded on
// config_manager.py's register_observer/_notify_observers: each observer
// is called in registration order and a panicking/erroring observer never
// prevents the rest from running.
type Observer func(Config)

// Manager owns the lifecycle of the routing Config: load-or-default,
// atomic persistence, hot reload from disk, and change notification.
// Safe for concurrent use.
type Manager struct {
	path string
	log  core.Logger

	mu        sync.RWMutex
	config    Config
	observers []Observer

	notifier Notifier // optional, for multi-replica fan-out
}

// Notifier is an optional hook for propagating config changes to other
// replicas of the service (e.g. a Redis pub/sub channel). A nil Notifier
// means this instance is the only one that needs to know.
type Notifier interface {
	Publish(cfg Config) error
}

// NewManager loads path if present, otherwise builds and persists a
// default configuration derived from DefaultCapabilityMap.
func NewManager(path string, log core.Logger) (*Manager, error) {
	if log == nil {
		log = &core.NoOpLogger{}
	}
	m := &Manager{path: path, log: log}
	cfg, err := m.loadOrDefault()
	if err != nil {
		return nil, err
	}
	m.config = cfg
	log.Info("routing manager initialized", map[string]interface{}{
		"path":       path,
		"categories": len(cfg.Categories),
		"tiers":      len(cfg.Tiers),
	})
	return m, nil
}

// SetNotifier attaches an optional cross-replica notifier. Must be called
// before any Update/Reload that should fan out.
func (m *Manager) SetNotifier(n Notifier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifier = n
}

func buildDefaultConfig() Config {
	categories := DefaultCapabilityMap()
	return Config{
		Version:    "1.0",
		Categories: categories,
		Tiers: map[string]TierConfig{
			"heavy":    {Endpoint: envOr("NEXUS_LLM_HEAVY_HOST", "llm-heavy:50051"), Priority: 1, Enabled: true},
			"standard": {Endpoint: envOr("NEXUS_LLM_STANDARD_HOST", "llm-standard:50051"), Priority: 2, Enabled: true},
		},
		Performance: DefaultPerformanceConstraints(),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (m *Manager) loadOrDefault() (Config, error) {
	if m.path != "" {
		if data, err := os.ReadFile(m.path); err == nil {
			var cfg Config
			if err := json.Unmarshal(data, &cfg); err == nil {
				if verr := cfg.Validate(); verr == nil {
					return cfg, nil
				} else {
					m.log.Warn("routing config on disk failed validation, using defaults", map[string]interface{}{"error": verr.Error()})
				}
			} else {
				m.log.Warn("failed to parse routing config, using defaults", map[string]interface{}{"error": err.Error()})
			}
		}
	}

	cfg := buildDefaultConfig()
	if err := m.persist(cfg); err != nil {
		m.log.Error("failed to persist default routing config", map[string]interface{}{"error": err.Error()})
	}
	return cfg, nil
}

// Get returns the current config (thread-safe read).
func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// Update validates, persists, and notifies observers of a new config.
func (m *Manager) Update(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("routing: invalid config: %w", err)
	}

	m.mu.Lock()
	m.config = cfg
	persistErr := m.persist(cfg)
	m.mu.Unlock()

	if persistErr != nil {
		m.log.Error("failed to persist routing config", map[string]interface{}{"error": persistErr.Error()})
	}

	m.notify(cfg)
	m.log.Info("routing config updated", map[string]interface{}{"version": cfg.Version})
	return nil
}

// ErrCategoryNotFound is returned by DeleteCategory when name isn't
// present in the current config.
type ErrCategoryNotFound struct{ Name string }

func (e *ErrCategoryNotFound) Error() string {
	return fmt.Sprintf("routing: category %q not found", e.Name)
}

// UpsertCategory inserts or replaces a single category and goes through
// the same validate/persist/notify path as Update.
func (m *Manager) UpsertCategory(name string, routing CategoryRouting) error {
	m.mu.Lock()
	cfg := m.config
	categories := make(map[string]CategoryRouting, len(cfg.Categories)+1)
	for k, v := range cfg.Categories {
		categories[k] = v
	}
	categories[name] = routing
	cfg.Categories = categories
	m.mu.Unlock()

	return m.Update(cfg)
}

// DeleteCategory removes a single category. Returns ErrCategoryNotFound
// if name isn't present.
func (m *Manager) DeleteCategory(name string) error {
	m.mu.Lock()
	cfg := m.config
	if _, ok := cfg.Categories[name]; !ok {
		m.mu.Unlock()
		return &ErrCategoryNotFound{Name: name}
	}
	categories := make(map[string]CategoryRouting, len(cfg.Categories)-1)
	for k, v := range cfg.Categories {
		if k != name {
			categories[k] = v
		}
	}
	cfg.Categories = categories
	m.mu.Unlock()

	return m.Update(cfg)
}

// Reload re-reads the config from disk and notifies observers. If the
// file is missing or unparsable, the current in-memory config is kept
// and returned unchanged.
func (m *Manager) Reload() Config {
	m.mu.Lock()
	if m.path == "" {
		cfg := m.config
		m.mu.Unlock()
		return cfg
	}
	data, err := os.ReadFile(m.path)
	if err != nil {
		m.log.Warn("routing config file not found on reload, keeping current", nil)
		cfg := m.config
		m.mu.Unlock()
		return cfg
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		m.log.Error("routing config reload failed to parse, keeping current", map[string]interface{}{"error": err.Error()})
		cfg := m.config
		m.mu.Unlock()
		return cfg
	}
	if err := cfg.Validate(); err != nil {
		m.log.Error("routing config reload failed validation, keeping current", map[string]interface{}{"error": err.Error()})
		cfg := m.config
		m.mu.Unlock()
		return cfg
	}
	m.config = cfg
	m.mu.Unlock()

	m.notify(cfg)
	return cfg
}

// RegisterObserver appends a callback invoked after every successful
// Update/Reload, in registration order.
func (m *Manager) RegisterObserver(obs Observer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, obs)
}

func (m *Manager) notify(cfg Config) {
	m.mu.RLock()
	observers := make([]Observer, len(m.observers))
	copy(observers, m.observers)
	notifier := m.notifier
	m.mu.RUnlock()

	for _, obs := range observers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					m.log.Error("routing observer panicked", map[string]interface{}{"panic": fmt.Sprintf("%v", r)})
				}
			}()
			obs(cfg)
		}()
	}

	if notifier != nil {
		if err := notifier.Publish(cfg); err != nil {
			m.log.Error("routing config notifier publish failed", map[string]interface{}{"error": err.Error()})
		}
	}
}

// persist atomically writes cfg to m.path: write to a temp file in the
// same directory, then rename over the destination, so a concurrent
// reader never observes a partial write. Mirrors config_manager.py's
// tempfile.mkstemp + os.replace pattern.
func (m *Manager) persist(cfg Config) error {
	if m.path == "" {
		return nil
	}
	dir := filepath.Dir(m.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".routing-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(cfg); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, m.path)
}
