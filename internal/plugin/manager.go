package plugin

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
)

// Status describes a plugin instance.
type Status struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
}

type instance struct {
	plugin  Plugin
	enabled bool
}

// Manager handles plugin instances and their lifecycle. Plugins are enabled
// in the order they were added and disabled in reverse.
type Manager struct {
	mu        sync.RWMutex
	order     []string
	instances map[string]*instance
	logger    log.Logger
}

// NewManager creates a new plugin manager
func NewManager(logger log.Logger) *Manager {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Manager{
		instances: make(map[string]*instance),
		logger:    log.With(logger, "component", "plugins"),
	}
}

// Add adds a plugin instance. Adding a second plugin with the same id
// fails.
func (m *Manager) Add(p Plugin) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := p.ID()
	if _, exists := m.instances[id]; exists {
		return fmt.Errorf("plugin %s already added", id)
	}
	m.instances[id] = &instance{plugin: p}
	m.order = append(m.order, id)
	return nil
}

// Get retrieves a plugin instance by id
func (m *Manager) Get(id string) (Plugin, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inst, ok := m.instances[id]
	if !ok {
		return nil, false
	}
	return inst.plugin, true
}

// Enable enables plugin id.
func (m *Manager) Enable(ctx context.Context, id string) error {
	m.mu.RLock()
	inst, ok := m.instances[id]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("plugin %s not found", id)
	}

	if err := inst.plugin.Enable(ctx); err != nil {
		return fmt.Errorf("enable %s: %w", id, err)
	}

	m.mu.Lock()
	inst.enabled = true
	m.mu.Unlock()
	level.Info(m.logger).Log("msg", "plugin enabled", "plugin", id)
	return nil
}

// Disable disables plugin id.
func (m *Manager) Disable(ctx context.Context, id string) error {
	m.mu.RLock()
	inst, ok := m.instances[id]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("plugin %s not found", id)
	}

	if err := inst.plugin.Disable(ctx); err != nil {
		return fmt.Errorf("disable %s: %w", id, err)
	}

	m.mu.Lock()
	inst.enabled = false
	m.mu.Unlock()
	level.Info(m.logger).Log("msg", "plugin disabled", "plugin", id)
	return nil
}

func (m *Manager) ids() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.order...)
}

// EnableAll enables every plugin. A plugin that fails stays disabled and
// does not stop the others; all failures are returned together.
func (m *Manager) EnableAll(ctx context.Context) error {
	var errs []error
	for _, id := range m.ids() {
		if err := m.Enable(ctx, id); err != nil {
			level.Error(m.logger).Log("msg", "enable plugin", "plugin", id, "err", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// DisableAll disables every enabled plugin, last added first.
func (m *Manager) DisableAll(ctx context.Context) error {
	ids := m.ids()
	var errs []error
	for i := len(ids) - 1; i >= 0; i-- {
		m.mu.RLock()
		enabled := m.instances[ids[i]].enabled
		m.mu.RUnlock()
		if !enabled {
			continue
		}
		if err := m.Disable(ctx, ids[i]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// List returns the status of every plugin in the order they were added.
func (m *Manager) List() []Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Status, 0, len(m.order))
	for _, id := range m.order {
		inst := m.instances[id]
		out = append(out, Status{ID: id, Name: inst.plugin.Name(), Enabled: inst.enabled})
	}
	return out
}
