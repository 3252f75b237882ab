// Package settings is the host configuration service. It keeps the raw
// values read from the host config file and, for plugins that register a
// schema, merges them over the plugin defaults and validates the result.
package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"sync"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/google/jsonschema-go/jsonschema"

	"github.com/stephanedenis/pensine-plugin-calendar/internal/host"
)

type registration struct {
	schema   *jsonschema.Schema
	resolved *jsonschema.Resolved
	defaults map[string]any
}

// Service implements host.Config, host.SchemaRegistrar and
// host.PluginConfigSource.
type Service struct {
	mu      sync.RWMutex
	values  map[string]map[string]any
	schemas map[string]*registration
	logger  log.Logger
}

var (
	_ host.Config             = (*Service)(nil)
	_ host.SchemaRegistrar    = (*Service)(nil)
	_ host.PluginConfigSource = (*Service)(nil)
)

// New creates a service seeded with per-key values.
func New(values map[string]map[string]any, logger log.Logger) *Service {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	s := &Service{
		values:  make(map[string]map[string]any, len(values)),
		schemas: make(map[string]*registration),
		logger:  log.With(logger, "component", "settings"),
	}
	for k, v := range values {
		s.values[k] = normalize(v)
	}
	return s
}

// normalize round-trips v through JSON so numbers and nested maps look the
// same whether they came from YAML, code or a request body.
func normalize(v map[string]any) map[string]any {
	if v == nil {
		return map[string]any{}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return maps.Clone(v)
	}
	out := map[string]any{}
	if err := json.Unmarshal(data, &out); err != nil {
		return maps.Clone(v)
	}
	return out
}

func toMap(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func decode(v map[string]any, target any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, target)
}

// RegisterPluginSchema records the schema and defaults for plugin id.
// Registering again replaces the previous registration.
func (s *Service) RegisterPluginSchema(id string, schema *jsonschema.Schema, defaults any) error {
	resolved, err := schema.Resolve(nil)
	if err != nil {
		return fmt.Errorf("resolve schema for %s: %w", id, err)
	}
	def, err := toMap(defaults)
	if err != nil {
		return fmt.Errorf("encode defaults for %s: %w", id, err)
	}
	if err := resolved.Validate(def); err != nil {
		return fmt.Errorf("defaults for %s: %w", id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.schemas[id] = &registration{schema: schema, resolved: resolved, defaults: def}
	level.Debug(s.logger).Log("msg", "schema registered", "plugin", id)
	return nil
}

// Schema returns the schema registered for plugin id.
func (s *Service) Schema(id string) (*jsonschema.Schema, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	reg, ok := s.schemas[id]
	if !ok {
		return nil, false
	}
	return reg.schema, true
}

func (s *Service) merged(key string) (map[string]any, *registration) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	reg := s.schemas[key]
	out := map[string]any{}
	if reg != nil {
		maps.Copy(out, reg.defaults)
	}
	maps.Copy(out, s.values[key])
	return out, reg
}

// Get decodes the values stored under key, layered over registered
// defaults, into target. Unknown keys decode as an empty object.
func (s *Service) Get(ctx context.Context, key string, target any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	v, _ := s.merged(key)
	if err := decode(v, target); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

// GetPluginConfig is Get plus validation against the registered schema.
func (s *Service) GetPluginConfig(ctx context.Context, id string, target any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	v, reg := s.merged(id)
	if reg != nil {
		if err := reg.resolved.Validate(v); err != nil {
			return fmt.Errorf("invalid %s config: %w", id, err)
		}
	}
	if err := decode(v, target); err != nil {
		return fmt.Errorf("decode %s config: %w", id, err)
	}
	return nil
}

// Set replaces the raw values stored under key.
func (s *Service) Set(key string, v map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = normalize(v)
}
