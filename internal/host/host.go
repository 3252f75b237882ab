// Package host declares the capabilities a host application hands to its
// plugins: routing, an event bus, JSON storage, configuration and asset
// loading.
package host

import (
	"context"
	"errors"
	"io/fs"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/stephanedenis/pensine-plugin-calendar/internal/ui"
)

// ErrRouteDisabled is returned by a route handler whose plugin is disabled.
var ErrRouteDisabled = errors.New("route disabled")

// RouteHandler renders a route. Params holds the named path segments. A nil
// element with a nil error means the handler produced no content (usually
// because it navigated elsewhere).
type RouteHandler func(ctx context.Context, params map[string]string) (ui.Element, error)

// EventHandler receives an emitted payload.
type EventHandler func(ctx context.Context, payload any)

type Router interface {
	// Register binds a path template such as "/calendar/:date" to h.
	Register(path string, h RouteHandler)
	Navigate(ctx context.Context, path string)
}

type Events interface {
	// On subscribes h to name on behalf of owner.
	On(name string, h EventHandler, owner string)
	// Off drops every subscription held by owner.
	Off(owner string)
	Emit(ctx context.Context, name string, payload any)
}

type Storage interface {
	WriteJSON(ctx context.Context, path string, v any) error
	ReadJSON(ctx context.Context, path string, v any) error
	// List returns the paths of all files below prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}

type Config interface {
	// Get decodes the value stored under key into target.
	Get(ctx context.Context, key string, target any) error
}

// SchemaRegistrar is implemented by config services that can describe and
// validate plugin settings.
type SchemaRegistrar interface {
	RegisterPluginSchema(id string, schema *jsonschema.Schema, defaults any) error
}

// PluginConfigSource is implemented by config services that resolve a
// plugin's settings against its registered defaults.
type PluginConfigSource interface {
	GetPluginConfig(ctx context.Context, id string, target any) error
}

type Assets interface {
	// Mount exposes fsys under prefix so stylesheets and scripts can be
	// referenced by path.
	Mount(prefix string, fsys fs.FS)
	AddStylesheet(href string) error
	AddScript(ctx context.Context, src string) error
}

// Context bundles the host capabilities. Config may be nil.
type Context struct {
	Router  Router
	Events  Events
	Storage Storage
	Config  Config
	Assets  Assets
}
