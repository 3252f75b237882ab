package plugin

import (
	"context"

	"github.com/go-kit/kit/log"

	"github.com/stephanedenis/pensine-plugin-calendar/internal/host"
)

// Plugin is the interface that all pensine plugins must implement
type Plugin interface {
	// ID returns the unique id of this plugin
	ID() string

	// Name returns the display name
	Name() string

	// Enable registers the plugin's routes and listeners with the host
	Enable(ctx context.Context) error

	// Disable removes the plugin's listeners; its routes stop answering
	Disable(ctx context.Context) error
}

// Factory builds a plugin bound to a host.
type Factory func(hc host.Context, logger log.Logger) Plugin
