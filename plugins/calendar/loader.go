package calendar

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sync"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"

	"github.com/stephanedenis/pensine-plugin-calendar/internal/host"
)

const pluginPath = "plugins/pensine-plugin-calendar"

//go:embed assets
var embedded embed.FS

// Assets returns the stylesheet and scripts shipped with the plugin.
func Assets() fs.FS {
	sub, err := fs.Sub(embedded, "assets")
	if err != nil {
		panic(err)
	}
	return sub
}

const stylesheet = "styles/calendar.css"

// Scripts load in order: the widget depends on the component base and the
// view glue on the widget.
var scripts = []string{
	"components/configurable-component.js",
	"components/linear-calendar.js",
	"views/calendar-view.js",
}

type dependencyLoader struct {
	mu     sync.Mutex
	loaded bool
	assets host.Assets
	fsys   fs.FS
	logger log.Logger
}

// Load hands the stylesheet and scripts to the host once. A failed load can
// be retried.
func (l *dependencyLoader) Load(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.loaded {
		return nil
	}
	if l.assets == nil {
		level.Debug(l.logger).Log("msg", "host has no asset loader, skipping dependencies")
		l.loaded = true
		return nil
	}

	l.assets.Mount(pluginPath, l.fsys)
	if err := l.assets.AddStylesheet(pluginPath + "/" + stylesheet); err != nil {
		return fmt.Errorf("load stylesheet: %w", err)
	}
	for _, src := range scripts {
		if err := l.assets.AddScript(ctx, pluginPath+"/"+src); err != nil {
			return fmt.Errorf("load script %s: %w", src, err)
		}
	}

	l.loaded = true
	level.Info(l.logger).Log("msg", "dependencies loaded")
	return nil
}
