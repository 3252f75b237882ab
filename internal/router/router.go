package router

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"net/url"
	"sync"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/labstack/echo/v4"

	"github.com/stephanedenis/pensine-plugin-calendar/internal/host"
	"github.com/stephanedenis/pensine-plugin-calendar/internal/ui"
)

// ErrNotMounted is returned when input targets a container that no route has
// rendered.
var ErrNotMounted = errors.New("container not mounted")

// Layout wraps rendered route content into a full page.
type Layout func(w io.Writer, body template.HTML) error

type navigationKey struct{}

type navigation struct {
	target string
}

func withNavigation(ctx context.Context) (context.Context, *navigation) {
	nav := &navigation{}
	return context.WithValue(ctx, navigationKey{}, nav), nav
}

// Router implements host.Router on top of echo. Navigation requested while a
// route or input is being handled turns into a redirect for that request;
// navigation requested elsewhere is recorded in the history.
type Router struct {
	mu      sync.RWMutex
	echo    *echo.Echo
	routes  map[string]host.RouteHandler
	mounted map[string]*ui.Container
	history []string
	layout  Layout
	logger  log.Logger
}

var _ host.Router = (*Router)(nil)

type Option func(*Router)

func WithLayout(l Layout) Option {
	return func(r *Router) { r.layout = l }
}

func WithLogger(logger log.Logger) Option {
	return func(r *Router) { r.logger = logger }
}

// New creates a router that registers its routes on e.
func New(e *echo.Echo, opts ...Option) *Router {
	r := &Router{
		echo:    e,
		routes:  make(map[string]host.RouteHandler),
		mounted: make(map[string]*ui.Container),
		layout: func(w io.Writer, body template.HTML) error {
			_, err := io.WriteString(w, string(body))
			return err
		},
		logger: log.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = log.With(r.logger, "component", "router")
	return r
}

// Register binds path to h. Registering the same path again swaps the
// handler.
func (r *Router) Register(path string, h host.RouteHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, exists := r.routes[path]
	r.routes[path] = h
	if !exists {
		r.echo.GET(path, r.serve(path))
	}
	level.Debug(r.logger).Log("msg", "route registered", "path", path, "replaced", exists)
}

// Navigate redirects the request in flight, if any, to path.
func (r *Router) Navigate(ctx context.Context, path string) {
	if nav, ok := ctx.Value(navigationKey{}).(*navigation); ok {
		nav.target = path
		return
	}

	r.mu.Lock()
	r.history = append(r.history, path)
	r.mu.Unlock()
	level.Info(r.logger).Log("msg", "navigate", "path", path)
}

// History returns navigation requests made outside of a request.
func (r *Router) History() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.history...)
}

func (r *Router) serve(path string) echo.HandlerFunc {
	return func(c echo.Context) error {
		r.mu.RLock()
		h := r.routes[path]
		r.mu.RUnlock()

		params := make(map[string]string, len(c.ParamNames()))
		values := c.ParamValues()
		for i, name := range c.ParamNames() {
			if i < len(values) {
				params[name] = values[i]
			}
		}

		ctx, nav := withNavigation(c.Request().Context())
		el, err := h(ctx, params)
		if err != nil {
			if errors.Is(err, host.ErrRouteDisabled) {
				return echo.ErrNotFound
			}
			level.Error(r.logger).Log("msg", "route failed", "path", c.Request().URL.Path, "err", err)
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}

		if nav.target != "" {
			return c.Redirect(http.StatusFound, nav.target)
		}
		if el == nil {
			return c.NoContent(http.StatusNoContent)
		}
		if doc, ok := el.(*ui.Document); ok {
			if doc.Filename != "" {
				c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", doc.Filename))
			}
			return c.Blob(http.StatusOK, doc.ContentType, doc.Body)
		}

		if container, ok := el.(*ui.Container); ok && container.ID != "" {
			r.mu.Lock()
			r.mounted[container.ID] = container
			r.mu.Unlock()
		}

		var buf bytes.Buffer
		if err := r.layout(&buf, el.HTML()); err != nil {
			return fmt.Errorf("render layout: %w", err)
		}
		return c.HTMLBlob(http.StatusOK, buf.Bytes())
	}
}

// Dispatch forwards browser input to the container id last rendered by a
// route. It returns the path the handler navigated to, if any.
func (r *Router) Dispatch(ctx context.Context, id, action string, args url.Values) (string, error) {
	container, ok := r.Mounted(id)
	if !ok {
		return "", fmt.Errorf("%s: %w", id, ErrNotMounted)
	}

	ctx, nav := withNavigation(ctx)
	if err := container.Dispatch(ctx, action, args); err != nil {
		return "", err
	}
	return nav.target, nil
}

// Mounted returns the container id last rendered by a route.
func (r *Router) Mounted(id string) (*ui.Container, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	container, ok := r.mounted[id]
	return container, ok
}
