// Package server is the pensine host: it serves plugin routes and assets,
// forwards browser input to mounted widgets and exposes the event bus and
// plugin settings over a small JSON API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/google/jsonschema-go/jsonschema"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/stephanedenis/pensine-plugin-calendar/internal/auth"
	"github.com/stephanedenis/pensine-plugin-calendar/internal/host"
	"github.com/stephanedenis/pensine-plugin-calendar/internal/plugin"
	"github.com/stephanedenis/pensine-plugin-calendar/internal/router"
	"github.com/stephanedenis/pensine-plugin-calendar/internal/ui"
)

const maxEventBody = 1 << 20

// SchemaSource returns the settings schema registered by a plugin.
type SchemaSource interface {
	Schema(id string) (*jsonschema.Schema, bool)
}

// Server represents the HTTP server
type Server struct {
	echo    *echo.Echo
	router  *router.Router
	assets  *Assets
	auth    auth.Authenticator
	events  host.Events
	schemas SchemaSource
	plugins *plugin.Manager

	addr            string
	shutdownTimeout time.Duration
	logger          log.Logger
}

type Option func(*Server)

func WithLogger(logger log.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

func WithAuth(a auth.Authenticator) Option {
	return func(s *Server) { s.auth = a }
}

// WithEvents exposes bus on POST /api/events/:name.
func WithEvents(bus host.Events) Option {
	return func(s *Server) { s.events = bus }
}

// WithSchemas exposes plugin settings schemas on GET /api/plugins/:id/schema.
func WithSchemas(src SchemaSource) Option {
	return func(s *Server) { s.schemas = src }
}

// WithPlugins lists plugins on GET /api/plugins.
func WithPlugins(m *plugin.Manager) Option {
	return func(s *Server) { s.plugins = m }
}

func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Server) { s.shutdownTimeout = d }
}

// New creates a new server instance listening on host:port once started.
func New(host string, port int, opts ...Option) *Server {
	s := &Server{
		echo:            echo.New(),
		assets:          NewAssets(),
		auth:            &auth.NoAuth{},
		addr:            net.JoinHostPort(host, strconv.Itoa(port)),
		shutdownTimeout: 10 * time.Second,
		logger:          log.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = log.With(s.logger, "component", "server")

	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.router = router.New(s.echo, router.WithLayout(s.layout), router.WithLogger(s.logger))
	s.routes()
	return s
}

// Router is where plugins register their pages.
func (s *Server) Router() *router.Router { return s.router }

// Assets is where plugins mount their stylesheets and scripts.
func (s *Server) Assets() *Assets { return s.assets }

func (s *Server) Handler() http.Handler { return s.echo }

func (s *Server) routes() {
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			l := level.Debug(s.logger)
			if v.Error != nil || v.Status >= http.StatusInternalServerError {
				l = level.Error(s.logger)
			}
			l.Log("msg", "request", "method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency, "err", v.Error)
			return nil
		},
	}))
	s.echo.Use(s.authMiddleware)

	s.echo.GET("/", func(c echo.Context) error {
		return c.Redirect(http.StatusFound, "/calendar")
	})
	s.echo.GET("/plugins/*", s.assets.serve)
	s.echo.POST("/ui/:id/:action", s.handleInput)

	api := s.echo.Group("/api")
	api.GET("/plugins", s.handleListPlugins)
	api.GET("/plugins/:id/schema", s.handleSchema)
	api.POST("/events/:name", s.handleEmit)
}

// authMiddleware checks every request except static assets. A credential
// presented in the query string is kept in a cookie for later requests.
func (s *Server) authMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		r := c.Request()
		if strings.HasPrefix(r.URL.Path, "/plugins/") {
			return next(c)
		}
		if !s.auth.Authenticate(r) {
			return echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized")
		}
		if cred := auth.FromQuery(r); cred != "" {
			c.SetCookie(&http.Cookie{
				Name:     auth.CookieName,
				Value:    cred,
				Path:     "/",
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			})
		}
		return next(c)
	}
}

var pageTmpl = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="fr">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Pensine</title>
{{range .Stylesheets}}<link rel="stylesheet" href="/{{.}}">
{{end}}{{range .Scripts}}<script src="/{{.}}" defer></script>
{{end}}</head>
<body>
<main>{{.Body}}</main>
</body>
</html>
`))

func (s *Server) layout(w io.Writer, body template.HTML) error {
	stylesheets, scripts := s.assets.Head()
	return pageTmpl.Execute(w, struct {
		Stylesheets []string
		Scripts     []string
		Body        template.HTML
	}{stylesheets, scripts, body})
}

type inputReply struct {
	Navigate string        `json:"navigate,omitempty"`
	HTML     template.HTML `json:"html,omitempty"`
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get(echo.HeaderAccept), echo.MIMEApplicationJSON)
}

// handleInput forwards a click, scroll or form post to a mounted container.
// Scripts get the navigation target and the refreshed widget as JSON; plain
// form posts are redirected.
func (s *Server) handleInput(c echo.Context) error {
	id, action := c.Param("id"), c.Param("action")
	args, err := c.FormParams()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	target, err := s.router.Dispatch(c.Request().Context(), id, action, args)
	switch {
	case errors.Is(err, router.ErrNotMounted):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ui.ErrNotInteractive):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case err != nil:
		level.Warn(s.logger).Log("msg", "input rejected", "container", id, "action", action, "err", err)
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if !wantsJSON(c.Request()) {
		if target == "" {
			target = c.Request().Referer()
		}
		if target == "" {
			target = "/"
		}
		return c.Redirect(http.StatusSeeOther, target)
	}

	reply := inputReply{Navigate: target}
	if container, ok := s.router.Mounted(id); ok {
		if child := container.Child(); child != nil {
			reply.HTML = child.HTML()
		}
	}
	return c.JSON(http.StatusOK, reply)
}

func (s *Server) handleListPlugins(c echo.Context) error {
	if s.plugins == nil {
		return c.JSON(http.StatusOK, []plugin.Status{})
	}
	return c.JSON(http.StatusOK, s.plugins.List())
}

func (s *Server) handleSchema(c echo.Context) error {
	if s.schemas == nil {
		return echo.ErrNotFound
	}
	schema, ok := s.schemas.Schema(c.Param("id"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("no schema for plugin %s", c.Param("id")))
	}
	return c.JSON(http.StatusOK, schema)
}

// handleEmit publishes the JSON request body on the bus as a
// json.RawMessage.
func (s *Server) handleEmit(c echo.Context) error {
	if s.events == nil {
		return echo.ErrNotFound
	}
	name := c.Param("name")
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxEventBody+1))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if len(body) > maxEventBody {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge)
	}
	if len(body) == 0 {
		body = []byte("null")
	}
	if !json.Valid(body) {
		return echo.NewHTTPError(http.StatusBadRequest, "event payload is not valid JSON")
	}

	level.Debug(s.logger).Log("msg", "emit", "event", name)
	s.events.Emit(c.Request().Context(), name, json.RawMessage(body))
	return c.JSON(http.StatusAccepted, map[string]string{"event": name})
}

// Start serves until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		level.Info(s.logger).Log("msg", "starting server", "addr", s.addr)
		err := s.echo.Start(s.addr)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	level.Info(s.logger).Log("msg", "shutting down")
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}
