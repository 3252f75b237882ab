package calendar

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-kit/kit/log"

	"github.com/stephanedenis/pensine-plugin-calendar/internal/events"
	"github.com/stephanedenis/pensine-plugin-calendar/internal/host"
)

var testNow = func() time.Time { return time.Date(2024, time.March, 6, 9, 0, 0, 0, time.UTC) }

type fakeRouter struct {
	mu        sync.Mutex
	routes    map[string]host.RouteHandler
	registers []string
	navigated []string
}

func newFakeRouter() *fakeRouter {
	return &fakeRouter{routes: map[string]host.RouteHandler{}}
}

func (r *fakeRouter) Register(path string, h host.RouteHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes[path] = h
	r.registers = append(r.registers, path)
}

func (r *fakeRouter) Navigate(ctx context.Context, path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.navigated = append(r.navigated, path)
}

func (r *fakeRouter) handler(t *testing.T, path string) host.RouteHandler {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.routes[path]
	if !ok {
		t.Fatalf("route %s not registered", path)
	}
	return h
}

type fakeStorage struct {
	mu       sync.Mutex
	files    map[string][]byte
	writeErr error
	listErr  error
	writes   int
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{files: map[string][]byte{}}
}

func (s *fakeStorage) put(t *testing.T, path string, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	s.files[path] = data
}

func (s *fakeStorage) WriteJSON(ctx context.Context, path string, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.files[path] = data
	s.writes++
	return nil
}

func (s *fakeStorage) ReadJSON(ctx context.Context, path string, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.files[path]
	if !ok {
		return os.ErrNotExist
	}
	return json.Unmarshal(data, v)
}

func (s *fakeStorage) List(ctx context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []string
	for p := range s.files {
		if strings.HasPrefix(p, prefix) {
			out = append(out, p)
		}
	}
	slices.Sort(out)
	return out, nil
}

type fakeAssets struct {
	mounted     []string
	stylesheets []string
	scripts     []string
	failScript  string
}

func (a *fakeAssets) Mount(prefix string, fsys fs.FS) { a.mounted = append(a.mounted, prefix) }

func (a *fakeAssets) AddStylesheet(href string) error {
	a.stylesheets = append(a.stylesheets, href)
	return nil
}

func (a *fakeAssets) AddScript(ctx context.Context, src string) error {
	if a.failScript != "" && strings.HasSuffix(src, a.failScript) {
		return errors.New("failed to load script: " + src)
	}
	a.scripts = append(a.scripts, src)
	return nil
}

type emitted struct {
	name    string
	payload any
}

// recorder subscribes to names on the bus and keeps what it sees.
type recorder struct {
	mu   sync.Mutex
	seen []emitted
}

func record(bus *events.Bus, names ...string) *recorder {
	r := &recorder{}
	for _, name := range names {
		bus.On(name, func(ctx context.Context, payload any) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.seen = append(r.seen, emitted{name: name, payload: payload})
		}, "test-recorder")
	}
	return r
}

func (r *recorder) named(name string) []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []any
	for _, e := range r.seen {
		if e.name == name {
			out = append(out, e.payload)
		}
	}
	return out
}

type fixture struct {
	router  *fakeRouter
	bus     *events.Bus
	storage *fakeStorage
	assets  *fakeAssets
	hc      host.Context
}

func newFixture() *fixture {
	f := &fixture{
		router:  newFakeRouter(),
		bus:     events.NewBus(nil),
		storage: newFakeStorage(),
		assets:  &fakeAssets{},
	}
	f.hc = host.Context{
		Router:  f.router,
		Events:  f.bus,
		Storage: f.storage,
		Assets:  f.assets,
	}
	return f
}

// fakeWidget records what the view forwards to it.
type fakeWidget struct {
	mu        sync.Mutex
	marked    []string
	scrolled  []string
	destroyed bool
}

func (w *fakeWidget) SetMarkedDates(dates []string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.marked = append([]string(nil), dates...)
}

func (w *fakeWidget) MarkDate(date string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.marked = append(w.marked, date)
}

func (w *fakeWidget) ScrollToDate(ctx context.Context, date string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.scrolled = append(w.scrolled, date)
	return nil
}

func (w *fakeWidget) Destroy() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.destroyed = true
}

func (w *fakeWidget) markedDates() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.marked...)
}

func nopLogger() log.Logger { return log.NewNopLogger() }
