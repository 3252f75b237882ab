package calendar

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/stephanedenis/pensine-plugin-calendar/internal/host"
	"github.com/stephanedenis/pensine-plugin-calendar/internal/linear"
	"github.com/stephanedenis/pensine-plugin-calendar/internal/models"
	"github.com/stephanedenis/pensine-plugin-calendar/internal/settings"
	"github.com/stephanedenis/pensine-plugin-calendar/internal/ui"
)

func enabledPlugin(t *testing.T, f *fixture, opts ...Option) *Plugin {
	t.Helper()
	opts = append([]Option{WithClock(testNow)}, opts...)
	p := New(f.hc, opts...)
	if err := p.Enable(context.Background()); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	return p
}

func widgetFactory(w *fakeWidget) WidgetFactory {
	return func(c *ui.Container, opts linear.Options) (Widget, error) {
		return w, nil
	}
}

func TestPlugin_EnableRegistersEverything(t *testing.T) {
	f := newFixture()
	rec := record(f.bus, PluginEnabled)
	enabledPlugin(t, f)

	for _, path := range []string{"/calendar", "/calendar/:date"} {
		f.router.handler(t, path)
	}
	if n := f.bus.Subscriptions(PluginID); n != 3 {
		t.Errorf("subscriptions = %d, want 3", n)
	}

	got := rec.named(PluginEnabled)
	if len(got) != 1 || got[0] != (PluginStatus{PluginID: "calendar"}) {
		t.Errorf("plugin:enabled = %v", got)
	}

	if len(f.assets.stylesheets) != 1 || f.assets.stylesheets[0] != "plugins/pensine-plugin-calendar/styles/calendar.css" {
		t.Errorf("stylesheets = %v", f.assets.stylesheets)
	}
	wantScripts := []string{
		"plugins/pensine-plugin-calendar/components/configurable-component.js",
		"plugins/pensine-plugin-calendar/components/linear-calendar.js",
		"plugins/pensine-plugin-calendar/views/calendar-view.js",
	}
	if !reflect.DeepEqual(f.assets.scripts, wantScripts) {
		t.Errorf("scripts = %v, want %v", f.assets.scripts, wantScripts)
	}
}

func TestPlugin_EnableTwiceDoesNotDuplicate(t *testing.T) {
	f := newFixture()
	rec := record(f.bus, PluginEnabled, EventCreated)
	p := enabledPlugin(t, f)
	if err := p.Enable(context.Background()); err != nil {
		t.Fatalf("second Enable: %v", err)
	}

	if n := len(rec.named(PluginEnabled)); n != 1 {
		t.Errorf("plugin:enabled emitted %d times", n)
	}
	if n := f.bus.Subscriptions(PluginID); n != 3 {
		t.Errorf("subscriptions = %d, want 3", n)
	}
	if n := len(f.assets.scripts); n != 3 {
		t.Errorf("scripts loaded %d times, want 3", n)
	}

	f.bus.Emit(context.Background(), EventCreate, models.Event{ID: "e1", Date: "2024-03-01"})
	if n := len(rec.named(EventCreated)); n != 1 {
		t.Errorf("calendar:event-created emitted %d times for one create", n)
	}
}

func TestPlugin_DependencyFailureAbortsEnable(t *testing.T) {
	f := newFixture()
	f.assets.failScript = "linear-calendar.js"
	rec := record(f.bus, PluginEnabled)
	p := New(f.hc, WithClock(testNow))

	err := p.Enable(context.Background())
	if err == nil || !strings.Contains(err.Error(), "linear-calendar.js") {
		t.Fatalf("Enable = %v, want script failure", err)
	}
	if len(rec.named(PluginEnabled)) != 0 {
		t.Error("plugin:enabled emitted after failed load")
	}
	if n := f.bus.Subscriptions(PluginID); n != 0 {
		t.Errorf("subscriptions = %d after failed enable", n)
	}

	f.assets.failScript = ""
	if err := p.Enable(context.Background()); err != nil {
		t.Fatalf("retry Enable: %v", err)
	}
	if len(rec.named(PluginEnabled)) != 1 {
		t.Error("retry did not enable the plugin")
	}
}

func TestPlugin_DisableDropsSubscriptions(t *testing.T) {
	f := newFixture()
	rec := record(f.bus, PluginDisabled, EventCreated)
	w := &fakeWidget{}
	p := enabledPlugin(t, f, WithWidget(widgetFactory(w)))

	if _, err := f.router.handler(t, "/calendar")(context.Background(), nil); err != nil {
		t.Fatalf("render: %v", err)
	}
	if err := p.Disable(context.Background()); err != nil {
		t.Fatalf("Disable: %v", err)
	}

	if n := f.bus.Subscriptions(PluginID); n != 0 {
		t.Fatalf("subscriptions = %d after Disable", n)
	}
	if !w.destroyed {
		t.Error("widget not destroyed")
	}
	got := rec.named(PluginDisabled)
	if len(got) != 1 || got[0] != (PluginStatus{PluginID: "calendar"}) {
		t.Errorf("plugin:disabled = %v", got)
	}

	f.bus.Emit(context.Background(), EventCreate, models.Event{ID: "e1", Date: "2024-03-01"})
	if f.storage.writes != 0 || len(rec.named(EventCreated)) != 0 {
		t.Error("event-create handled after Disable")
	}

	for _, path := range []string{"/calendar", "/calendar/:date"} {
		_, err := f.router.handler(t, path)(context.Background(), map[string]string{"date": "2024-03-01"})
		if !errors.Is(err, host.ErrRouteDisabled) {
			t.Errorf("%s after Disable = %v, want ErrRouteDisabled", path, err)
		}
	}
}

func TestPlugin_ReEnableAfterDisable(t *testing.T) {
	f := newFixture()
	w := &fakeWidget{}
	p := enabledPlugin(t, f, WithWidget(widgetFactory(w)))
	ctx := context.Background()

	if err := p.Disable(ctx); err != nil {
		t.Fatal(err)
	}
	if err := p.Enable(ctx); err != nil {
		t.Fatalf("Enable after Disable: %v", err)
	}
	if n := f.bus.Subscriptions(PluginID); n != 3 {
		t.Errorf("subscriptions = %d", n)
	}
	if n := len(f.assets.scripts); n != 3 {
		t.Errorf("scripts loaded again: %v", f.assets.scripts)
	}

	el, err := f.router.handler(t, "/calendar")(ctx, nil)
	if err != nil {
		t.Fatalf("render after re-enable: %v", err)
	}
	if _, ok := el.(*ui.Container); !ok {
		t.Errorf("render returned %T", el)
	}
}

func TestPlugin_CreateEventPersistsAndAnnounces(t *testing.T) {
	f := newFixture()
	rec := record(f.bus, EventCreated, EventFailed)
	enabledPlugin(t, f)

	event := models.Event{ID: "e1", Date: "2024-03-01", Fields: map[string]any{"title": "x"}}
	f.bus.Emit(context.Background(), EventCreate, event)

	data, ok := f.storage.files["calendar/events/2024-03-01/e1.json"]
	if !ok {
		t.Fatalf("event not written; files = %v", f.storage.files)
	}
	var stored map[string]any
	if err := json.Unmarshal(data, &stored); err != nil {
		t.Fatal(err)
	}
	want := map[string]any{"id": "e1", "date": "2024-03-01", "title": "x"}
	if !reflect.DeepEqual(stored, want) {
		t.Errorf("stored %v, want %v", stored, want)
	}

	created := rec.named(EventCreated)
	if len(created) != 1 || !reflect.DeepEqual(created[0], event) {
		t.Errorf("calendar:event-created = %v", created)
	}
	if errs := rec.named(EventFailed); len(errs) != 0 {
		t.Errorf("unexpected errors: %v", errs)
	}
}

func TestPlugin_CreateEventAcceptsRawJSON(t *testing.T) {
	f := newFixture()
	rec := record(f.bus, EventCreated)
	enabledPlugin(t, f)

	f.bus.Emit(context.Background(), EventCreate, json.RawMessage(`{"id":"e2","date":"2024-03-02","title":"y"}`))

	if _, ok := f.storage.files["calendar/events/2024-03-02/e2.json"]; !ok {
		t.Fatalf("event not written; files = %v", f.storage.files)
	}
	created := rec.named(EventCreated)
	if len(created) != 1 {
		t.Fatalf("calendar:event-created = %v", created)
	}
	if ev := created[0].(models.Event); ev.Title() != "y" {
		t.Errorf("created title = %q", ev.Title())
	}
}

func TestPlugin_CreateEventKeepsLargeNumbers(t *testing.T) {
	f := newFixture()
	enabledPlugin(t, f)

	in := `{"date":"2024-03-01","id":"e1","ref":9007199254740993}`
	f.bus.Emit(context.Background(), EventCreate, json.RawMessage(in))

	if got := string(f.storage.files["calendar/events/2024-03-01/e1.json"]); got != in {
		t.Errorf("stored %s, want %s", got, in)
	}
}

func TestPlugin_CreateEventWithoutIDGetsOne(t *testing.T) {
	f := newFixture()
	rec := record(f.bus, EventCreated)
	enabledPlugin(t, f)

	f.bus.Emit(context.Background(), EventCreate, map[string]any{"date": "2024-03-01", "title": "x"})

	created := rec.named(EventCreated)
	if len(created) != 1 {
		t.Fatalf("calendar:event-created = %v", created)
	}
	ev := created[0].(models.Event)
	if ev.ID == "" {
		t.Fatal("no id assigned")
	}
	if _, ok := f.storage.files["calendar/events/2024-03-01/"+ev.ID+".json"]; !ok {
		t.Errorf("event not written under its new id")
	}
}

func TestPlugin_CreateEventFailures(t *testing.T) {
	tests := []struct {
		name     string
		writeErr error
		payload  any
		wantMsg  string
	}{
		{
			name:     "storage failure",
			writeErr: errors.New("disk full"),
			payload:  models.Event{ID: "e1", Date: "2024-03-01"},
			wantMsg:  "disk full",
		},
		{
			name:    "missing date",
			payload: models.Event{ID: "e1"},
			wantMsg: "event date cannot be empty",
		},
		{
			name:    "undecodable payload",
			payload: json.RawMessage(`[1,2]`),
			wantMsg: "decode event payload",
		},
		{
			name:    "numeric id",
			payload: json.RawMessage(`{"id":5,"date":"2024-03-01"}`),
			wantMsg: "event id must be a string",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.storage.writeErr = tt.writeErr
			rec := record(f.bus, EventCreated, EventFailed)
			w := &fakeWidget{}
			enabledPlugin(t, f, WithWidget(widgetFactory(w)))
			if _, err := f.router.handler(t, "/calendar")(context.Background(), nil); err != nil {
				t.Fatal(err)
			}
			before := len(w.markedDates())

			f.bus.Emit(context.Background(), EventCreate, tt.payload)

			if n := len(rec.named(EventCreated)); n != 0 {
				t.Errorf("calendar:event-created emitted %d times", n)
			}
			errs := rec.named(EventFailed)
			if len(errs) != 1 {
				t.Fatalf("calendar:event-error = %v", errs)
			}
			if msg := errs[0].(EventError).Error; !strings.Contains(msg, tt.wantMsg) {
				t.Errorf("error = %q, want it to contain %q", msg, tt.wantMsg)
			}
			if len(w.markedDates()) != before {
				t.Error("failed create marked a date")
			}
		})
	}
}

func TestPlugin_StorageErrorMessageIsVerbatim(t *testing.T) {
	f := newFixture()
	f.storage.writeErr = errors.New("disk full")
	rec := record(f.bus, EventFailed)
	enabledPlugin(t, f)

	f.bus.Emit(context.Background(), EventCreate, models.Event{ID: "e1", Date: "2024-03-01"})

	errs := rec.named(EventFailed)
	if len(errs) != 1 || errs[0] != (EventError{Error: "disk full"}) {
		t.Errorf("calendar:event-error = %v", errs)
	}
}

func TestPlugin_DayRouteRedirectsToJournal(t *testing.T) {
	f := newFixture()
	rec := record(f.bus, PluginEnabled, PluginDisabled, DayClicked, WeekLoaded, EventCreated, EventFailed)
	p := enabledPlugin(t, f)
	before := len(rec.seen)

	el, err := f.router.handler(t, "/calendar/:date")(context.Background(), map[string]string{"date": "2024-03-01"})
	if err != nil {
		t.Fatalf("day route: %v", err)
	}
	if el != nil {
		t.Errorf("day route returned content %v", el)
	}
	if !reflect.DeepEqual(f.router.navigated, []string{"/journal/2024-03-01"}) {
		t.Errorf("navigated = %v", f.router.navigated)
	}
	if len(rec.seen) != before {
		t.Errorf("day route emitted %v", rec.seen[before:])
	}
	if f.storage.writes != 0 {
		t.Error("day route wrote to storage")
	}
	if p.activeView() != nil {
		t.Error("day route constructed a view")
	}
}

func TestPlugin_RenderWithoutWidgetShowsError(t *testing.T) {
	f := newFixture()
	enabledPlugin(t, f)

	el, err := f.router.handler(t, "/calendar")(context.Background(), nil)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	c, ok := el.(*ui.Container)
	if !ok {
		t.Fatalf("render returned %T", el)
	}
	if c.Err() == "" {
		t.Fatal("container does not signal an error")
	}
	if !strings.Contains(string(c.HTML()), `class="error"`) {
		t.Errorf("markup = %s", c.HTML())
	}
}

func TestPlugin_RenderFailuresBecomeInlineErrors(t *testing.T) {
	tests := []struct {
		name    string
		factory WidgetFactory
		want    string
	}{
		{
			name: "factory error",
			factory: func(c *ui.Container, opts linear.Options) (Widget, error) {
				return nil, errors.New("bad options")
			},
			want: "bad options",
		},
		{
			name: "factory panic",
			factory: func(c *ui.Container, opts linear.Options) (Widget, error) {
				panic("widget exploded")
			},
			want: "widget exploded",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			enabledPlugin(t, f, WithWidget(tt.factory))

			el, err := f.router.handler(t, "/calendar")(context.Background(), nil)
			if err != nil {
				t.Fatalf("render returned error %v", err)
			}
			msg, ok := el.(ui.ErrorMessage)
			if !ok {
				t.Fatalf("render returned %T", el)
			}
			if !strings.HasPrefix(string(msg), "Erreur lors du chargement du calendrier: ") || !strings.Contains(string(msg), tt.want) {
				t.Errorf("message = %q", msg)
			}
		})
	}
}

func TestPlugin_ViewIsCreatedOnceAndMarked(t *testing.T) {
	f := newFixture()
	w := &fakeWidget{}
	var built int
	factory := func(c *ui.Container, opts linear.Options) (Widget, error) {
		built++
		return w, nil
	}
	p := enabledPlugin(t, f, WithWidget(factory))
	ctx := context.Background()

	f.bus.Emit(ctx, JournalEntrySaved, map[string]any{"date": "2024-02-01"})
	if p.activeView() != nil {
		t.Fatal("view created before first render")
	}

	render := f.router.handler(t, "/calendar")
	if _, err := render(ctx, nil); err != nil {
		t.Fatal(err)
	}
	view := p.activeView()
	if _, err := render(ctx, nil); err != nil {
		t.Fatal(err)
	}
	if p.activeView() != view {
		t.Error("second render replaced the view")
	}
	if built != 2 {
		t.Errorf("widget built %d times, want once per render", built)
	}

	f.bus.Emit(ctx, EventCreate, models.Event{ID: "e1", Date: "2024-03-01"})
	f.bus.Emit(ctx, EventUpdate, map[string]any{"id": "e1", "date": "2024-03-02"})
	f.bus.Emit(ctx, JournalEntrySaved, map[string]any{"date": "2024-03-03"})
	f.bus.Emit(ctx, EventUpdate, map[string]any{"id": "no-date"})

	want := []string{"2024-03-01", "2024-03-02", "2024-03-03"}
	if got := w.markedDates(); !reflect.DeepEqual(got, want) {
		t.Errorf("marked = %v, want %v", got, want)
	}
	if f.storage.writes != 1 {
		t.Errorf("storage writes = %d, want only the create", f.storage.writes)
	}
}

func TestPlugin_LinearWidgetShowsStoredDates(t *testing.T) {
	f := newFixture()
	f.storage.put(t, "calendar/events/2024-03-05/e1.json", map[string]any{"id": "e1", "date": "2024-03-05"})
	f.storage.put(t, "journal/entries/2024-03-07.json", map[string]any{"body": "hello"})
	enabledPlugin(t, f, WithWidget(LinearWidget))

	el, err := f.router.handler(t, "/calendar")(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	html := string(el.HTML())
	for _, date := range []string{"2024-03-05", "2024-03-07"} {
		if !strings.Contains(html, `lc-marked lc-month-3" data-date="`+date+`"`) {
			t.Errorf("%s not marked in %s", date, html)
		}
	}
	if !strings.Contains(html, `lc-today`) {
		t.Error("today not highlighted")
	}
}

func TestPlugin_ConfigResolution(t *testing.T) {
	tests := []struct {
		name   string
		config func() host.Config
		want   Config
	}{
		{
			name:   "no config service",
			config: func() host.Config { return nil },
			want:   DefaultConfig(),
		},
		{
			name: "settings service",
			config: func() host.Config {
				return settings.New(map[string]map[string]any{
					"calendar": {"startWeekOn": "sunday", "monthsToDisplay": 3},
				}, nil)
			},
			want: func() Config {
				c := DefaultConfig()
				c.StartWeekOn = Sunday
				c.MonthsToDisplay = 3
				return c
			}(),
		},
		{
			name: "invalid values fall back to defaults",
			config: func() host.Config {
				return settings.New(map[string]map[string]any{
					"calendar": {"monthsToDisplay": 40},
				}, nil)
			},
			want: DefaultConfig(),
		},
		{
			name: "plain config getter",
			config: func() host.Config {
				return plainConfig{"calendar": `{"colorScheme":"pastel"}`}
			},
			want: func() Config {
				c := DefaultConfig()
				c.ColorScheme = "pastel"
				return c
			}(),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.hc.Config = tt.config()
			p := enabledPlugin(t, f)
			if got := p.Config(); got != tt.want {
				t.Errorf("Config() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestPlugin_RegistersSchema(t *testing.T) {
	f := newFixture()
	svc := settings.New(nil, nil)
	f.hc.Config = svc
	enabledPlugin(t, f)

	schema, ok := svc.Schema(PluginID)
	if !ok {
		t.Fatal("schema not registered")
	}
	if len(schema.Properties) != 6 {
		t.Errorf("schema has %d properties, want 6", len(schema.Properties))
	}
}

func TestPlugin_ExportEvents(t *testing.T) {
	f := newFixture()
	f.storage.put(t, "calendar/events/2024-03-01/e1.json", map[string]any{"id": "e1", "date": "2024-03-01", "title": "Dentist"})
	enabledPlugin(t, f)

	el, err := f.router.handler(t, "/calendar/events.ics")(context.Background(), nil)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	doc, ok := el.(*ui.Document)
	if !ok {
		t.Fatalf("export returned %T", el)
	}
	if !strings.Contains(string(doc.Body), "SUMMARY:Dentist") {
		t.Errorf("body = %s", doc.Body)
	}
}

// plainConfig only implements host.Config.
type plainConfig map[string]string

func (c plainConfig) Get(ctx context.Context, key string, target any) error {
	raw, ok := c[key]
	if !ok {
		return nil
	}
	return json.Unmarshal([]byte(raw), target)
}
