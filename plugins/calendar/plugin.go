// Package calendar is the linear calendar plugin. It shows a scrolling
// week-by-week calendar at /calendar, marks the days that have events or
// journal entries, and stores events created through the event bus.
package calendar

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"sync"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/google/uuid"

	"github.com/stephanedenis/pensine-plugin-calendar/internal/host"
	"github.com/stephanedenis/pensine-plugin-calendar/internal/ical"
	"github.com/stephanedenis/pensine-plugin-calendar/internal/models"
	"github.com/stephanedenis/pensine-plugin-calendar/internal/ui"
)

const (
	PluginID      = "calendar"
	pluginName    = "Calendar"
	pluginVersion = "0.1.0"
	pluginIcon    = "📅"
)

// Plugin is the calendar plugin.
type Plugin struct {
	hc     host.Context
	widget WidgetFactory
	logger log.Logger
	now    func() time.Time
	loader *dependencyLoader

	// lifecycle serialises Enable and Disable.
	lifecycle sync.Mutex

	mu      sync.Mutex
	enabled bool
	config  Config
	view    *View
}

type Option func(*Plugin)

// WithWidget sets the factory used to build the calendar widget. Without it
// the view renders an error message.
func WithWidget(f WidgetFactory) Option {
	return func(p *Plugin) { p.widget = f }
}

func WithLogger(logger log.Logger) Option {
	return func(p *Plugin) { p.logger = logger }
}

// WithAssets replaces the embedded stylesheet and scripts.
func WithAssets(fsys fs.FS) Option {
	return func(p *Plugin) { p.loader.fsys = fsys }
}

// WithClock sets the time source used for "today".
func WithClock(now func() time.Time) Option {
	return func(p *Plugin) { p.now = now }
}

// New creates the plugin. Nothing touches the host until Enable.
func New(hc host.Context, opts ...Option) *Plugin {
	p := &Plugin{
		hc:     hc,
		logger: log.NewNopLogger(),
		now:    time.Now,
		config: DefaultConfig(),
		loader: &dependencyLoader{assets: hc.Assets, fsys: Assets()},
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = log.With(p.logger, "plugin", PluginID)
	p.loader.logger = p.logger
	return p
}

func (p *Plugin) ID() string      { return PluginID }
func (p *Plugin) Name() string    { return pluginName }
func (p *Plugin) Version() string { return pluginVersion }
func (p *Plugin) Icon() string    { return pluginIcon }

// Config returns the settings resolved by Enable.
func (p *Plugin) Config() Config {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.config
}

// Enable loads the plugin assets, resolves its settings, registers routes
// and event listeners and announces itself. Enabling an enabled plugin does
// nothing.
func (p *Plugin) Enable(ctx context.Context) error {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()

	p.mu.Lock()
	enabled := p.enabled
	p.mu.Unlock()
	if enabled {
		level.Debug(p.logger).Log("msg", "already enabled")
		return nil
	}

	if err := p.loader.Load(ctx); err != nil {
		return fmt.Errorf("load dependencies: %w", err)
	}

	if reg, ok := p.hc.Config.(host.SchemaRegistrar); ok {
		if err := reg.RegisterPluginSchema(PluginID, ConfigSchema(), DefaultConfig()); err != nil {
			level.Warn(p.logger).Log("msg", "register config schema", "err", err)
		}
	}
	cfg := p.loadConfig(ctx)
	level.Info(p.logger).Log("msg", "configuration loaded",
		"startWeekOn", cfg.StartWeekOn, "monthsToDisplay", cfg.MonthsToDisplay,
		"showWeekNumbers", cfg.ShowWeekNumbers, "colorScheme", cfg.ColorScheme)

	p.mu.Lock()
	p.config = cfg
	p.enabled = true
	p.mu.Unlock()

	p.registerRoutes()
	p.registerEventListeners()

	level.Info(p.logger).Log("msg", "plugin enabled")
	p.hc.Events.Emit(ctx, PluginEnabled, PluginStatus{PluginID: PluginID})
	return nil
}

func (p *Plugin) loadConfig(ctx context.Context) Config {
	cfg := DefaultConfig()

	var err error
	switch src := p.hc.Config.(type) {
	case nil:
		return cfg
	case host.PluginConfigSource:
		err = src.GetPluginConfig(ctx, PluginID, &cfg)
	default:
		err = src.Get(ctx, PluginID, &cfg)
	}
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		level.Warn(p.logger).Log("msg", "invalid configuration, using defaults", "err", err)
		return DefaultConfig()
	}
	return cfg
}

// Disable destroys the view, drops the plugin's event listeners and
// announces it. Routes stay registered with the host but answer
// host.ErrRouteDisabled.
func (p *Plugin) Disable(ctx context.Context) error {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()

	p.mu.Lock()
	view := p.view
	p.view = nil
	p.enabled = false
	p.mu.Unlock()

	if view != nil {
		view.Destroy()
	}
	p.hc.Events.Off(PluginID)

	level.Info(p.logger).Log("msg", "plugin disabled")
	p.hc.Events.Emit(ctx, PluginDisabled, PluginStatus{PluginID: PluginID})
	return nil
}

func (p *Plugin) registerRoutes() {
	p.hc.Router.Register("/calendar", p.renderCalendarView)
	p.hc.Router.Register("/calendar/events.ics", p.exportEvents)
	p.hc.Router.Register("/calendar/:date", p.renderDayView)
}

func (p *Plugin) registerEventListeners() {
	p.hc.Events.On(EventCreate, p.handleEventCreate, PluginID)
	p.hc.Events.On(EventUpdate, p.handleEventUpdate, PluginID)
	p.hc.Events.On(JournalEntrySaved, p.handleJournalEntrySaved, PluginID)
}

// activeView returns the current view, if any.
func (p *Plugin) activeView() *View {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.view
}

// View returns the view, creating it on first use.
func (p *Plugin) View() (*View, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.enabled {
		return nil, host.ErrRouteDisabled
	}
	if p.view == nil {
		p.view = newView(p.hc, p.config, p.widget, p.logger, p.now)
	}
	return p.view, nil
}

func (p *Plugin) renderCalendarView(ctx context.Context, params map[string]string) (el ui.Element, err error) {
	view, err := p.View()
	if err != nil {
		return nil, err
	}

	defer func() {
		if r := recover(); r != nil {
			level.Error(p.logger).Log("msg", "render calendar view panicked", "err", fmt.Sprint(r))
			el, err = renderError(fmt.Sprint(r)), nil
		}
	}()

	container, err := view.Render(ctx)
	if err != nil {
		level.Error(p.logger).Log("msg", "render calendar view", "err", err)
		return renderError(err.Error()), nil
	}
	return container, nil
}

func renderError(msg string) ui.Element {
	return ui.ErrorMessage("Erreur lors du chargement du calendrier: " + msg)
}

// renderDayView sends the day to the journal; a dedicated day view does not
// exist yet.
func (p *Plugin) renderDayView(ctx context.Context, params map[string]string) (ui.Element, error) {
	p.mu.Lock()
	enabled := p.enabled
	p.mu.Unlock()
	if !enabled {
		return nil, host.ErrRouteDisabled
	}

	p.hc.Router.Navigate(ctx, "/journal/"+params["date"])
	return nil, nil
}

func (p *Plugin) exportEvents(ctx context.Context, params map[string]string) (ui.Element, error) {
	p.mu.Lock()
	enabled := p.enabled
	p.mu.Unlock()
	if !enabled {
		return nil, host.ErrRouteDisabled
	}

	files, err := p.hc.Storage.List(ctx, eventsPrefix)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	cal := &models.Calendar{Name: pluginName}
	for _, f := range files {
		var event models.Event
		if err := p.hc.Storage.ReadJSON(ctx, f, &event); err != nil {
			return nil, fmt.Errorf("read event: %w", err)
		}
		cal.Events = append(cal.Events, event)
	}

	return &ui.Document{
		ContentType: "text/calendar; charset=utf-8",
		Filename:    "calendar.ics",
		Body:        []byte(ical.Format(cal, p.now())),
	}, nil
}

func eventPath(event models.Event) string {
	return path.Join(eventsPrefix, event.Date, event.ID+".json")
}

func (p *Plugin) handleEventCreate(ctx context.Context, payload any) {
	level.Debug(p.logger).Log("msg", "event create")

	event, err := p.prepareEvent(payload)
	if err == nil {
		err = p.hc.Storage.WriteJSON(ctx, eventPath(event), event)
	}
	if err != nil {
		level.Error(p.logger).Log("msg", "create event", "err", err)
		p.hc.Events.Emit(ctx, EventFailed, EventError{Error: err.Error()})
		return
	}

	p.hc.Events.Emit(ctx, EventCreated, event)
	if view := p.activeView(); view != nil {
		view.MarkDate(event.Date)
	}
}

// prepareEvent decodes the payload, assigns an id when missing and checks
// the event can be stored.
func (p *Plugin) prepareEvent(payload any) (models.Event, error) {
	event, err := decodeEvent(payload)
	if err != nil {
		return event, err
	}
	if event.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return event, fmt.Errorf("generate event id: %w", err)
		}
		event.ID = id.String()
	}
	return event, event.Validate()
}

// handleEventUpdate only refreshes the mark; updated events are persisted by
// whoever emits the update.
func (p *Plugin) handleEventUpdate(ctx context.Context, payload any) {
	date := dateOf(payload)
	level.Debug(p.logger).Log("msg", "event update", "date", date)
	if view := p.activeView(); view != nil && date != "" {
		view.MarkDate(date)
	}
}

func (p *Plugin) handleJournalEntrySaved(ctx context.Context, payload any) {
	date := dateOf(payload)
	level.Debug(p.logger).Log("msg", "journal entry saved", "date", date)
	if view := p.activeView(); view != nil && date != "" {
		view.MarkDate(date)
	}
}
