package calendar

import (
	"context"
	"regexp"
	"sync"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"

	"github.com/stephanedenis/pensine-plugin-calendar/internal/host"
	"github.com/stephanedenis/pensine-plugin-calendar/internal/linear"
	"github.com/stephanedenis/pensine-plugin-calendar/internal/ui"
)

const (
	containerID    = "calendar-view"
	containerClass = "pensine-calendar-view"

	eventsPrefix  = "calendar/events/"
	journalPrefix = "journal/entries/"

	locale       = "fr-CA"
	defaultWeeks = 52

	widgetMissingMsg = "Erreur: Composant calendrier non chargé"
)

var journalFile = regexp.MustCompile(`(\d{4}-\d{2}-\d{2})\.json$`)

// View wraps one linear calendar widget and connects it to the host.
type View struct {
	hc      host.Context
	config  Config
	factory WidgetFactory
	logger  log.Logger
	now     func() time.Time

	mu        sync.Mutex
	widget    Widget
	container *ui.Container
}

func newView(hc host.Context, cfg Config, factory WidgetFactory, logger log.Logger, now func() time.Time) *View {
	return &View{
		hc:      hc,
		config:  cfg,
		factory: factory,
		logger:  log.With(logger, "component", "calendar-view"),
		now:     now,
	}
}

// Render builds a fresh container holding the widget. Without a widget
// factory the container carries an error message instead.
func (v *View) Render(ctx context.Context) (*ui.Container, error) {
	container := ui.NewContainer(containerID, containerClass)
	marked := v.LoadMarkedDates(ctx)

	if v.factory == nil {
		level.Error(v.logger).Log("msg", "cannot render", "err", ErrWidgetUnavailable)
		container.SetError(widgetMissingMsg)
		v.mu.Lock()
		v.container = container
		v.mu.Unlock()
		return container, nil
	}

	widget, err := v.factory(container, v.widgetOptions(marked))
	if err != nil {
		return nil, err
	}

	v.mu.Lock()
	old := v.widget
	v.widget = widget
	v.container = container
	v.mu.Unlock()

	if old != nil {
		old.Destroy()
	}
	return container, nil
}

func (v *View) widgetOptions(marked []string) linear.Options {
	cfg := v.config

	weekStart := time.Monday
	if cfg.StartWeekOn == Sunday {
		weekStart = time.Sunday
	}
	weeks := defaultWeeks
	if cfg.MonthsToDisplay > 0 {
		weeks = cfg.MonthsToDisplay * 4
	}

	return linear.Options{
		WeekStartDay: weekStart,
		MonthFormat:  "short",
		WeeksToLoad:  weeks,
		Locale:       locale,
		MarkedDates:  marked,
		OnDayClick:   v.HandleDayClick,
		OnWeekLoad: func(ctx context.Context, direction linear.Direction, weekStart string) {
			v.HandleWeekLoad(ctx, string(direction), weekStart)
		},
		AutoScroll:        true,
		ShowWeekdays:      true,
		InfiniteScroll:    true,
		MonthColors:       true,
		WeekendOpacity:    0.15,
		MarkedDateOpacity: 0.25,
		ShowWeekNumbers:   cfg.ShowWeekNumbers,
		DayHeight:         28,
		HighlightToday:    cfg.HighlightToday,
		ScrollBehavior:    cfg.ScrollBehavior,
		ColorScheme:       cfg.ColorScheme,
		Now:               v.now,
	}
}

// LoadMarkedDates returns every date that has a stored event or journal
// entry, without duplicates, events first. Storage errors are logged and
// yield an empty list.
func (v *View) LoadMarkedDates(ctx context.Context) []string {
	dates, err := v.loadMarkedDates(ctx)
	if err != nil {
		level.Error(v.logger).Log("msg", "load marked dates", "err", err)
		return []string{}
	}
	return dates
}

func (v *View) loadMarkedDates(ctx context.Context) ([]string, error) {
	dates := []string{}
	seen := make(map[string]bool)
	add := func(d string) {
		if d != "" && !seen[d] {
			seen[d] = true
			dates = append(dates, d)
		}
	}

	eventFiles, err := v.hc.Storage.List(ctx, eventsPrefix)
	if err != nil {
		return nil, err
	}
	for _, f := range eventFiles {
		var event map[string]any
		if err := v.hc.Storage.ReadJSON(ctx, f, &event); err != nil {
			return nil, err
		}
		d, _ := event["date"].(string)
		add(d)
	}

	journalFiles, err := v.hc.Storage.List(ctx, journalPrefix)
	if err != nil {
		return nil, err
	}
	for _, f := range journalFiles {
		if m := journalFile.FindStringSubmatch(f); m != nil {
			add(m[1])
		}
	}

	return dates, nil
}

// HandleDayClick announces the click to other plugins and opens the
// journal page of that day.
func (v *View) HandleDayClick(ctx context.Context, date string, events []string, in ui.Input) {
	level.Debug(v.logger).Log("msg", "day click", "date", date)
	v.hc.Events.Emit(ctx, DayClicked, DayClick{Date: date, Events: events, MouseEvent: in})
	v.hc.Router.Navigate(ctx, "/journal/"+date)
}

// HandleWeekLoad announces a week added by infinite scroll.
func (v *View) HandleWeekLoad(ctx context.Context, direction, weekStart string) {
	level.Debug(v.logger).Log("msg", "week load", "direction", direction, "week", weekStart)
	v.hc.Events.Emit(ctx, WeekLoaded, WeekLoad{Direction: direction, WeekStart: weekStart})
}

func (v *View) current() Widget {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.widget
}

// UpdateMarkedDates reloads the marked dates into the widget.
func (v *View) UpdateMarkedDates(ctx context.Context) {
	w := v.current()
	if w == nil {
		return
	}
	w.SetMarkedDates(v.LoadMarkedDates(ctx))
}

func (v *View) MarkDate(date string) {
	if w := v.current(); w != nil {
		w.MarkDate(date)
	}
}

func (v *View) NavigateToDate(ctx context.Context, date string) {
	w := v.current()
	if w == nil {
		return
	}
	if err := w.ScrollToDate(ctx, date); err != nil {
		level.Warn(v.logger).Log("msg", "navigate to date", "date", date, "err", err)
	}
}

// Container returns the container of the last render.
func (v *View) Container() *ui.Container {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.container
}

// Destroy tears the widget down and releases the container.
func (v *View) Destroy() {
	v.mu.Lock()
	w := v.widget
	v.widget = nil
	v.container = nil
	v.mu.Unlock()

	if w != nil {
		w.Destroy()
	}
}
