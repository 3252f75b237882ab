// Package linear renders a linear calendar: one row per week, scrolling
// through months without page breaks, with marked days highlighted.
package linear

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/url"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/stephanedenis/pensine-plugin-calendar/internal/ui"
)

const (
	dateLayout = "2006-01-02"

	defaultWeeks     = 52
	defaultDayHeight = 28
	defaultLoadChunk = 4

	// maxLoadChunk bounds a single week-load from the browser and maxWeeks
	// the whole loaded range.
	maxLoadChunk = 52
	maxWeeks     = 520
)

// ErrDestroyed is returned by input dispatched to a destroyed calendar.
var ErrDestroyed = errors.New("calendar destroyed")

type Direction string

const (
	Past   Direction = "past"
	Future Direction = "future"
)

// DayClickFunc receives a clicked date, the event ids shown on that day and
// the pointer state of the click.
type DayClickFunc func(ctx context.Context, date string, events []string, in ui.Input)

// WeekLoadFunc is called once for every week added by scrolling.
type WeekLoadFunc func(ctx context.Context, direction Direction, weekStart string)

type Options struct {
	WeekStartDay time.Weekday
	// MonthFormat is "short" or "long".
	MonthFormat string
	WeeksToLoad int
	Locale      string
	MarkedDates []string

	OnDayClick DayClickFunc
	OnWeekLoad WeekLoadFunc

	AutoScroll     bool
	ShowWeekdays   bool
	InfiniteScroll bool
	MonthColors    bool

	WeekendOpacity    float64
	MarkedDateOpacity float64
	ShowWeekNumbers   bool
	DayHeight         int

	HighlightToday bool
	ScrollBehavior string
	ColorScheme    string

	// Now defaults to time.Now.
	Now func() time.Time
}

// Calendar is mounted in a ui.Container and renders the loaded weeks.
type Calendar struct {
	mu        sync.RWMutex
	container *ui.Container
	opts      Options
	names     names

	first     time.Time
	weeks     int
	marked    map[string]bool
	focus     string
	destroyed bool
}

// New builds a calendar and mounts it into c. The loaded range is
// opts.WeeksToLoad weeks centred on the current week.
func New(c *ui.Container, opts Options) (*Calendar, error) {
	if c == nil {
		return nil, errors.New("linear calendar needs a container")
	}
	if opts.WeekStartDay < time.Sunday || opts.WeekStartDay > time.Saturday {
		return nil, fmt.Errorf("invalid week start day %d", opts.WeekStartDay)
	}
	if opts.WeeksToLoad <= 0 {
		opts.WeeksToLoad = defaultWeeks
	}
	if opts.WeeksToLoad > maxWeeks {
		opts.WeeksToLoad = maxWeeks
	}
	if opts.DayHeight <= 0 {
		opts.DayHeight = defaultDayHeight
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.ScrollBehavior == "" {
		opts.ScrollBehavior = "smooth"
	}
	if opts.ColorScheme == "" {
		opts.ColorScheme = "default"
	}

	today := day(opts.Now())
	current := weekStart(today, opts.WeekStartDay)

	cal := &Calendar{
		container: c,
		opts:      opts,
		names:     namesFor(opts.Locale),
		first:     current.AddDate(0, 0, -7*(opts.WeeksToLoad/2)),
		weeks:     opts.WeeksToLoad,
		marked:    make(map[string]bool, len(opts.MarkedDates)),
	}
	for _, d := range opts.MarkedDates {
		if _, ok := parseDate(d); ok {
			cal.marked[d] = true
		}
	}
	if opts.AutoScroll {
		cal.focus = today.Format(dateLayout)
	}

	c.Mount(cal)
	return cal, nil
}

func day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func weekStart(d time.Time, start time.Weekday) time.Time {
	offset := (int(d.Weekday()) - int(start) + 7) % 7
	return d.AddDate(0, 0, -offset)
}

func parseDate(s string) (time.Time, bool) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// SetMarkedDates replaces the set of marked dates.
func (c *Calendar) SetMarkedDates(dates []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return
	}
	c.marked = make(map[string]bool, len(dates))
	for _, d := range dates {
		if _, ok := parseDate(d); ok {
			c.marked[d] = true
		}
	}
}

// MarkDate adds date to the marked set. Malformed dates are ignored.
func (c *Calendar) MarkDate(date string) {
	if _, ok := parseDate(date); !ok {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return
	}
	c.marked[date] = true
}

// MarkedDates returns the marked dates in chronological order.
func (c *Calendar) MarkedDates() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.marked))
	for d := range c.marked {
		out = append(out, d)
	}
	slices.Sort(out)
	return out
}

// Range returns the first and last loaded day.
func (c *Calendar) Range() (first, last string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.first.Format(dateLayout), c.first.AddDate(0, 0, 7*c.weeks-1).Format(dateLayout)
}

// Focus returns the date the view scrolls to when rendered.
func (c *Calendar) Focus() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.focus
}

// LoadWeeks grows the loaded range by n weeks in direction and reports each
// new week to OnWeekLoad. The range never grows past maxWeeks weeks.
func (c *Calendar) LoadWeeks(ctx context.Context, direction Direction, n int) error {
	if n <= 0 {
		return nil
	}

	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return ErrDestroyed
	}
	if direction != Past && direction != Future {
		c.mu.Unlock()
		return fmt.Errorf("unknown direction %q", direction)
	}
	n = min(n, maxWeeks-c.weeks)
	if n <= 0 {
		c.mu.Unlock()
		return nil
	}
	var added []time.Time
	switch direction {
	case Past:
		for i := 1; i <= n; i++ {
			added = append(added, c.first.AddDate(0, 0, -7*i))
		}
		c.first = c.first.AddDate(0, 0, -7*n)
	case Future:
		end := c.first.AddDate(0, 0, 7*c.weeks)
		for i := 0; i < n; i++ {
			added = append(added, end.AddDate(0, 0, 7*i))
		}
	}
	c.weeks += n
	cb := c.opts.OnWeekLoad
	c.mu.Unlock()

	if cb == nil {
		return nil
	}
	for _, w := range added {
		cb(ctx, direction, w.Format(dateLayout))
	}
	return nil
}

// ScrollToDate focuses date, loading weeks first if it lies outside the
// loaded range.
func (c *Calendar) ScrollToDate(ctx context.Context, date string) error {
	t, ok := parseDate(date)
	if !ok {
		return fmt.Errorf("invalid date %q", date)
	}

	c.mu.RLock()
	if c.destroyed {
		c.mu.RUnlock()
		return ErrDestroyed
	}
	first := c.first
	weeks := c.weeks
	end := c.first.AddDate(0, 0, 7*c.weeks)
	c.mu.RUnlock()

	var (
		direction Direction
		n         int
	)
	switch {
	case t.Before(first):
		direction = Past
		n = int(first.Sub(weekStart(t, c.opts.WeekStartDay)).Hours()/24) / 7
	case !t.Before(end):
		direction = Future
		n = int(weekStart(t, c.opts.WeekStartDay).Sub(end).Hours()/24)/7 + 1
	}
	if n > 0 {
		if weeks+n > maxWeeks {
			return fmt.Errorf("date %s is too far from the loaded weeks", date)
		}
		if err := c.LoadWeeks(ctx, direction, n); err != nil {
			return err
		}
	}

	c.mu.Lock()
	c.focus = date
	c.mu.Unlock()
	return nil
}

// Destroy unmounts the calendar. Further calls are no-ops.
func (c *Calendar) Destroy() {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return
	}
	c.destroyed = true
	container := c.container
	c.container = nil
	c.mu.Unlock()

	container.Unmount(c)
}

// Dispatch handles input posted by the browser:
//
//	click      date=YYYY-MM-DD [event=id ...] [button, altKey, ...]
//	week-load  direction=past|future [weeks=n]
func (c *Calendar) Dispatch(ctx context.Context, action string, args url.Values) error {
	c.mu.RLock()
	destroyed := c.destroyed
	onClick := c.opts.OnDayClick
	c.mu.RUnlock()
	if destroyed {
		return ErrDestroyed
	}

	switch action {
	case "click":
		date := args.Get("date")
		if _, ok := parseDate(date); !ok {
			return fmt.Errorf("invalid date %q", date)
		}
		if onClick != nil {
			onClick(ctx, date, args["event"], ui.InputFromArgs(args))
		}
		return nil
	case "week-load":
		n := defaultLoadChunk
		if v := args.Get("weeks"); v != "" {
			parsed, err := strconv.Atoi(v)
			if err != nil || parsed <= 0 {
				return fmt.Errorf("invalid week count %q", v)
			}
			n = min(parsed, maxLoadChunk)
		}
		return c.LoadWeeks(ctx, Direction(args.Get("direction")), n)
	default:
		return fmt.Errorf("unknown action %q", action)
	}
}

type dayView struct {
	Date       string
	Day        int
	Class      string
	MonthLabel string
}

type weekView struct {
	Start  string
	Number int
	Days   []dayView
}

type calendarView struct {
	Scheme         string
	ScrollBehavior string
	Focus          string
	InfiniteScroll bool
	DayHeight      int
	WeekendOpacity float64
	MarkedOpacity  float64
	ShowWeekdays   bool
	ShowWeekNums   bool
	Weekdays       []string
	Weeks          []weekView
}

var calendarTmpl = template.Must(template.New("linear").Parse(
	`<div class="linear-calendar scheme-{{.Scheme}}" data-scroll-behavior="{{.ScrollBehavior}}"` +
		`{{if .Focus}} data-focus="{{.Focus}}"{{end}} data-infinite-scroll="{{.InfiniteScroll}}"` +
		` style="--day-height: {{.DayHeight}}px; --weekend-opacity: {{.WeekendOpacity}}; --marked-opacity: {{.MarkedOpacity}}">` +
		`{{if .ShowWeekdays}}<div class="lc-header">{{if .ShowWeekNums}}<span class="lc-weeknum"></span>{{end}}` +
		`{{range .Weekdays}}<span class="lc-weekday">{{.}}</span>{{end}}</div>{{end}}` +
		`{{range .Weeks}}<div class="lc-week" data-week-start="{{.Start}}">` +
		`{{if $.ShowWeekNums}}<span class="lc-weeknum">{{.Number}}</span>{{end}}` +
		`{{range .Days}}<button type="button" class="{{.Class}}" data-date="{{.Date}}">` +
		`{{if .MonthLabel}}<span class="lc-month">{{.MonthLabel}}</span>{{end}}{{.Day}}</button>{{end}}` +
		`</div>{{end}}</div>`))

func (c *Calendar) view() calendarView {
	c.mu.RLock()
	defer c.mu.RUnlock()

	o := c.opts
	today := day(o.Now()).Format(dateLayout)
	v := calendarView{
		Scheme:         o.ColorScheme,
		ScrollBehavior: o.ScrollBehavior,
		Focus:          c.focus,
		InfiniteScroll: o.InfiniteScroll,
		DayHeight:      o.DayHeight,
		WeekendOpacity: o.WeekendOpacity,
		MarkedOpacity:  o.MarkedDateOpacity,
		ShowWeekdays:   o.ShowWeekdays,
		ShowWeekNums:   o.ShowWeekNumbers,
		Weeks:          make([]weekView, 0, c.weeks),
	}
	for i := 0; i < 7; i++ {
		v.Weekdays = append(v.Weekdays, c.names.weekdays[(int(o.WeekStartDay)+i)%7])
	}

	for w := 0; w < c.weeks; w++ {
		start := c.first.AddDate(0, 0, 7*w)
		_, isoWeek := start.AddDate(0, 0, 3).ISOWeek()
		wv := weekView{Start: start.Format(dateLayout), Number: isoWeek, Days: make([]dayView, 0, 7)}
		for d := 0; d < 7; d++ {
			t := start.AddDate(0, 0, d)
			date := t.Format(dateLayout)
			class := "lc-day"
			if t.Weekday() == time.Saturday || t.Weekday() == time.Sunday {
				class += " lc-weekend"
			}
			if c.marked[date] {
				class += " lc-marked"
			}
			if o.HighlightToday && date == today {
				class += " lc-today"
			}
			if o.MonthColors {
				class += " lc-month-" + strconv.Itoa(int(t.Month()))
			}
			dv := dayView{Date: date, Day: t.Day()}
			if t.Day() == 1 || (w == 0 && d == 0) {
				class += " lc-month-start"
				dv.MonthLabel = c.names.month(t.Month(), o.MonthFormat)
			}
			dv.Class = class
			wv.Days = append(wv.Days, dv)
		}
		v.Weeks = append(v.Weeks, wv)
	}
	return v
}

func (c *Calendar) HTML() template.HTML {
	var buf bytes.Buffer
	if err := calendarTmpl.Execute(&buf, c.view()); err != nil {
		return ui.ErrorMessage(err.Error()).HTML()
	}
	return template.HTML(buf.String())
}
