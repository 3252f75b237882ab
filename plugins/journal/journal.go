// Package journal keeps one markdown page per day under journal/entries and
// serves it at /journal/:date.
package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"

	"github.com/stephanedenis/pensine-plugin-calendar/internal/host"
	"github.com/stephanedenis/pensine-plugin-calendar/internal/models"
	"github.com/stephanedenis/pensine-plugin-calendar/internal/ui"
)

const (
	PluginID   = "journal"
	pluginName = "Journal"

	entriesPrefix = "journal/entries/"
	containerID   = "journal-entry"
)

// Events.
const (
	EntrySave   = "journal:entry-save"
	EntrySaved  = "journal:entry-saved"
	EntryFailed = "journal:entry-error"
)

// SaveRequest is the payload of journal:entry-save.
type SaveRequest struct {
	Date string `json:"date"`
	Body string `json:"body"`
}

// Saved is the payload of journal:entry-saved.
type Saved struct {
	Date string `json:"date"`
}

type SaveError struct {
	Date  string `json:"date"`
	Error string `json:"error"`
}

type Plugin struct {
	hc     host.Context
	logger log.Logger
	now    func() time.Time

	mu      sync.Mutex
	enabled bool
}

type Option func(*Plugin)

func WithLogger(logger log.Logger) Option {
	return func(p *Plugin) { p.logger = logger }
}

func WithClock(now func() time.Time) Option {
	return func(p *Plugin) { p.now = now }
}

func New(hc host.Context, opts ...Option) *Plugin {
	p := &Plugin{hc: hc, logger: log.NewNopLogger(), now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = log.With(p.logger, "plugin", PluginID)
	return p
}

func (p *Plugin) ID() string   { return PluginID }
func (p *Plugin) Name() string { return pluginName }

func (p *Plugin) Enable(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.enabled {
		return nil
	}
	p.enabled = true

	p.hc.Router.Register("/journal/:date", p.renderEntry)
	p.hc.Events.On(EntrySave, p.handleEntrySave, PluginID)
	level.Info(p.logger).Log("msg", "plugin enabled")
	return nil
}

func (p *Plugin) Disable(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enabled = false
	p.hc.Events.Off(PluginID)
	level.Info(p.logger).Log("msg", "plugin disabled")
	return nil
}

func (p *Plugin) isEnabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enabled
}

func entryPath(date string) string {
	return entriesPrefix + date + ".json"
}

func validDate(date string) error {
	if _, err := time.Parse(models.DateLayout, date); err != nil {
		return fmt.Errorf("date %q is not YYYY-MM-DD", date)
	}
	return nil
}

// Load returns the entry of date. A day without an entry yields an empty
// entry.
func (p *Plugin) Load(ctx context.Context, date string) (Entry, error) {
	if err := validDate(date); err != nil {
		return Entry{}, err
	}
	entry := Entry{Date: date}
	err := p.hc.Storage.ReadJSON(ctx, entryPath(date), &entry)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Entry{}, fmt.Errorf("read entry %s: %w", date, err)
	}
	entry.Date = date
	return entry, nil
}

// Save stores the entry of date and announces it.
func (p *Plugin) Save(ctx context.Context, date, body string) error {
	if err := validDate(date); err != nil {
		return err
	}
	entry := Entry{Date: date, Body: body, Updated: p.now().UTC()}
	if err := p.hc.Storage.WriteJSON(ctx, entryPath(date), entry); err != nil {
		return fmt.Errorf("write entry %s: %w", date, err)
	}

	level.Debug(p.logger).Log("msg", "entry saved", "date", date)
	p.hc.Events.Emit(ctx, EntrySaved, Saved{Date: date})
	return nil
}

func (p *Plugin) renderEntry(ctx context.Context, params map[string]string) (ui.Element, error) {
	if !p.isEnabled() {
		return nil, host.ErrRouteDisabled
	}

	entry, err := p.Load(ctx, params["date"])
	if err != nil {
		level.Warn(p.logger).Log("msg", "load entry", "date", params["date"], "err", err)
		return ui.ErrorMessage(err.Error()), nil
	}

	container := ui.NewContainer(containerID, "pensine-journal")
	container.Mount(&entryView{
		entry: entry,
		save: func(ctx context.Context, date, body string) error {
			if err := p.Save(ctx, date, body); err != nil {
				return err
			}
			p.hc.Router.Navigate(ctx, "/journal/"+date)
			return nil
		},
	})
	return container, nil
}

func decodeSaveRequest(payload any) (SaveRequest, error) {
	var req SaveRequest
	switch v := payload.(type) {
	case SaveRequest:
		return v, nil
	case json.RawMessage:
		return req, json.Unmarshal(v, &req)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return req, err
		}
		return req, json.Unmarshal(data, &req)
	}
}

func (p *Plugin) handleEntrySave(ctx context.Context, payload any) {
	req, err := decodeSaveRequest(payload)
	if err != nil {
		err = fmt.Errorf("decode entry payload: %w", err)
	} else {
		err = p.Save(ctx, req.Date, req.Body)
	}
	if err != nil {
		level.Error(p.logger).Log("msg", "save entry", "err", err)
		p.hc.Events.Emit(ctx, EntryFailed, SaveError{Date: req.Date, Error: err.Error()})
	}
}
