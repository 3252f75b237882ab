package calendar

import (
	"encoding/json"
	"fmt"

	"github.com/stephanedenis/pensine-plugin-calendar/internal/models"
	"github.com/stephanedenis/pensine-plugin-calendar/internal/ui"
)

// Events the plugin listens to.
const (
	EventCreate       = "calendar:event-create"
	EventUpdate       = "calendar:event-update"
	JournalEntrySaved = "journal:entry-saved"
)

// Events the plugin emits.
const (
	PluginEnabled  = "plugin:enabled"
	PluginDisabled = "plugin:disabled"
	DayClicked     = "calendar:day-click"
	WeekLoaded     = "calendar:week-load"
	EventCreated   = "calendar:event-created"
	EventFailed    = "calendar:event-error"
)

type PluginStatus struct {
	PluginID string `json:"pluginId"`
}

type DayClick struct {
	Date       string   `json:"date"`
	Events     []string `json:"events"`
	MouseEvent ui.Input `json:"mouseEvent"`
}

type WeekLoad struct {
	Direction string `json:"direction"`
	WeekStart string `json:"weekStart"`
}

type EventError struct {
	Error string `json:"error"`
}

// decodeEvent accepts the payload shapes a host may emit: the typed event,
// raw JSON, or any value that marshals to an event object.
func decodeEvent(payload any) (models.Event, error) {
	var event models.Event
	var data []byte

	switch p := payload.(type) {
	case models.Event:
		return p, nil
	case *models.Event:
		if p == nil {
			return event, fmt.Errorf("empty event payload")
		}
		return *p, nil
	case json.RawMessage:
		data = p
	case []byte:
		data = p
	case nil:
		return event, fmt.Errorf("empty event payload")
	default:
		var err error
		if data, err = json.Marshal(p); err != nil {
			return event, fmt.Errorf("encode event payload: %w", err)
		}
	}

	if err := json.Unmarshal(data, &event); err != nil {
		return event, fmt.Errorf("decode event payload: %w", err)
	}
	return event, nil
}

// dateOf extracts the "date" field of a payload. It returns "" when there
// is none.
func dateOf(payload any) string {
	event, err := decodeEvent(payload)
	if err != nil {
		return ""
	}
	return event.Date
}
