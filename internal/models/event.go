package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"
)

// DateLayout is the format of calendar dates (YYYY-MM-DD).
const DateLayout = "2006-01-02"

// Event is a user-created calendar event. Besides its id and date an event
// carries arbitrary fields that are stored untouched.
type Event struct {
	ID     string
	Date   string
	Fields map[string]any
}

// Title returns the "title" field when it is a string.
func (e Event) Title() string {
	s, _ := e.Fields["title"].(string)
	return s
}

// Validate checks that the event can be stored under
// calendar/events/<date>/<id>.json.
func (e Event) Validate() error {
	if e.ID == "" {
		return errors.New("event id cannot be empty")
	}
	if e.ID == "." || e.ID == ".." || strings.ContainsAny(e.ID, `/\`) {
		return fmt.Errorf("event id %q is not a valid file name", e.ID)
	}
	if e.Date == "" {
		return errors.New("event date cannot be empty")
	}
	if _, err := time.Parse(DateLayout, e.Date); err != nil {
		return fmt.Errorf("event date %q is not YYYY-MM-DD", e.Date)
	}
	return nil
}

// MarshalJSON flattens the event into a single object.
func (e Event) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(e.Fields)+2)
	maps.Copy(out, e.Fields)
	out["id"] = e.ID
	out["date"] = e.Date
	return json.Marshal(out)
}

// UnmarshalJSON keeps numbers as json.Number so that free-form fields are
// written back exactly as they were read.
func (e *Event) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	id, err := stringField(raw, "id")
	if err != nil {
		return err
	}
	date, err := stringField(raw, "date")
	if err != nil {
		return err
	}
	delete(raw, "id")
	delete(raw, "date")

	e.ID = id
	e.Date = date
	e.Fields = raw
	return nil
}

func stringField(raw map[string]any, key string) (string, error) {
	v, ok := raw[key]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("event %s must be a string, got %v", key, v)
	}
	return s, nil
}
