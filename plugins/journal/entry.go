package journal

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/url"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	goldmarkHTML "github.com/yuin/goldmark/renderer/html"

	"github.com/stephanedenis/pensine-plugin-calendar/internal/ui"
)

// Entry is the journal page of one day.
type Entry struct {
	Date    string    `json:"date"`
	Body    string    `json:"body"`
	Updated time.Time `json:"updated,omitempty"`
}

// markdown renders entry bodies. Raw HTML in a body is dropped.
var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(goldmarkHTML.WithHardWraps()),
)

func renderMarkdown(body string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(body), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return template.HTML(buf.String()), nil
}

var entryTmpl = template.Must(template.New("entry").Parse(
	`<article class="journal-entry" data-date="{{.Date}}">` +
		`<header><a class="journal-back" href="/calendar">Calendrier</a><h1>{{.Date}}</h1></header>` +
		`<div class="journal-body">{{.Rendered}}</div>` +
		`<form method="post" action="/ui/{{.Container}}/save">` +
		`<input type="hidden" name="date" value="{{.Date}}">` +
		`<textarea name="body" rows="12">{{.Body}}</textarea>` +
		`<button type="submit">Enregistrer</button></form></article>`))

// entryView shows one entry with its edit form. Posting the form saves the
// entry and reloads the page. Every journal page shares one container, so the
// form names the day it edits.
type entryView struct {
	entry Entry
	save  func(ctx context.Context, date, body string) error
}

func (v *entryView) HTML() template.HTML {
	rendered, err := renderMarkdown(v.entry.Body)
	if err != nil {
		rendered = template.HTML(template.HTMLEscapeString(v.entry.Body))
	}

	var buf bytes.Buffer
	err = entryTmpl.Execute(&buf, struct {
		Entry
		Rendered  template.HTML
		Container string
	}{v.entry, rendered, containerID})
	if err != nil {
		return ui.ErrorMessage(err.Error()).HTML()
	}
	return template.HTML(buf.String())
}

func (v *entryView) Dispatch(ctx context.Context, action string, args url.Values) error {
	if action != "save" {
		return fmt.Errorf("unknown action %q", action)
	}
	date := args.Get("date")
	if date == "" {
		return errors.New("entry form has no date")
	}
	return v.save(ctx, date, args.Get("body"))
}
