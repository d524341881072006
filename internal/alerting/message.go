package alerting

import (
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/test7679/gold-rate-alert/internal/extract"
	"github.com/test7679/gold-rate-alert/internal/fetcher"
	"github.com/test7679/gold-rate-alert/internal/rates"
)

// Kind distinguishes rate reports from failure reports.
type Kind int

const (
	KindRates Kind = iota
	KindFailure
)

func (k Kind) String() string {
	if k == KindFailure {
		return "failure"
	}
	return "rates"
}

// Notification carries everything needed to render one message.
type Notification struct {
	Kind       Kind
	Rates      rates.Snapshot
	Previous   *rates.Snapshot
	ObservedAt time.Time
	SourceURL  string
	Err        error
}

// Format controls titles and timestamps in rendered messages.
type Format struct {
	Title      string
	Location   *time.Location
	TimeFormat string
	// HTML escapes dynamic text for Telegram's HTML parse mode.
	HTML bool
}

// Render builds the message text for note.
func (f Format) Render(note Notification) string {
	if note.Kind == KindFailure {
		return f.renderFailure(note)
	}
	return f.renderRates(note)
}

func (f Format) renderRates(note Notification) string {
	var b strings.Builder
	b.WriteString("💰 " + f.escape(f.Title) + "\n\n")
	for _, key := range note.Rates.Keys() {
		value, _ := note.Rates.Get(key)
		line := fmt.Sprintf("• %s: ₹%s/g", key, value)
		if delta := change(note.Previous, key, value); delta != "" {
			line += " (" + delta + ")"
		}
		b.WriteString(f.escape(line) + "\n")
	}
	b.WriteString("\n")
	f.writeFooter(&b, note)
	return b.String()
}

func (f Format) renderFailure(note Notification) string {
	var b strings.Builder
	b.WriteString("⚠️ " + f.escape(f.Title) + "\n\n")
	b.WriteString(failureReason(note.Err) + "\n")
	if note.Err != nil {
		b.WriteString("Error: " + f.escape(note.Err.Error()) + "\n")
	}
	b.WriteString("\n")
	f.writeFooter(&b, note)
	return b.String()
}

func (f Format) writeFooter(b *strings.Builder, note Notification) {
	at := note.ObservedAt
	loc := f.Location
	if loc == nil {
		loc = time.UTC
	}
	layout := f.TimeFormat
	if layout == "" {
		layout = "02-01-2006 03:04 PM"
	}
	b.WriteString(fmt.Sprintf("🕰 Time (%s): %s", zoneLabel(loc, at), at.In(loc).Format(layout)))
	if note.SourceURL != "" {
		b.WriteString("\n🔗 " + f.escape(note.SourceURL))
	}
}

func (f Format) escape(s string) string {
	if f.HTML {
		return html.EscapeString(s)
	}
	return s
}

func failureReason(err error) string {
	var fetchErr *fetcher.FetchError
	switch {
	case errors.Is(err, extract.ErrNoRates):
		return "No rates detected."
	case errors.As(err, &fetchErr):
		return "Page could not be loaded."
	default:
		return "Rate check failed."
	}
}

// change renders the signed difference against the previous value, or "" when there is none.
func change(prev *rates.Snapshot, key rates.Key, value string) string {
	if prev == nil {
		return ""
	}
	old, ok := prev.Get(key)
	if !ok {
		return "new"
	}
	before, err := decimal.NewFromString(old)
	if err != nil {
		return ""
	}
	after, err := decimal.NewFromString(value)
	if err != nil {
		return ""
	}
	diff := after.Sub(before)
	switch diff.Sign() {
	case 1:
		return "+" + diff.String()
	case -1:
		return diff.String()
	default:
		return ""
	}
}

func zoneLabel(loc *time.Location, at time.Time) string {
	name, _ := at.In(loc).Zone()
	return name
}
