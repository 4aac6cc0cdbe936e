package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Transaction statuses the service is known to send.
const (
	StatusPending  = "PENDING"
	StatusExecuted = "EXECUTED"
	StatusCanceled = "CANCELED"
	StatusCreated  = "CREATED"
)

// TransactionEvent is one timeline entry as delivered by the list feeds,
// optionally joined with its detail document.
type TransactionEvent struct {
	ID        string  `json:"id"`
	Timestamp string  `json:"timestamp"`
	Title     string  `json:"title,omitempty"`
	Subtitle  string  `json:"subtitle,omitempty"`
	EventType string  `json:"eventType,omitempty"`
	Status    string  `json:"status,omitempty"`
	Amount    *Amount `json:"amount,omitempty"`

	// After is the continuation cursor. Only the last item of a page
	// carries a meaningful value; an empty cursor there ends the feed.
	After string `json:"after,omitempty"`

	// Raw is the undecoded list entry, kept for debug dumps.
	Raw json.RawMessage `json:"-"`

	// Detail is the joined detail document, nil until fetched.
	Detail json.RawMessage `json:"details,omitempty"`

	// DetailIncomplete marks events whose detail fetch failed. They are
	// exported with reduced fidelity rather than dropped.
	DetailIncomplete bool `json:"detailIncomplete,omitempty"`
}

// HasAmount reports whether the event carries a monetary amount. Documents
// and pure notifications do not.
func (e *TransactionEvent) HasAmount() bool {
	return e.Amount != nil && e.Amount.Currency != ""
}

// The feeds emit RFC 3339 timestamps, historically also the variant with a
// zone offset lacking the colon.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000-0700",
}

// Time parses the event timestamp.
func (e *TransactionEvent) Time() (time.Time, error) {
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, e.Timestamp); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", e.Timestamp)
}

// Page is one resolved list subscription: the items in arrival order plus
// the continuation cursor carried by the last item, if any.
type Page struct {
	Items  []TransactionEvent
	Cursor string
}

// ParsePage decodes a list feed payload. Each item keeps its raw JSON next
// to the decoded fields. An empty payload, as produced by an empty-success
// terminal, decodes as an empty page.
func ParsePage(payload []byte) (Page, error) {
	if len(bytes.TrimSpace(payload)) == 0 {
		return Page{}, nil
	}

	var envelope struct {
		Items []json.RawMessage `json:"items"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return Page{}, fmt.Errorf("decoding page: %w", err)
	}

	page := Page{Items: make([]TransactionEvent, 0, len(envelope.Items))}
	for i, raw := range envelope.Items {
		var ev TransactionEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			return Page{}, fmt.Errorf("decoding item %d: %w", i, err)
		}
		ev.Raw = raw
		page.Items = append(page.Items, ev)
	}

	if n := len(page.Items); n > 0 {
		page.Cursor = page.Items[n-1].After
	}
	return page, nil
}
