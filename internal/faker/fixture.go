package faker

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// timestampLayout is the millisecond timestamp form the timeline feeds use.
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Fixture is the canned timeline a faker instance serves: the two list
// feeds, newest first, and the detail document per event id.
type Fixture struct {
	Transactions []map[string]any           `json:"transactions"`
	ActivityLog  []map[string]any           `json:"activityLog"`
	Details      map[string]json.RawMessage `json:"details"`
}

// LoadFixture reads a fixture from a JSON file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading fixture: %w", err)
	}

	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing fixture %s: %w", path, err)
	}
	if len(f.Transactions) == 0 {
		return nil, fmt.Errorf("fixture %s has no transactions", path)
	}
	if f.Details == nil {
		f.Details = make(map[string]json.RawMessage)
	}
	return &f, nil
}

// TransactionsPage assembles one page of the transaction feed.
func (f *Fixture) TransactionsPage(after any, size int) ([]byte, error) {
	return pageOf(f.Transactions, after, size)
}

// ActivityLogPage assembles one page of the activity log feed.
func (f *Fixture) ActivityLogPage(after any, size int) ([]byte, error) {
	return pageOf(f.ActivityLog, after, size)
}

// DetailFor returns the detail document for an event id.
func (f *Fixture) DetailFor(id string) (json.RawMessage, bool) {
	detail, ok := f.Details[id]
	return detail, ok
}

// pageOf slices one page out of a feed. A numeric after is the epoch-second
// boundary of the first request and trims older entries; a cursor string
// continues where the previous page stopped. The continuation cursor rides
// in the last item's after field.
func pageOf(items []map[string]any, after any, size int) ([]byte, error) {
	start := 0
	switch v := after.(type) {
	case nil:
	case float64:
		items = sinceFilter(items, int64(v))
	case string:
		if rest, ok := strings.CutPrefix(v, "cursor-"); ok {
			n, err := strconv.Atoi(rest)
			if err != nil {
				return nil, fmt.Errorf("bad cursor %q", v)
			}
			start = n
		} else if since, err := strconv.ParseInt(v, 10, 64); err == nil {
			items = sinceFilter(items, since)
		} else {
			return nil, fmt.Errorf("bad cursor %q", v)
		}
	default:
		return nil, fmt.Errorf("unsupported after value %T", after)
	}

	if start > len(items) {
		start = len(items)
	}
	end := start + size
	if size <= 0 || end > len(items) {
		end = len(items)
	}

	page := make([]map[string]any, 0, end-start)
	page = append(page, items[start:end]...)

	if end < len(items) && len(page) > 0 {
		// Only the last item of a non-final page carries the cursor.
		last := make(map[string]any, len(page[len(page)-1])+1)
		for k, v := range page[len(page)-1] {
			last[k] = v
		}
		last["after"] = "cursor-" + strconv.Itoa(end)
		page[len(page)-1] = last
	}

	return json.Marshal(map[string]any{"items": page})
}

// sinceFilter keeps entries at or after the epoch-second boundary. Feeds are
// newest first, so the order survives.
func sinceFilter(items []map[string]any, since int64) []map[string]any {
	kept := make([]map[string]any, 0, len(items))
	for _, item := range items {
		ts, _ := item["timestamp"].(string)
		t, err := parseTimestamp(ts)
		if err != nil || t.Unix() >= since {
			kept = append(kept, item)
		}
	}
	return kept
}

func parseTimestamp(ts string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.000-0700"} {
		if t, err := time.Parse(layout, ts); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", ts)
}

// DefaultFixture builds a deterministic timeline of n transactions cycling
// through the booking kinds, plus a small activity log with the usual
// amount-less noise and one entry duplicated across both feeds.
func DefaultFixture(n int) *Fixture {
	f := &Fixture{Details: make(map[string]json.RawMessage)}
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < n; i++ {
		id := fmt.Sprintf("tx-%04d", i)
		ts := base.Add(-time.Duration(i) * 24 * time.Hour).Format(timestampLayout)

		var ev, detail map[string]any
		switch i % 4 {
		case 0:
			ev, detail = cardPaymentEntry(id, ts, i)
		case 1:
			ev, detail = depositEntry(id, ts)
		case 2:
			ev, detail = interestEntry(id, ts)
		case 3:
			ev, detail = savingsPlanEntry(id, ts)
		}

		f.Transactions = append(f.Transactions, ev)
		raw, _ := json.Marshal(detail)
		f.Details[id] = raw
	}

	verifyTS := base.Add(-time.Duration(n) * 24 * time.Hour).Format(timestampLayout)
	f.ActivityLog = append(f.ActivityLog,
		map[string]any{
			"id":        "verify-0001",
			"timestamp": verifyTS,
			"title":     "Karte verifiziert",
			"eventType": "card_successful_verification",
		},
		map[string]any{
			"id":        "doc-0001",
			"timestamp": verifyTS,
			"title":     "Basisinformationsblatt",
			"eventType": "timeline_legacy_migrated_events",
		},
	)
	if len(f.Transactions) > 0 {
		// The feeds overlap in practice; mirror the newest transaction.
		f.ActivityLog = append(f.ActivityLog, f.Transactions[0])
	}

	return f
}

func amount(value float64) map[string]any {
	return map[string]any{"currency": "EUR", "value": value, "fractionDigits": 2}
}

func statusRow(kind, text string) map[string]any {
	return map[string]any{
		"title":  kind,
		"detail": map[string]any{"type": "status", "functionalStyle": "EXECUTED", "text": text},
	}
}

func textRow(title, text string) map[string]any {
	return map[string]any{
		"title":  title,
		"detail": map[string]any{"type": "text", "text": text},
	}
}

func cardPaymentEntry(id, ts string, i int) (map[string]any, map[string]any) {
	merchant := fmt.Sprintf("REWE Markt %d", i)
	ev := map[string]any{
		"id": id, "timestamp": ts,
		"title": merchant, "subtitle": "Zahlung",
		"status": "EXECUTED",
		"amount": amount(-(10.50 + float64(i))),
	}
	detail := map[string]any{
		"id": id,
		"sections": []any{
			map[string]any{"type": "table", "title": "Übersicht", "data": []any{
				statusRow("Kartenzahlung", "Fertig"),
				textRow("Händler", merchant),
			}},
		},
	}
	return ev, detail
}

func depositEntry(id, ts string) (map[string]any, map[string]any) {
	ev := map[string]any{
		"id": id, "timestamp": ts,
		"title": "Max Mustermann", "subtitle": "Fertig",
		"status": "EXECUTED",
		"amount": amount(500),
	}
	detail := map[string]any{
		"id": id,
		"sections": []any{
			map[string]any{"type": "table", "title": "Übersicht", "data": []any{
				statusRow("Überweisung", "Fertig"),
			}},
			map[string]any{"type": "table", "title": "Absender", "data": []any{
				textRow("Absender", "Max Mustermann"),
				textRow("IBAN", "DE12 3456 7890 1234 5678 90"),
			}},
			map[string]any{"type": "note", "title": "Verwendungszweck",
				"data": map[string]any{"type": "text", "text": "Monatliche Einzahlung"}},
		},
	}
	return ev, detail
}

func interestEntry(id, ts string) (map[string]any, map[string]any) {
	ev := map[string]any{
		"id": id, "timestamp": ts,
		"title": "Zinsen", "subtitle": "2 % p.a.",
		"status": "EXECUTED",
		"amount": amount(12.34),
	}
	detail := map[string]any{
		"id": id,
		"sections": []any{
			map[string]any{"type": "table", "title": "Übersicht", "data": []any{
				statusRow("Zinsen", "Fertig"),
				textRow("Durchschnittssaldo", "7.500,00 €"),
				textRow("Gesamt", "12,34 €"),
			}},
		},
	}
	return ev, detail
}

func savingsPlanEntry(id, ts string) (map[string]any, map[string]any) {
	ev := map[string]any{
		"id": id, "timestamp": ts,
		"title": "MSCI World", "subtitle": "Sparplan ausgeführt",
		"status": "EXECUTED",
		"amount": amount(-50),
	}
	detail := map[string]any{
		"id": id,
		"sections": []any{
			map[string]any{"type": "header", "title": "Sparplan ausgeführt",
				"action": map[string]any{"type": "instrumentDetail", "payload": "IE00B4L5Y983"}},
			map[string]any{"type": "table", "title": "Übersicht", "data": []any{
				statusRow("Sparplan", "Ausgeführt"),
				textRow("Asset", "MSCI World"),
				textRow("Summe", "50,00 €"),
			}},
		},
	}
	return ev, detail
}
