package timeline

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"go.uber.org/zap"
)

// scriptedClient replays canned pages and records the after parameter of
// every request.
type scriptedClient struct {
	pages  []string
	calls  int
	afters []any
	err    error
}

func (c *scriptedClient) nextPage(after any) (json.RawMessage, error) {
	c.afters = append(c.afters, after)
	if c.err != nil {
		return nil, c.err
	}
	if c.calls >= len(c.pages) {
		return json.RawMessage(`{"items":[]}`), nil
	}
	page := c.pages[c.calls]
	c.calls++
	return json.RawMessage(page), nil
}

func (c *scriptedClient) TimelineTransactions(_ context.Context, after any) (json.RawMessage, error) {
	return c.nextPage(after)
}

func (c *scriptedClient) TimelineActivityLog(_ context.Context, after any) (json.RawMessage, error) {
	return c.nextPage(after)
}

func (c *scriptedClient) TimelineDetail(_ context.Context, eventID string) (json.RawMessage, error) {
	return json.RawMessage(`{"id":"` + eventID + `"}`), nil
}

func TestFetchAllFollowsCursors(t *testing.T) {
	client := &scriptedClient{
		pages: []string{
			`{"items":[{"id":"x1"},{"id":"x2","after":"c1"}]}`,
			`{"items":[{"id":"x3"},{"id":"x4","after":"c2"}]}`,
			`{"items":[{"id":"x5"}]}`,
		},
	}
	pager := NewPager(client, zap.NewNop())

	events, err := pager.FetchAll(context.Background(), FeedTransactions, 0)
	if err != nil {
		t.Fatalf("FetchAll failed: %v", err)
	}

	if len(events) != 5 {
		t.Fatalf("expected 5 events, got %d", len(events))
	}
	for i, want := range []string{"x1", "x2", "x3", "x4", "x5"} {
		if events[i].ID != want {
			t.Errorf("event %d: got %q, want %q", i, events[i].ID, want)
		}
	}

	// First request starts fresh, the rest carry the previous cursor.
	wantAfters := []any{nil, "c1", "c2"}
	if len(client.afters) != len(wantAfters) {
		t.Fatalf("expected %d requests, got %d", len(wantAfters), len(client.afters))
	}
	for i, want := range wantAfters {
		if client.afters[i] != want {
			t.Errorf("request %d: got after=%v, want %v", i, client.afters[i], want)
		}
	}
}

func TestFetchAllSinceBoundaryOnFirstRequest(t *testing.T) {
	client := &scriptedClient{
		pages: []string{`{"items":[{"id":"x1","after":"c1"}]}`, `{"items":[{"id":"x2"}]}`},
	}
	pager := NewPager(client, zap.NewNop())

	if _, err := pager.FetchAll(context.Background(), FeedActivityLog, 1700000000); err != nil {
		t.Fatalf("FetchAll failed: %v", err)
	}

	if got := client.afters[0]; got != int64(1700000000) {
		t.Errorf("first request: got after=%v, want the since boundary", got)
	}
	if got := client.afters[1]; got != "c1" {
		t.Errorf("second request: got after=%v, want cursor c1", got)
	}
}

func TestFetchAllEmptyFeed(t *testing.T) {
	client := &scriptedClient{pages: []string{`{"items":[]}`}}
	pager := NewPager(client, zap.NewNop())

	events, err := pager.FetchAll(context.Background(), FeedTransactions, 0)
	if err != nil {
		t.Fatalf("FetchAll failed: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("expected no events, got %d", len(events))
	}
	if len(client.afters) != 1 {
		t.Errorf("expected exactly one request, got %d", len(client.afters))
	}
}

func TestFetchAllStopsWithoutCursor(t *testing.T) {
	// A page whose last item has no cursor ends the feed even if the
	// script could serve more.
	client := &scriptedClient{
		pages: []string{
			`{"items":[{"id":"x1"}]}`,
			`{"items":[{"id":"never"}]}`,
		},
	}
	pager := NewPager(client, zap.NewNop())

	events, err := pager.FetchAll(context.Background(), FeedTransactions, 0)
	if err != nil {
		t.Fatalf("FetchAll failed: %v", err)
	}
	if len(events) != 1 {
		t.Errorf("expected 1 event, got %d", len(events))
	}
}

func TestFetchAllPropagatesError(t *testing.T) {
	wantErr := errors.New("boom")
	client := &scriptedClient{err: wantErr}
	pager := NewPager(client, zap.NewNop())

	_, err := pager.FetchAll(context.Background(), FeedTransactions, 0)
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected wrapped boom, got %v", err)
	}
}

func TestFetchAllUnknownFeed(t *testing.T) {
	pager := NewPager(&scriptedClient{}, zap.NewNop())
	if _, err := pager.FetchAll(context.Background(), Feed("bogus"), 0); err == nil {
		t.Error("expected error for unknown feed")
	}
}
