package api

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestRegisterIDsStrictlyIncreasing(t *testing.T) {
	mux := NewMux(zap.NewNop())

	var last uint64
	for i := 0; i < 100; i++ {
		ex := mux.Register()
		if ex.ID() <= last {
			t.Fatalf("id %d not greater than previous %d", ex.ID(), last)
		}
		last = ex.ID()
	}
	if mux.PendingCount() != 100 {
		t.Errorf("expected 100 pending, got %d", mux.PendingCount())
	}
}

func TestDispatchResolvesExactlyOne(t *testing.T) {
	mux := NewMux(zap.NewNop())
	first := mux.Register()
	second := mux.Register()

	mux.Dispatch(InboundMessage{Kind: KindData, ID: first.ID(), Payload: []byte(`{"ok":true}`)})

	payload, err := mux.Await(context.Background(), first)
	if err != nil {
		t.Fatalf("Await failed: %v", err)
	}
	if string(payload) != `{"ok":true}` {
		t.Errorf("unexpected payload %q", payload)
	}

	// The sibling must still be pending.
	if mux.PendingCount() != 1 {
		t.Errorf("expected 1 pending, got %d", mux.PendingCount())
	}
	select {
	case <-second.done:
		t.Error("sibling exchange resolved without a terminal")
	default:
	}
}

func TestDispatchUnknownIDIsNoop(t *testing.T) {
	mux := NewMux(zap.NewNop())
	ex := mux.Register()

	mux.Dispatch(InboundMessage{Kind: KindData, ID: 999, Payload: []byte(`{}`)})
	mux.Dispatch(InboundMessage{Kind: KindComplete, ID: 998})
	mux.Dispatch(InboundMessage{Kind: KindError, ID: 997, Payload: []byte(`{}`)})

	if mux.PendingCount() != 1 {
		t.Errorf("expected 1 pending, got %d", mux.PendingCount())
	}
	select {
	case <-ex.done:
		t.Error("exchange resolved by a frame for another id")
	default:
	}
}

func TestDuplicateTerminalIsNoop(t *testing.T) {
	mux := NewMux(zap.NewNop())
	ex := mux.Register()

	mux.Dispatch(InboundMessage{Kind: KindData, ID: ex.ID(), Payload: []byte(`"first"`)})
	mux.Dispatch(InboundMessage{Kind: KindError, ID: ex.ID(), Payload: []byte(`"second"`)})

	payload, err := mux.Await(context.Background(), ex)
	if err != nil {
		t.Fatalf("first terminal should win, got error: %v", err)
	}
	if string(payload) != `"first"` {
		t.Errorf("unexpected payload %q", payload)
	}
	if mux.PendingCount() != 0 {
		t.Errorf("expected 0 pending, got %d", mux.PendingCount())
	}
}

func TestCompleteResolvesEmpty(t *testing.T) {
	mux := NewMux(zap.NewNop())
	ex := mux.Register()

	mux.Dispatch(InboundMessage{Kind: KindComplete, ID: ex.ID()})

	payload, err := mux.Await(context.Background(), ex)
	if err != nil {
		t.Fatalf("Await failed: %v", err)
	}
	if len(payload) != 0 {
		t.Errorf("expected empty payload, got %q", payload)
	}
}

func TestErrorResolvesSubscriptionError(t *testing.T) {
	mux := NewMux(zap.NewNop())
	ex := mux.Register()

	mux.Dispatch(InboundMessage{Kind: KindError, ID: ex.ID(), Payload: []byte(`{"errorCode":"GONE"}`)})

	_, err := mux.Await(context.Background(), ex)
	var subErr *SubscriptionError
	if !errors.As(err, &subErr) {
		t.Fatalf("expected SubscriptionError, got %v", err)
	}
	if subErr.ID != ex.ID() {
		t.Errorf("expected id %d, got %d", ex.ID(), subErr.ID)
	}
	if subErr.Payload != `{"errorCode":"GONE"}` {
		t.Errorf("unexpected payload %q", subErr.Payload)
	}
}

func TestFailAllResolvesEveryPending(t *testing.T) {
	mux := NewMux(zap.NewNop())

	exchanges := make([]*Exchange, 5)
	for i := range exchanges {
		exchanges[i] = mux.Register()
	}

	mux.FailAll(ErrConnectionClosed)

	for i, ex := range exchanges {
		_, err := mux.Await(context.Background(), ex)
		if !errors.Is(err, ErrConnectionClosed) {
			t.Errorf("exchange %d: expected ErrConnectionClosed, got %v", i, err)
		}
	}
	if mux.PendingCount() != 0 {
		t.Errorf("expected empty registry, got %d pending", mux.PendingCount())
	}
}

func TestAwaitCancellationRemovesPending(t *testing.T) {
	mux := NewMux(zap.NewNop())
	ex := mux.Register()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := mux.Await(ctx, ex)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if mux.PendingCount() != 0 {
		t.Errorf("cancelled exchange still pending")
	}

	// A late terminal for the abandoned id must go nowhere.
	mux.Dispatch(InboundMessage{Kind: KindData, ID: ex.ID(), Payload: []byte(`{}`)})
	if mux.PendingCount() != 0 {
		t.Errorf("late terminal re-registered the exchange")
	}
}

func TestConcurrentRegisterAndDispatch(t *testing.T) {
	mux := NewMux(zap.NewNop())

	const n = 50
	done := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			ex := mux.Register()
			go mux.Dispatch(InboundMessage{Kind: KindData, ID: ex.ID(), Payload: []byte(`{}`)})
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_, err := mux.Await(ctx, ex)
			done <- err
		}()
	}

	for i := 0; i < n; i++ {
		if err := <-done; err != nil {
			t.Fatalf("exchange failed: %v", err)
		}
	}
	if mux.PendingCount() != 0 {
		t.Errorf("expected empty registry, got %d pending", mux.PendingCount())
	}
}
