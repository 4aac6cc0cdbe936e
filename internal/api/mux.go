package api

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

// Exchange is the awaitable half of one pending request/response pair
// multiplexed over the shared connection.
type Exchange struct {
	id   uint64
	done chan exchangeResult
}

type exchangeResult struct {
	payload json.RawMessage
	err     error
}

// ID returns the subscription id this exchange was registered under.
func (e *Exchange) ID() uint64 { return e.id }

// resolve delivers the terminal result. The channel is buffered so the
// dispatcher never blocks on a slow caller; a stray duplicate is dropped.
func (e *Exchange) resolve(res exchangeResult) {
	select {
	case e.done <- res:
	default:
	}
}

// Mux correlates inbound terminal frames with pending exchanges. A single
// reader goroutine dispatches while any number of callers register and await;
// the registry map is the only shared state.
type Mux struct {
	logger *zap.Logger

	mu      sync.Mutex
	nextID  uint64
	pending map[uint64]*Exchange
}

func NewMux(logger *zap.Logger) *Mux {
	return &Mux{
		logger:  logger,
		nextID:  1,
		pending: make(map[uint64]*Exchange),
	}
}

// Register mints the next subscription id and tracks a pending exchange for
// it. Ids are strictly increasing and never reused for the lifetime of the
// connection.
func (m *Mux) Register() *Exchange {
	m.mu.Lock()
	defer m.mu.Unlock()

	ex := &Exchange{
		id:   m.nextID,
		done: make(chan exchangeResult, 1),
	}
	m.nextID++
	m.pending[ex.id] = ex
	return ex
}

// Remove drops a pending exchange without resolving it, for callers that
// failed to send or gave up waiting. A terminal frame arriving afterwards is
// treated as unknown.
func (m *Mux) Remove(id uint64) {
	m.mu.Lock()
	delete(m.pending, id)
	m.mu.Unlock()
}

// take claims the pending exchange for id. Removing under the lock before
// resolving guarantees at most one terminal ever reaches an exchange.
func (m *Mux) take(id uint64) (*Exchange, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ex, ok := m.pending[id]
	if ok {
		delete(m.pending, id)
	}
	return ex, ok
}

// Dispatch routes one inbound terminal to the exchange awaiting it. Frames
// for ids with no pending exchange are logged and dropped, so late or
// duplicate terminals can never resolve anything twice.
func (m *Mux) Dispatch(msg InboundMessage) {
	switch msg.Kind {
	case KindHandshake:
		// Resolved out of band by the client; nothing is pending under an id.
	case KindData:
		ex, ok := m.take(msg.ID)
		if !ok {
			m.dropUnknown(msg)
			return
		}
		ex.resolve(exchangeResult{payload: msg.Payload})
	case KindComplete:
		ex, ok := m.take(msg.ID)
		if !ok {
			m.dropUnknown(msg)
			return
		}
		ex.resolve(exchangeResult{})
	case KindError:
		ex, ok := m.take(msg.ID)
		if !ok {
			m.dropUnknown(msg)
			return
		}
		ex.resolve(exchangeResult{err: &SubscriptionError{ID: msg.ID, Payload: string(msg.Payload)}})
	}
}

func (m *Mux) dropUnknown(msg InboundMessage) {
	m.logger.Debug("dropping frame for unknown subscription",
		zap.Uint64("id", msg.ID),
		zap.Stringer("kind", msg.Kind),
	)
}

// Await blocks until ex resolves or ctx ends. Cancellation removes the
// pending entry, so a terminal arriving afterwards is dropped as unknown
// instead of resolving into the void.
func (m *Mux) Await(ctx context.Context, ex *Exchange) (json.RawMessage, error) {
	select {
	case res := <-ex.done:
		return res.payload, res.err
	case <-ctx.Done():
		m.Remove(ex.id)
		return nil, ctx.Err()
	}
}

// FailAll resolves every pending exchange with err and empties the registry.
// Called once when the connection closes under outstanding requests.
func (m *Mux) FailAll(err error) {
	m.mu.Lock()
	pending := m.pending
	m.pending = make(map[uint64]*Exchange)
	m.mu.Unlock()

	if len(pending) > 0 {
		m.logger.Debug("failing pending exchanges", zap.Int("count", len(pending)), zap.Error(err))
	}
	for _, ex := range pending {
		ex.resolve(exchangeResult{err: err})
	}
}

// PendingCount reports how many exchanges are awaiting a terminal.
func (m *Mux) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}
