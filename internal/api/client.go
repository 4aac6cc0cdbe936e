package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	// DefaultEndpoint is the production WebSocket endpoint.
	DefaultEndpoint = "wss://api.traderepublic.com"

	// The service expects a fixed connect id per login mode.
	connectIDWeb = 31
	connectIDApp = 21
)

// LoginMode selects the handshake payload shape and how the session
// credential travels.
type LoginMode string

const (
	// LoginModeWeb authenticates via the session cookie from the web login
	// flow, passed as a header on the WebSocket dial.
	LoginModeWeb LoginMode = "web"
	// LoginModeApp authenticates via a session token injected into every
	// subscription payload.
	LoginModeApp LoginMode = "app"
)

// Subscription types the timeline stages use.
const (
	SubTimelineTransactions = "timelineTransactions"
	SubTimelineActivityLog  = "timelineActivityLog"
	SubTimelineDetail       = "timelineDetailV2"
)

// Options configure a Client.
type Options struct {
	Endpoint     string
	Locale       string
	LoginMode    LoginMode
	CookieHeader string // web mode: Cookie header for the dial
	SessionToken string // app mode: token injected into sub payloads

	// RatePerSecond paces outbound subscriptions; 0 disables pacing.
	RatePerSecond int
	// SubscribeTimeout bounds how long one exchange may stay pending;
	// 0 waits indefinitely.
	SubscribeTimeout time.Duration
}

// Client multiplexes request/response exchanges over one persistent
// WebSocket connection. Safe for concurrent use once Connect returns.
type Client struct {
	transport *Transport
	mux       *Mux
	opts      Options
	limiter   *rate.Limiter
	logger    *zap.Logger

	handshake  chan struct{} // closed once the connected ack arrives
	readerDone chan struct{} // closed when the read loop exits
	closeOnce  sync.Once
}

func NewClient(opts Options, logger *zap.Logger) *Client {
	if opts.Endpoint == "" {
		opts.Endpoint = DefaultEndpoint
	}
	if opts.Locale == "" {
		opts.Locale = "de"
	}
	if opts.LoginMode == "" {
		opts.LoginMode = LoginModeWeb
	}

	var limiter *rate.Limiter
	if opts.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), opts.RatePerSecond*2)
	}

	return &Client{
		transport:  NewTransport(logger),
		mux:        NewMux(logger),
		opts:       opts,
		limiter:    limiter,
		logger:     logger,
		handshake:  make(chan struct{}),
		readerDone: make(chan struct{}),
	}
}

// Connect dials the endpoint, starts the read loop, sends the connect frame
// and blocks until the server acknowledges with "connected". No subscription
// may be opened before that.
func (c *Client) Connect(ctx context.Context) error {
	header := http.Header{}
	if c.opts.LoginMode == LoginModeWeb && c.opts.CookieHeader != "" {
		header.Set("Cookie", c.opts.CookieHeader)
	}

	if err := c.transport.Dial(ctx, c.opts.Endpoint, header); err != nil {
		return err
	}

	go c.readLoop()

	frame, err := EncodeConnect(c.connectID(), c.connectPayload())
	if err != nil {
		c.Close()
		return err
	}
	if err := c.transport.Send(frame); err != nil {
		c.Close()
		return fmt.Errorf("sending connect: %w", err)
	}

	select {
	case <-c.handshake:
		c.logger.Info("connected", zap.String("endpoint", c.opts.Endpoint), zap.String("mode", string(c.opts.LoginMode)))
		return nil
	case <-c.readerDone:
		return ErrConnectionClosed
	case <-ctx.Done():
		c.Close()
		return ctx.Err()
	}
}

func (c *Client) connectID() int {
	if c.opts.LoginMode == LoginModeApp {
		return connectIDApp
	}
	return connectIDWeb
}

func (c *Client) connectPayload() any {
	if c.opts.LoginMode == LoginModeApp {
		return map[string]string{"locale": c.opts.Locale}
	}
	return map[string]string{
		"locale":          c.opts.Locale,
		"platformId":      "webtrading",
		"platformVersion": "chrome - 94.0.4606",
		"clientId":        "app.traderepublic.com",
		"clientVersion":   "5582",
	}
}

// readLoop is the single reader. It decodes every inbound frame and hands
// terminals to the mux; when the connection dies, every pending exchange
// fails with ErrConnectionClosed.
func (c *Client) readLoop() {
	defer func() {
		_ = c.transport.Close()
		c.mux.FailAll(ErrConnectionClosed)
		close(c.readerDone)
	}()

	handshaken := false
	for {
		frame, err := c.transport.Receive()
		if err != nil {
			if !c.transport.Closed() {
				c.logger.Debug("read loop ended", zap.Error(err))
			}
			return
		}

		msg, err := DecodeInbound(frame)
		if err != nil {
			// Malformed frames are diagnostics, never terminal for anyone.
			c.logger.Warn("dropping malformed frame", zap.String("frame", frame), zap.Error(err))
			continue
		}

		if msg.Kind == KindHandshake {
			if !handshaken {
				handshaken = true
				close(c.handshake)
			}
			continue
		}
		c.mux.Dispatch(msg)
	}
}

// Subscribe opens one exchange of the given type and blocks until its
// terminal message. params are merged into the payload next to the type
// field. Concurrent calls interleave freely on the connection.
func (c *Client) Subscribe(ctx context.Context, subType string, params map[string]any) (json.RawMessage, error) {
	select {
	case <-c.handshake:
	default:
		return nil, ErrNotConnected
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	payload := make(map[string]any, len(params)+2)
	payload["type"] = subType
	for k, v := range params {
		payload[k] = v
	}
	if c.opts.LoginMode == LoginModeApp && c.opts.SessionToken != "" {
		payload["token"] = c.opts.SessionToken
	}

	ex := c.mux.Register()
	frame, err := EncodeSub(ex.ID(), payload)
	if err != nil {
		c.mux.Remove(ex.ID())
		return nil, err
	}

	c.logger.Debug("subscribing", zap.Uint64("id", ex.ID()), zap.String("type", subType))

	if err := c.transport.Send(frame); err != nil {
		c.mux.Remove(ex.ID())
		return nil, fmt.Errorf("sending subscription %d: %w", ex.ID(), err)
	}

	if c.opts.SubscribeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.SubscribeTimeout)
		defer cancel()
	}

	return c.mux.Await(ctx, ex)
}

// TimelineTransactions fetches one page of the transaction feed. after is
// either the epoch-second boundary for the first page (int64) or the
// continuation cursor from the previous page (string); nil starts from the
// newest entry.
func (c *Client) TimelineTransactions(ctx context.Context, after any) (json.RawMessage, error) {
	return c.Subscribe(ctx, SubTimelineTransactions, afterParams(after))
}

// TimelineActivityLog fetches one page of the activity log feed.
func (c *Client) TimelineActivityLog(ctx context.Context, after any) (json.RawMessage, error) {
	return c.Subscribe(ctx, SubTimelineActivityLog, afterParams(after))
}

// TimelineDetail fetches the detail document for one timeline event.
func (c *Client) TimelineDetail(ctx context.Context, eventID string) (json.RawMessage, error) {
	return c.Subscribe(ctx, SubTimelineDetail, map[string]any{"id": eventID})
}

func afterParams(after any) map[string]any {
	switch v := after.(type) {
	case nil:
		return nil
	case string:
		if v == "" {
			return nil
		}
	case int64:
		if v <= 0 {
			return nil
		}
	}
	return map[string]any{"after": after}
}

// Pending reports how many exchanges are awaiting a terminal.
func (c *Client) Pending() int {
	return c.mux.PendingCount()
}

// Close tears the connection down. Every pending exchange resolves with
// ErrConnectionClosed once the read loop exits.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		_ = c.transport.Close()
	})
}
