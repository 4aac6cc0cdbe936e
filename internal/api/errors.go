package api

import (
	"errors"
	"fmt"
)

var (
	ErrNotConnected     = errors.New("not connected")
	ErrConnectionClosed = errors.New("connection closed")
	ErrMalformedFrame   = errors.New("malformed frame")
)

// SubscriptionError is the remote error terminal for a single exchange. It
// fails only the caller awaiting that exchange; sibling exchanges on the same
// connection are unaffected.
type SubscriptionError struct {
	ID      uint64
	Payload string
}

func (e *SubscriptionError) Error() string {
	return fmt.Sprintf("subscription %d failed: %s", e.ID, e.Payload)
}
