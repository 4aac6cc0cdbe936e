package api

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// MessageKind discriminates the inbound frame variants.
type MessageKind int

const (
	// KindHandshake is the literal "connected" acknowledgement sent once
	// after the connect frame. It carries no subscription id.
	KindHandshake MessageKind = iota
	// KindData is "<id> A <json>", the success terminal for an exchange.
	KindData
	// KindComplete is "<id> C", the empty success terminal.
	KindComplete
	// KindError is "<id> E <json>", the failure terminal.
	KindError
)

func (k MessageKind) String() string {
	switch k {
	case KindHandshake:
		return "handshake"
	case KindData:
		return "data"
	case KindComplete:
		return "complete"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// InboundMessage is one decoded frame from the server. Every kind except the
// handshake is terminal for the exchange named by ID.
type InboundMessage struct {
	Kind    MessageKind
	ID      uint64
	Payload json.RawMessage
}

const handshakeAck = "connected"

// EncodeConnect builds the handshake frame sent once after dialing. The
// connect id is fixed by the service per login mode.
func EncodeConnect(id int, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encoding connect payload: %w", err)
	}
	return fmt.Sprintf("connect %d %s", id, data), nil
}

// EncodeSub builds the frame opening the exchange with the given id.
func EncodeSub(id uint64, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encoding sub payload: %w", err)
	}
	return fmt.Sprintf("sub %d %s", id, data), nil
}

// DecodeInbound parses one raw text frame. Frames that match no known shape
// fail with ErrMalformedFrame; the caller logs and drops them without
// touching any exchange. A data frame whose payload is not valid JSON decodes
// as an error terminal for its exchange instead of poisoning the connection.
func DecodeInbound(frame string) (InboundMessage, error) {
	trimmed := strings.TrimSpace(frame)
	if trimmed == handshakeAck {
		return InboundMessage{Kind: KindHandshake}, nil
	}

	parts := strings.SplitN(trimmed, " ", 3)
	if len(parts) < 2 {
		return InboundMessage{}, fmt.Errorf("%w: %q", ErrMalformedFrame, frame)
	}

	id, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return InboundMessage{}, fmt.Errorf("%w: bad subscription id %q", ErrMalformedFrame, parts[0])
	}

	var payload string
	if len(parts) == 3 {
		payload = parts[2]
	}

	switch parts[1] {
	case "A":
		if !json.Valid([]byte(payload)) {
			return InboundMessage{
				Kind:    KindError,
				ID:      id,
				Payload: json.RawMessage(`{"errorCode":"UNPARSEABLE_PAYLOAD"}`),
			}, nil
		}
		return InboundMessage{Kind: KindData, ID: id, Payload: json.RawMessage(payload)}, nil
	case "C":
		return InboundMessage{Kind: KindComplete, ID: id}, nil
	case "E":
		return InboundMessage{Kind: KindError, ID: id, Payload: json.RawMessage(payload)}, nil
	default:
		return InboundMessage{}, fmt.Errorf("%w: unknown message code %q", ErrMalformedFrame, parts[1])
	}
}
