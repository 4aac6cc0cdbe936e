package faker

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/hibiscus-tools/tr-hibiscus/internal/api"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024
)

// session speaks the subscription protocol on one WebSocket connection:
// connect frames are acknowledged, sub frames answered from the fixture.
type session struct {
	conn     *websocket.Conn
	fixture  *Fixture
	pageSize int
	logger   *zap.Logger
}

func (s *session) run() {
	defer s.conn.Close()
	s.conn.SetReadLimit(maxMessageSize)

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.logger.Debug("websocket read error", zap.Error(err))
			}
			return
		}

		line := strings.TrimSpace(string(data))
		switch {
		case strings.HasPrefix(line, "connect "):
			s.write("connected")
		case strings.HasPrefix(line, "sub "):
			s.handleSub(line)
		default:
			s.logger.Warn("unhandled frame", zap.String("frame", line))
		}
	}
}

func (s *session) handleSub(line string) {
	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 3 {
		s.logger.Warn("sub frame without payload", zap.String("frame", line))
		return
	}
	id := parts[1]

	var req struct {
		Type  string `json:"type"`
		After any    `json:"after"`
		ID    string `json:"id"`
	}
	if err := json.Unmarshal([]byte(parts[2]), &req); err != nil {
		s.writeError(id, "BAD_REQUEST")
		return
	}

	s.logger.Debug("subscription",
		zap.String("id", id),
		zap.String("type", req.Type),
		zap.Any("after", req.After),
	)

	switch req.Type {
	case api.SubTimelineTransactions:
		payload, err := s.fixture.TransactionsPage(req.After, s.pageSize)
		s.writePage(id, payload, err)
	case api.SubTimelineActivityLog:
		payload, err := s.fixture.ActivityLogPage(req.After, s.pageSize)
		s.writePage(id, payload, err)
	case api.SubTimelineDetail:
		detail, ok := s.fixture.DetailFor(req.ID)
		if !ok {
			s.writeError(id, "UNKNOWN_TIMELINE_EVENT")
			return
		}
		s.write(fmt.Sprintf("%s A %s", id, detail))
	default:
		s.writeError(id, "UNSUPPORTED_TYPE")
	}
}

func (s *session) writePage(id string, payload []byte, err error) {
	if err != nil {
		s.logger.Warn("page assembly failed", zap.String("id", id), zap.Error(err))
		s.writeError(id, "BAD_CURSOR")
		return
	}
	s.write(fmt.Sprintf("%s A %s", id, payload))
}

func (s *session) writeError(id, code string) {
	s.write(fmt.Sprintf(`%s E {"errorCode":%q}`, id, code))
}

func (s *session) write(frame string) {
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		s.logger.Debug("websocket write error", zap.Error(err))
	}
}
