package faker

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

func newTestServer(t *testing.T, fixture *Fixture, opts Options) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewServer(fixture, opts, zap.NewNop()).Router())
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dialWS(t *testing.T, srv *httptest.Server, header http.Header) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, frame string) {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		t.Fatalf("write %q: %v", frame, err)
	}
}

func recv(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return string(data)
}

func TestLoginFlow(t *testing.T) {
	srv := newTestServer(t, DefaultFixture(4), Options{LoginCode: "7777"})

	body := bytes.NewBufferString(`{"phoneNumber":"+4915512345678","pin":"1234"}`)
	resp, err := http.Post(srv.URL+"/api/v1/auth/web/login", "application/json", body)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status: %d", resp.StatusCode)
	}

	var initiated struct {
		ProcessID string `json:"processId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&initiated); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if initiated.ProcessID == "" {
		t.Fatal("no processId issued")
	}

	// Wrong code is rejected with the service's error envelope.
	wrong, err := http.Post(srv.URL+"/api/v1/auth/web/login/"+initiated.ProcessID+"/0000", "application/json", nil)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	defer wrong.Body.Close()
	if wrong.StatusCode != http.StatusBadRequest {
		t.Errorf("wrong code status: %d", wrong.StatusCode)
	}
	var envelope struct {
		Errors []struct {
			ErrorCode string `json:"errorCode"`
		} `json:"errors"`
	}
	if err := json.NewDecoder(wrong.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode error envelope: %v", err)
	}
	if len(envelope.Errors) != 1 || envelope.Errors[0].ErrorCode != "VALIDATION_CODE_INVALID" {
		t.Errorf("unexpected envelope: %+v", envelope)
	}

	// Correct code sets the session cookie.
	ok, err := http.Post(srv.URL+"/api/v1/auth/web/login/"+initiated.ProcessID+"/7777", "application/json", nil)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	defer ok.Body.Close()
	if ok.StatusCode != http.StatusOK {
		t.Fatalf("verify status: %d", ok.StatusCode)
	}
	var session string
	for _, c := range ok.Cookies() {
		if c.Name == "tr_session" {
			session = c.Value
		}
	}
	if session == "" {
		t.Fatal("no tr_session cookie set")
	}

	// The cookie opens the WebSocket endpoint.
	header := http.Header{"Cookie": {"tr_session=" + session}}
	conn := dialWS(t, srv, header)
	send(t, conn, `connect 31 {"locale":"de"}`)
	if got := recv(t, conn); got != "connected" {
		t.Errorf("handshake: got %q", got)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	srv := newTestServer(t, DefaultFixture(1), Options{})

	body := bytes.NewBufferString(`{"phoneNumber":"012345","pin":"1234"}`)
	resp, err := http.Post(srv.URL+"/api/v1/auth/web/login", "application/json", body)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status: %d", resp.StatusCode)
	}
}

func TestWSRejectsUnknownSession(t *testing.T) {
	srv := newTestServer(t, DefaultFixture(1), Options{})

	header := http.Header{"Cookie": {"tr_session=forged"}}
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv), header)
	if err == nil {
		t.Fatal("expected dial to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401, got %+v", resp)
	}
}

func TestSubscriptionProtocol(t *testing.T) {
	fixture := DefaultFixture(5)
	srv := newTestServer(t, fixture, Options{PageSize: 2})

	conn := dialWS(t, srv, nil) // no cookie: app-mode connection
	send(t, conn, `connect 21 {"locale":"de"}`)
	if got := recv(t, conn); got != "connected" {
		t.Fatalf("handshake: got %q", got)
	}

	// First page: two items, cursor on the last one.
	send(t, conn, `sub 1 {"type":"timelineTransactions"}`)
	frame := recv(t, conn)
	if !strings.HasPrefix(frame, "1 A ") {
		t.Fatalf("unexpected frame %q", frame)
	}
	var page struct {
		Items []map[string]any `json:"items"`
	}
	if err := json.Unmarshal([]byte(frame[len("1 A "):]), &page); err != nil {
		t.Fatalf("decode page: %v", err)
	}
	if len(page.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(page.Items))
	}
	cursor, _ := page.Items[1]["after"].(string)
	if cursor == "" {
		t.Fatal("expected a continuation cursor on the last item")
	}
	if _, ok := page.Items[0]["after"]; ok {
		t.Error("only the last item may carry a cursor")
	}

	// Follow the cursor until the feed is exhausted.
	total := len(page.Items)
	subID := 2
	for cursor != "" {
		send(t, conn, fmt.Sprintf(`sub %d {"type":"timelineTransactions","after":%q}`, subID, cursor))
		frame = recv(t, conn)
		prefix := fmt.Sprintf("%d A ", subID)
		if !strings.HasPrefix(frame, prefix) {
			t.Fatalf("unexpected frame %q", frame)
		}
		page.Items = nil
		if err := json.Unmarshal([]byte(frame[len(prefix):]), &page); err != nil {
			t.Fatalf("decode page: %v", err)
		}
		total += len(page.Items)
		cursor = ""
		if n := len(page.Items); n > 0 {
			cursor, _ = page.Items[n-1]["after"].(string)
		}
		subID++
	}
	if total != 5 {
		t.Errorf("expected 5 items across pages, got %d", total)
	}

	// Detail for a known id.
	send(t, conn, fmt.Sprintf(`sub %d {"type":"timelineDetailV2","id":"tx-0000"}`, subID))
	frame = recv(t, conn)
	if !strings.HasPrefix(frame, fmt.Sprintf("%d A ", subID)) {
		t.Fatalf("unexpected detail frame %q", frame)
	}
	if !strings.Contains(frame, "sections") {
		t.Errorf("detail payload missing sections: %q", frame)
	}
	subID++

	// Unknown detail id fails only the asking subscription.
	send(t, conn, fmt.Sprintf(`sub %d {"type":"timelineDetailV2","id":"nope"}`, subID))
	frame = recv(t, conn)
	if want := fmt.Sprintf(`%d E {"errorCode":"UNKNOWN_TIMELINE_EVENT"}`, subID); frame != want {
		t.Errorf("got %q, want %q", frame, want)
	}
	subID++

	// The connection is still usable afterwards.
	send(t, conn, fmt.Sprintf(`sub %d {"type":"timelineActivityLog"}`, subID))
	frame = recv(t, conn)
	if !strings.HasPrefix(frame, fmt.Sprintf("%d A ", subID)) {
		t.Errorf("activity log frame: %q", frame)
	}
}

func TestPageSinceBoundary(t *testing.T) {
	fixture := DefaultFixture(6) // one transaction per day, newest first

	newest, err := parseTimestamp(fixture.Transactions[0]["timestamp"].(string))
	if err != nil {
		t.Fatal(err)
	}
	since := newest.Add(-36 * time.Hour).Unix() // keeps the two newest days

	payload, err := fixture.TransactionsPage(float64(since), 10)
	if err != nil {
		t.Fatalf("page: %v", err)
	}
	var page struct {
		Items []map[string]any `json:"items"`
	}
	if err := json.Unmarshal(payload, &page); err != nil {
		t.Fatal(err)
	}
	if len(page.Items) != 2 {
		t.Errorf("expected 2 items after boundary, got %d", len(page.Items))
	}
}

func TestPageBadCursor(t *testing.T) {
	fixture := DefaultFixture(2)
	if _, err := fixture.TransactionsPage("cursor-x", 2); err == nil {
		t.Error("expected error for malformed cursor")
	}
	if _, err := fixture.TransactionsPage(true, 2); err == nil {
		t.Error("expected error for unsupported after type")
	}
}

func TestLoadFixture(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fixture.json")

	src := DefaultFixture(3)
	data, err := json.Marshal(src)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	loaded, err := LoadFixture(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded.Transactions) != 3 {
		t.Errorf("transactions: got %d", len(loaded.Transactions))
	}
	if _, ok := loaded.DetailFor("tx-0001"); !ok {
		t.Error("details lost in round trip")
	}

	if _, err := LoadFixture(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}

	empty := filepath.Join(dir, "empty.json")
	if err := os.WriteFile(empty, []byte(`{"transactions":[]}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFixture(empty); err == nil {
		t.Error("expected error for fixture without transactions")
	}
}
