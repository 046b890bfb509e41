//go:build integration
// +build integration

package integration

import (
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	wsmsg "github.com/gokatarajesh/exam-runner/pkg/http/ws"
)

func TestWebSocketSessionState(t *testing.T) {
	baseHTTP := envOrDefault("INTEGRATION_BASE_URL", "http://localhost:8080")
	token := studentToken(t, baseHTTP)
	exam := examID(t)

	created := createSession(t, baseHTTP, token, exam)
	defer deleteSession(t, baseHTTP, token, created.Session.ID)

	conn := dialSessionWS(t, baseHTTP, created.Session.ID, token)
	defer conn.Close()

	if msg := readWS(t, conn); msg.Type != wsmsg.TypeState {
		t.Fatalf("expected initial state, got %s", msg.Type)
	}

	send(t, conn, wsmsg.Message{Type: wsmsg.TypeRequestState, RequestID: "req-1"})
	msg := readWS(t, conn)
	if msg.Type != wsmsg.TypeState || msg.RequestID != "req-1" {
		t.Fatalf("expected state for req-1, got %s/%s", msg.Type, msg.RequestID)
	}

	send(t, conn, wsmsg.Message{Type: "bogus", RequestID: "req-2"})
	msg = readWS(t, conn)
	if msg.Type != wsmsg.TypeError {
		t.Fatalf("expected error, got %s", msg.Type)
	}
	var payload wsmsg.ErrorPayload
	if err := msg.Decode(&payload); err != nil {
		t.Fatalf("decode error payload: %v", err)
	}
	if payload.Code != "unknown_message_type" {
		t.Fatalf("expected unknown_message_type, got %s", payload.Code)
	}
}

func dialSessionWS(t *testing.T, baseHTTP, sessionID, token string) *websocket.Conn {
	t.Helper()

	u, err := url.Parse(strings.Replace(baseHTTP, "http", "ws", 1) + "/ws/sessions/" + sessionID)
	if err != nil {
		t.Fatalf("invalid WS url: %v", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v", err)
	}
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msg wsmsg.Message) {
	t.Helper()
	conn.SetWriteDeadline(time.Now().Add(3 * time.Second))
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("failed to send %s: %v", msg.Type, err)
	}
}

func readWS(t *testing.T, conn *websocket.Conn) wsmsg.Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg wsmsg.Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read ws message failed: %v", err)
	}
	return msg
}
