package api

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"

	"buildmate/internal/auth"
)

type wsAuthResult struct {
	userID uint
	err    error
}

// newWsAuthTestServer 起一个只做首条消息鉴权的 WebSocket 服务端，
// 每次鉴权的结果通过 channel 送回测试断言。
func newWsAuthTestServer(t *testing.T, authService *auth.AuthService) (*httptest.Server, chan wsAuthResult) {
	t.Helper()

	handler := NewWsHandler(nil, authService, slog.New(slog.NewTextHandler(io.Discard, nil)), "")
	results := make(chan wsAuthResult, 1)

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		userID, err := handler.authenticate(conn)
		results <- wsAuthResult{userID: userID, err: err}
	}))
	t.Cleanup(srv.Close)
	return srv, results
}

func dialWs(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestWsAuthenticateRejectsNonAuthFirstMessage(t *testing.T) {
	srv, results := newWsAuthTestServer(t, newTestAuthService(t))
	conn := dialWs(t, srv)

	if err := conn.WriteJSON(map[string]string{"type": "ping"}); err != nil {
		t.Fatalf("write first message: %v", err)
	}

	result := <-results
	if result.err == nil {
		t.Fatal("non-auth first message was accepted")
	}
}

func TestWsAuthenticateRejectsInvalidToken(t *testing.T) {
	srv, results := newWsAuthTestServer(t, newTestAuthService(t))
	conn := dialWs(t, srv)

	if err := conn.WriteJSON(map[string]string{"type": "auth", "token": "garbage"}); err != nil {
		t.Fatalf("write auth message: %v", err)
	}

	result := <-results
	if result.err == nil {
		t.Fatal("garbage token was accepted")
	}
}

func TestWsAuthenticateAcceptsValidToken(t *testing.T) {
	authService := newTestAuthService(t)
	srv, results := newWsAuthTestServer(t, authService)
	conn := dialWs(t, srv)

	token, err := authService.GenerateToken(9, "bob@x.com")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	if err := conn.WriteJSON(map[string]string{"type": "auth", "token": token}); err != nil {
		t.Fatalf("write auth message: %v", err)
	}

	result := <-results
	if result.err != nil {
		t.Fatalf("valid token rejected: %v", result.err)
	}
	if result.userID != 9 {
		t.Fatalf("user id = %d, want 9", result.userID)
	}
}

func TestWsAuthenticateRejectsMalformedPayload(t *testing.T) {
	srv, results := newWsAuthTestServer(t, newTestAuthService(t))
	conn := dialWs(t, srv)

	if err := conn.WriteMessage(websocket.TextMessage, []byte("not-json")); err != nil {
		t.Fatalf("write first message: %v", err)
	}

	result := <-results
	if result.err == nil {
		t.Fatal("malformed first message was accepted")
	}
}
