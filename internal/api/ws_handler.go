package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"buildmate/internal/auth"
)

const (
	wsAuthTimeout    = 10 * time.Second
	wsWriteTimeout   = 5 * time.Second
	notifyChannelFmt = "user_notify:%d"
)

// WsHandler 负责处理 WebSocket 鉴权与导出通知转发。
// 客户端必须在连接建立后的第一条消息里携带访问令牌。
type WsHandler struct {
	redisClient   *redis.Client
	authService   *auth.AuthService
	logger        *slog.Logger
	upgrader      websocket.Upgrader
	allowedOrigin string
}

// NewWsHandler 构造 WebSocket 处理器。
func NewWsHandler(redisClient *redis.Client, authService *auth.AuthService, logger *slog.Logger, allowedOrigin string) *WsHandler {
	h := &WsHandler{
		redisClient:   redisClient,
		authService:   authService,
		logger:        logger,
		allowedOrigin: allowedOrigin,
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || h.allowedOrigin == "" || h.allowedOrigin == "*" {
				return true
			}
			return origin == h.allowedOrigin
		},
	}
	return h
}

type wsAuthMessage struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

// HandleConnection 升级连接、完成首条消息鉴权，然后转发该用户的通知。
func (h *WsHandler) HandleConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("upgrade websocket failed", slog.Any("error", err))
		return
	}
	defer conn.Close()

	log := h.logger.With(slog.String("client_ip", c.ClientIP()))

	userID, err := h.authenticate(conn)
	if err != nil {
		log.Warn("websocket authentication failed", slog.Any("error", err))
		writeClose(conn, websocket.ClosePolicyViolation, "authentication failed")
		return
	}

	log = log.With(slog.Uint64("user_id", uint64(userID)))

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// 读循环只用于感知客户端断开。
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	h.forwardNotifications(ctx, conn, userID, log)
}

func (h *WsHandler) authenticate(conn *websocket.Conn) (uint, error) {
	if err := conn.SetReadDeadline(time.Now().Add(wsAuthTimeout)); err != nil {
		return 0, fmt.Errorf("set read deadline: %w", err)
	}

	_, raw, err := conn.ReadMessage()
	if err != nil {
		return 0, fmt.Errorf("read auth message: %w", err)
	}

	var msg wsAuthMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return 0, fmt.Errorf("decode auth message: %w", err)
	}
	if msg.Type != "auth" || msg.Token == "" {
		return 0, errors.New("first message must carry an auth token")
	}

	claims, err := h.authService.ValidateToken(msg.Token)
	if err != nil {
		return 0, fmt.Errorf("validate token: %w", err)
	}

	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		return 0, fmt.Errorf("clear read deadline: %w", err)
	}
	return claims.UserID, nil
}

func (h *WsHandler) forwardNotifications(ctx context.Context, conn *websocket.Conn, userID uint, log *slog.Logger) {
	channel := fmt.Sprintf(notifyChannelFmt, userID)
	pubsub := h.redisClient.Subscribe(ctx, channel)
	defer pubsub.Close()

	log.Info("websocket subscribed", slog.String("channel", channel))

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-pubsub.Channel():
			if !ok {
				return
			}
			if err := conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg.Payload)); err != nil {
				log.Warn("forward notification failed", slog.Any("error", err))
				return
			}
		}
	}
}

func writeClose(conn *websocket.Conn, code int, text string) {
	deadline := time.Now().Add(wsWriteTimeout)
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), deadline)
}
