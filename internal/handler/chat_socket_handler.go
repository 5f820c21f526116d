package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/noah-isme/gestao-docs-api/internal/dto"
	"github.com/noah-isme/gestao-docs-api/internal/service"
	appErrors "github.com/noah-isme/gestao-docs-api/pkg/errors"
	"github.com/noah-isme/gestao-docs-api/pkg/response"
)

const (
	socketWriteWait    = 10 * time.Second
	socketPongWait     = 60 * time.Second
	socketPingPeriod   = socketPongWait * 9 / 10
	socketMaxFrameSize = 64 * 1024
	socketSendQueue    = 64
)

type chatSessionOpener interface {
	OpenSession(ctx context.Context, identity service.ChatIdentity, opts ...service.ChatSessionOption) (*service.ChatSession, error)
}

// ChatSocketHandler runs one chat session per websocket connection.
type ChatSocketHandler struct {
	chats    chatSessionOpener
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewChatSocketHandler builds a ChatSocketHandler. An empty origin list accepts any origin.
func NewChatSocketHandler(chats chatSessionOpener, allowedOrigins []string, logger *zap.Logger) *ChatSocketHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	origins := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[strings.TrimRight(o, "/")] = struct{}{}
	}
	return &ChatSocketHandler{
		chats:  chats,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				if len(origins) == 0 {
					return true
				}
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				_, ok := origins[strings.TrimRight(origin, "/")]
				return ok
			},
		},
	}
}

// Serve godoc
// @Summary Realtime chat session
// @Description Upgrades to a websocket. Client frames: select, send, focus. Server frames: state, error.
// @Tags Chat
// @Param access_token query string false "Access token when no Authorization header can be set"
// @Success 101
// @Router /chat/ws [get]
func (h *ChatSocketHandler) Serve(c *gin.Context) {
	identity, ok := identityFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Info("websocket upgrade failed", zap.String("user_id", identity.UserID), zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	client := newSocketClient(conn, cancel, h.logger.With(zap.String("user_id", identity.UserID)))
	go client.writeLoop(ctx)

	session, err := h.chats.OpenSession(ctx, identity,
		service.WithChatListener(func(state service.ChatState) {
			client.push(dto.ServerFrame{Type: dto.FrameState, State: state})
		}),
		service.WithChatErrorHandler(func(err error) {
			client.push(errorFrame(err))
		}),
	)
	if err != nil {
		client.push(errorFrame(err))
		client.drain()
		return
	}
	defer session.Stop(context.Background())

	client.readLoop(ctx, func(frame dto.ClientFrame) {
		h.dispatch(ctx, session, client, frame)
	})
}

func (h *ChatSocketHandler) dispatch(ctx context.Context, session *service.ChatSession, client *socketClient, frame dto.ClientFrame) {
	switch frame.Type {
	case dto.FrameSelect:
		if frame.Selector == nil {
			client.push(errorFrame(appErrors.Clone(appErrors.ErrValidation, "selector is required")))
			return
		}
		// fetch failures reach the client through the session error handler
		if err := session.SelectConversation(ctx, *frame.Selector); err != nil && errors.Is(err, appErrors.ErrValidation) {
			client.push(errorFrame(err))
		}
	case dto.FrameSend:
		if _, err := session.Send(ctx, frame.Body, frame.Attachment); err != nil {
			client.push(errorFrame(err))
		}
	case dto.FrameFocus:
		if frame.Focused == nil {
			client.push(errorFrame(appErrors.Clone(appErrors.ErrValidation, "focused is required")))
			return
		}
		session.SetFocused(ctx, *frame.Focused)
	default:
		client.push(errorFrame(appErrors.Clone(appErrors.ErrValidation, "unknown frame type")))
	}
}

func errorFrame(err error) dto.ServerFrame {
	appErr := appErrors.FromError(err)
	return dto.ServerFrame{Type: dto.FrameError, Code: appErr.Code, Message: appErr.Message}
}

// socketClient owns the connection. Only writeLoop writes to it.
type socketClient struct {
	conn   *websocket.Conn
	send   chan dto.ServerFrame
	cancel context.CancelFunc
	logger *zap.Logger

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

func newSocketClient(conn *websocket.Conn, cancel context.CancelFunc, logger *zap.Logger) *socketClient {
	return &socketClient{
		conn:   conn,
		send:   make(chan dto.ServerFrame, socketSendQueue),
		cancel: cancel,
		logger: logger,
		done:   make(chan struct{}),
	}
}

// push queues a frame. A client that cannot keep up is disconnected.
func (s *socketClient) push(frame dto.ServerFrame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.send <- frame:
	default:
		s.logger.Warn("websocket send queue full, closing connection")
		s.closed = true
		close(s.send)
	}
}

// drain closes the queue and waits until queued frames are written.
func (s *socketClient) drain() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.send)
	}
	s.mu.Unlock()
	<-s.done
}

func (s *socketClient) writeLoop(ctx context.Context) {
	ticker := time.NewTicker(socketPingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
		s.cancel()
		close(s.done)
	}()
	for {
		select {
		case frame, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(socketWriteWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := s.conn.WriteJSON(frame); err != nil {
				s.logger.Info("websocket write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(socketWriteWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ctx.Done():
			_ = s.conn.SetWriteDeadline(time.Now().Add(socketWriteWait))
			_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (s *socketClient) readLoop(ctx context.Context, handle func(dto.ClientFrame)) {
	s.conn.SetReadLimit(socketMaxFrameSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(socketPongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(socketPongWait))
	})
	for ctx.Err() == nil {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				s.logger.Info("websocket read ended", zap.Error(err))
			}
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(socketPongWait))
		var frame dto.ClientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			s.push(errorFrame(appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid frame")))
			continue
		}
		handle(frame)
	}
}
