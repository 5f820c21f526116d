package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gestao-docs-api/internal/dto"
	"github.com/noah-isme/gestao-docs-api/internal/middleware"
	"github.com/noah-isme/gestao-docs-api/internal/models"
	"github.com/noah-isme/gestao-docs-api/internal/service"
	appErrors "github.com/noah-isme/gestao-docs-api/pkg/errors"
	"github.com/noah-isme/gestao-docs-api/pkg/realtime"
)

type chatServiceMock struct {
	selector models.ConversationSelector
	deleted  string
	unread   int
}

func (m *chatServiceMock) History(_ context.Context, _ service.ChatIdentity, sel models.ConversationSelector, _, _ int) ([]models.Message, error) {
	m.selector = sel
	return []models.Message{{ID: "m1", Body: "oi"}}, nil
}

func (m *chatServiceMock) Send(_ context.Context, identity service.ChatIdentity, req dto.SendMessageRequest) (*models.Message, error) {
	return &models.Message{ID: "m2", SenderID: identity.UserID, Body: req.Body}, nil
}

func (m *chatServiceMock) Delete(_ context.Context, actor service.Actor, id string) error {
	if id == "foreign" {
		return appErrors.Clone(appErrors.ErrForbidden, "only the sender can delete a message")
	}
	m.deleted = id
	return nil
}

func (m *chatServiceMock) UnreadCount(context.Context, service.ChatIdentity) (int, error) {
	return m.unread, nil
}

func TestChatHandlerHistory(t *testing.T) {
	svc := &chatServiceMock{}
	h := NewChatHandler(svc)
	c, w := newContext(http.MethodGet, "/chat/messages?type=sector&id=global", nil, employee)

	h.History(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.ConversationSelector{Type: models.SelectorSector, ID: models.GlobalSectorChannel}, svc.selector)
}

func TestChatHandlerSendAndUnread(t *testing.T) {
	svc := &chatServiceMock{unread: 4}
	h := NewChatHandler(svc)

	c, w := newContext(http.MethodPost, "/chat/messages", dto.SendMessageRequest{
		Selector: models.ConversationSelector{Type: models.SelectorUser, ID: "user-2"},
		Body:     "bom dia",
	}, employee)
	h.Send(c)
	require.Equal(t, http.StatusCreated, w.Code)
	var msg models.Message
	decodeEnvelope(t, w, &msg)
	assert.Equal(t, "user-1", msg.SenderID)

	c, w = newContext(http.MethodGet, "/chat/unread", nil, employee)
	h.Unread(c)
	var unread dto.UnreadCountResponse
	decodeEnvelope(t, w, &unread)
	assert.Equal(t, 4, unread.UnreadCount)
}

func TestChatHandlerDelete(t *testing.T) {
	svc := &chatServiceMock{}
	h := NewChatHandler(svc)

	c, w := newContext(http.MethodDelete, "/chat/messages/m1", nil, employee)
	c.Params = gin.Params{{Key: "id", Value: "m1"}}
	h.Delete(c)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "m1", svc.deleted)

	c, w = newContext(http.MethodDelete, "/chat/messages/foreign", nil, employee)
	c.Params = gin.Params{{Key: "id", Value: "foreign"}}
	h.Delete(c)
	assert.Equal(t, http.StatusForbidden, w.Code)

	c, w = newContext(http.MethodDelete, "/chat/messages/m1", nil, nil)
	c.Params = gin.Params{{Key: "id", Value: "m1"}}
	h.Delete(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

// socketStore backs a real ChatService for the websocket tests.
type socketStore struct {
	mu      sync.Mutex
	history []models.Message
	created []models.Message
}

func (s *socketStore) Create(_ context.Context, msg models.Message) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.IsTemporary() {
		msg.ID = "6f1c1a5e-0000-4000-8000-000000000001"
	}
	s.created = append(s.created, msg)
	return &msg, nil
}

func (s *socketStore) CountUnread(context.Context, string, string) (int, error) { return 0, nil }

func (s *socketStore) ListConversation(context.Context, models.MessageScope) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Message(nil), s.history...), nil
}

func (s *socketStore) MarkRead(context.Context, []string, string) (int64, error) { return 0, nil }

func (s *socketStore) FindByID(context.Context, string) (*models.Message, error) {
	return nil, appErrors.ErrNotFound
}

func (s *socketStore) Delete(context.Context, string, string) (bool, error) { return false, nil }

type stateFrame struct {
	Type    string            `json:"type"`
	State   service.ChatState `json:"state"`
	Code    string            `json:"code"`
	Message string            `json:"message"`
}

func dialChat(t *testing.T, store *socketStore) *websocket.Conn {
	t.Helper()
	gin.SetMode(gin.TestMode)
	chats := service.NewChatService(store, realtime.NewMemoryBroker(), nil, nil, nil, nil,
		service.ChatSessionConfig{UnreadPollInterval: time.Hour}, nil, nil)
	h := NewChatSocketHandler(chats, nil, nil)

	r := gin.New()
	r.GET("/chat/ws", func(c *gin.Context) {
		c.Set(middleware.ContextUserKey, employee)
		c.Next()
	}, h.Serve)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/chat/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn, match func(stateFrame) bool) stateFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var frame stateFrame
		require.NoError(t, json.Unmarshal(data, &frame))
		if match(frame) {
			return frame
		}
	}
}

func TestChatSocketSelectAndSend(t *testing.T) {
	peer := "user-2"
	store := &socketStore{history: []models.Message{{
		ID:         "6f1c1a5e-0000-4000-8000-0000000000aa",
		SenderID:   peer,
		ReceiverID: &employee.UserID,
		Body:       "olá",
		CreatedAt:  time.Now().Add(-time.Minute),
	}}}
	conn := dialChat(t, store)

	initial := readFrame(t, conn, func(f stateFrame) bool { return f.Type == dto.FrameState })
	assert.Empty(t, initial.State.Messages)

	require.NoError(t, conn.WriteJSON(dto.ClientFrame{Type: dto.FrameSelect, Selector: &models.ConversationSelector{Type: models.SelectorUser, ID: peer}}))
	loaded := readFrame(t, conn, func(f stateFrame) bool {
		return f.Type == dto.FrameState && !f.State.Loading && len(f.State.Messages) == 1
	})
	assert.Equal(t, "olá", loaded.State.Messages[0].Body)

	require.NoError(t, conn.WriteJSON(dto.ClientFrame{Type: dto.FrameSend, Body: "tudo bem?"}))
	sent := readFrame(t, conn, func(f stateFrame) bool { return f.Type == dto.FrameState && len(f.State.Messages) == 2 })
	assert.Equal(t, "tudo bem?", sent.State.Messages[1].Body)
}

func TestChatSocketRejectsBadFrames(t *testing.T) {
	conn := dialChat(t, &socketStore{})

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"dance"}`)))
	frame := readFrame(t, conn, func(f stateFrame) bool { return f.Type == dto.FrameError })
	assert.Equal(t, "VALIDATION_ERROR", frame.Code)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	frame = readFrame(t, conn, func(f stateFrame) bool { return f.Type == dto.FrameError })
	assert.Equal(t, "invalid frame", frame.Message)

	require.NoError(t, conn.WriteJSON(dto.ClientFrame{Type: dto.FrameSend, Body: "sem conversa"}))
	frame = readFrame(t, conn, func(f stateFrame) bool { return f.Type == dto.FrameError })
	assert.Equal(t, "no conversation selected", frame.Message)
}

func TestChatSocketRequiresIdentity(t *testing.T) {
	h := NewChatSocketHandler(nil, nil, nil)
	c, w := newContext(http.MethodGet, "/chat/ws", nil, nil)
	h.Serve(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
