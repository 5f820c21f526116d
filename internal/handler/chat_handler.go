package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/gestao-docs-api/internal/dto"
	"github.com/noah-isme/gestao-docs-api/internal/models"
	"github.com/noah-isme/gestao-docs-api/internal/service"
	appErrors "github.com/noah-isme/gestao-docs-api/pkg/errors"
	"github.com/noah-isme/gestao-docs-api/pkg/response"
)

type chatService interface {
	History(ctx context.Context, identity service.ChatIdentity, sel models.ConversationSelector, limit, offset int) ([]models.Message, error)
	Send(ctx context.Context, identity service.ChatIdentity, req dto.SendMessageRequest) (*models.Message, error)
	Delete(ctx context.Context, actor service.Actor, id string) error
	UnreadCount(ctx context.Context, identity service.ChatIdentity) (int, error)
}

// ChatHandler serves chat over plain request/response for clients without a socket.
type ChatHandler struct {
	service chatService
}

// NewChatHandler builds a ChatHandler.
func NewChatHandler(service chatService) *ChatHandler {
	return &ChatHandler{service: service}
}

// History godoc
// @Summary Conversation history
// @Tags Chat
// @Produce json
// @Param type query string true "user or sector"
// @Param id query string true "User id, sector id or a global channel"
// @Param limit query int false "Limit"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Router /chat/messages [get]
func (h *ChatHandler) History(c *gin.Context) {
	identity, ok := identityFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	sel := models.ConversationSelector{
		Type: models.SelectorType(c.Query("type")),
		ID:   c.Query("id"),
	}
	limit := parseQueryInt(c, "limit", 200)
	offset := parseQueryInt(c, "offset", 0)
	messages, err := h.service.History(c.Request.Context(), identity, sel, limit, offset)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, messages)
}

// Send godoc
// @Summary Send a message
// @Tags Chat
// @Accept json
// @Produce json
// @Param payload body dto.SendMessageRequest true "Message"
// @Success 201 {object} response.Envelope
// @Router /chat/messages [post]
func (h *ChatHandler) Send(c *gin.Context) {
	var req dto.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid message payload"))
		return
	}
	identity, ok := identityFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	msg, err := h.service.Send(c.Request.Context(), identity, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, msg)
}

// Delete godoc
// @Summary Delete an own message
// @Tags Chat
// @Param id path string true "Message ID"
// @Success 204
// @Router /chat/messages/{id} [delete]
func (h *ChatHandler) Delete(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.service.Delete(c.Request.Context(), actor, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Unread godoc
// @Summary Unread message count
// @Tags Chat
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /chat/unread [get]
func (h *ChatHandler) Unread(c *gin.Context) {
	identity, ok := identityFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	count, err := h.service.UnreadCount(c.Request.Context(), identity)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.UnreadCountResponse{UnreadCount: count})
}
