package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/gestao-docs-api/internal/dto"
	"github.com/noah-isme/gestao-docs-api/internal/models"
	"github.com/noah-isme/gestao-docs-api/internal/repository"
	appErrors "github.com/noah-isme/gestao-docs-api/pkg/errors"
	"github.com/noah-isme/gestao-docs-api/pkg/jobs"
	"github.com/noah-isme/gestao-docs-api/pkg/realtime"
)

type chatRepository interface {
	ChatStore
	FindByID(ctx context.Context, id string) (*models.Message, error)
	Delete(ctx context.Context, id, senderID string) (bool, error)
}

// ChatService opens realtime sessions and serves the request/response chat endpoints.
type ChatService struct {
	repo       chatRepository
	broker     realtime.Broker
	presence   realtime.Presence
	dispatcher jobs.Dispatcher
	audit      auditLogger
	validator  *validator.Validate
	cfg        ChatSessionConfig
	metrics    *MetricsService
	logger     *zap.Logger
}

// NewChatService constructs a ChatService. presence and dispatcher may be nil.
func NewChatService(repo chatRepository, broker realtime.Broker, presence realtime.Presence, dispatcher jobs.Dispatcher, audit auditLogger, validate *validator.Validate, cfg ChatSessionConfig, metrics *MetricsService, logger *zap.Logger) *ChatService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatService{
		repo:       repo,
		broker:     broker,
		presence:   presence,
		dispatcher: dispatcher,
		audit:      audit,
		validator:  validate,
		cfg:        cfg,
		metrics:    metrics,
		logger:     logger,
	}
}

// OpenSession starts a realtime session for the identity.
func (s *ChatService) OpenSession(ctx context.Context, identity ChatIdentity, opts ...ChatSessionOption) (*ChatSession, error) {
	base := []ChatSessionOption{WithChatPresence(s.presence)}
	if s.dispatcher != nil {
		base = append(base, WithChatDispatcher(s.dispatcher))
	}
	session := NewChatSession(identity, s.repo, s.broker, s.cfg, s.metrics, s.logger, append(base, opts...)...)
	if err := session.Start(ctx); err != nil {
		return nil, err
	}
	return session, nil
}

// History returns a conversation's messages in ascending order.
func (s *ChatService) History(ctx context.Context, identity ChatIdentity, sel models.ConversationSelector, limit, offset int) ([]models.Message, error) {
	if err := s.validator.Struct(sel); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid conversation selector")
	}
	messages, err := s.repo.ListConversation(ctx, models.MessageScope{Selector: sel, UserID: identity.UserID, Limit: limit, Offset: offset})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load conversation")
	}
	return messages, nil
}

// Send stores a message synchronously for clients without a realtime session.
func (s *ChatService) Send(ctx context.Context, identity ChatIdentity, req dto.SendMessageRequest) (*models.Message, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid message payload")
	}
	if strings.TrimSpace(req.Body) == "" && req.Attachment == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "message body or attachment required")
	}
	msg := models.Message{SenderID: identity.UserID, Body: req.Body, Attachment: req.Attachment, CreatedAt: time.Now().UTC()}
	msg.ReceiverID, msg.SectorID = addressFor(req.Selector)
	stored, err := s.repo.Create(ctx, msg)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to send message")
	}
	return stored, nil
}

// Delete removes a message. Only its sender may delete it.
func (s *ChatService) Delete(ctx context.Context, actor Actor, id string) error {
	msg, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "message not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load message")
	}
	if msg.SenderID != actor.UserID {
		return appErrors.Clone(appErrors.ErrForbidden, "only the sender can delete a message")
	}
	removed, err := s.repo.Delete(ctx, id, actor.UserID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete message")
	}
	if !removed {
		return appErrors.Clone(appErrors.ErrNotFound, "message not found")
	}
	recordAudit(ctx, s.audit, s.logger, actor, models.AuditActionMessageDelete, MessagesTable, id, msg, nil)
	return nil
}

// UnreadCount returns the caller's unread message count.
func (s *ChatService) UnreadCount(ctx context.Context, identity ChatIdentity) (int, error) {
	count, err := s.repo.CountUnread(ctx, identity.UserID, identity.SectorID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "failed to count unread messages")
	}
	return count, nil
}

type messageFinder interface {
	FindByID(ctx context.Context, id string) (*models.Message, error)
}

// MessageRowLoader fills id-only message notifications with the stored row.
func MessageRowLoader(repo messageFinder) realtime.RowLoader {
	return func(ctx context.Context, id string) (json.RawMessage, error) {
		msg, err := repo.FindByID(ctx, id)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return json.Marshal(repository.NewMessageRecord(*msg))
	}
}
