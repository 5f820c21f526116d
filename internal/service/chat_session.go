package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/gestao-docs-api/internal/models"
	"github.com/noah-isme/gestao-docs-api/internal/repository"
	appErrors "github.com/noah-isme/gestao-docs-api/pkg/errors"
	"github.com/noah-isme/gestao-docs-api/pkg/jobs"
	"github.com/noah-isme/gestao-docs-api/pkg/realtime"
)

// MessagesTable is the logical table chat events are published under.
const MessagesTable = "messages"

// ChatStore is the persistence a chat session needs.
type ChatStore interface {
	messageWriter
	unreadCounter
	ListConversation(ctx context.Context, scope models.MessageScope) ([]models.Message, error)
	MarkRead(ctx context.Context, ids []string, readerID string) (int64, error)
}

// ChatIdentity is the local user of a session.
type ChatIdentity struct {
	UserID   string
	SectorID string
}

// ChatState is an immutable snapshot of a session.
type ChatState struct {
	Selector    *models.ConversationSelector `json:"selector,omitempty"`
	Messages    []models.Message             `json:"messages"`
	UnreadCount int                          `json:"unreadCount"`
	OnlineUsers []string                     `json:"onlineUsers"`
	Loading     bool                         `json:"loading"`
}

// ChatSessionConfig tunes a session.
type ChatSessionConfig struct {
	HistoryLimit       int
	UnreadPollInterval time.Duration
}

// ChatSessionOption customises a session.
type ChatSessionOption func(*ChatSession)

// WithChatListener receives every state change. The listener must not call back into the session.
func WithChatListener(fn func(ChatState)) ChatSessionOption {
	return func(s *ChatSession) { s.listener = fn }
}

// WithChatErrorHandler receives errors of background operations.
func WithChatErrorHandler(fn func(error)) ChatSessionOption {
	return func(s *ChatSession) { s.onError = fn }
}

// WithChatDispatcher routes message writes through a job queue.
func WithChatDispatcher(d jobs.Dispatcher) ChatSessionOption {
	return func(s *ChatSession) { s.dispatcher = d }
}

// WithChatPresence tracks the local user on a presence channel.
func WithChatPresence(p realtime.Presence) ChatSessionOption {
	return func(s *ChatSession) {
		if p != nil {
			s.presence = NewPresenceTracker(p, s.identity.UserID)
		}
	}
}

// WithChatClock overrides the clock used for optimistic messages.
func WithChatClock(now func() time.Time) ChatSessionOption {
	return func(s *ChatSession) { s.now = now }
}

// ChatSession reconciles one user's view of a conversation from history
// fetches, optimistic sends and the table event stream. All state changes go
// through the reducers in chat_reducer.go under a single mutex.
type ChatSession struct {
	identity   ChatIdentity
	store      ChatStore
	broker     realtime.Broker
	dispatcher jobs.Dispatcher
	unread     *UnreadTracker
	presence   *PresenceTracker
	cfg        ChatSessionConfig
	metrics    *MetricsService
	logger     *zap.Logger
	now        func() time.Time

	mu         sync.Mutex
	selector   *models.ConversationSelector
	generation uint64
	messages   []models.Message
	focused    bool
	loading    bool
	started    bool
	closed     bool
	sub        realtime.Subscription
	ctx        context.Context
	cancel     context.CancelFunc

	tempSeq  uint64
	emitMu   sync.Mutex
	listener func(ChatState)
	onError  func(error)
}

// NewChatSession constructs a session. Call Start before use.
func NewChatSession(identity ChatIdentity, store ChatStore, broker realtime.Broker, cfg ChatSessionConfig, metrics *MetricsService, logger *zap.Logger, opts ...ChatSessionOption) *ChatSession {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 500
	}
	s := &ChatSession{
		identity: identity,
		store:    store,
		broker:   broker,
		cfg:      cfg,
		metrics:  metrics,
		logger:   logger.With(zap.String("user_id", identity.UserID)),
		now:      time.Now,
		focused:  true,
		messages: []models.Message{},
		ctx:      context.Background(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.unread = NewUnreadTracker(store, identity.UserID, identity.SectorID, cfg.UnreadPollInterval, s.logger)
	return s
}

// Start opens the event subscription, which then lives until Stop regardless
// of conversation switches, and begins unread polling and presence tracking.
func (s *ChatSession) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.ctx, s.cancel = context.WithCancel(ctx)
	runCtx := s.ctx
	s.mu.Unlock()

	sub, err := s.broker.Subscribe(MessagesTable, s.handleEvent)
	if err != nil {
		s.cancel()
		return appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "realtime subscription failed")
	}
	s.mu.Lock()
	s.sub = sub
	s.mu.Unlock()

	s.unread.OnChange(func(int) { s.emit() })
	_ = s.unread.Refresh(ctx)
	go s.unread.Run(runCtx)

	if s.presence != nil {
		s.presence.OnChange(func([]string) { s.emit() })
		if err := s.presence.Start(ctx); err != nil {
			s.logger.Warn("presence tracking unavailable", zap.Error(err))
		}
	}
	s.metrics.ChatSessionOpened()
	s.emit()
	return nil
}

// Stop tears the session down. It is safe to call more than once.
func (s *ChatSession) Stop(ctx context.Context) {
	s.mu.Lock()
	if !s.started || s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	sub := s.sub
	s.cancel()
	s.mu.Unlock()

	if sub != nil {
		if err := sub.Unsubscribe(); err != nil {
			s.logger.Warn("unsubscribe failed", zap.Error(err))
		}
	}
	if s.presence != nil {
		if err := s.presence.Stop(ctx); err != nil {
			s.logger.Warn("presence untrack failed", zap.Error(err))
		}
	}
	s.metrics.ChatSessionClosed()
}

// State returns the current snapshot.
func (s *ChatSession) State() ChatState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// SelectConversation switches the visible conversation and merges its history.
// A fetch superseded by a later selection is discarded. A failed fetch leaves
// the held messages untouched.
func (s *ChatSession) SelectConversation(ctx context.Context, sel models.ConversationSelector) error {
	if (sel.Type != models.SelectorUser && sel.Type != models.SelectorSector) || strings.TrimSpace(sel.ID) == "" {
		return appErrors.Clone(appErrors.ErrValidation, "invalid conversation selector")
	}

	s.mu.Lock()
	s.selector = &sel
	s.generation++
	gen := s.generation
	s.messages = filterRelevant(s.messages, sel, s.identity.UserID)
	s.loading = true
	s.mu.Unlock()
	s.emit()

	_ = s.unread.Refresh(ctx)

	fetched, err := s.store.ListConversation(ctx, models.MessageScope{Selector: sel, UserID: s.identity.UserID, Limit: s.cfg.HistoryLimit})

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return nil
	}
	s.loading = false
	if err != nil {
		s.mu.Unlock()
		s.emit()
		s.logger.Warn("conversation fetch failed", zap.String("selector", sel.ID), zap.Error(err))
		appErr := appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "could not load conversation")
		s.report(appErr)
		return appErr
	}
	s.messages = mergeFetched(s.messages, fetched, *s.selector, s.identity.UserID)
	s.mu.Unlock()
	s.emit()

	s.markRead(ctx)
	return nil
}

// SetFocused records whether the conversation window has focus. Gaining focus
// marks the open conversation read.
func (s *ChatSession) SetFocused(ctx context.Context, focused bool) {
	s.mu.Lock()
	gained := focused && !s.focused
	s.focused = focused
	s.mu.Unlock()
	if gained {
		s.markRead(ctx)
	}
}

// Send appends an optimistic message and dispatches its write without waiting
// for it. A failed write removes the placeholder and is reported to the error handler.
func (s *ChatSession) Send(ctx context.Context, body string, attachment *models.Attachment) (models.Message, error) {
	if strings.TrimSpace(body) == "" && attachment == nil {
		return models.Message{}, appErrors.Clone(appErrors.ErrValidation, "message body or attachment required")
	}

	s.mu.Lock()
	if s.selector == nil {
		s.mu.Unlock()
		return models.Message{}, appErrors.Clone(appErrors.ErrValidation, "no conversation selected")
	}
	now := s.now().UTC()
	msg := models.Message{
		ID:         fmt.Sprintf("tmp-%d-%d", now.UnixNano(), atomic.AddUint64(&s.tempSeq, 1)),
		SenderID:   s.identity.UserID,
		Body:       body,
		Attachment: attachment,
		CreatedAt:  now,
		PendingID:  uuid.NewString(),
	}
	msg.ReceiverID, msg.SectorID = addressFor(*s.selector)
	s.messages = sortMessages(append(append([]models.Message(nil), s.messages...), msg))
	runCtx := s.ctx
	s.mu.Unlock()
	s.emit()

	// every write attempt, retries included, carries the reserved id
	persist := msg
	persist.ID, persist.PendingID = msg.PendingID, ""
	out := &OutgoingMessage{
		Message: persist,
		Done: func(stored *models.Message, err error) {
			s.confirmSend(msg.ID, stored, err)
		},
	}
	if s.dispatcher == nil {
		go func() {
			stored, err := s.store.Create(runCtx, persist)
			out.Done(stored, err)
		}()
		return msg, nil
	}
	if err := s.dispatcher.Enqueue(jobs.Job{ID: msg.ID, Type: JobTypeChatSend, Payload: out}); err != nil {
		s.mu.Lock()
		s.messages, _ = removeMessage(s.messages, msg.ID)
		s.mu.Unlock()
		s.emit()
		return msg, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "message could not be sent")
	}
	return msg, nil
}

func (s *ChatSession) confirmSend(tempID string, stored *models.Message, err error) {
	s.mu.Lock()
	var changed bool
	if err != nil || stored == nil {
		s.messages, changed = removeMessage(s.messages, tempID)
	} else {
		s.messages, changed = applyConfirmed(s.messages, tempID, *stored)
	}
	s.mu.Unlock()
	if changed {
		s.emit()
	}
	if err != nil {
		s.logger.Warn("message send failed", zap.String("temp_id", tempID), zap.Error(err))
		s.report(appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "message could not be sent"))
	}
}

// handleEvent applies one table event to the session.
func (s *ChatSession) handleEvent(evt realtime.Event) {
	var rec repository.MessageRecord
	if err := evt.Decode(&rec); err != nil {
		s.logger.Warn("undecodable message event", zap.String("type", string(evt.Type)), zap.Error(err))
		return
	}
	msg := rec.Message()
	me := s.identity.UserID

	var changed, bump, refresh, markNow bool
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	ctx := s.ctx
	switch evt.Type {
	case realtime.EventInsert:
		if s.selector != nil && IsRelevant(msg, *s.selector, me) {
			s.messages, changed = applyInsert(s.messages, msg, me)
			markNow = changed && s.focused && msg.SenderID != me && !msg.Read
		} else {
			bump = countsAsUnread(msg, me, s.identity.SectorID)
		}
	case realtime.EventUpdate:
		s.messages, changed = applyUpdate(s.messages, msg)
		refresh = true
	case realtime.EventDelete:
		s.messages, changed = removeMessage(s.messages, msg.ID)
		refresh = true
	}
	s.mu.Unlock()

	if changed {
		s.emit()
	}
	if bump {
		s.unread.Increment()
	}
	if refresh {
		go func() { _ = s.unread.Refresh(ctx) }()
	}
	if markNow {
		go s.markRead(ctx)
	}
}

// markRead flags the open conversation's unread messages from others as read.
func (s *ChatSession) markRead(ctx context.Context) {
	s.mu.Lock()
	if s.selector == nil {
		s.mu.Unlock()
		return
	}
	ids := unreadIDs(s.messages, s.identity.UserID)
	s.mu.Unlock()
	if len(ids) == 0 {
		return
	}

	if _, err := s.store.MarkRead(ctx, ids, s.identity.UserID); err != nil {
		s.logger.Warn("mark read failed", zap.Int("count", len(ids)), zap.Error(err))
		return
	}
	s.mu.Lock()
	s.messages = markedRead(s.messages, ids)
	s.mu.Unlock()
	s.emit()
	_ = s.unread.Refresh(ctx)
}

func (s *ChatSession) snapshotLocked() ChatState {
	state := ChatState{
		Messages:    append([]models.Message(nil), s.messages...),
		UnreadCount: s.unread.Count(),
		Loading:     s.loading,
		OnlineUsers: []string{},
	}
	if s.selector != nil {
		sel := *s.selector
		state.Selector = &sel
	}
	if s.presence != nil {
		state.OnlineUsers = s.presence.Online()
	}
	return state
}

// emit publishes the current snapshot. emitMu is taken before mu is released
// so listeners observe snapshots in order.
func (s *ChatSession) emit() {
	s.mu.Lock()
	if s.listener == nil || s.closed {
		s.mu.Unlock()
		return
	}
	state := s.snapshotLocked()
	s.emitMu.Lock()
	s.mu.Unlock()
	defer s.emitMu.Unlock()
	s.listener(state)
}

func (s *ChatSession) report(err error) {
	if s.onError != nil {
		s.onError(err)
	}
}

// addressFor derives receiver and sector of a new message from the selector.
func addressFor(sel models.ConversationSelector) (receiverID, sectorID *string) {
	switch {
	case sel.Type == models.SelectorUser && sel.ID == models.GlobalUsersChannel:
		return nil, nil
	case sel.Type == models.SelectorUser:
		return models.StringPtr(sel.ID), nil
	default:
		return nil, models.StringPtr(sel.ID)
	}
}
