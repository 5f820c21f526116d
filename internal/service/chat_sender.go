package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/gestao-docs-api/internal/models"
	"github.com/noah-isme/gestao-docs-api/pkg/jobs"
)

// JobTypeChatSend identifies queued chat writes.
const JobTypeChatSend = "chat.send"

type messageWriter interface {
	Create(ctx context.Context, msg models.Message) (*models.Message, error)
}

// OutgoingMessage is the payload of a queued chat write. Done is called once
// with either the stored message or the final error.
type OutgoingMessage struct {
	Message models.Message
	Done    func(stored *models.Message, err error)
}

// ChatSender persists queued chat messages.
type ChatSender struct {
	store   messageWriter
	metrics *MetricsService
	logger  *zap.Logger
}

// NewChatSender constructs a ChatSender.
func NewChatSender(store messageWriter, metrics *MetricsService, logger *zap.Logger) *ChatSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatSender{store: store, metrics: metrics, logger: logger}
}

// Handle is the jobs.Handler writing one message.
func (s *ChatSender) Handle(ctx context.Context, job jobs.Job) error {
	out, ok := job.Payload.(*OutgoingMessage)
	if !ok {
		return fmt.Errorf("unexpected payload %T for job %s", job.Payload, job.ID)
	}
	stored, err := s.store.Create(ctx, out.Message)
	if err != nil {
		return err
	}
	if out.Done != nil {
		out.Done(stored, nil)
	}
	return nil
}

// Fail is the jobs.FailureHandler reporting a message that could not be written.
func (s *ChatSender) Fail(job jobs.Job, err error) {
	s.metrics.RecordChatSendFailure()
	out, ok := job.Payload.(*OutgoingMessage)
	if !ok {
		s.logger.Error("dropping failed job with unexpected payload", zap.String("job_id", job.ID))
		return
	}
	if out.Done != nil {
		out.Done(nil, err)
	}
}
