package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/gestao-docs-api/internal/models"
)

// MessageRecord is the row shape of the messages table. The json tags match
// the change payloads emitted by the table trigger.
type MessageRecord struct {
	ID             string    `db:"id" json:"id"`
	SenderID       string    `db:"sender_id" json:"sender_id"`
	ReceiverID     *string   `db:"receiver_id" json:"receiver_id"`
	SectorID       *string   `db:"sector_id" json:"sector_id"`
	Body           string    `db:"body" json:"body"`
	AttachmentURL  *string   `db:"attachment_url" json:"attachment_url"`
	AttachmentName *string   `db:"attachment_name" json:"attachment_name"`
	AttachmentMime *string   `db:"attachment_mime" json:"attachment_mime"`
	Read           bool      `db:"read" json:"read"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// NewMessageRecord converts a domain message into its row shape.
func NewMessageRecord(m models.Message) MessageRecord {
	rec := MessageRecord{
		ID:         m.ID,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		SectorID:   m.SectorID,
		Body:       m.Body,
		Read:       m.Read,
		CreatedAt:  m.CreatedAt,
	}
	if m.Attachment != nil {
		rec.AttachmentURL = models.StringPtr(m.Attachment.URL)
		rec.AttachmentName = models.StringPtr(m.Attachment.Name)
		rec.AttachmentMime = models.StringPtr(m.Attachment.MimeType)
	}
	return rec
}

// Message converts the row into the domain message.
func (r MessageRecord) Message() models.Message {
	msg := models.Message{
		ID:         r.ID,
		SenderID:   r.SenderID,
		ReceiverID: r.ReceiverID,
		SectorID:   r.SectorID,
		Body:       r.Body,
		Read:       r.Read,
		CreatedAt:  r.CreatedAt,
	}
	if r.AttachmentURL != nil && *r.AttachmentURL != "" {
		msg.Attachment = &models.Attachment{URL: *r.AttachmentURL}
		if r.AttachmentName != nil {
			msg.Attachment.Name = *r.AttachmentName
		}
		if r.AttachmentMime != nil {
			msg.Attachment.MimeType = *r.AttachmentMime
		}
	}
	return msg
}

const messageColumns = "id, sender_id, receiver_id, sector_id, body, attachment_url, attachment_name, attachment_mime, read, created_at"

// MessageRepository manages chat messages.
type MessageRepository struct {
	db *sqlx.DB
}

// NewMessageRepository constructs a MessageRepository.
func NewMessageRepository(db *sqlx.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// conversationCondition builds the WHERE clause matching one conversation scope.
func conversationCondition(scope models.MessageScope) (string, []interface{}) {
	sel := scope.Selector
	switch {
	case sel.Type == models.SelectorUser && sel.ID == models.GlobalUsersChannel:
		return "receiver_id IS NULL AND sector_id IS NULL", nil
	case sel.Type == models.SelectorUser:
		return "((sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1))", []interface{}{sel.ID, scope.UserID}
	case sel.Type == models.SelectorSector && sel.ID == models.GlobalSectorChannel:
		return "sector_id = $1", []interface{}{models.GlobalSectorChannel}
	default:
		return "sector_id = $1", []interface{}{sel.ID}
	}
}

// ListConversation returns the most recent messages of a conversation in ascending creation order.
func (r *MessageRepository) ListConversation(ctx context.Context, scope models.MessageScope) ([]models.Message, error) {
	cond, args := conversationCondition(scope)
	limit := scope.Limit
	if limit <= 0 || limit > 1000 {
		limit = 500
	}
	offset := scope.Offset
	if offset < 0 {
		offset = 0
	}
	query := fmt.Sprintf("SELECT * FROM (SELECT %s FROM messages WHERE %s ORDER BY created_at DESC LIMIT %d OFFSET %d) recent ORDER BY created_at ASC",
		messageColumns, cond, limit, offset)

	var rows []MessageRecord
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list conversation: %w", err)
	}
	messages := make([]models.Message, 0, len(rows))
	for _, row := range rows {
		messages = append(messages, row.Message())
	}
	return messages, nil
}

// Create persists a message and returns the stored copy. A message that
// already carries a server id keeps it, so repeating the write for the same
// message is a no-op that returns the row stored first.
func (r *MessageRepository) Create(ctx context.Context, msg models.Message) (*models.Message, error) {
	rec := NewMessageRecord(msg)
	if msg.IsTemporary() {
		rec.ID = uuid.NewString()
	}
	rec.Read = false
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO messages (id, sender_id, receiver_id, sector_id, body, attachment_url, attachment_name, attachment_mime, read, created_at)
		VALUES (:id, :sender_id, :receiver_id, :sector_id, :body, :attachment_url, :attachment_name, :attachment_mime, :read, :created_at)
		ON CONFLICT (id) DO NOTHING`
	res, err := r.db.NamedExecContext(ctx, query, rec)
	if err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}
	if affected == 0 {
		existing, err := r.FindByID(ctx, rec.ID)
		if err != nil {
			return nil, fmt.Errorf("load existing message: %w", err)
		}
		return existing, nil
	}
	stored := rec.Message()
	return &stored, nil
}

// FindByID fetches a message by ID.
func (r *MessageRepository) FindByID(ctx context.Context, id string) (*models.Message, error) {
	query := "SELECT " + messageColumns + " FROM messages WHERE id = $1"
	var rec MessageRecord
	if err := r.db.GetContext(ctx, &rec, query, id); err != nil {
		return nil, err
	}
	msg := rec.Message()
	return &msg, nil
}

// MarkRead flags the given messages as read, skipping those authored by the reader.
func (r *MessageRepository) MarkRead(ctx context.Context, ids []string, readerID string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	const query = `UPDATE messages SET read = TRUE WHERE id = ANY($1) AND sender_id <> $2 AND read = FALSE`
	res, err := r.db.ExecContext(ctx, query, pq.Array(ids), readerID)
	if err != nil {
		return 0, fmt.Errorf("mark messages read: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mark messages read: %w", err)
	}
	return affected, nil
}

// CountUnread counts unread messages addressed to the user, their sector or everyone.
func (r *MessageRepository) CountUnread(ctx context.Context, userID, sectorID string) (int, error) {
	const query = `SELECT COUNT(*) FROM messages WHERE read = FALSE AND sender_id <> $1
		AND (receiver_id = $1 OR (sector_id IS NOT NULL AND sector_id = $2) OR (receiver_id IS NULL AND sector_id IS NULL))`
	var count int
	if err := r.db.GetContext(ctx, &count, query, userID, sectorID); err != nil {
		return 0, fmt.Errorf("count unread messages: %w", err)
	}
	return count, nil
}

// Delete removes a message authored by senderID. It reports whether a row was removed.
func (r *MessageRepository) Delete(ctx context.Context, id, senderID string) (bool, error) {
	const query = `DELETE FROM messages WHERE id = $1 AND sender_id = $2`
	res, err := r.db.ExecContext(ctx, query, id, senderID)
	if err != nil {
		return false, fmt.Errorf("delete message: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete message: %w", err)
	}
	return affected > 0, nil
}
