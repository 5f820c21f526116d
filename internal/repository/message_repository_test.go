package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gestao-docs-api/internal/models"
)

var messageRowColumns = []string{"id", "sender_id", "receiver_id", "sector_id", "body", "attachment_url", "attachment_name", "attachment_mime", "read", "created_at"}

func TestConversationCondition(t *testing.T) {
	cond, args := conversationCondition(models.MessageScope{Selector: models.ConversationSelector{Type: models.SelectorUser, ID: models.GlobalUsersChannel}})
	assert.Equal(t, "receiver_id IS NULL AND sector_id IS NULL", cond)
	assert.Empty(t, args)

	cond, args = conversationCondition(models.MessageScope{Selector: models.ConversationSelector{Type: models.SelectorUser, ID: "u2"}, UserID: "u1"})
	assert.Contains(t, cond, "sender_id = $1 AND receiver_id = $2")
	assert.Equal(t, []interface{}{"u2", "u1"}, args)

	cond, args = conversationCondition(models.MessageScope{Selector: models.ConversationSelector{Type: models.SelectorSector, ID: "s1"}})
	assert.Equal(t, "sector_id = $1", cond)
	assert.Equal(t, []interface{}{"s1"}, args)
}

func TestListConversationAscending(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewMessageRepository(db)

	t1 := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(messageRowColumns).
		AddRow("a", "u1", nil, "s1", "hello", "https://files/x.pdf", "x.pdf", "application/pdf", false, t1).
		AddRow("b", "u2", nil, "s1", "hi", nil, nil, nil, true, t1.Add(time.Minute))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM (SELECT " + messageColumns + " FROM messages WHERE sector_id = $1 ORDER BY created_at DESC LIMIT 500 OFFSET 0) recent ORDER BY created_at ASC")).
		WithArgs("s1").
		WillReturnRows(rows)

	msgs, err := repo.ListConversation(context.Background(), models.MessageScope{Selector: models.ConversationSelector{Type: models.SelectorSector, ID: "s1"}, UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.NotNil(t, msgs[0].Attachment)
	assert.Equal(t, "x.pdf", msgs[0].Attachment.Name)
	assert.Nil(t, msgs[1].Attachment)
	assert.True(t, msgs[1].InSector("s1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateMessageAssignsServerID(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewMessageRepository(db)

	mock.ExpectExec("INSERT INTO messages").WillReturnResult(sqlmock.NewResult(1, 1))

	stored, err := repo.Create(context.Background(), models.Message{ID: "tmp-1", SenderID: "u1", Body: "hello", Read: true})
	require.NoError(t, err)
	assert.False(t, stored.IsTemporary())
	assert.False(t, stored.Read)
	assert.False(t, stored.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateMessageRepeatedWriteKeepsID(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewMessageRepository(db)

	id := "0b6c9a52-7d0e-4c3f-9a43-4d3c1f1f0a01"
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	msg := models.Message{ID: id, SenderID: "u1", SectorID: models.StringPtr("s1"), Body: "ok", CreatedAt: at}

	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (id) DO NOTHING")).
		WithArgs(id, "u1", sqlmock.AnyArg(), sqlmock.AnyArg(), "ok", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), false, at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (id) DO NOTHING")).
		WithArgs(id, "u1", sqlmock.AnyArg(), sqlmock.AnyArg(), "ok", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), false, at).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT " + messageColumns + " FROM messages WHERE id = $1")).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(messageRowColumns).AddRow(id, "u1", nil, "s1", "ok", nil, nil, nil, false, at))

	first, err := repo.Create(context.Background(), msg)
	require.NoError(t, err)
	second, err := repo.Create(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, id, first.ID)
	assert.Equal(t, id, second.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkReadBatch(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewMessageRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE messages SET read = TRUE WHERE id = ANY($1) AND sender_id <> $2 AND read = FALSE")).
		WithArgs(sqlmock.AnyArg(), "u1").
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := repo.MarkRead(context.Background(), []string{"a", "b"}, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = repo.MarkRead(context.Background(), nil, "u1")
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCountUnreadAndDelete(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewMessageRepository(db)

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM messages WHERE read = FALSE").
		WithArgs("u1", "s1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM messages WHERE id = $1 AND sender_id = $2")).
		WithArgs("m1", "u1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	count, err := repo.CountUnread(context.Background(), "u1", "s1")
	require.NoError(t, err)
	assert.Equal(t, 4, count)

	removed, err := repo.Delete(context.Background(), "m1", "u1")
	require.NoError(t, err)
	assert.False(t, removed)
	assert.NoError(t, mock.ExpectationsWereMet())
}
