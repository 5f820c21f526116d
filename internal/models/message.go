package models

import (
	"time"

	"github.com/google/uuid"
)

// SelectorType distinguishes direct conversations from sector channels.
type SelectorType string

const (
	SelectorUser   SelectorType = "user"
	SelectorSector SelectorType = "sector"
)

// Sentinel conversation ids.
const (
	GlobalUsersChannel  = "global-users"
	GlobalSectorChannel = "global"
)

// Attachment references an uploaded blob linked to a message.
type Attachment struct {
	URL      string `json:"url"`
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
}

// Message is a chat message in a direct, sector or broadcast conversation.
type Message struct {
	ID         string      `json:"id"`
	SenderID   string      `json:"senderId"`
	ReceiverID *string     `json:"receiverId,omitempty"`
	SectorID   *string     `json:"sectorId,omitempty"`
	Body       string      `json:"body"`
	Attachment *Attachment `json:"attachment,omitempty"`
	Read       bool        `json:"read"`
	CreatedAt  time.Time   `json:"createdAt"`
	// PendingID is the server id reserved for a placeholder until its write is confirmed.
	PendingID  string      `json:"pendingId,omitempty"`
}

// IsTemporary reports whether the message still carries a client-side placeholder id.
func (m Message) IsTemporary() bool {
	_, err := uuid.Parse(m.ID)
	return err != nil
}

// IsBroadcast reports whether the message is addressed to nobody in particular.
func (m Message) IsBroadcast() bool {
	return empty(m.ReceiverID) && empty(m.SectorID)
}

// ReceiverIs reports whether the message is addressed to the given user.
func (m Message) ReceiverIs(userID string) bool {
	return m.ReceiverID != nil && *m.ReceiverID == userID
}

// InSector reports whether the message belongs to the given sector channel.
func (m Message) InSector(sectorID string) bool {
	return m.SectorID != nil && *m.SectorID == sectorID
}

// ConversationSelector identifies the conversation currently shown to a user.
type ConversationSelector struct {
	Type        SelectorType `json:"type" validate:"required,oneof=user sector"`
	ID          string       `json:"id" validate:"required"`
	DisplayName string       `json:"displayName"`
}

// MessageScope constrains message history queries to a single conversation.
type MessageScope struct {
	Selector ConversationSelector
	UserID   string
	Limit    int
	Offset   int
}

func empty(v *string) bool {
	return v == nil || *v == ""
}

// StringPtr returns nil for blank strings.
func StringPtr(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
