package dto

import "github.com/noah-isme/gestao-docs-api/internal/models"

// SendMessageRequest is the payload for posting a chat message.
type SendMessageRequest struct {
	Selector   models.ConversationSelector `json:"selector" validate:"required"`
	Body       string                      `json:"body" validate:"max=4000"`
	Attachment *models.Attachment          `json:"attachment,omitempty"`
}

// UnreadCountResponse reports the caller's unread messages.
type UnreadCountResponse struct {
	UnreadCount int `json:"unreadCount"`
}

// Chat websocket frame types.
const (
	FrameSelect = "select"
	FrameSend   = "send"
	FrameFocus  = "focus"
	FrameState  = "state"
	FrameError  = "error"
)

// ClientFrame is a message sent by a websocket client.
type ClientFrame struct {
	Type       string                       `json:"type"`
	Selector   *models.ConversationSelector `json:"selector,omitempty"`
	Body       string                       `json:"body,omitempty"`
	Attachment *models.Attachment           `json:"attachment,omitempty"`
	Focused    *bool                        `json:"focused,omitempty"`
}

// ServerFrame is a message pushed to a websocket client.
type ServerFrame struct {
	Type    string      `json:"type"`
	State   interface{} `json:"state,omitempty"`
	Code    string      `json:"code,omitempty"`
	Message string      `json:"message,omitempty"`
}
