package models

import "time"

const (
	MessageKindText  = "text"
	MessageKindImage = "image"
	MessageKindFile  = "file"
)

// Message is an immutable record of one communication event. Content and
// attachments never change after creation; only IsRead flips to true when the
// recipient marks the conversation read.
type Message struct {
	ID             string       `gorm:"primaryKey;size:64" json:"id"`
	ConversationID string       `gorm:"size:160;index;not null" json:"conversation_id"`
	SenderID       string       `gorm:"size:80;not null" json:"sender_id"`
	SenderName     string       `json:"sender_name"`
	SenderRole     string       `json:"sender_role"`
	RecipientID    string       `gorm:"size:80;not null" json:"recipient_id"`
	RecipientName  string       `json:"recipient_name"`
	RecipientRole  string       `json:"recipient_role"`
	Content        string       `json:"content"`
	Kind           string       `gorm:"size:16;default:text" json:"kind"`
	Attachments    []Attachment `gorm:"foreignKey:MessageID" json:"attachments,omitempty"`
	IsRead         bool         `gorm:"default:false" json:"is_read"`
	CreatedAt      time.Time    `gorm:"index" json:"created_at"`
}

// Attachment is one uploaded file referenced by a message.
type Attachment struct {
	Model
	MessageID    string `gorm:"size:64;index" json:"-"`
	Name         string `json:"name"`
	URL          string `json:"url"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
	ContentType  string `json:"content_type"`
	Size         int64  `json:"size"`
}

// MessageDraft is the caller-supplied portion of a send. The server assigns the
// ID and timestamp; at least one of Content or attachments must be present.
type MessageDraft struct {
	SenderID      string `json:"sender_id" binding:"required"`
	SenderName    string `json:"sender_name"`
	SenderRole    string `json:"sender_role"`
	RecipientID   string `json:"recipient_id" binding:"required"`
	RecipientName string `json:"recipient_name"`
	RecipientRole string `json:"recipient_role"`
	Content       string `json:"content"`
}
