package models

import (
	"fmt"
	"time"
)

// Conversation is the aggregate record for a pair of participants. Its ID is a
// deterministic function of the two participant IDs (sorted, joined with "_"),
// so concurrent create calls from either side converge on the same row.
type Conversation struct {
	ID           string                    `gorm:"primaryKey;size:160" json:"id"`
	Participants []ConversationParticipant `gorm:"foreignKey:ConversationID" json:"participants"`
	LastMessage  string                    `json:"last_message"`
	LastKind     string                    `json:"last_kind"`
	LastSenderID string                    `gorm:"size:80" json:"last_sender_id"`
	Name         string                    `json:"name,omitempty"`
	RoleLabel    string                    `json:"role_label,omitempty"`
	CreatedAt    time.Time                 `json:"created_at"`
	UpdatedAt    time.Time                 `json:"updated_at"`
}

// ConversationParticipant holds the per-participant unread counter. Exactly two
// rows exist per conversation and the set never changes after creation.
type ConversationParticipant struct {
	ConversationID string `gorm:"primaryKey;size:160" json:"conversation_id"`
	UserID         string `gorm:"primaryKey;size:80;index" json:"user_id"`
	Name           string `json:"name"`
	Role           string `json:"role"`
	UnreadCount    int    `gorm:"not null;default:0" json:"unread_count"`
}

// ConversationMeta carries optional display metadata supplied on creation.
type ConversationMeta struct {
	Name      string `json:"name"`
	RoleLabel string `json:"role_label"`
}

// ConversationSummary is what conversation-list consumers receive: the
// conversation plus the unread count of the requesting user.
type ConversationSummary struct {
	ID           string    `json:"id"`
	Participants []string  `json:"participants"`
	LastMessage  string    `json:"last_message"`
	LastKind     string    `json:"last_kind"`
	LastSenderID string    `json:"last_sender_id"`
	Name         string    `json:"name,omitempty"`
	RoleLabel    string    `json:"role_label,omitempty"`
	UnreadCount  int       `json:"unread_count"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ConversationID derives the canonical conversation ID for a pair of users.
// The pair is unordered: ConversationID(a, b) == ConversationID(b, a).
func ConversationID(userA, userB string) string {
	if userB < userA {
		userA, userB = userB, userA
	}
	return fmt.Sprintf("%s_%s", userA, userB)
}

// TypingStatus reports the ephemeral typing flag of one participant.
type TypingStatus struct {
	UserID   string `json:"user_id"`
	Name     string `json:"name,omitempty"`
	IsTyping bool   `json:"is_typing"`
}
