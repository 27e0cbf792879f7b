package models

// Notification is a persisted record of a push sent to a user.
type Notification struct {
	Model
	UserID         uint   `json:"user_id" gorm:"index"`
	ConversationID string `json:"conversation_id" gorm:"size:160"`
	Title          string `json:"title"`
	Message        string `json:"message"`
	IsRead         bool   `json:"is_read"`
}

type DeviceTokenRequest struct {
	DeviceToken string `json:"device_token" binding:"required"`
}
