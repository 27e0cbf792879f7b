package db

import (
	"github.com/pkg/errors"
	"github.com/stellamgmt/stella/models"
	"gorm.io/gorm"
)

// MessageRepository is the append-only log of messages per conversation.
type MessageRepository interface {
	SaveMessage(msg *models.Message) error
	ListByConversation(conversationID string) ([]models.Message, error)
}

type messageRepo struct {
	DB *gorm.DB
}

func NewMessageRepo(db *GormDB) MessageRepository {
	return &messageRepo{db.DB}
}

func (r *messageRepo) SaveMessage(msg *models.Message) error {
	if err := r.DB.Create(msg).Error; err != nil {
		return errors.Wrap(err, "append message")
	}
	return nil
}

// ListByConversation returns the full message list ascending by the
// server-assigned timestamp, with the ID as tiebreaker for equal timestamps.
func (r *messageRepo) ListByConversation(conversationID string) ([]models.Message, error) {
	var msgs []models.Message
	err := r.DB.Preload("Attachments").
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC, id ASC").
		Find(&msgs).Error
	if err != nil {
		return nil, errors.Wrap(err, "list messages")
	}
	return msgs, nil
}
