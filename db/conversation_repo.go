package db

import (
	"time"

	"github.com/pkg/errors"
	"github.com/stellamgmt/stella/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrConversationNotFound = errors.New("conversation not found")

// ConversationRepository is the registry of conversations and their
// denormalized summary state (last message, per-participant unread counters).
type ConversationRepository interface {
	CreateIfNotExists(conv *models.Conversation) error
	GetByID(id string) (*models.Conversation, error)
	ListForUser(userID string) ([]models.ConversationSummary, error)
	RecordMessage(conversationID, senderID, preview, kind string, at time.Time) error
	MarkRead(conversationID, readerID string) error
}

type conversationRepo struct {
	DB *gorm.DB
}

func NewConversationRepo(db *GormDB) ConversationRepository {
	return &conversationRepo{db.DB}
}

// CreateIfNotExists inserts the conversation and its two participant rows,
// ignoring conflicts on the deterministic primary key. Concurrent calls from
// either participant converge on the same row without a lookup-then-create
// race.
func (r *conversationRepo) CreateIfNotExists(conv *models.Conversation) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		participants := conv.Participants
		conv.Participants = nil
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(conv).Error; err != nil {
			return errors.Wrap(err, "create conversation")
		}
		for i := range participants {
			participants[i].ConversationID = conv.ID
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&participants[i]).Error; err != nil {
				return errors.Wrap(err, "create participant")
			}
		}
		conv.Participants = participants
		return nil
	})
}

func (r *conversationRepo) GetByID(id string) (*models.Conversation, error) {
	var conv models.Conversation
	err := r.DB.Preload("Participants").First(&conv, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "get conversation")
	}
	return &conv, nil
}

func (r *conversationRepo) ListForUser(userID string) ([]models.ConversationSummary, error) {
	var convs []models.Conversation
	err := r.DB.Preload("Participants").
		Joins("JOIN conversation_participants cp ON cp.conversation_id = conversations.id").
		Where("cp.user_id = ?", userID).
		Order("conversations.updated_at DESC").
		Find(&convs).Error
	if err != nil {
		return nil, errors.Wrap(err, "list conversations")
	}

	summaries := make([]models.ConversationSummary, 0, len(convs))
	for _, conv := range convs {
		s := models.ConversationSummary{
			ID:           conv.ID,
			LastMessage:  conv.LastMessage,
			LastKind:     conv.LastKind,
			LastSenderID: conv.LastSenderID,
			Name:         conv.Name,
			RoleLabel:    conv.RoleLabel,
			UpdatedAt:    conv.UpdatedAt,
		}
		for _, p := range conv.Participants {
			s.Participants = append(s.Participants, p.UserID)
			if p.UserID == userID {
				s.UnreadCount = p.UnreadCount
			}
		}
		summaries = append(summaries, s)
	}
	return summaries, nil
}

// RecordMessage denormalizes the newest message onto the conversation and bumps
// the unread counter of every participant except the sender. The increment runs
// in SQL so concurrent sends to the same conversation cannot lose updates.
func (r *conversationRepo) RecordMessage(conversationID, senderID, preview, kind string, at time.Time) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Conversation{}).
			Where("id = ?", conversationID).
			Updates(map[string]interface{}{
				"last_message":   preview,
				"last_kind":      kind,
				"last_sender_id": senderID,
				"updated_at":     at,
			})
		if res.Error != nil {
			return errors.Wrap(res.Error, "update conversation summary")
		}
		if res.RowsAffected == 0 {
			return ErrConversationNotFound
		}

		err := tx.Model(&models.ConversationParticipant{}).
			Where("conversation_id = ? AND user_id <> ?", conversationID, senderID).
			Update("unread_count", gorm.Expr("unread_count + 1")).Error
		if err != nil {
			return errors.Wrap(err, "increment unread counters")
		}
		return nil
	})
}

// MarkRead zeroes the reader's unread counter and flips the per-message read
// flags the reader is the recipient of. The counter is the source of truth; the
// flags are kept in step so the two never disagree.
func (r *conversationRepo) MarkRead(conversationID, readerID string) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&models.ConversationParticipant{}).
			Where("conversation_id = ? AND user_id = ?", conversationID, readerID).
			Update("unread_count", 0).Error
		if err != nil {
			return errors.Wrap(err, "reset unread counter")
		}

		err = tx.Model(&models.Message{}).
			Where("conversation_id = ? AND recipient_id = ? AND is_read = ?", conversationID, readerID, false).
			Update("is_read", true).Error
		if err != nil {
			return errors.Wrap(err, "mark messages read")
		}
		return nil
	})
}
