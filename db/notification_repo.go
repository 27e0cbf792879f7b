package db

import (
	"github.com/pkg/errors"
	"github.com/stellamgmt/stella/models"
	"gorm.io/gorm"
)

type NotificationRepository interface {
	SaveNotification(n *models.Notification) error
	ListForUser(userID uint) ([]models.Notification, error)
	MarkRead(notificationID uint, userID uint) error
}

type notificationRepo struct {
	DB *gorm.DB
}

func NewNotificationRepo(db *GormDB) NotificationRepository {
	return &notificationRepo{db.DB}
}

func (r *notificationRepo) SaveNotification(n *models.Notification) error {
	if err := r.DB.Create(n).Error; err != nil {
		return errors.Wrap(err, "save notification")
	}
	return nil
}

func (r *notificationRepo) ListForUser(userID uint) ([]models.Notification, error) {
	var out []models.Notification
	err := r.DB.Where("user_id = ?", userID).Order("created_at DESC").Limit(100).Find(&out).Error
	if err != nil {
		return nil, errors.Wrap(err, "list notifications")
	}
	return out, nil
}

func (r *notificationRepo) MarkRead(notificationID uint, userID uint) error {
	return r.DB.Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", notificationID, userID).
		Update("is_read", true).Error
}
