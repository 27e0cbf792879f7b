package services

import (
	"context"
	"log"

	"firebase.google.com/go/messaging"
	"github.com/stellamgmt/stella/db"
	"github.com/stellamgmt/stella/models"
)

// FCMSender is the slice of the Firebase messaging client used here.
type FCMSender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// NotificationService records notifications and pushes them to the recipient's
// registered device over Firebase Cloud Messaging. Everything here is
// best-effort: a failed push is logged and forgotten.
type NotificationService struct {
	client           FCMSender
	authRepo         db.AuthRepository
	notificationRepo db.NotificationRepository
}

func NewNotificationService(client FCMSender, authRepo db.AuthRepository, notificationRepo db.NotificationRepository) *NotificationService {
	return &NotificationService{
		client:           client,
		authRepo:         authRepo,
		notificationRepo: notificationRepo,
	}
}

// SendNewMessagePush notifies the recipient of a new message.
func (s *NotificationService) SendNewMessagePush(ctx context.Context, recipientID, conversationID, preview string) {
	user, err := s.authRepo.FindUserByUsername(recipientID)
	if err != nil {
		log.Printf("push skipped, recipient %s not found: %v", recipientID, err)
		return
	}

	n := &models.Notification{
		UserID:         user.ID,
		ConversationID: conversationID,
		Title:          "New message",
		Message:        preview,
	}
	if err := s.notificationRepo.SaveNotification(n); err != nil {
		log.Printf("saving notification for %s failed: %v", recipientID, err)
	}

	if s.client == nil || user.DeviceToken == "" {
		return
	}
	msg := &messaging.Message{
		Token: user.DeviceToken,
		Notification: &messaging.Notification{
			Title: "New message",
			Body:  preview,
		},
		Data: map[string]string{
			"conversation_id": conversationID,
		},
	}
	if _, err := s.client.Send(ctx, msg); err != nil {
		log.Printf("push to %s failed: %v", recipientID, err)
	}
}

// ListForUser returns the recipient's stored notifications, newest first.
func (s *NotificationService) ListForUser(userID uint) ([]models.Notification, error) {
	return s.notificationRepo.ListForUser(userID)
}

// MarkRead flags one stored notification as seen.
func (s *NotificationService) MarkRead(notificationID, userID uint) error {
	return s.notificationRepo.MarkRead(notificationID, userID)
}
