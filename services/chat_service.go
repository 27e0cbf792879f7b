package services

import (
	"context"
	"log"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stellamgmt/stella/db"
	apiError "github.com/stellamgmt/stella/errors"
	"github.com/stellamgmt/stella/models"
	"github.com/stellamgmt/stella/realtime"
)

// AttachmentUploader stores one uploaded file and returns the addressable
// attachment record. Implemented by the S3-backed attachment service.
type AttachmentUploader interface {
	Upload(ctx context.Context, conversationID string, file *multipart.FileHeader) (*models.Attachment, error)
}

// PushSender delivers a best-effort new-message push to a recipient. Failures
// are the sender's to log; they never fail the message send.
type PushSender interface {
	SendNewMessagePush(ctx context.Context, recipientID, conversationID, preview string)
}

// ChatService is the messaging subsystem: conversation registry, message log,
// presence markers, and the subscription feeds derived from them.
type ChatService interface {
	CreateConversationIfNotExists(ctx context.Context, userA, userB string, meta *models.ConversationMeta) (string, error)
	Conversation(ctx context.Context, conversationID string) (*models.Conversation, error)
	SendMessage(ctx context.Context, conversationID string, draft models.MessageDraft, files []*multipart.FileHeader) (string, error)
	MarkConversationAsRead(ctx context.Context, conversationID, readerID string) error
	SetTyping(ctx context.Context, conversationID, userID string, isTyping bool) error
	ListTyping(ctx context.Context, conversationID, requesterID string) ([]models.TypingStatus, error)
	Messages(ctx context.Context, conversationID string) ([]models.Message, error)
	ConversationsForUser(ctx context.Context, userID string) ([]models.ConversationSummary, error)
	SubscribeToConversation(conversationID string) (<-chan interface{}, func())
	SubscribeToConversationList(userID string) (<-chan interface{}, func())
}

type chatService struct {
	conversationRepo db.ConversationRepository
	messageRepo      db.MessageRepository
	presenceRepo     db.PresenceRepository
	uploader         AttachmentUploader
	push             PushSender
	hub              *realtime.Hub
}

func NewChatService(
	conversationRepo db.ConversationRepository,
	messageRepo db.MessageRepository,
	presenceRepo db.PresenceRepository,
	uploader AttachmentUploader,
	push PushSender,
	hub *realtime.Hub,
) ChatService {
	return &chatService{
		conversationRepo: conversationRepo,
		messageRepo:      messageRepo,
		presenceRepo:     presenceRepo,
		uploader:         uploader,
		push:             push,
		hub:              hub,
	}
}

func (s *chatService) CreateConversationIfNotExists(ctx context.Context, userA, userB string, meta *models.ConversationMeta) (string, error) {
	userA = strings.TrimSpace(userA)
	userB = strings.TrimSpace(userB)
	if userA == "" || userB == "" {
		return "", apiError.New("both participants are required", http.StatusBadRequest)
	}
	if userA == userB {
		return "", apiError.New("cannot start a conversation with yourself", http.StatusBadRequest)
	}

	conv := &models.Conversation{
		ID: models.ConversationID(userA, userB),
		Participants: []models.ConversationParticipant{
			{UserID: userA},
			{UserID: userB},
		},
	}
	if meta != nil {
		conv.Name = meta.Name
		conv.RoleLabel = meta.RoleLabel
	}

	if err := s.conversationRepo.CreateIfNotExists(conv); err != nil {
		return "", err
	}

	s.publishConversationList(userA)
	s.publishConversationList(userB)
	return conv.ID, nil
}

func (s *chatService) Conversation(ctx context.Context, conversationID string) (*models.Conversation, error) {
	conv, err := s.conversationRepo.GetByID(conversationID)
	if err != nil {
		if err == db.ErrConversationNotFound {
			return nil, apiError.New("conversation not found", http.StatusNotFound)
		}
		return nil, err
	}
	return conv, nil
}

func (s *chatService) SendMessage(ctx context.Context, conversationID string, draft models.MessageDraft, files []*multipart.FileHeader) (string, error) {
	if draft.SenderID == "" || draft.RecipientID == "" {
		return "", apiError.New("sender and recipient are required", http.StatusBadRequest)
	}
	if strings.TrimSpace(draft.Content) == "" && len(files) == 0 {
		return "", apiError.New("message needs text or at least one attachment", http.StatusBadRequest)
	}

	conv, err := s.conversationRepo.GetByID(conversationID)
	if err != nil {
		if err == db.ErrConversationNotFound {
			return "", apiError.New("conversation not found", http.StatusNotFound)
		}
		return "", err
	}
	if !isParticipant(conv, draft.SenderID) {
		return "", apiError.New("sender is not a participant of this conversation", http.StatusForbidden)
	}

	// Uploads run one after another; the first failure aborts the whole send
	// so a message never references a partial attachment set.
	if len(files) > 0 && s.uploader == nil {
		return "", apiError.New("attachment uploads are not configured", http.StatusBadGateway)
	}
	var attachments []models.Attachment
	for _, file := range files {
		att, err := s.uploader.Upload(ctx, conversationID, file)
		if err != nil {
			return "", apiError.New("attachment upload failed: "+err.Error(), http.StatusBadGateway)
		}
		attachments = append(attachments, *att)
	}

	msg := &models.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		SenderID:       draft.SenderID,
		SenderName:     draft.SenderName,
		SenderRole:     draft.SenderRole,
		RecipientID:    draft.RecipientID,
		RecipientName:  draft.RecipientName,
		RecipientRole:  draft.RecipientRole,
		Content:        draft.Content,
		Kind:           messageKind(attachments),
		Attachments:    attachments,
		IsRead:         false,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.messageRepo.SaveMessage(msg); err != nil {
		return "", err
	}

	// The summary update is a separate write. If it fails the message already
	// stands; the stale summary heals on the next successful send.
	preview := msg.Content
	if preview == "" && len(attachments) > 0 {
		preview = attachments[0].Name
	}
	if err := s.conversationRepo.RecordMessage(conversationID, msg.SenderID, preview, msg.Kind, msg.CreatedAt); err != nil {
		log.Printf("conversation %s: summary update failed after message %s: %v", conversationID, msg.ID, err)
	}

	s.publishMessages(conversationID)
	for _, p := range conv.Participants {
		s.publishConversationList(p.UserID)
	}

	if s.push != nil {
		s.push.SendNewMessagePush(ctx, draft.RecipientID, conversationID, preview)
	}
	return msg.ID, nil
}

func (s *chatService) MarkConversationAsRead(ctx context.Context, conversationID, readerID string) error {
	if err := s.conversationRepo.MarkRead(conversationID, readerID); err != nil {
		return err
	}
	s.publishMessages(conversationID)
	s.publishConversationList(readerID)
	return nil
}

func (s *chatService) SetTyping(ctx context.Context, conversationID, userID string, isTyping bool) error {
	return s.presenceRepo.SetTyping(ctx, conversationID, userID, isTyping)
}

func (s *chatService) ListTyping(ctx context.Context, conversationID, requesterID string) ([]models.TypingStatus, error) {
	conv, err := s.conversationRepo.GetByID(conversationID)
	if err != nil {
		return nil, err
	}
	typing := []models.TypingStatus{}
	for _, p := range conv.Participants {
		if p.UserID == requesterID {
			continue
		}
		on, err := s.presenceRepo.IsTyping(ctx, conversationID, p.UserID)
		if err != nil {
			// Presence is a UX affordance; a read failure is not worth failing
			// the request over.
			log.Printf("conversation %s: typing lookup for %s failed: %v", conversationID, p.UserID, err)
			continue
		}
		if on {
			typing = append(typing, models.TypingStatus{UserID: p.UserID, Name: p.Name, IsTyping: true})
		}
	}
	return typing, nil
}

func (s *chatService) Messages(ctx context.Context, conversationID string) ([]models.Message, error) {
	return s.messageRepo.ListByConversation(conversationID)
}

func (s *chatService) ConversationsForUser(ctx context.Context, userID string) ([]models.ConversationSummary, error) {
	return s.conversationRepo.ListForUser(userID)
}

func (s *chatService) SubscribeToConversation(conversationID string) (<-chan interface{}, func()) {
	return s.hub.Subscribe(realtime.ConversationTopic(conversationID), realtime.DefaultBuffer)
}

func (s *chatService) SubscribeToConversationList(userID string) (<-chan interface{}, func()) {
	return s.hub.Subscribe(realtime.UserConversationsTopic(userID), realtime.DefaultBuffer)
}

func (s *chatService) publishMessages(conversationID string) {
	topic := realtime.ConversationTopic(conversationID)
	if s.hub.Subscribers(topic) == 0 {
		return
	}
	msgs, err := s.messageRepo.ListByConversation(conversationID)
	if err != nil {
		log.Printf("conversation %s: snapshot load failed: %v", conversationID, err)
		return
	}
	s.hub.Publish(topic, msgs)
}

func (s *chatService) publishConversationList(userID string) {
	topic := realtime.UserConversationsTopic(userID)
	if s.hub.Subscribers(topic) == 0 {
		return
	}
	summaries, err := s.conversationRepo.ListForUser(userID)
	if err != nil {
		log.Printf("user %s: conversation list load failed: %v", userID, err)
		return
	}
	s.hub.Publish(topic, summaries)
}

func isParticipant(conv *models.Conversation, userID string) bool {
	for _, p := range conv.Participants {
		if p.UserID == userID {
			return true
		}
	}
	return false
}

func messageKind(attachments []models.Attachment) string {
	if len(attachments) == 0 {
		return models.MessageKindText
	}
	if strings.HasPrefix(attachments[0].ContentType, "image/") {
		return models.MessageKindImage
	}
	return models.MessageKindFile
}
