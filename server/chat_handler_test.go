package server

import (
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stellamgmt/stella/config"
	"github.com/stellamgmt/stella/db"
	errs "github.com/stellamgmt/stella/errors"
	"github.com/stellamgmt/stella/models"
	"github.com/stellamgmt/stella/realtime"
	"github.com/stellamgmt/stella/services/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubAuthRepo implements the two AuthRepository methods the Authorize
// middleware touches; everything else panics via the nil embed.
type stubAuthRepo struct {
	db.AuthRepository
	user *models.User
}

func (r *stubAuthRepo) IsTokenInBlacklist(token string) bool { return false }

func (r *stubAuthRepo) FindUserByID(id uint) (*models.User, error) {
	return r.user, nil
}

// stubChatService returns canned results and records the arguments it saw.
type stubChatService struct {
	conversation *models.Conversation
	messages     []models.Message
	summaries    []models.ConversationSummary

	createdWith []string
	sentDrafts  []models.MessageDraft
	readBy      []string
}

func (s *stubChatService) CreateConversationIfNotExists(ctx context.Context, userA, userB string, meta *models.ConversationMeta) (string, error) {
	s.createdWith = append(s.createdWith, userA, userB)
	return models.ConversationID(userA, userB), nil
}

func (s *stubChatService) Conversation(ctx context.Context, conversationID string) (*models.Conversation, error) {
	if s.conversation == nil || s.conversation.ID != conversationID {
		return nil, errs.New("conversation not found", http.StatusNotFound)
	}
	return s.conversation, nil
}

func (s *stubChatService) SendMessage(ctx context.Context, conversationID string, draft models.MessageDraft, files []*multipart.FileHeader) (string, error) {
	s.sentDrafts = append(s.sentDrafts, draft)
	return "msg-1", nil
}

func (s *stubChatService) MarkConversationAsRead(ctx context.Context, conversationID, readerID string) error {
	s.readBy = append(s.readBy, readerID)
	return nil
}

func (s *stubChatService) SetTyping(ctx context.Context, conversationID, userID string, isTyping bool) error {
	return nil
}

func (s *stubChatService) ListTyping(ctx context.Context, conversationID, requesterID string) ([]models.TypingStatus, error) {
	return []models.TypingStatus{}, nil
}

func (s *stubChatService) Messages(ctx context.Context, conversationID string) ([]models.Message, error) {
	return s.messages, nil
}

func (s *stubChatService) ConversationsForUser(ctx context.Context, userID string) ([]models.ConversationSummary, error) {
	return s.summaries, nil
}

func (s *stubChatService) SubscribeToConversation(conversationID string) (<-chan interface{}, func()) {
	ch := make(chan interface{})
	return ch, func() { close(ch) }
}

func (s *stubChatService) SubscribeToConversationList(userID string) (<-chan interface{}, func()) {
	ch := make(chan interface{})
	return ch, func() { close(ch) }
}

const testSecret = "test-secret"

func testServer(t *testing.T, chat *stubChatService) *Server {
	t.Helper()
	t.Setenv("GIN_MODE", "test")
	gin.SetMode(gin.TestMode)

	return &Server{
		Config: &config.Config{JWTSecret: testSecret},
		AuthRepository: &stubAuthRepo{user: &models.User{
			Model:    models.Model{ID: 1},
			Fullname: "Alice Doe",
			Username: "alice",
			Role:     models.Role{Name: models.RoleClient},
		}},
		ChatService: chat,
		Hub:         realtime.NewHub(),
	}
}

func bearerToken(t *testing.T) string {
	t.Helper()
	token, err := jwt.GenerateToken(1, "alice", models.RoleClient, testSecret)
	require.NoError(t, err)
	return "Bearer " + token
}

func TestAuthorizeRejectsMissingToken(t *testing.T) {
	s := testServer(t, &stubChatService{})
	router := s.setupRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/conversations", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCreateConversationEndpoint(t *testing.T) {
	chat := &stubChatService{}
	s := testServer(t, chat)
	router := s.setupRouter()

	body := strings.NewReader(`{"user_id": "bob"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/conversations", body)
	req.Header.Set("Authorization", bearerToken(t))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Data map[string]string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "alice_bob", resp.Data["conversation_id"])
	assert.Equal(t, []string{"alice", "bob"}, chat.createdWith)
}

func TestSendMessageEndpoint(t *testing.T) {
	conv := &models.Conversation{
		ID: "alice_bob",
		Participants: []models.ConversationParticipant{
			{UserID: "alice"}, {UserID: "bob"},
		},
	}
	chat := &stubChatService{conversation: conv}
	s := testServer(t, chat)
	router := s.setupRouter()

	form := url.Values{}
	form.Set("recipient_id", "bob")
	form.Set("content", "hi")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/conversations/alice_bob/messages", strings.NewReader(form.Encode()))
	req.Header.Set("Authorization", bearerToken(t))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	require.Len(t, chat.sentDrafts, 1)
	draft := chat.sentDrafts[0]
	assert.Equal(t, "alice", draft.SenderID, "sender identity comes from the token, not the form")
	assert.Equal(t, "Alice Doe", draft.SenderName)
	assert.Equal(t, "bob", draft.RecipientID)
	assert.Equal(t, "hi", draft.Content)
}

func TestListMessagesRequiresParticipant(t *testing.T) {
	conv := &models.Conversation{
		ID: "bob_carol",
		Participants: []models.ConversationParticipant{
			{UserID: "bob"}, {UserID: "carol"},
		},
	}
	chat := &stubChatService{conversation: conv}
	s := testServer(t, chat)
	router := s.setupRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/conversations/bob_carol/messages", nil)
	req.Header.Set("Authorization", bearerToken(t))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestListMessagesUnknownConversation(t *testing.T) {
	chat := &stubChatService{}
	s := testServer(t, chat)
	router := s.setupRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/conversations/nope/messages", nil)
	req.Header.Set("Authorization", bearerToken(t))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMarkConversationReadEndpoint(t *testing.T) {
	chat := &stubChatService{}
	s := testServer(t, chat)
	router := s.setupRouter()

	req := httptest.NewRequest(http.MethodPut, "/api/v1/conversations/alice_bob/read", nil)
	req.Header.Set("Authorization", bearerToken(t))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"alice"}, chat.readBy)
}

func TestSetTypingEndpoint(t *testing.T) {
	chat := &stubChatService{}
	s := testServer(t, chat)
	router := s.setupRouter()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/conversations/alice_bob/typing", strings.NewReader(`{"is_typing": true}`))
	req.Header.Set("Authorization", bearerToken(t))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Data map[string]bool `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Data["accepted"])
}
