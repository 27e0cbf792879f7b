package services

import (
	"context"
	"mime/multipart"
	"net/textproto"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stellamgmt/stella/db"
	"github.com/stellamgmt/stella/models"
	"github.com/stellamgmt/stella/realtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// In-memory repositories with the same semantics as the postgres-backed ones,
// safe for concurrent use.

type fakeConversationRepo struct {
	mu            sync.Mutex
	conversations map[string]*models.Conversation
	recordErr     error
}

func newFakeConversationRepo() *fakeConversationRepo {
	return &fakeConversationRepo{conversations: make(map[string]*models.Conversation)}
}

func (r *fakeConversationRepo) CreateIfNotExists(conv *models.Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conversations[conv.ID]; ok {
		return nil
	}
	cp := *conv
	cp.Participants = append([]models.ConversationParticipant(nil), conv.Participants...)
	for i := range cp.Participants {
		cp.Participants[i].ConversationID = conv.ID
	}
	cp.CreatedAt = time.Now().UTC()
	cp.UpdatedAt = cp.CreatedAt
	r.conversations[conv.ID] = &cp
	return nil
}

func (r *fakeConversationRepo) GetByID(id string) (*models.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.conversations[id]
	if !ok {
		return nil, db.ErrConversationNotFound
	}
	cp := *conv
	cp.Participants = append([]models.ConversationParticipant(nil), conv.Participants...)
	return &cp, nil
}

func (r *fakeConversationRepo) ListForUser(userID string) ([]models.ConversationSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var summaries []models.ConversationSummary
	for _, conv := range r.conversations {
		member := false
		s := models.ConversationSummary{
			ID:           conv.ID,
			LastMessage:  conv.LastMessage,
			LastKind:     conv.LastKind,
			LastSenderID: conv.LastSenderID,
			UpdatedAt:    conv.UpdatedAt,
		}
		for _, p := range conv.Participants {
			s.Participants = append(s.Participants, p.UserID)
			if p.UserID == userID {
				member = true
				s.UnreadCount = p.UnreadCount
			}
		}
		if member {
			summaries = append(summaries, s)
		}
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].UpdatedAt.After(summaries[j].UpdatedAt) })
	return summaries, nil
}

func (r *fakeConversationRepo) RecordMessage(conversationID, senderID, preview, kind string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.recordErr != nil {
		return r.recordErr
	}
	conv, ok := r.conversations[conversationID]
	if !ok {
		return db.ErrConversationNotFound
	}
	conv.LastMessage = preview
	conv.LastKind = kind
	conv.LastSenderID = senderID
	conv.UpdatedAt = at
	for i := range conv.Participants {
		if conv.Participants[i].UserID != senderID {
			conv.Participants[i].UnreadCount++
		}
	}
	return nil
}

func (r *fakeConversationRepo) MarkRead(conversationID, readerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.conversations[conversationID]
	if !ok {
		return db.ErrConversationNotFound
	}
	for i := range conv.Participants {
		if conv.Participants[i].UserID == readerID {
			conv.Participants[i].UnreadCount = 0
		}
	}
	return nil
}

func (r *fakeConversationRepo) unread(conversationID, userID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.conversations[conversationID].Participants {
		if p.UserID == userID {
			return p.UnreadCount
		}
	}
	return -1
}

type fakeMessageRepo struct {
	mu       sync.Mutex
	messages map[string][]models.Message
}

func newFakeMessageRepo() *fakeMessageRepo {
	return &fakeMessageRepo{messages: make(map[string][]models.Message)}
}

func (r *fakeMessageRepo) SaveMessage(msg *models.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages[msg.ConversationID] = append(r.messages[msg.ConversationID], *msg)
	return nil
}

func (r *fakeMessageRepo) ListByConversation(conversationID string) ([]models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msgs := append([]models.Message(nil), r.messages[conversationID]...)
	sort.Slice(msgs, func(i, j int) bool {
		if msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].ID < msgs[j].ID
		}
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})
	return msgs, nil
}

type fakePresenceRepo struct {
	mu  sync.Mutex
	ttl time.Duration
	set map[string]time.Time
}

func newFakePresenceRepo(ttl time.Duration) *fakePresenceRepo {
	return &fakePresenceRepo{ttl: ttl, set: make(map[string]time.Time)}
}

func (r *fakePresenceRepo) SetTyping(ctx context.Context, conversationID, userID string, isTyping bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := conversationID + "/" + userID
	if isTyping {
		r.set[key] = time.Now().Add(r.ttl)
	} else {
		delete(r.set, key)
	}
	return nil
}

func (r *fakePresenceRepo) IsTyping(ctx context.Context, conversationID, userID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	deadline, ok := r.set[conversationID+"/"+userID]
	return ok && time.Now().Before(deadline), nil
}

type fakeUploader struct {
	err     error
	uploads int
}

func (u *fakeUploader) Upload(ctx context.Context, conversationID string, file *multipart.FileHeader) (*models.Attachment, error) {
	if u.err != nil {
		return nil, u.err
	}
	u.uploads++
	return &models.Attachment{
		Name:        file.Filename,
		URL:         "https://bucket.s3.eu-west-2.amazonaws.com/conversations/" + conversationID + "/" + file.Filename,
		ContentType: file.Header.Get("Content-Type"),
		Size:        file.Size,
	}, nil
}

type fakePush struct {
	mu    sync.Mutex
	calls []string
}

func (p *fakePush) SendNewMessagePush(ctx context.Context, recipientID, conversationID, preview string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, recipientID+":"+preview)
}

type chatFixture struct {
	svc          ChatService
	convRepo     *fakeConversationRepo
	msgRepo      *fakeMessageRepo
	presenceRepo *fakePresenceRepo
	uploader     *fakeUploader
	push         *fakePush
	hub          *realtime.Hub
}

func newChatFixture(t *testing.T) *chatFixture {
	t.Helper()
	f := &chatFixture{
		convRepo:     newFakeConversationRepo(),
		msgRepo:      newFakeMessageRepo(),
		presenceRepo: newFakePresenceRepo(50 * time.Millisecond),
		uploader:     &fakeUploader{},
		push:         &fakePush{},
		hub:          realtime.NewHub(),
	}
	f.svc = NewChatService(f.convRepo, f.msgRepo, f.presenceRepo, f.uploader, f.push, f.hub)
	return f
}

func fileHeader(name, contentType string, size int64) *multipart.FileHeader {
	return &multipart.FileHeader{
		Filename: name,
		Size:     size,
		Header:   textproto.MIMEHeader{"Content-Type": []string{contentType}},
	}
}

func TestCreateConversationIfNotExists(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	id, err := f.svc.CreateConversationIfNotExists(ctx, "bob", "alice", nil)
	require.NoError(t, err)
	assert.Equal(t, "alice_bob", id)

	// Creating from the other side lands on the same conversation.
	id2, err := f.svc.CreateConversationIfNotExists(ctx, "alice", "bob", nil)
	require.NoError(t, err)
	assert.Equal(t, id, id2)

	conv, err := f.svc.Conversation(ctx, id)
	require.NoError(t, err)
	assert.Len(t, conv.Participants, 2)
}

func TestCreateConversationValidation(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateConversationIfNotExists(ctx, "alice", "", nil)
	assert.Error(t, err)

	_, err = f.svc.CreateConversationIfNotExists(ctx, "alice", "alice", nil)
	assert.Error(t, err)
}

func TestCreateConversationConcurrent(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	ids := make([]string, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, b := "alice", "bob"
			if i%2 == 1 {
				a, b = b, a
			}
			id, err := f.svc.CreateConversationIfNotExists(ctx, a, b, nil)
			assert.NoError(t, err)
			ids[i] = id
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, "alice_bob", id)
	}
	conv, err := f.svc.Conversation(ctx, "alice_bob")
	require.NoError(t, err)
	assert.Len(t, conv.Participants, 2)
}

func TestSendMessageUpdatesSummaryAndUnread(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	id, err := f.svc.CreateConversationIfNotExists(ctx, "alice", "bob", nil)
	require.NoError(t, err)

	_, err = f.svc.SendMessage(ctx, id, models.MessageDraft{
		SenderID:    "bob",
		RecipientID: "alice",
		Content:     "hi",
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, f.convRepo.unread(id, "alice"))
	assert.Equal(t, 0, f.convRepo.unread(id, "bob"))

	summaries, err := f.svc.ConversationsForUser(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, "hi", summaries[0].LastMessage)
	assert.Equal(t, "bob", summaries[0].LastSenderID)
	assert.Equal(t, models.MessageKindText, summaries[0].LastKind)
	assert.Equal(t, 1, summaries[0].UnreadCount)

	f.push.mu.Lock()
	defer f.push.mu.Unlock()
	require.Len(t, f.push.calls, 1)
	assert.Equal(t, "alice:hi", f.push.calls[0])
}

func TestSendMessageValidation(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	id, err := f.svc.CreateConversationIfNotExists(ctx, "alice", "bob", nil)
	require.NoError(t, err)

	_, err = f.svc.SendMessage(ctx, id, models.MessageDraft{SenderID: "bob", RecipientID: "alice"}, nil)
	assert.Error(t, err, "empty message must be rejected")

	_, err = f.svc.SendMessage(ctx, id, models.MessageDraft{SenderID: "mallory", RecipientID: "alice", Content: "hi"}, nil)
	assert.Error(t, err, "non-participant sender must be rejected")

	_, err = f.svc.SendMessage(ctx, "nope", models.MessageDraft{SenderID: "bob", RecipientID: "alice", Content: "hi"}, nil)
	assert.Error(t, err, "unknown conversation must be rejected")
}

func TestSendMessageOrdering(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	id, err := f.svc.CreateConversationIfNotExists(ctx, "alice", "bob", nil)
	require.NoError(t, err)

	for _, content := range []string{"one", "two", "three"} {
		_, err := f.svc.SendMessage(ctx, id, models.MessageDraft{
			SenderID:    "alice",
			RecipientID: "bob",
			Content:     content,
		}, nil)
		require.NoError(t, err)
	}

	msgs, err := f.svc.Messages(ctx, id)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "one", msgs[0].Content)
	assert.Equal(t, "two", msgs[1].Content)
	assert.Equal(t, "three", msgs[2].Content)
}

func TestSendMessageConcurrentUnreadCount(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	id, err := f.svc.CreateConversationIfNotExists(ctx, "alice", "bob", nil)
	require.NoError(t, err)

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.SendMessage(ctx, id, models.MessageDraft{
				SenderID:    "bob",
				RecipientID: "alice",
				Content:     "ping",
			}, nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, n, f.convRepo.unread(id, "alice"))
	msgs, err := f.svc.Messages(ctx, id)
	require.NoError(t, err)
	assert.Len(t, msgs, n)
}

func TestSendMessageWithAttachments(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	id, err := f.svc.CreateConversationIfNotExists(ctx, "alice", "bob", nil)
	require.NoError(t, err)

	_, err = f.svc.SendMessage(ctx, id, models.MessageDraft{
		SenderID:    "alice",
		RecipientID: "bob",
	}, []*multipart.FileHeader{fileHeader("portfolio.png", "image/png", 2048)})
	require.NoError(t, err)

	msgs, err := f.svc.Messages(ctx, id)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, models.MessageKindImage, msgs[0].Kind)
	require.Len(t, msgs[0].Attachments, 1)
	assert.Equal(t, "portfolio.png", msgs[0].Attachments[0].Name)

	summaries, err := f.svc.ConversationsForUser(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, "portfolio.png", summaries[0].LastMessage)
	assert.Equal(t, models.MessageKindImage, summaries[0].LastKind)
}

func TestSendMessageUploadFailureAbortsSend(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	id, err := f.svc.CreateConversationIfNotExists(ctx, "alice", "bob", nil)
	require.NoError(t, err)

	f.uploader.err = errors.New("s3 unavailable")
	_, err = f.svc.SendMessage(ctx, id, models.MessageDraft{
		SenderID:    "alice",
		RecipientID: "bob",
		Content:     "with file",
	}, []*multipart.FileHeader{fileHeader("doc.pdf", "application/pdf", 100)})
	require.Error(t, err)

	msgs, err := f.svc.Messages(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, msgs, "a failed upload must not append a message")
	assert.Equal(t, 0, f.convRepo.unread(id, "bob"))
}

func TestSendMessageSurvivesSummaryFailure(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	id, err := f.svc.CreateConversationIfNotExists(ctx, "alice", "bob", nil)
	require.NoError(t, err)

	f.convRepo.recordErr = errors.New("deadlock detected")
	msgID, err := f.svc.SendMessage(ctx, id, models.MessageDraft{
		SenderID:    "alice",
		RecipientID: "bob",
		Content:     "still delivered",
	}, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, msgID)

	msgs, err := f.svc.Messages(ctx, id)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
}

func TestMarkConversationAsRead(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	id, err := f.svc.CreateConversationIfNotExists(ctx, "alice", "bob", nil)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := f.svc.SendMessage(ctx, id, models.MessageDraft{
			SenderID:    "bob",
			RecipientID: "alice",
			Content:     "hey",
		}, nil)
		require.NoError(t, err)
	}
	require.Equal(t, 3, f.convRepo.unread(id, "alice"))

	require.NoError(t, f.svc.MarkConversationAsRead(ctx, id, "alice"))
	assert.Equal(t, 0, f.convRepo.unread(id, "alice"))
}

func TestTypingExpires(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	id, err := f.svc.CreateConversationIfNotExists(ctx, "alice", "bob", nil)
	require.NoError(t, err)

	require.NoError(t, f.svc.SetTyping(ctx, id, "bob", true))

	typing, err := f.svc.ListTyping(ctx, id, "alice")
	require.NoError(t, err)
	require.Len(t, typing, 1)
	assert.Equal(t, "bob", typing[0].UserID)

	// The marker is scoped to the conversation and never reported back to the
	// typist themselves.
	typing, err = f.svc.ListTyping(ctx, id, "bob")
	require.NoError(t, err)
	assert.Empty(t, typing)

	time.Sleep(70 * time.Millisecond)
	typing, err = f.svc.ListTyping(ctx, id, "alice")
	require.NoError(t, err)
	assert.Empty(t, typing, "stale typing markers must expire")
}

func TestTypingClearedExplicitly(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	id, err := f.svc.CreateConversationIfNotExists(ctx, "alice", "bob", nil)
	require.NoError(t, err)

	require.NoError(t, f.svc.SetTyping(ctx, id, "bob", true))
	require.NoError(t, f.svc.SetTyping(ctx, id, "bob", false))

	typing, err := f.svc.ListTyping(ctx, id, "alice")
	require.NoError(t, err)
	assert.Empty(t, typing)
}

func TestSubscribersReceiveSnapshots(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	id, err := f.svc.CreateConversationIfNotExists(ctx, "alice", "bob", nil)
	require.NoError(t, err)

	msgCh, cancelMsgs := f.svc.SubscribeToConversation(id)
	defer cancelMsgs()
	listCh, cancelList := f.svc.SubscribeToConversationList("alice")
	defer cancelList()

	_, err = f.svc.SendMessage(ctx, id, models.MessageDraft{
		SenderID:    "bob",
		RecipientID: "alice",
		Content:     "hi",
	}, nil)
	require.NoError(t, err)

	select {
	case payload := <-msgCh:
		msgs, ok := payload.([]models.Message)
		require.True(t, ok)
		require.Len(t, msgs, 1)
		assert.Equal(t, "hi", msgs[0].Content)
	case <-time.After(time.Second):
		t.Fatal("no message snapshot received")
	}

	select {
	case payload := <-listCh:
		summaries, ok := payload.([]models.ConversationSummary)
		require.True(t, ok)
		require.Len(t, summaries, 1)
		assert.Equal(t, "hi", summaries[0].LastMessage)
		assert.Equal(t, 1, summaries[0].UnreadCount)
	case <-time.After(time.Second):
		t.Fatal("no conversation list snapshot received")
	}
}
