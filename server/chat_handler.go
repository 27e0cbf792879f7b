package server

import (
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	errs "github.com/stellamgmt/stella/errors"
	"github.com/stellamgmt/stella/models"
	"github.com/stellamgmt/stella/server/response"
)

type createConversationInput struct {
	UserID string                   `json:"user_id" binding:"required"`
	Meta   *models.ConversationMeta `json:"meta"`
}

func (s *Server) handleCreateConversation() gin.HandlerFunc {
	return func(c *gin.Context) {
		username := c.GetString("username")

		var input createConversationInput
		if err := c.ShouldBindJSON(&input); err != nil {
			response.JSON(c, "", http.StatusBadRequest, nil, err)
			return
		}

		id, err := s.ChatService.CreateConversationIfNotExists(c.Request.Context(), username, input.UserID, input.Meta)
		if err != nil {
			respondServiceError(c, err)
			return
		}
		response.JSON(c, "conversation ready", http.StatusOK, gin.H{"conversation_id": id}, nil)
	}
}

func (s *Server) handleListConversations() gin.HandlerFunc {
	return func(c *gin.Context) {
		username := c.GetString("username")
		summaries, err := s.ChatService.ConversationsForUser(c.Request.Context(), username)
		if err != nil {
			respondServiceError(c, err)
			return
		}
		response.JSON(c, "", http.StatusOK, summaries, nil)
	}
}

func (s *Server) handleListMessages() gin.HandlerFunc {
	return func(c *gin.Context) {
		conversationID := c.Param("conversationID")
		username := c.GetString("username")

		if !s.requireParticipant(c, conversationID, username) {
			return
		}
		msgs, err := s.ChatService.Messages(c.Request.Context(), conversationID)
		if err != nil {
			respondServiceError(c, err)
			return
		}
		response.JSON(c, "", http.StatusOK, msgs, nil)
	}
}

func (s *Server) handleSendMessage() gin.HandlerFunc {
	return func(c *gin.Context) {
		conversationID := c.Param("conversationID")
		username := c.GetString("username")
		user := currentUser(c)

		draft := models.MessageDraft{
			SenderID:      username,
			RecipientID:   c.PostForm("recipient_id"),
			RecipientName: c.PostForm("recipient_name"),
			RecipientRole: c.PostForm("recipient_role"),
			Content:       c.PostForm("content"),
		}
		if user != nil {
			draft.SenderName = user.Fullname
			draft.SenderRole = user.Role.Name
		}

		var files []*multipart.FileHeader
		if form, err := c.MultipartForm(); err == nil && form != nil {
			files = form.File["files"]
		}

		id, err := s.ChatService.SendMessage(c.Request.Context(), conversationID, draft, files)
		if err != nil {
			respondServiceError(c, err)
			return
		}
		response.JSON(c, "message sent", http.StatusCreated, gin.H{"message_id": id}, nil)
	}
}

func (s *Server) handleMarkConversationRead() gin.HandlerFunc {
	return func(c *gin.Context) {
		conversationID := c.Param("conversationID")
		username := c.GetString("username")

		if err := s.ChatService.MarkConversationAsRead(c.Request.Context(), conversationID, username); err != nil {
			respondServiceError(c, err)
			return
		}
		response.JSON(c, "conversation marked read", http.StatusOK, nil, nil)
	}
}

type typingInput struct {
	IsTyping bool `json:"is_typing"`
}

func (s *Server) handleSetTyping() gin.HandlerFunc {
	return func(c *gin.Context) {
		conversationID := c.Param("conversationID")
		username := c.GetString("username")

		var input typingInput
		if err := c.ShouldBindJSON(&input); err != nil {
			response.JSON(c, "", http.StatusBadRequest, nil, err)
			return
		}

		// Typing is best-effort; a store hiccup should not bubble to the UI.
		if err := s.ChatService.SetTyping(c.Request.Context(), conversationID, username, input.IsTyping); err != nil {
			response.JSON(c, "", http.StatusOK, gin.H{"accepted": false}, nil)
			return
		}
		response.JSON(c, "", http.StatusOK, gin.H{"accepted": true}, nil)
	}
}

func (s *Server) handleListTyping() gin.HandlerFunc {
	return func(c *gin.Context) {
		conversationID := c.Param("conversationID")
		username := c.GetString("username")

		typing, err := s.ChatService.ListTyping(c.Request.Context(), conversationID, username)
		if err != nil {
			respondServiceError(c, err)
			return
		}
		response.JSON(c, "", http.StatusOK, typing, nil)
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleConversationSocket streams full message-list snapshots for one
// conversation over a websocket until the client disconnects.
func (s *Server) handleConversationSocket() gin.HandlerFunc {
	return func(c *gin.Context) {
		conversationID := c.Param("conversationID")
		username := c.GetString("username")

		if !s.requireParticipant(c, conversationID, username) {
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		ch, cancel := s.ChatService.SubscribeToConversation(conversationID)
		defer cancel()

		if msgs, err := s.ChatService.Messages(c.Request.Context(), conversationID); err == nil {
			if err := conn.WriteJSON(msgs); err != nil {
				return
			}
		}

		streamToSocket(conn, ch)
	}
}

// handleConversationListSocket streams the caller's conversation summaries.
func (s *Server) handleConversationListSocket() gin.HandlerFunc {
	return func(c *gin.Context) {
		username := c.GetString("username")

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		ch, cancel := s.ChatService.SubscribeToConversationList(username)
		defer cancel()

		if summaries, err := s.ChatService.ConversationsForUser(c.Request.Context(), username); err == nil {
			if err := conn.WriteJSON(summaries); err != nil {
				return
			}
		}

		streamToSocket(conn, ch)
	}
}

// streamToSocket forwards hub snapshots to the websocket, returning when
// either side goes away.
func streamToSocket(conn *websocket.Conn, ch <-chan interface{}) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case payload, ok := <-ch:
			if !ok {
				return
			}
			if err := conn.WriteJSON(payload); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func (s *Server) requireParticipant(c *gin.Context, conversationID, username string) bool {
	conv, err := s.ChatService.Conversation(c.Request.Context(), conversationID)
	if err != nil {
		respondServiceError(c, err)
		return false
	}
	for _, p := range conv.Participants {
		if p.UserID == username {
			return true
		}
	}
	respondAndAbort(c, "not a participant of this conversation", http.StatusForbidden, nil, errs.ErrForbidden)
	return false
}

func currentUser(c *gin.Context) *models.User {
	val, exists := c.Get("user")
	if !exists {
		return nil
	}
	user, ok := val.(*models.User)
	if !ok {
		return nil
	}
	return user
}

func respondServiceError(c *gin.Context, err error) {
	if apiErr, ok := err.(*errs.Error); ok {
		response.JSON(c, "", apiErr.Status, nil, apiErr)
		return
	}
	response.JSON(c, "", http.StatusInternalServerError, nil, errs.ErrInternalServerError)
}
