package server

import (
	"fmt"
	"os"
	"regexp"
	"time"

	ratelimit "github.com/JGLTechnologies/gin-rate-limit"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var usernamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]{1,39}$`)

// registerValidations adds the custom binding validators used by the input
// structs. Usernames are public messaging identifiers, so the character set is
// restricted to what survives inside a conversation id.
func registerValidations() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
			return usernamePattern.MatchString(fl.Field().String())
		})
	}
}

func (s *Server) setupRouter() *gin.Engine {
	registerValidations()

	ginMode := os.Getenv("GIN_MODE")
	if ginMode == "test" {
		r := gin.New()
		s.defineRoutes(r)
		return r
	}

	r := gin.New()
	r.Use(gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
			param.ClientIP,
			param.TimeStamp.Format(time.RFC1123),
			param.Method,
			param.Path,
			param.Request.Proto,
			param.StatusCode,
			param.Latency,
			param.Request.UserAgent(),
			param.ErrorMessage,
		)
	}))
	r.Use(gin.Recovery())

	r.Use(cors.New(cors.Config{
		AllowAllOrigins:  true,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE"},
		AllowHeaders:     []string{"Origin", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	r.MaxMultipartMemory = 32 << 20
	s.defineRoutes(r)

	return r
}

func (s *Server) defineRoutes(router *gin.Engine) {
	resetStore := ratelimit.InMemoryStore(&ratelimit.InMemoryOptions{Rate: time.Minute, Limit: 5})
	limitPasswordReset := limitRate(resetStore)
	sendStore := ratelimit.InMemoryStore(&ratelimit.InMemoryOptions{Rate: time.Second, Limit: 10})
	limitSendMessage := limitRate(sendStore)

	apirouter := router.Group("/api/v1")
	apirouter.POST("/auth/signup", s.handleSignup())
	apirouter.POST("/auth/login", s.handleLogin())
	apirouter.GET("/google/login", s.HandleGoogleLogin())
	apirouter.GET("/auth/google/callback", s.HandleGoogleCallback())
	apirouter.POST("/password/forgot", limitPasswordReset, s.HandleForgotPassword())
	apirouter.POST("/password/reset/:token", s.ResetPassword())

	authorized := apirouter.Group("/")
	authorized.Use(s.Authorize())
	authorized.GET("/logout", s.handleLogout())
	authorized.GET("/me", s.handleShowProfile())
	authorized.PUT("/me", s.handleEditUserProfile())
	authorized.PUT("/me/avatar", s.handleUpdateUserImage())
	authorized.GET("/users", s.handleGetAllUsers())
	authorized.POST("/notifications/device-token", s.handleRegisterDeviceToken())
	authorized.GET("/notifications", s.handleListNotifications())

	authorized.POST("/conversations", s.handleCreateConversation())
	authorized.GET("/conversations", s.handleListConversations())
	authorized.GET("/conversations/:conversationID/messages", s.handleListMessages())
	authorized.POST("/conversations/:conversationID/messages", limitSendMessage, s.handleSendMessage())
	authorized.PUT("/conversations/:conversationID/read", s.handleMarkConversationRead())
	authorized.POST("/conversations/:conversationID/typing", s.handleSetTyping())
	authorized.GET("/conversations/:conversationID/typing", s.handleListTyping())
	authorized.GET("/ws/conversations", s.handleConversationListSocket())
	authorized.GET("/ws/conversations/:conversationID", s.handleConversationSocket())
}
