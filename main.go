package main

import (
	"context"
	"log"

	firebase "firebase.google.com/go"
	"firebase.google.com/go/messaging"
	"github.com/stellamgmt/stella/config"
	"github.com/stellamgmt/stella/db"
	"github.com/stellamgmt/stella/mailingservices"
	"github.com/stellamgmt/stella/realtime"
	"github.com/stellamgmt/stella/server"
	"github.com/stellamgmt/stella/services"
	"google.golang.org/api/option"
)

// initFirebase returns the FCM client, or nil when the credentials file is
// absent. Push delivery is optional in development.
func initFirebase(conf *config.Config) *messaging.Client {
	opt := option.WithCredentialsFile(conf.FirebaseCredentialsFile)
	app, err := firebase.NewApp(context.Background(), nil, opt)
	if err != nil {
		log.Printf("firebase disabled: %v", err)
		return nil
	}
	client, err := app.Messaging(context.Background())
	if err != nil {
		log.Printf("firebase messaging disabled: %v", err)
		return nil
	}
	return client
}

func main() {
	conf, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	gormDB := db.GetDB(conf)

	mailgun := &mailingservices.Mailgun{}
	mailgun.Init(conf)

	var fcmSender services.FCMSender
	if client := initFirebase(conf); client != nil {
		fcmSender = client
	}
	redisClient := db.NewRedisClient(conf)

	authRepo := db.NewAuthRepo(gormDB)
	conversationRepo := db.NewConversationRepo(gormDB)
	messageRepo := db.NewMessageRepo(gormDB)
	notificationRepo := db.NewNotificationRepo(gormDB)
	presenceRepo := db.NewPresenceRepo(redisClient)

	uploader, err := services.NewAttachmentService(conf)
	if err != nil {
		log.Printf("attachment uploads disabled: %v", err)
	}

	authService := services.NewAuthService(authRepo, mailgun, conf)
	notificationService := services.NewNotificationService(fcmSender, authRepo, notificationRepo)
	hub := realtime.NewHub()
	chatService := services.NewChatService(conversationRepo, messageRepo, presenceRepo, uploader, notificationService, hub)

	s := &server.Server{
		Config:              conf,
		AuthRepository:      authRepo,
		AuthService:         authService,
		ChatService:         chatService,
		NotificationService: notificationService,
		Hub:                 hub,
	}
	s.Start()
}
