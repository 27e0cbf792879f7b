package models

import (
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// User represents an account: agency staff, a model, or a client. The Username
// doubles as the public identifier used by the messaging subsystem.
type User struct {
	Model
	Fullname       string         `json:"fullname" binding:"required,min=2"`
	Username       string         `json:"username" gorm:"unique;not null" binding:"required,min=2" conform:"trim,lower"`
	Email          string         `json:"email" gorm:"unique;not null" binding:"required,email" conform:"trim,lower"`
	Telephone      string         `json:"telephone" gorm:"default:null"`
	Password       string         `json:"password,omitempty" gorm:"-"`
	HashedPassword string         `json:"-"`
	IsSocial       bool           `json:"-"`
	IsBlocked      bool           `json:"is_blocked" gorm:"default:false"`
	AccessToken    string         `json:"-" gorm:"-"`
	ThumbNailURL   string         `json:"thumbnail_url,omitempty"`
	DeviceToken    string         `json:"-"`
	ResetToken     string         `json:"-"`
	Online         bool           `json:"online"`
	RoleID         uuid.UUID      `gorm:"type:uuid" json:"role_id"`
	Role           Role           `gorm:"foreignKey:RoleID" json:"role"`
	Notifications  []Notification `gorm:"foreignKey:UserID" json:"-"`
}

// VerifyPassword checks a plaintext password against the stored hash.
func (u *User) VerifyPassword(password string) error {
	return bcrypt.CompareHashAndPassword([]byte(u.HashedPassword), []byte(password))
}

// Blacklist stores revoked access tokens until they expire.
type Blacklist struct {
	Model
	Email string `json:"email"`
	Token string `json:"token" gorm:"size:1024"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email" conform:"trim,lower"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	UserResponse
	AccessToken string `json:"access_token"`
}

type UserResponse struct {
	ID           uint   `json:"id"`
	Fullname     string `json:"fullname"`
	Username     string `json:"username"`
	Email        string `json:"email"`
	Telephone    string `json:"telephone"`
	RoleName     string `json:"role_name"`
	ThumbNailURL string `json:"thumbnail_url,omitempty"`
	Online       bool   `json:"online"`
}

type GoogleLoginRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	IsSocial bool   `json:"is_social"`
}

type EditProfileRequest struct {
	Fullname  string `json:"fullname" conform:"trim"`
	Username  string `json:"username" conform:"trim,lower"`
	Telephone string `json:"telephone" conform:"trim"`
}

type ForgotPassword struct {
	Email string `json:"email" binding:"required,email" conform:"trim,lower"`
}

type ResetPassword struct {
	Password        string `json:"password" binding:"required"`
	ConfirmPassword string `json:"confirm_password" binding:"required"`
}
