package models

import "github.com/google/uuid"

// Role classifies an account within the agency.
type Role struct {
	ID   uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	Name string    `json:"name"`
}

const (
	RoleModel  = "Model"
	RoleClient = "Client"
	RoleStaff  = "Staff"
	RoleAdmin  = "Admin"
)
