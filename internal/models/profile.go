package models

import (
	"time"
)

// Role is the closed set of capability tags supplied by the identity
// collaborator. New roles must be handled explicitly wherever a Role
// is switched on.
type Role string

const (
	RolePassenger Role = "passenger"
	RoleDriver    Role = "driver"
	RoleAdmin     Role = "admin"
)

func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RolePassenger, RoleDriver, RoleAdmin:
		return Role(s), true
	default:
		return "", false
	}
}

// Actor is the authenticated caller of an operation.
type Actor struct {
	ID   string
	Role Role
}

type Profile struct {
	ID          string    `db:"id" json:"id"`
	DisplayName string    `db:"display_name" json:"display_name"`
	Phone       *string   `db:"phone" json:"phone,omitempty"`
	Role        Role      `db:"role" json:"role"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

type CreateProfileRequest struct {
	DisplayName string `json:"display_name" validate:"required,min=2,max=100"`
	Phone       string `json:"phone,omitempty" validate:"omitempty,min=7,max=15"`
	Role        string `json:"role" validate:"required,oneof=passenger driver admin"`
}

type ChangeRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=passenger driver admin"`
}

type ProfileResponse struct {
	ID          string  `json:"id"`
	DisplayName string  `json:"display_name"`
	Phone       *string `json:"phone,omitempty"`
	Role        Role    `json:"role"`
}

func (p *Profile) ToResponse() *ProfileResponse {
	return &ProfileResponse{
		ID:          p.ID,
		DisplayName: p.DisplayName,
		Phone:       p.Phone,
		Role:        p.Role,
	}
}
