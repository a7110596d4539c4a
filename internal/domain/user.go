package domain

import (
	"time"

	"github.com/google/uuid"
)

// Role distinguishes the two chat parties
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

// SenderType maps the role onto the message author field.
func (r Role) SenderType() SenderType {
	if r == RoleAdmin {
		return SenderAdmin
	}
	return SenderCustomer
}

// User represents an account in the storefront
type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	DisplayName  string    `json:"display_name"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

// Identity is the authenticated caller as seen by the chat subsystem
type Identity struct {
	ID          uuid.UUID `json:"id"`
	Role        Role      `json:"role"`
	DisplayName string    `json:"display_name"`
}

// Row encodes the user for the persistence gateway.
func (u *User) Row() map[string]any {
	return map[string]any{
		"id":            u.ID.String(),
		"email":         u.Email,
		"password_hash": u.PasswordHash,
		"display_name":  u.DisplayName,
		"role":          string(u.Role),
		"created_at":    u.CreatedAt,
	}
}

// UserFromRow maps a gateway row into a User.
func UserFromRow(row map[string]any) (*User, error) {
	id, err := rowUUID(row, "id")
	if err != nil {
		return nil, err
	}
	u := &User{
		ID:           id,
		Email:        rowString(row, "email"),
		PasswordHash: rowString(row, "password_hash"),
		DisplayName:  rowString(row, "display_name"),
		Role:         Role(rowString(row, "role")),
	}
	if t, ok := rowTime(row, "created_at"); ok {
		u.CreatedAt = t
	}
	return u, nil
}

// UserCreate is the registration payload
type UserCreate struct {
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=8"`
	DisplayName string `json:"display_name" validate:"required,min=2"`
}

// UserLogin is the login payload
type UserLogin struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// TokenPair holds issued tokens
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}
