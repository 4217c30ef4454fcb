package models

import "time"

// UserRole represents the role of a user
type UserRole string

const (
	RoleUser    UserRole = "user"
	RoleManager UserRole = "manager"
	RoleAdmin   UserRole = "admin"
)

// User represents an end user the agent acts on behalf of
type User struct {
	ID           int64     `json:"id" db:"id"`
	Username     string    `json:"username" db:"username"`
	Email        string    `json:"email" db:"email"`
	Tier         string    `json:"tier" db:"tier"`
	Role         UserRole  `json:"role" db:"role"`
	HasEscalated bool      `json:"has_escalated" db:"has_escalated"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the User model
func (User) TableName() string {
	return "users"
}

// NewUser creates a new User instance
func NewUser(username, email string, role UserRole) *User {
	now := time.Now().UTC()
	return &User{
		Username:  username,
		Email:     email,
		Tier:      "standard",
		Role:      role,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// CanManageRules returns true if the user can author gating rules
func (u *User) CanManageRules() bool {
	return u.Role == RoleAdmin || u.Role == RoleManager
}

// GatingView is the projection of a user handed to the decision oracle.
// Credentials and escalation state are never part of it.
func (u *User) GatingView() map[string]interface{} {
	return map[string]interface{}{
		"id":       u.ID,
		"username": u.Username,
		"email":    u.Email,
		"tier":     u.Tier,
	}
}
