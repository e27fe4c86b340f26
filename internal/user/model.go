package user

import (
	"database/sql"
	"time"
)

// User rows may come from the legacy CRM import with no email and no
// password, so both are nullable and JSON hides the hash entirely.
type User struct {
	ID           int            `db:"id" json:"id"`
	Name         string         `db:"name" json:"name"`
	Email        sql.NullString `db:"email" json:"-"`
	PasswordHash sql.NullString `db:"password_hash" json:"-"`
	Phone        string         `db:"phone" json:"phone"`
	Role         string         `db:"role" json:"role"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
}

func (u *User) EmailString() string {
	if u.Email.Valid {
		return u.Email.String
	}
	return ""
}

type RegisterRequest struct {
	Name     string `json:"name" binding:"required,min=2,max=255"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
	Phone    string `json:"phone"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

type LoginResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	User         User   `json:"user"`
}
