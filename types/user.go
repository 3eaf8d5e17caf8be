package types

import "time"

// User represents an account in the system.
// It contains identity, credential, and session metadata.
type User struct {
	// ID is the unique identifier of the user.
	ID int `json:"id" db:"id"`

	// Username is the unique login name chosen by the user.
	// Stored lowercased and trimmed.
	Username string `json:"username" db:"username"`

	// Email is the user's email address. Stored lowercased and trimmed.
	Email string `json:"email" db:"email"`

	// PasswordHash stores the hashed representation of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// RefreshToken is the most recently issued refresh token. Any earlier
	// token is invalid; there is a single active session per user.
	// Never exposed in API responses.
	RefreshToken string `json:"-" db:"refresh_token"`

	// ResetPasswordToken is the live password-reset token, if any.
	ResetPasswordToken string `json:"-" db:"reset_password_token"`

	// ResetPasswordExpiresAt bounds the validity of ResetPasswordToken.
	ResetPasswordExpiresAt *time.Time `json:"-" db:"reset_password_expires_at"`

	// AvatarURL points at the user's uploaded profile photo, if any.
	AvatarURL string `json:"avatar_url,omitempty" db:"avatar_url"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the user account.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// PublicUser is the projection of a User returned to clients. Sensitive
// fields (password hash, refresh token, internal id) are stripped.
type PublicUser struct {
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	AvatarURL string    `json:"avatar_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Public returns the client-facing projection of the user.
func (u User) Public() PublicUser {
	return PublicUser{
		Username:  u.Username,
		Email:     u.Email,
		AvatarURL: u.AvatarURL,
		CreatedAt: u.CreatedAt,
	}
}
