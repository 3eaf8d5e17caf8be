package types

import "time"

// OtpRecord is a short-lived verification code proving control of an
// email address before account creation. There is one logical record per
// email; issuing again overwrites the code and expiry.
type OtpRecord struct {
	Email     string    `json:"email"`
	Otp       string    `json:"otp"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// Expired reports whether the code is past its validity window.
func (r OtpRecord) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}
