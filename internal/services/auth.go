package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/siddhi-app/apiserver/internal/apierr"
	"github.com/siddhi-app/apiserver/internal/events"
	"github.com/siddhi-app/apiserver/internal/logging"
	"github.com/siddhi-app/apiserver/internal/mail"
	"github.com/siddhi-app/apiserver/internal/password"
	"github.com/siddhi-app/apiserver/internal/store"
	"github.com/siddhi-app/apiserver/internal/token"
	"github.com/siddhi-app/apiserver/types"
)

const (
	otpTTL        = 10 * time.Minute
	resetTokenTTL = 10 * time.Minute

	mailFailureMessage = "something went wrong sending mail, please try again later"
	// The forgot-password response never reveals whether the email exists.
	forgotPasswordMessage = "If mail is registered, reset link has been sent"
)

var otpSpace = big.NewInt(1_000_000)

// UserStore defines the credential-store operations the lifecycle needs.
type UserStore interface {
	GetByID(ctx context.Context, id int) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	GetByResetToken(ctx context.Context, resetToken string) (types.User, error)
	UsernameOrEmailTaken(ctx context.Context, username, email string) (bool, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	SetRefreshToken(ctx context.Context, id int, refreshToken string) error
	SetResetToken(ctx context.Context, id int, resetToken string, expiresAt time.Time) error
	ClearResetToken(ctx context.Context, id int) error
	UpdatePassword(ctx context.Context, id int, passwordHash string) error
}

// OtpStore defines the verification-code operations the lifecycle needs.
type OtpStore interface {
	Upsert(ctx context.Context, record types.OtpRecord) error
	Get(ctx context.Context, email string) (types.OtpRecord, error)
	Delete(ctx context.Context, email string) error
}

// TokenPair is a freshly issued access/refresh token pair.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// LoginResult is the successful login payload.
type LoginResult struct {
	User types.PublicUser `json:"user"`
	TokenPair
}

// RegisterInput carries the registration request fields.
type RegisterInput struct {
	Email    string
	Username string
	Password string
	Otp      string
}

// AuthService orchestrates the account credential and session lifecycle:
// OTP-gated registration, login, token refresh/rotation, logout, and the
// password-reset flows. All cross-request state lives in the injected
// stores; each mutation is a single atomic update against one record.
type AuthService struct {
	users  UserStore
	otps   OtpStore
	mailer mail.Mailer
	tokens *token.Issuer
	events *events.Publisher
	log    logging.Logger

	frontendBaseURL string
}

// NewAuthService constructs the lifecycle service with its dependencies.
func NewAuthService(
	users UserStore,
	otps OtpStore,
	mailer mail.Mailer,
	tokens *token.Issuer,
	publisher *events.Publisher,
	log logging.Logger,
	frontendBaseURL string,
) *AuthService {
	return &AuthService{
		users:           users,
		otps:            otps,
		mailer:          mailer,
		tokens:          tokens,
		events:          publisher,
		log:             log,
		frontendBaseURL: frontendBaseURL,
	}
}

// Tokens exposes the issuer for the auth guard and cookie lifetimes.
func (s *AuthService) Tokens() *token.Issuer {
	return s.tokens
}

// Users exposes the credential store for the auth guard.
func (s *AuthService) Users() UserStore {
	return s.users
}

// Login verifies credentials, rotates the session, and returns the
// public user projection with a fresh token pair. Unknown email and
// wrong password fail distinctly.
func (s *AuthService) Login(ctx context.Context, email, plaintext string) (*LoginResult, error) {
	email = normalize(email)
	if email == "" {
		return nil, apierr.BadRequest("email is required")
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apierr.NotFound("user not found")
		}
		return nil, apierr.Internal("failed to authenticate", err)
	}

	if !password.Verify(plaintext, user.PasswordHash) {
		return nil, apierr.Unauthorized("password is incorrect")
	}

	pair, err := s.rotateSession(ctx, user)
	if err != nil {
		return nil, err
	}

	return &LoginResult{User: user.Public(), TokenPair: pair}, nil
}

// Register creates an account gated on a live, exactly-matching OTP.
// The OTP record is consumed on success. A welcome-email failure is
// reported as an error even though the account already exists.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (types.PublicUser, error) {
	email := normalize(input.Email)
	username := normalize(input.Username)
	if email == "" || username == "" || strings.TrimSpace(input.Password) == "" || strings.TrimSpace(input.Otp) == "" {
		return types.PublicUser{}, apierr.BadRequest("All fields are required")
	}

	taken, err := s.users.UsernameOrEmailTaken(ctx, username, email)
	if err != nil {
		return types.PublicUser{}, apierr.Internal("failed to check user", err)
	}
	if taken {
		return types.PublicUser{}, apierr.Conflict("email or username already taken")
	}

	record, err := s.otps.Get(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.PublicUser{}, apierr.BadRequest("Invalid details or OTP expired")
		}
		return types.PublicUser{}, apierr.Internal("failed to verify otp", err)
	}
	if record.Expired(time.Now()) {
		return types.PublicUser{}, apierr.BadRequest("Invalid details or OTP expired")
	}
	if record.Otp != input.Otp {
		return types.PublicUser{}, apierr.BadRequest("Invalid OTP")
	}

	hashed, err := password.Hash(input.Password)
	if err != nil {
		return types.PublicUser{}, apierr.Internal("something went wrong while registering user", err)
	}

	user, err := s.users.Create(ctx, types.User{
		Username:     username,
		Email:        email,
		PasswordHash: hashed,
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return types.PublicUser{}, apierr.Conflict("email or username already taken")
		}
		return types.PublicUser{}, apierr.Internal("something went wrong while registering user", err)
	}

	if err := s.otps.Delete(ctx, email); err != nil {
		// The key TTL will evict it; registration already succeeded.
		s.log.Warn(ctx, "failed to consume otp record", "email", email, "err", err)
	}

	s.events.Publish(ctx, events.AccountEvent{Type: events.UserRegistered, UserID: user.ID, Email: user.Email})

	if err := s.mailer.Send(ctx, user.Email, "Welcome to Siddhi", mail.WelcomeEmail(user.Email, user.Username)); err != nil {
		s.log.Error(ctx, "failed to send welcome email", "email", user.Email, "err", err)
		return types.PublicUser{}, apierr.Internal(mailFailureMessage, err)
	}

	return user.Public(), nil
}

// RequestOtp generates a 6-digit code, upserts it with a 10-minute
// expiry (overwriting any earlier code for the email), and sends it.
// A send failure surfaces as an error while the code stays persisted;
// retrying issuance overwrites it.
func (s *AuthService) RequestOtp(ctx context.Context, username, email string) error {
	email = normalize(email)
	username = normalize(username)
	if email == "" || username == "" {
		return apierr.BadRequest("All details are required")
	}

	taken, err := s.users.UsernameOrEmailTaken(ctx, username, email)
	if err != nil {
		return apierr.Internal("failed to check user", err)
	}
	if taken {
		return apierr.Conflict("email or username already taken")
	}

	code, err := generateOtp()
	if err != nil {
		return apierr.Internal("failed to generate otp", err)
	}

	now := time.Now()
	record := types.OtpRecord{
		Email:     email,
		Otp:       code,
		ExpiresAt: now.Add(otpTTL),
		CreatedAt: now,
	}
	if err := s.otps.Upsert(ctx, record); err != nil {
		return apierr.Internal("failed to store otp", err)
	}

	if err := s.mailer.Send(ctx, email, "Account Verification OTP", mail.VerifyAccountEmail(email, code)); err != nil {
		s.log.Error(ctx, "failed to send account verification otp", "email", email, "err", err)
		return apierr.Internal(mailFailureMessage, err)
	}
	return nil
}

// Refresh validates a presented refresh token against both the refresh
// signing context and the stored token, then rotates the pair. A
// previously rotated token fails the stored-token comparison.
func (s *AuthService) Refresh(ctx context.Context, presented string) (*TokenPair, error) {
	if strings.TrimSpace(presented) == "" {
		return nil, apierr.Unauthorized("refreshToken missing")
	}

	userID, err := s.tokens.VerifyRefresh(presented)
	if err != nil {
		return nil, apierr.Unauthorized("Invalid refresh token")
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apierr.Unauthorized("Invalid refresh token")
		}
		return nil, apierr.Internal("failed to refresh token", err)
	}

	if user.RefreshToken != presented {
		return nil, apierr.Unauthorized("Refresh token is expired")
	}

	pair, err := s.rotateSession(ctx, user)
	if err != nil {
		return nil, err
	}
	return &pair, nil
}

// Logout unconditionally clears the stored refresh token. It is
// idempotent: logging out an already-logged-out user succeeds.
func (s *AuthService) Logout(ctx context.Context, userID int) error {
	if err := s.users.SetRefreshToken(ctx, userID, ""); err != nil && !errors.Is(err, store.ErrNotFound) {
		return apierr.Internal("failed to log out", err)
	}
	s.events.Publish(ctx, events.AccountEvent{Type: events.UserLoggedOut, UserID: userID})
	return nil
}

// ForgotPassword sets a high-entropy reset token with a 10-minute expiry
// and emails the reset link. An unknown email is not an error, so the
// response never signals whether an account exists. If the email cannot
// be sent the token fields are rolled back; a reset link must never be
// live unless it was actually delivered.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	email = normalize(email)
	if email == "" {
		return apierr.BadRequest("Email is required")
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return apierr.Internal("failed to process request", err)
	}

	resetToken, err := generateResetToken()
	if err != nil {
		return apierr.Internal("failed to generate reset token", err)
	}
	if err := s.users.SetResetToken(ctx, user.ID, resetToken, time.Now().Add(resetTokenTTL)); err != nil {
		return apierr.Internal("failed to store reset token", err)
	}

	resetURL := fmt.Sprintf("%s/auth/verify-reset-token/%s", s.frontendBaseURL, resetToken)
	if err := s.mailer.Send(ctx, user.Email, "Password Reset", mail.PasswordResetEmail(user.Email, user.Username, resetURL)); err != nil {
		s.log.Error(ctx, "failed to send reset password email", "email", user.Email, "err", err)
		if clearErr := s.users.ClearResetToken(ctx, user.ID); clearErr != nil {
			s.log.Error(ctx, "failed to roll back reset token", "email", user.Email, "err", clearErr)
		}
		return apierr.Internal(mailFailureMessage, err)
	}
	return nil
}

// ForgotPasswordMessage is the generic response body for the forgot
// password endpoint, identical whether or not the email is registered.
func (s *AuthService) ForgotPasswordMessage() string {
	return forgotPasswordMessage
}

// VerifyResetToken checks a reset token without consuming it. An expired
// token is rejected and cleared as a side effect.
func (s *AuthService) VerifyResetToken(ctx context.Context, resetToken string) error {
	if strings.TrimSpace(resetToken) == "" {
		return apierr.BadRequest("Token is required")
	}

	user, err := s.users.GetByResetToken(ctx, resetToken)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apierr.BadRequest("Invalid token")
		}
		return apierr.Internal("failed to verify token", err)
	}

	if resetTokenExpired(user, time.Now()) {
		if err := s.users.ClearResetToken(ctx, user.ID); err != nil {
			s.log.Warn(ctx, "failed to clear stale reset token", "user_id", user.ID, "err", err)
		}
		return apierr.BadRequest("Token expired")
	}
	return nil
}

// ResetPassword consumes a live reset token and sets the new password.
// The confirmation-email failure is surfaced as an error even though the
// password change already persisted.
func (s *AuthService) ResetPassword(ctx context.Context, resetToken, newPassword string) error {
	if strings.TrimSpace(resetToken) == "" || strings.TrimSpace(newPassword) == "" {
		return apierr.BadRequest("Token and newPassword are required")
	}

	user, err := s.users.GetByResetToken(ctx, resetToken)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apierr.BadRequest("Invalid token")
		}
		return apierr.Internal("failed to verify token", err)
	}
	if resetTokenExpired(user, time.Now()) {
		return apierr.BadRequest("Token expired")
	}

	hashed, err := password.Hash(newPassword)
	if err != nil {
		return apierr.Internal("failed to update password", err)
	}
	// Sets the hash and consumes the reset token in one atomic update.
	if err := s.users.UpdatePassword(ctx, user.ID, hashed); err != nil {
		return apierr.Internal("failed to update password", err)
	}

	s.events.Publish(ctx, events.AccountEvent{Type: events.PasswordChanged, UserID: user.ID, Email: user.Email})

	if err := s.mailer.Send(ctx, user.Email, "Password Update confirmation", mail.PasswordUpdatedEmail(user.Email, user.Username)); err != nil {
		s.log.Error(ctx, "failed to send password confirmation email", "email", user.Email, "err", err)
		return apierr.Internal(mailFailureMessage, err)
	}
	return nil
}

// rotateSession issues a fresh access/refresh pair and persists the new
// refresh token, invalidating whichever token was stored before. This is
// what enforces a single active session per user.
func (s *AuthService) rotateSession(ctx context.Context, user types.User) (TokenPair, error) {
	access, err := s.tokens.IssueAccess(user)
	if err != nil {
		return TokenPair{}, apierr.Internal("error generating refresh & access token", err)
	}
	refresh, err := s.tokens.IssueRefresh(user.ID)
	if err != nil {
		return TokenPair{}, apierr.Internal("error generating refresh & access token", err)
	}
	if err := s.users.SetRefreshToken(ctx, user.ID, refresh); err != nil {
		return TokenPair{}, apierr.Internal("error generating refresh & access token", err)
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func resetTokenExpired(user types.User, now time.Time) bool {
	return user.ResetPasswordExpiresAt == nil || now.After(*user.ResetPasswordExpiresAt)
}

func normalize(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func generateOtp() (string, error) {
	n, err := rand.Int(rand.Reader, otpSpace)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

func generateResetToken() (string, error) {
	var buf [32]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf[:]), nil
}
