// Package token signs and verifies the access and refresh JWTs. The two
// token kinds use independent secrets and lifetimes so compromise of one
// does not compromise the other.
package token

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/siddhi-app/apiserver/types"
)

var (
	// ErrExpired marks a well-formed token whose lifetime has passed.
	// The auth guard maps it to a distinct status so clients can refresh.
	ErrExpired = errors.New("token expired")

	// ErrInvalid marks any other verification failure.
	ErrInvalid = errors.New("token invalid")
)

// AccessClaims are the claims carried by an access token. They are
// minimal identity data; no password material is ever included.
type AccessClaims struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies tokens for both contexts.
type Issuer struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

// NewIssuer constructs an Issuer from the two secrets and lifetimes.
func NewIssuer(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *Issuer {
	return &Issuer{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
	}
}

// RefreshTTL reports the configured refresh-token lifetime. Used to size
// the refresh cookie.
func (i *Issuer) RefreshTTL() time.Duration {
	return i.refreshTTL
}

// AccessTTL reports the configured access-token lifetime.
func (i *Issuer) AccessTTL() time.Duration {
	return i.accessTTL
}

// IssueAccess signs an access token for the user.
func (i *Issuer) IssueAccess(user types.User) (string, error) {
	now := time.Now()
	claims := AccessClaims{
		Username: user.Username,
		Email:    user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.Itoa(user.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.accessTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.accessSecret)
}

// IssueRefresh signs a refresh token carrying only the user id. The jti
// makes every issued token distinct, so rotation always invalidates the
// previous one even within the same second.
func (i *Issuer) IssueRefresh(userID int) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   strconv.Itoa(userID),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(i.refreshTTL)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.refreshSecret)
}

// VerifyAccess validates an access token and returns its claims.
func (i *Issuer) VerifyAccess(tokenString string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := i.parse(tokenString, claims, i.accessSecret); err != nil {
		return nil, err
	}
	if _, err := subjectID(claims.Subject); err != nil {
		return nil, ErrInvalid
	}
	return claims, nil
}

// VerifyRefresh validates a refresh token and returns the subject user id.
func (i *Issuer) VerifyRefresh(tokenString string) (int, error) {
	claims := &jwt.RegisteredClaims{}
	if err := i.parse(tokenString, claims, i.refreshSecret); err != nil {
		return 0, err
	}
	return subjectID(claims.Subject)
}

func (i *Issuer) parse(tokenString string, claims jwt.Claims, secret []byte) error {
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalid
		}
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrExpired
		}
		return ErrInvalid
	}
	if !token.Valid {
		return ErrInvalid
	}
	return nil
}

func subjectID(subject string) (int, error) {
	id, err := strconv.Atoi(strings.TrimSpace(subject))
	if err != nil || id < 1 {
		return 0, ErrInvalid
	}
	return id, nil
}

// UserID extracts the numeric user id from access-token claims.
func (c *AccessClaims) UserID() (int, error) {
	return subjectID(c.Subject)
}
