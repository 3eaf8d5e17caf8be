package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/siddhi-app/apiserver/internal/apierr"
	"github.com/siddhi-app/apiserver/internal/services"
	"github.com/siddhi-app/apiserver/internal/store"
	"github.com/siddhi-app/apiserver/internal/token"
)

// AuthHandler exposes the account lifecycle endpoints.
type AuthHandler struct {
	service *services.AuthService
}

// NewAuthHandler constructs an AuthHandler with the provided service.
func NewAuthHandler(service *services.AuthService) *AuthHandler {
	return &AuthHandler{service: service}
}

// Middleware applies one middleware per route, keyed by route name.
// It lets the server attach per-route rate limits the way the routes
// are declared.
type Middleware func(route string) func(http.Handler) http.Handler

// AuthRouter registers the auth routes on the given router.
func AuthRouter(r chi.Router, service *services.AuthService, limit Middleware) {
	handler := NewAuthHandler(service)

	r.With(limit("login")).Post("/login", handler.Login)
	r.With(limit("register")).Post("/register", handler.Register)
	r.With(limit("refresh-token")).Post("/refresh-token", handler.Refresh)
	r.Post("/verify-account", handler.RequestOtp)
	r.With(limit("forgot-password")).Post("/forgot-password", handler.ForgotPassword)
	r.With(limit("verify-reset-token")).Post("/verify-reset-token", handler.VerifyResetToken)
	r.With(limit("reset-password")).Post("/reset-password", handler.ResetPassword)

	r.With(handler.RequireAuth).Get("/logout", handler.Logout)
}

// RequireAuth validates the access token (cookie takes precedence over
// the Authorization header), loads the subject, and attaches it to the
// request context. An expired token fails with 403, distinct from the
// generic 401, so clients know to run the refresh flow.
func (h *AuthHandler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := accessTokenFrom(r)
		if tokenString == "" {
			respondError(w, apierr.Unauthorized("Unauthorized request"))
			return
		}

		claims, err := h.service.Tokens().VerifyAccess(tokenString)
		if err != nil {
			if errors.Is(err, token.ErrExpired) {
				respondError(w, apierr.Forbidden("Access token expired"))
				return
			}
			respondError(w, apierr.Unauthorized("Invalid access token"))
			return
		}

		userID, err := claims.UserID()
		if err != nil {
			respondError(w, apierr.Unauthorized("Invalid access token"))
			return
		}

		user, err := h.service.Users().GetByID(r.Context(), userID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				respondError(w, apierr.Unauthorized("Invalid Access Token"))
				return
			}
			respondError(w, err)
			return
		}

		// Downstream handlers only ever see the scrubbed user.
		user.PasswordHash = ""
		user.RefreshToken = ""

		ctx := context.WithValue(r.Context(), contextUserKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
	Otp      string `json:"otp"`
}

type RequestOtpRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

type VerifyResetTokenRequest struct {
	Token string `json:"token"`
}

type ResetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

// Login verifies credentials and opens a session.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, apierr.BadRequest("invalid request body"))
		return
	}

	result, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		respondError(w, err)
		return
	}

	tokens := h.service.Tokens()
	setAuthCookies(w, result.AccessToken, result.RefreshToken, tokens.AccessTTL(), tokens.RefreshTTL())
	respond(w, http.StatusOK, result, "user logged in successfully")
}

// Register creates an account gated on the emailed OTP.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, apierr.BadRequest("invalid request body"))
		return
	}

	if _, err := h.service.Register(r.Context(), services.RegisterInput{
		Email:    req.Email,
		Username: req.Username,
		Password: req.Password,
		Otp:      req.Otp,
	}); err != nil {
		respondError(w, err)
		return
	}

	respond(w, http.StatusCreated, nil, "User registered successfully")
}

// RequestOtp issues (or reissues) the account-verification code.
func (h *AuthHandler) RequestOtp(w http.ResponseWriter, r *http.Request) {
	var req RequestOtpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, apierr.BadRequest("invalid request body"))
		return
	}

	if err := h.service.RequestOtp(r.Context(), req.Username, req.Email); err != nil {
		respondError(w, err)
		return
	}

	respond(w, http.StatusOK, nil, "Verification OTP sent successfully")
}

// Refresh rotates the token pair. The refresh token may arrive in the
// cookie or the request body.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	presented := ""
	if cookie, err := r.Cookie("refreshToken"); err == nil {
		presented = cookie.Value
	}
	if presented == "" {
		var req RefreshRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
			presented = req.RefreshToken
		}
	}

	pair, err := h.service.Refresh(r.Context(), presented)
	if err != nil {
		respondError(w, err)
		return
	}

	tokens := h.service.Tokens()
	setAuthCookies(w, pair.AccessToken, pair.RefreshToken, tokens.AccessTTL(), tokens.RefreshTTL())
	respond(w, http.StatusOK, pair, "Access token refreshed")
}

// Logout clears the stored refresh token and both cookies.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		respondError(w, apierr.Unauthorized("Unauthorized request"))
		return
	}

	if err := h.service.Logout(r.Context(), user.ID); err != nil {
		respondError(w, err)
		return
	}

	clearAuthCookies(w)
	respond(w, http.StatusOK, nil, "User logged Out")
}

// ForgotPassword starts the reset flow. The response is identical
// whether or not the email is registered.
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, apierr.BadRequest("invalid request body"))
		return
	}

	if err := h.service.ForgotPassword(r.Context(), req.Email); err != nil {
		respondError(w, err)
		return
	}

	respond(w, http.StatusOK, nil, h.service.ForgotPasswordMessage())
}

// VerifyResetToken checks a reset token without consuming it.
func (h *AuthHandler) VerifyResetToken(w http.ResponseWriter, r *http.Request) {
	var req VerifyResetTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, apierr.BadRequest("invalid request body"))
		return
	}

	if err := h.service.VerifyResetToken(r.Context(), req.Token); err != nil {
		respondError(w, err)
		return
	}

	respond(w, http.StatusOK, map[string]bool{"valid": true}, "Token is valid")
}

// ResetPassword consumes a reset token and sets the new password.
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, apierr.BadRequest("invalid request body"))
		return
	}

	if err := h.service.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		respondError(w, err)
		return
	}

	respond(w, http.StatusOK, nil, "Password updated successfully")
}

// accessTokenFrom pulls the bearer token from the accessToken cookie,
// falling back to the Authorization header.
func accessTokenFrom(r *http.Request) string {
	if cookie, err := r.Cookie("accessToken"); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
