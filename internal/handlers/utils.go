package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/siddhi-app/apiserver/internal/apierr"
	"github.com/siddhi-app/apiserver/types"
)

type contextKey string

const contextUserKey contextKey = "user"

// Response is the standard success envelope.
type Response struct {
	StatusCode int    `json:"statusCode"`
	Success    bool   `json:"success"`
	Data       any    `json:"data"`
	Message    string `json:"message"`
}

// ErrorResponse is the standard error envelope.
type ErrorResponse struct {
	StatusCode int                `json:"statusCode"`
	Success    bool               `json:"success"`
	Message    string             `json:"message"`
	Errors     []apierr.FieldError `json:"errors,omitempty"`
}

func respond(w http.ResponseWriter, status int, data any, message string) {
	if data == nil {
		data = map[string]any{}
	}
	writeJSON(w, status, Response{
		StatusCode: status,
		Success:    true,
		Data:       data,
		Message:    message,
	})
}

// respondError maps any error onto the error envelope. Non-operational
// errors become a generic 500; internals never reach the client.
func respondError(w http.ResponseWriter, err error) {
	apiErr := apierr.From(err)
	writeJSON(w, apiErr.Status, ErrorResponse{
		StatusCode: apiErr.Status,
		Success:    false,
		Message:    apiErr.Message,
		Errors:     apiErr.Fields,
	})
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

// userFromContext returns the authenticated user attached by the guard.
func userFromContext(ctx context.Context) (types.User, error) {
	user, ok := ctx.Value(contextUserKey).(types.User)
	if !ok {
		return types.User{}, errors.New("missing user in context")
	}
	return user, nil
}

func setAuthCookies(w http.ResponseWriter, accessToken, refreshToken string, accessTTL, refreshTTL time.Duration) {
	http.SetCookie(w, authCookie("accessToken", accessToken, int(accessTTL.Seconds())))
	http.SetCookie(w, authCookie("refreshToken", refreshToken, int(refreshTTL.Seconds())))
}

func clearAuthCookies(w http.ResponseWriter) {
	http.SetCookie(w, authCookie("accessToken", "", -1))
	http.SetCookie(w, authCookie("refreshToken", "", -1))
}

func authCookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	}
}

// Healthz reports process liveness.
func Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}
