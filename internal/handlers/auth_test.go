package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siddhi-app/apiserver/internal/logging"
	"github.com/siddhi-app/apiserver/internal/services"
	"github.com/siddhi-app/apiserver/internal/store"
	"github.com/siddhi-app/apiserver/internal/token"
	"github.com/siddhi-app/apiserver/types"
)

// guardUserStore serves the auth guard: only GetByID is exercised.
type guardUserStore struct {
	user types.User
}

func (s *guardUserStore) GetByID(_ context.Context, id int) (types.User, error) {
	if id != s.user.ID {
		return types.User{}, store.ErrNotFound
	}
	return s.user, nil
}

func (s *guardUserStore) GetByEmail(context.Context, string) (types.User, error) {
	return types.User{}, store.ErrNotFound
}

func (s *guardUserStore) GetByResetToken(context.Context, string) (types.User, error) {
	return types.User{}, store.ErrNotFound
}

func (s *guardUserStore) UsernameOrEmailTaken(context.Context, string, string) (bool, error) {
	return false, nil
}

func (s *guardUserStore) Create(_ context.Context, user types.User) (types.User, error) {
	return user, nil
}

func (s *guardUserStore) SetRefreshToken(context.Context, int, string) error { return nil }

func (s *guardUserStore) SetResetToken(context.Context, int, string, time.Time) error {
	return nil
}

func (s *guardUserStore) ClearResetToken(context.Context, int) error { return nil }

func (s *guardUserStore) UpdatePassword(context.Context, int, string) error { return nil }

type guardOtpStore struct{}

func (guardOtpStore) Upsert(context.Context, types.OtpRecord) error { return nil }
func (guardOtpStore) Get(context.Context, string) (types.OtpRecord, error) {
	return types.OtpRecord{}, store.ErrNotFound
}
func (guardOtpStore) Delete(context.Context, string) error { return nil }

type silentMailer struct{}

func (silentMailer) Send(context.Context, string, string, string) error { return nil }

type nopLogger struct{}

func (nopLogger) Info(context.Context, string, ...any)  {}
func (nopLogger) Warn(context.Context, string, ...any)  {}
func (nopLogger) Error(context.Context, string, ...any) {}
func (nopLogger) With(...any) logging.Logger            { return nopLogger{} }

func newGuard(t *testing.T, issuer *token.Issuer, user types.User) func(http.Handler) http.Handler {
	t.Helper()
	service := services.NewAuthService(
		&guardUserStore{user: user},
		guardOtpStore{},
		silentMailer{},
		issuer,
		nil,
		nopLogger{},
		"https://app.example.com",
	)
	return NewAuthHandler(service).RequireAuth
}

func guardedEcho() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := userFromContext(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		respond(w, http.StatusOK, user, "ok")
	})
}

func TestRequireAuth(t *testing.T) {
	issuer := token.NewIssuer("access-secret", "refresh-secret", 15*time.Minute, 24*time.Hour)
	user := types.User{ID: 11, Username: "ida", Email: "ida@example.com", PasswordHash: "hash", RefreshToken: "stored"}
	guard := newGuard(t, issuer, user)
	handler := guard(guardedEcho())

	issue := func(t *testing.T) string {
		t.Helper()
		access, err := issuer.IssueAccess(user)
		require.NoError(t, err)
		return access
	}

	t.Run("accepts cookie token and scrubs credentials", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: "accessToken", Value: issue(t)})
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)

		var resp Response
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		data, err := json.Marshal(resp.Data)
		require.NoError(t, err)
		var got types.User
		require.NoError(t, json.Unmarshal(data, &got))
		assert.Equal(t, 11, got.ID)
		assert.Equal(t, "ida", got.Username)
		// PasswordHash and RefreshToken are json:"-" and scrubbed anyway.
		assert.NotContains(t, rec.Body.String(), "hash")
		assert.NotContains(t, rec.Body.String(), "stored")
	})

	t.Run("accepts bearer header token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+issue(t))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("cookie takes precedence over header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: "accessToken", Value: issue(t)})
		req.Header.Set("Authorization", "Bearer garbage")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("missing token is a 401", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "Unauthorized request")
	})

	t.Run("garbage token is a 401", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer not-a-jwt")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "Invalid access token")
	})

	t.Run("expired token is a 403", func(t *testing.T) {
		expiredIssuer := token.NewIssuer("access-secret", "refresh-secret", -time.Minute, 24*time.Hour)
		access, err := expiredIssuer.IssueAccess(user)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+access)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusForbidden, rec.Code)
		assert.Contains(t, rec.Body.String(), "Access token expired")
	})

	t.Run("token for a deleted user is a 401", func(t *testing.T) {
		gone := types.User{ID: 99, Username: "ghost", Email: "ghost@example.com"}
		access, err := issuer.IssueAccess(gone)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+access)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "Invalid Access Token")
	})
}
