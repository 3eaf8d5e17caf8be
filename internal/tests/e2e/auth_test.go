//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/siddhi-app/apiserver/config"
	"github.com/siddhi-app/apiserver/internal/db"
	"github.com/siddhi-app/apiserver/internal/server"
	"github.com/siddhi-app/apiserver/types"
)

const (
	serverPort = 18080
)

func TestMain(m *testing.M) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	root, err := repoRoot()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to locate repo root: %v\n", err)
		os.Exit(1)
	}

	if err := dockerCompose(ctx, root, "up", "-d"); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start docker compose: %v\n", err)
		os.Exit(1)
	}

	if err := waitForPostgres(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "postgres not ready: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	if err := runMigrations(root); err != nil {
		fmt.Fprintf(os.Stderr, "failed to run migrations: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	srv, err := startServer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start server: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	baseURL := fmt.Sprintf("http://localhost:%d", serverPort)
	if err := waitForHealth(ctx, baseURL+"/healthz"); err != nil {
		fmt.Fprintf(os.Stderr, "server not healthy: %v\n", err)
		_ = srv.Shutdown()
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	code := m.Run()

	_ = srv.Shutdown()
	_ = dockerCompose(context.Background(), root, "down")
	os.Exit(code)
}

type envelope struct {
	StatusCode int             `json:"statusCode"`
	Success    bool            `json:"success"`
	Data       json.RawMessage `json:"data"`
	Message    string          `json:"message"`
}

type loginData struct {
	User         types.PublicUser `json:"user"`
	AccessToken  string           `json:"accessToken"`
	RefreshToken string           `json:"refreshToken"`
}

func TestAccountLifecycle(t *testing.T) {
	clearRateLimits(t)
	baseURL := fmt.Sprintf("http://localhost:%d", serverPort)
	suffix := time.Now().UnixNano()
	username := fmt.Sprintf("e2e_user_%d", suffix)
	email := fmt.Sprintf("e2e_user_%d@example.com", suffix)
	passwd := "testpass123!"

	// OTP issuance.
	env := postExpect(t, baseURL+"/api/v1/auth/verify-account", map[string]string{
		"username": username,
		"email":    email,
	}, http.StatusOK)
	if env.Message != "Verification OTP sent successfully" {
		t.Fatalf("unexpected otp message: %q", env.Message)
	}

	otp, err := otpFromRedis(email)
	if err != nil {
		t.Fatalf("read otp from redis: %v", err)
	}

	// Registration gated on the OTP.
	env = postExpect(t, baseURL+"/api/v1/auth/register", map[string]string{
		"username": username,
		"email":    email,
		"password": passwd,
		"otp":      otp,
	}, http.StatusCreated)
	if env.Message != "User registered successfully" {
		t.Fatalf("unexpected register message: %q", env.Message)
	}

	// The OTP is consumed; a second registration fails.
	postExpect(t, baseURL+"/api/v1/auth/register", map[string]string{
		"username": username + "x",
		"email":    email,
		"password": passwd,
		"otp":      otp,
	}, http.StatusConflict)

	// Login.
	env = postExpect(t, baseURL+"/api/v1/auth/login", map[string]string{
		"email":    email,
		"password": passwd,
	}, http.StatusOK)

	var session loginData
	if err := json.Unmarshal(env.Data, &session); err != nil {
		t.Fatalf("decode login data: %v", err)
	}
	if session.AccessToken == "" || session.RefreshToken == "" {
		t.Fatalf("expected a token pair in the login response")
	}
	if session.User.Username != username {
		t.Fatalf("unexpected login user: %q", session.User.Username)
	}

	// Wrong password is a 401, unknown email a 404.
	postExpect(t, baseURL+"/api/v1/auth/login", map[string]string{
		"email":    email,
		"password": "wrong",
	}, http.StatusUnauthorized)
	postExpect(t, baseURL+"/api/v1/auth/login", map[string]string{
		"email":    "missing_" + email,
		"password": passwd,
	}, http.StatusNotFound)

	// Refresh rotates the pair and invalidates the presented token.
	env = postExpect(t, baseURL+"/api/v1/auth/refresh-token", map[string]string{
		"refreshToken": session.RefreshToken,
	}, http.StatusOK)
	var rotated loginData
	if err := json.Unmarshal(env.Data, &rotated); err != nil {
		t.Fatalf("decode refresh data: %v", err)
	}
	if rotated.RefreshToken == session.RefreshToken {
		t.Fatalf("expected refresh to rotate the refresh token")
	}
	postExpect(t, baseURL+"/api/v1/auth/refresh-token", map[string]string{
		"refreshToken": session.RefreshToken,
	}, http.StatusUnauthorized)

	// Logout closes the session; the rotated token stops refreshing.
	getAuthedExpect(t, baseURL+"/api/v1/auth/logout", rotated.AccessToken, http.StatusOK)
	postExpect(t, baseURL+"/api/v1/auth/refresh-token", map[string]string{
		"refreshToken": rotated.RefreshToken,
	}, http.StatusUnauthorized)
}

func TestPasswordResetFlow(t *testing.T) {
	clearRateLimits(t)
	baseURL := fmt.Sprintf("http://localhost:%d", serverPort)
	suffix := time.Now().UnixNano()
	username := fmt.Sprintf("e2e_reset_%d", suffix)
	email := fmt.Sprintf("e2e_reset_%d@example.com", suffix)
	passwd := "oldpass123!"
	newPasswd := "newpass456!"

	registerAccount(t, baseURL, username, email, passwd)

	env := postExpect(t, baseURL+"/api/v1/auth/forgot-password", map[string]string{
		"email": email,
	}, http.StatusOK)
	if env.Message != "If mail is registered, reset link has been sent" {
		t.Fatalf("unexpected forgot-password message: %q", env.Message)
	}

	// The response is identical for an unknown address.
	unknown := postExpect(t, baseURL+"/api/v1/auth/forgot-password", map[string]string{
		"email": "nobody_" + email,
	}, http.StatusOK)
	if unknown.Message != env.Message {
		t.Fatalf("forgot-password leaked account existence")
	}

	resetToken, err := resetTokenFromDB(email)
	if err != nil {
		t.Fatalf("read reset token: %v", err)
	}

	postExpect(t, baseURL+"/api/v1/auth/verify-reset-token", map[string]string{
		"token": resetToken,
	}, http.StatusOK)

	postExpect(t, baseURL+"/api/v1/auth/reset-password", map[string]string{
		"token":       resetToken,
		"newPassword": newPasswd,
	}, http.StatusOK)

	// The token is consumed.
	postExpect(t, baseURL+"/api/v1/auth/reset-password", map[string]string{
		"token":       resetToken,
		"newPassword": "again789!",
	}, http.StatusBadRequest)

	// Only the new password logs in.
	postExpect(t, baseURL+"/api/v1/auth/login", map[string]string{
		"email":    email,
		"password": passwd,
	}, http.StatusUnauthorized)
	postExpect(t, baseURL+"/api/v1/auth/login", map[string]string{
		"email":    email,
		"password": newPasswd,
	}, http.StatusOK)
}

func TestCollegeEndpoints(t *testing.T) {
	clearRateLimits(t)
	baseURL := fmt.Sprintf("http://localhost:%d", serverPort)
	suffix := time.Now().UnixNano()
	username := fmt.Sprintf("e2e_college_%d", suffix)
	email := fmt.Sprintf("e2e_college_%d@example.com", suffix)
	passwd := "collegepass1!"

	registerAccount(t, baseURL, username, email, passwd)
	env := postExpect(t, baseURL+"/api/v1/auth/login", map[string]string{
		"email":    email,
		"password": passwd,
	}, http.StatusOK)
	var session loginData
	if err := json.Unmarshal(env.Data, &session); err != nil {
		t.Fatalf("decode login data: %v", err)
	}

	ids, err := seedColleges()
	if err != nil {
		t.Fatalf("seed colleges: %v", err)
	}

	// Unauthenticated calls are rejected.
	postExpect(t, baseURL+"/api/v1/college/preferences", map[string]any{
		"gender": "Male", "seatType": "OPEN", "rank": 500,
	}, http.StatusUnauthorized)

	env = postAuthedExpect(t, baseURL+"/api/v1/college/preferences", session.AccessToken, map[string]any{
		"gender":   "Male",
		"seatType": "OPEN",
		"rank":     500,
	}, http.StatusOK)
	var page types.EligibleColleges
	if err := json.Unmarshal(env.Data, &page); err != nil {
		t.Fatalf("decode preferences data: %v", err)
	}
	if page.TotalDocuments < 1 || len(page.Colleges) < 1 {
		t.Fatalf("expected at least one eligible college, got %d", page.TotalDocuments)
	}

	env = postAuthedExpect(t, baseURL+"/api/v1/college/compare", session.AccessToken, map[string]any{
		"data": []map[string]int{{"id": ids[0]}, {"id": ids[1]}},
	}, http.StatusOK)
	var compared []types.CollegeComparison
	if err := json.Unmarshal(env.Data, &compared); err != nil {
		t.Fatalf("decode compare data: %v", err)
	}
	if len(compared) != 2 || compared[0].ID != ids[0] {
		t.Fatalf("unexpected comparison payload: %+v", compared)
	}

	postAuthedExpect(t, baseURL+"/api/v1/college/compare", session.AccessToken, map[string]any{
		"data": []map[string]int{{"id": 99999999}},
	}, http.StatusNotFound)
}

// ---- helpers ----

func registerAccount(t *testing.T, baseURL, username, email, passwd string) {
	t.Helper()

	postExpect(t, baseURL+"/api/v1/auth/verify-account", map[string]string{
		"username": username,
		"email":    email,
	}, http.StatusOK)

	otp, err := otpFromRedis(email)
	if err != nil {
		t.Fatalf("read otp from redis: %v", err)
	}

	postExpect(t, baseURL+"/api/v1/auth/register", map[string]string{
		"username": username,
		"email":    email,
		"password": passwd,
		"otp":      otp,
	}, http.StatusCreated)
}

func postExpect(t *testing.T, url string, payload any, wantStatus int) envelope {
	t.Helper()
	return doJSON(t, url, "", payload, wantStatus)
}

func postAuthedExpect(t *testing.T, url, accessToken string, payload any, wantStatus int) envelope {
	t.Helper()
	return doJSON(t, url, accessToken, payload, wantStatus)
}

func doJSON(t *testing.T, url, accessToken string, payload any, wantStatus int) envelope {
	t.Helper()

	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != wantStatus {
		t.Fatalf("%s: status %d, want %d: %s", url, resp.StatusCode, wantStatus, strings.TrimSpace(string(raw)))
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return env
}

func getAuthedExpect(t *testing.T, url, accessToken string, wantStatus int) {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		raw, _ := io.ReadAll(resp.Body)
		t.Fatalf("%s: status %d, want %d: %s", url, resp.StatusCode, wantStatus, strings.TrimSpace(string(raw)))
	}
}

// clearRateLimits resets the per-route counters so each test starts
// with a fresh window.
func clearRateLimits(t *testing.T) {
	t.Helper()

	cfg := config.LoadConfig()
	opt, err := redis.ParseURL(cfg.RedisURI)
	if err != nil {
		t.Fatalf("parse redis uri: %v", err)
	}
	client := redis.NewClient(opt)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	iter := client.Scan(ctx, 0, "ratelimit:*", 0).Iterator()
	for iter.Next(ctx) {
		if err := client.Del(ctx, iter.Val()).Err(); err != nil {
			t.Fatalf("clear rate limit key: %v", err)
		}
	}
	if err := iter.Err(); err != nil {
		t.Fatalf("scan rate limit keys: %v", err)
	}
}

func otpFromRedis(email string) (string, error) {
	cfg := config.LoadConfig()
	opt, err := redis.ParseURL(cfg.RedisURI)
	if err != nil {
		return "", err
	}
	client := redis.NewClient(opt)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	payload, err := client.Get(ctx, "otp:"+email).Bytes()
	if err != nil {
		return "", err
	}
	var record types.OtpRecord
	if err := json.Unmarshal(payload, &record); err != nil {
		return "", err
	}
	return record.Otp, nil
}

func resetTokenFromDB(email string) (string, error) {
	conn, err := openDB()
	if err != nil {
		return "", err
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var token string
	err = conn.QueryRowContext(ctx, "SELECT reset_password_token FROM users WHERE email = $1", email).Scan(&token)
	return token, err
}

func seedColleges() ([]int, error) {
	conn, err := openDB()
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rows := [][]any{
		{"IIT Delhi", "Computer Science and Engineering", "AI", "OPEN", "Gender-Neutral", 1, 100, 2022, 6},
		{"IIT Bombay", "Electrical Engineering", "AI", "OPEN", "Gender-Neutral", 50, 800, 2022, 6},
	}

	ids := make([]int, 0, len(rows))
	for _, row := range rows {
		var id int
		err := conn.QueryRowContext(ctx, `
			INSERT INTO colleges (institute, program, quota, seat_type, gender, opening_rank, closing_rank, year, round)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING id`, row...).Scan(&id)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func openDB() (*sql.DB, error) {
	cfg := config.LoadConfig()
	return sql.Open("postgres", db.PostgresURL(cfg))
}

func waitForPostgres(ctx context.Context) error {
	conn, err := openDB()
	if err != nil {
		return err
	}
	defer conn.Close()

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := conn.PingContext(pingCtx)
		cancel()
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("postgres ping timeout: %w", err)
		case <-ticker.C:
		}
	}
}

func waitForHealth(ctx context.Context, url string) error {
	client := &http.Client{Timeout: 2 * time.Second}
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			if err != nil {
				return fmt.Errorf("health check failed: %w", err)
			}
			return fmt.Errorf("health check failed with status")
		case <-ticker.C:
		}
	}
}

func runMigrations(root string) error {
	cfg := config.LoadConfig()
	dsn := db.PostgresURL(cfg)
	migrationsPath := filepath.Join(root, "internal", "db", "migrations")
	migrationsURL := "file://" + migrationsPath

	migrator, err := migrate.New(migrationsURL, dsn)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = migrator.Close()
	}()

	if err := migrator.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

func startServer() (*server.Server, error) {
	_ = os.Setenv("ACCESS_TOKEN_SECRET", "test-access-secret")
	_ = os.Setenv("REFRESH_TOKEN_SECRET", "test-refresh-secret")
	_ = os.Setenv("SERVER_PORT", fmt.Sprintf("%d", serverPort))
	_ = os.Setenv("DB_HOST", "localhost")
	_ = os.Setenv("DB_PORT", "5432")
	_ = os.Setenv("DB_USER", "siddhi")
	_ = os.Setenv("DB_PASSWORD", "password")
	_ = os.Setenv("DB_NAME", "siddhi_db")
	_ = os.Setenv("DB_USE_SSL", "false")
	_ = os.Setenv("REDIS_URI", "redis://localhost:6379/0")
	_ = os.Setenv("SMTP_HOST", "localhost")
	_ = os.Setenv("SMTP_PORT", "1025")
	_ = os.Setenv("SMTP_USER", "")
	_ = os.Setenv("SMTP_FROM", "test@siddhi.local")

	cfg := config.LoadConfig()
	srv, err := server.New(context.Background(), cfg)
	if err != nil {
		return nil, err
	}

	go func() {
		_ = srv.Start()
	}()

	return srv, nil
}

func dockerCompose(ctx context.Context, root string, args ...string) error {
	composeFile := filepath.Join(root, "development", "docker-compose.yml")
	baseArgs := append([]string{"compose", "-f", composeFile}, args...)
	cmd := exec.CommandContext(ctx, "docker", baseArgs...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func repoRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found")
		}
		dir = parent
	}
}
