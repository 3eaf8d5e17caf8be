package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"
	"github.com/siddhi-app/apiserver/types"
)

const uniqueViolation = "23505"

const userColumns = `id, username, email, password_hash, refresh_token,
		reset_password_token, reset_password_expires_at, avatar_url, created_at, updated_at`

// UserRepository handles persistence for users. Every mutation is a
// single-row statement so password changes, refresh-token rotation, and
// reset-token updates are each applied atomically.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetByID(ctx context.Context, id int) (types.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users
		WHERE id = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (types.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users
		WHERE email = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, email))
}

func (r *UserRepository) GetByResetToken(ctx context.Context, resetToken string) (types.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users
		WHERE reset_password_token = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, resetToken))
}

// UsernameOrEmailTaken reports whether any user already holds the given
// username or email.
func (r *UserRepository) UsernameOrEmailTaken(ctx context.Context, username, email string) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM users WHERE username = $1 OR email = $2
		)`
	var taken bool
	if err := r.db.QueryRowContext(ctx, query, username, email).Scan(&taken); err != nil {
		return false, err
	}
	return taken, nil
}

func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	const query = `
		INSERT INTO users (username, email, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`
	err := r.db.QueryRowContext(
		ctx,
		query,
		user.Username,
		user.Email,
		user.PasswordHash,
		user.CreatedAt,
		user.UpdatedAt,
	).Scan(&user.ID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return types.User{}, ErrDuplicate
		}
		return types.User{}, err
	}
	return user, nil
}

// SetRefreshToken stores the most recently issued refresh token,
// invalidating any earlier one. An empty token clears the column.
func (r *UserRepository) SetRefreshToken(ctx context.Context, id int, refreshToken string) error {
	const query = `
		UPDATE users
		SET refresh_token = NULLIF($1, ''),
			updated_at = $2
		WHERE id = $3`
	return r.execOne(ctx, query, refreshToken, time.Now(), id)
}

// SetResetToken stores a live password-reset token with its expiry.
func (r *UserRepository) SetResetToken(ctx context.Context, id int, resetToken string, expiresAt time.Time) error {
	const query = `
		UPDATE users
		SET reset_password_token = $1,
			reset_password_expires_at = $2,
			updated_at = $3
		WHERE id = $4`
	return r.execOne(ctx, query, resetToken, expiresAt, time.Now(), id)
}

// ClearResetToken removes the reset-token fields, used both on expiry
// and as the rollback when the reset email cannot be delivered.
func (r *UserRepository) ClearResetToken(ctx context.Context, id int) error {
	const query = `
		UPDATE users
		SET reset_password_token = NULL,
			reset_password_expires_at = NULL,
			updated_at = $1
		WHERE id = $2`
	return r.execOne(ctx, query, time.Now(), id)
}

// UpdatePassword sets a new password hash and consumes any live reset
// token in the same statement.
func (r *UserRepository) UpdatePassword(ctx context.Context, id int, passwordHash string) error {
	const query = `
		UPDATE users
		SET password_hash = $1,
			reset_password_token = NULL,
			reset_password_expires_at = NULL,
			updated_at = $2
		WHERE id = $3`
	return r.execOne(ctx, query, passwordHash, time.Now(), id)
}

// SetAvatarURL records the location of an uploaded profile photo.
func (r *UserRepository) SetAvatarURL(ctx context.Context, id int, avatarURL string) error {
	const query = `
		UPDATE users
		SET avatar_url = $1,
			updated_at = $2
		WHERE id = $3`
	return r.execOne(ctx, query, avatarURL, time.Now(), id)
}

func (r *UserRepository) execOne(ctx context.Context, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *UserRepository) scanOne(row *sql.Row) (types.User, error) {
	var user types.User
	var refreshToken, resetToken, avatarURL sql.NullString
	var resetExpiresAt sql.NullTime
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&refreshToken,
		&resetToken,
		&resetExpiresAt,
		&avatarURL,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	user.RefreshToken = refreshToken.String
	user.ResetPasswordToken = resetToken.String
	user.AvatarURL = avatarURL.String
	if resetExpiresAt.Valid {
		t := resetExpiresAt.Time
		user.ResetPasswordExpiresAt = &t
	}
	return user, nil
}
