package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/siddhi-app/apiserver/types"
)

const otpKeyPrefix = "otp:"

// OtpRepository stores verification codes in Redis. The key TTL mirrors
// the record expiry, so stale codes are deleted by the store itself in
// addition to the use-time expiry check.
type OtpRepository struct {
	client *redis.Client
}

func NewOtpRepository(client *redis.Client) *OtpRepository {
	return &OtpRepository{client: client}
}

// Upsert creates or overwrites the record for the email.
func (r *OtpRepository) Upsert(ctx context.Context, record types.OtpRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}
	ttl := time.Until(record.ExpiresAt)
	if ttl <= 0 {
		return errors.New("otp record already expired")
	}
	return r.client.Set(ctx, otpKeyPrefix+record.Email, payload, ttl).Err()
}

// Get returns the live record for the email, or ErrNotFound.
func (r *OtpRepository) Get(ctx context.Context, email string) (types.OtpRecord, error) {
	payload, err := r.client.Get(ctx, otpKeyPrefix+email).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return types.OtpRecord{}, ErrNotFound
		}
		return types.OtpRecord{}, err
	}
	var record types.OtpRecord
	if err := json.Unmarshal(payload, &record); err != nil {
		return types.OtpRecord{}, err
	}
	return record, nil
}

// Delete consumes the record after a successful registration.
func (r *OtpRepository) Delete(ctx context.Context, email string) error {
	return r.client.Del(ctx, otpKeyPrefix+email).Err()
}
