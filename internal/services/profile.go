package services

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/siddhi-app/apiserver/internal/apierr"
	"github.com/siddhi-app/apiserver/internal/logging"
	"github.com/siddhi-app/apiserver/internal/storage"
)

const maxAvatarSize = 5 << 20 // 5MB

var avatarExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// AvatarStore is the slice of the credential store the profile needs.
type AvatarStore interface {
	SetAvatarURL(ctx context.Context, id int, avatarURL string) error
}

// ProfileService handles profile photo uploads.
type ProfileService struct {
	users   AvatarStore
	storage *storage.Storage
	log     logging.Logger
}

func NewProfileService(users AvatarStore, store *storage.Storage, log logging.Logger) *ProfileService {
	return &ProfileService{users: users, storage: store, log: log}
}

// UploadAvatar validates and stores a profile photo, records its URL on
// the user, and returns the URL.
func (s *ProfileService) UploadAvatar(ctx context.Context, userID int, r io.Reader, size int64, contentType string) (string, error) {
	ext, ok := avatarExtensions[contentType]
	if !ok {
		return "", apierr.BadRequest("unsupported image type")
	}
	if size <= 0 || size > maxAvatarSize {
		return "", apierr.BadRequest("image must be between 1 byte and 5MB")
	}

	key := fmt.Sprintf("avatars/%d/%s%s", userID, uuid.NewString(), ext)
	if err := s.storage.Put(ctx, key, r, size, contentType); err != nil {
		return "", apierr.Internal("failed to upload image", err)
	}

	url := s.storage.ObjectURL(key)
	if err := s.users.SetAvatarURL(ctx, userID, url); err != nil {
		// The object is orphaned if this fails; best-effort cleanup.
		if delErr := s.storage.Delete(ctx, key); delErr != nil {
			s.log.Warn(ctx, "failed to delete orphaned avatar", "key", key, "err", delErr)
		}
		return "", apierr.Internal("failed to save profile photo", err)
	}
	return url, nil
}
