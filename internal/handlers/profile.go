package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/siddhi-app/apiserver/internal/apierr"
	"github.com/siddhi-app/apiserver/internal/services"
)

const maxUploadMemory = 8 << 20 // 8MB

// ProfileHandler exposes the profile photo endpoint.
type ProfileHandler struct {
	service *services.ProfileService
}

func NewProfileHandler(service *services.ProfileService) *ProfileHandler {
	return &ProfileHandler{service: service}
}

// ProfileRouter registers the profile routes. All of them require an
// authenticated caller.
func ProfileRouter(r chi.Router, service *services.ProfileService, requireAuth func(http.Handler) http.Handler, limit Middleware) {
	handler := NewProfileHandler(service)

	r.Use(requireAuth)
	r.With(limit("profile-photo")).Post("/photo", handler.UploadPhoto)
}

// UploadPhoto stores a multipart-uploaded profile photo and records its
// URL on the authenticated user.
func (h *ProfileHandler) UploadPhoto(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		respondError(w, apierr.Unauthorized("Unauthorized request"))
		return
	}

	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		respondError(w, apierr.BadRequest("invalid multipart form"))
		return
	}

	file, header, err := r.FormFile("photo")
	if err != nil {
		respondError(w, apierr.BadRequest("photo file is required"))
		return
	}
	defer file.Close()

	url, err := h.service.UploadAvatar(r.Context(), user.ID, file, header.Size, header.Header.Get("Content-Type"))
	if err != nil {
		respondError(w, err)
		return
	}

	respond(w, http.StatusOK, map[string]string{"avatar_url": url}, "Profile photo updated")
}
