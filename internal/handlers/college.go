package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/siddhi-app/apiserver/internal/apierr"
	"github.com/siddhi-app/apiserver/internal/services"
)

const (
	defaultPage     = 1
	defaultPageSize = 10
	maxPageSize     = 100
	maxCompareIDs   = 3
)

// CollegeHandler exposes the eligibility and comparison endpoints.
type CollegeHandler struct {
	service *services.CollegeService
}

func NewCollegeHandler(service *services.CollegeService) *CollegeHandler {
	return &CollegeHandler{service: service}
}

// CollegeRouter registers the college routes. All of them require an
// authenticated caller.
func CollegeRouter(r chi.Router, service *services.CollegeService, requireAuth func(http.Handler) http.Handler, limit Middleware) {
	handler := NewCollegeHandler(service)

	r.Use(requireAuth)
	r.With(limit("college-preferences")).Post("/preferences", handler.Preferences)
	r.With(limit("college-compare")).Post("/compare", handler.Compare)
}

type PreferencesRequest struct {
	Gender   string `json:"gender"`
	SeatType string `json:"seatType"`
	Rank     int    `json:"rank"`
	Page     int    `json:"page"`
	PageSize int    `json:"pageSize"`
}

type CompareRequest struct {
	Data []CompareEntry `json:"data"`
}

type CompareEntry struct {
	ID int `json:"id"`
}

// Preferences returns the page of colleges eligible for the candidate.
func (h *CollegeHandler) Preferences(w http.ResponseWriter, r *http.Request) {
	var req PreferencesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, apierr.BadRequest("invalid request body"))
		return
	}

	input, err := validatePreferences(req)
	if err != nil {
		respondError(w, err)
		return
	}

	result, err := h.service.FindEligibleColleges(r.Context(), input)
	if err != nil {
		respondError(w, err)
		return
	}

	respond(w, http.StatusOK, result, "colleges fetched successfully")
}

// Compare returns rank-window projections for up to three colleges.
func (h *CollegeHandler) Compare(w http.ResponseWriter, r *http.Request) {
	var req CompareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, apierr.BadRequest("invalid request body"))
		return
	}

	ids, err := validateCompare(req)
	if err != nil {
		respondError(w, err)
		return
	}

	compared, err := h.service.CompareColleges(r.Context(), ids)
	if err != nil {
		respondError(w, err)
		return
	}

	respond(w, http.StatusOK, compared, "Compared colleges fetched successfully")
}

func validatePreferences(req PreferencesRequest) (services.PreferencesInput, error) {
	var fields []apierr.FieldError

	switch req.Gender {
	case "Male", "Female", "Gender-Neutral":
	default:
		fields = append(fields, apierr.FieldError{Field: "gender", Message: "Invalid gender"})
	}
	if strings.TrimSpace(req.SeatType) == "" {
		fields = append(fields, apierr.FieldError{Field: "seatType", Message: "Invalid SeatType"})
	}
	if req.Rank <= 0 {
		fields = append(fields, apierr.FieldError{Field: "rank", Message: "Rank must be positive integer"})
	}

	page := req.Page
	if page == 0 {
		page = defaultPage
	}
	if page < 0 {
		fields = append(fields, apierr.FieldError{Field: "page", Message: "Page must be positive integer"})
	}

	pageSize := req.PageSize
	if pageSize == 0 {
		pageSize = defaultPageSize
	}
	if pageSize < 0 || pageSize > maxPageSize {
		fields = append(fields, apierr.FieldError{Field: "pageSize", Message: "Page size must be between 1 & 100"})
	}

	if len(fields) > 0 {
		return services.PreferencesInput{}, apierr.BadRequest("Invalid fields", fields...)
	}

	return services.PreferencesInput{
		Gender:   req.Gender,
		SeatType: strings.TrimSpace(req.SeatType),
		Rank:     req.Rank,
		Page:     page,
		PageSize: pageSize,
	}, nil
}

func validateCompare(req CompareRequest) ([]int, error) {
	var fields []apierr.FieldError

	if len(req.Data) == 0 {
		fields = append(fields, apierr.FieldError{Field: "colleges", Message: "At least one college must be provided"})
	}
	if len(req.Data) > maxCompareIDs {
		fields = append(fields, apierr.FieldError{Field: "colleges", Message: "Provide atmost 3 colleges for comparision"})
	}

	ids := make([]int, 0, len(req.Data))
	for i, entry := range req.Data {
		if entry.ID <= 0 {
			fields = append(fields, apierr.FieldError{
				Field:   fmt.Sprintf("colleges[%d].id", i),
				Message: "College id is required and must be a positive integer",
			})
			continue
		}
		ids = append(ids, entry.ID)
	}

	if len(fields) > 0 {
		return nil, apierr.BadRequest("Invalid fields", fields...)
	}
	return ids, nil
}
