package services

import (
	"context"
	"fmt"

	"github.com/siddhi-app/apiserver/internal/apierr"
	"github.com/siddhi-app/apiserver/types"
)

// CollegeRepository defines read access to the seat-allocation data.
type CollegeRepository interface {
	FindEligible(ctx context.Context, gender, seatType string, rank, page, pageSize int) ([]types.CollegeSummary, error)
	CountEligible(ctx context.Context, gender, seatType string, rank int) (int, error)
	GetByIDs(ctx context.Context, ids []int) ([]types.CollegeComparison, error)
}

// PreferencesInput is a validated eligibility query.
type PreferencesInput struct {
	Gender   string
	SeatType string
	Rank     int
	Page     int
	PageSize int
}

// CollegeService encapsulates the eligibility and comparison use-cases.
type CollegeService struct {
	repo CollegeRepository
}

func NewCollegeService(repo CollegeRepository) *CollegeService {
	return &CollegeService{repo: repo}
}

// FindEligibleColleges returns the page of colleges whose rank window
// contains the candidate's rank, with pagination metadata.
func (s *CollegeService) FindEligibleColleges(ctx context.Context, input PreferencesInput) (types.EligibleColleges, error) {
	colleges, err := s.repo.FindEligible(ctx, input.Gender, input.SeatType, input.Rank, input.Page, input.PageSize)
	if err != nil {
		return types.EligibleColleges{}, apierr.Internal("error fetching college list", err)
	}
	total, err := s.repo.CountEligible(ctx, input.Gender, input.SeatType, input.Rank)
	if err != nil {
		return types.EligibleColleges{}, apierr.Internal("error fetching total documents count", err)
	}
	return types.EligibleColleges{
		Colleges:       colleges,
		CurrentPage:    input.Page,
		TotalDocuments: total,
	}, nil
}

// CompareColleges returns comparison projections for the requested ids.
// Every requested id must exist; missing ids fail the whole request.
// A repeated id repeats its college in the result.
func (s *CollegeService) CompareColleges(ctx context.Context, ids []int) ([]types.CollegeComparison, error) {
	distinct := make([]int, 0, len(ids))
	seen := make(map[int]bool, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			distinct = append(distinct, id)
		}
	}

	found, err := s.repo.GetByIDs(ctx, distinct)
	if err != nil {
		return nil, apierr.Internal("error fetching colleges", err)
	}

	byID := make(map[int]types.CollegeComparison, len(found))
	for _, c := range found {
		byID[c.ID] = c
	}

	if len(byID) != len(distinct) {
		var fields []apierr.FieldError
		for _, id := range distinct {
			if _, ok := byID[id]; !ok {
				fields = append(fields, apierr.FieldError{
					Field:   "colleges",
					Message: fmt.Sprintf("College with id %d not found.", id),
				})
			}
		}
		return nil, &apierr.Error{Status: 404, Message: "Some colleges could not be found", Fields: fields}
	}

	// Preserve the requested order, entry for entry.
	ordered := make([]types.CollegeComparison, 0, len(ids))
	for _, id := range ids {
		ordered = append(ordered, byID[id])
	}
	return ordered, nil
}
