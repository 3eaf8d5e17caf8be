package services

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siddhi-app/apiserver/internal/apierr"
	"github.com/siddhi-app/apiserver/types"
)

type fakeCollegeRepo struct {
	eligible []types.CollegeSummary
	total    int
	byID     map[int]types.CollegeComparison
	err      error

	lastGender   string
	lastSeatType string
	lastRank     int
	lastPage     int
	lastPageSize int
}

func (f *fakeCollegeRepo) FindEligible(_ context.Context, gender, seatType string, rank, page, pageSize int) ([]types.CollegeSummary, error) {
	f.lastGender, f.lastSeatType, f.lastRank, f.lastPage, f.lastPageSize = gender, seatType, rank, page, pageSize
	return f.eligible, f.err
}

func (f *fakeCollegeRepo) CountEligible(_ context.Context, gender, seatType string, rank int) (int, error) {
	return f.total, f.err
}

func (f *fakeCollegeRepo) GetByIDs(_ context.Context, ids []int) ([]types.CollegeComparison, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []types.CollegeComparison
	for _, id := range ids {
		if c, ok := f.byID[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func TestFindEligibleColleges(t *testing.T) {
	ctx := context.Background()

	t.Run("returns page with metadata", func(t *testing.T) {
		repo := &fakeCollegeRepo{
			eligible: []types.CollegeSummary{
				{ID: 1, CollegeName: "IIT Delhi", ProgramName: "Computer Science and Engineering"},
				{ID: 2, CollegeName: "IIT Bombay", ProgramName: "Electrical Engineering"},
			},
			total: 42,
		}
		service := NewCollegeService(repo)

		result, err := service.FindEligibleColleges(ctx, PreferencesInput{
			Gender:   "Female",
			SeatType: "OPEN",
			Rank:     1500,
			Page:     3,
			PageSize: 10,
		})
		require.NoError(t, err)

		assert.Len(t, result.Colleges, 2)
		assert.Equal(t, 3, result.CurrentPage)
		assert.Equal(t, 42, result.TotalDocuments)
		assert.Equal(t, "OPEN", repo.lastSeatType)
		assert.Equal(t, 1500, repo.lastRank)
		assert.Equal(t, 10, repo.lastPageSize)
	})

	t.Run("repository failure is internal", func(t *testing.T) {
		repo := &fakeCollegeRepo{err: errors.New("db down")}
		service := NewCollegeService(repo)

		_, err := service.FindEligibleColleges(ctx, PreferencesInput{Page: 1, PageSize: 10})
		require.Error(t, err)
		var apiErr *apierr.Error
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusInternalServerError, apiErr.Status)
	})
}

func TestCompareColleges(t *testing.T) {
	ctx := context.Background()

	repo := &fakeCollegeRepo{
		byID: map[int]types.CollegeComparison{
			1: {ID: 1, CollegeName: "IIT Delhi", ProgramName: "CSE", OpeningRank: 1, ClosingRank: 100},
			2: {ID: 2, CollegeName: "IIT Bombay", ProgramName: "EE", OpeningRank: 50, ClosingRank: 400},
			3: {ID: 3, CollegeName: "IIT Madras", ProgramName: "ME", OpeningRank: 200, ClosingRank: 900},
		},
	}
	service := NewCollegeService(repo)

	t.Run("preserves the requested order", func(t *testing.T) {
		result, err := service.CompareColleges(ctx, []int{3, 1, 2})
		require.NoError(t, err)
		require.Len(t, result, 3)
		assert.Equal(t, 3, result[0].ID)
		assert.Equal(t, 1, result[1].ID)
		assert.Equal(t, 2, result[2].ID)
	})

	t.Run("repeated id repeats the college", func(t *testing.T) {
		result, err := service.CompareColleges(ctx, []int{1, 1})
		require.NoError(t, err)
		require.Len(t, result, 2)
		assert.Equal(t, 1, result[0].ID)
		assert.Equal(t, 1, result[1].ID)
		assert.Equal(t, result[0], result[1])
	})

	t.Run("missing id fails the whole request", func(t *testing.T) {
		_, err := service.CompareColleges(ctx, []int{1, 99})
		require.Error(t, err)

		var apiErr *apierr.Error
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusNotFound, apiErr.Status)
		assert.Equal(t, "Some colleges could not be found", apiErr.Message)
		require.Len(t, apiErr.Fields, 1)
		assert.Equal(t, "College with id 99 not found.", apiErr.Fields[0].Message)
	})

	t.Run("missing id repeated in the request is still named once", func(t *testing.T) {
		_, err := service.CompareColleges(ctx, []int{99, 99})
		require.Error(t, err)

		var apiErr *apierr.Error
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusNotFound, apiErr.Status)
		require.Len(t, apiErr.Fields, 1)
		assert.Equal(t, "College with id 99 not found.", apiErr.Fields[0].Message)
	})

	t.Run("repository failure is internal", func(t *testing.T) {
		broken := &fakeCollegeRepo{err: errors.New("db down")}
		_, err := NewCollegeService(broken).CompareColleges(ctx, []int{1})
		require.Error(t, err)
		var apiErr *apierr.Error
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusInternalServerError, apiErr.Status)
	})
}
