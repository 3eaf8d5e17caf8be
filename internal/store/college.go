package store

import (
	"context"
	"database/sql"

	"github.com/lib/pq"
	"github.com/siddhi-app/apiserver/types"
)

// Counselling data is fixed to the 2022 allocation year.
const collegeDataYear = 2022

// CollegeRepository handles read access to the seat-allocation data.
type CollegeRepository struct {
	db *sql.DB
}

func NewCollegeRepository(db *sql.DB) *CollegeRepository {
	return &CollegeRepository{db: db}
}

// FindEligible returns the page of colleges whose opening/closing rank
// window contains the candidate's rank, for the requested seat type and
// gender (gender-neutral seats always qualify).
func (r *CollegeRepository) FindEligible(ctx context.Context, gender, seatType string, rank, page, pageSize int) ([]types.CollegeSummary, error) {
	const query = `
		SELECT id, institute, program
		FROM colleges
		WHERE gender IN ($1, 'Gender-Neutral')
			AND seat_type = $2
			AND opening_rank <= $3
			AND closing_rank >= $3
			AND year = $4
		ORDER BY id
		LIMIT $5 OFFSET $6`
	rows, err := r.db.QueryContext(ctx, query, gender, seatType, rank, collegeDataYear, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	colleges := []types.CollegeSummary{}
	for rows.Next() {
		var c types.CollegeSummary
		if err := rows.Scan(&c.ID, &c.CollegeName, &c.ProgramName); err != nil {
			return nil, err
		}
		colleges = append(colleges, c)
	}
	return colleges, rows.Err()
}

// CountEligible returns the total number of rows the eligibility query
// matches, for pagination metadata.
func (r *CollegeRepository) CountEligible(ctx context.Context, gender, seatType string, rank int) (int, error) {
	const query = `
		SELECT COUNT(*)
		FROM colleges
		WHERE gender IN ($1, 'Gender-Neutral')
			AND seat_type = $2
			AND opening_rank <= $3
			AND closing_rank >= $3
			AND year = $4`
	var total int
	if err := r.db.QueryRowContext(ctx, query, gender, seatType, rank, collegeDataYear).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

// GetByIDs returns comparison projections for the given college ids, in
// no particular order. Missing ids are simply absent from the result.
func (r *CollegeRepository) GetByIDs(ctx context.Context, ids []int) ([]types.CollegeComparison, error) {
	const query = `
		SELECT id, institute, program, opening_rank, closing_rank
		FROM colleges
		WHERE id = ANY($1)`
	rows, err := r.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	colleges := []types.CollegeComparison{}
	for rows.Next() {
		var c types.CollegeComparison
		if err := rows.Scan(&c.ID, &c.CollegeName, &c.ProgramName, &c.OpeningRank, &c.ClosingRank); err != nil {
			return nil, err
		}
		colleges = append(colleges, c)
	}
	return colleges, rows.Err()
}
