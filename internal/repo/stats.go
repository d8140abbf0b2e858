package repo

import (
	"context"

	"gigboard/internal/domain"
)

// UserStats aggregates activity counters for both sides of the marketplace.
func (r Repo) UserStats(ctx context.Context, userID string) (domain.UserStats, error) {
	var s domain.UserStats

	row := r.DB.QueryRowContext(ctx, `
SELECT COUNT(*),
       COALESCE(SUM(CASE WHEN status='completed' THEN 1 ELSE 0 END),0)
FROM gigs WHERE owner_id=?`, userID)
	if err := row.Scan(&s.GigsPosted, &s.GigsCompleted); err != nil {
		return s, err
	}

	row = r.DB.QueryRowContext(ctx, `
SELECT COUNT(*),
       COALESCE(SUM(CASE WHEN status='hired' THEN 1 ELSE 0 END),0),
       COALESCE(SUM(CASE WHEN status='hired' THEN price ELSE 0 END),0)
FROM bids WHERE freelancer_id=?`, userID)
	if err := row.Scan(&s.BidsSubmitted, &s.BidsWon, &s.TotalEarnings); err != nil {
		return s, err
	}

	row = r.DB.QueryRowContext(ctx, `
SELECT COALESCE(SUM(b.price),0)
FROM bids b JOIN gigs g ON g.id=b.gig_id
WHERE g.owner_id=? AND b.status='hired'`, userID)
	if err := row.Scan(&s.TotalSpent); err != nil {
		return s, err
	}

	if s.BidsSubmitted > 0 {
		s.SuccessRate = float64(s.BidsWon) / float64(s.BidsSubmitted) * 100
	}
	return s, nil
}
