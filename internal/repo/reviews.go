package repo

import (
	"context"
	"database/sql"

	"gigboard/internal/domain"
)

const reviewColumns = `id,gig_id,reviewer_id,reviewee_id,rating,comment,type,created_at`

func scanReviewRow(scan func(dest ...any) error) (domain.Review, error) {
	var rv domain.Review
	var comment sql.NullString
	err := scan(&rv.ID, &rv.GigID, &rv.ReviewerID, &rv.RevieweeID, &rv.Rating, &comment, &rv.Type, &rv.CreatedAt)
	if err == sql.ErrNoRows {
		return rv, ErrNotFound
	}
	if err != nil {
		return rv, err
	}
	rv.Comment = comment.String
	return rv, nil
}

func (r Repo) InsertReviewTx(ctx context.Context, tx *sql.Tx, rv domain.Review) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO reviews(id,gig_id,reviewer_id,reviewee_id,rating,comment,type,created_at) VALUES (?,?,?,?,?,?,?,?)`,
		rv.ID, rv.GigID, rv.ReviewerID, rv.RevieweeID, rv.Rating, nullable(rv.Comment), rv.Type, rv.CreatedAt)
	return err
}

func (r Repo) ListReviewsForUser(ctx context.Context, revieweeID string) ([]domain.Review, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+reviewColumns+` FROM reviews WHERE reviewee_id=? ORDER BY created_at DESC, id DESC`, revieweeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Review
	for rows.Next() {
		rv, err := scanReviewRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, rv)
	}
	return res, rows.Err()
}

// ReviewAggregate computes the average rating and count across every review
// the user has received. Concurrent reviewers may both read before either
// writes the cached aggregate back; the later write wins.
func (r Repo) ReviewAggregate(ctx context.Context, revieweeID string) (avg float64, count int, err error) {
	row := r.DB.QueryRowContext(ctx, `SELECT COALESCE(AVG(rating),0), COUNT(*) FROM reviews WHERE reviewee_id=?`, revieweeID)
	err = row.Scan(&avg, &count)
	return avg, count, err
}
