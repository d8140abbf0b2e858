package repo

import (
	"context"
	"database/sql"

	"gigboard/internal/domain"
)

const bidColumns = `id,gig_id,freelancer_id,message,price,status,created_at,updated_at`

func scanBidRow(scan func(dest ...any) error) (domain.Bid, error) {
	var b domain.Bid
	err := scan(&b.ID, &b.GigID, &b.FreelancerID, &b.Message, &b.Price, &b.Status, &b.CreatedAt, &b.UpdatedAt)
	if err == sql.ErrNoRows {
		return b, ErrNotFound
	}
	return b, err
}

func (r Repo) InsertBid(ctx context.Context, tx *sql.Tx, b domain.Bid) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO bids(id,gig_id,freelancer_id,message,price,status,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?)`,
		b.ID, b.GigID, b.FreelancerID, b.Message, b.Price, b.Status, b.CreatedAt, b.UpdatedAt)
	return err
}

func (r Repo) GetBid(ctx context.Context, id string) (domain.Bid, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+bidColumns+` FROM bids WHERE id=?`, id)
	return scanBidRow(row.Scan)
}

func (r Repo) GetBidTx(ctx context.Context, tx *sql.Tx, id string) (domain.Bid, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+bidColumns+` FROM bids WHERE id=?`, id)
	return scanBidRow(row.Scan)
}

func (r Repo) BidExists(ctx context.Context, gigID, freelancerID string) (bool, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT 1 FROM bids WHERE gig_id=? AND freelancer_id=? LIMIT 1`, gigID, freelancerID)
	var n int
	err := row.Scan(&n)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

func (r Repo) ListBidsForGig(ctx context.Context, gigID string) ([]domain.Bid, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+bidColumns+` FROM bids WHERE gig_id=? ORDER BY created_at DESC, id DESC`, gigID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Bid
	for rows.Next() {
		b, err := scanBidRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, b)
	}
	return res, rows.Err()
}

// ListBidsForBidder returns a bidder's bids newest first, each joined with a
// summary of its gig. The join is LEFT so a bid on a since-deleted gig still
// shows up, with an empty summary.
func (r Repo) ListBidsForBidder(ctx context.Context, freelancerID string) ([]domain.BidWithGig, error) {
	rows, err := r.DB.QueryContext(ctx, `
SELECT b.id,b.gig_id,b.freelancer_id,b.message,b.price,b.status,b.created_at,b.updated_at,
       g.id,g.title,g.budget,g.status
FROM bids b
LEFT JOIN gigs g ON g.id=b.gig_id
WHERE b.freelancer_id=?
ORDER BY b.created_at DESC, b.id DESC`, freelancerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.BidWithGig
	for rows.Next() {
		var item domain.BidWithGig
		var gigID, gigTitle, gigStatus sql.NullString
		var gigBudget sql.NullFloat64
		if err := rows.Scan(&item.ID, &item.GigID, &item.FreelancerID, &item.Message, &item.Price, &item.Status, &item.CreatedAt, &item.UpdatedAt,
			&gigID, &gigTitle, &gigBudget, &gigStatus); err != nil {
			return nil, err
		}
		item.Gig = domain.GigSummary{
			ID:     gigID.String,
			Title:  gigTitle.String,
			Budget: gigBudget.Float64,
			Status: gigStatus.String,
		}
		res = append(res, item)
	}
	return res, rows.Err()
}

// MarkBidHiredTx transitions a pending bid to hired. The status guard makes
// the write a compare-and-swap against concurrent hire attempts.
func (r Repo) MarkBidHiredTx(ctx context.Context, tx *sql.Tx, bidID, updatedAt string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE bids SET status='hired', updated_at=? WHERE id=? AND status='pending'`, updatedAt, bidID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// RejectBidsForGigTx settles every pending bid on the gig as rejected. Used
// when a gig is withdrawn; the bid rows stay behind as history.
func (r Repo) RejectBidsForGigTx(ctx context.Context, tx *sql.Tx, gigID, updatedAt string) (int64, error) {
	res, err := tx.ExecContext(ctx, `UPDATE bids SET status='rejected', updated_at=? WHERE gig_id=? AND status='pending'`,
		updatedAt, gigID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// RejectSiblingBidsTx finalizes every other pending bid on the gig as rejected.
func (r Repo) RejectSiblingBidsTx(ctx context.Context, tx *sql.Tx, gigID, winningBidID, updatedAt string) (int64, error) {
	res, err := tx.ExecContext(ctx, `UPDATE bids SET status='rejected', updated_at=? WHERE gig_id=? AND id<>? AND status='pending'`,
		updatedAt, gigID, winningBidID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r Repo) CountBidsByStatus(ctx context.Context, gigID string) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, count(*) FROM bids WHERE gig_id=? GROUP BY status`, gigID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		res[status] = count
	}
	return res, rows.Err()
}
