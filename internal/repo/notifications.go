package repo

import (
	"context"
	"database/sql"

	"gigboard/internal/domain"
)

const notificationColumns = `id,user_id,kind,gig_id,bid_id,gig_title,message,created_at,delivered_at`

func scanNotificationRow(scan func(dest ...any) error) (domain.Notification, error) {
	var n domain.Notification
	var delivered sql.NullString
	err := scan(&n.ID, &n.UserID, &n.Kind, &n.GigID, &n.BidID, &n.GigTitle, &n.Message, &n.CreatedAt, &delivered)
	if err == sql.ErrNoRows {
		return n, ErrNotFound
	}
	if err != nil {
		return n, err
	}
	if delivered.Valid {
		n.DeliveredAt = &delivered.String
	}
	return n, nil
}

func (r Repo) InsertNotification(ctx context.Context, n domain.Notification) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO notifications(id,user_id,kind,gig_id,bid_id,gig_title,message,created_at,delivered_at) VALUES (?,?,?,?,?,?,?,?,?)`,
		n.ID, n.UserID, n.Kind, n.GigID, n.BidID, n.GigTitle, n.Message, n.CreatedAt, nullableStringPtr(n.DeliveredAt))
	return err
}

func (r Repo) MarkNotificationDelivered(ctx context.Context, id, deliveredAt string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE notifications SET delivered_at=? WHERE id=? AND delivered_at IS NULL`, deliveredAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListNotifications returns a user's notifications newest first. When
// undeliveredOnly is set, only queued notifications come back.
func (r Repo) ListNotifications(ctx context.Context, userID string, undeliveredOnly bool, limit int) ([]domain.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE user_id=?`
	args := []any{userID}
	if undeliveredOnly {
		query += ` AND delivered_at IS NULL`
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Notification
	for rows.Next() {
		n, err := scanNotificationRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, n)
	}
	return res, rows.Err()
}
