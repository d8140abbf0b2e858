package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gigboard/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// ErrUnavailable wraps storage-layer contention the caller may retry manually.
var ErrUnavailable = errors.New("storage unavailable")

// IsUniqueViolation reports whether err is a UNIQUE constraint failure.
func IsUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// IsBusy reports whether err is SQLite lock contention.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}

const gigColumns = `id,owner_id,title,description,budget,category,skills_json,status,hired_freelancer_id,created_at,updated_at`

func scanGigRow(scan func(dest ...any) error) (domain.Gig, error) {
	var g domain.Gig
	var skills, hired sql.NullString
	err := scan(&g.ID, &g.OwnerID, &g.Title, &g.Description, &g.Budget, &g.Category, &skills, &g.Status, &hired, &g.CreatedAt, &g.UpdatedAt)
	if err == sql.ErrNoRows {
		return g, ErrNotFound
	}
	if err != nil {
		return g, err
	}
	if skills.Valid && skills.String != "" {
		_ = json.Unmarshal([]byte(skills.String), &g.Skills)
	}
	if hired.Valid {
		g.HiredFreelancerID = &hired.String
	}
	return g, nil
}

func (r Repo) InsertGig(ctx context.Context, tx *sql.Tx, g domain.Gig) error {
	skills, err := marshalStringSlice(g.Skills)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO gigs(id,owner_id,title,description,budget,category,skills_json,status,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		g.ID, g.OwnerID, g.Title, g.Description, g.Budget, g.Category, nullableStringPtr(skills), g.Status, g.CreatedAt, g.UpdatedAt)
	return err
}

func (r Repo) GetGig(ctx context.Context, id string) (domain.Gig, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+gigColumns+` FROM gigs WHERE id=?`, id)
	return scanGigRow(row.Scan)
}

func (r Repo) GetGigTx(ctx context.Context, tx *sql.Tx, id string) (domain.Gig, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+gigColumns+` FROM gigs WHERE id=?`, id)
	return scanGigRow(row.Scan)
}

type GigFilters struct {
	Status          string
	OwnerID         string
	Search          string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListGigs(ctx context.Context, f GigFilters) ([]domain.Gig, error) {
	var clauses []string
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.OwnerID != "" {
		clauses = append(clauses, "owner_id=?")
		args = append(args, f.OwnerID)
	}
	if f.Search != "" {
		pattern := "%" + strings.ToLower(f.Search) + "%"
		clauses = append(clauses, "(LOWER(title) LIKE ? OR LOWER(description) LIKE ?)")
		args = append(args, pattern, pattern)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + gigColumns + ` FROM gigs ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Gig
	for rows.Next() {
		g, err := scanGigRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, g)
	}
	return res, rows.Err()
}

// GigPatch carries optional gig field updates; nil means leave unchanged.
type GigPatch struct {
	Title       *string
	Description *string
	Budget      *float64
	Category    *string
	Skills      []string
	SkillsSet   bool
}

func (r Repo) UpdateGig(ctx context.Context, id string, p GigPatch, updatedAt string) error {
	var fields []string
	var args []any
	if p.Title != nil {
		fields = append(fields, "title=?")
		args = append(args, *p.Title)
	}
	if p.Description != nil {
		fields = append(fields, "description=?")
		args = append(args, *p.Description)
	}
	if p.Budget != nil {
		fields = append(fields, "budget=?")
		args = append(args, *p.Budget)
	}
	if p.Category != nil {
		fields = append(fields, "category=?")
		args = append(args, *p.Category)
	}
	if p.SkillsSet {
		skills, err := marshalStringSlice(p.Skills)
		if err != nil {
			return err
		}
		fields = append(fields, "skills_json=?")
		args = append(args, nullableStringPtr(skills))
	}
	if len(fields) == 0 {
		return nil
	}
	fields = append(fields, "updated_at=?")
	args = append(args, updatedAt, id)
	res, err := r.DB.ExecContext(ctx, fmt.Sprintf(`UPDATE gigs SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteGig(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM gigs WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// AssignGigTx flips an open gig to assigned and records the hired freelancer.
// The status guard makes the write a compare-and-swap: a concurrent hire that
// already assigned the gig leaves zero rows affected.
func (r Repo) AssignGigTx(ctx context.Context, tx *sql.Tx, gigID, freelancerID, updatedAt string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE gigs SET status='assigned', hired_freelancer_id=?, updated_at=? WHERE id=? AND status='open'`,
		freelancerID, updatedAt, gigID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// --- helpers ---

func marshalStringSlice(in []string) (*string, error) {
	if len(in) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}
	s := string(b)
	return &s, nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}
