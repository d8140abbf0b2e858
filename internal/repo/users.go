package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"gigboard/internal/domain"
)

const userColumns = `id,name,email,bio,skills_json,location,hourly_rate,rating,review_count,created_at,updated_at`

func scanUserRow(scan func(dest ...any) error) (domain.User, error) {
	var u domain.User
	var name, email, bio, skills, location sql.NullString
	var hourlyRate sql.NullFloat64
	err := scan(&u.ID, &name, &email, &bio, &skills, &location, &hourlyRate, &u.Rating, &u.ReviewCount, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	if err != nil {
		return u, err
	}
	u.Name = name.String
	u.Email = email.String
	u.Bio = bio.String
	u.Location = location.String
	if skills.Valid && skills.String != "" {
		_ = json.Unmarshal([]byte(skills.String), &u.Skills)
	}
	if hourlyRate.Valid {
		u.HourlyRate = &hourlyRate.Float64
	}
	return u, nil
}

func (r Repo) GetUser(ctx context.Context, id string) (domain.User, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=?`, id)
	return scanUserRow(row.Scan)
}

// EnsureUser inserts a user row if one does not exist yet. Login and API key
// creation both funnel through here so foreign keys always resolve.
func (r Repo) EnsureUser(ctx context.Context, id, name, email, now string) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO users(id,name,email,created_at,updated_at) VALUES (?,?,?,?,?) ON CONFLICT(id) DO NOTHING`,
		id, nullable(name), nullable(email), now, now)
	return err
}

// UserPatch carries optional profile updates; nil means leave unchanged.
type UserPatch struct {
	Name       *string
	Bio        *string
	Location   *string
	HourlyRate *float64
	Skills     []string
	SkillsSet  bool
}

func (r Repo) UpdateUserProfile(ctx context.Context, id string, p UserPatch, updatedAt string) error {
	var fields []string
	var args []any
	if p.Name != nil {
		fields = append(fields, "name=?")
		args = append(args, *p.Name)
	}
	if p.Bio != nil {
		fields = append(fields, "bio=?")
		args = append(args, *p.Bio)
	}
	if p.Location != nil {
		fields = append(fields, "location=?")
		args = append(args, *p.Location)
	}
	if p.HourlyRate != nil {
		fields = append(fields, "hourly_rate=?")
		args = append(args, *p.HourlyRate)
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
	query := "UPDATE users SET " + strings.Join(fields, ", ") + ", updated_at=? WHERE id=?"
	args = append(args, updatedAt, id)
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateUserRating overwrites the cached aggregate on the user row.
func (r Repo) UpdateUserRating(ctx context.Context, id string, rating float64, reviewCount int, updatedAt string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE users SET rating=?, review_count=?, updated_at=? WHERE id=?`,
		rating, reviewCount, updatedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
