package repository

import (
	"context"

	"github.com/khdrvss/co-found-sub000/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ProfileRepository struct {
	pool *pgxpool.Pool
}

func NewProfileRepository(pool *pgxpool.Pool) *ProfileRepository {
	return &ProfileRepository{pool: pool}
}

const profileColumns = `id, user_id, headline, bio, skills, looking_for, location, visible, created_at, updated_at`

func scanProfile(row pgx.Row) (*model.Profile, error) {
	p := &model.Profile{}
	err := row.Scan(
		&p.ID, &p.UserID, &p.Headline, &p.Bio, &p.Skills,
		&p.LookingFor, &p.Location, &p.Visible, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Upsert creates or replaces the caller's listing; one profile per user.
func (r *ProfileRepository) Upsert(ctx context.Context, userID string, req *model.ProfileUpsertRequest) (*model.Profile, error) {
	visible := true
	if req.Visible != nil {
		visible = *req.Visible
	}
	return scanProfile(r.pool.QueryRow(ctx, `
		INSERT INTO profiles (user_id, headline, bio, skills, looking_for, location, visible)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id) DO UPDATE SET
			headline = EXCLUDED.headline,
			bio = EXCLUDED.bio,
			skills = EXCLUDED.skills,
			looking_for = EXCLUDED.looking_for,
			location = EXCLUDED.location,
			visible = EXCLUDED.visible,
			updated_at = NOW()
		RETURNING `+profileColumns,
		userID, req.Headline, req.Bio, req.Skills, req.LookingFor, req.Location, visible))
}

func (r *ProfileRepository) GetByUserID(ctx context.Context, userID string) (*model.Profile, error) {
	return scanProfile(r.pool.QueryRow(ctx, `
		SELECT `+profileColumns+` FROM profiles WHERE user_id = $1
	`, userID))
}

func (r *ProfileRepository) Search(ctx context.Context, q *model.ProfileSearchQuery) ([]model.Profile, error) {
	limit := q.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+profileColumns+`
		FROM profiles
		WHERE visible
		  AND ($1 = '' OR $1 = ANY(skills))
		  AND ($2 = '' OR looking_for = $2)
		  AND ($3 = '' OR location ILIKE '%' || $3 || '%')
		ORDER BY updated_at DESC
		LIMIT $4 OFFSET $5
	`, q.Skill, q.LookingFor, q.Location, limit, q.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	profiles := make([]model.Profile, 0)
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, *p)
	}
	return profiles, rows.Err()
}
