package repository

import (
	"context"

	"github.com/khdrvss/co-found-sub000/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ProjectRepository struct {
	pool *pgxpool.Pool
}

func NewProjectRepository(pool *pgxpool.Pool) *ProjectRepository {
	return &ProjectRepository{pool: pool}
}

const projectColumns = `id, owner_id, name, pitch, stage, open_roles, website_url, created_at, updated_at`

func scanProject(row pgx.Row) (*model.Project, error) {
	p := &model.Project{}
	err := row.Scan(
		&p.ID, &p.OwnerID, &p.Name, &p.Pitch, &p.Stage,
		&p.OpenRoles, &p.WebsiteURL, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *ProjectRepository) Create(ctx context.Context, ownerID string, req *model.ProjectUpsertRequest) (*model.Project, error) {
	return scanProject(r.pool.QueryRow(ctx, `
		INSERT INTO projects (owner_id, name, pitch, stage, open_roles, website_url)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+projectColumns,
		ownerID, req.Name, req.Pitch, req.Stage, req.OpenRoles, req.WebsiteURL))
}

func (r *ProjectRepository) GetByID(ctx context.Context, id string) (*model.Project, error) {
	return scanProject(r.pool.QueryRow(ctx, `
		SELECT `+projectColumns+` FROM projects WHERE id = $1
	`, id))
}

// Update only touches rows owned by ownerID; a mismatch surfaces as
// pgx.ErrNoRows so handlers can 404 without a separate ownership check.
func (r *ProjectRepository) Update(ctx context.Context, id, ownerID string, req *model.ProjectUpsertRequest) (*model.Project, error) {
	return scanProject(r.pool.QueryRow(ctx, `
		UPDATE projects
		SET name = $3, pitch = $4, stage = $5, open_roles = $6, website_url = $7, updated_at = NOW()
		WHERE id = $1 AND owner_id = $2
		RETURNING `+projectColumns,
		id, ownerID, req.Name, req.Pitch, req.Stage, req.OpenRoles, req.WebsiteURL))
}

func (r *ProjectRepository) Delete(ctx context.Context, id, ownerID string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM projects WHERE id = $1 AND owner_id = $2
	`, id, ownerID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *ProjectRepository) Search(ctx context.Context, stage, role string, limit, offset int) ([]model.Project, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+projectColumns+`
		FROM projects
		WHERE ($1 = '' OR stage = $1)
		  AND ($2 = '' OR $2 = ANY(open_roles))
		ORDER BY updated_at DESC
		LIMIT $3 OFFSET $4
	`, stage, role, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	projects := make([]model.Project, 0)
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, *p)
	}
	return projects, rows.Err()
}

func (r *ProjectRepository) CountTotal(ctx context.Context) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM projects`).Scan(&count)
	return count, err
}
