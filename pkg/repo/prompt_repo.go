package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/opentriagem/triagem/pkg/models"
)

// PromptRepo stores versioned prompt templates. Content is immutable per
// (name, version); only the active flag moves.
type PromptRepo struct {
	db *sql.DB
}

func NewPromptRepo(db *sql.DB) *PromptRepo {
	return &PromptRepo{db: db}
}

func scanPrompt(row interface{ Scan(...any) error }) (*models.PromptTemplate, error) {
	var p models.PromptTemplate
	err := row.Scan(&p.ID, &p.Name, &p.Version, &p.Content, &p.IsActive, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetActive returns the single active version of a named template.
func (r *PromptRepo) GetActive(ctx context.Context, name string) (*models.PromptTemplate, error) {
	const q = `SELECT id, name, version, content, is_active, created_at
		FROM prompt_templates WHERE name = $1 AND is_active`
	p, err := scanPrompt(r.db.QueryRowContext(ctx, q, name))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get active prompt %s: %w", name, err)
	}
	return p, nil
}

// InsertVersion adds the next version of a named template, inactive. The
// version number is computed inside the statement so concurrent inserts fail
// on the (name, version) unique key instead of silently colliding.
func (r *PromptRepo) InsertVersion(ctx context.Context, name, content string) (*models.PromptTemplate, error) {
	const q = `INSERT INTO prompt_templates (name, version, content, is_active)
		SELECT $1, COALESCE(MAX(version), 0) + 1, $2, false
		FROM prompt_templates WHERE name = $1
		RETURNING id, name, version, content, is_active, created_at`
	p, err := scanPrompt(r.db.QueryRowContext(ctx, q, name, content))
	if err != nil {
		return nil, fmt.Errorf("insert prompt version %s: %w", name, err)
	}
	return p, nil
}

// Activate moves the active flag of a name to the given version. Both steps
// run in one transaction so the partial-unique index never sees two actives.
func (r *PromptRepo) Activate(ctx context.Context, name string, version int) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("activate prompt %s: %w", name, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`UPDATE prompt_templates SET is_active = false WHERE name = $1 AND is_active`, name); err != nil {
		return fmt.Errorf("deactivate prompt %s: %w", name, err)
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE prompt_templates SET is_active = true WHERE name = $1 AND version = $2`, name, version)
	if err != nil {
		return fmt.Errorf("activate prompt %s v%d: %w", name, version, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

// ListByName returns all versions of a named template, oldest first.
func (r *PromptRepo) ListByName(ctx context.Context, name string) ([]*models.PromptTemplate, error) {
	const q = `SELECT id, name, version, content, is_active, created_at
		FROM prompt_templates WHERE name = $1 ORDER BY version`
	rows, err := r.db.QueryContext(ctx, q, name)
	if err != nil {
		return nil, fmt.Errorf("list prompt versions %s: %w", name, err)
	}
	defer rows.Close()

	var out []*models.PromptTemplate
	for rows.Next() {
		p, err := scanPrompt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan prompt: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
