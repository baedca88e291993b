// Package postgres implements repository.Store on PostgreSQL via pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"squadkeeper.io/keeper/internal/domain"
	"squadkeeper.io/keeper/internal/repository"
)

const uniqueViolation = "23505"

// Repository implements repository.Store on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

var _ repository.Store = (*Repository)(nil)

// New constructs a Repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const templateColumns = `id, name, version, display_name, category, is_active, is_default, member_configs, created_at`

const deploymentColumns = `account_id, current_template_id, current_version, current_template_name,
	external_resource_id, deleted_resource_id, delete_failed, created_at, updated_at`

const transitionColumns = `id, account_id, seq, from_version, from_template_name, from_template_id,
	to_version, to_template_name, to_template_id, old_resource_id, new_resource_id,
	old_resource_deleted, actor, is_rollback, created_at`

// CreateTemplate inserts a stored template.
func (r *Repository) CreateTemplate(ctx context.Context, tpl *domain.Template) error {
	if tpl.CreatedAt.IsZero() {
		tpl.CreatedAt = time.Now().UTC()
	}
	members := tpl.MemberConfigs
	if len(members) == 0 {
		members = []byte("[]")
	}
	const query = `INSERT INTO templates (` + templateColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.pool.Exec(ctx, query, tpl.ID, tpl.Name, tpl.Version, tpl.DisplayName, tpl.Category,
		tpl.IsActive, tpl.IsDefault, members, tpl.CreatedAt)
	return mapErr(err)
}

// GetTemplate fetches a stored template by id.
func (r *Repository) GetTemplate(ctx context.Context, id string) (*domain.Template, error) {
	const query = `SELECT ` + templateColumns + ` FROM templates WHERE id = $1`
	tpl, err := scanTemplate(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, mapErr(err)
	}
	return tpl, nil
}

// ListTemplates returns stored templates, optionally filtered by name.
func (r *Repository) ListTemplates(ctx context.Context, name string) ([]domain.Template, error) {
	const query = `SELECT ` + templateColumns + ` FROM templates
		WHERE ($1 = '' OR name = $1)
		ORDER BY name, created_at, id`
	rows, err := r.pool.Query(ctx, query, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Template
	for rows.Next() {
		tpl, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *tpl)
	}
	return out, rows.Err()
}

// SetTemplateActive toggles the active flag.
func (r *Repository) SetTemplateActive(ctx context.Context, id string, active bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE templates SET is_active = $2 WHERE id = $1`, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// GetDeployment loads a deployment and its ordered history.
func (r *Repository) GetDeployment(ctx context.Context, accountID string) (*domain.Deployment, error) {
	const query = `SELECT ` + deploymentColumns + ` FROM deployments WHERE account_id = $1`
	dep, err := scanDeployment(r.pool.QueryRow(ctx, query, accountID))
	if err != nil {
		return nil, mapErr(err)
	}
	dep.History, err = r.ListTransitions(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return dep, nil
}

// ListDeployments returns deployments matching filter, without history.
func (r *Repository) ListDeployments(ctx context.Context, filter repository.DeploymentFilter) ([]domain.Deployment, error) {
	const query = `SELECT ` + deploymentColumns + ` FROM deployments
		WHERE (cardinality($1::text[]) = 0 OR account_id = ANY($1))
		  AND ($2 = '' OR current_version = $2)
		ORDER BY account_id`
	ids := filter.AccountIDs
	if ids == nil {
		ids = []string{}
	}
	rows, err := r.pool.Query(ctx, query, ids, filter.CurrentVersion)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Deployment
	for rows.Next() {
		dep, err := scanDeployment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *dep)
	}
	return out, rows.Err()
}

// AppendTransition inserts t with the next sequence number for its account.
func (r *Repository) AppendTransition(ctx context.Context, t *domain.Transition) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		return insertTransition(ctx, tx, t)
	})
}

// ListTransitions returns an account's history in sequence order.
func (r *Repository) ListTransitions(ctx context.Context, accountID string) ([]domain.Transition, error) {
	const query = `SELECT ` + transitionColumns + ` FROM deployment_transitions
		WHERE account_id = $1 ORDER BY seq`
	rows, err := r.pool.Query(ctx, query, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Transition
	for rows.Next() {
		t, err := scanTransition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// LastTransition returns the highest-sequence transition for an account.
func (r *Repository) LastTransition(ctx context.Context, accountID string) (*domain.Transition, error) {
	const query = `SELECT ` + transitionColumns + ` FROM deployment_transitions
		WHERE account_id = $1 ORDER BY seq DESC LIMIT 1`
	t, err := scanTransition(r.pool.QueryRow(ctx, query, accountID))
	if err != nil {
		return nil, mapErr(err)
	}
	return t, nil
}

// CommitTransition upserts the deployment row and appends t in one
// transaction. The row lock taken by the upsert serializes sequence
// assignment per account.
func (r *Repository) CommitTransition(ctx context.Context, dep *domain.Deployment, t *domain.Transition) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		const upsert = `INSERT INTO deployments (` + deploymentColumns + `)
			VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
			ON CONFLICT (account_id) DO UPDATE SET
				current_template_id   = EXCLUDED.current_template_id,
				current_version       = EXCLUDED.current_version,
				current_template_name = EXCLUDED.current_template_name,
				external_resource_id  = EXCLUDED.external_resource_id,
				deleted_resource_id   = EXCLUDED.deleted_resource_id,
				delete_failed         = EXCLUDED.delete_failed,
				updated_at            = NOW()
			RETURNING created_at, updated_at`
		err := tx.QueryRow(ctx, upsert, dep.AccountID, dep.CurrentTemplateID, dep.CurrentVersion,
			dep.CurrentTemplateName, dep.ExternalResourceID, dep.DeletedResourceID, dep.DeleteFailed,
		).Scan(&dep.CreatedAt, &dep.UpdatedAt)
		if err != nil {
			return fmt.Errorf("upsert deployment: %w", err)
		}
		if err := insertTransition(ctx, tx, t); err != nil {
			return fmt.Errorf("insert transition: %w", err)
		}
		return nil
	})
}

func insertTransition(ctx context.Context, tx pgx.Tx, t *domain.Transition) error {
	if t.Timestamp.IsZero() {
		t.Timestamp = time.Now().UTC()
	}
	const query = `INSERT INTO deployment_transitions (` + transitionColumns + `)
		SELECT $1, $2, COALESCE(MAX(seq), 0) + 1, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14
		FROM deployment_transitions WHERE account_id = $2
		RETURNING seq`
	err := tx.QueryRow(ctx, query, t.ID, t.AccountID, t.FromVersion, t.FromTemplateName, t.FromTemplateID,
		t.ToVersion, t.ToTemplateName, t.ToTemplateID, t.OldResourceID, t.NewResourceID,
		t.OldResourceDeleted, t.Actor, t.IsRollback, t.Timestamp,
	).Scan(&t.Seq)
	return mapErr(err)
}

func scanTemplate(row pgx.Row) (*domain.Template, error) {
	var tpl domain.Template
	var members []byte
	if err := row.Scan(&tpl.ID, &tpl.Name, &tpl.Version, &tpl.DisplayName, &tpl.Category,
		&tpl.IsActive, &tpl.IsDefault, &members, &tpl.CreatedAt); err != nil {
		return nil, err
	}
	tpl.MemberConfigs = members
	return &tpl, nil
}

func scanDeployment(row pgx.Row) (*domain.Deployment, error) {
	var dep domain.Deployment
	if err := row.Scan(&dep.AccountID, &dep.CurrentTemplateID, &dep.CurrentVersion, &dep.CurrentTemplateName,
		&dep.ExternalResourceID, &dep.DeletedResourceID, &dep.DeleteFailed, &dep.CreatedAt, &dep.UpdatedAt); err != nil {
		return nil, err
	}
	return &dep, nil
}

func scanTransition(row pgx.Row) (*domain.Transition, error) {
	var t domain.Transition
	if err := row.Scan(&t.ID, &t.AccountID, &t.Seq, &t.FromVersion, &t.FromTemplateName, &t.FromTemplateID,
		&t.ToVersion, &t.ToTemplateName, &t.ToTemplateID, &t.OldResourceID, &t.NewResourceID,
		&t.OldResourceDeleted, &t.Actor, &t.IsRollback, &t.Timestamp); err != nil {
		return nil, err
	}
	return &t, nil
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return repository.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return repository.ErrDuplicate
	}
	return err
}
