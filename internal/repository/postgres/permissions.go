package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/learnhub/iam-service/internal/core/domain"
	"github.com/learnhub/iam-service/internal/core/port"
	"github.com/learnhub/iam-service/internal/repository"
)

var permissionColumns = []string{
	"id",
	"name",
	"resource",
	"action",
	"description",
	"created_at",
}

// PermissionRepository implements port.PermissionRepository using PostgreSQL.
type PermissionRepository struct {
	pool    pgPool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewPermissionRepository wires a PostgreSQL-backed permission repository.
func NewPermissionRepository(pool pgPool) *PermissionRepository {
	return &PermissionRepository{
		pool:    pool,
		exec:    pool,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// WithTx returns a repository instance operating within the supplied transaction.
func (r *PermissionRepository) WithTx(tx pgx.Tx) *PermissionRepository {
	if tx == nil {
		return r
	}
	return &PermissionRepository{
		pool:    r.pool,
		exec:    tx,
		builder: r.builder,
	}
}

// Create inserts a new permission definition.
func (r *PermissionRepository) Create(ctx context.Context, permission domain.Permission) error {
	stmt, args, err := r.builder.Insert("iam.permissions").
		Columns(permissionColumns...).
		Values(
			permission.ID,
			permission.Name,
			permission.Resource,
			permission.Action,
			optionalString(permission.Description),
			permission.CreatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert permission sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicate
		}
		return fmt.Errorf("insert permission: %w", err)
	}

	return nil
}

// GetByID retrieves a permission by identifier.
func (r *PermissionRepository) GetByID(ctx context.Context, id string) (*domain.Permission, error) {
	return r.getBy(ctx, squirrel.Eq{"id": id})
}

// GetByName retrieves a permission by its canonical name.
func (r *PermissionRepository) GetByName(ctx context.Context, name string) (*domain.Permission, error) {
	return r.getBy(ctx, squirrel.Eq{"name": name})
}

func (r *PermissionRepository) getBy(ctx context.Context, pred squirrel.Eq) (*domain.Permission, error) {
	stmt, args, err := r.builder.
		Select(permissionColumns...).
		From("iam.permissions").
		Where(pred).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select permission sql: %w", err)
	}

	var permission domain.Permission
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(
		&permission.ID,
		&permission.Name,
		&permission.Resource,
		&permission.Action,
		&permission.Description,
		&permission.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan permission: %w", err)
	}

	return &permission, nil
}

// List returns permission definitions, optionally filtered by resource.
func (r *PermissionRepository) List(ctx context.Context, filter port.PermissionFilter) ([]domain.Permission, error) {
	query := r.builder.
		Select(permissionColumns...).
		From("iam.permissions").
		OrderBy("name ASC")

	if filter.Resource != "" {
		query = query.Where(squirrel.Eq{"resource": filter.Resource})
	}
	if filter.Limit > 0 {
		query = query.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		query = query.Offset(uint64(filter.Offset))
	}

	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list permissions sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query permissions: %w", err)
	}
	defer rows.Close()

	return collectPermissions(rows)
}

// Count returns the number of permissions matching the filter.
func (r *PermissionRepository) Count(ctx context.Context, filter port.PermissionFilter) (int, error) {
	query := r.builder.Select("COUNT(*)").From("iam.permissions")

	if filter.Resource != "" {
		query = query.Where(squirrel.Eq{"resource": filter.Resource})
	}

	stmt, args, err := query.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count permissions sql: %w", err)
	}

	var count int64
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("scan permissions count: %w", err)
	}

	return int(count), nil
}

// Delete removes a permission. Grant rows cascade.
func (r *PermissionRepository) Delete(ctx context.Context, id string) error {
	stmt, args, err := r.builder.Delete("iam.permissions").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete permission sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("delete permission: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// ListByRoles returns the distinct permissions granted to the given roles.
func (r *PermissionRepository) ListByRoles(ctx context.Context, roleIDs []string) ([]domain.Permission, error) {
	if len(roleIDs) == 0 {
		return []domain.Permission{}, nil
	}

	stmt, args, err := r.builder.
		Select(
			"DISTINCT p.id",
			"p.name",
			"p.resource",
			"p.action",
			"p.description",
			"p.created_at",
		).
		From("iam.permissions p").
		Join("iam.role_permissions rp ON rp.permission_id = p.id").
		Where(squirrel.Eq{"rp.role_id": roleIDs}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list role permissions sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query role permissions: %w", err)
	}
	defer rows.Close()

	return collectPermissions(rows)
}

// ListDirectByUser returns permissions granted to the user bypassing roles.
func (r *PermissionRepository) ListDirectByUser(ctx context.Context, userID string) ([]domain.Permission, error) {
	stmt, args, err := r.builder.
		Select(
			"p.id",
			"p.name",
			"p.resource",
			"p.action",
			"p.description",
			"p.created_at",
		).
		From("iam.permissions p").
		Join("iam.user_permissions up ON up.permission_id = p.id").
		Where(squirrel.Eq{"up.user_id": userID}).
		OrderBy("p.name ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list user permissions sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query user permissions: %w", err)
	}
	defer rows.Close()

	return collectPermissions(rows)
}

// GrantToUser adds a direct user grant, swallowing duplicates.
func (r *PermissionRepository) GrantToUser(ctx context.Context, userID, permissionID string) error {
	stmt, args, err := r.builder.Insert("iam.user_permissions").
		Columns("user_id", "permission_id", "granted_at").
		Values(userID, permissionID, time.Now().UTC()).
		Suffix("ON CONFLICT DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("build grant user permission sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("grant user permission: %w", err)
	}

	return nil
}

// RevokeFromUser drops a direct user grant.
func (r *PermissionRepository) RevokeFromUser(ctx context.Context, userID, permissionID string) error {
	stmt, args, err := r.builder.Delete("iam.user_permissions").
		Where(squirrel.Eq{"user_id": userID, "permission_id": permissionID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build revoke user permission sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("revoke user permission: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

func collectPermissions(rows pgx.Rows) ([]domain.Permission, error) {
	permissions := make([]domain.Permission, 0)
	for rows.Next() {
		var permission domain.Permission
		if err := rows.Scan(
			&permission.ID,
			&permission.Name,
			&permission.Resource,
			&permission.Action,
			&permission.Description,
			&permission.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan permission: %w", err)
		}
		permissions = append(permissions, permission)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate permissions: %w", err)
	}

	return permissions, nil
}

var _ port.PermissionRepository = (*PermissionRepository)(nil)
