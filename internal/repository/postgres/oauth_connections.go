package postgres

import (
	"context"
	"errors"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/learnhub/iam-service/internal/core/domain"
	"github.com/learnhub/iam-service/internal/core/port"
	"github.com/learnhub/iam-service/internal/repository"
)

var connectionColumns = []string{
	"id",
	"user_id",
	"provider",
	"provider_user_id",
	"email",
	"name",
	"avatar_url",
	"access_token",
	"refresh_token",
	"token_expires_at",
	"created_at",
	"updated_at",
}

// OAuthConnectionRepository implements port.OAuthConnectionRepository using PostgreSQL.
type OAuthConnectionRepository struct {
	pool    pgPool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewOAuthConnectionRepository wires a PostgreSQL-backed connection repository.
func NewOAuthConnectionRepository(pool pgPool) *OAuthConnectionRepository {
	return &OAuthConnectionRepository{
		pool:    pool,
		exec:    pool,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// WithTx returns a repository instance operating within the supplied transaction.
func (r *OAuthConnectionRepository) WithTx(tx pgx.Tx) *OAuthConnectionRepository {
	if tx == nil {
		return r
	}
	return &OAuthConnectionRepository{
		pool:    r.pool,
		exec:    tx,
		builder: r.builder,
	}
}

// Create persists a provider connection.
func (r *OAuthConnectionRepository) Create(ctx context.Context, conn domain.OAuthConnection) error {
	stmt, args, err := r.insertValues(conn).ToSql()
	if err != nil {
		return fmt.Errorf("build insert oauth connection sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicate
		}
		return fmt.Errorf("insert oauth connection: %w", err)
	}

	return nil
}

// GetByProviderUserID retrieves a connection by the external identity.
func (r *OAuthConnectionRepository) GetByProviderUserID(ctx context.Context, provider domain.OAuthProvider, providerUserID string) (*domain.OAuthConnection, error) {
	return r.getBy(ctx, squirrel.Eq{"provider": string(provider), "provider_user_id": providerUserID})
}

// GetByUserAndProvider retrieves the user's connection for one provider.
func (r *OAuthConnectionRepository) GetByUserAndProvider(ctx context.Context, userID string, provider domain.OAuthProvider) (*domain.OAuthConnection, error) {
	return r.getBy(ctx, squirrel.Eq{"user_id": userID, "provider": string(provider)})
}

func (r *OAuthConnectionRepository) getBy(ctx context.Context, pred squirrel.Eq) (*domain.OAuthConnection, error) {
	stmt, args, err := r.builder.
		Select(connectionColumns...).
		From("iam.oauth_connections").
		Where(pred).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select oauth connection sql: %w", err)
	}

	conn, err := scanConnection(r.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan oauth connection: %w", err)
	}

	return conn, nil
}

// ListByUser returns the user's provider connections.
func (r *OAuthConnectionRepository) ListByUser(ctx context.Context, userID string) ([]domain.OAuthConnection, error) {
	stmt, args, err := r.builder.
		Select(connectionColumns...).
		From("iam.oauth_connections").
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("provider ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list oauth connections sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query oauth connections: %w", err)
	}
	defer rows.Close()

	conns := make([]domain.OAuthConnection, 0)
	for rows.Next() {
		conn, err := scanConnection(rows)
		if err != nil {
			return nil, fmt.Errorf("scan oauth connection: %w", err)
		}
		conns = append(conns, *conn)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate oauth connections: %w", err)
	}

	return conns, nil
}

// CountByUser returns how many providers the user has linked.
func (r *OAuthConnectionRepository) CountByUser(ctx context.Context, userID string) (int, error) {
	stmt, args, err := r.builder.Select("COUNT(*)").
		From("iam.oauth_connections").
		Where(squirrel.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count oauth connections sql: %w", err)
	}

	var count int64
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("scan oauth connections count: %w", err)
	}

	return int(count), nil
}

// Update refreshes the provider tokens and profile hints on a connection.
func (r *OAuthConnectionRepository) Update(ctx context.Context, conn domain.OAuthConnection) error {
	stmt, args, err := r.builder.Update("iam.oauth_connections").
		Set("email", optionalString(conn.Email)).
		Set("name", optionalString(conn.Name)).
		Set("avatar_url", optionalString(conn.AvatarURL)).
		Set("access_token", optionalString(conn.AccessToken)).
		Set("refresh_token", optionalString(conn.RefreshToken)).
		Set("token_expires_at", optionalTime(conn.TokenExpiresAt)).
		Set("updated_at", conn.UpdatedAt).
		Where(squirrel.Eq{"id": conn.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update oauth connection sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update oauth connection: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// Delete removes a connection.
func (r *OAuthConnectionRepository) Delete(ctx context.Context, id string) error {
	stmt, args, err := r.builder.Delete("iam.oauth_connections").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete oauth connection sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("delete oauth connection: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// CreateUserWithConnection creates a password-less user together with its
// first connection in a single transaction.
func (r *OAuthConnectionRepository) CreateUserWithConnection(ctx context.Context, user domain.User, conn domain.OAuthConnection) error {
	if r.pool == nil {
		return fmt.Errorf("create user with connection requires a pool-backed repository")
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := NewUserRepository(r.pool).WithTx(tx).Create(ctx, user); err != nil {
		return err
	}
	if err := r.WithTx(tx).Create(ctx, conn); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

func (r *OAuthConnectionRepository) insertValues(conn domain.OAuthConnection) squirrel.InsertBuilder {
	return r.builder.Insert("iam.oauth_connections").
		Columns(connectionColumns...).
		Values(
			conn.ID,
			conn.UserID,
			string(conn.Provider),
			conn.ProviderUserID,
			optionalString(conn.Email),
			optionalString(conn.Name),
			optionalString(conn.AvatarURL),
			optionalString(conn.AccessToken),
			optionalString(conn.RefreshToken),
			optionalTime(conn.TokenExpiresAt),
			conn.CreatedAt,
			conn.UpdatedAt,
		)
}

func scanConnection(row pgx.Row) (*domain.OAuthConnection, error) {
	var (
		conn     domain.OAuthConnection
		provider string
	)

	if err := row.Scan(
		&conn.ID,
		&conn.UserID,
		&provider,
		&conn.ProviderUserID,
		&conn.Email,
		&conn.Name,
		&conn.AvatarURL,
		&conn.AccessToken,
		&conn.RefreshToken,
		&conn.TokenExpiresAt,
		&conn.CreatedAt,
		&conn.UpdatedAt,
	); err != nil {
		return nil, err
	}

	conn.Provider = domain.OAuthProvider(provider)

	return &conn, nil
}

var _ port.OAuthConnectionRepository = (*OAuthConnectionRepository)(nil)
