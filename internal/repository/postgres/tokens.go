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

var tokenColumns = []string{
	"token",
	"user_id",
	"expires_at",
	"created_at",
	"revoked_at",
	"replaced_by_token",
	"user_agent",
	"ip",
}

// TokenRepository implements port.TokenRepository using PostgreSQL.
type TokenRepository struct {
	pool    pgPool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewTokenRepository wires a PostgreSQL-backed refresh token repository.
func NewTokenRepository(pool pgPool) *TokenRepository {
	return &TokenRepository{
		pool:    pool,
		exec:    pool,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// WithTx returns a repository instance operating within the supplied transaction.
func (r *TokenRepository) WithTx(tx pgx.Tx) *TokenRepository {
	if tx == nil {
		return r
	}
	return &TokenRepository{
		pool:    r.pool,
		exec:    tx,
		builder: r.builder,
	}
}

// Create persists a refresh token.
func (r *TokenRepository) Create(ctx context.Context, token domain.RefreshToken) error {
	stmt, args, err := r.insertValues(token).ToSql()
	if err != nil {
		return fmt.Errorf("build insert refresh token sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicate
		}
		return fmt.Errorf("insert refresh token: %w", err)
	}

	return nil
}

// GetByToken retrieves a refresh token by its value.
func (r *TokenRepository) GetByToken(ctx context.Context, token string) (*domain.RefreshToken, error) {
	stmt, args, err := r.builder.
		Select(tokenColumns...).
		From("iam.refresh_tokens").
		Where(squirrel.Eq{"token": token}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select refresh token sql: %w", err)
	}

	var record domain.RefreshToken
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(
		&record.Token,
		&record.UserID,
		&record.ExpiresAt,
		&record.CreatedAt,
		&record.RevokedAt,
		&record.ReplacedByToken,
		&record.UserAgent,
		&record.IP,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan refresh token: %w", err)
	}

	return &record, nil
}

// Rotate inserts the replacement and revokes the old token in one
// transaction. The revocation is gated on the old token still being
// unrevoked; losing that race rolls everything back and reports
// repository.ErrConflict so the caller treats the token as consumed.
func (r *TokenRepository) Rotate(ctx context.Context, oldToken string, replacement domain.RefreshToken) error {
	if r.pool == nil {
		return fmt.Errorf("rotate requires a pool-backed repository")
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	insertStmt, insertArgs, err := r.insertValues(replacement).ToSql()
	if err != nil {
		return fmt.Errorf("build insert replacement sql: %w", err)
	}
	if _, err := tx.Exec(ctx, insertStmt, insertArgs...); err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicate
		}
		return fmt.Errorf("insert replacement token: %w", err)
	}

	updateStmt, updateArgs, err := r.builder.Update("iam.refresh_tokens").
		Set("revoked_at", time.Now().UTC()).
		Set("replaced_by_token", replacement.Token).
		Where(squirrel.Eq{"token": oldToken}).
		Where("revoked_at IS NULL").
		ToSql()
	if err != nil {
		return fmt.Errorf("build consume token sql: %w", err)
	}

	ct, err := tx.Exec(ctx, updateStmt, updateArgs...)
	if err != nil {
		return fmt.Errorf("consume token: %w", err)
	}
	if ct.RowsAffected() == 0 {
		// Already consumed or never existed; the rollback discards the
		// replacement insert.
		return repository.ErrConflict
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// Revoke marks a single token revoked.
func (r *TokenRepository) Revoke(ctx context.Context, token string, at time.Time) error {
	stmt, args, err := r.builder.Update("iam.refresh_tokens").
		Set("revoked_at", at).
		Where(squirrel.Eq{"token": token}).
		Where("revoked_at IS NULL").
		ToSql()
	if err != nil {
		return fmt.Errorf("build revoke token sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// RevokeAllForUser revokes every active token for the user.
func (r *TokenRepository) RevokeAllForUser(ctx context.Context, userID string, at time.Time) (int, error) {
	stmt, args, err := r.builder.Update("iam.refresh_tokens").
		Set("revoked_at", at).
		Where(squirrel.Eq{"user_id": userID}).
		Where("revoked_at IS NULL").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build revoke user tokens sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("revoke user tokens: %w", err)
	}

	return int(ct.RowsAffected()), nil
}

// DeleteExpired removes rows whose expiry predates the cutoff.
func (r *TokenRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	stmt, args, err := r.builder.Delete("iam.refresh_tokens").
		Where(squirrel.Lt{"expires_at": cutoff}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete expired tokens sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("delete expired tokens: %w", err)
	}

	return ct.RowsAffected(), nil
}

func (r *TokenRepository) insertValues(token domain.RefreshToken) squirrel.InsertBuilder {
	return r.builder.Insert("iam.refresh_tokens").
		Columns(tokenColumns...).
		Values(
			token.Token,
			token.UserID,
			token.ExpiresAt,
			token.CreatedAt,
			optionalTime(token.RevokedAt),
			optionalString(token.ReplacedByToken),
			optionalString(token.UserAgent),
			optionalString(token.IP),
		)
}

var _ port.TokenRepository = (*TokenRepository)(nil)
