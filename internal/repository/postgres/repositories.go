package postgres

import "github.com/jackc/pgx/v5/pgxpool"

// Repositories bundles every PostgreSQL-backed repository so the
// application wiring can construct them from a single pool.
type Repositories struct {
	Users       *UserRepository
	Roles       *RoleRepository
	Permissions *PermissionRepository
	Tokens      *TokenRepository
	Connections *OAuthConnectionRepository
}

// NewRepositories builds the full repository set on the shared pool.
func NewRepositories(pool *pgxpool.Pool) *Repositories {
	return &Repositories{
		Users:       NewUserRepository(pool),
		Roles:       NewRoleRepository(pool),
		Permissions: NewPermissionRepository(pool),
		Tokens:      NewTokenRepository(pool),
		Connections: NewOAuthConnectionRepository(pool),
	}
}
