package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/learnhub/iam-service/internal/core/domain"
	"github.com/learnhub/iam-service/internal/core/port"
	"github.com/learnhub/iam-service/internal/infra/config"
	"github.com/learnhub/iam-service/internal/infra/security"
	"github.com/learnhub/iam-service/internal/repository"
)

type testUserRepo struct {
	users       map[string]domain.User
	byEmail     map[string]string
	created     []domain.User
	assigned    [][2]string
	removed     [][2]string
	updated     []domain.User
	passwords   map[string]string
	createErr   error
	assignErr   error
	removeErr   error
	updateErr   error
	passwordErr error
}

func newTestUserRepo(users ...domain.User) *testUserRepo {
	repo := &testUserRepo{
		users:     make(map[string]domain.User),
		byEmail:   make(map[string]string),
		passwords: make(map[string]string),
	}
	for _, user := range users {
		repo.users[user.ID] = user
		repo.byEmail[user.Email] = user.ID
	}
	return repo
}

func (r *testUserRepo) Create(_ context.Context, user domain.User) error {
	if r.createErr != nil {
		return r.createErr
	}
	if _, taken := r.byEmail[user.Email]; taken {
		return repository.ErrDuplicate
	}
	r.users[user.ID] = user
	r.byEmail[user.Email] = user.ID
	r.created = append(r.created, user)
	return nil
}

func (r *testUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	if user, ok := r.users[id]; ok {
		copied := user
		return &copied, nil
	}
	return nil, repository.ErrNotFound
}

func (r *testUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	if id, ok := r.byEmail[email]; ok {
		return r.GetByID(context.Background(), id)
	}
	return nil, repository.ErrNotFound
}

func (r *testUserRepo) Update(_ context.Context, user domain.User) error {
	if r.updateErr != nil {
		return r.updateErr
	}
	if _, ok := r.users[user.ID]; !ok {
		return repository.ErrNotFound
	}
	r.users[user.ID] = user
	r.updated = append(r.updated, user)
	return nil
}

func (r *testUserRepo) UpdatePassword(_ context.Context, id, passwordHash string) error {
	if r.passwordErr != nil {
		return r.passwordErr
	}
	user, ok := r.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	user.PasswordHash = &passwordHash
	r.users[id] = user
	r.passwords[id] = passwordHash
	return nil
}

func (r *testUserRepo) List(context.Context, port.UserFilter) ([]domain.User, error) {
	users := make([]domain.User, 0, len(r.users))
	for _, user := range r.users {
		users = append(users, user)
	}
	return users, nil
}

func (r *testUserRepo) Count(context.Context, port.UserFilter) (int, error) {
	return len(r.users), nil
}

func (r *testUserRepo) AssignRole(_ context.Context, userID, roleID string) error {
	if r.assignErr != nil {
		return r.assignErr
	}
	r.assigned = append(r.assigned, [2]string{userID, roleID})
	return nil
}

func (r *testUserRepo) RemoveRole(_ context.Context, userID, roleID string) error {
	if r.removeErr != nil {
		return r.removeErr
	}
	r.removed = append(r.removed, [2]string{userID, roleID})
	return nil
}

func (r *testUserRepo) ListRoleNames(_ context.Context, userID string) ([]string, error) {
	if user, ok := r.users[userID]; ok {
		return user.Roles, nil
	}
	return nil, repository.ErrNotFound
}

type testTokenRepo struct {
	stored     map[string]domain.RefreshToken
	created    []domain.RefreshToken
	rotations  [][2]string
	revokedAll []string
	createErr  error
	rotateErr  error
	revokeErr  error
}

func newTestTokenRepo(tokens ...domain.RefreshToken) *testTokenRepo {
	repo := &testTokenRepo{stored: make(map[string]domain.RefreshToken)}
	for _, token := range tokens {
		repo.stored[token.Token] = token
	}
	return repo
}

func (r *testTokenRepo) Create(_ context.Context, token domain.RefreshToken) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.stored[token.Token] = token
	r.created = append(r.created, token)
	return nil
}

func (r *testTokenRepo) GetByToken(_ context.Context, token string) (*domain.RefreshToken, error) {
	if record, ok := r.stored[token]; ok {
		copied := record
		return &copied, nil
	}
	return nil, repository.ErrNotFound
}

func (r *testTokenRepo) Rotate(_ context.Context, oldToken string, replacement domain.RefreshToken) error {
	if r.rotateErr != nil {
		return r.rotateErr
	}
	record, ok := r.stored[oldToken]
	if !ok {
		return repository.ErrNotFound
	}
	if record.RevokedAt != nil {
		return repository.ErrConflict
	}
	now := time.Now().UTC()
	record.RevokedAt = &now
	replacementToken := replacement.Token
	record.ReplacedByToken = &replacementToken
	r.stored[oldToken] = record
	r.stored[replacement.Token] = replacement
	r.rotations = append(r.rotations, [2]string{oldToken, replacement.Token})
	return nil
}

func (r *testTokenRepo) Revoke(_ context.Context, token string, at time.Time) error {
	if r.revokeErr != nil {
		return r.revokeErr
	}
	record, ok := r.stored[token]
	if !ok {
		return repository.ErrNotFound
	}
	record.RevokedAt = &at
	r.stored[token] = record
	return nil
}

func (r *testTokenRepo) RevokeAllForUser(_ context.Context, userID string, at time.Time) (int, error) {
	if r.revokeErr != nil {
		return 0, r.revokeErr
	}
	revoked := 0
	for key, record := range r.stored {
		if record.UserID == userID && record.RevokedAt == nil {
			record.RevokedAt = &at
			r.stored[key] = record
			revoked++
		}
	}
	r.revokedAll = append(r.revokedAll, userID)
	return revoked, nil
}

func (r *testTokenRepo) DeleteExpired(_ context.Context, cutoff time.Time) (int64, error) {
	var deleted int64
	for key, record := range r.stored {
		if record.ExpiresAt.Before(cutoff) {
			delete(r.stored, key)
			deleted++
		}
	}
	return deleted, nil
}

type testRoleRepo struct {
	roles      map[string]domain.Role
	byName     map[string]string
	byUser     map[string][]domain.Role
	granted    map[string][]string
	deleted    []string
	createErr  error
	deleteErr  error
	grantErr   error
	revokeErr  error
	replaceErr error
}

func newTestRoleRepo(roles ...domain.Role) *testRoleRepo {
	repo := &testRoleRepo{
		roles:   make(map[string]domain.Role),
		byName:  make(map[string]string),
		byUser:  make(map[string][]domain.Role),
		granted: make(map[string][]string),
	}
	for _, role := range roles {
		repo.roles[role.ID] = role
		repo.byName[role.Name] = role.ID
	}
	return repo
}

func (r *testRoleRepo) Create(_ context.Context, role domain.Role) error {
	if r.createErr != nil {
		return r.createErr
	}
	if _, taken := r.byName[role.Name]; taken {
		return repository.ErrDuplicate
	}
	r.roles[role.ID] = role
	r.byName[role.Name] = role.ID
	return nil
}

func (r *testRoleRepo) GetByID(_ context.Context, id string) (*domain.Role, error) {
	if role, ok := r.roles[id]; ok {
		copied := role
		return &copied, nil
	}
	return nil, repository.ErrNotFound
}

func (r *testRoleRepo) GetByName(_ context.Context, name string) (*domain.Role, error) {
	if id, ok := r.byName[name]; ok {
		return r.GetByID(context.Background(), id)
	}
	return nil, repository.ErrNotFound
}

func (r *testRoleRepo) List(context.Context) ([]domain.Role, error) {
	roles := make([]domain.Role, 0, len(r.roles))
	for _, role := range r.roles {
		roles = append(roles, role)
	}
	return roles, nil
}

func (r *testRoleRepo) Delete(_ context.Context, id string) error {
	if r.deleteErr != nil {
		return r.deleteErr
	}
	role, ok := r.roles[id]
	if !ok {
		return repository.ErrNotFound
	}
	delete(r.roles, id)
	delete(r.byName, role.Name)
	r.deleted = append(r.deleted, id)
	return nil
}

func (r *testRoleRepo) ListByUser(_ context.Context, userID string) ([]domain.Role, error) {
	return r.byUser[userID], nil
}

func (r *testRoleRepo) GrantPermissions(_ context.Context, roleID string, permissionIDs []string) error {
	if r.grantErr != nil {
		return r.grantErr
	}
	r.granted[roleID] = append(r.granted[roleID], permissionIDs...)
	return nil
}

func (r *testRoleRepo) RevokePermission(_ context.Context, roleID, permissionID string) error {
	if r.revokeErr != nil {
		return r.revokeErr
	}
	grants := r.granted[roleID]
	for i, id := range grants {
		if id == permissionID {
			r.granted[roleID] = append(grants[:i], grants[i+1:]...)
			return nil
		}
	}
	return repository.ErrNotFound
}

func (r *testRoleRepo) ReplacePermissions(_ context.Context, roleID string, permissionIDs []string) error {
	if r.replaceErr != nil {
		return r.replaceErr
	}
	r.granted[roleID] = append([]string(nil), permissionIDs...)
	return nil
}

type testPermissionRepo struct {
	permissions map[string]domain.Permission
	byName      map[string]string
	byRole      map[string][]domain.Permission
	directUser  map[string][]domain.Permission
	userGrants  [][2]string
	createErr   error
	grantErr    error
}

func newTestPermissionRepo(permissions ...domain.Permission) *testPermissionRepo {
	repo := &testPermissionRepo{
		permissions: make(map[string]domain.Permission),
		byName:      make(map[string]string),
		byRole:      make(map[string][]domain.Permission),
		directUser:  make(map[string][]domain.Permission),
	}
	for _, permission := range permissions {
		repo.permissions[permission.ID] = permission
		repo.byName[permission.Name] = permission.ID
	}
	return repo
}

func (r *testPermissionRepo) Create(_ context.Context, permission domain.Permission) error {
	if r.createErr != nil {
		return r.createErr
	}
	if _, taken := r.byName[permission.Name]; taken {
		return repository.ErrDuplicate
	}
	r.permissions[permission.ID] = permission
	r.byName[permission.Name] = permission.ID
	return nil
}

func (r *testPermissionRepo) GetByID(_ context.Context, id string) (*domain.Permission, error) {
	if permission, ok := r.permissions[id]; ok {
		copied := permission
		return &copied, nil
	}
	return nil, repository.ErrNotFound
}

func (r *testPermissionRepo) GetByName(_ context.Context, name string) (*domain.Permission, error) {
	if id, ok := r.byName[name]; ok {
		return r.GetByID(context.Background(), id)
	}
	return nil, repository.ErrNotFound
}

func (r *testPermissionRepo) List(context.Context, port.PermissionFilter) ([]domain.Permission, error) {
	permissions := make([]domain.Permission, 0, len(r.permissions))
	for _, permission := range r.permissions {
		permissions = append(permissions, permission)
	}
	return permissions, nil
}

func (r *testPermissionRepo) Count(context.Context, port.PermissionFilter) (int, error) {
	return len(r.permissions), nil
}

func (r *testPermissionRepo) Delete(_ context.Context, id string) error {
	permission, ok := r.permissions[id]
	if !ok {
		return repository.ErrNotFound
	}
	delete(r.permissions, id)
	delete(r.byName, permission.Name)
	return nil
}

func (r *testPermissionRepo) ListByRoles(_ context.Context, roleIDs []string) ([]domain.Permission, error) {
	var union []domain.Permission
	for _, roleID := range roleIDs {
		union = append(union, r.byRole[roleID]...)
	}
	return union, nil
}

func (r *testPermissionRepo) ListDirectByUser(_ context.Context, userID string) ([]domain.Permission, error) {
	return r.directUser[userID], nil
}

func (r *testPermissionRepo) GrantToUser(_ context.Context, userID, permissionID string) error {
	if r.grantErr != nil {
		return r.grantErr
	}
	r.userGrants = append(r.userGrants, [2]string{userID, permissionID})
	return nil
}

func (r *testPermissionRepo) RevokeFromUser(_ context.Context, userID, permissionID string) error {
	grants := r.directUser[userID]
	for i, permission := range grants {
		if permission.ID == permissionID {
			r.directUser[userID] = append(grants[:i], grants[i+1:]...)
			return nil
		}
	}
	return repository.ErrNotFound
}

type testConnectionRepo struct {
	connections map[string]domain.OAuthConnection
	created     []domain.OAuthConnection
	updated     []domain.OAuthConnection
	deleted     []string
	atomicUsers []domain.User
	createErr   error
	atomicErr   error
}

func newTestConnectionRepo(connections ...domain.OAuthConnection) *testConnectionRepo {
	repo := &testConnectionRepo{connections: make(map[string]domain.OAuthConnection)}
	for _, conn := range connections {
		repo.connections[conn.ID] = conn
	}
	return repo
}

func (r *testConnectionRepo) Create(_ context.Context, conn domain.OAuthConnection) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.connections[conn.ID] = conn
	r.created = append(r.created, conn)
	return nil
}

func (r *testConnectionRepo) GetByProviderUserID(_ context.Context, provider domain.OAuthProvider, providerUserID string) (*domain.OAuthConnection, error) {
	for _, conn := range r.connections {
		if conn.Provider == provider && conn.ProviderUserID == providerUserID {
			copied := conn
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *testConnectionRepo) GetByUserAndProvider(_ context.Context, userID string, provider domain.OAuthProvider) (*domain.OAuthConnection, error) {
	for _, conn := range r.connections {
		if conn.UserID == userID && conn.Provider == provider {
			copied := conn
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *testConnectionRepo) ListByUser(_ context.Context, userID string) ([]domain.OAuthConnection, error) {
	var conns []domain.OAuthConnection
	for _, conn := range r.connections {
		if conn.UserID == userID {
			conns = append(conns, conn)
		}
	}
	return conns, nil
}

func (r *testConnectionRepo) CountByUser(ctx context.Context, userID string) (int, error) {
	conns, _ := r.ListByUser(ctx, userID)
	return len(conns), nil
}

func (r *testConnectionRepo) Update(_ context.Context, conn domain.OAuthConnection) error {
	if _, ok := r.connections[conn.ID]; !ok {
		return repository.ErrNotFound
	}
	r.connections[conn.ID] = conn
	r.updated = append(r.updated, conn)
	return nil
}

func (r *testConnectionRepo) Delete(_ context.Context, id string) error {
	if _, ok := r.connections[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.connections, id)
	r.deleted = append(r.deleted, id)
	return nil
}

func (r *testConnectionRepo) CreateUserWithConnection(_ context.Context, user domain.User, conn domain.OAuthConnection) error {
	if r.atomicErr != nil {
		return r.atomicErr
	}
	r.atomicUsers = append(r.atomicUsers, user)
	r.connections[conn.ID] = conn
	r.created = append(r.created, conn)
	return nil
}

type testProviderClient struct {
	enabled  map[domain.OAuthProvider]bool
	exchange *port.OAuthExchange
	url      string
	err      error
}

func (c *testProviderClient) Enabled(provider domain.OAuthProvider) bool {
	if c.enabled == nil {
		return true
	}
	return c.enabled[provider]
}

func (c *testProviderClient) AuthorizationURL(domain.OAuthProvider, string, string) (string, error) {
	if c.err != nil {
		return "", c.err
	}
	return c.url, nil
}

func (c *testProviderClient) Exchange(context.Context, domain.OAuthProvider, string, string) (*port.OAuthExchange, error) {
	if c.err != nil {
		return nil, c.err
	}
	if c.exchange == nil {
		return nil, errors.New("unexpected call: Exchange")
	}
	return c.exchange, nil
}

type capturingPublisher struct {
	events []domain.Event
	err    error
}

func (p *capturingPublisher) Publish(_ context.Context, event domain.Event) error {
	p.events = append(p.events, event)
	return p.err
}

func (p *capturingPublisher) names() []string {
	names := make([]string, len(p.events))
	for i, event := range p.events {
		names[i] = event.EventName()
	}
	return names
}

type acceptAllEmails struct{}

func (acceptAllEmails) Validate(string) error { return nil }

func newTestConfig() *config.AppConfig {
	cfg := &config.AppConfig{}
	cfg.App.Name = "learnhub-iam"
	cfg.App.Env = "test"
	cfg.JWT.Secret = "test-secret-0123456789abcdef"
	cfg.JWT.Issuer = "learnhub-iam"
	cfg.JWT.AccessTokenTTL = 15 * time.Minute
	cfg.JWT.RefreshTokenTTL = 24 * time.Hour
	return cfg
}

func newTestAuthService(t *testing.T, users *testUserRepo, tokens *testTokenRepo, publisher port.EventPublisher) *AuthService {
	t.Helper()

	hasher, err := security.NewHasher(security.DefaultArgon2Config())
	if err != nil {
		t.Fatalf("create hasher: %v", err)
	}
	auth, err := NewAuthService(newTestConfig(), users, tokens, hasher, publisher)
	if err != nil {
		t.Fatalf("create auth service: %v", err)
	}
	return auth
}

func mustHash(t *testing.T, password string) *string {
	t.Helper()

	hasher, err := security.NewHasher(security.DefaultArgon2Config())
	if err != nil {
		t.Fatalf("create hasher: %v", err)
	}
	hash, err := hasher.HashPassword(password)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return &hash
}
