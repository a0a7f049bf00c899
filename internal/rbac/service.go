package rbac

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Service provides role and user management plus principal resolution.
type Service struct {
	store Store
	cache PrincipalCache
}

// NewService constructs a Service. cache may be nil to disable memoization.
func NewService(store Store, cache PrincipalCache) (*Service, error) {
	if store == nil {
		return nil, errors.New("rbac store is required")
	}
	return &Service{store: store, cache: cache}, nil
}

// ResolvePrincipal loads the principal for a user, consulting the cache first.
func (s *Service) ResolvePrincipal(ctx context.Context, userID string) (Principal, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Principal{}, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	if principal, ok := s.cacheGet(ctx, userID); ok {
		return principal, nil
	}
	principal, err := s.store.Principal(ctx, userID)
	if err != nil {
		return Principal{}, err
	}
	s.cacheSet(ctx, principal)
	return principal, nil
}

// Require resolves the principal and authorizes (module, action), returning
// ErrForbidden on deny.
func (s *Service) Require(ctx context.Context, userID, module, action string) (Principal, error) {
	principal, err := s.ResolvePrincipal(ctx, userID)
	if err != nil {
		return Principal{}, err
	}
	if !Authorize(principal, module, action) {
		return Principal{}, ErrForbidden
	}
	return principal, nil
}

// FindUserByEmail looks a user up by normalized email.
func (s *Service) FindUserByEmail(ctx context.Context, email string) (User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return User{}, fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	return s.store.FindUserByEmail(ctx, email)
}

func (s *Service) CreateRole(ctx context.Context, name, description string, doc map[string]any) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	return s.store.CreateRole(ctx, name, strings.TrimSpace(description), FromDocument(doc))
}

func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.store.ListRoles(ctx)
}

func (s *Service) GetRole(ctx context.Context, roleID string) (Role, error) {
	roleID = strings.TrimSpace(roleID)
	if roleID == "" {
		return Role{}, fmt.Errorf("%w: role_id is required", ErrInvalidInput)
	}
	return s.store.GetRole(ctx, roleID)
}

// SetRolePermissions replaces a role's permission document and invalidates
// every principal resolved through that role.
func (s *Service) SetRolePermissions(ctx context.Context, roleID string, doc map[string]any) error {
	roleID = strings.TrimSpace(roleID)
	if roleID == "" {
		return fmt.Errorf("%w: role_id is required", ErrInvalidInput)
	}
	if err := s.store.SetRolePermissions(ctx, roleID, FromDocument(doc)); err != nil {
		return err
	}
	s.invalidateRole(ctx, roleID)
	return nil
}

// DeleteRole removes an unassigned role. Roles with users keep existing.
func (s *Service) DeleteRole(ctx context.Context, roleID string) error {
	roleID = strings.TrimSpace(roleID)
	if roleID == "" {
		return fmt.Errorf("%w: role_id is required", ErrInvalidInput)
	}
	userIDs, err := s.store.UserIDsByRole(ctx, roleID)
	if err != nil {
		return err
	}
	if len(userIDs) > 0 {
		return fmt.Errorf("%w: role is still assigned to %d user(s)", ErrConflict, len(userIDs))
	}
	return s.store.DeleteRole(ctx, roleID)
}

// CreateUserParams carries the fields needed to provision an account. The
// password hash is computed at the authentication boundary.
type CreateUserParams struct {
	Email        string
	PasswordHash string
	RoleID       string
	EntityID     string
	FirstName    string
	LastName     string
}

func (s *Service) CreateUser(ctx context.Context, params CreateUserParams) (User, error) {
	email := strings.TrimSpace(strings.ToLower(params.Email))
	if email == "" || !strings.Contains(email, "@") {
		return User{}, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	if strings.TrimSpace(params.PasswordHash) == "" {
		return User{}, fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	roleID := strings.TrimSpace(params.RoleID)
	if roleID == "" {
		return User{}, fmt.Errorf("%w: role_id is required", ErrInvalidInput)
	}
	return s.store.CreateUser(ctx, User{
		Email:        email,
		PasswordHash: params.PasswordHash,
		RoleID:       roleID,
		EntityID:     strings.TrimSpace(params.EntityID),
		FirstName:    strings.TrimSpace(params.FirstName),
		LastName:     strings.TrimSpace(params.LastName),
		Active:       true,
	})
}

func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	return s.store.ListUsers(ctx)
}

func (s *Service) GetUser(ctx context.Context, userID string) (User, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return User{}, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	return s.store.GetUser(ctx, userID)
}

// AssignRole moves a user onto another role and drops the cached principal.
func (s *Service) AssignRole(ctx context.Context, userID, roleID string) error {
	userID = strings.TrimSpace(userID)
	roleID = strings.TrimSpace(roleID)
	if userID == "" || roleID == "" {
		return fmt.Errorf("%w: user_id and role_id are required", ErrInvalidInput)
	}
	if err := s.store.AssignUserRole(ctx, userID, roleID); err != nil {
		return err
	}
	s.cacheInvalidate(ctx, userID)
	return nil
}

// SetUserActive toggles the account and drops the cached principal.
func (s *Service) SetUserActive(ctx context.Context, userID string, active bool) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	if err := s.store.SetUserActive(ctx, userID, active); err != nil {
		return err
	}
	s.cacheInvalidate(ctx, userID)
	return nil
}

func (s *Service) cacheGet(ctx context.Context, userID string) (Principal, bool) {
	if s.cache == nil {
		return Principal{}, false
	}
	return s.cache.Get(ctx, userID)
}

func (s *Service) cacheSet(ctx context.Context, principal Principal) {
	if s.cache != nil {
		s.cache.Set(ctx, principal)
	}
}

func (s *Service) cacheInvalidate(ctx context.Context, userIDs ...string) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, userIDs...)
	}
}

func (s *Service) invalidateRole(ctx context.Context, roleID string) {
	if s.cache == nil {
		return
	}
	userIDs, err := s.store.UserIDsByRole(ctx, roleID)
	if err != nil || len(userIDs) == 0 {
		return
	}
	s.cache.Invalidate(ctx, userIDs...)
}
