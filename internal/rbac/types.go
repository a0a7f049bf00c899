package rbac

import (
	"context"
	"time"
)

// Role is a named bundle of permissions assigned to users.
type Role struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Permissions PermissionSet `json:"permissions"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// User is an account operating on behalf of at most one entity. Admin-side
// accounts carry no entity.
type User struct {
	ID           string    `json:"id"`
	EntityID     string    `json:"entity_id,omitempty"`
	RoleID       string    `json:"role_id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	FirstName    string    `json:"first_name,omitempty"`
	LastName     string    `json:"last_name,omitempty"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Store describes persistence required by the rbac subsystem.
type Store interface {
	CreateRole(ctx context.Context, name, description string, perms PermissionSet) (Role, error)
	ListRoles(ctx context.Context) ([]Role, error)
	GetRole(ctx context.Context, roleID string) (Role, error)
	SetRolePermissions(ctx context.Context, roleID string, perms PermissionSet) error
	DeleteRole(ctx context.Context, roleID string) error

	CreateUser(ctx context.Context, user User) (User, error)
	GetUser(ctx context.Context, userID string) (User, error)
	FindUserByEmail(ctx context.Context, email string) (User, error)
	ListUsers(ctx context.Context) ([]User, error)
	AssignUserRole(ctx context.Context, userID, roleID string) error
	SetUserActive(ctx context.Context, userID string, active bool) error
	UserIDsByRole(ctx context.Context, roleID string) ([]string, error)

	// Principal resolves a user with its role, permission document and owning
	// entity in one read. Inactive or missing users yield ErrNotFound.
	Principal(ctx context.Context, userID string) (Principal, error)
}
