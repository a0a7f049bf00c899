package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"ads360.org/internal/ids"
	"ads360.org/internal/rbac"
)

func (s *Store) CreateRole(ctx context.Context, name, description string, perms rbac.PermissionSet) (rbac.Role, error) {
	permsJSON, err := json.Marshal(perms)
	if err != nil {
		return rbac.Role{}, fmt.Errorf("marshal permissions: %w", err)
	}

	role := rbac.Role{Name: name, Description: description, Permissions: perms}
	err = s.db.QueryRowContext(ctx, `
		insert into roles (id, name, description, permissions)
		values ($1, $2, $3, $4)
		returning id, created_at, updated_at
	`, ids.New(), name, description, permsJSON).Scan(&role.ID, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return rbac.Role{}, fmt.Errorf("%w: role %q already exists", rbac.ErrConflict, name)
		}
		return rbac.Role{}, err
	}
	return role, nil
}

func (s *Store) ListRoles(ctx context.Context) ([]rbac.Role, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, name, coalesce(description,''), permissions, created_at, updated_at
		from roles
		order by name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []rbac.Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, role)
	}
	return result, rows.Err()
}

func (s *Store) GetRole(ctx context.Context, roleID string) (rbac.Role, error) {
	row := s.db.QueryRowContext(ctx, `
		select id, name, coalesce(description,''), permissions, created_at, updated_at
		from roles
		where id = $1
	`, roleID)
	role, err := scanRole(row)
	if errors.Is(err, sql.ErrNoRows) {
		return rbac.Role{}, rbac.ErrNotFound
	}
	return role, err
}

func (s *Store) SetRolePermissions(ctx context.Context, roleID string, perms rbac.PermissionSet) error {
	permsJSON, err := json.Marshal(perms)
	if err != nil {
		return fmt.Errorf("marshal permissions: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		update roles set permissions = $2, updated_at = now()
		where id = $1
	`, roleID, permsJSON)
	if err != nil {
		return err
	}
	return errIfNoRows(res, rbac.ErrNotFound)
}

func (s *Store) DeleteRole(ctx context.Context, roleID string) error {
	res, err := s.db.ExecContext(ctx, `delete from roles where id = $1`, roleID)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return fmt.Errorf("%w: role is still referenced", rbac.ErrConflict)
		}
		return err
	}
	return errIfNoRows(res, rbac.ErrNotFound)
}

func (s *Store) CreateUser(ctx context.Context, user rbac.User) (rbac.User, error) {
	user.ID = ids.New()
	err := s.db.QueryRowContext(ctx, `
		insert into users (id, entity_id, role_id, email, password_hash, first_name, last_name, active)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
		returning created_at, updated_at
	`, user.ID, nullIfEmpty(user.EntityID), user.RoleID, user.Email, user.PasswordHash,
		user.FirstName, user.LastName, user.Active).Scan(&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return rbac.User{}, fmt.Errorf("%w: email already registered", rbac.ErrConflict)
			case pgErrForeignKeyViolation:
				return rbac.User{}, fmt.Errorf("%w: role or entity does not exist", rbac.ErrInvalidInput)
			}
		}
		return rbac.User{}, err
	}
	return user, nil
}

const userColumns = `id, coalesce(entity_id,''), role_id, email, password_hash,
	coalesce(first_name,''), coalesce(last_name,''), active, created_at, updated_at`

func (s *Store) GetUser(ctx context.Context, userID string) (rbac.User, error) {
	row := s.db.QueryRowContext(ctx, `select `+userColumns+` from users where id = $1`, userID)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return rbac.User{}, rbac.ErrNotFound
	}
	return user, err
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (rbac.User, error) {
	row := s.db.QueryRowContext(ctx, `select `+userColumns+` from users where email = $1`, email)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return rbac.User{}, rbac.ErrNotFound
	}
	return user, err
}

func (s *Store) ListUsers(ctx context.Context) ([]rbac.User, error) {
	rows, err := s.db.QueryContext(ctx, `select `+userColumns+` from users order by email`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []rbac.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, user)
	}
	return result, rows.Err()
}

func (s *Store) AssignUserRole(ctx context.Context, userID, roleID string) error {
	res, err := s.db.ExecContext(ctx, `
		update users set role_id = $2, updated_at = now()
		where id = $1
	`, userID, roleID)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return fmt.Errorf("%w: role does not exist", rbac.ErrInvalidInput)
		}
		return err
	}
	return errIfNoRows(res, rbac.ErrNotFound)
}

func (s *Store) SetUserActive(ctx context.Context, userID string, active bool) error {
	res, err := s.db.ExecContext(ctx, `
		update users set active = $2, updated_at = now()
		where id = $1
	`, userID, active)
	if err != nil {
		return err
	}
	return errIfNoRows(res, rbac.ErrNotFound)
}

func (s *Store) UserIDsByRole(ctx context.Context, roleID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `select id from users where role_id = $1`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		result = append(result, id)
	}
	return result, rows.Err()
}

// Principal resolves the user, its role and owning entity in one read.
// Inactive and missing users both come back as ErrNotFound.
func (s *Store) Principal(ctx context.Context, userID string) (rbac.Principal, error) {
	var (
		p       rbac.Principal
		rawPerm []byte
	)
	err := s.db.QueryRowContext(ctx, `
		select u.id, u.email, r.name, coalesce(u.entity_id,''), coalesce(e.type,''), u.active, r.permissions
		from users u
		join roles r on r.id = u.role_id
		left join entities e on e.id = u.entity_id
		where u.id = $1 and u.active
	`, userID).Scan(&p.UserID, &p.Email, &p.RoleName, &p.EntityID, &p.EntityType, &p.Active, &rawPerm)
	if errors.Is(err, sql.ErrNoRows) {
		return rbac.Principal{}, rbac.ErrNotFound
	}
	if err != nil {
		return rbac.Principal{}, err
	}
	p.Permissions = rbac.ParsePermissions(rawPerm)
	return p, nil
}

// --- scan helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRole(row rowScanner) (rbac.Role, error) {
	var (
		role    rbac.Role
		rawPerm []byte
	)
	if err := row.Scan(&role.ID, &role.Name, &role.Description, &rawPerm, &role.CreatedAt, &role.UpdatedAt); err != nil {
		return rbac.Role{}, err
	}
	role.Permissions = rbac.ParsePermissions(rawPerm)
	return role, nil
}

func scanUser(row rowScanner) (rbac.User, error) {
	var user rbac.User
	err := row.Scan(&user.ID, &user.EntityID, &user.RoleID, &user.Email, &user.PasswordHash,
		&user.FirstName, &user.LastName, &user.Active, &user.CreatedAt, &user.UpdatedAt)
	return user, err
}

func errIfNoRows(res sql.Result, sentinel error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sentinel
	}
	return nil
}
