package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"ads360.org/internal/directory"
)

const entityColumns = `id, type, name, coalesce(email,''), coalesce(phone,''), coalesce(address,''), created_at, updated_at`

func (s *Store) CreateEntity(ctx context.Context, e *directory.Entity) error {
	_, err := s.db.ExecContext(ctx, `
		insert into entities (id, type, name, email, phone, address, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
	`, e.ID, e.Type, e.Name, nullIfEmpty(e.Email), nullIfEmpty(e.Phone), nullIfEmpty(e.Address),
		e.CreatedAt, e.UpdatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return fmt.Errorf("%w: entity already exists", directory.ErrConflict)
		}
		return err
	}
	return nil
}

func (s *Store) GetEntity(ctx context.Context, id string) (directory.Entity, error) {
	row := s.db.QueryRowContext(ctx, `select `+entityColumns+` from entities where id = $1`, id)
	e, err := scanEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return directory.Entity{}, directory.ErrNotFound
	}
	return e, err
}

func (s *Store) ListEntities(ctx context.Context, entityType string) ([]directory.Entity, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+entityColumns+` from entities
		where $1 = '' or type = $1
		order by name
	`, entityType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []directory.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

func (s *Store) UpdateEntity(ctx context.Context, e *directory.Entity) error {
	res, err := s.db.ExecContext(ctx, `
		update entities
		set name = $2, email = $3, phone = $4, address = $5, updated_at = $6
		where id = $1
	`, e.ID, e.Name, nullIfEmpty(e.Email), nullIfEmpty(e.Phone), nullIfEmpty(e.Address), e.UpdatedAt)
	if err != nil {
		return err
	}
	return errIfNoRows(res, directory.ErrNotFound)
}

func (s *Store) DeleteEntity(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from entities where id = $1`, id)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return fmt.Errorf("%w: entity is still referenced", directory.ErrConflict)
		}
		return err
	}
	return errIfNoRows(res, directory.ErrNotFound)
}

// SetEntityType performs the prospect conversion as a conditional update;
// a concurrent conversion loses and reports conflict.
func (s *Store) SetEntityType(ctx context.Context, id, fromType, toType string) error {
	res, err := s.db.ExecContext(ctx, `
		update entities set type = $3, updated_at = now()
		where id = $1 and type = $2
	`, id, fromType, toType)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := s.GetEntity(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("%w: entity is not a %s", directory.ErrConflict, fromType)
	}
	return nil
}

// AdminEntity returns the singleton administrative entity. The oldest row
// wins if misconfiguration ever produces more than one.
func (s *Store) AdminEntity(ctx context.Context) (directory.Entity, error) {
	row := s.db.QueryRowContext(ctx, `
		select `+entityColumns+` from entities
		where type = $1
		order by created_at
		limit 1
	`, directory.EntityAdmin)
	e, err := scanEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return directory.Entity{}, directory.ErrNoAdminEntity
	}
	return e, err
}

const siteColumns = `id, entity_id, name, coalesce(domain,''), active, created_at, updated_at`

func (s *Store) CreateSite(ctx context.Context, site *directory.Site) error {
	_, err := s.db.ExecContext(ctx, `
		insert into sites (id, entity_id, name, domain, active, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7)
	`, site.ID, site.EntityID, site.Name, nullIfEmpty(site.Domain), site.Active, site.CreatedAt, site.UpdatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return fmt.Errorf("%w: entity does not exist", directory.ErrInvalidInput)
		}
		return err
	}
	return nil
}

func (s *Store) GetSite(ctx context.Context, id string) (directory.Site, error) {
	row := s.db.QueryRowContext(ctx, `select `+siteColumns+` from sites where id = $1`, id)
	site, err := scanSite(row)
	if errors.Is(err, sql.ErrNoRows) {
		return directory.Site{}, directory.ErrNotFound
	}
	return site, err
}

func (s *Store) ListSites(ctx context.Context, entityID string) ([]directory.Site, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+siteColumns+` from sites
		where $1 = '' or entity_id = $1
		order by name
	`, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []directory.Site
	for rows.Next() {
		site, err := scanSite(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, site)
	}
	return result, rows.Err()
}

func (s *Store) SetSiteActive(ctx context.Context, id string, active bool) error {
	res, err := s.db.ExecContext(ctx, `
		update sites set active = $2, updated_at = now()
		where id = $1
	`, id, active)
	if err != nil {
		return err
	}
	return errIfNoRows(res, directory.ErrNotFound)
}

func (s *Store) DeleteSite(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from sites where id = $1`, id)
	if err != nil {
		return err
	}
	return errIfNoRows(res, directory.ErrNotFound)
}

// PartnerSiteCounts feeds the allocator: active sites per partner entity.
func (s *Store) PartnerSiteCounts(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		select st.entity_id, count(*)
		from sites st
		join entities e on e.id = st.entity_id
		where st.active and e.type = $1
		group by st.entity_id
	`, directory.EntityPartner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var id string
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		counts[id] = n
	}
	return counts, rows.Err()
}

func scanEntity(row rowScanner) (directory.Entity, error) {
	var e directory.Entity
	err := row.Scan(&e.ID, &e.Type, &e.Name, &e.Email, &e.Phone, &e.Address, &e.CreatedAt, &e.UpdatedAt)
	return e, err
}

func scanSite(row rowScanner) (directory.Site, error) {
	var site directory.Site
	err := row.Scan(&site.ID, &site.EntityID, &site.Name, &site.Domain, &site.Active, &site.CreatedAt, &site.UpdatedAt)
	return site, err
}
