package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ads360.org/internal/ids"
)

// Service wraps the store with validation and the prospect conversion flow.
type Service struct {
	store Store
	now   func() time.Time
}

func NewService(store Store) (*Service, error) {
	if store == nil {
		return nil, errors.New("directory: store is required")
	}
	return &Service{store: store, now: time.Now}, nil
}

// CreateEntityParams carries the fields accepted at entity creation.
type CreateEntityParams struct {
	Type    string
	Name    string
	Email   string
	Phone   string
	Address string
}

func (s *Service) CreateEntity(ctx context.Context, params CreateEntityParams) (Entity, error) {
	params.Type = strings.TrimSpace(strings.ToLower(params.Type))
	params.Name = strings.TrimSpace(params.Name)
	if !validEntityType(params.Type) {
		return Entity{}, fmt.Errorf("%w: unknown entity type %q", ErrInvalidInput, params.Type)
	}
	if params.Name == "" {
		return Entity{}, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if params.Type == EntityAdmin {
		// Admin entity is a singleton by convention.
		if _, err := s.store.AdminEntity(ctx); err == nil {
			return Entity{}, fmt.Errorf("%w: an administrative entity already exists", ErrConflict)
		} else if !errors.Is(err, ErrNoAdminEntity) {
			return Entity{}, err
		}
	}

	now := s.now().UTC()
	entity := Entity{
		ID:        ids.New(),
		Type:      params.Type,
		Name:      params.Name,
		Email:     strings.TrimSpace(strings.ToLower(params.Email)),
		Phone:     strings.TrimSpace(params.Phone),
		Address:   strings.TrimSpace(params.Address),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateEntity(ctx, &entity); err != nil {
		return Entity{}, err
	}
	return entity, nil
}

func (s *Service) GetEntity(ctx context.Context, id string) (Entity, error) {
	if strings.TrimSpace(id) == "" {
		return Entity{}, fmt.Errorf("%w: entity id is required", ErrInvalidInput)
	}
	return s.store.GetEntity(ctx, id)
}

// ListEntities returns entities, optionally filtered by type.
func (s *Service) ListEntities(ctx context.Context, entityType string) ([]Entity, error) {
	entityType = strings.TrimSpace(strings.ToLower(entityType))
	if entityType != "" && !validEntityType(entityType) {
		return nil, fmt.Errorf("%w: unknown entity type %q", ErrInvalidInput, entityType)
	}
	return s.store.ListEntities(ctx, entityType)
}

// UpdateEntityParams carries the mutable entity fields. Nil means unchanged.
type UpdateEntityParams struct {
	Name    *string
	Email   *string
	Phone   *string
	Address *string
}

func (s *Service) UpdateEntity(ctx context.Context, id string, params UpdateEntityParams) (Entity, error) {
	entity, err := s.GetEntity(ctx, id)
	if err != nil {
		return Entity{}, err
	}
	if params.Name != nil {
		name := strings.TrimSpace(*params.Name)
		if name == "" {
			return Entity{}, fmt.Errorf("%w: name cannot be empty", ErrInvalidInput)
		}
		entity.Name = name
	}
	if params.Email != nil {
		entity.Email = strings.TrimSpace(strings.ToLower(*params.Email))
	}
	if params.Phone != nil {
		entity.Phone = strings.TrimSpace(*params.Phone)
	}
	if params.Address != nil {
		entity.Address = strings.TrimSpace(*params.Address)
	}
	entity.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateEntity(ctx, &entity); err != nil {
		return Entity{}, err
	}
	return entity, nil
}

func (s *Service) DeleteEntity(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: entity id is required", ErrInvalidInput)
	}
	return s.store.DeleteEntity(ctx, id)
}

// ConvertProspect promotes a prospect entity to a client. Conversion of any
// other type is a conflict.
func (s *Service) ConvertProspect(ctx context.Context, id string) (Entity, error) {
	entity, err := s.GetEntity(ctx, id)
	if err != nil {
		return Entity{}, err
	}
	if entity.Type != EntityProspect {
		return Entity{}, fmt.Errorf("%w: entity %s is %s, not a prospect", ErrConflict, id, entity.Type)
	}
	if err := s.store.SetEntityType(ctx, id, EntityProspect, EntityClient); err != nil {
		return Entity{}, err
	}
	entity.Type = EntityClient
	entity.UpdatedAt = s.now().UTC()
	return entity, nil
}

// AdminEntity returns the singleton administrative entity.
func (s *Service) AdminEntity(ctx context.Context) (Entity, error) {
	return s.store.AdminEntity(ctx)
}

// CreateSiteParams carries the fields accepted at site creation.
type CreateSiteParams struct {
	EntityID string
	Name     string
	Domain   string
}

func (s *Service) CreateSite(ctx context.Context, params CreateSiteParams) (Site, error) {
	params.EntityID = strings.TrimSpace(params.EntityID)
	params.Name = strings.TrimSpace(params.Name)
	params.Domain = strings.TrimSpace(strings.ToLower(params.Domain))
	if params.EntityID == "" {
		return Site{}, fmt.Errorf("%w: entity_id is required", ErrInvalidInput)
	}
	if params.Name == "" {
		return Site{}, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	owner, err := s.store.GetEntity(ctx, params.EntityID)
	if err != nil {
		return Site{}, err
	}
	if owner.Type != EntityPartner {
		return Site{}, fmt.Errorf("%w: sites belong to partner entities, got %s", ErrInvalidInput, owner.Type)
	}

	now := s.now().UTC()
	site := Site{
		ID:        ids.New(),
		EntityID:  params.EntityID,
		Name:      params.Name,
		Domain:    params.Domain,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateSite(ctx, &site); err != nil {
		return Site{}, err
	}
	return site, nil
}

func (s *Service) GetSite(ctx context.Context, id string) (Site, error) {
	if strings.TrimSpace(id) == "" {
		return Site{}, fmt.Errorf("%w: site id is required", ErrInvalidInput)
	}
	return s.store.GetSite(ctx, id)
}

// ListSites returns sites, optionally scoped to one entity.
func (s *Service) ListSites(ctx context.Context, entityID string) ([]Site, error) {
	return s.store.ListSites(ctx, strings.TrimSpace(entityID))
}

func (s *Service) SetSiteActive(ctx context.Context, id string, active bool) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: site id is required", ErrInvalidInput)
	}
	return s.store.SetSiteActive(ctx, id, active)
}

func (s *Service) DeleteSite(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: site id is required", ErrInvalidInput)
	}
	return s.store.DeleteSite(ctx, id)
}

// PartnerSiteCounts returns active site counts keyed by partner entity id.
// Partners without active sites are absent from the map.
func (s *Service) PartnerSiteCounts(ctx context.Context) (map[string]int, error) {
	return s.store.PartnerSiteCounts(ctx)
}
