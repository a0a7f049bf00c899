package directory

import (
	"context"
	"errors"
	"testing"
)

type memStore struct {
	entities map[string]Entity
	sites    map[string]Site
}

func newMemStore() *memStore {
	return &memStore{entities: map[string]Entity{}, sites: map[string]Site{}}
}

func (m *memStore) CreateEntity(_ context.Context, e *Entity) error {
	m.entities[e.ID] = *e
	return nil
}

func (m *memStore) GetEntity(_ context.Context, id string) (Entity, error) {
	e, ok := m.entities[id]
	if !ok {
		return Entity{}, ErrNotFound
	}
	return e, nil
}

func (m *memStore) ListEntities(_ context.Context, entityType string) ([]Entity, error) {
	var out []Entity
	for _, e := range m.entities {
		if entityType == "" || e.Type == entityType {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memStore) UpdateEntity(_ context.Context, e *Entity) error {
	if _, ok := m.entities[e.ID]; !ok {
		return ErrNotFound
	}
	m.entities[e.ID] = *e
	return nil
}

func (m *memStore) DeleteEntity(_ context.Context, id string) error {
	if _, ok := m.entities[id]; !ok {
		return ErrNotFound
	}
	delete(m.entities, id)
	return nil
}

func (m *memStore) SetEntityType(_ context.Context, id, fromType, toType string) error {
	e, ok := m.entities[id]
	if !ok || e.Type != fromType {
		return ErrConflict
	}
	e.Type = toType
	m.entities[id] = e
	return nil
}

func (m *memStore) AdminEntity(_ context.Context) (Entity, error) {
	for _, e := range m.entities {
		if e.Type == EntityAdmin {
			return e, nil
		}
	}
	return Entity{}, ErrNoAdminEntity
}

func (m *memStore) CreateSite(_ context.Context, s *Site) error {
	m.sites[s.ID] = *s
	return nil
}

func (m *memStore) GetSite(_ context.Context, id string) (Site, error) {
	s, ok := m.sites[id]
	if !ok {
		return Site{}, ErrNotFound
	}
	return s, nil
}

func (m *memStore) ListSites(_ context.Context, entityID string) ([]Site, error) {
	var out []Site
	for _, s := range m.sites {
		if entityID == "" || s.EntityID == entityID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memStore) SetSiteActive(_ context.Context, id string, active bool) error {
	s, ok := m.sites[id]
	if !ok {
		return ErrNotFound
	}
	s.Active = active
	m.sites[id] = s
	return nil
}

func (m *memStore) DeleteSite(_ context.Context, id string) error {
	delete(m.sites, id)
	return nil
}

func (m *memStore) PartnerSiteCounts(_ context.Context) (map[string]int, error) {
	counts := map[string]int{}
	for _, s := range m.sites {
		if s.Active {
			counts[s.EntityID]++
		}
	}
	return counts, nil
}

func newTestService(t *testing.T) (*Service, *memStore) {
	t.Helper()
	store := newMemStore()
	svc, err := NewService(store)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, store
}

func TestCreateEntityValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.CreateEntity(ctx, CreateEntityParams{Type: "vendor", Name: "X"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for unknown type, got %v", err)
	}
	if _, err := svc.CreateEntity(ctx, CreateEntityParams{Type: EntityClient, Name: "  "}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty name, got %v", err)
	}

	e, err := svc.CreateEntity(ctx, CreateEntityParams{Type: "Partner", Name: " Acme Media ", Email: "Ops@Acme.io"})
	if err != nil {
		t.Fatalf("CreateEntity: %v", err)
	}
	if e.Type != EntityPartner || e.Name != "Acme Media" || e.Email != "ops@acme.io" {
		t.Fatalf("unexpected normalized entity: %+v", e)
	}
}

func TestAdminEntitySingleton(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.AdminEntity(ctx); !errors.Is(err, ErrNoAdminEntity) {
		t.Fatalf("expected ErrNoAdminEntity, got %v", err)
	}
	if _, err := svc.CreateEntity(ctx, CreateEntityParams{Type: EntityAdmin, Name: "Platform"}); err != nil {
		t.Fatalf("create admin: %v", err)
	}
	if _, err := svc.CreateEntity(ctx, CreateEntityParams{Type: EntityAdmin, Name: "Second"}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict on second admin, got %v", err)
	}
}

func TestConvertProspect(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	prospect, err := svc.CreateEntity(ctx, CreateEntityParams{Type: EntityProspect, Name: "Lead Co"})
	if err != nil {
		t.Fatalf("create prospect: %v", err)
	}
	converted, err := svc.ConvertProspect(ctx, prospect.ID)
	if err != nil {
		t.Fatalf("ConvertProspect: %v", err)
	}
	if converted.Type != EntityClient {
		t.Fatalf("expected client after conversion, got %s", converted.Type)
	}

	// Already converted.
	if _, err := svc.ConvertProspect(ctx, prospect.ID); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict on reconversion, got %v", err)
	}
	if _, err := svc.ConvertProspect(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSitesBelongToPartners(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	client, _ := svc.CreateEntity(ctx, CreateEntityParams{Type: EntityClient, Name: "Client Co"})
	partner, _ := svc.CreateEntity(ctx, CreateEntityParams{Type: EntityPartner, Name: "Partner Co"})

	if _, err := svc.CreateSite(ctx, CreateSiteParams{EntityID: client.ID, Name: "site"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for client-owned site, got %v", err)
	}
	site, err := svc.CreateSite(ctx, CreateSiteParams{EntityID: partner.ID, Name: "News", Domain: "News.Example.COM"})
	if err != nil {
		t.Fatalf("CreateSite: %v", err)
	}
	if !site.Active || site.Domain != "news.example.com" {
		t.Fatalf("unexpected site: %+v", site)
	}
}

func TestPartnerSiteCountsSkipsInactive(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	partner, _ := svc.CreateEntity(ctx, CreateEntityParams{Type: EntityPartner, Name: "P"})
	s1, _ := svc.CreateSite(ctx, CreateSiteParams{EntityID: partner.ID, Name: "a"})
	_, _ = svc.CreateSite(ctx, CreateSiteParams{EntityID: partner.ID, Name: "b"})

	if err := svc.SetSiteActive(ctx, s1.ID, false); err != nil {
		t.Fatalf("SetSiteActive: %v", err)
	}
	counts, err := svc.PartnerSiteCounts(ctx)
	if err != nil {
		t.Fatalf("PartnerSiteCounts: %v", err)
	}
	if counts[partner.ID] != 1 {
		t.Fatalf("expected 1 active site, got %d", counts[partner.ID])
	}
}
