package directory

import (
	"context"
	"errors"
	"time"
)

// Entity types. A prospect is transient: it becomes a client on conversion.
const (
	EntityClient   = "client"
	EntityPartner  = "partner"
	EntityAdmin    = "admin"
	EntityProspect = "prospect"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrConflict     = errors.New("conflict")

	// ErrNoAdminEntity is returned when no entity of type admin exists.
	// Revenue allocation cannot proceed without one.
	ErrNoAdminEntity = errors.New("no administrative entity configured")
)

// Entity is a business organization record, distinct from a user account.
type Entity struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Address   string    `json:"address,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Site belongs to exactly one partner entity. Only active sites count
// toward revenue allocation weights.
type Site struct {
	ID        string    `json:"id"`
	EntityID  string    `json:"entity_id"`
	Name      string    `json:"name"`
	Domain    string    `json:"domain"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store persists entities and sites.
type Store interface {
	CreateEntity(ctx context.Context, e *Entity) error
	GetEntity(ctx context.Context, id string) (Entity, error)
	ListEntities(ctx context.Context, entityType string) ([]Entity, error)
	UpdateEntity(ctx context.Context, e *Entity) error
	DeleteEntity(ctx context.Context, id string) error
	SetEntityType(ctx context.Context, id, fromType, toType string) error
	AdminEntity(ctx context.Context) (Entity, error)

	CreateSite(ctx context.Context, s *Site) error
	GetSite(ctx context.Context, id string) (Site, error)
	ListSites(ctx context.Context, entityID string) ([]Site, error)
	SetSiteActive(ctx context.Context, id string, active bool) error
	DeleteSite(ctx context.Context, id string) error
	PartnerSiteCounts(ctx context.Context) (map[string]int, error)
}

func validEntityType(t string) bool {
	switch t {
	case EntityClient, EntityPartner, EntityAdmin, EntityProspect:
		return true
	}
	return false
}
