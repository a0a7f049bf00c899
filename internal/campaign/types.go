package campaign

import (
	"errors"
	"time"
)

// Campaign statuses.
const (
	StatusDraft     = "draft"
	StatusActive    = "active"
	StatusPaused    = "paused"
	StatusCompleted = "completed"
)

// Distribution statuses. The pending -> paid transition is terminal.
const (
	DistributionPending = "pending"
	DistributionPaid    = "paid"
)

// Proof statuses.
const (
	ProofPending  = "pending"
	ProofApproved = "approved"
	ProofRejected = "rejected"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrConflict     = errors.New("conflict")
)

// Campaign is an advertising engagement for one client entity. Money is
// int64 minor units. No floats.
type Campaign struct {
	ID            string    `json:"id"`
	ClientID      string    `json:"client_id"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	Budget        int64     `json:"budget"`
	AdminShare    int64     `json:"admin_share"`
	PartnersShare int64     `json:"partners_share"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Distribution is one row of a campaign's allocation: a partner's share,
// or the single administrative row. Percentages are basis points.
type Distribution struct {
	ID         string     `json:"id"`
	CampaignID string     `json:"campaign_id"`
	EntityID   string     `json:"entity_id"`
	SiteCount  int        `json:"site_count"`
	PercentBps int64      `json:"percent_bps"`
	Amount     int64      `json:"amount"`
	Status     string     `json:"status"`
	PaidAt     *time.Time `json:"paid_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Proof is a partner's evidence of delivery for a campaign, reviewed by
// the platform operator. Separate lifecycle from payment distributions.
type Proof struct {
	ID         string    `json:"id"`
	CampaignID string    `json:"campaign_id"`
	EntityID   string    `json:"entity_id"`
	SiteID     string    `json:"site_id"`
	ObjectKey  string    `json:"object_key"`
	Note       string    `json:"note,omitempty"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Stats summarizes the campaigns visible to a principal.
type Stats struct {
	Campaigns       int   `json:"campaigns"`
	ActiveCampaigns int   `json:"active_campaigns"`
	TotalBudget     int64 `json:"total_budget"`
	PaidAmount      int64 `json:"paid_amount"`
	PendingAmount   int64 `json:"pending_amount"`
}
