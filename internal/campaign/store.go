package campaign

import (
	"context"
	"time"

	"ads360.org/internal/finance"
	"ads360.org/internal/rbac"
)

// PaymentResult reports the outcome of marking one distribution paid.
// AlreadyPaid is set when the distribution had been paid before and the
// existing invoice is returned instead of a new one.
type PaymentResult struct {
	Distribution Distribution    `json:"distribution"`
	Invoice      finance.Invoice `json:"invoice"`
	AlreadyPaid  bool            `json:"already_paid"`
}

// Store persists campaigns, distributions and proofs. Mutations that the
// payment flow requires to be atomic are single store calls.
type Store interface {
	CreateCampaign(ctx context.Context, c *Campaign, rows []Distribution) error
	GetCampaign(ctx context.Context, id string, vis rbac.Visibility) (Campaign, error)
	ListCampaigns(ctx context.Context, vis rbac.Visibility) ([]Campaign, error)
	SetCampaignStatus(ctx context.Context, id string, allowedFrom []string, to string) error
	DeleteCampaign(ctx context.Context, id string) error
	CampaignStats(ctx context.Context, vis rbac.Visibility) (Stats, error)

	ListDistributions(ctx context.Context, campaignID string, vis rbac.Visibility) ([]Distribution, error)
	GetDistribution(ctx context.Context, id string) (Distribution, error)
	PendingDistributionIDs(ctx context.Context, campaignID string) ([]string, error)

	// MarkDistributionPaid performs the payout side effects in one
	// transaction: a conditional status update, an invoice and a payment.
	// When the distribution is already paid it returns the existing
	// invoice with AlreadyPaid set.
	MarkDistributionPaid(ctx context.Context, id string, paidAt time.Time) (PaymentResult, error)

	CreateProof(ctx context.Context, p *Proof) error
	GetProof(ctx context.Context, id string) (Proof, error)
	ListProofs(ctx context.Context, campaignID string, vis rbac.Visibility) ([]Proof, error)
	SetProofStatus(ctx context.Context, id, from, to string) error
}
