package campaign

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ads360.org/internal/directory"
	"ads360.org/internal/ids"
	"ads360.org/internal/notify"
	"ads360.org/internal/obs"
	"ads360.org/internal/rbac"
)

// Service runs the campaign lifecycle and the revenue distribution flow.
type Service struct {
	store  Store
	dir    *directory.Service
	events notify.Publisher
	now    func() time.Time
}

func NewService(store Store, dir *directory.Service, events notify.Publisher) (*Service, error) {
	if store == nil {
		return nil, errors.New("campaign: store is required")
	}
	if dir == nil {
		return nil, errors.New("campaign: directory service is required")
	}
	if events == nil {
		events = notify.Nop{}
	}
	return &Service{store: store, dir: dir, events: events, now: time.Now}, nil
}

// CreateCampaignParams carries the fields accepted at campaign creation.
// Budget is int64 minor units.
type CreateCampaignParams struct {
	ClientID    string
	Name        string
	Description string
	Budget      int64
}

// CreateCampaign allocates the budget and persists the campaign together
// with its distribution rows in one transaction. The campaign starts in
// draft status.
func (s *Service) CreateCampaign(ctx context.Context, params CreateCampaignParams) (Campaign, []Distribution, error) {
	params.ClientID = strings.TrimSpace(params.ClientID)
	params.Name = strings.TrimSpace(params.Name)
	if params.ClientID == "" {
		return Campaign{}, nil, fmt.Errorf("%w: client_id is required", ErrInvalidInput)
	}
	if params.Name == "" {
		return Campaign{}, nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}

	client, err := s.dir.GetEntity(ctx, params.ClientID)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return Campaign{}, nil, fmt.Errorf("%w: client entity %s", ErrNotFound, params.ClientID)
		}
		return Campaign{}, nil, err
	}
	if client.Type != directory.EntityClient {
		return Campaign{}, nil, fmt.Errorf("%w: entity %s is %s, campaigns belong to clients", ErrInvalidInput, client.ID, client.Type)
	}

	admin, err := s.dir.AdminEntity(ctx)
	if err != nil {
		return Campaign{}, nil, err
	}

	counts, err := s.dir.PartnerSiteCounts(ctx)
	if err != nil {
		return Campaign{}, nil, err
	}
	alloc, err := Allocate(params.Budget, counts)
	if err != nil {
		return Campaign{}, nil, err
	}

	now := s.now().UTC()
	c := Campaign{
		ID:            ids.New(),
		ClientID:      client.ID,
		Name:          params.Name,
		Description:   strings.TrimSpace(params.Description),
		Budget:        params.Budget,
		AdminShare:    alloc.AdminShare,
		PartnersShare: alloc.PartnersShare,
		Status:        StatusDraft,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	rows := make([]Distribution, 0, len(alloc.Lines)+1)
	rows = append(rows, Distribution{
		ID:         ids.New(),
		CampaignID: c.ID,
		EntityID:   admin.ID,
		SiteCount:  0,
		PercentBps: AdminShareBps,
		Amount:     alloc.AdminShare,
		Status:     DistributionPending,
		CreatedAt:  now,
	})
	for _, line := range alloc.Lines {
		rows = append(rows, Distribution{
			ID:         ids.New(),
			CampaignID: c.ID,
			EntityID:   line.EntityID,
			SiteCount:  line.SiteCount,
			PercentBps: line.PercentBps,
			Amount:     line.Amount,
			Status:     DistributionPending,
			CreatedAt:  now,
		})
	}

	if err := s.store.CreateCampaign(ctx, &c, rows); err != nil {
		return Campaign{}, nil, err
	}
	_ = s.events.Publish(ctx, notify.Event{
		Type: notify.EventCampaignCreated,
		Data: map[string]any{
			"campaign_id": c.ID,
			"client_id":   c.ClientID,
			"budget":      c.Budget,
		},
	})
	return c, rows, nil
}

func (s *Service) GetCampaign(ctx context.Context, id string, vis rbac.Visibility) (Campaign, error) {
	if strings.TrimSpace(id) == "" {
		return Campaign{}, fmt.Errorf("%w: campaign id is required", ErrInvalidInput)
	}
	return s.store.GetCampaign(ctx, id, vis)
}

func (s *Service) ListCampaigns(ctx context.Context, vis rbac.Visibility) ([]Campaign, error) {
	return s.store.ListCampaigns(ctx, vis)
}

func (s *Service) Stats(ctx context.Context, vis rbac.Visibility) (Stats, error) {
	return s.store.CampaignStats(ctx, vis)
}

// Lifecycle transitions. Each one is a conditional status update; a
// campaign in the wrong state yields ErrConflict.

func (s *Service) Activate(ctx context.Context, id string) error {
	return s.transition(ctx, id, []string{StatusDraft}, StatusActive)
}

func (s *Service) Pause(ctx context.Context, id string) error {
	return s.transition(ctx, id, []string{StatusActive}, StatusPaused)
}

// Resume reactivates a paused campaign. Only paused campaigns qualify.
func (s *Service) Resume(ctx context.Context, id string) error {
	return s.transition(ctx, id, []string{StatusPaused}, StatusActive)
}

func (s *Service) Complete(ctx context.Context, id string) error {
	return s.transition(ctx, id, []string{StatusActive, StatusPaused}, StatusCompleted)
}

func (s *Service) transition(ctx context.Context, id string, allowedFrom []string, to string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: campaign id is required", ErrInvalidInput)
	}
	return s.store.SetCampaignStatus(ctx, id, allowedFrom, to)
}

// DeleteCampaign removes the campaign and cascades its distributions and
// proofs.
func (s *Service) DeleteCampaign(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: campaign id is required", ErrInvalidInput)
	}
	return s.store.DeleteCampaign(ctx, id)
}

func (s *Service) ListDistributions(ctx context.Context, campaignID string, vis rbac.Visibility) ([]Distribution, error) {
	if strings.TrimSpace(campaignID) == "" {
		return nil, fmt.Errorf("%w: campaign id is required", ErrInvalidInput)
	}
	return s.store.ListDistributions(ctx, campaignID, vis)
}

// MarkPaid pays out one distribution: status flips to paid and the invoice
// plus payment are written in the same transaction. Re-marking an already
// paid distribution returns the existing invoice and no new records.
func (s *Service) MarkPaid(ctx context.Context, distributionID string) (PaymentResult, error) {
	distributionID = strings.TrimSpace(distributionID)
	if distributionID == "" {
		return PaymentResult{}, fmt.Errorf("%w: distribution id is required", ErrInvalidInput)
	}
	res, err := s.store.MarkDistributionPaid(ctx, distributionID, s.now().UTC())
	if err != nil {
		return PaymentResult{}, err
	}
	if !res.AlreadyPaid {
		obs.ObserveDistributionPaid()
		obs.ObserveInvoiceIssued()
		_ = s.events.Publish(ctx, notify.Event{
			Type: notify.EventDistributionPaid,
			Data: map[string]any{
				"distribution_id": res.Distribution.ID,
				"campaign_id":     res.Distribution.CampaignID,
				"entity_id":       res.Distribution.EntityID,
				"amount":          res.Distribution.Amount,
				"invoice_number":  res.Invoice.Number,
			},
		})
	}
	return res, nil
}

// BulkPaymentReport summarizes a MarkAllPaid run. Failures carry the
// distribution id and the error text; successfully paid rows are not
// rolled back when a later row fails.
type BulkPaymentReport struct {
	Paid        []PaymentResult `json:"paid"`
	AlreadyPaid int             `json:"already_paid"`
	Failed      []BulkFailure   `json:"failed,omitempty"`
}

type BulkFailure struct {
	DistributionID string `json:"distribution_id"`
	Error          string `json:"error"`
}

// MarkAllPaid pays out every pending distribution of a campaign, one
// transaction per row, and reports partial success. No eligible rows is
// an empty report, not an error.
func (s *Service) MarkAllPaid(ctx context.Context, campaignID string) (BulkPaymentReport, error) {
	campaignID = strings.TrimSpace(campaignID)
	if campaignID == "" {
		return BulkPaymentReport{}, fmt.Errorf("%w: campaign id is required", ErrInvalidInput)
	}
	if _, err := s.store.GetCampaign(ctx, campaignID, rbac.Visibility{}); err != nil {
		return BulkPaymentReport{}, err
	}

	pending, err := s.store.PendingDistributionIDs(ctx, campaignID)
	if err != nil {
		return BulkPaymentReport{}, err
	}

	var report BulkPaymentReport
	for _, id := range pending {
		res, err := s.MarkPaid(ctx, id)
		if err != nil {
			report.Failed = append(report.Failed, BulkFailure{DistributionID: id, Error: err.Error()})
			continue
		}
		if res.AlreadyPaid {
			report.AlreadyPaid++
			continue
		}
		report.Paid = append(report.Paid, res)
	}
	return report, nil
}

// AddProofParams carries a partner's proof submission.
type AddProofParams struct {
	CampaignID string
	SiteID     string
	ObjectKey  string
	Note       string
}

// AddProof records delivery evidence for a campaign. The site must belong
// to the submitting partner entity.
func (s *Service) AddProof(ctx context.Context, entityID string, params AddProofParams) (Proof, error) {
	entityID = strings.TrimSpace(entityID)
	params.CampaignID = strings.TrimSpace(params.CampaignID)
	params.SiteID = strings.TrimSpace(params.SiteID)
	params.ObjectKey = strings.TrimSpace(params.ObjectKey)
	if entityID == "" {
		return Proof{}, fmt.Errorf("%w: entity id is required", ErrInvalidInput)
	}
	if params.CampaignID == "" || params.SiteID == "" || params.ObjectKey == "" {
		return Proof{}, fmt.Errorf("%w: campaign_id, site_id and object_key are required", ErrInvalidInput)
	}

	if _, err := s.store.GetCampaign(ctx, params.CampaignID, rbac.Visibility{PartnerEntityID: entityID}); err != nil {
		return Proof{}, err
	}
	site, err := s.dir.GetSite(ctx, params.SiteID)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return Proof{}, fmt.Errorf("%w: site %s", ErrNotFound, params.SiteID)
		}
		return Proof{}, err
	}
	if site.EntityID != entityID {
		return Proof{}, fmt.Errorf("%w: site %s does not belong to entity %s", ErrInvalidInput, site.ID, entityID)
	}

	now := s.now().UTC()
	proof := Proof{
		ID:         ids.New(),
		CampaignID: params.CampaignID,
		EntityID:   entityID,
		SiteID:     params.SiteID,
		ObjectKey:  params.ObjectKey,
		Note:       strings.TrimSpace(params.Note),
		Status:     ProofPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.store.CreateProof(ctx, &proof); err != nil {
		return Proof{}, err
	}
	return proof, nil
}

func (s *Service) GetProof(ctx context.Context, id string) (Proof, error) {
	if strings.TrimSpace(id) == "" {
		return Proof{}, fmt.Errorf("%w: proof id is required", ErrInvalidInput)
	}
	return s.store.GetProof(ctx, id)
}

func (s *Service) ListProofs(ctx context.Context, campaignID string, vis rbac.Visibility) ([]Proof, error) {
	if strings.TrimSpace(campaignID) == "" {
		return nil, fmt.Errorf("%w: campaign id is required", ErrInvalidInput)
	}
	return s.store.ListProofs(ctx, campaignID, vis)
}

// ReviewProof settles a pending proof. Reviewing a settled proof is a
// conflict; the caller's privilege is checked at the API boundary.
func (s *Service) ReviewProof(ctx context.Context, id string, approve bool) (Proof, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Proof{}, fmt.Errorf("%w: proof id is required", ErrInvalidInput)
	}
	target := ProofRejected
	if approve {
		target = ProofApproved
	}
	if err := s.store.SetProofStatus(ctx, id, ProofPending, target); err != nil {
		return Proof{}, err
	}
	proof, err := s.store.GetProof(ctx, id)
	if err != nil {
		return Proof{}, err
	}
	_ = s.events.Publish(ctx, notify.Event{
		Type: notify.EventProofReviewed,
		Data: map[string]any{
			"proof_id":    proof.ID,
			"campaign_id": proof.CampaignID,
			"status":      proof.Status,
		},
	})
	return proof, nil
}
