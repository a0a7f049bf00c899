package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"ads360.org/internal/campaign"
	"ads360.org/internal/finance"
	"ads360.org/internal/ids"
	"ads360.org/internal/rbac"
)

const campaignColumns = `c.id, c.client_id, c.name, coalesce(c.description,''), c.budget,
	c.admin_share, c.partners_share, c.status, c.created_at, c.updated_at`

// Visibility is applied inside the SQL predicate, never as a post-hoc
// filter, so scoped principals cannot infer hidden row counts.
const campaignVisibility = `
	($1 = '' or c.client_id = $1)
	and ($2 = '' or exists (
		select 1 from revenue_distributions vd
		where vd.campaign_id = c.id and vd.entity_id = $2
	))`

func (s *Store) CreateCampaign(ctx context.Context, c *campaign.Campaign, rows []campaign.Distribution) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		insert into campaigns (id, client_id, name, description, budget, admin_share, partners_share, status, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, c.ID, c.ClientID, c.Name, nullIfEmpty(c.Description), c.Budget, c.AdminShare, c.PartnersShare,
		c.Status, c.CreatedAt, c.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return fmt.Errorf("%w: client entity does not exist", campaign.ErrNotFound)
		}
		return err
	}

	for i := range rows {
		d := &rows[i]
		if _, err := tx.ExecContext(ctx, `
			insert into revenue_distributions (id, campaign_id, entity_id, site_count, percent_bps, amount, status, created_at)
			values ($1, $2, $3, $4, $5, $6, $7, $8)
		`, d.ID, d.CampaignID, d.EntityID, d.SiteCount, d.PercentBps, d.Amount, d.Status, d.CreatedAt); err != nil {
			if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
				return fmt.Errorf("%w: duplicate distribution for entity %s", campaign.ErrConflict, d.EntityID)
			}
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) GetCampaign(ctx context.Context, id string, vis rbac.Visibility) (campaign.Campaign, error) {
	row := s.db.QueryRowContext(ctx, `
		select `+campaignColumns+` from campaigns c
		where `+campaignVisibility+` and c.id = $3
	`, vis.ClientEntityID, vis.PartnerEntityID, id)
	c, err := scanCampaign(row)
	if errors.Is(err, sql.ErrNoRows) {
		return campaign.Campaign{}, campaign.ErrNotFound
	}
	return c, err
}

func (s *Store) ListCampaigns(ctx context.Context, vis rbac.Visibility) ([]campaign.Campaign, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+campaignColumns+` from campaigns c
		where `+campaignVisibility+`
		order by c.created_at desc
	`, vis.ClientEntityID, vis.PartnerEntityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []campaign.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func (s *Store) SetCampaignStatus(ctx context.Context, id string, allowedFrom []string, to string) error {
	placeholders := make([]string, len(allowedFrom))
	args := []any{id, to}
	for i, from := range allowedFrom {
		placeholders[i] = fmt.Sprintf("$%d", i+3)
		args = append(args, from)
	}
	res, err := s.db.ExecContext(ctx, `
		update campaigns set status = $2, updated_at = now()
		where id = $1 and status in (`+strings.Join(placeholders, ", ")+`)
	`, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var current string
		err := s.db.QueryRowContext(ctx, `select status from campaigns where id = $1`, id).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return campaign.ErrNotFound
		}
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: campaign is %s", campaign.ErrConflict, current)
	}
	return nil
}

// DeleteCampaign relies on the schema cascading distributions and proofs;
// invoices keep their amounts and lose only the distribution reference.
func (s *Store) DeleteCampaign(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from campaigns where id = $1`, id)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return fmt.Errorf("%w: campaign has dependent records", campaign.ErrConflict)
		}
		return err
	}
	return errIfNoRows(res, campaign.ErrNotFound)
}

func (s *Store) CampaignStats(ctx context.Context, vis rbac.Visibility) (campaign.Stats, error) {
	var stats campaign.Stats
	err := s.db.QueryRowContext(ctx, `
		select count(*),
			count(*) filter (where c.status = 'active'),
			coalesce(sum(c.budget), 0)
		from campaigns c
		where `+campaignVisibility+`
	`, vis.ClientEntityID, vis.PartnerEntityID).Scan(&stats.Campaigns, &stats.ActiveCampaigns, &stats.TotalBudget)
	if err != nil {
		return campaign.Stats{}, err
	}

	err = s.db.QueryRowContext(ctx, `
		select coalesce(sum(d.amount) filter (where d.status = 'paid'), 0),
			coalesce(sum(d.amount) filter (where d.status <> 'paid'), 0)
		from revenue_distributions d
		join campaigns c on c.id = d.campaign_id
		where `+campaignVisibility+`
		and ($2 = '' or d.entity_id = $2)
	`, vis.ClientEntityID, vis.PartnerEntityID).Scan(&stats.PaidAmount, &stats.PendingAmount)
	if err != nil {
		return campaign.Stats{}, err
	}
	return stats, nil
}

const distributionColumns = `d.id, d.campaign_id, d.entity_id, d.site_count, d.percent_bps, d.amount, d.status, d.paid_at, d.created_at`

func (s *Store) ListDistributions(ctx context.Context, campaignID string, vis rbac.Visibility) ([]campaign.Distribution, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+distributionColumns+`
		from revenue_distributions d
		join campaigns c on c.id = d.campaign_id
		where `+campaignVisibility+`
		and d.campaign_id = $3
		and ($2 = '' or d.entity_id = $2)
		order by d.entity_id
	`, vis.ClientEntityID, vis.PartnerEntityID, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []campaign.Distribution
	for rows.Next() {
		d, err := scanDistribution(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, d)
	}
	return result, rows.Err()
}

func (s *Store) GetDistribution(ctx context.Context, id string) (campaign.Distribution, error) {
	row := s.db.QueryRowContext(ctx, `
		select `+distributionColumns+` from revenue_distributions d where d.id = $1
	`, id)
	d, err := scanDistribution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return campaign.Distribution{}, campaign.ErrNotFound
	}
	return d, err
}

func (s *Store) PendingDistributionIDs(ctx context.Context, campaignID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id from revenue_distributions
		where campaign_id = $1 and status <> 'paid'
		order by entity_id
	`, campaignID)
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

// MarkDistributionPaid settles one distribution atomically: a conditional
// update wins the race, then invoice and payment land in the same
// transaction. The losing (already paid) path returns the invoice written
// by the winner, so replays never double-invoice.
func (s *Store) MarkDistributionPaid(ctx context.Context, id string, paidAt time.Time) (campaign.PaymentResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return campaign.PaymentResult{}, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		update revenue_distributions
		set status = 'paid', paid_at = $2
		where id = $1 and status <> 'paid'
	`, id, paidAt)
	if err != nil {
		return campaign.PaymentResult{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return campaign.PaymentResult{}, err
	}

	var (
		d            campaign.Distribution
		dPaidAt      sql.NullTime
		campaignName string
	)
	err = tx.QueryRowContext(ctx, `
		select `+distributionColumns+`, c.name
		from revenue_distributions d
		join campaigns c on c.id = d.campaign_id
		where d.id = $1
	`, id).Scan(&d.ID, &d.CampaignID, &d.EntityID, &d.SiteCount, &d.PercentBps, &d.Amount,
		&d.Status, &dPaidAt, &d.CreatedAt, &campaignName)
	if errors.Is(err, sql.ErrNoRows) {
		return campaign.PaymentResult{}, campaign.ErrNotFound
	}
	if err != nil {
		return campaign.PaymentResult{}, err
	}
	if dPaidAt.Valid {
		t := dPaidAt.Time
		d.PaidAt = &t
	}

	if n == 0 {
		// Already paid: hand back the existing invoice.
		inv, err := s.invoiceForDistribution(ctx, tx, d.ID)
		if err != nil {
			return campaign.PaymentResult{}, err
		}
		if err := tx.Commit(); err != nil {
			return campaign.PaymentResult{}, err
		}
		return campaign.PaymentResult{Distribution: d, Invoice: inv, AlreadyPaid: true}, nil
	}

	inv := finance.Invoice{
		ID:             ids.New(),
		Number:         finance.InvoiceNumber(paidAt, d.ID),
		EntityID:       d.EntityID,
		DistributionID: d.ID,
		Description:    "Revenue share for campaign " + campaignName,
		TotalAmount:    d.Amount,
		PaidAmount:     d.Amount,
		Status:         finance.InvoicePaid,
		CreatedAt:      paidAt,
		UpdatedAt:      paidAt,
	}
	if _, err := tx.ExecContext(ctx, `
		insert into invoices (id, number, entity_id, distribution_id, description, total_amount, paid_amount, status, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, inv.ID, inv.Number, inv.EntityID, inv.DistributionID, inv.Description,
		inv.TotalAmount, inv.PaidAmount, inv.Status, inv.CreatedAt, inv.UpdatedAt); err != nil {
		return campaign.PaymentResult{}, err
	}

	if _, err := tx.ExecContext(ctx, `
		insert into payments (id, invoice_id, amount, method, reference, created_at)
		values ($1, $2, $3, $4, $5, $6)
	`, ids.New(), inv.ID, d.Amount, finance.PaymentMethodTransfer,
		"campaign "+d.CampaignID, paidAt); err != nil {
		return campaign.PaymentResult{}, err
	}

	if err := tx.Commit(); err != nil {
		return campaign.PaymentResult{}, err
	}
	return campaign.PaymentResult{Distribution: d, Invoice: inv}, nil
}

func (s *Store) invoiceForDistribution(ctx context.Context, tx *sql.Tx, distributionID string) (finance.Invoice, error) {
	var inv finance.Invoice
	err := tx.QueryRowContext(ctx, `
		select id, number, entity_id, coalesce(distribution_id,''), coalesce(description,''),
			total_amount, paid_amount, status, created_at, updated_at
		from invoices
		where distribution_id = $1
	`, distributionID).Scan(&inv.ID, &inv.Number, &inv.EntityID, &inv.DistributionID, &inv.Description,
		&inv.TotalAmount, &inv.PaidAmount, &inv.Status, &inv.CreatedAt, &inv.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return finance.Invoice{}, campaign.ErrNotFound
	}
	return inv, err
}

const proofColumns = `p.id, p.campaign_id, p.entity_id, p.site_id, p.object_key, coalesce(p.note,''), p.status, p.created_at, p.updated_at`

func (s *Store) CreateProof(ctx context.Context, p *campaign.Proof) error {
	_, err := s.db.ExecContext(ctx, `
		insert into campaign_proofs (id, campaign_id, entity_id, site_id, object_key, note, status, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, p.ID, p.CampaignID, p.EntityID, p.SiteID, p.ObjectKey, nullIfEmpty(p.Note), p.Status, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return fmt.Errorf("%w: campaign or site does not exist", campaign.ErrNotFound)
		}
		return err
	}
	return nil
}

func (s *Store) GetProof(ctx context.Context, id string) (campaign.Proof, error) {
	row := s.db.QueryRowContext(ctx, `select `+proofColumns+` from campaign_proofs p where p.id = $1`, id)
	p, err := scanProof(row)
	if errors.Is(err, sql.ErrNoRows) {
		return campaign.Proof{}, campaign.ErrNotFound
	}
	return p, err
}

func (s *Store) ListProofs(ctx context.Context, campaignID string, vis rbac.Visibility) ([]campaign.Proof, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+proofColumns+`
		from campaign_proofs p
		join campaigns c on c.id = p.campaign_id
		where `+campaignVisibility+`
		and p.campaign_id = $3
		and ($2 = '' or p.entity_id = $2)
		order by p.created_at desc
	`, vis.ClientEntityID, vis.PartnerEntityID, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []campaign.Proof
	for rows.Next() {
		p, err := scanProof(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func (s *Store) SetProofStatus(ctx context.Context, id, from, to string) error {
	res, err := s.db.ExecContext(ctx, `
		update campaign_proofs set status = $3, updated_at = now()
		where id = $1 and status = $2
	`, id, from, to)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var current string
		err := s.db.QueryRowContext(ctx, `select status from campaign_proofs where id = $1`, id).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return campaign.ErrNotFound
		}
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: proof is %s", campaign.ErrConflict, current)
	}
	return nil
}

func scanCampaign(row rowScanner) (campaign.Campaign, error) {
	var c campaign.Campaign
	err := row.Scan(&c.ID, &c.ClientID, &c.Name, &c.Description, &c.Budget,
		&c.AdminShare, &c.PartnersShare, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func scanDistribution(row rowScanner) (campaign.Distribution, error) {
	var (
		d      campaign.Distribution
		paidAt sql.NullTime
	)
	if err := row.Scan(&d.ID, &d.CampaignID, &d.EntityID, &d.SiteCount, &d.PercentBps,
		&d.Amount, &d.Status, &paidAt, &d.CreatedAt); err != nil {
		return campaign.Distribution{}, err
	}
	if paidAt.Valid {
		t := paidAt.Time
		d.PaidAt = &t
	}
	return d, nil
}

func scanProof(row rowScanner) (campaign.Proof, error) {
	var p campaign.Proof
	err := row.Scan(&p.ID, &p.CampaignID, &p.EntityID, &p.SiteID, &p.ObjectKey,
		&p.Note, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}
