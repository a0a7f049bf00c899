package pg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"ads360.org/internal/campaign"
	"ads360.org/internal/finance"
	"ads360.org/internal/rbac"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewWithDB(db), mock
}

func distributionRow(id, campaignID, entityID string, amount int64, status string, paidAt any) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "campaign_id", "entity_id", "site_count", "percent_bps", "amount", "status", "paid_at", "created_at", "name",
	}).AddRow(id, campaignID, entityID, 3, int64(7500), amount, status, paidAt, time.Now(), "Spring push")
}

func TestMarkDistributionPaidFresh(t *testing.T) {
	store, mock := newMockStore(t)
	paidAt := time.Date(2025, 3, 9, 12, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec("update revenue_distributions").
		WithArgs("dist-1", paidAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("select (.+) from revenue_distributions d(.+)join campaigns c").
		WithArgs("dist-1").
		WillReturnRows(distributionRow("dist-1", "camp-1", "ent-1", 225, "paid", paidAt))
	mock.ExpectExec("insert into invoices").
		WithArgs(sqlmock.AnyArg(), "INV-20250309-dist-1", "ent-1", "dist-1", sqlmock.AnyArg(),
			int64(225), int64(225), finance.InvoicePaid, paidAt, paidAt).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("insert into payments").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), int64(225), finance.PaymentMethodTransfer, "campaign camp-1", paidAt).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	res, err := store.MarkDistributionPaid(context.Background(), "dist-1", paidAt)
	if err != nil {
		t.Fatalf("MarkDistributionPaid: %v", err)
	}
	if res.AlreadyPaid {
		t.Fatal("expected fresh payout")
	}
	if res.Invoice.Number != "INV-20250309-dist-1" {
		t.Fatalf("unexpected invoice number %q", res.Invoice.Number)
	}
	if res.Distribution.PaidAt == nil || !res.Distribution.PaidAt.Equal(paidAt) {
		t.Fatalf("unexpected paid_at: %v", res.Distribution.PaidAt)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestMarkDistributionPaidReplayReturnsExistingInvoice(t *testing.T) {
	store, mock := newMockStore(t)
	paidAt := time.Date(2025, 3, 9, 12, 0, 0, 0, time.UTC)
	earlier := paidAt.Add(-time.Hour)

	mock.ExpectBegin()
	mock.ExpectExec("update revenue_distributions").
		WithArgs("dist-1", paidAt).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("select (.+) from revenue_distributions d(.+)join campaigns c").
		WithArgs("dist-1").
		WillReturnRows(distributionRow("dist-1", "camp-1", "ent-1", 225, "paid", earlier))
	mock.ExpectQuery("select (.+) from invoices").
		WithArgs("dist-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "number", "entity_id", "distribution_id", "description",
			"total_amount", "paid_amount", "status", "created_at", "updated_at",
		}).AddRow("inv-1", "INV-20250309-dist-1", "ent-1", "dist-1", "Revenue share for campaign Spring push",
			int64(225), int64(225), finance.InvoicePaid, earlier, earlier))
	mock.ExpectCommit()

	res, err := store.MarkDistributionPaid(context.Background(), "dist-1", paidAt)
	if err != nil {
		t.Fatalf("MarkDistributionPaid replay: %v", err)
	}
	if !res.AlreadyPaid {
		t.Fatal("expected AlreadyPaid")
	}
	if res.Invoice.ID != "inv-1" {
		t.Fatalf("expected existing invoice, got %+v", res.Invoice)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestMarkDistributionPaidMissing(t *testing.T) {
	store, mock := newMockStore(t)
	paidAt := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec("update revenue_distributions").
		WithArgs("missing", paidAt).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("select (.+) from revenue_distributions d(.+)join campaigns c").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "campaign_id", "entity_id", "site_count", "percent_bps", "amount", "status", "paid_at", "created_at", "name",
		}))
	mock.ExpectRollback()

	_, err := store.MarkDistributionPaid(context.Background(), "missing", paidAt)
	if !errors.Is(err, campaign.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSetCampaignStatusConflict(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("update campaigns set status").
		WithArgs("camp-1", campaign.StatusActive, campaign.StatusPaused).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("select status from campaigns").
		WithArgs("camp-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("completed"))

	err := store.SetCampaignStatus(context.Background(), "camp-1", []string{campaign.StatusPaused}, campaign.StatusActive)
	if !errors.Is(err, campaign.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDeleteCampaignBlockedByDependentsIsConflict(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("delete from campaigns").
		WithArgs("camp-1").
		WillReturnError(pgForeignKeyViolation())

	err := store.DeleteCampaign(context.Background(), "camp-1")
	if !errors.Is(err, campaign.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestListCampaignsAppliesVisibilityArgs(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("select (.+) from campaigns c").
		WithArgs("", "partner-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "client_id", "name", "description", "budget",
			"admin_share", "partners_share", "status", "created_at", "updated_at",
		}).AddRow("camp-1", "client-1", "Spring push", "", int64(1000),
			int64(700), int64(300), campaign.StatusActive, time.Now(), time.Now()))

	list, err := store.ListCampaigns(context.Background(), rbac.Visibility{PartnerEntityID: "partner-1"})
	if err != nil {
		t.Fatalf("ListCampaigns: %v", err)
	}
	if len(list) != 1 || list[0].ID != "camp-1" {
		t.Fatalf("unexpected list: %+v", list)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
