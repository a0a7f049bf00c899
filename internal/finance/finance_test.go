package finance

import (
	"testing"
	"time"
)

func TestInvoiceNumber(t *testing.T) {
	paidAt := time.Date(2025, 3, 9, 23, 59, 0, 0, time.UTC)
	got := InvoiceNumber(paidAt, "01ARZ3NDEKTSV4RRFFQ69G5FAV")
	want := "INV-20250309-01ARZ3NDEKTSV4RRFFQ69G5FAV"
	if got != want {
		t.Fatalf("InvoiceNumber = %q, want %q", got, want)
	}
}

func TestStatusForAmounts(t *testing.T) {
	cases := []struct {
		name     string
		total    int64
		paid     int64
		fallback string
		want     string
	}{
		{"unpaid draft", 1000, 0, InvoiceDraft, InvoiceDraft},
		{"unpaid sent", 1000, 0, InvoiceSent, InvoiceSent},
		{"partial", 1000, 1, InvoiceSent, InvoicePartiallyPaid},
		{"almost", 1000, 999, InvoiceSent, InvoicePartiallyPaid},
		{"exact", 1000, 1000, InvoiceSent, InvoicePaid},
		{"overpaid", 1000, 1500, InvoiceSent, InvoicePaid},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := StatusForAmounts(tc.total, tc.paid, tc.fallback); got != tc.want {
				t.Fatalf("StatusForAmounts(%d, %d, %s) = %s, want %s", tc.total, tc.paid, tc.fallback, got, tc.want)
			}
		})
	}
}
