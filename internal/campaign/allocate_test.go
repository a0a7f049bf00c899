package campaign

import (
	"errors"
	"testing"
)

func lineFor(t *testing.T, alloc Allocation, entityID string) AllocationLine {
	t.Helper()
	for _, line := range alloc.Lines {
		if line.EntityID == entityID {
			return line
		}
	}
	t.Fatalf("no allocation line for %s", entityID)
	return AllocationLine{}
}

func TestAllocateProportionalSplit(t *testing.T) {
	// budget 1000, P1 three sites, P2 one site.
	alloc, err := Allocate(1000, map[string]int{"P1": 3, "P2": 1})
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if alloc.AdminShare != 700 || alloc.PartnersShare != 300 {
		t.Fatalf("split = %d/%d, want 700/300", alloc.AdminShare, alloc.PartnersShare)
	}

	p1 := lineFor(t, alloc, "P1")
	if p1.PercentBps != 7500 || p1.Amount != 225 {
		t.Fatalf("P1 = %d bps, %d; want 7500 bps, 225", p1.PercentBps, p1.Amount)
	}
	p2 := lineFor(t, alloc, "P2")
	if p2.PercentBps != 2500 || p2.Amount != 75 {
		t.Fatalf("P2 = %d bps, %d; want 2500 bps, 75", p2.PercentBps, p2.Amount)
	}

	var total int64 = alloc.AdminShare
	for _, line := range alloc.Lines {
		total += line.Amount
	}
	if total != 1000 {
		t.Fatalf("amounts sum to %d, want 1000", total)
	}
}

func TestAllocateNoActiveSites(t *testing.T) {
	alloc, err := Allocate(1000, nil)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if len(alloc.Lines) != 0 {
		t.Fatalf("expected no partner lines, got %d", len(alloc.Lines))
	}
	if alloc.AdminShare != 700 || alloc.PartnersShare != 300 {
		t.Fatalf("split = %d/%d, want 700/300", alloc.AdminShare, alloc.PartnersShare)
	}

	// Zero-site partners count as absent.
	alloc, err = Allocate(1000, map[string]int{"P1": 0})
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if alloc.TotalSites != 0 || len(alloc.Lines) != 0 {
		t.Fatalf("expected empty allocation, got %+v", alloc)
	}
}

func TestAllocateRemaindersGoToLastPartner(t *testing.T) {
	// partnersShare = 30, three partners with one site each: 10000/3
	// leaves remainders in both bps and amount.
	alloc, err := Allocate(100, map[string]int{"A": 1, "B": 1, "C": 1})
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	var bps, amount int64
	for _, line := range alloc.Lines {
		bps += line.PercentBps
		amount += line.Amount
	}
	if bps != BpsTotal {
		t.Fatalf("partner bps sum to %d, want %d", bps, BpsTotal)
	}
	if amount != alloc.PartnersShare {
		t.Fatalf("partner amounts sum to %d, want %d", amount, alloc.PartnersShare)
	}

	last := alloc.Lines[len(alloc.Lines)-1]
	if last.EntityID != "C" {
		t.Fatalf("expected stable order with C last, got %s", last.EntityID)
	}
	if alloc.Lines[0].PercentBps != 3333 || last.PercentBps != 3334 {
		t.Fatalf("expected last line to absorb the bps remainder: %+v", alloc.Lines)
	}
	if alloc.Lines[0].Amount != 9 || last.Amount != 12 {
		t.Fatalf("expected last line to absorb the amount remainder: %+v", alloc.Lines)
	}
}

func TestAllocateOddBudget(t *testing.T) {
	// 999 * 7000 / 10000 = 699, partners get 300.
	alloc, err := Allocate(999, map[string]int{"A": 2, "B": 1})
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if alloc.AdminShare+alloc.PartnersShare != 999 {
		t.Fatalf("shares %d + %d do not sum to budget", alloc.AdminShare, alloc.PartnersShare)
	}
	var amount int64
	for _, line := range alloc.Lines {
		amount += line.Amount
	}
	if amount != alloc.PartnersShare {
		t.Fatalf("partner amounts sum to %d, want %d", amount, alloc.PartnersShare)
	}
}

func TestAllocateRejectsNonPositiveBudget(t *testing.T) {
	for _, budget := range []int64{0, -5} {
		if _, err := Allocate(budget, map[string]int{"A": 1}); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("budget=%d: expected ErrInvalidInput, got %v", budget, err)
		}
	}
}
