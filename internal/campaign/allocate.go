package campaign

import (
	"fmt"
	"sort"
)

// Budget split policy: the platform operator keeps 70%, the partner pool
// gets the remaining 30%.
const (
	BpsTotal      int64 = 10000
	AdminShareBps int64 = 7000
)

// AllocationLine is one partner's planned share of the partner pool.
type AllocationLine struct {
	EntityID   string
	SiteCount  int
	PercentBps int64
	Amount     int64
}

// Allocation is the planned split of one campaign budget. Lines cover
// partners only; the administrative row is appended at persistence time.
type Allocation struct {
	AdminShare    int64
	PartnersShare int64
	TotalSites    int
	Lines         []AllocationLine
}

// Allocate splits a budget between the administrative share and partner
// shares weighted by active site counts. Partners with zero sites get no
// line. With no active sites at all the partner pool stays unallocated;
// that is a documented edge case, not an error.
//
// Partner percentages sum to exactly BpsTotal and partner amounts to
// exactly PartnersShare: the last partner in stable entity-id order
// absorbs integer-division remainders.
func Allocate(budget int64, partnerSiteCounts map[string]int) (Allocation, error) {
	if budget <= 0 {
		return Allocation{}, fmt.Errorf("%w: budget must be positive", ErrInvalidInput)
	}

	adminShare := budget * AdminShareBps / BpsTotal
	partnersShare := budget - adminShare
	alloc := Allocation{AdminShare: adminShare, PartnersShare: partnersShare}

	entityIDs := make([]string, 0, len(partnerSiteCounts))
	for id, sites := range partnerSiteCounts {
		if sites <= 0 {
			continue
		}
		entityIDs = append(entityIDs, id)
		alloc.TotalSites += sites
	}
	if alloc.TotalSites == 0 {
		return alloc, nil
	}
	sort.Strings(entityIDs)

	totalSites := int64(alloc.TotalSites)
	var bpsSum, amountSum int64
	for i, id := range entityIDs {
		sites := int64(partnerSiteCounts[id])
		var bps, amount int64
		if i == len(entityIDs)-1 {
			bps = BpsTotal - bpsSum
			amount = partnersShare - amountSum
		} else {
			bps = sites * BpsTotal / totalSites
			amount = partnersShare * bps / BpsTotal
		}
		bpsSum += bps
		amountSum += amount
		alloc.Lines = append(alloc.Lines, AllocationLine{
			EntityID:   id,
			SiteCount:  int(sites),
			PercentBps: bps,
			Amount:     amount,
		})
	}
	return alloc, nil
}
