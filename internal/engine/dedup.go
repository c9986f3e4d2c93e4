package engine

import (
	"sort"

	"retail-pipeline/internal/models"
)

// rawKey holds every raw field that takes part in exact-duplicate detection.
// The original row index and all derived fields are excluded.
type rawKey struct {
	invoiceNo      string
	stockCode      string
	hasDescription bool
	description    string
	quantity       int64
	unitPrice      string
	hasCustomer    bool
	customerID     int64
	country        string
	invoiceDate    string
}

func keyOf(r models.RawRecord) rawKey {
	k := rawKey{
		invoiceNo:   r.InvoiceNo,
		stockCode:   r.StockCode,
		quantity:    r.Quantity,
		unitPrice:   r.UnitPrice.String(),
		country:     r.Country,
		invoiceDate: r.InvoiceDate,
	}
	if r.Description != nil {
		k.hasDescription = true
		k.description = *r.Description
	}
	if r.CustomerID != nil {
		k.hasCustomer = true
		k.customerID = *r.CustomerID
	}
	return k
}

// Deduplicate removes exact duplicates among the non-rejected records, keeping the
// occurrence with the lowest original row index. Already-rejected records neither
// match nor get removed; they are passed through in kept. Removed records are
// returned in dropped with their reason set to duplicate.
func Deduplicate(records []ClassifiedRecord, ledger *Ledger) (kept, dropped []ClassifiedRecord) {
	order := make([]int, len(records))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return records[order[a]].RowIndex < records[order[b]].RowIndex
	})

	seen := make(map[rawKey]struct{}, len(records))
	isDup := make([]bool, len(records))
	for _, i := range order {
		if !records[i].Accepted() {
			continue
		}
		k := keyOf(records[i].RawRecord)
		if _, ok := seen[k]; ok {
			isDup[i] = true
			continue
		}
		seen[k] = struct{}{}
	}

	kept = make([]ClassifiedRecord, 0, len(records))
	for i, rec := range records {
		if !isDup[i] {
			kept = append(kept, rec)
			continue
		}
		rec.Rejection = ReasonDuplicate
		dropped = append(dropped, rec)
	}

	// Ledger rows are appended in original row order.
	for _, i := range order {
		if isDup[i] {
			ledger.Reject(ReasonDuplicate, records[i].RowIndex)
		}
	}
	return kept, dropped
}
