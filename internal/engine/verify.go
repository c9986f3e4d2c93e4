package engine

import "retail-pipeline/internal/models"

// Verify re-checks the referential and arithmetic invariants of a finished dataset:
// unique surrogate keys, resolvable foreign keys, exact line totals and no orphan
// dimension rows.
func Verify(ds models.Dataset) error {
	dates := make(map[int]bool, len(ds.Dates))
	for _, d := range ds.Dates {
		if _, dup := dates[d.DateKey]; dup {
			return violation(InvariantSurrogateKeyUnique, NoRow, "dim_date key %d repeated", d.DateKey)
		}
		dates[d.DateKey] = false
	}
	products := make(map[int64]bool, len(ds.Products))
	for _, p := range ds.Products {
		if _, dup := products[p.ProductKey]; dup {
			return violation(InvariantSurrogateKeyUnique, NoRow, "dim_product key %d repeated", p.ProductKey)
		}
		products[p.ProductKey] = false
	}
	customers := make(map[int64]bool, len(ds.Customers))
	for _, c := range ds.Customers {
		if _, dup := customers[c.CustomerKey]; dup {
			return violation(InvariantSurrogateKeyUnique, NoRow, "dim_customer key %d repeated", c.CustomerKey)
		}
		if c.IsUnknownCustomer != (c.CustomerKey == 0) {
			return violation(InvariantSurrogateKeyUnique, NoRow,
				"customer_key %d has is_unknown_customer=%t", c.CustomerKey, c.IsUnknownCustomer)
		}
		customers[c.CustomerKey] = false
	}

	transactions := make(map[int64]struct{}, len(ds.Facts))
	for _, f := range ds.Facts {
		if _, dup := transactions[f.TransactionKey]; dup {
			return violation(InvariantSurrogateKeyUnique, NoRow, "transaction_key %d repeated", f.TransactionKey)
		}
		transactions[f.TransactionKey] = struct{}{}

		if _, ok := dates[f.DateKey]; !ok {
			return violation(InvariantDateKeyResolves, NoRow,
				"transaction %d references missing date_key %d", f.TransactionKey, f.DateKey)
		}
		if _, ok := products[f.ProductKey]; !ok {
			return violation(InvariantProductKeyResolves, NoRow,
				"transaction %d references missing product_key %d", f.TransactionKey, f.ProductKey)
		}
		if _, ok := customers[f.CustomerKey]; !ok {
			return violation(InvariantCustomerKeyResolves, NoRow,
				"transaction %d references missing customer_key %d", f.TransactionKey, f.CustomerKey)
		}
		if err := checkLineTotal(f, NoRow); err != nil {
			return err
		}
		dates[f.DateKey] = true
		products[f.ProductKey] = true
		customers[f.CustomerKey] = true
	}

	for k, used := range dates {
		if !used {
			return violation(InvariantNoOrphanDimension, NoRow, "dim_date row %d has no facts", k)
		}
	}
	for k, used := range products {
		if !used {
			return violation(InvariantNoOrphanDimension, NoRow, "dim_product row %d has no facts", k)
		}
	}
	for k, used := range customers {
		if !used {
			return violation(InvariantNoOrphanDimension, NoRow, "dim_customer row %d has no facts", k)
		}
	}
	return nil
}
