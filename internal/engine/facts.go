package engine

import (
	"time"

	"retail-pipeline/internal/models"

	"github.com/shopspring/decimal"
)

// AssembleFacts emits one FactSales row per accepted record, resolving each
// foreign key against dims. Any lookup failure or arithmetic mismatch is a
// ConsistencyError: dims were built from the same records, so it cannot be bad data.
func AssembleFacts(accepted []ClassifiedRecord, dims *Dimensions, createdAt time.Time) ([]models.FactSales, error) {
	facts := make([]models.FactSales, 0, len(accepted))

	for i, rec := range accepted {
		if !rec.Accepted() {
			return nil, violation(InvariantRejectedInModel, rec.RowIndex,
				"record rejected as %s reached the fact assembler", rec.Rejection)
		}

		dateKey, ok := dims.DateKey(rec.calendarDate())
		if !ok {
			return nil, violation(InvariantDateKeyResolves, rec.RowIndex,
				"no dim_date row for %s", rec.calendarDate().Format("2006-01-02"))
		}
		productKey, ok := dims.ProductKey(rec.StockCode)
		if !ok {
			return nil, violation(InvariantProductKeyResolves, rec.RowIndex,
				"no dim_product row for stock_code %q", rec.StockCode)
		}
		customerKey, ok := dims.CustomerKey(rec.CustomerKey)
		if !ok {
			return nil, violation(InvariantCustomerKeyResolves, rec.RowIndex,
				"no dim_customer row for customer_id %d", rec.CustomerKey)
		}

		fact := models.FactSales{
			TransactionKey:   int64(i + 1),
			DateKey:          dateKey,
			ProductKey:       productKey,
			CustomerKey:      customerKey,
			InvoiceNo:        rec.InvoiceNo,
			Quantity:         rec.Quantity,
			UnitPrice:        rec.UnitPrice,
			LineTotal:        lineTotal(rec.Quantity, rec.UnitPrice),
			IsCancelled:      rec.IsCancelled,
			HighQuantityFlag: rec.IsHighQuantity,
			CreatedAt:        createdAt,
		}
		if err := checkLineTotal(fact, rec.RowIndex); err != nil {
			return nil, err
		}
		facts = append(facts, fact)
	}
	return facts, nil
}

func lineTotal(quantity int64, price decimal.Decimal) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(quantity))
}

// checkLineTotal enforces line_total == quantity * unit_price exactly, at source precision
func checkLineTotal(f models.FactSales, row int) error {
	want := lineTotal(f.Quantity, f.UnitPrice)
	if !f.LineTotal.Equal(want) {
		return violation(InvariantLineTotal, row, "transaction %d: line_total %s != %d * %s",
			f.TransactionKey, f.LineTotal, f.Quantity, f.UnitPrice)
	}
	return nil
}
