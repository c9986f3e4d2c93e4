package engine

import (
	"fmt"
	"math/rand"
	"time"

	"retail-pipeline/internal/models"

	"github.com/shopspring/decimal"
)

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func testOptions() Options {
	opts := DefaultOptions()
	opts.Now = func() time.Time { return fixedNow }
	return opts
}

func strPtr(s string) *string { return &s }

func idPtr(n int64) *int64 { return &n }

// rec builds a valid raw record that individual tests then mutate
func rec(row int, invoice, stock string, qty int64, price string, customer *int64, date string) models.RawRecord {
	return models.RawRecord{
		InvoiceNo:   invoice,
		StockCode:   stock,
		Description: strPtr("ITEM " + stock),
		Quantity:    qty,
		UnitPrice:   decimal.RequireFromString(price),
		CustomerID:  customer,
		Country:     "United Kingdom",
		InvoiceDate: date,
		RowIndex:    row,
	}
}

func classifyOne(r models.RawRecord) (ClassifiedRecord, *Ledger) {
	ledger := NewLedger()
	opts := testOptions()
	out := Classify([]models.RawRecord{r}, DefaultCatalog(opts), opts, ledger)
	return out[0], ledger
}

// mixedBatch generates a reproducible batch covering every rule
func mixedBatch(n int, seed int64) []models.RawRecord {
	rng := rand.New(rand.NewSource(seed))
	codes := []string{"85123A", "71053", "84406B", "22752", "21730", "POST"}
	countries := []string{"United Kingdom", "France", " germany ", "EIRE"}
	out := make([]models.RawRecord, 0, n)

	for i := 0; i < n; i++ {
		if i > 0 && rng.Intn(10) == 0 {
			dup := out[rng.Intn(len(out))]
			dup.RowIndex = i
			out = append(out, dup)
			continue
		}

		invoice := fmt.Sprintf("%d", 536365+rng.Intn(40))
		qty := int64(rng.Intn(48) + 1)
		if rng.Intn(12) == 0 {
			invoice = "C" + invoice
			qty = -qty
		}
		if rng.Intn(25) == 0 {
			qty = -qty
		}
		if rng.Intn(40) == 0 {
			qty = 80995
		}

		price := fmt.Sprintf("%d.%02d", rng.Intn(20), rng.Intn(100))
		if rng.Intn(15) == 0 {
			price = "0"
		}

		var customer *int64
		if rng.Intn(5) != 0 {
			customer = idPtr(int64(12346 + rng.Intn(30)))
		}

		date := fmt.Sprintf("2010-12-%02d %02d:%02d", rng.Intn(28)+1, rng.Intn(24), rng.Intn(60))
		if rng.Intn(30) == 0 {
			date = "not a date"
		}

		r := rec(i, invoice, codes[rng.Intn(len(codes))], qty, price, customer, date)
		r.Country = countries[rng.Intn(len(countries))]
		if rng.Intn(8) == 0 {
			r.Description = nil
		}
		out = append(out, r)
	}
	return out
}
