package engine

import (
	"context"
	"testing"
	"time"

	"retail-pipeline/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testContext() context.Context {
	return context.Background()
}

func runEngine(t *testing.T, raw []models.RawRecord) *Result {
	t.Helper()
	res, err := New(testOptions(), nil).Run(testContext(), raw)
	require.NoError(t, err)
	return res
}

func TestRunSingleRecordWithMissingDescription(t *testing.T) {
	r := rec(0, "536365", "85123A", 6, "2.55", idPtr(17850), "2010-12-01 08:26")
	r.Description = nil

	res := runEngine(t, []models.RawRecord{r})

	require.Len(t, res.Dataset.Facts, 1)
	f := res.Dataset.Facts[0]
	assert.Equal(t, "15.30", f.LineTotal.StringFixed(2))
	assert.Equal(t, 20101201, f.DateKey)
	assert.False(t, f.IsCancelled)
	assert.Equal(t, "Unknown Product", res.Dataset.Products[0].Description)
	assert.Equal(t, 1, res.Ledger.FlagCount(FlagMissingDescription))
}

func TestRunCancelledLine(t *testing.T) {
	res := runEngine(t, []models.RawRecord{
		rec(0, "C536379", "D", -1, "27.50", idPtr(14527), "2010-12-01 09:41"),
	})

	require.Len(t, res.Dataset.Facts, 1)
	assert.True(t, res.Dataset.Facts[0].IsCancelled)
	assert.False(t, res.Accepted[0].NeedsReview)
}

func TestRunZeroPriceExcluded(t *testing.T) {
	res := runEngine(t, []models.RawRecord{
		rec(0, "536414", "22139", 56, "0", nil, "2010-12-01 11:52"),
		rec(1, "536365", "85123A", 6, "2.55", idPtr(17850), "2010-12-01 08:26"),
	})

	assert.Len(t, res.Dataset.Facts, 1)
	assert.Equal(t, 1, res.Ledger.RejectionCount(ReasonInvalidPrice))
	require.Len(t, res.Rejected, 1)
	assert.Equal(t, 0, res.Rejected[0].RowIndex)
	for _, c := range res.Dataset.Customers {
		assert.False(t, c.IsUnknownCustomer)
	}
	for _, p := range res.Dataset.Products {
		assert.NotEqual(t, "22139", p.StockCode)
	}
}

func TestRunExactDuplicate(t *testing.T) {
	a := rec(0, "536365", "85123A", 6, "2.55", idPtr(17850), "2010-12-01 08:26")
	b := a
	b.RowIndex = 1

	res := runEngine(t, []models.RawRecord{a, b})

	assert.Len(t, res.Dataset.Facts, 1)
	assert.Equal(t, 1, res.Ledger.RejectionCount(ReasonDuplicate))
	assert.Equal(t, map[string]int{"duplicate": 1}, res.Report.Rejections)
}

func TestRunHighQuantity(t *testing.T) {
	res := runEngine(t, []models.RawRecord{
		rec(0, "581483", "23843", 80995, "2.08", idPtr(16446), "2011-12-09 09:15"),
	})

	require.Len(t, res.Dataset.Facts, 1)
	assert.True(t, res.Dataset.Facts[0].HighQuantityFlag)
	assert.Equal(t, "168469.60", res.Dataset.Facts[0].LineTotal.StringFixed(2))
}

func TestRunKeepsSourcePricePrecision(t *testing.T) {
	res := runEngine(t, []models.RawRecord{
		rec(0, "537000", "PADS", 1, "0.001", idPtr(15098), "2010-12-05 14:02"),
		rec(1, "537001", "85123A", 3, "2.555", idPtr(17850), "2010-12-05 14:05"),
	})

	assert.Zero(t, res.Ledger.RejectionCount(ReasonInvalidPrice))
	require.Len(t, res.Dataset.Facts, 2)

	pads := res.Dataset.Facts[0]
	assert.Equal(t, "537000", pads.InvoiceNo)
	assert.True(t, pads.UnitPrice.Equal(decimal.RequireFromString("0.001")))
	assert.True(t, pads.LineTotal.Equal(decimal.RequireFromString("0.001")))

	heart := res.Dataset.Facts[1]
	assert.True(t, heart.UnitPrice.Equal(decimal.RequireFromString("2.555")))
	assert.True(t, heart.LineTotal.Equal(decimal.RequireFromString("7.665")))
}

func TestRunPartitionsInput(t *testing.T) {
	raw := mixedBatch(500, 42)

	res := runEngine(t, raw)

	assert.Equal(t, len(raw), len(res.Accepted)+len(res.Rejected))
	assert.Equal(t, len(res.Accepted), len(res.Dataset.Facts))
	assert.Equal(t, len(res.Rejected), res.Ledger.TotalRejected())

	rows := make(map[int]bool, len(raw))
	for _, a := range res.Accepted {
		assert.False(t, rows[a.RowIndex])
		rows[a.RowIndex] = true
	}
	for _, r := range res.Rejected {
		assert.False(t, rows[r.RowIndex], "row %d both accepted and rejected", r.RowIndex)
		assert.NotEmpty(t, r.Rejection)
		rows[r.RowIndex] = true
	}
	assert.Len(t, rows, len(raw))
}

func TestRunReferentialIntegrity(t *testing.T) {
	res := runEngine(t, mixedBatch(500, 99))

	assert.NoError(t, Verify(res.Dataset))
	for _, f := range res.Dataset.Facts {
		assert.True(t, f.LineTotal.Equal(f.UnitPrice.Mul(decimal.NewFromInt(f.Quantity))))
	}
}

func TestRunIsDeterministic(t *testing.T) {
	raw := mixedBatch(500, 17)

	first := runEngine(t, raw)
	second := runEngine(t, raw)

	assert.Equal(t, first.Dataset, second.Dataset)
	assert.Equal(t, first.Ledger.Entries(true), second.Ledger.Entries(true))
	assert.Equal(t, first.Report, second.Report)
}

func TestRunUnknownCustomerRow(t *testing.T) {
	raw := mixedBatch(200, 8)
	hasAnonymous := false
	for _, r := range raw {
		if r.CustomerID == nil {
			hasAnonymous = true
		}
	}
	require.True(t, hasAnonymous)

	res := runEngine(t, raw)

	unknown := 0
	for _, c := range res.Dataset.Customers {
		if c.IsUnknownCustomer {
			unknown++
			assert.Equal(t, int64(0), c.CustomerKey)
		}
	}
	assert.LessOrEqual(t, unknown, 1)
	assert.Equal(t, unknown, res.Report.UnknownCustomers)
}

func TestRunEmptyInput(t *testing.T) {
	res := runEngine(t, nil)

	assert.Empty(t, res.Dataset.Facts)
	assert.Empty(t, res.Dataset.Dates)
	assert.Zero(t, res.Report.PassRate)
	assert.Equal(t, fixedNow, res.RunTime)
}

func TestRunReport(t *testing.T) {
	res := runEngine(t, []models.RawRecord{
		rec(0, "536365", "85123A", 6, "2.55", idPtr(17850), "2010-12-01 08:26"),
		rec(1, "536414", "22139", 56, "0", nil, "2010-12-01 11:52"),
		rec(2, "536520", "21123", 1, "1.25", nil, "2010-12-02 12:43"),
		rec(3, "536530", "22633", 2, "1.85", idPtr(17905), "2010-12-03 10:00"),
	})

	r := res.Report
	assert.Equal(t, 4, r.InitialRows)
	assert.Equal(t, 3, r.FinalRows)
	assert.Equal(t, 1, r.RowsRemoved)
	assert.InDelta(t, 75.0, r.PassRate, 0.0001)
	assert.Equal(t, time.Date(2010, 12, 1, 0, 0, 0, 0, time.UTC), r.DateFrom)
	assert.Equal(t, time.Date(2010, 12, 3, 0, 0, 0, 0, time.UTC), r.DateTo)
	assert.Equal(t, 3, r.UniqueProducts)
	assert.Equal(t, 3, r.UniqueCustomers)
	assert.Equal(t, 1, r.UnknownCustomers)
	assert.Equal(t, map[string]int{
		models.TableFactSales:   3,
		models.TableDimDate:     3,
		models.TableDimProduct:  3,
		models.TableDimCustomer: 3,
	}, r.TableRows)
	assert.Equal(t, 2, r.Flags["missing_customer"])
	assert.Equal(t, map[string]int{"missing_customer": 1}, r.AcceptedFlags)
}

func TestRunUsesConfiguredProductLabel(t *testing.T) {
	opts := testOptions()
	opts.UnknownProductLabel = "No Description"
	r := rec(0, "536365", "85123A", 6, "2.55", idPtr(17850), "2010-12-01 08:26")
	r.Description = strPtr("   ")

	res, err := New(opts, nil).Run(testContext(), []models.RawRecord{r})
	require.NoError(t, err)

	require.Len(t, res.Dataset.Products, 1)
	assert.Equal(t, "No Description", res.Dataset.Products[0].Description)
}

func TestRunAcceptedFlagsExcludeDuplicates(t *testing.T) {
	line := rec(0, "581483", "23843", 80995, "2.08", idPtr(16446), "2011-12-09 09:15")
	dup := line
	dup.RowIndex = 1

	res := runEngine(t, []models.RawRecord{line, dup})

	require.Len(t, res.Dataset.Facts, 1)
	assert.Equal(t, 2, res.Report.Flags["high_quantity"])
	assert.Equal(t, 1, res.Report.AcceptedFlags["high_quantity"])
}

func TestRunFactsFollowRowOrder(t *testing.T) {
	res := runEngine(t, mixedBatch(300, 64))

	for i := 1; i < len(res.Accepted); i++ {
		assert.Less(t, res.Accepted[i-1].RowIndex, res.Accepted[i].RowIndex)
	}
	for i, f := range res.Dataset.Facts {
		assert.Equal(t, int64(i+1), f.TransactionKey)
		assert.Equal(t, res.Accepted[i].InvoiceNo, f.InvoiceNo)
	}
}
