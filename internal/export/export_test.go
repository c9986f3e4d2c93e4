package export

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"retail-pipeline/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var runTime = time.Date(2024, 3, 1, 14, 5, 0, 0, time.UTC)

func sampleDataset() models.Dataset {
	day := time.Date(2010, 12, 1, 0, 0, 0, 0, time.UTC)
	seen := time.Date(2010, 12, 1, 8, 26, 0, 0, time.UTC)
	return models.Dataset{
		Dates: []models.DimDate{{
			DateKey: 20101201, FullDate: day, Year: 2010, Quarter: 4, Month: 12,
			MonthName: "December", Day: 1, DayOfWeek: 2, DayName: "Wednesday",
		}},
		Products: []models.DimProduct{{
			ProductKey: 1, StockCode: "85123A", Description: "Unknown Product",
			FirstSeenDate: seen, LastSeenDate: seen, IsActive: true,
		}},
		Customers: []models.DimCustomer{{
			CustomerKey: 1, CustomerID: 17850, Country: "United Kingdom",
			FirstPurchaseDate: seen, LastPurchaseDate: seen,
		}},
		Facts: []models.FactSales{{
			TransactionKey: 1, DateKey: 20101201, ProductKey: 1, CustomerKey: 1,
			InvoiceNo: "536365", Quantity: 6,
			UnitPrice: decimal.RequireFromString("2.55"),
			LineTotal: decimal.RequireFromString("15.3"),
			CreatedAt: runTime,
		}},
	}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestParseFormats(t *testing.T) {
	formats, err := ParseFormats([]string{" CSV", "parquet", "csv", ""})
	require.NoError(t, err)
	assert.Equal(t, []string{"csv", "parquet"}, formats)

	_, err = ParseFormats([]string{"xlsx"})
	assert.Error(t, err)
}

func TestPath(t *testing.T) {
	w := NewWriter("/data/output", nil)

	assert.Equal(t,
		filepath.Join("/data/output", "fact_sales", "fact_sales_20240301_1405.parquet"),
		w.Path(models.TableFactSales, FormatParquet, runTime))
}

func TestWriteCSV(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, nil)

	paths, err := w.Write(sampleDataset(), []string{FormatCSV}, runTime)
	require.NoError(t, err)
	require.Len(t, paths, 4)

	facts := readCSV(t, w.Path(models.TableFactSales, FormatCSV, runTime))
	require.Len(t, facts, 2)
	assert.Equal(t, "line_total", facts[0][7])
	assert.Equal(t, "15.30", facts[1][7])
	assert.Equal(t, "2.55", facts[1][6])
	assert.Equal(t, "536365", facts[1][4])

	dates := readCSV(t, w.Path(models.TableDimDate, FormatCSV, runTime))
	assert.Equal(t, []string{"20101201", "2010-12-01", "2010", "4", "12", "December", "1", "2", "Wednesday", "false"}, dates[1])

	customers := readCSV(t, w.Path(models.TableDimCustomer, FormatCSV, runTime))
	assert.Equal(t, "United Kingdom", customers[1][2])
}

func TestWriteParquet(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, nil)

	paths, err := w.Write(sampleDataset(), []string{FormatParquet}, runTime)
	require.NoError(t, err)
	require.Len(t, paths, 4)

	for _, p := range paths {
		info, err := os.Stat(p)
		require.NoError(t, err)
		assert.Greater(t, info.Size(), int64(0))
		assert.Equal(t, ".parquet", filepath.Ext(p))
	}
}

func TestWriteEmptyDataset(t *testing.T) {
	w := NewWriter(t.TempDir(), nil)

	paths, err := w.Write(models.Dataset{}, []string{FormatCSV}, runTime)
	require.NoError(t, err)

	rows := readCSV(t, paths[0])
	assert.Len(t, rows, 1)
}

func TestHelpers(t *testing.T) {
	assert.Equal(t, int64(153000), unscaled(decimal.RequireFromString("15.3")))
	assert.Equal(t, int64(-275000), unscaled(decimal.RequireFromString("-27.50")))
	assert.Equal(t, int64(10), unscaled(decimal.RequireFromString("0.001")))
	assert.Equal(t, "15.30", money(decimal.RequireFromString("15.3")))
	assert.Equal(t, "7.665", money(decimal.RequireFromString("7.665")))
	assert.Equal(t, "0.001", money(decimal.RequireFromString("0.001")))
	assert.Equal(t, int32(14944), epochDays(time.Date(2010, 12, 1, 8, 0, 0, 0, time.UTC)))
}
