package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"

	"retail-pipeline/internal/models"

	"github.com/shopspring/decimal"
)

const (
	dateLayout      = "2006-01-02"
	timestampLayout = "2006-01-02 15:04:05"
)

// table is the flat string projection of one modeled table
type table struct {
	name   string
	header []string
	rows   [][]string
}

func tablesOf(ds models.Dataset) []table {
	return []table{
		dateTable(ds.Dates),
		productTable(ds.Products),
		customerTable(ds.Customers),
		factTable(ds.Facts),
	}
}

func dateTable(rows []models.DimDate) table {
	t := table{
		name: models.TableDimDate,
		header: []string{"date_key", "full_date", "year", "quarter", "month", "month_name",
			"day", "day_of_week", "day_name", "is_weekend"},
	}
	for _, d := range rows {
		t.rows = append(t.rows, []string{
			strconv.Itoa(d.DateKey),
			d.FullDate.Format(dateLayout),
			strconv.Itoa(d.Year),
			strconv.Itoa(d.Quarter),
			strconv.Itoa(d.Month),
			d.MonthName,
			strconv.Itoa(d.Day),
			strconv.Itoa(d.DayOfWeek),
			d.DayName,
			strconv.FormatBool(d.IsWeekend),
		})
	}
	return t
}

func productTable(rows []models.DimProduct) table {
	t := table{
		name:   models.TableDimProduct,
		header: []string{"product_key", "stock_code", "description", "first_seen_date", "last_seen_date", "is_active"},
	}
	for _, p := range rows {
		t.rows = append(t.rows, []string{
			strconv.FormatInt(p.ProductKey, 10),
			p.StockCode,
			p.Description,
			p.FirstSeenDate.Format(timestampLayout),
			p.LastSeenDate.Format(timestampLayout),
			strconv.FormatBool(p.IsActive),
		})
	}
	return t
}

func customerTable(rows []models.DimCustomer) table {
	t := table{
		name: models.TableDimCustomer,
		header: []string{"customer_key", "customer_id", "country", "first_purchase_date",
			"last_purchase_date", "is_unknown_customer"},
	}
	for _, c := range rows {
		t.rows = append(t.rows, []string{
			strconv.FormatInt(c.CustomerKey, 10),
			strconv.FormatInt(c.CustomerID, 10),
			c.Country,
			c.FirstPurchaseDate.Format(timestampLayout),
			c.LastPurchaseDate.Format(timestampLayout),
			strconv.FormatBool(c.IsUnknownCustomer),
		})
	}
	return t
}

func factTable(rows []models.FactSales) table {
	t := table{
		name: models.TableFactSales,
		header: []string{"transaction_key", "date_key", "product_key", "customer_key", "invoice_no",
			"quantity", "unit_price", "line_total", "is_cancelled", "high_quantity_flag", "created_timestamp"},
	}
	for _, f := range rows {
		t.rows = append(t.rows, []string{
			strconv.FormatInt(f.TransactionKey, 10),
			strconv.Itoa(f.DateKey),
			strconv.FormatInt(f.ProductKey, 10),
			strconv.FormatInt(f.CustomerKey, 10),
			f.InvoiceNo,
			strconv.FormatInt(f.Quantity, 10),
			money(f.UnitPrice),
			money(f.LineTotal),
			strconv.FormatBool(f.IsCancelled),
			strconv.FormatBool(f.HighQuantityFlag),
			f.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return t
}

func writeCSV(path string, t table) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create csv: %w", err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.Write(t.header); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	if err := w.WriteAll(t.rows); err != nil {
		return fmt.Errorf("failed to write %s rows: %w", t.name, err)
	}
	return file.Close()
}

// money prints at least two fractional digits and never drops source precision
func money(d decimal.Decimal) string {
	if d.Equal(d.Round(2)) {
		return d.StringFixed(2)
	}
	return d.String()
}
