package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"retail-pipeline/internal/models"

	"github.com/shopspring/decimal"
)

// Source columns of the online retail export
const (
	ColInvoiceNo   = "invoiceno"
	ColStockCode   = "stockcode"
	ColDescription = "description"
	ColQuantity    = "quantity"
	ColInvoiceDate = "invoicedate"
	ColUnitPrice   = "unitprice"
	ColCustomerID  = "customerid"
	ColCountry     = "country"
)

var requiredColumns = []string{
	ColInvoiceNo, ColStockCode, ColDescription, ColQuantity,
	ColInvoiceDate, ColUnitPrice, ColCustomerID, ColCountry,
}

// ErrMissingColumn is returned when the header lacks a required column
var ErrMissingColumn = errors.New("missing required column")

// RowError reports a structurally broken data row
type RowError struct {
	Row    int
	Column string
	Err    error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d, column %s: %v", e.Row, e.Column, e.Err)
}

func (e *RowError) Unwrap() error {
	return e.Err
}

// ReadFile opens path and reads it as CSV
func ReadFile(path string) ([]models.RawRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input: %w", err)
	}
	defer f.Close()

	records, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return records, nil
}

// ReadCSV parses a header-mapped CSV into raw records. Value-level problems such
// as unparsable dates or non-positive prices are left for the engine; only rows
// that cannot be represented as a RawRecord fail here.
//
// Reading is all or nothing: the first such row (an unparsable Quantity, UnitPrice
// or CustomerID cell) aborts the read with a *RowError and no records are returned.
func ReadCSV(r io.Reader) ([]models.RawRecord, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	index, err := mapHeader(header)
	if err != nil {
		return nil, err
	}

	var records []models.RawRecord
	for {
		fields, err := reader.Read()
		if err == io.EOF {
			break
		}
		row := len(records)
		if err != nil {
			return nil, fmt.Errorf("failed to read row %d: %w", row, err)
		}
		if blank(fields) {
			continue
		}

		rec, err := parseRow(fields, index, row)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func mapHeader(header []string) (map[string]int, error) {
	index := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimPrefix(name, "\ufeff")
		key := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), " ", ""))
		if _, dup := index[key]; !dup {
			index[key] = i
		}
	}
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, col)
		}
	}
	return index, nil
}

func parseRow(fields []string, index map[string]int, row int) (models.RawRecord, error) {
	get := func(col string) string {
		i := index[col]
		if i >= len(fields) {
			return ""
		}
		return strings.TrimSpace(fields[i])
	}

	rec := models.RawRecord{
		InvoiceNo:   get(ColInvoiceNo),
		StockCode:   get(ColStockCode),
		Country:     get(ColCountry),
		InvoiceDate: get(ColInvoiceDate),
		RowIndex:    row,
	}

	if desc := get(ColDescription); desc != "" {
		rec.Description = &desc
	}

	qty, err := parseQuantity(get(ColQuantity))
	if err != nil {
		return rec, &RowError{Row: row, Column: ColQuantity, Err: err}
	}
	rec.Quantity = qty

	price, err := decimal.NewFromString(get(ColUnitPrice))
	if err != nil {
		return rec, &RowError{Row: row, Column: ColUnitPrice, Err: err}
	}
	rec.UnitPrice = price

	customer, err := parseCustomerID(get(ColCustomerID))
	if err != nil {
		return rec, &RowError{Row: row, Column: ColCustomerID, Err: err}
	}
	rec.CustomerID = customer

	return rec, nil
}

func parseQuantity(value string) (int64, error) {
	if q, err := strconv.ParseInt(value, 10, 64); err == nil {
		return q, nil
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return 0, err
	}
	if !d.IsInteger() {
		return 0, fmt.Errorf("quantity %q is not a whole number", value)
	}
	return d.IntPart(), nil
}

// parseCustomerID accepts integral ids, including the float form "17850.0"
// produced by spreadsheet exports. Blank means the customer is unknown.
func parseCustomerID(value string) (*int64, error) {
	if value == "" || strings.EqualFold(value, "nan") {
		return nil, nil
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return nil, err
	}
	if !d.IsInteger() {
		return nil, fmt.Errorf("customer id %q is not a whole number", value)
	}
	id := d.IntPart()
	return &id, nil
}

func blank(fields []string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
