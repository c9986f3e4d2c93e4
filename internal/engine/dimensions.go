package engine

import (
	"sort"
	"time"

	"retail-pipeline/internal/models"
)

// Dimensions holds the three dimension tables of a run and their business-key indexes.
// It is read-only once BuildDimensions returns.
type Dimensions struct {
	Dates     []models.DimDate
	Products  []models.DimProduct
	Customers []models.DimCustomer

	dateKeys     map[int]struct{}
	productKeys  map[string]int64
	customerKeys map[int64]int64
}

// DateKey resolves a calendar date to its date_key
func (d *Dimensions) DateKey(date time.Time) (int, bool) {
	key := dateKeyOf(date)
	_, ok := d.dateKeys[key]
	return key, ok
}

// ProductKey resolves a stock code to its product_key
func (d *Dimensions) ProductKey(stockCode string) (int64, bool) {
	key, ok := d.productKeys[stockCode]
	return key, ok
}

// CustomerKey resolves a customer business key to its customer_key
func (d *Dimensions) CustomerKey(customerID int64) (int64, bool) {
	key, ok := d.customerKeys[customerID]
	return key, ok
}

type productAcc struct {
	row     models.DimProduct
	hasDesc bool
}

type customerAcc struct {
	row models.DimCustomer
}

// BuildDimensions derives the date, product and customer dimensions from the
// accepted, deduplicated records. Surrogate keys follow first-seen order by
// original row index; ties fall back to stock code then customer id.
func BuildDimensions(accepted []ClassifiedRecord) (*Dimensions, error) {
	records := make([]ClassifiedRecord, len(accepted))
	copy(records, accepted)
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if a.RowIndex != b.RowIndex {
			return a.RowIndex < b.RowIndex
		}
		if a.StockCode != b.StockCode {
			return a.StockCode < b.StockCode
		}
		return a.CustomerKey < b.CustomerKey
	})

	for _, rec := range records {
		if !rec.Accepted() {
			return nil, violation(InvariantRejectedInModel, rec.RowIndex,
				"record rejected as %s passed to dimension builder", rec.Rejection)
		}
	}

	dims := &Dimensions{
		Dates:     buildDateDimension(records),
		Products:  buildProductDimension(records),
		Customers: buildCustomerDimension(records),
	}
	if err := dims.index(); err != nil {
		return nil, err
	}
	return dims, nil
}

func (d *Dimensions) index() error {
	d.dateKeys = make(map[int]struct{}, len(d.Dates))
	for _, row := range d.Dates {
		if _, dup := d.dateKeys[row.DateKey]; dup {
			return violation(InvariantSurrogateKeyUnique, NoRow, "date_key %d assigned twice", row.DateKey)
		}
		d.dateKeys[row.DateKey] = struct{}{}
	}

	d.productKeys = make(map[string]int64, len(d.Products))
	seenProducts := make(map[int64]struct{}, len(d.Products))
	for _, row := range d.Products {
		if _, dup := seenProducts[row.ProductKey]; dup {
			return violation(InvariantSurrogateKeyUnique, NoRow, "product_key %d assigned twice", row.ProductKey)
		}
		if _, dup := d.productKeys[row.StockCode]; dup {
			return violation(InvariantSurrogateKeyUnique, NoRow, "stock_code %q has two product rows", row.StockCode)
		}
		seenProducts[row.ProductKey] = struct{}{}
		d.productKeys[row.StockCode] = row.ProductKey
	}

	d.customerKeys = make(map[int64]int64, len(d.Customers))
	seenCustomers := make(map[int64]struct{}, len(d.Customers))
	for _, row := range d.Customers {
		if _, dup := seenCustomers[row.CustomerKey]; dup {
			return violation(InvariantSurrogateKeyUnique, NoRow, "customer_key %d assigned twice", row.CustomerKey)
		}
		if _, dup := d.customerKeys[row.CustomerID]; dup {
			return violation(InvariantSurrogateKeyUnique, NoRow, "customer_id %d has two customer rows", row.CustomerID)
		}
		seenCustomers[row.CustomerKey] = struct{}{}
		d.customerKeys[row.CustomerID] = row.CustomerKey
	}
	return nil
}

func buildDateDimension(records []ClassifiedRecord) []models.DimDate {
	seen := make(map[int]time.Time)
	for _, rec := range records {
		date := rec.calendarDate()
		seen[dateKeyOf(date)] = date
	}

	keys := make([]int, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	rows := make([]models.DimDate, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, newDimDate(seen[k]))
	}
	return rows
}

// newDimDate computes every calendar attribute from the date alone
func newDimDate(date time.Time) models.DimDate {
	dow := (int(date.Weekday()) + 6) % 7 // Monday=0
	return models.DimDate{
		DateKey:   dateKeyOf(date),
		FullDate:  date,
		Year:      date.Year(),
		Quarter:   (int(date.Month())-1)/3 + 1,
		Month:     int(date.Month()),
		MonthName: date.Month().String(),
		Day:       date.Day(),
		DayOfWeek: dow,
		DayName:   date.Weekday().String(),
		IsWeekend: dow >= 5,
	}
}

func dateKeyOf(date time.Time) int {
	return date.Year()*10000 + int(date.Month())*100 + date.Day()
}

// buildProductDimension relies on classification having resolved every description,
// missing ones to the configured unknown label
func buildProductDimension(records []ClassifiedRecord) []models.DimProduct {
	byCode := make(map[string]*productAcc)
	order := make([]*productAcc, 0)

	for _, rec := range records {
		acc, ok := byCode[rec.StockCode]
		if !ok {
			acc = &productAcc{row: models.DimProduct{
				ProductKey:    int64(len(order) + 1),
				StockCode:     rec.StockCode,
				Description:   rec.ResolvedDescription,
				FirstSeenDate: rec.InvoiceTime,
				LastSeenDate:  rec.InvoiceTime,
				IsActive:      true,
			}, hasDesc: !rec.DescriptionMissing}
			byCode[rec.StockCode] = acc
			order = append(order, acc)
			continue
		}
		if !acc.hasDesc && !rec.DescriptionMissing {
			acc.row.Description = rec.ResolvedDescription
			acc.hasDesc = true
		}
		extendRange(&acc.row.FirstSeenDate, &acc.row.LastSeenDate, rec.InvoiceTime)
	}

	rows := make([]models.DimProduct, len(order))
	for i, acc := range order {
		rows[i] = acc.row
	}
	return rows
}

func buildCustomerDimension(records []ClassifiedRecord) []models.DimCustomer {
	var unknown *customerAcc
	byID := make(map[int64]*customerAcc)
	known := make([]*customerAcc, 0)

	for _, rec := range records {
		if rec.CustomerKey == UnknownCustomerID {
			if unknown == nil {
				unknown = &customerAcc{row: newUnknownCustomer(rec.NormalizedCountry, rec.InvoiceTime)}
				continue
			}
			extendRange(&unknown.row.FirstPurchaseDate, &unknown.row.LastPurchaseDate, rec.InvoiceTime)
			continue
		}

		acc, ok := byID[rec.CustomerKey]
		if !ok {
			acc = &customerAcc{row: models.DimCustomer{
				CustomerKey:       int64(len(known) + 1),
				CustomerID:        rec.CustomerKey,
				Country:           rec.NormalizedCountry,
				FirstPurchaseDate: rec.InvoiceTime,
				LastPurchaseDate:  rec.InvoiceTime,
			}}
			byID[rec.CustomerKey] = acc
			known = append(known, acc)
			continue
		}
		extendRange(&acc.row.FirstPurchaseDate, &acc.row.LastPurchaseDate, rec.InvoiceTime)
	}

	rows := make([]models.DimCustomer, 0, len(known)+1)
	if unknown != nil {
		rows = append(rows, unknown.row)
	}
	for _, acc := range known {
		rows = append(rows, acc.row)
	}
	return rows
}

// newUnknownCustomer builds the single synthetic row every null customer id collapses into.
// Its country is the one seen on the first such record.
func newUnknownCustomer(country string, seen time.Time) models.DimCustomer {
	return models.DimCustomer{
		CustomerKey:       0,
		CustomerID:        UnknownCustomerID,
		Country:           country,
		FirstPurchaseDate: seen,
		LastPurchaseDate:  seen,
		IsUnknownCustomer: true,
	}
}

func extendRange(first, last *time.Time, t time.Time) {
	if t.Before(*first) {
		*first = t
	}
	if t.After(*last) {
		*last = t
	}
}
