package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// RawRecord is one transaction line as delivered by ingestion. It is never mutated.
type RawRecord struct {
	InvoiceNo   string          `json:"invoice_no"`
	StockCode   string          `json:"stock_code"`
	Description *string         `json:"description"`
	Quantity    int64           `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	CustomerID  *int64          `json:"customer_id"`
	Country     string          `json:"country"`
	InvoiceDate string          `json:"invoice_date"`
	RowIndex    int             `json:"original_row_index"`
}

// DimDate is one calendar date present in the accepted record set
type DimDate struct {
	DateKey   int       `db:"date_key" json:"date_key"`
	FullDate  time.Time `db:"full_date" json:"full_date"`
	Year      int       `db:"year" json:"year"`
	Quarter   int       `db:"quarter" json:"quarter"`
	Month     int       `db:"month" json:"month"`
	MonthName string    `db:"month_name" json:"month_name"`
	Day       int       `db:"day" json:"day"`
	DayOfWeek int       `db:"day_of_week" json:"day_of_week"`
	DayName   string    `db:"day_name" json:"day_name"`
	IsWeekend bool      `db:"is_weekend" json:"is_weekend"`
}

// DimProduct is one distinct stock code
type DimProduct struct {
	ProductKey    int64     `db:"product_key" json:"product_key"`
	StockCode     string    `db:"stock_code" json:"stock_code"`
	Description   string    `db:"description" json:"description"`
	FirstSeenDate time.Time `db:"first_seen_date" json:"first_seen_date"`
	LastSeenDate  time.Time `db:"last_seen_date" json:"last_seen_date"`
	IsActive      bool      `db:"is_active" json:"is_active"`
}

// DimCustomer is one distinct customer business key. Key 0 is the unknown customer.
type DimCustomer struct {
	CustomerKey       int64     `db:"customer_key" json:"customer_key"`
	CustomerID        int64     `db:"customer_id" json:"customer_id"`
	Country           string    `db:"country" json:"country"`
	FirstPurchaseDate time.Time `db:"first_purchase_date" json:"first_purchase_date"`
	LastPurchaseDate  time.Time `db:"last_purchase_date" json:"last_purchase_date"`
	IsUnknownCustomer bool      `db:"is_unknown_customer" json:"is_unknown_customer"`
}

// FactSales is one accepted transaction line with resolved surrogate keys
type FactSales struct {
	TransactionKey   int64           `db:"transaction_key" json:"transaction_key"`
	DateKey          int             `db:"date_key" json:"date_key"`
	ProductKey       int64           `db:"product_key" json:"product_key"`
	CustomerKey      int64           `db:"customer_key" json:"customer_key"`
	InvoiceNo        string          `db:"invoice_no" json:"invoice_no"`
	Quantity         int64           `db:"quantity" json:"quantity"`
	UnitPrice        decimal.Decimal `db:"unit_price" json:"unit_price"`
	LineTotal        decimal.Decimal `db:"line_total" json:"line_total"`
	IsCancelled      bool            `db:"is_cancelled" json:"is_cancelled"`
	HighQuantityFlag bool            `db:"high_quantity_flag" json:"high_quantity_flag"`
	CreatedAt        time.Time       `db:"created_timestamp" json:"created_timestamp"`
}

// Dataset is the modeled star schema produced by one run
type Dataset struct {
	Facts     []FactSales   `json:"fact_sales"`
	Dates     []DimDate     `json:"dim_date"`
	Products  []DimProduct  `json:"dim_product"`
	Customers []DimCustomer `json:"dim_customer"`
}

// RunSummary is the persisted outcome of one pipeline run
type RunSummary struct {
	RunID         string         `db:"run_id" json:"run_id"`
	Status        string         `db:"status" json:"status"`
	InputPath     string         `db:"input_path" json:"input_path"`
	TotalInput    int            `db:"total_input" json:"total_input"`
	Accepted      int            `db:"accepted" json:"accepted"`
	Rejected      int            `db:"rejected" json:"rejected"`
	PassRate      float64        `db:"pass_rate" json:"pass_rate"`
	Rejections    map[string]int `db:"-" json:"rejections"`
	Flags         map[string]int `db:"-" json:"flags"`
	TableRows     map[string]int `db:"-" json:"table_rows"`
	ExportedFiles []string       `db:"-" json:"exported_files,omitempty"`
	ErrorMessage  string         `db:"error_message" json:"error_message,omitempty"`
	StartedAt     time.Time      `db:"started_at" json:"started_at"`
	FinishedAt    time.Time      `db:"finished_at" json:"finished_at"`
}

// Run statuses
const (
	RunStatusQueued    = "QUEUED"
	RunStatusRunning   = "RUNNING"
	RunStatusSucceeded = "SUCCEEDED"
	RunStatusFailed    = "FAILED"
)

// Table names shared by storage, export and reporting
const (
	TableFactSales   = "fact_sales"
	TableDimDate     = "dim_date"
	TableDimProduct  = "dim_product"
	TableDimCustomer = "dim_customer"
)
