package store

import (
	"context"
	"fmt"

	"retail-pipeline/internal/models"

	"github.com/jmoiron/sqlx"
)

// insertBatchSize keeps each multi-row insert under the postgres bind parameter limit
const insertBatchSize = 1000

const (
	insertDimDate = `
		INSERT INTO dim_date (date_key, full_date, year, quarter, month, month_name, day, day_of_week, day_name, is_weekend)
		VALUES (:date_key, :full_date, :year, :quarter, :month, :month_name, :day, :day_of_week, :day_name, :is_weekend)`

	insertDimProduct = `
		INSERT INTO dim_product (product_key, stock_code, description, first_seen_date, last_seen_date, is_active)
		VALUES (:product_key, :stock_code, :description, :first_seen_date, :last_seen_date, :is_active)`

	insertDimCustomer = `
		INSERT INTO dim_customer (customer_key, customer_id, country, first_purchase_date, last_purchase_date, is_unknown_customer)
		VALUES (:customer_key, :customer_id, :country, :first_purchase_date, :last_purchase_date, :is_unknown_customer)`

	insertFactSales = `
		INSERT INTO fact_sales (transaction_key, date_key, product_key, customer_key, invoice_no, quantity,
			unit_price, line_total, is_cancelled, high_quantity_flag, created_timestamp)
		VALUES (:transaction_key, :date_key, :product_key, :customer_key, :invoice_no, :quantity,
			:unit_price, :line_total, :is_cancelled, :high_quantity_flag, :created_timestamp)`
)

// ReplaceDataset fully refreshes the star schema with ds in a single transaction.
// Readers see either the previous run's tables or the new ones, never a mix.
func (s *Store) ReplaceDataset(ctx context.Context, ds models.Dataset) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"TRUNCATE fact_sales, dim_date, dim_product, dim_customer"); err != nil {
		return fmt.Errorf("failed to truncate star schema: %w", err)
	}

	if err := insertBatches(ctx, tx, insertDimDate, len(ds.Dates), func(lo, hi int) interface{} {
		return ds.Dates[lo:hi]
	}); err != nil {
		return fmt.Errorf("failed to load %s: %w", models.TableDimDate, err)
	}
	if err := insertBatches(ctx, tx, insertDimProduct, len(ds.Products), func(lo, hi int) interface{} {
		return ds.Products[lo:hi]
	}); err != nil {
		return fmt.Errorf("failed to load %s: %w", models.TableDimProduct, err)
	}
	if err := insertBatches(ctx, tx, insertDimCustomer, len(ds.Customers), func(lo, hi int) interface{} {
		return ds.Customers[lo:hi]
	}); err != nil {
		return fmt.Errorf("failed to load %s: %w", models.TableDimCustomer, err)
	}
	if err := insertBatches(ctx, tx, insertFactSales, len(ds.Facts), func(lo, hi int) interface{} {
		return ds.Facts[lo:hi]
	}); err != nil {
		return fmt.Errorf("failed to load %s: %w", models.TableFactSales, err)
	}

	return tx.Commit()
}

// TableCounts returns the row count of each star schema table
func (s *Store) TableCounts(ctx context.Context) (map[string]int, error) {
	counts := make(map[string]int, 4)
	for _, table := range []string{
		models.TableFactSales, models.TableDimDate, models.TableDimProduct, models.TableDimCustomer,
	} {
		var n int
		if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM "+table); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", table, err)
		}
		counts[table] = n
	}
	return counts, nil
}

func insertBatches(ctx context.Context, tx *sqlx.Tx, query string, n int, slice func(lo, hi int) interface{}) error {
	for lo := 0; lo < n; lo += insertBatchSize {
		hi := lo + insertBatchSize
		if hi > n {
			hi = n
		}
		if _, err := tx.NamedExecContext(ctx, query, slice(lo, hi)); err != nil {
			return err
		}
	}
	return nil
}
