package export

import (
	"fmt"
	"os"
	"time"

	"retail-pipeline/internal/models"

	"github.com/shopspring/decimal"
	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

type dateRow struct {
	DateKey   int32  `parquet:"name=date_key, type=INT32"`
	FullDate  int32  `parquet:"name=full_date, type=INT32, convertedtype=DATE"`
	Year      int32  `parquet:"name=year, type=INT32"`
	Quarter   int32  `parquet:"name=quarter, type=INT32"`
	Month     int32  `parquet:"name=month, type=INT32"`
	MonthName string `parquet:"name=month_name, type=BYTE_ARRAY, convertedtype=UTF8"`
	Day       int32  `parquet:"name=day, type=INT32"`
	DayOfWeek int32  `parquet:"name=day_of_week, type=INT32"`
	DayName   string `parquet:"name=day_name, type=BYTE_ARRAY, convertedtype=UTF8"`
	IsWeekend bool   `parquet:"name=is_weekend, type=BOOLEAN"`
}

type productRow struct {
	ProductKey    int64  `parquet:"name=product_key, type=INT64"`
	StockCode     string `parquet:"name=stock_code, type=BYTE_ARRAY, convertedtype=UTF8"`
	Description   string `parquet:"name=description, type=BYTE_ARRAY, convertedtype=UTF8"`
	FirstSeenDate int64  `parquet:"name=first_seen_date, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	LastSeenDate  int64  `parquet:"name=last_seen_date, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	IsActive      bool   `parquet:"name=is_active, type=BOOLEAN"`
}

type customerRow struct {
	CustomerKey       int64  `parquet:"name=customer_key, type=INT64"`
	CustomerID        int64  `parquet:"name=customer_id, type=INT64"`
	Country           string `parquet:"name=country, type=BYTE_ARRAY, convertedtype=UTF8"`
	FirstPurchaseDate int64  `parquet:"name=first_purchase_date, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	LastPurchaseDate  int64  `parquet:"name=last_purchase_date, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	IsUnknownCustomer bool   `parquet:"name=is_unknown_customer, type=BOOLEAN"`
}

// Monetary columns are stored as DECIMAL(18,4) over their unscaled value
type factRow struct {
	TransactionKey   int64  `parquet:"name=transaction_key, type=INT64"`
	DateKey          int32  `parquet:"name=date_key, type=INT32"`
	ProductKey       int64  `parquet:"name=product_key, type=INT64"`
	CustomerKey      int64  `parquet:"name=customer_key, type=INT64"`
	InvoiceNo        string `parquet:"name=invoice_no, type=BYTE_ARRAY, convertedtype=UTF8"`
	Quantity         int64  `parquet:"name=quantity, type=INT64"`
	UnitPrice        int64  `parquet:"name=unit_price, type=INT64, convertedtype=DECIMAL, scale=4, precision=18"`
	LineTotal        int64  `parquet:"name=line_total, type=INT64, convertedtype=DECIMAL, scale=4, precision=18"`
	IsCancelled      bool   `parquet:"name=is_cancelled, type=BOOLEAN"`
	HighQuantityFlag bool   `parquet:"name=high_quantity_flag, type=BOOLEAN"`
	CreatedTimestamp int64  `parquet:"name=created_timestamp, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
}

func writeParquet(path, tableName string, ds models.Dataset) error {
	var (
		schema interface{}
		rows   []interface{}
	)

	switch tableName {
	case models.TableDimDate:
		schema = new(dateRow)
		for _, d := range ds.Dates {
			rows = append(rows, &dateRow{
				DateKey:   int32(d.DateKey),
				FullDate:  epochDays(d.FullDate),
				Year:      int32(d.Year),
				Quarter:   int32(d.Quarter),
				Month:     int32(d.Month),
				MonthName: d.MonthName,
				Day:       int32(d.Day),
				DayOfWeek: int32(d.DayOfWeek),
				DayName:   d.DayName,
				IsWeekend: d.IsWeekend,
			})
		}
	case models.TableDimProduct:
		schema = new(productRow)
		for _, p := range ds.Products {
			rows = append(rows, &productRow{
				ProductKey:    p.ProductKey,
				StockCode:     p.StockCode,
				Description:   p.Description,
				FirstSeenDate: p.FirstSeenDate.UnixMilli(),
				LastSeenDate:  p.LastSeenDate.UnixMilli(),
				IsActive:      p.IsActive,
			})
		}
	case models.TableDimCustomer:
		schema = new(customerRow)
		for _, c := range ds.Customers {
			rows = append(rows, &customerRow{
				CustomerKey:       c.CustomerKey,
				CustomerID:        c.CustomerID,
				Country:           c.Country,
				FirstPurchaseDate: c.FirstPurchaseDate.UnixMilli(),
				LastPurchaseDate:  c.LastPurchaseDate.UnixMilli(),
				IsUnknownCustomer: c.IsUnknownCustomer,
			})
		}
	case models.TableFactSales:
		schema = new(factRow)
		for _, f := range ds.Facts {
			rows = append(rows, &factRow{
				TransactionKey:   f.TransactionKey,
				DateKey:          int32(f.DateKey),
				ProductKey:       f.ProductKey,
				CustomerKey:      f.CustomerKey,
				InvoiceNo:        f.InvoiceNo,
				Quantity:         f.Quantity,
				UnitPrice:        unscaled(f.UnitPrice),
				LineTotal:        unscaled(f.LineTotal),
				IsCancelled:      f.IsCancelled,
				HighQuantityFlag: f.HighQuantityFlag,
				CreatedTimestamp: f.CreatedAt.UnixMilli(),
			})
		}
	default:
		return fmt.Errorf("unknown table %q", tableName)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create parquet: %w", err)
	}
	fw := writerfile.NewWriterFile(file)
	pw, err := writer.NewParquetWriter(fw, schema, 1)
	if err != nil {
		file.Close()
		return fmt.Errorf("failed to build %s parquet schema: %w", tableName, err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, row := range rows {
		if err := pw.Write(row); err != nil {
			file.Close()
			return fmt.Errorf("failed to write %s parquet row: %w", tableName, err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return fmt.Errorf("failed to finish %s parquet: %w", tableName, err)
	}
	return file.Close()
}

func epochDays(t time.Time) int32 {
	y, m, d := t.Date()
	return int32(time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / 86400)
}

// moneyScale is the parquet decimal scale; finer source digits are rounded here only
const moneyScale int32 = 4

func unscaled(d decimal.Decimal) int64 {
	return d.Round(moneyScale).Shift(moneyScale).IntPart()
}
