package engine

import (
	"time"

	"retail-pipeline/internal/models"
)

// Report summarizes a successful run for the orchestrating and reporting collaborators.
// Flags counts every record a flag fired on at classification, rejected records and
// dropped duplicates included; AcceptedFlags counts only the records that became facts.
type Report struct {
	InitialRows      int            `json:"initial_rows"`
	FinalRows        int            `json:"final_rows"`
	RowsRemoved      int            `json:"rows_removed"`
	PassRate         float64        `json:"data_quality_pass_rate"`
	Rejections       map[string]int `json:"rejections"`
	Flags            map[string]int `json:"flags"`
	AcceptedFlags    map[string]int `json:"accepted_flags"`
	TableRows        map[string]int `json:"tables_created"`
	DateFrom         time.Time      `json:"date_from"`
	DateTo           time.Time      `json:"date_to"`
	UniqueProducts   int            `json:"unique_products"`
	UniqueCustomers  int            `json:"unique_customers"`
	UnknownCustomers int            `json:"unknown_customers"`
}

func buildReport(initial int, accepted []ClassifiedRecord, ds models.Dataset, ledger *Ledger) Report {
	r := Report{
		InitialRows:     initial,
		FinalRows:       len(ds.Facts),
		RowsRemoved:     initial - len(ds.Facts),
		Rejections:      ledger.Rejections(),
		Flags:           ledger.Flags(),
		AcceptedFlags:   make(map[string]int),
		UniqueProducts:  len(ds.Products),
		UniqueCustomers: len(ds.Customers),
		TableRows: map[string]int{
			models.TableFactSales:   len(ds.Facts),
			models.TableDimDate:     len(ds.Dates),
			models.TableDimProduct:  len(ds.Products),
			models.TableDimCustomer: len(ds.Customers),
		},
	}
	if initial > 0 {
		r.PassRate = float64(len(ds.Facts)) / float64(initial) * 100
	}
	if n := len(ds.Dates); n > 0 {
		r.DateFrom = ds.Dates[0].FullDate
		r.DateTo = ds.Dates[n-1].FullDate
	}
	for i := range accepted {
		for _, f := range accepted[i].Flags() {
			r.AcceptedFlags[string(f)]++
		}
	}
	for _, c := range ds.Customers {
		if c.IsUnknownCustomer {
			r.UnknownCustomers++
		}
	}
	return r
}
