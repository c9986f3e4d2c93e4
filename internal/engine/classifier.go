package engine

import (
	"strings"
	"time"

	"retail-pipeline/internal/models"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Classify applies every catalog rule to every raw record.
// Output is one-to-one with the input and keeps its order; rejected records are
// retained with their reason set so downstream stages can filter them.
func Classify(raw []models.RawRecord, catalog Catalog, opts Options, ledger *Ledger) []ClassifiedRecord {
	opts = opts.withDefaults()
	caser := cases.Title(language.English)

	out := make([]ClassifiedRecord, len(raw))
	for i := range raw {
		rec := prepare(raw[i], opts, caser)
		for _, rule := range catalog {
			if !rule.Evaluate(&rec) {
				continue
			}
			if rule.Kind == KindFallback || rule.Kind == KindFlag {
				ledger.Flag(rule.Flag, rec.RowIndex)
			}
		}
		if rec.Rejection != "" {
			ledger.Reject(rec.Rejection, rec.RowIndex)
		}
		out[i] = rec
	}
	return out
}

// prepare derives the normalized inputs the rule predicates read
func prepare(raw models.RawRecord, opts Options, caser cases.Caser) ClassifiedRecord {
	rec := ClassifiedRecord{RawRecord: raw}

	if raw.Description != nil {
		rec.ResolvedDescription = strings.TrimSpace(*raw.Description)
	}
	if raw.CustomerID != nil {
		rec.CustomerKey = *raw.CustomerID
	}
	rec.NormalizedCountry = normalizeCountry(raw.Country, caser)
	rec.InvoiceTime, rec.DateParsed = parseInvoiceDate(raw.InvoiceDate, opts.DateLayouts)

	return rec
}

// parseInvoiceDate tries each layout in order
func parseInvoiceDate(value string, layouts []string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// normalizeCountry trims, collapses inner whitespace and title-cases a country name
func normalizeCountry(country string, caser cases.Caser) string {
	fields := strings.Fields(country)
	if len(fields) == 0 {
		return DefaultUnknownCountry
	}
	return caser.String(strings.Join(fields, " "))
}

// Accepted returns the records without a rejection, in input order
func Accepted(records []ClassifiedRecord) []ClassifiedRecord {
	out := make([]ClassifiedRecord, 0, len(records))
	for _, rec := range records {
		if rec.Accepted() {
			out = append(out, rec)
		}
	}
	return out
}

// Rejected returns the records carrying a rejection, in input order
func Rejected(records []ClassifiedRecord) []ClassifiedRecord {
	out := make([]ClassifiedRecord, 0)
	for _, rec := range records {
		if !rec.Accepted() {
			out = append(out, rec)
		}
	}
	return out
}
