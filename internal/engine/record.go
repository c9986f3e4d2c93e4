package engine

import (
	"time"

	"retail-pipeline/internal/models"
)

// RejectionReason names a terminal exclusion. The zero value means accepted.
type RejectionReason string

const (
	ReasonInvalidPrice RejectionReason = "invalid_price"
	ReasonInvalidDate  RejectionReason = "invalid_date"
	ReasonDuplicate    RejectionReason = "duplicate"
)

// Flag names a non-terminal rule outcome recorded in the ledger
type Flag string

const (
	FlagCancelled          Flag = "cancelled"
	FlagHighQuantity       Flag = "high_quantity"
	FlagNegativeQuantity   Flag = "negative_quantity"
	FlagMissingDescription Flag = "missing_description"
	FlagMissingCustomer    Flag = "missing_customer"
)

// UnknownCustomerID is the business key that null source customer ids resolve to
const UnknownCustomerID int64 = 0

// ClassifiedRecord is a raw record plus everything the rule catalog derived from it
type ClassifiedRecord struct {
	models.RawRecord

	IsCancelled        bool
	IsHighQuantity     bool
	NeedsReview        bool
	DescriptionMissing bool
	CustomerMissing    bool

	// Resolved values used by the dimensional model
	ResolvedDescription string
	CustomerKey         int64
	NormalizedCountry   string
	InvoiceTime         time.Time
	DateParsed          bool

	Rejection RejectionReason
}

// Accepted reports whether the record flows into the dimensional model
func (r *ClassifiedRecord) Accepted() bool {
	return r.Rejection == ""
}

// Flags lists the flags set on the record in a stable order
func (r *ClassifiedRecord) Flags() []Flag {
	var flags []Flag
	if r.IsCancelled {
		flags = append(flags, FlagCancelled)
	}
	if r.IsHighQuantity {
		flags = append(flags, FlagHighQuantity)
	}
	if r.NeedsReview {
		flags = append(flags, FlagNegativeQuantity)
	}
	if r.DescriptionMissing {
		flags = append(flags, FlagMissingDescription)
	}
	if r.CustomerMissing {
		flags = append(flags, FlagMissingCustomer)
	}
	return flags
}

// calendarDate truncates the invoice time to its calendar date in UTC
func (r *ClassifiedRecord) calendarDate() time.Time {
	y, m, d := r.InvoiceTime.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
