package engine

import "strings"

// RuleKind tells the classifier how a fired rule affects the record
type RuleKind int

const (
	// KindReject excludes the record from the model. Terminal.
	KindReject RuleKind = iota
	// KindFallback substitutes a default for a missing value and accepts
	KindFallback
	// KindFlag marks the record and accepts
	KindFlag
	// KindDrop is enforced across records by the Deduplicator, not per record
	KindDrop
)

func (k RuleKind) String() string {
	switch k {
	case KindReject:
		return "reject"
	case KindFallback:
		return "fallback"
	case KindFlag:
		return "flag"
	case KindDrop:
		return "drop"
	default:
		return "unknown"
	}
}

// Rule is one (predicate, action) pair of the catalog.
// When reads raw and normalized inputs only; Then writes derived fields only,
// and no two rules write the same field.
type Rule struct {
	Name   string
	Kind   RuleKind
	Reason RejectionReason
	Flag   Flag
	When   func(*ClassifiedRecord) bool
	Then   func(*ClassifiedRecord)
}

// Evaluate applies the rule to rec when its predicate holds and reports whether it fired.
// A reject rule only sets the rejection if none was set by an earlier rule.
func (r Rule) Evaluate(rec *ClassifiedRecord) bool {
	if r.Kind == KindDrop || r.When == nil || !r.When(rec) {
		return false
	}
	if r.Kind == KindReject && rec.Rejection == "" {
		rec.Rejection = r.Reason
	}
	if r.Then != nil {
		r.Then(rec)
	}
	return true
}

// Catalog is the ordered rule set applied to every record
type Catalog []Rule

// Find returns the rule with the given name
func (c Catalog) Find(name string) (Rule, bool) {
	for _, r := range c {
		if r.Name == name {
			return r, true
		}
	}
	return Rule{}, false
}

// DefaultCatalog builds the business rule set for online retail transactions
func DefaultCatalog(opts Options) Catalog {
	opts = opts.withDefaults()
	threshold := opts.HighQuantityThreshold
	label := opts.UnknownProductLabel

	return Catalog{
		{
			Name:   string(ReasonDuplicate),
			Kind:   KindDrop,
			Reason: ReasonDuplicate,
		},
		{
			Name:   string(ReasonInvalidPrice),
			Kind:   KindReject,
			Reason: ReasonInvalidPrice,
			When: func(rec *ClassifiedRecord) bool {
				return !rec.UnitPrice.IsPositive()
			},
		},
		{
			Name: string(FlagMissingDescription),
			Kind: KindFallback,
			Flag: FlagMissingDescription,
			When: func(rec *ClassifiedRecord) bool {
				return rec.Description == nil || strings.TrimSpace(*rec.Description) == ""
			},
			Then: func(rec *ClassifiedRecord) {
				rec.DescriptionMissing = true
				rec.ResolvedDescription = label
			},
		},
		{
			Name: string(FlagMissingCustomer),
			Kind: KindFallback,
			Flag: FlagMissingCustomer,
			When: func(rec *ClassifiedRecord) bool {
				return rec.CustomerID == nil || *rec.CustomerID <= 0
			},
			Then: func(rec *ClassifiedRecord) {
				rec.CustomerMissing = true
				rec.CustomerKey = UnknownCustomerID
			},
		},
		{
			Name: string(FlagCancelled),
			Kind: KindFlag,
			Flag: FlagCancelled,
			When: func(rec *ClassifiedRecord) bool {
				return isCancelledInvoice(rec.InvoiceNo)
			},
			Then: func(rec *ClassifiedRecord) {
				rec.IsCancelled = true
			},
		},
		{
			Name: string(FlagNegativeQuantity),
			Kind: KindFlag,
			Flag: FlagNegativeQuantity,
			When: func(rec *ClassifiedRecord) bool {
				return rec.Quantity < 0 && !isCancelledInvoice(rec.InvoiceNo)
			},
			Then: func(rec *ClassifiedRecord) {
				rec.NeedsReview = true
			},
		},
		{
			Name: string(FlagHighQuantity),
			Kind: KindFlag,
			Flag: FlagHighQuantity,
			When: func(rec *ClassifiedRecord) bool {
				return abs(rec.Quantity) > threshold
			},
			Then: func(rec *ClassifiedRecord) {
				rec.IsHighQuantity = true
			},
		},
		{
			Name:   string(ReasonInvalidDate),
			Kind:   KindReject,
			Reason: ReasonInvalidDate,
			When: func(rec *ClassifiedRecord) bool {
				return !rec.DateParsed
			},
		},
	}
}

func isCancelledInvoice(invoiceNo string) bool {
	return strings.HasPrefix(invoiceNo, "C")
}

func abs(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}
