package engine

import "fmt"

// Invariants whose violation aborts a run
const (
	InvariantRejectedInModel     = "rejected_record_in_model"
	InvariantDateKeyResolves     = "fact_date_key_resolves"
	InvariantProductKeyResolves  = "fact_product_key_resolves"
	InvariantCustomerKeyResolves = "fact_customer_key_resolves"
	InvariantLineTotal           = "line_total_equals_quantity_times_price"
	InvariantSurrogateKeyUnique  = "surrogate_key_unique"
	InvariantNoOrphanDimension   = "dimension_row_referenced"
	InvariantFactPerRecord       = "one_fact_per_accepted_record"
)

// NoRow marks a ConsistencyError not tied to a single source record
const NoRow = -1

// ConsistencyError reports a defect in the engine itself, never bad input.
// A run that produces one must not hand any output to collaborators.
type ConsistencyError struct {
	Invariant string
	RowIndex  int
	Detail    string
}

func (e *ConsistencyError) Error() string {
	if e.RowIndex == NoRow {
		return fmt.Sprintf("internal consistency violation [%s]: %s", e.Invariant, e.Detail)
	}
	return fmt.Sprintf("internal consistency violation [%s] at row %d: %s", e.Invariant, e.RowIndex, e.Detail)
}

func violation(invariant string, row int, format string, args ...interface{}) *ConsistencyError {
	return &ConsistencyError{
		Invariant: invariant,
		RowIndex:  row,
		Detail:    fmt.Sprintf(format, args...),
	}
}
