package engine

import "sort"

// Ledger accumulates rejection and flag outcomes across all stages of a run.
// It is append-only and owned by a single run.
type Ledger struct {
	rejections map[RejectionReason][]int
	flags      map[Flag][]int
}

// NewLedger creates an empty ledger
func NewLedger() *Ledger {
	return &Ledger{
		rejections: make(map[RejectionReason][]int),
		flags:      make(map[Flag][]int),
	}
}

// Reject records a terminal exclusion for the given original row
func (l *Ledger) Reject(reason RejectionReason, rowIndex int) {
	l.rejections[reason] = append(l.rejections[reason], rowIndex)
}

// Flag records a non-terminal rule outcome for the given original row
func (l *Ledger) Flag(flag Flag, rowIndex int) {
	l.flags[flag] = append(l.flags[flag], rowIndex)
}

// RejectionCount returns how many rows were excluded for reason
func (l *Ledger) RejectionCount(reason RejectionReason) int {
	return len(l.rejections[reason])
}

// FlagCount returns how many rows carry flag
func (l *Ledger) FlagCount(flag Flag) int {
	return len(l.flags[flag])
}

// RejectedRows returns the original row indices excluded for reason
func (l *Ledger) RejectedRows(reason RejectionReason) []int {
	return append([]int(nil), l.rejections[reason]...)
}

// FlaggedRows returns the original row indices carrying flag
func (l *Ledger) FlaggedRows(flag Flag) []int {
	return append([]int(nil), l.flags[flag]...)
}

// TotalRejected is the number of rows excluded for any reason
func (l *Ledger) TotalRejected() int {
	total := 0
	for _, rows := range l.rejections {
		total += len(rows)
	}
	return total
}

// Rejections returns counts keyed by reason name
func (l *Ledger) Rejections() map[string]int {
	out := make(map[string]int, len(l.rejections))
	for reason, rows := range l.rejections {
		out[string(reason)] = len(rows)
	}
	return out
}

// Flags returns counts keyed by flag name
func (l *Ledger) Flags() map[string]int {
	out := make(map[string]int, len(l.flags))
	for flag, rows := range l.flags {
		out[string(flag)] = len(rows)
	}
	return out
}

// LedgerEntry is one line of the ledger as handed to reporting
type LedgerEntry struct {
	Kind  string `json:"kind"`
	Name  string `json:"name"`
	Count int    `json:"count"`
	Rows  []int  `json:"rows,omitempty"`
}

// Entries flattens the ledger into a stable, name-sorted list
func (l *Ledger) Entries(withRows bool) []LedgerEntry {
	entries := make([]LedgerEntry, 0, len(l.rejections)+len(l.flags))
	for reason, rows := range l.rejections {
		entries = append(entries, newEntry("rejection", string(reason), rows, withRows))
	}
	for flag, rows := range l.flags {
		entries = append(entries, newEntry("flag", string(flag), rows, withRows))
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Kind != entries[j].Kind {
			return entries[i].Kind > entries[j].Kind
		}
		return entries[i].Name < entries[j].Name
	})
	return entries
}

func newEntry(kind, name string, rows []int, withRows bool) LedgerEntry {
	e := LedgerEntry{Kind: kind, Name: name, Count: len(rows)}
	if withRows {
		e.Rows = append([]int(nil), rows...)
	}
	return e
}
