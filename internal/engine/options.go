package engine

import "time"

// Default business settings
const (
	DefaultHighQuantityThreshold int64 = 10000
	DefaultUnknownProductLabel         = "Unknown Product"
	DefaultUnknownCountry              = "Unknown"
)

// DefaultDateLayouts are tried in order when parsing invoice dates
var DefaultDateLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"1/2/2006 15:04",
	"1/2/2006 15:04:05",
	"1/2/2006",
}

// Options tune the rule catalog and the run clock
type Options struct {
	HighQuantityThreshold int64
	UnknownProductLabel   string
	DateLayouts           []string
	Now                   func() time.Time
}

// DefaultOptions returns the documented business defaults
func DefaultOptions() Options {
	return Options{
		HighQuantityThreshold: DefaultHighQuantityThreshold,
		UnknownProductLabel:   DefaultUnknownProductLabel,
		DateLayouts:           DefaultDateLayouts,
		Now:                   time.Now,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.HighQuantityThreshold <= 0 {
		o.HighQuantityThreshold = def.HighQuantityThreshold
	}
	if o.UnknownProductLabel == "" {
		o.UnknownProductLabel = def.UnknownProductLabel
	}
	if len(o.DateLayouts) == 0 {
		o.DateLayouts = def.DateLayouts
	}
	if o.Now == nil {
		o.Now = def.Now
	}
	return o
}
