package engine

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ruleByName(t *testing.T, name string) Rule {
	t.Helper()
	rule, ok := DefaultCatalog(testOptions()).Find(name)
	require.True(t, ok, "rule %s not in catalog", name)
	return rule
}

func TestCatalogOrder(t *testing.T) {
	catalog := DefaultCatalog(testOptions())

	names := make([]string, len(catalog))
	for i, r := range catalog {
		names[i] = r.Name
	}
	assert.Equal(t, []string{
		"duplicate",
		"invalid_price",
		"missing_description",
		"missing_customer",
		"cancelled",
		"negative_quantity",
		"high_quantity",
		"invalid_date",
	}, names)
}

func TestInvalidPriceRule(t *testing.T) {
	rule := ruleByName(t, "invalid_price")
	assert.Equal(t, KindReject, rule.Kind)

	tests := []struct {
		price string
		fires bool
	}{
		{"2.55", false},
		{"0.01", false},
		{"0", true},
		{"-11062.06", true},
		{"0.004", false},
		{"0.001", false},
		{"-0.001", true},
	}

	for _, tt := range tests {
		t.Run(tt.price, func(t *testing.T) {
			c := ClassifiedRecord{}
			c.UnitPrice = decimal.RequireFromString(tt.price)
			assert.Equal(t, tt.fires, rule.Evaluate(&c))
			if tt.fires {
				assert.Equal(t, ReasonInvalidPrice, c.Rejection)
			} else {
				assert.True(t, c.Accepted())
			}
		})
	}
}

func TestRejectKeepsFirstReason(t *testing.T) {
	rule := ruleByName(t, "invalid_date")
	c := ClassifiedRecord{Rejection: ReasonInvalidPrice}

	assert.True(t, rule.Evaluate(&c))
	assert.Equal(t, ReasonInvalidPrice, c.Rejection)
}

func TestMissingDescriptionRule(t *testing.T) {
	rule := ruleByName(t, "missing_description")
	assert.Equal(t, KindFallback, rule.Kind)

	c := ClassifiedRecord{}
	assert.True(t, rule.Evaluate(&c))
	assert.True(t, c.DescriptionMissing)
	assert.Equal(t, "Unknown Product", c.ResolvedDescription)
	assert.True(t, c.Accepted())

	c = ClassifiedRecord{}
	c.Description = strPtr("   ")
	assert.True(t, rule.Evaluate(&c))

	c = ClassifiedRecord{ResolvedDescription: "WHITE METAL LANTERN"}
	c.Description = strPtr("WHITE METAL LANTERN")
	assert.False(t, rule.Evaluate(&c))
	assert.Equal(t, "WHITE METAL LANTERN", c.ResolvedDescription)
}

func TestMissingDescriptionCustomLabel(t *testing.T) {
	opts := testOptions()
	opts.UnknownProductLabel = "N/A"
	rule, ok := DefaultCatalog(opts).Find("missing_description")
	require.True(t, ok)

	c := ClassifiedRecord{}
	rule.Evaluate(&c)
	assert.Equal(t, "N/A", c.ResolvedDescription)
}

func TestMissingCustomerRule(t *testing.T) {
	rule := ruleByName(t, "missing_customer")

	c := ClassifiedRecord{}
	assert.True(t, rule.Evaluate(&c))
	assert.True(t, c.CustomerMissing)
	assert.Equal(t, UnknownCustomerID, c.CustomerKey)

	c = ClassifiedRecord{CustomerKey: 17850}
	c.CustomerID = idPtr(17850)
	assert.False(t, rule.Evaluate(&c))
	assert.Equal(t, int64(17850), c.CustomerKey)
}

func TestCancelledRule(t *testing.T) {
	rule := ruleByName(t, "cancelled")

	c := ClassifiedRecord{}
	c.InvoiceNo = "C536379"
	assert.True(t, rule.Evaluate(&c))
	assert.True(t, c.IsCancelled)

	c = ClassifiedRecord{}
	c.InvoiceNo = "536379"
	assert.False(t, rule.Evaluate(&c))
	assert.False(t, c.IsCancelled)
}

func TestNegativeQuantityRule(t *testing.T) {
	rule := ruleByName(t, "negative_quantity")

	c := ClassifiedRecord{}
	c.InvoiceNo = "536589"
	c.Quantity = -10
	assert.True(t, rule.Evaluate(&c))
	assert.True(t, c.NeedsReview)

	c = ClassifiedRecord{}
	c.InvoiceNo = "C536379"
	c.Quantity = -1
	assert.False(t, rule.Evaluate(&c))
	assert.False(t, c.NeedsReview)
}

func TestHighQuantityRule(t *testing.T) {
	rule := ruleByName(t, "high_quantity")

	for qty, fires := range map[int64]bool{
		10000:  false,
		10001:  true,
		80995:  true,
		-80995: true,
		6:      false,
	} {
		c := ClassifiedRecord{}
		c.Quantity = qty
		assert.Equal(t, fires, rule.Evaluate(&c), "quantity %d", qty)
		assert.Equal(t, fires, c.IsHighQuantity, "quantity %d", qty)
	}
}

func TestHighQuantityThresholdOption(t *testing.T) {
	opts := testOptions()
	opts.HighQuantityThreshold = 100
	rule, ok := DefaultCatalog(opts).Find("high_quantity")
	require.True(t, ok)

	c := ClassifiedRecord{}
	c.Quantity = 101
	assert.True(t, rule.Evaluate(&c))
}

func TestDuplicateRuleNeverFiresPerRecord(t *testing.T) {
	rule := ruleByName(t, "duplicate")
	assert.Equal(t, KindDrop, rule.Kind)

	c := ClassifiedRecord{}
	assert.False(t, rule.Evaluate(&c))
	assert.True(t, c.Accepted())
}

func TestRuleKindString(t *testing.T) {
	assert.Equal(t, "reject", KindReject.String())
	assert.Equal(t, "fallback", KindFallback.String())
	assert.Equal(t, "flag", KindFlag.String())
	assert.Equal(t, "drop", KindDrop.String())
	assert.Equal(t, "unknown", RuleKind(42).String())
}
