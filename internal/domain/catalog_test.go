package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quote(amount float64) *PriceQuote {
	return &PriceQuote{Amount: amount, Currency: "RON"}
}

func TestParsePlanTier(t *testing.T) {
	tests := []struct {
		input   string
		want    PlanTier
		wantErr bool
	}{
		{input: "normal", want: TierNormal},
		{input: "premium", want: TierPremium},
		{input: "subscription", want: TierSubscription},
		{input: "Normal", wantErr: true},
		{input: "premium_standard", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParsePlanTier(tt.input)
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrUnknownPlanTier))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPriceSheet(t *testing.T) {
	t.Run("distinguishes a zero price from a missing tier", func(t *testing.T) {
		sheet := PriceSheet{Normal: quote(0)}

		q, ok := sheet.Quote(TierNormal)
		assert.True(t, ok)
		assert.Equal(t, 0.0, q.Amount)

		_, ok = sheet.Quote(TierPremium)
		assert.False(t, ok)
	})

	t.Run("rejects negative amounts", func(t *testing.T) {
		var sheet PriceSheet
		err := sheet.SetQuote(TierNormal, PriceQuote{Amount: -1})
		assert.True(t, errors.Is(err, ErrInvalidInput))
		assert.True(t, sheet.Empty())
	})

	t.Run("rejects unknown tiers", func(t *testing.T) {
		var sheet PriceSheet
		err := sheet.SetQuote(PlanTier("gold"), PriceQuote{Amount: 10})
		assert.True(t, errors.Is(err, ErrUnknownPlanTier))
	})

	t.Run("stores a copy of the quote", func(t *testing.T) {
		var sheet PriceSheet
		q := PriceQuote{Amount: 25, Currency: "RON"}
		require.NoError(t, sheet.SetQuote(TierSubscription, q))
		q.Amount = 99

		got, ok := sheet.Quote(TierSubscription)
		require.True(t, ok)
		assert.Equal(t, 25.0, got.Amount)
	})

	t.Run("unknown tier is not offered", func(t *testing.T) {
		sheet := PriceSheet{Normal: quote(10)}
		_, ok := sheet.Quote(PlanTier("gold"))
		assert.False(t, ok)
	})
}

func TestCatalogEntry_Clone(t *testing.T) {
	original := CatalogEntry{
		Name:             "Hemoleucograma",
		Category:         "Hematologie",
		AlternativeNames: []string{"HLG"},
		Prices: map[string]PriceSheet{
			"reginamaria": {Normal: quote(25)},
		},
	}

	c := original.Clone()
	c.AlternativeNames[0] = "changed"
	c.Prices["reginamaria"].Normal.Amount = 1
	c.Prices["medlife"] = PriceSheet{Normal: quote(30)}

	assert.Equal(t, "HLG", original.AlternativeNames[0])
	assert.Equal(t, 25.0, original.Prices["reginamaria"].Normal.Amount)
	assert.NotContains(t, original.Prices, "medlife")
}

func TestCatalogEntry_Validate(t *testing.T) {
	tests := []struct {
		name    string
		entry   CatalogEntry
		wantErr bool
	}{
		{
			name:  "valid entry",
			entry: CatalogEntry{Name: "TSH", Prices: map[string]PriceSheet{"medlife": {Normal: quote(42)}}},
		},
		{
			name:  "entry without prices is valid",
			entry: CatalogEntry{Name: "TSH"},
		},
		{
			name:    "blank name",
			entry:   CatalogEntry{Name: "   "},
			wantErr: true,
		},
		{
			name:    "negative amount",
			entry:   CatalogEntry{Name: "TSH", Prices: map[string]PriceSheet{"medlife": {Premium: quote(-5)}}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.entry.Validate()
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrInvalidInput))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestTotals_Amount(t *testing.T) {
	totals := Totals{
		"medlife": {
			Amounts: map[PlanTier]float64{TierNormal: 30, TierPremium: 0},
			Counts:  map[PlanTier]int{TierNormal: 1},
			HasData: true,
		},
	}

	v, ok := totals.Amount("medlife", TierNormal)
	assert.True(t, ok)
	assert.Equal(t, 30.0, v)

	_, ok = totals.Amount("medlife", TierPremium)
	assert.False(t, ok, "a tier without contributing quotes has no amount")

	_, ok = totals.Amount("synevo", TierNormal)
	assert.False(t, ok)
}

func TestNewMatchedEntry(t *testing.T) {
	entry := CatalogEntry{Name: "VSH", Prices: map[string]PriceSheet{"synevo": {Normal: quote(12)}}}
	m := NewMatchedEntry(entry)

	entry.Prices["synevo"].Normal.Amount = 100
	assert.Equal(t, "VSH", m.Name)
	assert.Equal(t, 12.0, m.Prices["synevo"].Normal.Amount)
}

func TestDefaultProviderSlugs(t *testing.T) {
	assert.Equal(t, []string{"reginamaria", "medlife", "synevo", "medicover"}, DefaultProviderSlugs())
}
