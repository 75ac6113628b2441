package tax

import (
	"math"
	"testing"
)

func TestComputeBreakdown_FloorRounding(t *testing.T) {
	tests := []struct {
		name   string
		input  float64
		bps    int64
		amount int64
		tax    int64
		net    int64
	}{
		{"swap tax 3%", 1000, 300, 1000, 30, 970},
		{"exchange tax 10%", 1000, 1000, 1000, 100, 900},
		{"tax floors down", 999, 300, 999, 29, 970},
		{"small amount floors to zero tax", 3, 300, 3, 0, 3},
		{"fractional input floors", 1000.9, 300, 1000, 30, 970},
		{"negative input normalizes to zero", -500, 300, 0, 0, 0},
		{"zero bps", 1000, 0, 1000, 0, 1000},
		{"full bps", 1000, 10000, 1000, 1000, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := ComputeBreakdown(tt.input, tt.bps)
			if b.Amount != tt.amount || b.Tax != tt.tax || b.Net != tt.net {
				t.Errorf("ComputeBreakdown(%v, %d) = %+v, want {%d %d %d}",
					tt.input, tt.bps, b, tt.amount, tt.tax, tt.net)
			}
		})
	}
}

func TestComputeBreakdown_TaxPlusNetEqualsAmount(t *testing.T) {
	rates := []int64{0, 1, 299, 300, 1000, 9999, 10000}
	for amount := int64(0); amount <= 5000; amount += 7 {
		for _, bps := range rates {
			b := ComputeBreakdown(float64(amount), bps)
			if b.Tax+b.Net != b.Amount {
				t.Fatalf("tax %d + net %d != amount %d (input %d, bps %d)",
					b.Tax, b.Net, b.Amount, amount, bps)
			}
			if b.Tax < 0 || b.Net < 0 {
				t.Fatalf("negative component for input %d bps %d: %+v", amount, bps, b)
			}
		}
	}
}

func TestComputeBreakdown_NonFiniteInput(t *testing.T) {
	for _, input := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		b := ComputeBreakdown(input, 300)
		if b.Amount != 0 || b.Tax != 0 || b.Net != 0 {
			t.Errorf("ComputeBreakdown(%v) = %+v, want zero breakdown", input, b)
		}
	}
}

func TestComputeBreakdown_NegativeRateNormalizes(t *testing.T) {
	b := ComputeBreakdown(1000, -300)
	if b.Tax != 0 || b.Net != 1000 {
		t.Errorf("negative rate should normalize to zero tax, got %+v", b)
	}
}

func TestComputeBreakdown_ClampsExtremes(t *testing.T) {
	// Inputs past the representable range clamp instead of wrapping to
	// min-int64 on conversion.
	for _, input := range []float64{1e30, math.MaxInt64, float64(MaxAmount) * 2} {
		b := ComputeBreakdown(input, 300)
		if b.Amount != MaxAmount {
			t.Errorf("ComputeBreakdown(%v) amount = %d, want %d", input, b.Amount, MaxAmount)
		}
		if b.Tax != MaxAmount*300/BpsDenominator || b.Tax+b.Net != b.Amount {
			t.Errorf("ComputeBreakdown(%v) = %+v, inconsistent clamp", input, b)
		}
	}

	// Rates past 100% clamp to full tax, keeping net non-negative.
	b := ComputeBreakdown(1000, 25000)
	if b.Tax != 1000 || b.Net != 0 {
		t.Errorf("excess rate should clamp to full tax, got %+v", b)
	}

	// The clamped amount times the full rate still fits in int64.
	b = ComputeBreakdown(float64(MaxAmount), BpsDenominator)
	if b.Amount != MaxAmount || b.Tax != MaxAmount || b.Net != 0 {
		t.Errorf("ComputeBreakdown(MaxAmount, full rate) = %+v", b)
	}
}
