// Package tax computes gross/tax/net amount breakdowns using basis-point
// rates. Both settlement paths use it so the conversion math never
// diverges between the two currencies.
package tax

import "math"

// BpsDenominator is the basis-point scale: 10000 bps = 100%.
const BpsDenominator = 10000

// MaxAmount bounds the normalized amount so the basis-point product can
// never overflow int64.
const MaxAmount = math.MaxInt64 / BpsDenominator

// Breakdown is the result of applying a basis-point tax rate to an amount.
// Amount = Tax + Net always holds.
type Breakdown struct {
	Amount int64 `json:"amount"`
	Tax    int64 `json:"tax"`
	Net    int64 `json:"net"`
}

// ComputeBreakdown normalizes input to a non-negative integer amount and
// splits it into tax and net using bpsRate basis points (300 = 3%).
//
// Rounding direction is a contract: tax is floor division, always in the
// protocol's favor. Fractional and negative inputs normalize to floor and
// zero respectively; inputs beyond MaxAmount clamp to it, and rates clamp
// to [0, BpsDenominator]. Total function, no failure mode, and every
// field of the result is non-negative.
func ComputeBreakdown(input float64, bpsRate int64) Breakdown {
	amount := int64(0)
	if !math.IsNaN(input) && !math.IsInf(input, 0) {
		floored := math.Floor(input)
		switch {
		case floored >= MaxAmount:
			amount = MaxAmount
		case floored > 0:
			amount = int64(floored)
		}
	}

	if bpsRate < 0 {
		bpsRate = 0
	}
	if bpsRate > BpsDenominator {
		bpsRate = BpsDenominator
	}

	taxed := amount * bpsRate / BpsDenominator
	return Breakdown{
		Amount: amount,
		Tax:    taxed,
		Net:    amount - taxed,
	}
}
