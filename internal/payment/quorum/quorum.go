// Package quorum decides when enough oracles agree to settle and computes
// the settlement rate.
package quorum

import (
	"math/big"

	"fxsettle/internal/payment/models"
	"fxsettle/internal/payment/roster"
	"fxsettle/pkg/fixedpoint"
)

// Threshold is the number of distinct non-zero submissions required to
// settle. It does not scale with the roster; a roster smaller than
// Threshold can never settle.
const Threshold = 3

// Result is the outcome of evaluating a payment's submissions.
type Result struct {
	Count   int
	Reached bool
	// Rate is the truncated mean of the counted submissions; nil unless Reached.
	Rate *big.Int
}

// Aggregator evaluates submissions against a fixed roster.
type Aggregator struct {
	roster roster.Roster
}

func New(r roster.Roster) *Aggregator {
	return &Aggregator{roster: r}
}

// Evaluate counts roster members with a non-zero rate, in roster order, and
// returns the mean once Threshold is met. Entries from identities outside the
// roster are ignored.
func (a *Aggregator) Evaluate(p *models.Payment) Result {
	var rates []*big.Int
	for _, oracle := range a.roster.Members() {
		if r := p.RateOf(oracle); r != nil {
			rates = append(rates, r)
		}
	}
	res := Result{Count: len(rates)}
	if res.Count >= Threshold {
		res.Reached = true
		res.Rate = fixedpoint.Mean(rates)
	}
	return res
}
