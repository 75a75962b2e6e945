//go:build property

package quorum

import (
	"math/big"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"fxsettle/internal/payment/models"
	"fxsettle/internal/payment/roster"
	id "fxsettle/pkg/domain"
)

func TestAggregationIsOrderIndependent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	oracles := []id.AccountID{"O1", "O2", "O3", "O4", "O5"}
	agg := New(roster.MustNew("O1", "O2", "O3", "O4", "O5"))

	build := func(rates []int64, order []int) *models.Payment {
		p, _ := models.NewPayment("p1", "payer", "payee", "", big.NewInt(1000), time.Unix(0, 0))
		for _, i := range order {
			p.RecordRate(oracles[i], big.NewInt(rates[i]))
		}
		return p
	}

	properties.Property("mean is the same for every submission order", prop.ForAll(
		func(rates []int64, seed int) bool {
			forward := []int{0, 1, 2, 3, 4}
			rotated := make([]int, len(forward))
			for i := range forward {
				rotated[i] = forward[(i+seed)%len(forward)]
			}
			reversed := []int{4, 3, 2, 1, 0}

			a := agg.Evaluate(build(rates, forward))
			b := agg.Evaluate(build(rates, rotated))
			c := agg.Evaluate(build(rates, reversed))
			if !a.Reached {
				return false
			}
			return a.Rate.Cmp(b.Rate) == 0 && a.Rate.Cmp(c.Rate) == 0
		},
		gen.SliceOfN(5, gen.Int64Range(1, 1<<62)),
		gen.IntRange(0, 4),
	))

	properties.Property("mean lies between min and max submission", prop.ForAll(
		func(rates []int64) bool {
			res := agg.Evaluate(build(rates, []int{0, 1, 2, 3, 4}))
			lo, hi := rates[0], rates[0]
			for _, r := range rates {
				lo = min(lo, r)
				hi = max(hi, r)
			}
			return res.Rate.Cmp(big.NewInt(lo)) >= 0 && res.Rate.Cmp(big.NewInt(hi)) <= 0
		},
		gen.SliceOfN(5, gen.Int64Range(1, 1<<62)),
	))

	properties.TestingRun(t)
}
