package integrate

import (
	"math"
	"math/rand"

	"github.com/HopkinsIDD/flepimop-go/pkg/paramengine"
	"github.com/HopkinsIDD/flepimop-go/pkg/transition"
)

// expectedFlows computes the deterministic instantaneous outflow for every
// concrete transition and subpop (§4.E numeric semantics): rate(t,s) times
// the product of proportional-to factors raised to their exponents, times
// dt. The `"source"` shorthand factor reads the source compartment's own
// (non-mobility-adjusted) prevalence — it is the per-capita normalization
// term — while every other proportional-to factor reads the
// mobility-adjusted effective prevalence (effState), since those represent
// the force exerted by a (possibly foreign) compartment on this subpop.
func expectedFlows(state, effState *paramengine.Tensor, table *transition.Table, rates map[string]*paramengine.Tensor, day int, dt float64) *paramengine.Tensor {
	S := state.S
	out := paramengine.NewTensor(len(table.Concretes), S)

	for ci, c := range table.Concretes {
		for s := 0; s < S; s++ {
			rate := 1.0
			for _, p := range c.RateParams {
				if tn, ok := rates[p]; ok {
					rate *= tn.At(day, s)
				}
			}

			prod := 1.0
			for _, f := range c.ProportionalTo {
				src := effState
				if f.SourceOnly {
					src = state
				}
				sum := 0.0
				for _, idx := range f.Indices {
					sum += src.At(idx, s)
				}
				exp := constantOrParam(f.Exponent, rates, day, s)
				prod *= math.Pow(sum, exp)
			}

			out.Set(ci, s, rate*prod*dt)
		}
	}
	return out
}

func constantOrParam(name string, rates map[string]*paramengine.Tensor, day, s int) float64 {
	if name == "" || name == "1" {
		return 1
	}
	if tn, ok := rates[name]; ok {
		return tn.At(day, s)
	}
	return 1
}

// applyFlows removes each concrete transition's flow from its source and
// adds it to its destination, accumulating the day's incidence. In
// stochastic mode, flows sharing a source within a subpop are drawn as a
// single Poisson total and split by multinomial thinning proportional to
// their deterministic weights, so total outflow never exceeds the source's
// available population (§4.F stochastic mode; §8 "stochastic mass
// balance").
func applyFlows(state *paramengine.Tensor, flows *paramengine.Tensor, table *transition.Table, stochastic bool, rng *rand.Rand, incidence *paramengine.Tensor, capped *int) {
	S := state.S
	groups := groupBySource(table)

	for s := 0; s < S; s++ {
		for source, members := range groups {
			available := state.At(source, s)
			total := 0.0
			for _, ci := range members {
				total += flows.At(ci, s)
			}
			if total <= 0 {
				continue
			}

			var actualTotal float64
			if stochastic {
				actualTotal = float64(poissonDraw(total, rng))
			} else {
				actualTotal = total
			}
			if actualTotal > available {
				actualTotal = available
				*capped++
			}

			remaining := actualTotal
			remainingWeight := total
			for i, ci := range members {
				var share float64
				if i == len(members)-1 {
					share = remaining // last member absorbs rounding remainder
				} else if stochastic {
					// Conditional binomial draws: together they are one
					// multinomial split of the integer total.
					p := 0.0
					if remainingWeight > 0 {
						p = flows.At(ci, s) / remainingWeight
					}
					n := 0
					for k := 0; k < int(remaining); k++ {
						if rng.Float64() < p {
							n++
						}
					}
					share = float64(n)
					remaining -= share
					remainingWeight -= flows.At(ci, s)
				} else {
					weight := 0.0
					if total > 0 {
						weight = flows.At(ci, s) / total
					}
					share = actualTotal * weight
					remaining -= share
				}
				dest := table.Concretes[ci].Dest
				state.Set(source, s, state.At(source, s)-share)
				state.Set(dest, s, state.At(dest, s)+share)
				incidence.Set(dest, s, incidence.At(dest, s)+share)
			}
		}
	}
}

func groupBySource(table *transition.Table) map[int][]int {
	groups := make(map[int][]int)
	for ci, c := range table.Concretes {
		groups[c.Source] = append(groups[c.Source], ci)
	}
	return groups
}

// poissonDraw draws from Poisson(lambda) via Knuth's algorithm; duplicated
// from pkg/paramengine to avoid a hot-path dependency on that package's
// EvaluationError-wrapping Sample entry point.
func poissonDraw(lambda float64, rng *rand.Rand) int {
	if lambda <= 0 {
		return 0
	}
	l := math.Exp(-lambda)
	k := 0
	p := 1.0
	for {
		k++
		p *= rng.Float64()
		if p <= l {
			return k - 1
		}
	}
}
