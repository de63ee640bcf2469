package integrate

import "github.com/HopkinsIDD/flepimop-go/pkg/paramengine"

// SubpopTotal returns the sum of prevalence across all compartments for one
// subpop, the quantity §8's mass-conservation property holds constant
// (modulo net seeding).
func SubpopTotal(state *paramengine.Tensor, subpop int) float64 {
	total := 0.0
	for c := 0; c < state.T; c++ {
		total += state.At(c, subpop)
	}
	return total
}

// MassConservedWithinTolerance reports whether every subpop's total in
// `after` equals its total in `before` plus netSeeding, within the relative
// tolerance required by §8 ("within 10^-8 relative tolerance").
func MassConservedWithinTolerance(before, after *paramengine.Tensor, netSeeding []float64, tolerance float64) bool {
	for s := 0; s < before.S; s++ {
		b := SubpopTotal(before, s)
		a := SubpopTotal(after, s)
		want := b
		if netSeeding != nil {
			want += netSeeding[s]
		}
		if want == 0 {
			if a != 0 {
				return false
			}
			continue
		}
		rel := (a - want) / want
		if rel < -tolerance || rel > tolerance {
			return false
		}
	}
	return true
}
