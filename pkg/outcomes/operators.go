package outcomes

import (
	"math"
	"math/rand"

	"github.com/HopkinsIDD/flepimop-go/pkg/paramengine"
	"github.com/HopkinsIDD/flepimop-go/pkg/perr"
	"github.com/HopkinsIDD/flepimop-go/pkg/scenariocfg"
)

// delaySamples is how many draws build the empirical day-bucketed PMF for a
// distributional delay (§4.G "convolution with a fixed or distributional
// lag") — large enough that the empirical PMF is stable, small enough that
// setup stays cheap relative to the run it happens once per.
const delaySamples = 4000

// maxDelayDays bounds how far a distributional delay's empirical PMF
// extends; draws beyond this are folded into the last bucket rather than
// silently dropped, so probability mass is conserved.
const maxDelayDays = 120

// evalProbability applies Bernoulli thinning to source: each cell's
// expected output is source * p, where p is drawn once from spec's
// distribution (a parameter-like realization, §3 "Parameter" lifecycle) and
// then multiplied by any active outcome modifier on this node's
// "<node>.probability" knob. When rng is supplied the output is instead a
// stochastic Binomial(round(source), p) draw per cell.
func evalProbability(name string, spec scenariocfg.OutcomeSpec, source Series, modifiers map[string]*paramengine.Tensor, rng *rand.Rand) (Series, error) {
	if source == nil {
		return nil, perr.NewConfigError("outcomes.evalProbability", errUnknownSource(spec.Source))
	}
	p, err := paramengine.Sample(spec.Probability, rng)
	if err != nil {
		return nil, err
	}
	mod := modifierFor(modifiers, modifierKnobName(name, scenariocfg.OpProbability))

	out := paramengine.NewTensor(source.T, source.S)
	for day := 0; day < source.T; day++ {
		for s := 0; s < source.S; s++ {
			cellP := clamp01(p * modifierMultiplier(mod, day, s))
			src := source.At(day, s)
			if rng != nil {
				out.Set(day, s, stochasticBinomial(src, cellP, rng))
			} else {
				out.Set(day, s, src*cellP)
			}
		}
	}
	return out, nil
}

func stochasticBinomial(n, p float64, rng *rand.Rand) float64 {
	count := int(math.Round(n))
	if count <= 0 {
		return 0
	}
	successes := 0
	for i := 0; i < count; i++ {
		if rng.Float64() < p {
			successes++
		}
	}
	return float64(successes)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// evalDelay convolves source with a lag kernel: a FixedDays shift, or an
// empirical PMF built from sampling spec.Delay.Distribution delaySamples
// times.
func evalDelay(name string, spec scenariocfg.OutcomeSpec, source Series, modifiers map[string]*paramengine.Tensor, rng *rand.Rand) (Series, error) {
	if source == nil {
		return nil, perr.NewConfigError("outcomes.evalDelay", errUnknownSource(spec.Source))
	}
	kernel, err := delayKernel(spec.Delay, rng)
	if err != nil {
		return nil, err
	}
	mod := modifierFor(modifiers, modifierKnobName(name, scenariocfg.OpDelay))
	return convolve(source, kernel, mod), nil
}

// delayKernel returns a probability-mass-conserving day-bucketed kernel:
// a single 1.0 at FixedDays, or the empirical PMF of Distribution.
func delayKernel(spec *scenariocfg.DelaySpec, rng *rand.Rand) ([]float64, error) {
	if spec == nil {
		return []float64{1}, nil
	}
	if spec.FixedDays != nil {
		k := make([]float64, *spec.FixedDays+1)
		k[*spec.FixedDays] = 1
		return k, nil
	}
	if spec.Distribution == nil {
		return []float64{1}, nil
	}
	counts := make([]float64, maxDelayDays+1)
	for i := 0; i < delaySamples; i++ {
		v, err := paramengine.Sample(spec.Distribution, rng)
		if err != nil {
			return nil, err
		}
		day := int(math.Round(v))
		if day < 0 {
			day = 0
		}
		if day > maxDelayDays {
			day = maxDelayDays
		}
		counts[day]++
	}
	for i := range counts {
		counts[i] /= float64(delaySamples)
	}
	return counts, nil
}

// convolve applies kernel (a day-bucketed PMF) to source's time axis
// per-subpop, scaling the result by mod (a modifier multiplier, 1 if nil).
func convolve(source Series, kernel []float64, mod *paramengine.Tensor) Series {
	out := paramengine.NewTensor(source.T, source.S)
	for day := 0; day < source.T; day++ {
		for s := 0; s < source.S; s++ {
			v := source.At(day, s)
			if v == 0 {
				continue
			}
			for lag, weight := range kernel {
				if weight == 0 {
					continue
				}
				targetDay := day + lag
				if targetDay >= source.T {
					continue
				}
				out.Set(targetDay, s, out.At(targetDay, s)+v*weight*modifierMultiplier(mod, targetDay, s))
			}
		}
	}
	return out
}

// evalDuration derives a "currently in state" series: the running count of
// individuals who have entered (via source) but not yet left (via the
// delayed clearance implied by spec.Delay), i.e. cumulative inflow minus
// cumulative delayed outflow (§4.G).
func evalDuration(name string, spec scenariocfg.OutcomeSpec, source Series, modifiers map[string]*paramengine.Tensor, rng *rand.Rand) (Series, error) {
	if source == nil {
		return nil, perr.NewConfigError("outcomes.evalDuration", errUnknownSource(spec.Source))
	}
	kernel, err := delayKernel(&spec.Duration.Delay, rng)
	if err != nil {
		return nil, err
	}
	mod := modifierFor(modifiers, modifierKnobName(name, scenariocfg.OpDuration))
	outflow := convolve(source, kernel, mod)

	out := paramengine.NewTensor(source.T, source.S)
	for s := 0; s < source.S; s++ {
		cumIn, cumOut := 0.0, 0.0
		for day := 0; day < source.T; day++ {
			cumIn += source.At(day, s)
			cumOut += outflow.At(day, s)
			out.Set(day, s, cumIn-cumOut)
		}
	}
	return out, nil
}

type unknownSourceError string

func (e unknownSourceError) Error() string { return "unknown or unevaluated source: " + string(e) }

func errUnknownSource(name string) error { return unknownSourceError(name) }
