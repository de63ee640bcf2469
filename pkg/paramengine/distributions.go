package paramengine

import (
	"math"
	"math/rand"

	"github.com/HopkinsIDD/flepimop-go/pkg/perr"
	"github.com/HopkinsIDD/flepimop-go/pkg/scenariocfg"
)

// Sampler draws one realization from a parameterized distribution using rng.
// Every recognized DistributionKind (§4.B) has exactly one Sampler in the
// registry below; dispatch is a map lookup, not a type switch over a class
// hierarchy (§9 "tagged variants, dispatch is a pattern match").
type Sampler func(params map[string]float64, rng *rand.Rand) (float64, error)

var registry = map[scenariocfg.DistributionKind]Sampler{
	scenariocfg.DistFixed:     sampleFixed,
	scenariocfg.DistUniform:   sampleUniform,
	scenariocfg.DistTruncNorm: sampleTruncNorm,
	scenariocfg.DistPoisson:   samplePoisson,
	scenariocfg.DistLognormal: sampleLognormal,
	scenariocfg.DistBinomial:  sampleBinomial,
}

// Sample draws one realization from spec using rng.
func Sample(spec *scenariocfg.DistributionSpec, rng *rand.Rand) (float64, error) {
	fn, ok := registry[spec.Kind]
	if !ok {
		return 0, perr.NewEvaluationError(string(spec.Kind), nil)
	}
	v, err := fn(spec.Params, rng)
	if err != nil {
		return 0, perr.NewEvaluationError(string(spec.Kind), err)
	}
	return v, nil
}

func requireParam(params map[string]float64, name string) (float64, bool) {
	v, ok := params[name]
	return v, ok
}

func sampleFixed(params map[string]float64, _ *rand.Rand) (float64, error) {
	v, ok := requireParam(params, "value")
	if !ok {
		return 0, errMissing("value")
	}
	return v, nil
}

func sampleUniform(params map[string]float64, rng *rand.Rand) (float64, error) {
	low, ok1 := requireParam(params, "low")
	high, ok2 := requireParam(params, "high")
	if !ok1 || !ok2 {
		return 0, errMissing("low/high")
	}
	return low + rng.Float64()*(high-low), nil
}

// sampleTruncNorm draws from Normal(mean, sd) truncated to [low, high] via
// rejection sampling, the same approach the inference controller's proposal
// step uses for perturbations (§4.I step 1).
func sampleTruncNorm(params map[string]float64, rng *rand.Rand) (float64, error) {
	mean, ok1 := requireParam(params, "mean")
	sd, ok2 := requireParam(params, "sd")
	if !ok1 || !ok2 {
		return 0, errMissing("mean/sd")
	}
	low, hasLow := requireParam(params, "low")
	high, hasHigh := requireParam(params, "high")
	if !hasLow {
		low = math.Inf(-1)
	}
	if !hasHigh {
		high = math.Inf(1)
	}
	for attempt := 0; attempt < 10000; attempt++ {
		v := mean + sd*rng.NormFloat64()
		if v >= low && v <= high {
			return v, nil
		}
	}
	return clamp(mean, low, high), nil
}

// samplePoisson draws from Poisson(lambda) via Knuth's algorithm, adequate
// for the lambda ranges (per-date seeding rates, small flow counts) this
// pipeline uses; large-lambda callers should prefer a normal approximation
// if profiling ever shows this loop is hot.
func samplePoisson(params map[string]float64, rng *rand.Rand) (float64, error) {
	lambda, ok := requireParam(params, "lambda")
	if !ok {
		return 0, errMissing("lambda")
	}
	if lambda <= 0 {
		return 0, nil
	}
	return float64(poissonDraw(lambda, rng)), nil
}

func poissonDraw(lambda float64, rng *rand.Rand) int {
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

func sampleLognormal(params map[string]float64, rng *rand.Rand) (float64, error) {
	meanlog, ok1 := requireParam(params, "meanlog")
	sdlog, ok2 := requireParam(params, "sdlog")
	if !ok1 || !ok2 {
		return 0, errMissing("meanlog/sdlog")
	}
	return math.Exp(meanlog + sdlog*rng.NormFloat64()), nil
}

func sampleBinomial(params map[string]float64, rng *rand.Rand) (float64, error) {
	n, ok1 := requireParam(params, "n")
	p, ok2 := requireParam(params, "p")
	if !ok1 || !ok2 {
		return 0, errMissing("n/p")
	}
	count := 0
	for i := 0; i < int(n); i++ {
		if rng.Float64() < p {
			count++
		}
	}
	return float64(count), nil
}

func clamp(v, low, high float64) float64 {
	if v < low {
		return low
	}
	if v > high {
		return high
	}
	return v
}

func errMissing(names string) error {
	return &missingParamsError{names: names}
}

type missingParamsError struct{ names string }

func (e *missingParamsError) Error() string { return "missing required param(s): " + e.names }
