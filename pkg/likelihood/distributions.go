package likelihood

import (
	"math"

	"github.com/HopkinsIDD/flepimop-go/pkg/perr"
	"github.com/HopkinsIDD/flepimop-go/pkg/scenariocfg"
)

// logLikFunc computes one bucket's log-pmf/pdf for a simulated value against
// an observed value, given the statistic's distribution parameters.
type logLikFunc func(sim, data float64, params map[string]float64) float64

// registry dispatches on LikelihoodDistribution the same way
// pkg/paramengine dispatches on DistributionKind: a tagged-variant lookup
// rather than a type hierarchy.
var registry = map[scenariocfg.LikelihoodDistribution]logLikFunc{
	scenariocfg.LikPois:     logLikPois,
	scenariocfg.LikNorm:     logLikNorm,
	scenariocfg.LikNormCov:  logLikNormCov,
	scenariocfg.LikSqrtNorm: logLikSqrtNorm,
	scenariocfg.LikLognorm:  logLikLognorm,
}

// LogLikelihood evaluates one bucket's contribution under dist.
func LogLikelihood(dist scenariocfg.LikelihoodDistribution, sim, data float64, params map[string]float64) (float64, error) {
	fn, ok := registry[dist]
	if !ok {
		return 0, perr.NewEvaluationError(string(dist), nil)
	}
	return fn(sim, data, params), nil
}

func logLikPois(sim, data float64, _ map[string]float64) float64 {
	lambda := sim
	if lambda <= 0 {
		lambda = 1e-9
	}
	if data < 0 {
		return math.Inf(-1)
	}
	return data*math.Log(lambda) - lambda - math.Log(float64(factorialApprox(data)))
}

// factorialApprox returns k! via the gamma function, since data buckets are
// aggregated counts that need not be small integers.
func factorialApprox(k float64) float64 {
	lg, _ := math.Lgamma(k + 1)
	return math.Exp(lg)
}

func normalLogPdf(x, mean, sd float64) float64 {
	if sd <= 0 {
		sd = 1e-9
	}
	z := (x - mean) / sd
	return -0.5*math.Log(2*math.Pi*sd*sd) - 0.5*z*z
}

func logLikNorm(sim, data float64, params map[string]float64) float64 {
	sd := paramOr(params, "sd", 1.0)
	return normalLogPdf(data, sim, sd)
}

// logLikNormCov scales the normal's standard deviation by the simulated
// value's magnitude (a coefficient-of-variation model), so uncertainty
// grows with the expected count rather than staying fixed.
func logLikNormCov(sim, data float64, params map[string]float64) float64 {
	cov := paramOr(params, "cov", 0.1)
	sd := cov * math.Abs(sim)
	if sd <= 0 {
		sd = 1e-6
	}
	return normalLogPdf(data, sim, sd)
}

// logLikSqrtNorm applies the square-root variance-stabilizing transform
// before scoring under a normal, a common treatment for Poisson-like count
// data whose variance grows with its mean.
func logLikSqrtNorm(sim, data float64, params map[string]float64) float64 {
	sd := paramOr(params, "sd", 1.0)
	return normalLogPdf(math.Sqrt(math.Max(data, 0)), math.Sqrt(math.Max(sim, 0)), sd)
}

func logLikLognorm(sim, data float64, params map[string]float64) float64 {
	sdlog := paramOr(params, "sdlog", 1.0)
	if data <= 0 {
		return math.Inf(-1)
	}
	mu := math.Log(math.Max(sim, 1e-9))
	logx := math.Log(data)
	return -logx - 0.5*math.Log(2*math.Pi*sdlog*sdlog) - (logx-mu)*(logx-mu)/(2*sdlog*sdlog)
}

func paramOr(params map[string]float64, key string, fallback float64) float64 {
	if v, ok := params[key]; ok {
		return v
	}
	return fallback
}
