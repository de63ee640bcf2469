package likelihood

import (
	"math"
	"time"

	"github.com/HopkinsIDD/flepimop-go/pkg/paramengine"
	"github.com/HopkinsIDD/flepimop-go/pkg/scenariocfg"
)

// GroundTruth is a daily (day x subpop) observed-data table, NaN marking a
// missing observation.
type GroundTruth struct {
	Values []float64 // day*S + subpop, row-major like paramengine.Tensor
	Days   int
	Subpops int
}

func (g *GroundTruth) column(s int) []float64 {
	if g == nil {
		return nil
	}
	col := make([]float64, g.Days)
	for d := 0; d < g.Days; d++ {
		if s < g.Subpops {
			col[d] = g.Values[d*g.Subpops+s]
		} else {
			col[d] = math.NaN()
		}
	}
	return col
}

// Result is one statistic's scored output: per-subpopulation log-likelihood
// (consumed by the chimeric accept step) and the pooled total (consumed by
// the global accept step), §4.H/§4.I.
type Result struct {
	PerSubpop []float64
	Total     float64
}

// columnOf extracts subpop s's daily series from a (T x S) tensor.
func columnOf(t *paramengine.Tensor, s int) []float64 {
	col := make([]float64, t.T)
	for d := 0; d < t.T; d++ {
		col[d] = t.At(d, s)
	}
	return col
}

// Evaluate scores sim (the outcome series named by stat.SimVar, a T x S
// tensor) against gt (the data series named by stat.DataVar) per §4.H.
func Evaluate(stat scenariocfg.StatisticSpec, sim *paramengine.Tensor, gt *GroundTruth, startDate time.Time) (*Result, error) {
	S := sim.S
	perSubpop := make([]float64, S)
	simBuckets := make([][]float64, S)
	dataBuckets := make([][]float64, S)

	for s := 0; s < S; s++ {
		simDaily := columnOf(sim, s)
		dataDaily := gt.column(s)
		simB, dataB := AlignAndResample(simDaily, dataDaily, startDate, stat.Resample)

		lls := make([]float64, len(simB))
		total := 0.0
		for i := range simB {
			sv := simB[i]
			if stat.ZeroToOne && sv == 0 {
				sv = 1
			}
			ll, err := LogLikelihood(stat.Likelihood.Distribution, sv, dataB[i], stat.Likelihood.Params)
			if err != nil {
				return nil, err
			}
			lls[i] = ll
			total += ll
		}
		for _, reg := range stat.Regularizers {
			if reg.Kind == "forecast" {
				total += forecastBonus(lls, reg.Params)
			}
		}

		simBuckets[s] = simB
		dataBuckets[s] = dataB
		perSubpop[s] = total
	}

	total := 0.0
	for _, v := range perSubpop {
		total += v
	}
	for _, reg := range stat.Regularizers {
		if reg.Kind == "allsubpop" {
			total += allsubpopPenalty(simBuckets, dataBuckets, reg.Params)
		}
	}

	return &Result{PerSubpop: perSubpop, Total: total}, nil
}
