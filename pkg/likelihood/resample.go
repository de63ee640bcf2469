// Package likelihood scores simulated outcome series against ground-truth
// data (§4.H): per-statistic resampling by (frequency, aggregator), then a
// chosen distribution's log-pmf/pdf summed over buckets and subpopulations.
package likelihood

import (
	"fmt"
	"math"
	"time"

	"github.com/HopkinsIDD/flepimop-go/pkg/scenariocfg"
)

// bucketKey maps a calendar date to the key of the time bucket it falls in
// under freq ("D" daily, "W" ISO week, "M" calendar month).
func bucketKey(t time.Time, freq string) string {
	switch freq {
	case "W":
		y, w := t.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", y, w)
	case "M":
		return fmt.Sprintf("%04d-%02d", t.Year(), int(t.Month()))
	default:
		return t.Format("2006-01-02")
	}
}

// AlignAndResample buckets sim and data together, day by day starting at
// startDate, so both series share identical bucket boundaries. When
// spec.SkipNA is set, a day whose data value is NaN is dropped from both
// series entirely (§4.H "skipna drops buckets where data is missing"); data
// may be nil or shorter than sim, in which case the missing tail is treated
// as NaN (dropped under skipna, summed as zero otherwise).
func AlignAndResample(sim, data []float64, startDate time.Time, spec scenariocfg.ResampleSpec) ([]float64, []float64) {
	n := len(sim)

	var order []string
	simSums := map[string]float64{}
	dataSums := map[string]float64{}
	counts := map[string]int{}

	for day := 0; day < n; day++ {
		dv := math.NaN()
		if day < len(data) {
			dv = data[day]
		}
		if spec.SkipNA && math.IsNaN(dv) {
			continue
		}
		k := bucketKey(startDate.AddDate(0, 0, day), spec.Frequency)
		if _, seen := counts[k]; !seen {
			order = append(order, k)
		}
		simSums[k] += sim[day]
		if !math.IsNaN(dv) {
			dataSums[k] += dv
		}
		counts[k]++
	}

	simOut := make([]float64, len(order))
	dataOut := make([]float64, len(order))
	for i, k := range order {
		c := float64(counts[k])
		if spec.Aggregator == "mean" {
			simOut[i] = simSums[k] / c
			dataOut[i] = dataSums[k] / c
		} else {
			simOut[i] = simSums[k]
			dataOut[i] = dataSums[k]
		}
	}
	return simOut, dataOut
}
