package likelihood

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/HopkinsIDD/flepimop-go/pkg/paramengine"
	"github.com/HopkinsIDD/flepimop-go/pkg/scenariocfg"
)

func TestAlignAndResampleWeeklySum(t *testing.T) {
	sim := make([]float64, 14)
	data := make([]float64, 14)
	for i := range sim {
		sim[i] = 1
		data[i] = 2
	}
	start := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC) // a Monday
	simB, dataB := AlignAndResample(sim, data, start, scenariocfg.ResampleSpec{Frequency: "W", Aggregator: "sum"})
	if len(simB) != 2 {
		t.Fatalf("expected 2 weekly buckets, got %d", len(simB))
	}
	if simB[0] != 7 || dataB[0] != 14 {
		t.Errorf("week 0 sim=%v data=%v, want 7/14", simB[0], dataB[0])
	}
}

func TestAlignAndResampleSkipNA(t *testing.T) {
	sim := []float64{1, 1, 1, 1}
	data := []float64{2, math.NaN(), 2, 2}
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	simB, dataB := AlignAndResample(sim, data, start, scenariocfg.ResampleSpec{Frequency: "D", Aggregator: "sum", SkipNA: true})
	if len(simB) != 3 {
		t.Fatalf("expected 3 buckets after skipping NaN day, got %d", len(simB))
	}
	for i := range simB {
		if simB[i] != 1 || dataB[i] != 2 {
			t.Errorf("bucket %d = %v/%v, want 1/2", i, simB[i], dataB[i])
		}
	}
}

func TestLogLikelihoodPoisExactMatch(t *testing.T) {
	ll, err := LogLikelihood(scenariocfg.LikPois, 10, 10, nil)
	if err != nil {
		t.Fatalf("LogLikelihood: %v", err)
	}
	// log-pmf at the mode should exceed log-pmf away from it.
	llAway, err := LogLikelihood(scenariocfg.LikPois, 10, 2, nil)
	if err != nil {
		t.Fatalf("LogLikelihood: %v", err)
	}
	if ll <= llAway {
		t.Errorf("log-lik at match (%v) should exceed log-lik away from match (%v)", ll, llAway)
	}
}

func TestLogLikelihoodNormPeaksAtMean(t *testing.T) {
	atMean, _ := LogLikelihood(scenariocfg.LikNorm, 5, 5, map[string]float64{"sd": 1})
	offMean, _ := LogLikelihood(scenariocfg.LikNorm, 5, 8, map[string]float64{"sd": 1})
	if atMean <= offMean {
		t.Errorf("normal log-lik at mean (%v) should exceed off-mean (%v)", atMean, offMean)
	}
}

func TestLogLikelihoodUnknownDistribution(t *testing.T) {
	if _, err := LogLikelihood("bogus", 1, 1, nil); err == nil {
		t.Fatal("expected error for unknown distribution")
	}
}

func TestEvaluateComputesPerSubpopAndTotal(t *testing.T) {
	days := 14
	sim := paramengine.NewTensor(days, 2)
	for d := 0; d < days; d++ {
		sim.Set(d, 0, 5)
		sim.Set(d, 1, 5)
	}
	gt := &GroundTruth{Values: make([]float64, days*2), Days: days, Subpops: 2}
	for d := 0; d < days; d++ {
		gt.Values[d*2+0] = 5
		gt.Values[d*2+1] = 50 // far from sim, should score much worse
	}

	stat := scenariocfg.StatisticSpec{
		SimVar:   "incidCase",
		DataVar:  "confirmed",
		Resample: scenariocfg.ResampleSpec{Frequency: "D", Aggregator: "sum"},
		Likelihood: scenariocfg.LikelihoodSpec{
			Distribution: scenariocfg.LikNorm,
			Params:       map[string]float64{"sd": 2},
		},
	}

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	result, err := Evaluate(stat, sim, gt, start)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(result.PerSubpop) != 2 {
		t.Fatalf("expected 2 per-subpop values, got %d", len(result.PerSubpop))
	}
	if result.PerSubpop[0] <= result.PerSubpop[1] {
		t.Errorf("subpop matching data (%v) should score higher than subpop far from data (%v)", result.PerSubpop[0], result.PerSubpop[1])
	}
}

func TestForecastBonusRescalesOnlyTail(t *testing.T) {
	lls := []float64{-1, -1, -1, -1}
	delta := forecastBonus(lls, map[string]float64{"last_n": 2, "weight": 2})
	want := -1.0*(2-1) + -1.0*(2-1)
	if delta != want {
		t.Errorf("forecastBonus = %v, want %v", delta, want)
	}
}

func TestAllsubpopPenaltyPeaksWhenPooledMatches(t *testing.T) {
	sim := [][]float64{{1, 2}, {3, 4}}
	data := [][]float64{{1, 2}, {3, 4}}
	penalty := allsubpopPenalty(sim, data, map[string]float64{"sd": 1})
	// pooled sim == pooled data at every bucket (bucket0: 1+3=4, bucket1:
	// 2+4=6), so the penalty is exactly the normal log-pdf's peak value
	// summed over buckets, not zero.
	direct := normalLogPdf(4, 4, 1) + normalLogPdf(6, 6, 1)
	if math.Abs(penalty-direct) > 1e-9 {
		t.Errorf("allsubpopPenalty = %v, want %v", penalty, direct)
	}
}

func TestLoadGroundTruthParsesAndMissing(t *testing.T) {
	csvData := "date,subpopA,subpopB\n2026-01-01,10,\n2026-01-02,20,5\n"
	gt, err := LoadGroundTruth(strings.NewReader(csvData), []string{"subpopA", "subpopB"})
	if err != nil {
		t.Fatalf("LoadGroundTruth: %v", err)
	}
	if gt.Days != 2 || gt.Subpops != 2 {
		t.Fatalf("unexpected shape: days=%d subpops=%d", gt.Days, gt.Subpops)
	}
	if gt.Values[0*2+0] != 10 {
		t.Errorf("day0 subpopA = %v, want 10", gt.Values[0])
	}
	if !math.IsNaN(gt.Values[0*2+1]) {
		t.Errorf("day0 subpopB should be NaN (missing), got %v", gt.Values[1])
	}
}
