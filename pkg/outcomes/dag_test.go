package outcomes

import (
	"testing"

	"github.com/HopkinsIDD/flepimop-go/pkg/compartment"
	"github.com/HopkinsIDD/flepimop-go/pkg/paramengine"
	"github.com/HopkinsIDD/flepimop-go/pkg/scenariocfg"
)

func buildStageSpace(t *testing.T) *compartment.Space {
	t.Helper()
	sp, err := compartment.Build([]scenariocfg.AxisSpec{{Name: "infection_stage", Labels: []string{"S", "E", "I", "R"}}})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return sp
}

// TestIncidCaseBernoulliDelay mirrors the scenario-1 outcomes chain:
// incidCase = Bernoulli(0.5)*delay(5) of incident I arrivals, and its
// weekly aggregate should equal 0.5x the weekly sum of delayed new-I
// incidence (deterministic mode, no rng, so the match is exact rather than
// "within stochastic noise").
func TestIncidCaseBernoulliDelay(t *testing.T) {
	sp := buildStageSpace(t)
	days := 28
	incidence := make([]Series, days+1)
	for day := range incidence {
		tn := paramengine.NewTensor(sp.N(), 1)
		incidence[day] = tn
	}
	iIdx, _ := sp.Resolve(scenariocfg.CompartmentPattern{"infection_stage": {"I"}})
	for day := 1; day <= days; day++ {
		incidence[day].Set(iIdx[0], 0, float64(10+day))
	}

	out := &IntegratorOutput{Incidence: incidence, Days: days, Subpops: 1}

	spec := scenariocfg.OutcomesSpec{Outcomes: map[string]scenariocfg.OutcomeSpec{
		"newI": {
			Operator:          scenariocfg.OpSource,
			SourceCompartment: scenariocfg.CompartmentPattern{"infection_stage": {"I"}},
			SourceKind:        "incidence",
		},
		"incidCaseRaw": {
			Operator:    scenariocfg.OpProbability,
			Source:      "newI",
			Probability: &scenariocfg.DistributionSpec{Kind: scenariocfg.DistFixed, Params: map[string]float64{"value": 0.5}},
		},
		"incidCase": {
			Operator: scenariocfg.OpDelay,
			Source:   "incidCaseRaw",
			Delay:    &scenariocfg.DelaySpec{FixedDays: intPtr(5)},
		},
	}}

	dag, err := Compile(spec, sp)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	results, err := dag.Evaluate(out, nil, nil)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	newI := results["newI"]
	incidCase := results["incidCase"]

	weeklyNewI := weeklySum(newI, 7, 13)
	weeklyIncidCase := weeklySum(incidCase, 12, 18) // shifted by the 5-day delay

	want := 0.5 * weeklyNewI
	if diff := want - weeklyIncidCase; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("weekly incidCase = %v, want 0.5x delayed newI = %v", weeklyIncidCase, want)
	}
}

func weeklySum(s Series, startDay, endDay int) float64 {
	total := 0.0
	for day := startDay; day <= endDay; day++ {
		total += s.At(day, 0)
	}
	return total
}

func intPtr(v int) *int { return &v }

func TestOutcomesCompileRejectsCycle(t *testing.T) {
	sp := buildStageSpace(t)
	spec := scenariocfg.OutcomesSpec{Outcomes: map[string]scenariocfg.OutcomeSpec{
		"a": {Operator: scenariocfg.OpSum, Sum: []string{"b"}},
		"b": {Operator: scenariocfg.OpSum, Sum: []string{"a"}},
	}}
	if _, err := Compile(spec, sp); err == nil {
		t.Fatal("expected cycle error")
	}
}

func TestEvalDurationCurrentlyInState(t *testing.T) {
	sp := buildStageSpace(t)
	days := 10
	incidence := make([]Series, days+1)
	for day := range incidence {
		incidence[day] = paramengine.NewTensor(sp.N(), 1)
	}
	iIdx, _ := sp.Resolve(scenariocfg.CompartmentPattern{"infection_stage": {"I"}})
	incidence[1].Set(iIdx[0], 0, 100)

	out := &IntegratorOutput{Incidence: incidence, Days: days, Subpops: 1}
	spec := scenariocfg.OutcomesSpec{Outcomes: map[string]scenariocfg.OutcomeSpec{
		"newI": {Operator: scenariocfg.OpSource, SourceCompartment: scenariocfg.CompartmentPattern{"infection_stage": {"I"}}, SourceKind: "incidence"},
		"inI": {
			Operator: scenariocfg.OpDuration,
			Source:   "newI",
			Duration: &scenariocfg.DurationSpec{Delay: scenariocfg.DelaySpec{FixedDays: intPtr(3)}},
		},
	}}
	dag, err := Compile(spec, sp)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	results, err := dag.Evaluate(out, nil, nil)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	inI := results["inI"]
	for day := 1; day <= 3; day++ {
		if got := inI.At(day, 0); got != 100 {
			t.Errorf("day %d in-state = %v, want 100 (not yet cleared)", day, got)
		}
	}
	if got := inI.At(4, 0); got != 0 {
		t.Errorf("day 4 in-state = %v, want 0 (cleared after 3-day duration)", got)
	}
}
