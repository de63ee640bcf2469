package modifierstack

import (
	"math/rand"
	"testing"
	"time"

	"github.com/HopkinsIDD/flepimop-go/pkg/scenariocfg"
)

func day(n int) time.Time {
	return time.Unix(int64(n)*86400, 0).UTC()
}

func TestRealizeSinglePeriodAppliesOnlyDuringWindow(t *testing.T) {
	spec := scenariocfg.ModifierStackSpec{
		Modifiers: map[string]scenariocfg.ModifierSpec{
			"lockdown": {
				Parameter: "Ro",
				Method:    scenariocfg.MethodSinglePeriod,
				Periods:   []scenariocfg.Period{{Start: day(45), End: day(90)}},
				Value:     scenariocfg.DistributionSpec{Kind: scenariocfg.DistFixed, Params: map[string]float64{"value": 0.4}},
			},
		},
	}
	stack, err := Build(spec, []string{"A", "B"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	days := make([]Day, 120)
	for i := range days {
		days[i] = i
	}
	rng := rand.New(rand.NewSource(1))
	tn, err := stack.Realize("lockdown", days, rng)
	if err != nil {
		t.Fatalf("Realize: %v", err)
	}
	if got := tn.At(10, 0); got != neutral {
		t.Errorf("day 10 (before window) = %v, want neutral", got)
	}
	if got := tn.At(60, 0); got != 0.4 {
		t.Errorf("day 60 (in window) = %v, want 0.4", got)
	}
	if got := tn.At(100, 0); got != neutral {
		t.Errorf("day 100 (after window) = %v, want neutral", got)
	}
}

func TestStackedProductComposesChildren(t *testing.T) {
	spec := scenariocfg.ModifierStackSpec{
		Modifiers: map[string]scenariocfg.ModifierSpec{
			"m1": {
				Method:  scenariocfg.MethodMultiPeriod,
				Periods: []scenariocfg.Period{{Start: day(0), End: day(10)}},
				Value:   scenariocfg.DistributionSpec{Kind: scenariocfg.DistFixed, Params: map[string]float64{"value": 2.0}},
			},
			"m2": {
				Method:  scenariocfg.MethodMultiPeriod,
				Periods: []scenariocfg.Period{{Start: day(0), End: day(10)}},
				Value:   scenariocfg.DistributionSpec{Kind: scenariocfg.DistFixed, Params: map[string]float64{"value": 3.0}},
			},
			"stacked": {
				Method:       scenariocfg.MethodStacked,
				StackingRule: scenariocfg.StackProduct,
				Children:     []string{"m1", "m2"},
			},
		},
	}
	stack, err := Build(spec, []string{"A"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	days := []Day{5}
	rng := rand.New(rand.NewSource(1))
	tn, err := stack.Realize("stacked", days, rng)
	if err != nil {
		t.Fatalf("Realize: %v", err)
	}
	if got := tn.At(0, 0); got != 6.0 {
		t.Errorf("stacked product = %v, want 6.0", got)
	}
}

func TestStackedSumComposesChildren(t *testing.T) {
	spec := scenariocfg.ModifierStackSpec{
		Modifiers: map[string]scenariocfg.ModifierSpec{
			"m1": {
				Method:  scenariocfg.MethodMultiPeriod,
				Periods: []scenariocfg.Period{{Start: day(0), End: day(10)}},
				Value:   scenariocfg.DistributionSpec{Kind: scenariocfg.DistFixed, Params: map[string]float64{"value": 2.0}},
			},
			"m2": {
				Method:  scenariocfg.MethodMultiPeriod,
				Periods: []scenariocfg.Period{{Start: day(0), End: day(10)}},
				Value:   scenariocfg.DistributionSpec{Kind: scenariocfg.DistFixed, Params: map[string]float64{"value": 3.0}},
			},
			"stacked": {
				Method:       scenariocfg.MethodStacked,
				StackingRule: scenariocfg.StackSum,
				Children:     []string{"m1", "m2"},
			},
		},
	}
	stack, err := Build(spec, []string{"A"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	days := []Day{5}
	rng := rand.New(rand.NewSource(1))
	tn, err := stack.Realize("stacked", days, rng)
	if err != nil {
		t.Fatalf("Realize: %v", err)
	}
	if got := tn.At(0, 0); got != 5.0 {
		t.Errorf("stacked sum = %v, want 5.0", got)
	}
}

func TestBuildRejectsCycle(t *testing.T) {
	spec := scenariocfg.ModifierStackSpec{
		Modifiers: map[string]scenariocfg.ModifierSpec{
			"a": {Method: scenariocfg.MethodStacked, Children: []string{"b"}},
			"b": {Method: scenariocfg.MethodStacked, Children: []string{"a"}},
		},
	}
	if _, err := Build(spec, []string{"A"}); err == nil {
		t.Fatal("expected cycle error")
	}
}

func TestSubpopGroupTiesSameRealization(t *testing.T) {
	spec := scenariocfg.ModifierStackSpec{
		Modifiers: map[string]scenariocfg.ModifierSpec{
			"m": {
				Method:       scenariocfg.MethodMultiPeriod,
				Periods:      []scenariocfg.Period{{Start: day(0), End: day(10)}},
				SubpopGroups: [][]string{{"A", "B"}},
				Value:        scenariocfg.DistributionSpec{Kind: scenariocfg.DistUniform, Params: map[string]float64{"low": 0, "high": 1}},
			},
		},
	}
	stack, err := Build(spec, []string{"A", "B"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	days := []Day{5}
	rng := rand.New(rand.NewSource(1))
	tn, err := stack.Realize("m", days, rng)
	if err != nil {
		t.Fatalf("Realize: %v", err)
	}
	if tn.At(0, 0) != tn.At(0, 1) {
		t.Errorf("grouped subpops drew different values: %v vs %v", tn.At(0, 0), tn.At(0, 1))
	}
}
