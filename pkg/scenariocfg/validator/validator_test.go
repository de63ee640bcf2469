package validator

import (
	"testing"

	"github.com/HopkinsIDD/flepimop-go/pkg/scenariocfg"
)

func baseScenario() *scenariocfg.Scenario {
	v := 0.3
	return &scenariocfg.Scenario{
		Name:   "test",
		NSlots: 1,
		Compartments: []scenariocfg.AxisSpec{
			{Name: "infection_stage", Labels: []string{"S", "I", "R"}},
		},
		Seir: scenariocfg.SeirSpec{
			Integration: scenariocfg.IntegrationSpec{Method: "euler", Dt: 1},
			Parameters: map[string]scenariocfg.ParameterSpec{
				"beta": {Value: &v},
			},
			Transitions: []scenariocfg.TransitionSpec{
				{
					Source:      scenariocfg.CompartmentPattern{"infection_stage": {"S"}},
					Destination: scenariocfg.CompartmentPattern{"infection_stage": {"I"}},
					Rate:        []string{"beta"},
					ProportionalTo: []scenariocfg.ProportionalTerm{
						{Pattern: scenariocfg.CompartmentPattern{"infection_stage": {"I"}}},
					},
				},
			},
		},
		Outcomes: scenariocfg.OutcomesSpec{
			Outcomes: map[string]scenariocfg.OutcomeSpec{
				"incidI": {
					Operator:          scenariocfg.OpSource,
					SourceKind:        "incidence",
					SourceCompartment: scenariocfg.CompartmentPattern{"infection_stage": {"I"}},
				},
			},
		},
	}
}

func TestValidateAcceptsWellFormedScenario(t *testing.T) {
	s := baseScenario()
	if err := New().Validate(s); err != nil {
		t.Fatalf("expected a well-formed scenario to validate cleanly, got %v", err)
	}
}

func TestCheckAxesRejectsDuplicateAxis(t *testing.T) {
	s := baseScenario()
	s.Compartments = append(s.Compartments, scenariocfg.AxisSpec{Name: "infection_stage", Labels: []string{"A"}})
	v := New()
	if err := v.Validate(s); err == nil {
		t.Fatal("expected an error for a duplicate axis name")
	}
}

func TestCheckAxesRejectsDuplicateLabel(t *testing.T) {
	s := baseScenario()
	s.Compartments[0].Labels = []string{"S", "S", "R"}
	if err := New().Validate(s); err == nil {
		t.Fatal("expected an error for a duplicate label within an axis")
	}
}

func TestCheckParametersRejectsAmbiguousSpec(t *testing.T) {
	s := baseScenario()
	v := 0.1
	s.Seir.Parameters["gamma"] = scenariocfg.ParameterSpec{Value: &v, Expression: "beta*2"}
	if err := New().Validate(s); err == nil {
		t.Fatal("expected an error for a parameter setting both value and expression")
	}
}

func TestCheckParametersRejectsEmptySpec(t *testing.T) {
	s := baseScenario()
	s.Seir.Parameters["gamma"] = scenariocfg.ParameterSpec{}
	if err := New().Validate(s); err == nil {
		t.Fatal("expected an error for a parameter setting none of value/distribution/file/expression")
	}
}

func TestCheckTransitionsRejectsUndeclaredAxis(t *testing.T) {
	s := baseScenario()
	s.Seir.Transitions[0].Source = scenariocfg.CompartmentPattern{"nope": {"S"}}
	if err := New().Validate(s); err == nil {
		t.Fatal("expected an error for a transition referencing an undeclared axis")
	}
}

func TestCheckTransitionsRejectsUnknownRateParameter(t *testing.T) {
	s := baseScenario()
	s.Seir.Transitions[0].Rate = []string{"unknown_param"}
	if err := New().Validate(s); err == nil {
		t.Fatal("expected an error for a transition rate referencing an undeclared parameter")
	}
}

func TestCheckModifierStackDetectsCycle(t *testing.T) {
	s := baseScenario()
	s.SeirModifiers = scenariocfg.ModifierStackSpec{
		Modifiers: map[string]scenariocfg.ModifierSpec{
			"a": {Parameter: "beta", Method: scenariocfg.MethodStacked, Children: []string{"b"}},
			"b": {Parameter: "beta", Method: scenariocfg.MethodStacked, Children: []string{"a"}},
		},
	}
	if err := New().Validate(s); err == nil {
		t.Fatal("expected an error for a cyclic Stacked modifier reference")
	}
}

func TestCheckModifierStackRejectsBothSubpopFields(t *testing.T) {
	s := baseScenario()
	s.SeirModifiers = scenariocfg.ModifierStackSpec{
		Modifiers: map[string]scenariocfg.ModifierSpec{
			"a": {
				Parameter:    "beta",
				Method:       scenariocfg.MethodSinglePeriod,
				Periods:      []scenariocfg.Period{{}},
				Subpops:      []string{"region1"},
				SubpopGroups: [][]string{{"group1"}},
			},
		},
	}
	if err := New().Validate(s); err == nil {
		t.Fatal("expected an error for a modifier setting both subpops and subpop_groups")
	}
}

func TestCheckOutcomesDetectsCycle(t *testing.T) {
	s := baseScenario()
	s.Outcomes.Outcomes["a"] = scenariocfg.OutcomeSpec{Operator: scenariocfg.OpSum, Sum: []string{"b", "incidI"}}
	s.Outcomes.Outcomes["b"] = scenariocfg.OutcomeSpec{Operator: scenariocfg.OpSum, Sum: []string{"a", "incidI"}}
	if err := New().Validate(s); err == nil {
		t.Fatal("expected an error for a cyclic outcome reference")
	}
}

func TestCheckOutcomesRejectsUnknownSumOperand(t *testing.T) {
	s := baseScenario()
	s.Outcomes.Outcomes["cases"] = scenariocfg.OutcomeSpec{Operator: scenariocfg.OpSum, Sum: []string{"incidI", "missing"}}
	if err := New().Validate(s); err == nil {
		t.Fatal("expected an error for a sum operand referencing an unknown outcome")
	}
}

func TestCheckStatisticsSkippedWhenInferenceDisabled(t *testing.T) {
	s := baseScenario()
	s.Inference.DoInference = false
	s.Inference.Statistics = map[string]scenariocfg.StatisticSpec{
		"cases": {SimVar: "missing_outcome", DataVar: ""},
	}
	if err := New().Validate(s); err != nil {
		t.Fatalf("expected statistics checks to be skipped when do_inference is false, got %v", err)
	}
}

func TestCheckStatisticsRejectsUnknownSimVar(t *testing.T) {
	s := baseScenario()
	s.Inference.DoInference = true
	s.Inference.Statistics = map[string]scenariocfg.StatisticSpec{
		"cases": {
			SimVar:     "missing_outcome",
			DataVar:    "cases",
			Resample:   scenariocfg.ResampleSpec{Aggregator: "sum"},
			Likelihood: scenariocfg.LikelihoodSpec{Distribution: scenariocfg.LikPois},
		},
	}
	if err := New().Validate(s); err == nil {
		t.Fatal("expected an error for a statistic's sim_var referencing an unknown outcome")
	}
}

func TestCheckStatisticsRejectsUnknownLikelihoodDistribution(t *testing.T) {
	s := baseScenario()
	s.Inference.DoInference = true
	s.Inference.Statistics = map[string]scenariocfg.StatisticSpec{
		"cases": {
			SimVar:     "incidI",
			DataVar:    "cases",
			Resample:   scenariocfg.ResampleSpec{Aggregator: "sum"},
			Likelihood: scenariocfg.LikelihoodSpec{Distribution: "bogus"},
		},
	}
	if err := New().Validate(s); err == nil {
		t.Fatal("expected an error for an unrecognized likelihood distribution")
	}
}
