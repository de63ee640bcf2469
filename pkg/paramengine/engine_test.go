package paramengine

import (
	"math"
	"testing"

	"github.com/HopkinsIDD/flepimop-go/pkg/scenariocfg"
)

func fval(v float64) *float64 { return &v }

func TestEvaluateFixedValue(t *testing.T) {
	e := New(3, 2, 1, 0)
	params := map[string]scenariocfg.ParameterSpec{
		"gamma": {Value: fval(0.2)},
	}
	env, err := e.Evaluate(params)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if got := env["gamma"].At(1, 1); got != 0.2 {
		t.Errorf("gamma.At(1,1) = %v, want 0.2", got)
	}
}

func TestEvaluateExpressionReferencesOtherParameter(t *testing.T) {
	e := New(2, 1, 1, 0)
	params := map[string]scenariocfg.ParameterSpec{
		"Ro":    {Value: fval(2.5)},
		"gamma": {Value: fval(0.2)},
		"beta":  {Expression: "Ro * gamma"},
	}
	env, err := e.Evaluate(params)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if got := env["beta"].At(0, 0); math.Abs(got-0.5) > 1e-12 {
		t.Errorf("beta.At(0,0) = %v, want 0.5", got)
	}
}

func TestEvaluateChainedExpressions(t *testing.T) {
	e := New(1, 1, 1, 0)
	params := map[string]scenariocfg.ParameterSpec{
		"a": {Value: fval(2)},
		"b": {Expression: "a * 3"},
		"c": {Expression: "b + a"},
	}
	env, err := e.Evaluate(params)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if got := env["c"].At(0, 0); got != 8 {
		t.Errorf("c.At(0,0) = %v, want 8", got)
	}
}

func TestEvaluateDetectsCycle(t *testing.T) {
	e := New(1, 1, 1, 0)
	params := map[string]scenariocfg.ParameterSpec{
		"a": {Expression: "b + 1"},
		"b": {Expression: "a + 1"},
	}
	if _, err := e.Evaluate(params); err == nil {
		t.Fatal("expected cyclic dependency error")
	}
}

func TestEvaluateUndefinedSymbol(t *testing.T) {
	e := New(1, 1, 1, 0)
	params := map[string]scenariocfg.ParameterSpec{
		"a": {Expression: "missing * 2"},
	}
	if _, err := e.Evaluate(params); err == nil {
		t.Fatal("expected undefined symbol error")
	}
}

func TestSampleFixedDistribution(t *testing.T) {
	e := New(1, 1, 42, 0)
	v, err := Sample(&scenariocfg.DistributionSpec{
		Kind:   scenariocfg.DistFixed,
		Params: map[string]float64{"value": 3.5},
	}, e.RNG)
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	if v != 3.5 {
		t.Errorf("Sample(fixed) = %v, want 3.5", v)
	}
}

func TestSampleUniformWithinBounds(t *testing.T) {
	e := New(1, 1, 7, 0)
	for i := 0; i < 100; i++ {
		v, err := Sample(&scenariocfg.DistributionSpec{
			Kind:   scenariocfg.DistUniform,
			Params: map[string]float64{"low": 1, "high": 2},
		}, e.RNG)
		if err != nil {
			t.Fatalf("Sample: %v", err)
		}
		if v < 1 || v > 2 {
			t.Fatalf("Sample(uniform) = %v, out of [1,2]", v)
		}
	}
}

func TestSeedComposedWithChainIndexDiffers(t *testing.T) {
	e0 := New(1, 1, 1, 0)
	e1 := New(1, 1, 1, 1)
	if e0.RNG.Int63() == e1.RNG.Int63() {
		t.Skip("extremely unlikely collision; RNG streams should differ by chain index")
	}
}

func TestParseExprRejectsGarbage(t *testing.T) {
	if _, err := ParseExpr("a + * b"); err == nil {
		t.Fatal("expected parse error")
	}
}
