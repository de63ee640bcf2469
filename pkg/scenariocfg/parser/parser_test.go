package parser

import (
	"strings"
	"testing"

	"github.com/HopkinsIDD/flepimop-go/pkg/scenariocfg"
)

const minimalYAML = `
name: test_scenario
start_date: 2026-01-01
end_date: 2026-02-01
nslots: 1
compartments:
  - name: infection_stage
    labels: [S, I, R]
seir:
  integration:
    method: euler
    dt: 1
  parameters:
    beta:
      value: ${BETA:-0.3}
`

func TestParseExpandsEnvWithDefault(t *testing.T) {
	s, err := NewWithEnv(map[string]string{}).Parse([]byte(minimalYAML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if *s.Seir.Parameters["beta"].Value != 0.3 {
		t.Errorf("expected default 0.3, got %v", *s.Seir.Parameters["beta"].Value)
	}
}

func TestParseExpandsEnvFromMap(t *testing.T) {
	s, err := NewWithEnv(map[string]string{"BETA": "0.7"}).Parse([]byte(minimalYAML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if *s.Seir.Parameters["beta"].Value != 0.7 {
		t.Errorf("expected env override 0.7, got %v", *s.Seir.Parameters["beta"].Value)
	}
}

func TestParseRejectsMissingRequiredFields(t *testing.T) {
	_, err := NewWithEnv(nil).Parse([]byte("name: x\n"))
	if err == nil {
		t.Fatal("expected an error for a scenario missing nslots/compartments/seir fields")
	}
	if !strings.Contains(err.Error(), "nslots") {
		t.Errorf("expected the nslots requirement to be named in the error, got %v", err)
	}
}

func TestApplyOverridesParameterValue(t *testing.T) {
	s, err := NewWithEnv(nil).Parse([]byte(minimalYAML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	err = ApplyOverrides(s, map[string]string{"seir.parameters.beta.value": "0.9"})
	if err != nil {
		t.Fatalf("ApplyOverrides: %v", err)
	}
	if *s.Seir.Parameters["beta"].Value != 0.9 {
		t.Errorf("expected overridden value 0.9, got %v", *s.Seir.Parameters["beta"].Value)
	}
}

func TestApplyOverridesIntegrationMethodAndDt(t *testing.T) {
	s, err := NewWithEnv(nil).Parse([]byte(minimalYAML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	err = ApplyOverrides(s, map[string]string{
		"seir.integration.method": "rk4",
		"seir.integration.dt":     "0.5",
	})
	if err != nil {
		t.Fatalf("ApplyOverrides: %v", err)
	}
	if s.Seir.Integration.Method != "rk4" {
		t.Errorf("expected method rk4, got %v", s.Seir.Integration.Method)
	}
	if s.Seir.Integration.Dt != 0.5 {
		t.Errorf("expected dt 0.5, got %v", s.Seir.Integration.Dt)
	}
}

func TestApplyOverridesRejectsUnsupportedPath(t *testing.T) {
	s := &scenariocfg.Scenario{Seir: scenariocfg.SeirSpec{Parameters: map[string]scenariocfg.ParameterSpec{}}}
	err := ApplyOverrides(s, map[string]string{"nslots": "3"})
	if err == nil {
		t.Fatal("expected an error for an unsupported override path")
	}
}

func TestApplyOverridesRejectsUnknownParameter(t *testing.T) {
	s, err := NewWithEnv(nil).Parse([]byte(minimalYAML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	err = ApplyOverrides(s, map[string]string{"seir.parameters.gamma.value": "0.1"})
	if err == nil {
		t.Fatal("expected an error for overriding an undeclared parameter")
	}
}
