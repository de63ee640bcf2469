// Package parser loads and validates scenariocfg.Scenario documents from
// YAML, following the load-then-override-then-validate pipeline used
// throughout this codebase's configuration layer.
package parser

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/HopkinsIDD/flepimop-go/pkg/perr"
	"github.com/HopkinsIDD/flepimop-go/pkg/scenariocfg"
)

// Parser loads scenario documents, expanding ${VAR} references against an
// environment map before decoding.
type Parser struct {
	env map[string]string
}

// New returns a Parser that expands against the process environment.
func New() *Parser {
	return &Parser{env: envMap()}
}

// NewWithEnv returns a Parser that expands against env instead of the
// process environment, for reproducible parsing in tests.
func NewWithEnv(env map[string]string) *Parser {
	return &Parser{env: env}
}

func envMap() map[string]string {
	m := make(map[string]string)
	for _, kv := range os.Environ() {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			m[kv[:i]] = kv[i+1:]
		}
	}
	return m
}

// ParseFile reads path and parses it into a Scenario.
func (p *Parser) ParseFile(path string) (*scenariocfg.Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, perr.NewIOError(path, err)
	}
	return p.Parse(data)
}

// Parse decodes data (after ${VAR} substitution) into a Scenario and checks
// the required-field invariants that are cheap to catch before validator.
func (p *Parser) Parse(data []byte) (*scenariocfg.Scenario, error) {
	expanded := p.substitute(string(data))

	var s scenariocfg.Scenario
	if err := yaml.Unmarshal([]byte(expanded), &s); err != nil {
		return nil, perr.NewConfigError("parse", err)
	}

	if err := validateRequiredFields(&s); err != nil {
		return nil, perr.NewConfigError("parse", err)
	}

	return &s, nil
}

// substitute replaces ${VAR} and ${VAR:-default} references using p.env.
func (p *Parser) substitute(s string) string {
	var out strings.Builder
	i := 0
	for i < len(s) {
		if s[i] == '$' && i+1 < len(s) && s[i+1] == '{' {
			end := strings.IndexByte(s[i+2:], '}')
			if end < 0 {
				out.WriteByte(s[i])
				i++
				continue
			}
			ref := s[i+2 : i+2+end]
			name, def, hasDef := strings.Cut(ref, ":-")
			val, ok := p.env[name]
			switch {
			case ok:
				out.WriteString(val)
			case hasDef:
				out.WriteString(def)
			default:
				out.WriteString("${" + ref + "}")
			}
			i = i + 2 + end + 1
			continue
		}
		out.WriteByte(s[i])
		i++
	}
	return out.String()
}

func validateRequiredFields(s *scenariocfg.Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.NSlots < 1 {
		return fmt.Errorf("nslots must be at least 1")
	}
	if len(s.Compartments) == 0 {
		return fmt.Errorf("compartments must declare at least one axis")
	}
	for _, axis := range s.Compartments {
		if axis.Name == "" {
			return fmt.Errorf("compartments: axis with empty name")
		}
		if len(axis.Labels) == 0 {
			return fmt.Errorf("compartments: axis %q has no labels", axis.Name)
		}
	}
	if s.Seir.Integration.Method == "" {
		return fmt.Errorf("seir.integration.method is required")
	}
	if s.Seir.Integration.Dt <= 0 {
		return fmt.Errorf("seir.integration.dt must be positive")
	}
	return nil
}

// ApplyOverrides deep-merges a dotted-path override set onto s, the
// mechanism behind the `patch` CLI verb: "seir.parameters.beta.value=0.4"
// overwrites a single scalar leaf without requiring a full document.
// Overrides are applied in map iteration order, which is unspecified; each
// supported path sets a separate leaf.
func ApplyOverrides(s *scenariocfg.Scenario, overrides map[string]string) error {
	for path, raw := range overrides {
		if err := applyOverride(s, path, raw); err != nil {
			return perr.NewConfigError("patch "+path, err)
		}
	}
	return nil
}

// applyOverride supports the small set of dotted paths the `patch` verb
// needs: seir.parameters.<name>.value and seir.integration.{method,dt}.
// Anything else is rejected rather than silently ignored.
func applyOverride(s *scenariocfg.Scenario, path, raw string) error {
	parts := strings.Split(path, ".")
	switch {
	case len(parts) == 4 && parts[0] == "seir" && parts[1] == "parameters" && parts[3] == "value":
		name := parts[2]
		p, ok := s.Seir.Parameters[name]
		if !ok {
			return fmt.Errorf("unknown parameter %q", name)
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("value %q is not numeric: %w", raw, err)
		}
		p.Value = &v
		p.Distribution = nil
		p.Expression = ""
		s.Seir.Parameters[name] = p
		return nil
	case len(parts) == 3 && parts[0] == "seir" && parts[1] == "integration" && parts[2] == "method":
		s.Seir.Integration.Method = raw
		return nil
	case len(parts) == 3 && parts[0] == "seir" && parts[1] == "integration" && parts[2] == "dt":
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("dt %q is not numeric: %w", raw, err)
		}
		s.Seir.Integration.Dt = v
		return nil
	default:
		return fmt.Errorf("unsupported override path %q", path)
	}
}
