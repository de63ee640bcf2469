// Package paramengine evaluates parameter declarations (§4.B): symbolic
// expressions are parsed to an AST and pre-evaluated to dense (time x
// subpop) tensors, distributions are sampled with a run-scoped seeded RNG,
// and file-backed parameters are loaded through an injectable loader.
package paramengine

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/HopkinsIDD/flepimop-go/pkg/perr"
	"github.com/HopkinsIDD/flepimop-go/pkg/scenariocfg"
)

// FileLoader loads a per-subpopulation time series from disk into a dense
// tensor. Engine.FileLoader must be set before Evaluate is called on a
// scenario using file-backed parameters.
type FileLoader func(path string, t, s int) (*Tensor, error)

// Engine evaluates a scenario's parameter declarations into tensors.
type Engine struct {
	T, S       int
	RNG        *rand.Rand
	FileLoader FileLoader
}

// New returns an Engine sized for t timesteps and s subpopulations, with its
// RNG seeded from a controller-level seed composed with the chain index
// (§5 "per-chain random number generators are seeded from a controller-level
// seed composed with the chain index"), so (seed, nslots, iterations)
// reproduces byte-identical results.
func New(t, s int, seed int64, chainIndex int) *Engine {
	combined := seed*1_000_003 + int64(chainIndex)
	return &Engine{T: t, S: s, RNG: rand.New(rand.NewSource(combined))}
}

// Evaluate resolves every declared parameter to a tensor. Expression
// parameters may reference other parameters (including other expressions);
// Evaluate topologically orders them and fails with EvaluationError on an
// undefined symbol or a dependency cycle.
func (e *Engine) Evaluate(params map[string]scenariocfg.ParameterSpec) (map[string]*Tensor, error) {
	env := make(map[string]*Tensor, len(params))
	exprNodes := make(map[string]exprNode)

	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names) // deterministic sampling order so (seed, nslots, iterations) reproduces byte-identical draws (§5, §8)

	for _, name := range names {
		p := params[name]
		switch {
		case p.Value != nil:
			env[name] = Scalar(e.T, e.S, *p.Value)
		case p.Distribution != nil:
			v, err := Sample(p.Distribution, e.RNG)
			if err != nil {
				return nil, err
			}
			env[name] = Scalar(e.T, e.S, v)
		case p.File != "":
			if e.FileLoader == nil {
				return nil, perr.NewDataError("paramengine.Evaluate", fmt.Errorf("parameter %q needs a file but no FileLoader is configured", name))
			}
			tn, err := e.FileLoader(p.File, e.T, e.S)
			if err != nil {
				return nil, perr.NewDataError("paramengine.Evaluate", err)
			}
			env[name] = tn
		case p.Expression != "":
			node, err := ParseExpr(p.Expression)
			if err != nil {
				return nil, err
			}
			exprNodes[name] = node
		default:
			return nil, perr.NewConfigError("paramengine.Evaluate", fmt.Errorf("parameter %q declares no value source", name))
		}
	}

	order, err := topoSort(exprNodes)
	if err != nil {
		return nil, err
	}
	for _, name := range order {
		tn, err := EvalExpr(exprNodes[name], env, e.T, e.S)
		if err != nil {
			return nil, err
		}
		env[name] = tn
	}

	return env, nil
}

// topoSort orders exprNodes so that each expression is evaluated only after
// every other expression it references. Non-expression names are allowed as
// leaf references and are not part of the returned order.
func topoSort(exprNodes map[string]exprNode) ([]string, error) {
	const (
		white = iota
		gray
		black
	)
	color := make(map[string]int, len(exprNodes))
	var order []string

	var visit func(name string) error
	visit = func(name string) error {
		switch color[name] {
		case black:
			return nil
		case gray:
			return perr.NewEvaluationError(name, fmt.Errorf("cyclic parameter dependency"))
		}
		color[name] = gray
		node, isExpr := exprNodes[name]
		if isExpr {
			for _, dep := range Identifiers(node) {
				if _, depIsExpr := exprNodes[dep]; depIsExpr {
					if err := visit(dep); err != nil {
						return err
					}
				}
			}
		}
		color[name] = black
		if isExpr {
			order = append(order, name)
		}
		return nil
	}

	names := make([]string, 0, len(exprNodes))
	for name := range exprNodes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := visit(name); err != nil {
			return nil, err
		}
	}
	return order, nil
}
