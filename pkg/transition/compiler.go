// Package transition expands the declarative transition list into a flat,
// kernel-ready table the integrator drives every step (§4.E).
package transition

import (
	"fmt"

	"github.com/HopkinsIDD/flepimop-go/pkg/compartment"
	"github.com/HopkinsIDD/flepimop-go/pkg/perr"
	"github.com/HopkinsIDD/flepimop-go/pkg/scenariocfg"
)

// ProportionalFactor is one compiled proportional-to factor: the set of
// compartment indices to sum prevalence over, and the parameter name (or
// "1" for a constant exponent of 1) supplying the exponent. SourceOnly
// marks the `"source"` shorthand (§4.E): a per-capita rate with no
// normalization beyond the source compartment itself.
type ProportionalFactor struct {
	SourceOnly bool
	Indices    []int
	Exponent   string
}

// Concrete is one fully-expanded transition: a single source index, a
// single destination index, the ordered parameter names whose product
// forms the per-capita rate, and the ordered proportional-to factors.
type Concrete struct {
	Source         int
	Dest           int
	RateParams     []string
	ProportionalTo []ProportionalFactor
}

// Table is the flat set of concrete transitions compiled from a scenario's
// declarative transition list.
type Table struct {
	Concretes []Concrete
}

// Compile expands every declarative TransitionSpec against space into the
// flat Concrete list. Source/Destination patterns that match more than one
// compartment are expanded pairwise in space.Resolve's sorted index order,
// one Concrete transition per (source, dest) pair in that order: equal-length
// lists are paired positionally, a single source or a single destination is
// broadcast across the other side, and any other count mismatch is a
// ConfigError.
func Compile(transitions []scenariocfg.TransitionSpec, space *compartment.Space) (*Table, error) {
	table := &Table{}

	for i, t := range transitions {
		sources, err := space.Resolve(t.Source)
		if err != nil {
			return nil, perr.NewConfigError(fmt.Sprintf("transition[%d].source", i), err)
		}
		dests, err := space.Resolve(t.Destination)
		if err != nil {
			return nil, perr.NewConfigError(fmt.Sprintf("transition[%d].destination", i), err)
		}
		if len(sources) == 0 || len(dests) == 0 {
			return nil, perr.NewConfigError(fmt.Sprintf("transition[%d]", i), fmt.Errorf("source or destination pattern matched no compartments"))
		}

		pairs, err := pairUp(sources, dests)
		if err != nil {
			return nil, perr.NewConfigError(fmt.Sprintf("transition[%d]", i), err)
		}

		factors := make([]ProportionalFactor, len(t.ProportionalTo))
		for j, term := range t.ProportionalTo {
			if term.SourceOnly {
				factors[j] = ProportionalFactor{SourceOnly: true, Exponent: term.Exponent}
				continue
			}
			idxs, err := space.Resolve(term.Pattern)
			if err != nil {
				return nil, perr.NewConfigError(fmt.Sprintf("transition[%d].proportional_to[%d]", i, j), err)
			}
			factors[j] = ProportionalFactor{Indices: idxs, Exponent: term.Exponent}
		}

		for _, pair := range pairs {
			concreteFactors := factors
			// A SourceOnly factor is "proportional to the source compartment
			// alone", which depends on the concrete source of this pair, so
			// it is re-keyed with a single-element index set per concrete.
			concreteFactors = make([]ProportionalFactor, len(factors))
			copy(concreteFactors, factors)
			for k, f := range concreteFactors {
				if f.SourceOnly {
					concreteFactors[k] = ProportionalFactor{SourceOnly: true, Indices: []int{pair.source}, Exponent: f.Exponent}
				}
			}
			table.Concretes = append(table.Concretes, Concrete{
				Source:         pair.source,
				Dest:           pair.dest,
				RateParams:     append([]string(nil), t.Rate...),
				ProportionalTo: concreteFactors,
			})
		}
	}

	return table, nil
}

type pair struct{ source, dest int }

// pairUp pairs sources and dests positionally when they have equal length
// (the common case: a pattern naming the same axis selector on both sides,
// e.g. age-preserving transitions), and otherwise treats a singleton side
// as broadcasting across the other.
func pairUp(sources, dests []int) ([]pair, error) {
	switch {
	case len(sources) == len(dests):
		out := make([]pair, len(sources))
		for i := range sources {
			out[i] = pair{sources[i], dests[i]}
		}
		return out, nil
	case len(sources) == 1:
		out := make([]pair, len(dests))
		for i, d := range dests {
			out[i] = pair{sources[0], d}
		}
		return out, nil
	case len(dests) == 1:
		out := make([]pair, len(sources))
		for i, s := range sources {
			out[i] = pair{s, dests[0]}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("source pattern matched %d compartments, destination matched %d: cannot pair without a singleton side", len(sources), len(dests))
	}
}
