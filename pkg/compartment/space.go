// Package compartment materializes a compartment space as the Cartesian
// product of named strata axes (§4.A) and resolves filter patterns against
// it. It is the leaf dependency of the transition compiler, the seeding
// package, and the outcome DAG's source nodes.
package compartment

import (
	"fmt"
	"sort"
	"strings"

	"github.com/HopkinsIDD/flepimop-go/pkg/perr"
	"github.com/HopkinsIDD/flepimop-go/pkg/scenariocfg"
)

// Axis is one stratum axis with its declared label order preserved: label
// order determines row-major index assignment (§4.A "ties are broken by
// declared axis order").
type Axis struct {
	Name   string
	Labels []string
}

// Compartment is one cell of the strata product: an ordered label tuple,
// one per axis, plus its stable integer Index.
type Compartment struct {
	Index  int
	Labels []string // Labels[i] corresponds to Space.Axes[i]
}

// Space is the compiled compartment space: N compartments over the ordered
// axis list, with a lookup from filter pattern to matching indices.
type Space struct {
	Axes         []Axis
	Compartments []Compartment

	axisIndex  map[string]int            // axis name -> position in Axes
	labelIndex []map[string]int          // per axis: label -> position in Axis.Labels
}

// Build materializes the compartment space from axes, in declared order.
// Fails with a ConfigError if any axis has no labels or duplicate labels.
func Build(axes []scenariocfg.AxisSpec) (*Space, error) {
	if len(axes) == 0 {
		return nil, perr.NewConfigError("compartment.Build", fmt.Errorf("no axes declared"))
	}

	sp := &Space{
		Axes:       make([]Axis, len(axes)),
		axisIndex:  make(map[string]int, len(axes)),
		labelIndex: make([]map[string]int, len(axes)),
	}

	for i, a := range axes {
		if len(a.Labels) == 0 {
			return nil, perr.NewConfigError("compartment.Build", fmt.Errorf("axis %q has no labels", a.Name))
		}
		if _, dup := sp.axisIndex[a.Name]; dup {
			return nil, perr.NewConfigError("compartment.Build", fmt.Errorf("duplicate axis %q", a.Name))
		}
		sp.axisIndex[a.Name] = i

		labels := make(map[string]int, len(a.Labels))
		for li, l := range a.Labels {
			if _, dup := labels[l]; dup {
				return nil, perr.NewConfigError("compartment.Build", fmt.Errorf("axis %q: duplicate label %q", a.Name, l))
			}
			labels[l] = li
		}
		sp.labelIndex[i] = labels
		sp.Axes[i] = Axis{Name: a.Name, Labels: append([]string(nil), a.Labels...)}
	}

	sp.Compartments = product(sp.Axes)
	return sp, nil
}

// product builds the row-major Cartesian product: the last axis varies
// fastest, matching the declared-axis-order tie-break rule.
func product(axes []Axis) []Compartment {
	n := 1
	for _, a := range axes {
		n *= len(a.Labels)
	}
	out := make([]Compartment, n)
	for idx := 0; idx < n; idx++ {
		labels := make([]string, len(axes))
		rem := idx
		for i := len(axes) - 1; i >= 0; i-- {
			width := len(axes[i].Labels)
			labels[i] = axes[i].Labels[rem%width]
			rem /= width
		}
		out[idx] = Compartment{Index: idx, Labels: labels}
	}
	return out
}

// N returns the number of compartments in the space.
func (s *Space) N() int { return len(s.Compartments) }

// Label returns the label string for compartment idx on the named axis.
func (s *Space) Label(idx int, axisName string) (string, bool) {
	ai, ok := s.axisIndex[axisName]
	if !ok {
		return "", false
	}
	return s.Compartments[idx].Labels[ai], true
}

// Name joins a compartment's per-axis labels with "_", the canonical
// display name used in artifact column headers.
func (s *Space) Name(idx int) string {
	return strings.Join(s.Compartments[idx].Labels, "_")
}

// Resolve returns the sorted set of compartment indices matching pattern: an
// axis omitted from pattern matches every label on that axis; an axis with
// a label list matches the union of those labels (§4.A resolution rule).
// Fails with ConfigError if pattern references an unknown axis or label.
func (s *Space) Resolve(pattern scenariocfg.CompartmentPattern) ([]int, error) {
	for name := range pattern {
		if _, ok := s.axisIndex[name]; !ok {
			return nil, perr.NewConfigError("compartment.Resolve", fmt.Errorf("unknown axis %q", name))
		}
	}

	allowed := make([]map[string]bool, len(s.Axes)) // allowed[axisPos] = set of accepted labels, nil means "all"
	for axisPos, axis := range s.Axes {
		labels, named := pattern[axis.Name]
		if !named {
			continue
		}
		set := make(map[string]bool, len(labels))
		for _, l := range labels {
			if _, ok := s.labelIndex[axisPos][l]; !ok {
				return nil, perr.NewConfigError("compartment.Resolve", fmt.Errorf("axis %q has no label %q", axis.Name, l))
			}
			set[l] = true
		}
		allowed[axisPos] = set
	}

	var matches []int
	for _, c := range s.Compartments {
		if compartmentMatches(c, allowed) {
			matches = append(matches, c.Index)
		}
	}
	sort.Ints(matches)
	return matches, nil
}

func compartmentMatches(c Compartment, allowed []map[string]bool) bool {
	for axisPos, set := range allowed {
		if set == nil {
			continue
		}
		if !set[c.Labels[axisPos]] {
			return false
		}
	}
	return true
}
