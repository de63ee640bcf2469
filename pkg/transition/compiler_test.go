package transition

import (
	"testing"

	"github.com/HopkinsIDD/flepimop-go/pkg/compartment"
	"github.com/HopkinsIDD/flepimop-go/pkg/scenariocfg"
)

func seirSpace(t *testing.T) *compartment.Space {
	t.Helper()
	sp, err := compartment.Build([]scenariocfg.AxisSpec{
		{Name: "infection_stage", Labels: []string{"S", "E", "I", "R"}},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return sp
}

func TestCompileSimpleSEIRTransitions(t *testing.T) {
	sp := seirSpace(t)
	transitions := []scenariocfg.TransitionSpec{
		{
			Source:      scenariocfg.CompartmentPattern{"infection_stage": {"S"}},
			Destination: scenariocfg.CompartmentPattern{"infection_stage": {"E"}},
			Rate:        []string{"Ro", "gamma"},
			ProportionalTo: []scenariocfg.ProportionalTerm{
				{SourceOnly: true, Exponent: "1"},
				{Pattern: scenariocfg.CompartmentPattern{"infection_stage": {"I"}}, Exponent: "1"},
			},
		},
		{
			Source:         scenariocfg.CompartmentPattern{"infection_stage": {"E"}},
			Destination:    scenariocfg.CompartmentPattern{"infection_stage": {"I"}},
			Rate:           []string{"sigma"},
			ProportionalTo: []scenariocfg.ProportionalTerm{{SourceOnly: true, Exponent: "1"}},
		},
	}

	table, err := Compile(transitions, sp)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if len(table.Concretes) != 2 {
		t.Fatalf("Compile produced %d concretes, want 2", len(table.Concretes))
	}

	sIdx, _ := sp.Resolve(scenariocfg.CompartmentPattern{"infection_stage": {"S"}})
	eIdx, _ := sp.Resolve(scenariocfg.CompartmentPattern{"infection_stage": {"E"}})
	c0 := table.Concretes[0]
	if c0.Source != sIdx[0] || c0.Dest != eIdx[0] {
		t.Fatalf("unexpected source/dest: %+v", c0)
	}
	if !c0.ProportionalTo[0].SourceOnly {
		t.Error("expected first factor to be SourceOnly")
	}
	if c0.ProportionalTo[0].Indices[0] != sIdx[0] {
		t.Errorf("SourceOnly factor index = %d, want %d", c0.ProportionalTo[0].Indices[0], sIdx[0])
	}
}

func TestCompilePairsMatchingStrataPositionally(t *testing.T) {
	sp, err := compartment.Build([]scenariocfg.AxisSpec{
		{Name: "infection_stage", Labels: []string{"S", "E"}},
		{Name: "age", Labels: []string{"young", "old"}},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	transitions := []scenariocfg.TransitionSpec{
		{
			Source:      scenariocfg.CompartmentPattern{"infection_stage": {"S"}},
			Destination: scenariocfg.CompartmentPattern{"infection_stage": {"E"}},
			Rate:        []string{"beta"},
		},
	}
	table, err := Compile(transitions, sp)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if len(table.Concretes) != 2 {
		t.Fatalf("Compile produced %d concretes, want 2 (one per age)", len(table.Concretes))
	}
}

func TestCompileFailsOnEmptyMatch(t *testing.T) {
	sp := seirSpace(t)
	transitions := []scenariocfg.TransitionSpec{
		{
			Source:      scenariocfg.CompartmentPattern{"infection_stage": {"S"}},
			Destination: scenariocfg.CompartmentPattern{"infection_stage": {"ZZZ"}},
		},
	}
	if _, err := Compile(transitions, sp); err == nil {
		t.Fatal("expected error for unresolvable destination pattern")
	}
}

func TestCompilePairsEqualLengthSidesPositionally(t *testing.T) {
	sp, err := compartment.Build([]scenariocfg.AxisSpec{
		{Name: "infection_stage", Labels: []string{"S", "E", "I"}},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	transitions := []scenariocfg.TransitionSpec{
		{
			Source:      scenariocfg.CompartmentPattern{"infection_stage": {"S", "E"}},
			Destination: scenariocfg.CompartmentPattern{"infection_stage": {"E", "I"}},
		},
	}
	// sources=[S,E] (2), dests=[E,I] (2): equal length, should pair positionally without error.
	table, err := Compile(transitions, sp)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if len(table.Concretes) != 2 {
		t.Fatalf("Compile produced %d concretes, want 2", len(table.Concretes))
	}
}
