// Package seeding produces the initial state tensor and the exogenous
// seeding schedule the integrator consumes (§4.D).
package seeding

import (
	"fmt"
	"math/rand"
	"sort"
	"strconv"
	"time"

	"github.com/HopkinsIDD/flepimop-go/pkg/compartment"
	"github.com/HopkinsIDD/flepimop-go/pkg/paramengine"
	"github.com/HopkinsIDD/flepimop-go/pkg/perr"
	"github.com/HopkinsIDD/flepimop-go/pkg/scenariocfg"
)

// TableLoader reads a named table into a header row plus data rows. Built-in
// file-backed methods (SetInitialConditions, FromFile, FolderDraw) dispatch
// through it rather than opening files themselves, since pkg/runcontext's
// convention keeps this package free of file-format opinions; cmd/flepimop
// supplies the loader the same way it supplies loadGeodata/loadMobility.
type TableLoader func(path string) ([][]string, error)

func columnIndex(header []string, name string) (int, bool) {
	for i, h := range header {
		if h == name {
			return i, true
		}
	}
	return 0, false
}

// Event is one exogenous injection: at Day, Amount individuals move from
// Source to Dest compartment index within Subpop. Amount is continuous in
// deterministic mode, and is rounded to an integer by the integrator when
// running in stochastic mode.
type Event struct {
	Day    int
	Source int
	Dest   int
	Subpop int
	Amount float64
}

// InitialConditionsProvider produces an (N compartments x S subpops) state
// tensor, either built in or supplied by a plugin (§6 "Plugin hooks").
type InitialConditionsProvider func(space *compartment.Space, subpops []string, population []float64) (*paramengine.Tensor, error)

// SeedingProvider produces the seeding schedule for the run.
type SeedingProvider func(space *compartment.Space, subpops []string, horizonDays int, rng *rand.Rand) ([]Event, error)

// BuildInitialConditions dispatches on spec.Method (§4.D): Default puts each
// subpop's full population into the compartment whose axis labels are all
// "S" (or, lacking that convention, the first declared compartment);
// SetInitialConditions and FromFile are built-in table-backed methods
// dispatched through loader; anything else is a plugin named by spec.Method
// and looked up in providers.
func BuildInitialConditions(
	spec scenariocfg.InitialConditionsSpec,
	space *compartment.Space,
	subpops []string,
	population []float64,
	loader TableLoader,
	providers map[string]InitialConditionsProvider,
) (*paramengine.Tensor, error) {
	switch spec.Method {
	case "", "Default":
		return defaultInitialConditions(space, population), nil
	case "SetInitialConditions":
		return setInitialConditions(spec, space, subpops, population, loader)
	case "FromFile":
		return initialConditionsFromFile(spec, space, subpops, loader)
	default:
		provider, ok := providers[spec.Method]
		if !ok {
			return nil, perr.NewConfigError("seeding.BuildInitialConditions", errUnknownMethod(spec.Method))
		}
		return provider(space, subpops, population)
	}
}

// setInitialConditions loads an explicit per-(compartment,subpop) table
// (columns "compartment","subpop","value") and, for every subpop whose
// explicit entries don't account for its full population, places the
// remainder in the susceptible compartment when the spec allows missing
// compartments/subpops (§4.D).
func setInitialConditions(spec scenariocfg.InitialConditionsSpec, space *compartment.Space, subpops []string, population []float64, loader TableLoader) (*paramengine.Tensor, error) {
	rows, compartmentCol, subpopCol, valueCol, err := loadTensorTable(spec.File, loader, "seeding.BuildInitialConditions")
	if err != nil {
		return nil, err
	}

	nameToIdx := make(map[string]int, space.N())
	for i := 0; i < space.N(); i++ {
		nameToIdx[space.Name(i)] = i
	}
	subpopIdx := make(map[string]int, len(subpops))
	for i, s := range subpops {
		subpopIdx[s] = i
	}

	tn := paramengine.NewTensor(space.N(), len(subpops))
	explained := make([]float64, len(subpops))
	seen := make([]bool, len(subpops))

	for _, row := range rows {
		cidx, ok := nameToIdx[row[compartmentCol]]
		if !ok {
			return nil, perr.NewConfigError("seeding.BuildInitialConditions", fmt.Errorf("%s: unknown compartment %q", spec.File, row[compartmentCol]))
		}
		sidx, ok := subpopIdx[row[subpopCol]]
		if !ok {
			return nil, perr.NewConfigError("seeding.BuildInitialConditions", fmt.Errorf("%s: unknown subpop %q", spec.File, row[subpopCol]))
		}
		val, err := strconv.ParseFloat(row[valueCol], 64)
		if err != nil {
			return nil, perr.NewDataError("seeding.BuildInitialConditions", err)
		}
		tn.Set(cidx, sidx, val)
		explained[sidx] += val
		seen[sidx] = true
	}

	susceptible := susceptibleIndex(space)
	for s, pop := range population {
		if !seen[s] {
			if !spec.AllowMissingSubpops {
				return nil, perr.NewConfigError("seeding.BuildInitialConditions", fmt.Errorf("%s: subpop %q has no entries", spec.File, subpops[s]))
			}
			tn.Set(susceptible, s, tn.At(susceptible, s)+pop)
			continue
		}
		remaining := pop - explained[s]
		if remaining == 0 {
			continue
		}
		if !spec.AllowMissingCompartments {
			return nil, perr.NewConfigError("seeding.BuildInitialConditions", fmt.Errorf("%s: subpop %q entries sum to %v, want population %v", spec.File, subpops[s], explained[s], pop))
		}
		tn.Set(susceptible, s, tn.At(susceptible, s)+remaining)
	}
	return tn, nil
}

// initialConditionsFromFile loads a prior run's final prevalence snapshot
// (columns "compartment","subpop","value", the same shape pkg/artifacts
// writes one day of the `seir` artifact in) as the literal initial state,
// with no remainder-filling (§4.D "load a prior run's final prevalence
// tensor").
func initialConditionsFromFile(spec scenariocfg.InitialConditionsSpec, space *compartment.Space, subpops []string, loader TableLoader) (*paramengine.Tensor, error) {
	rows, compartmentCol, subpopCol, valueCol, err := loadTensorTable(spec.File, loader, "seeding.BuildInitialConditions")
	if err != nil {
		return nil, err
	}

	nameToIdx := make(map[string]int, space.N())
	for i := 0; i < space.N(); i++ {
		nameToIdx[space.Name(i)] = i
	}
	subpopIdx := make(map[string]int, len(subpops))
	for i, s := range subpops {
		subpopIdx[s] = i
	}

	tn := paramengine.NewTensor(space.N(), len(subpops))
	for _, row := range rows {
		cidx, ok := nameToIdx[row[compartmentCol]]
		if !ok {
			return nil, perr.NewConfigError("seeding.BuildInitialConditions", fmt.Errorf("%s: unknown compartment %q", spec.File, row[compartmentCol]))
		}
		sidx, ok := subpopIdx[row[subpopCol]]
		if !ok {
			return nil, perr.NewConfigError("seeding.BuildInitialConditions", fmt.Errorf("%s: unknown subpop %q", spec.File, row[subpopCol]))
		}
		val, err := strconv.ParseFloat(row[valueCol], 64)
		if err != nil {
			return nil, perr.NewDataError("seeding.BuildInitialConditions", err)
		}
		tn.Set(cidx, sidx, val)
	}
	return tn, nil
}

// loadTensorTable loads path through loader and resolves its
// "compartment","subpop","value" header columns, shared by
// setInitialConditions and initialConditionsFromFile.
func loadTensorTable(path string, loader TableLoader, op string) (rows [][]string, compartmentCol, subpopCol, valueCol int, err error) {
	if loader == nil {
		return nil, 0, 0, 0, perr.NewConfigError(op, fmt.Errorf("%s requires a table loader", path))
	}
	table, err := loader(path)
	if err != nil {
		return nil, 0, 0, 0, err
	}
	if len(table) == 0 {
		return nil, 0, 0, 0, perr.NewDataError(op, fmt.Errorf("%s: empty table", path))
	}
	header := table[0]
	compartmentCol, ok1 := columnIndex(header, "compartment")
	subpopCol, ok2 := columnIndex(header, "subpop")
	valueCol, ok3 := columnIndex(header, "value")
	if !ok1 || !ok2 || !ok3 {
		return nil, 0, 0, 0, perr.NewConfigError(op, fmt.Errorf("%s: expected compartment,subpop,value columns", path))
	}
	return table[1:], compartmentCol, subpopCol, valueCol, nil
}

func defaultInitialConditions(space *compartment.Space, population []float64) *paramengine.Tensor {
	tn := paramengine.NewTensor(space.N(), len(population))
	susceptible := susceptibleIndex(space)
	for s, pop := range population {
		tn.Set(susceptible, s, pop)
	}
	return tn
}

// susceptibleIndex finds the compartment whose labels are all "S" on every
// axis that has an "S" label, falling back to compartment 0. This mirrors
// the convention that a fully-susceptible population occupies the
// all-susceptible cell of the strata product.
func susceptibleIndex(space *compartment.Space) int {
	pattern := scenariocfg.CompartmentPattern{}
	for _, axis := range space.Axes {
		for _, l := range axis.Labels {
			if l == "S" {
				pattern[axis.Name] = []string{"S"}
				break
			}
		}
	}
	matches, err := space.Resolve(pattern)
	if err != nil || len(matches) == 0 {
		return 0
	}
	return matches[0]
}

// BuildSeeding dispatches on spec.Method (§4.D): NoSeeding returns no
// events, PoissonDraw draws one Poisson(lambda) count per day for every
// subpop, moved from the susceptible compartment into the first other
// compartment index (firstNonSusceptibleIndex),
// FromFile and FolderDraw are built-in table-backed methods dispatched
// through loader (the only difference between them is whether loader reads
// one file or concatenates a directory of them -- a distinction left to the
// loader, since this package has no file-system opinion of its own), and
// anything else is a plugin named by spec.Method and looked up in
// providers.
func BuildSeeding(
	spec scenariocfg.SeedingSpec,
	space *compartment.Space,
	subpops []string,
	horizonDays int,
	startDate time.Time,
	rng *rand.Rand,
	loader TableLoader,
	providers map[string]SeedingProvider,
) ([]Event, error) {
	switch spec.Method {
	case "", "NoSeeding":
		return nil, nil
	case "PoissonDraw":
		return poissonDrawSeeding(space, subpops, horizonDays, spec.Lambda, rng)
	case "FromFile", "FolderDraw":
		return scheduleFromTable(spec, subpops, startDate, loader)
	default:
		provider, ok := providers[spec.Method]
		if !ok {
			return nil, perr.NewConfigError("seeding.BuildSeeding", errUnknownMethod(spec.Method))
		}
		return provider(space, subpops, horizonDays, rng)
	}
}

// scheduleFromTable reads a seeding schedule (columns "date","subpop",
// "source","dest","amount" -- the same shape pkg/artifacts writes the `seed`
// artifact in, so a prior run's realized schedule round-trips directly) and
// resolves each date to a day offset from startDate (§3 Seeding event, §4.D
// FromFile/FolderDraw).
func scheduleFromTable(spec scenariocfg.SeedingSpec, subpops []string, startDate time.Time, loader TableLoader) ([]Event, error) {
	const op = "seeding.BuildSeeding"
	if loader == nil {
		return nil, perr.NewConfigError(op, fmt.Errorf("%s requires a table loader", spec.File))
	}
	table, err := loader(spec.File)
	if err != nil {
		return nil, err
	}
	if len(table) == 0 {
		return nil, nil
	}
	header := table[0]
	dateCol, ok1 := columnIndex(header, "date")
	subpopCol, ok2 := columnIndex(header, "subpop")
	sourceCol, ok3 := columnIndex(header, "source")
	destCol, ok4 := columnIndex(header, "dest")
	amountCol, ok5 := columnIndex(header, "amount")
	if !ok1 || !ok2 || !ok3 || !ok4 || !ok5 {
		return nil, perr.NewConfigError(op, fmt.Errorf("%s: expected date,subpop,source,dest,amount columns", spec.File))
	}

	subpopIdx := make(map[string]int, len(subpops))
	for i, s := range subpops {
		subpopIdx[s] = i
	}

	var events []Event
	for _, row := range table[1:] {
		date, err := time.Parse("2006-01-02", row[dateCol])
		if err != nil {
			return nil, perr.NewDataError(op, err)
		}
		sidx, ok := subpopIdx[row[subpopCol]]
		if !ok {
			return nil, perr.NewConfigError(op, fmt.Errorf("%s: unknown subpop %q", spec.File, row[subpopCol]))
		}
		source, err := strconv.Atoi(row[sourceCol])
		if err != nil {
			return nil, perr.NewDataError(op, err)
		}
		dest, err := strconv.Atoi(row[destCol])
		if err != nil {
			return nil, perr.NewDataError(op, err)
		}
		amount, err := strconv.ParseFloat(row[amountCol], 64)
		if err != nil {
			return nil, perr.NewDataError(op, err)
		}
		day := int(date.Sub(startDate).Hours() / 24)
		events = append(events, Event{Day: day, Source: source, Dest: dest, Subpop: sidx, Amount: amount})
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Day < events[j].Day })
	return events, nil
}

func poissonDrawSeeding(space *compartment.Space, subpops []string, horizonDays int, lambda float64, rng *rand.Rand) ([]Event, error) {
	if lambda <= 0 {
		return nil, nil
	}
	susceptible := susceptibleIndex(space)
	infectious := firstNonSusceptibleIndex(space, susceptible)

	var events []Event
	for day := 0; day < horizonDays; day++ {
		for s := range subpops {
			n, err := paramengine.Sample(&scenariocfg.DistributionSpec{
				Kind:   scenariocfg.DistPoisson,
				Params: map[string]float64{"lambda": lambda},
			}, rng)
			if err != nil {
				return nil, err
			}
			if n <= 0 {
				continue
			}
			events = append(events, Event{
				Day:    day,
				Source: susceptible,
				Dest:   infectious,
				Subpop: s,
				Amount: n,
			})
		}
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Day < events[j].Day })
	return events, nil
}

// firstNonSusceptibleIndex returns any compartment index other than
// susceptible, used as the default seeding destination absent an explicit
// configuration of which compartment receives introductions.
func firstNonSusceptibleIndex(space *compartment.Space, susceptible int) int {
	for i := 0; i < space.N(); i++ {
		if i != susceptible {
			return i
		}
	}
	return susceptible
}

// EventsInWindow returns the subset of events whose Day falls in
// [startDay, endDay), the window the integrator applies at the start of a
// single step (§4.F step 1).
func EventsInWindow(events []Event, startDay, endDay int) []Event {
	var out []Event
	for _, e := range events {
		if e.Day >= startDay && e.Day < endDay {
			out = append(out, e)
		}
	}
	return out
}

type unknownMethodError string

func (e unknownMethodError) Error() string { return "unknown method: " + string(e) }

func errUnknownMethod(method string) error { return unknownMethodError(method) }
