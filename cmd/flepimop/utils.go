package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/HopkinsIDD/flepimop-go/pkg/config"
	"github.com/HopkinsIDD/flepimop-go/pkg/obslog"
	"github.com/HopkinsIDD/flepimop-go/pkg/perr"
	"github.com/HopkinsIDD/flepimop-go/pkg/scenariocfg"
	"github.com/HopkinsIDD/flepimop-go/pkg/scenariocfg/parser"
	"github.com/HopkinsIDD/flepimop-go/pkg/scenariocfg/validator"
)

// loadConfig loads the run configuration from cfgFile, auto-generating a
// default file if it does not exist, then validating it.
func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		path = "flepimop.yaml"
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		fmt.Printf("config file not found, creating default configuration at: %s\n", path)
		cfg := config.Default()
		if err := cfg.Save(path); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		return cfg, nil
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadScenario parses the scenario document at path, applies any --set
// overrides, and validates the result.
func loadScenario(path string, setFlags []string) (*scenariocfg.Scenario, error) {
	scenario, err := parser.New().ParseFile(path)
	if err != nil {
		return nil, err
	}
	if err := parser.ApplyOverrides(scenario, parseSetFlags(setFlags)); err != nil {
		return nil, err
	}
	if err := validator.New().Validate(scenario); err != nil {
		return nil, err
	}
	return scenario, nil
}

// parseSetFlags turns "key=value" strings into an override map, silently
// dropping malformed entries the same way the teacher's run.go does.
func parseSetFlags(setFlags []string) map[string]string {
	overrides := make(map[string]string)
	for _, flag := range setFlags {
		k, v, ok := strings.Cut(flag, "=")
		if ok {
			overrides[k] = v
		}
	}
	return overrides
}

// loggerFrom builds a run-scoped Logger from the framework config, honoring
// --verbose by forcing debug level regardless of the file's configured level.
func loggerFrom(cfg *config.Config) *obslog.Logger {
	level := obslog.Level(cfg.Framework.LogLevel)
	if verbose {
		level = obslog.LevelDebug
	}
	return obslog.New(obslog.Config{Level: level, Format: obslog.Format(cfg.Framework.LogFormat)})
}

// loadSubpopSetup reads the geodata (subpop,population) and, if present, the
// mobility (origin,dest,weight) tables named by the scenario's subpop_setup
// (§6), since pkg/runcontext deliberately has no file-format opinion of its
// own.
func loadSubpopSetup(setup scenariocfg.SubpopSetup) ([]string, []float64, []float64, error) {
	subpops, population, err := loadGeodata(setup.Geodata)
	if err != nil {
		return nil, nil, nil, err
	}

	var weights []float64
	if setup.Mobility != "" {
		weights, err = loadMobility(setup.Mobility, subpops)
		if err != nil {
			return nil, nil, nil, err
		}
	}
	return subpops, population, weights, nil
}

func loadGeodata(path string) ([]string, []float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, perr.NewIOError(path, err)
	}
	defer f.Close()

	cr := csv.NewReader(f)
	if _, err := cr.Read(); err != nil { // header: subpop,population
		return nil, nil, perr.NewIOError(path, err)
	}

	var subpops []string
	var population []float64
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, perr.NewIOError(path, err)
		}
		if len(row) < 2 {
			continue
		}
		pop, err := strconv.ParseFloat(row[1], 64)
		if err != nil {
			return nil, nil, perr.NewDataError("loadGeodata", err)
		}
		subpops = append(subpops, row[0])
		population = append(population, pop)
	}
	return subpops, population, nil
}

// loadMobility reads an origin,dest,weight table into a row-major N x N
// matrix ordered by subpops, matching integrate.Mobility's layout.
func loadMobility(path string, subpops []string) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, perr.NewIOError(path, err)
	}
	defer f.Close()

	index := make(map[string]int, len(subpops))
	for i, s := range subpops {
		index[s] = i
	}

	n := len(subpops)
	weights := make([]float64, n*n)

	cr := csv.NewReader(f)
	if _, err := cr.Read(); err != nil { // header: origin,dest,weight
		return nil, perr.NewIOError(path, err)
	}
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, perr.NewIOError(path, err)
		}
		if len(row) < 3 {
			continue
		}
		oi, ok := index[row[0]]
		if !ok {
			continue
		}
		di, ok := index[row[1]]
		if !ok {
			continue
		}
		w, err := strconv.ParseFloat(row[2], 64)
		if err != nil {
			return nil, perr.NewDataError("loadMobility", err)
		}
		weights[oi*n+di] = w
	}
	return weights, nil
}

// loadTable reads path as a CSV file and returns it as a header row plus
// data rows; if path names a directory, every *.csv file in it (sorted by
// name) is read and concatenated, with each file's own header row dropped
// after the first so the combined table has exactly one header (FolderDraw's
// multi-file seeding schedules, §4.D).
func loadTable(path string) ([][]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, perr.NewIOError(path, err)
	}
	if !info.IsDir() {
		return readCSVFile(path)
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, perr.NewIOError(path, err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".csv") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var rows [][]string
	for i, name := range names {
		rs, err := readCSVFile(filepath.Join(path, name))
		if err != nil {
			return nil, err
		}
		if len(rs) == 0 {
			continue
		}
		if i == 0 {
			rows = append(rows, rs...)
		} else {
			rows = append(rows, rs[1:]...) // drop repeated header
		}
	}
	return rows, nil
}

func readCSVFile(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, perr.NewIOError(path, err)
	}
	defer f.Close()

	cr := csv.NewReader(f)
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, perr.NewIOError(path, err)
	}
	return rows, nil
}

// exitCodeFor maps an error's perr.Kind to a process exit code (§7): startup
// configuration problems are distinguished from data and IO failures so
// calling scripts can branch without parsing stderr text.
func exitCodeFor(err error) int {
	switch perr.Kind(err) {
	case "ConfigError", "EvaluationError":
		return 2
	case "DataError":
		return 3
	case "IOError":
		return 4
	case "IntegrationError":
		return 5
	default:
		return 1
	}
}
