// Package artifacts persists one run's output files under the directory
// layout in §6: model_output/<name>_<seir_scen>_<outcome_scen>/<run_id>/
// <kind>/{global|chimeric}/{intermediate|final}/<chain>.<iter>.<kind>.csv.
// Grounded on the teacher's pkg/reporting/storage.go: a Store plays the same
// role as its Storage (creates the output directory, writes one file per
// unit of work, prunes old files past a keepLastN bound), generalized from
// one JSON report per test run to one CSV file per (kind, block, stage,
// chain, iteration).
package artifacts

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/google/uuid"

	"github.com/HopkinsIDD/flepimop-go/pkg/config"
	"github.com/HopkinsIDD/flepimop-go/pkg/inference"
	"github.com/HopkinsIDD/flepimop-go/pkg/obslog"
	"github.com/HopkinsIDD/flepimop-go/pkg/paramengine"
	"github.com/HopkinsIDD/flepimop-go/pkg/perr"
	"github.com/HopkinsIDD/flepimop-go/pkg/runcontext"
	"github.com/HopkinsIDD/flepimop-go/pkg/seeding"
)

// Kind enumerates the artifact kinds named in §6 Outputs.
type Kind string

const (
	KindSeir Kind = "seir"
	KindHosp Kind = "hosp"
	KindSpar Kind = "spar"
	KindHpar Kind = "hpar"
	KindSnpi Kind = "snpi"
	KindHnpi Kind = "hnpi"
	KindSeed Kind = "seed"
	KindInit Kind = "init"
	KindLlik Kind = "llik"
)

// Block is the global/chimeric parameter block an artifact belongs to.
type Block string

const (
	BlockGlobal   Block = "global"
	BlockChimeric Block = "chimeric"
)

// Stage distinguishes an in-progress iteration's artifact from the run's
// final accepted one.
type Stage string

const (
	StageIntermediate Stage = "intermediate"
	StageFinal        Stage = "final"
)

// Store writes artifact files for one run.
type Store struct {
	baseDir   string
	runID     string
	keepLastN int
	rc        *runcontext.RunContext
	logger    *obslog.Logger
}

// NewStore creates the run's output directory and returns a Store scoped to
// it. The run ID distinguishes concurrent or repeated runs of the same
// named scenario (§6), generated the same way the rest of the pack mints
// opaque run/slot identifiers (google/uuid).
func NewStore(cfg config.ArtifactsConfig, rc *runcontext.RunContext, seirScenario, outcomeScenario string, logger *obslog.Logger) (*Store, error) {
	runID := uuid.New().String()
	base := filepath.Join(cfg.OutputDir, fmt.Sprintf("%s_%s_%s", rc.Scenario.Name, seirScenario, outcomeScenario), runID)
	if err := os.MkdirAll(base, 0755); err != nil {
		return nil, perr.NewIOError(base, err)
	}
	return &Store{baseDir: base, runID: runID, keepLastN: cfg.KeepLastN, rc: rc, logger: logger}, nil
}

// RunID returns the generated run identifier.
func (s *Store) RunID() string { return s.runID }

func (s *Store) dir(kind Kind, block Block, stage Stage) string {
	return filepath.Join(s.baseDir, string(kind), string(block), string(stage))
}

func (s *Store) path(kind Kind, block Block, stage Stage, chain, iter int) string {
	return filepath.Join(s.dir(kind, block, stage), fmt.Sprintf("%d.%d.%s.csv", chain, iter, kind))
}

func (s *Store) writeCSV(path string, header []string, rows [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return perr.NewIOError(path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return perr.NewIOError(path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return perr.NewIOError(path, err)
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return perr.NewIOError(path, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return perr.NewIOError(path, err)
	}
	s.logger.Debug("artifact written", "path", path)
	return nil
}

// WriteTensor writes a (time x subpop) tensor as date,subpop,value rows.
func (s *Store) WriteTensor(kind Kind, block Block, stage Stage, chain, iter int, tn *paramengine.Tensor) (string, error) {
	rows := make([][]string, 0, tn.T*tn.S)
	for t := 0; t < tn.T; t++ {
		date := s.rc.StartDate.AddDate(0, 0, t).Format("2006-01-02")
		for sp := 0; sp < tn.S && sp < len(s.rc.Subpops); sp++ {
			rows = append(rows, []string{date, s.rc.Subpops[sp], formatFloat(tn.At(t, sp))})
		}
	}
	path := s.path(kind, block, stage, chain, iter)
	if err := s.writeCSV(path, []string{"date", "subpop", "value"}, rows); err != nil {
		return "", err
	}
	return path, nil
}

// WriteCompartmentSnapshots writes per-day (N compartments x S) snapshots as
// date,compartment,subpop,value rows (the `seir` artifact's prevalence
// trajectory, or the `hosp`-style outcome series when called per outcome).
func (s *Store) WriteCompartmentSnapshots(kind Kind, block Block, stage Stage, chain, iter int, snapshots []*paramengine.Tensor) (string, error) {
	rows := make([][]string, 0, len(snapshots)*s.rc.Space.N())
	for t, tn := range snapshots {
		date := s.rc.StartDate.AddDate(0, 0, t).Format("2006-01-02")
		for c := 0; c < tn.T; c++ {
			name := s.rc.Space.Name(c)
			for sp := 0; sp < tn.S && sp < len(s.rc.Subpops); sp++ {
				rows = append(rows, []string{date, name, s.rc.Subpops[sp], formatFloat(tn.At(c, sp))})
			}
		}
	}
	path := s.path(kind, block, stage, chain, iter)
	if err := s.writeCSV(path, []string{"date", "compartment", "subpop", "value"}, rows); err != nil {
		return "", err
	}
	return path, nil
}

// WriteSeries writes a named outcome's series (the `hosp` artifact: every
// outcome DAG node's value, not just compartment prevalence).
func (s *Store) WriteSeries(kind Kind, block Block, stage Stage, chain, iter int, series map[string]*paramengine.Tensor) (string, error) {
	names := make([]string, 0, len(series))
	for name := range series {
		names = append(names, name)
	}
	sort.Strings(names)

	var rows [][]string
	for _, name := range names {
		tn := series[name]
		for t := 0; t < tn.T; t++ {
			date := s.rc.StartDate.AddDate(0, 0, t).Format("2006-01-02")
			for sp := 0; sp < tn.S && sp < len(s.rc.Subpops); sp++ {
				rows = append(rows, []string{date, name, s.rc.Subpops[sp], formatFloat(tn.At(t, sp))})
			}
		}
	}
	path := s.path(kind, block, stage, chain, iter)
	if err := s.writeCSV(path, []string{"date", "outcome", "subpop", "value"}, rows); err != nil {
		return "", err
	}
	return path, nil
}

// WriteSeeding persists the realized seeding schedule (the `seed` artifact).
func (s *Store) WriteSeeding(block Block, stage Stage, chain, iter int, events []seeding.Event) (string, error) {
	rows := make([][]string, 0, len(events))
	for _, e := range events {
		date := s.rc.StartDate.AddDate(0, 0, e.Day).Format("2006-01-02")
		subpop := ""
		if e.Subpop >= 0 && e.Subpop < len(s.rc.Subpops) {
			subpop = s.rc.Subpops[e.Subpop]
		}
		rows = append(rows, []string{date, subpop, strconv.Itoa(e.Source), strconv.Itoa(e.Dest), formatFloat(e.Amount)})
	}
	path := s.path(KindSeed, block, stage, chain, iter)
	if err := s.writeCSV(path, []string{"date", "subpop", "source", "dest", "amount"}, rows); err != nil {
		return "", err
	}
	return path, nil
}

// WriteLlik persists per-subpopulation and pooled log-likelihoods (the
// `llik` artifact).
func (s *Store) WriteLlik(block Block, stage Stage, chain, iter int, result *inference.IterationResult) (string, error) {
	rows := make([][]string, 0, len(result.PerSubpopLogLik)+1)
	for i, ll := range result.PerSubpopLogLik {
		subpop := ""
		if i < len(s.rc.Subpops) {
			subpop = s.rc.Subpops[i]
		}
		rows = append(rows, []string{subpop, formatFloat(ll)})
	}
	rows = append(rows, []string{"total", formatFloat(result.TotalLogLik)})
	path := s.path(KindLlik, block, stage, chain, iter)
	if err := s.writeCSV(path, []string{"subpop", "loglik"}, rows); err != nil {
		return "", err
	}
	return path, nil
}

// FlushIteration persists every artifact kind an iteration outcome produced.
// The block an iteration lands in follows its accept outcome: a globally
// accepted proposal writes to the global block, anything else (rejected or
// only chimerically accepted) writes to the chimeric block, mirroring §6's
// "global = accepted as a joint vector ... chimeric = per-subpop last
// accepted value" distinction.
func (s *Store) FlushIteration(chain, iter int, outcome *inference.IterationOutcome, stage Stage) error {
	if outcome == nil || outcome.Result == nil {
		return nil
	}
	r := outcome.Result
	block := BlockChimeric
	if outcome.GlobalAccept {
		block = BlockGlobal
	}

	if _, err := s.WriteCompartmentSnapshots(KindSeir, block, stage, chain, iter, r.Prevalence); err != nil {
		return err
	}
	if _, err := s.WriteSeries(KindHosp, block, stage, chain, iter, r.Outcomes); err != nil {
		return err
	}
	if _, err := s.WriteSeries(KindSpar, block, stage, chain, iter, r.Rates); err != nil {
		return err
	}
	if _, err := s.WriteSeries(KindSnpi, block, stage, chain, iter, r.SeirModifiers); err != nil {
		return err
	}
	if _, err := s.WriteSeries(KindHnpi, block, stage, chain, iter, r.OutcomeModifiers); err != nil {
		return err
	}
	if _, err := s.WriteSeeding(block, stage, chain, iter, r.SeedingEvents); err != nil {
		return err
	}
	if r.Init != nil {
		if _, err := s.WriteTensor(KindInit, block, stage, chain, iter, r.Init); err != nil {
			return err
		}
	}
	if _, err := s.WriteLlik(block, stage, chain, iter, r); err != nil {
		return err
	}

	if s.keepLastN > 0 {
		s.pruneOldIterations(block, stage)
	}
	return nil
}

// pruneOldIterations removes all but the keepLastN most recent iteration
// files per (kind, block, stage) directory, the same bound the teacher's
// cleanupOldReports enforces on saved reports.
func (s *Store) pruneOldIterations(block Block, stage Stage) {
	for _, kind := range []Kind{KindSeir, KindHosp, KindSpar, KindHpar, KindSnpi, KindHnpi, KindSeed, KindInit, KindLlik} {
		dir := s.dir(kind, block, stage)
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			if !e.IsDir() {
				names = append(names, e.Name())
			}
		}
		// Names are "<chain>.<iter>.<kind>.csv": order by iteration number,
		// then chain, so iteration 10 sorts after iteration 2.
		iterOf := func(name string) (iter, chain int) {
			fmt.Sscanf(name, "%d.%d.", &chain, &iter)
			return iter, chain
		}
		sort.Slice(names, func(a, b int) bool {
			ia, ca := iterOf(names[a])
			ib, cb := iterOf(names[b])
			if ia != ib {
				return ia < ib
			}
			return ca < cb
		})
		if len(names) <= s.keepLastN {
			continue
		}
		for _, name := range names[:len(names)-s.keepLastN] {
			if err := os.Remove(filepath.Join(dir, name)); err != nil {
				s.logger.Warn("failed to prune old artifact", "path", filepath.Join(dir, name), "error", err)
			}
		}
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
