package artifacts

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/HopkinsIDD/flepimop-go/pkg/compartment"
	"github.com/HopkinsIDD/flepimop-go/pkg/config"
	"github.com/HopkinsIDD/flepimop-go/pkg/inference"
	"github.com/HopkinsIDD/flepimop-go/pkg/obslog"
	"github.com/HopkinsIDD/flepimop-go/pkg/paramengine"
	"github.com/HopkinsIDD/flepimop-go/pkg/runcontext"
	"github.com/HopkinsIDD/flepimop-go/pkg/scenariocfg"
	"github.com/HopkinsIDD/flepimop-go/pkg/seeding"
)

func testRunContext(t *testing.T) *runcontext.RunContext {
	t.Helper()
	space, err := compartment.Build([]scenariocfg.AxisSpec{
		{Name: "infection_stage", Labels: []string{"S", "I", "R"}},
	})
	if err != nil {
		t.Fatalf("compartment.Build: %v", err)
	}
	return &runcontext.RunContext{
		Scenario:  &scenariocfg.Scenario{Name: "test_scenario"},
		Space:     space,
		Subpops:   []string{"region1", "region2"},
		StartDate: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Days:      2,
	}
}

func testLogger() *obslog.Logger {
	return obslog.New(obslog.Config{Output: os.Stderr})
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	rc := testRunContext(t)
	cfg := config.ArtifactsConfig{OutputDir: t.TempDir(), KeepLastN: 0}
	store, err := NewStore(cfg, rc, "seir_scen", "outcome_scen", testLogger())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return rows
}

func TestNewStoreCreatesRunDirectory(t *testing.T) {
	store := newTestStore(t)
	info, err := os.Stat(store.baseDir)
	if err != nil || !info.IsDir() {
		t.Fatalf("expected run directory to exist at %s", store.baseDir)
	}
	if store.RunID() == "" {
		t.Error("expected a non-empty generated run ID")
	}
}

func TestWriteTensorProducesDateSubpopValueRows(t *testing.T) {
	store := newTestStore(t)
	tn := paramengine.Scalar(2, 2, 1.5)

	path, err := store.WriteTensor(KindInit, BlockGlobal, StageFinal, 0, 0, tn)
	if err != nil {
		t.Fatalf("WriteTensor: %v", err)
	}

	rows := readCSV(t, path)
	if len(rows) != 5 { // header + 2 days x 2 subpops
		t.Fatalf("expected 5 rows, got %d", len(rows))
	}
	if rows[0][0] != "date" || rows[0][1] != "subpop" || rows[0][2] != "value" {
		t.Errorf("unexpected header: %v", rows[0])
	}
	if rows[1][0] != "2026-01-01" {
		t.Errorf("expected first row date 2026-01-01, got %s", rows[1][0])
	}
}

func TestWriteSeriesSortsByName(t *testing.T) {
	store := newTestStore(t)
	series := map[string]*paramengine.Tensor{
		"gamma": paramengine.Scalar(1, 2, 0.2),
		"beta":  paramengine.Scalar(1, 2, 0.4),
	}

	path, err := store.WriteSeries(KindSpar, BlockGlobal, StageFinal, 1, 3, series)
	if err != nil {
		t.Fatalf("WriteSeries: %v", err)
	}

	rows := readCSV(t, path)
	if rows[1][1] != "beta" {
		t.Errorf("expected beta to sort before gamma, got %s first", rows[1][1])
	}
	expectedPath := filepath.Join(store.dir(KindSpar, BlockGlobal, StageFinal), "1.3.spar.csv")
	if path != expectedPath {
		t.Errorf("expected path %s, got %s", expectedPath, path)
	}
}

func TestWriteSeedingFormatsEvents(t *testing.T) {
	store := newTestStore(t)
	events := []seeding.Event{
		{Day: 0, Source: 0, Dest: 1, Subpop: 1, Amount: 5},
	}
	path, err := store.WriteSeeding(BlockChimeric, StageIntermediate, 0, 0, events)
	if err != nil {
		t.Fatalf("WriteSeeding: %v", err)
	}
	rows := readCSV(t, path)
	if len(rows) != 2 {
		t.Fatalf("expected header + 1 row, got %d", len(rows))
	}
	if rows[1][1] != "region2" {
		t.Errorf("expected subpop region2, got %s", rows[1][1])
	}
}

func TestWriteLlikIncludesTotal(t *testing.T) {
	store := newTestStore(t)
	result := &inference.IterationResult{
		PerSubpopLogLik: []float64{-1.2, -3.4},
		TotalLogLik:     -4.6,
	}
	path, err := store.WriteLlik(BlockGlobal, StageFinal, 0, 0, result)
	if err != nil {
		t.Fatalf("WriteLlik: %v", err)
	}
	rows := readCSV(t, path)
	if rows[len(rows)-1][0] != "total" {
		t.Errorf("expected last row to be the total, got %v", rows[len(rows)-1])
	}
}

func TestFlushIterationWritesSparAsSeriesNotSingleTensor(t *testing.T) {
	store := newTestStore(t)
	outcome := &inference.IterationOutcome{
		GlobalAccept: true,
		Result: &inference.IterationResult{
			Prevalence: []*paramengine.Tensor{paramengine.Scalar(3, 2, 1)},
			Outcomes:   map[string]*paramengine.Tensor{"incidI": paramengine.Scalar(2, 2, 1)},
			Rates: map[string]*paramengine.Tensor{
				"beta":  paramengine.Scalar(2, 2, 0.4),
				"gamma": paramengine.Scalar(2, 2, 0.1),
			},
			SeirModifiers:    map[string]*paramengine.Tensor{},
			OutcomeModifiers: map[string]*paramengine.Tensor{},
		},
	}

	if err := store.FlushIteration(0, 0, outcome, StageFinal); err != nil {
		t.Fatalf("FlushIteration: %v", err)
	}

	path := store.path(KindSpar, BlockGlobal, StageFinal, 0, 0)
	rows := readCSV(t, path)

	names := map[string]bool{}
	for _, row := range rows[1:] {
		names[row[1]] = true
	}
	if !names["beta"] || !names["gamma"] {
		t.Errorf("expected both beta and gamma rates persisted in spar artifact, got %v", rows)
	}
}

func TestFlushIterationUsesChimericBlockWhenNotGloballyAccepted(t *testing.T) {
	store := newTestStore(t)
	outcome := &inference.IterationOutcome{
		GlobalAccept: false,
		Result: &inference.IterationResult{
			Prevalence:       []*paramengine.Tensor{paramengine.Scalar(1, 2, 1)},
			Outcomes:         map[string]*paramengine.Tensor{},
			Rates:            map[string]*paramengine.Tensor{},
			SeirModifiers:    map[string]*paramengine.Tensor{},
			OutcomeModifiers: map[string]*paramengine.Tensor{},
		},
	}

	if err := store.FlushIteration(2, 5, outcome, StageIntermediate); err != nil {
		t.Fatalf("FlushIteration: %v", err)
	}

	globalPath := store.path(KindSeir, BlockGlobal, StageIntermediate, 2, 5)
	if _, err := os.Stat(globalPath); err == nil {
		t.Errorf("expected no global-block artifact for a non-globally-accepted iteration")
	}
	chimericPath := store.path(KindSeir, BlockChimeric, StageIntermediate, 2, 5)
	if _, err := os.Stat(chimericPath); err != nil {
		t.Errorf("expected a chimeric-block artifact at %s", chimericPath)
	}
}

func TestFlushIterationSkipsNilOutcome(t *testing.T) {
	store := newTestStore(t)
	if err := store.FlushIteration(0, 0, nil, StageFinal); err != nil {
		t.Errorf("expected a nil outcome to be a no-op, got %v", err)
	}
}
