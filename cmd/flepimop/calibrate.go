package main

import (
	"context"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/HopkinsIDD/flepimop-go/pkg/artifacts"
	"github.com/HopkinsIDD/flepimop-go/pkg/inference"
	"github.com/HopkinsIDD/flepimop-go/pkg/likelihood"
	"github.com/HopkinsIDD/flepimop-go/pkg/perr"
	"github.com/HopkinsIDD/flepimop-go/pkg/runcontext"
	"github.com/HopkinsIDD/flepimop-go/pkg/scenariocfg"
	"github.com/HopkinsIDD/flepimop-go/pkg/telemetry"
)

var (
	groundTruthDir    string
	calibrateSetFlags []string
)

var calibrateCmd = &cobra.Command{
	Use:   "calibrate <scenario.yaml>",
	Short: "Calibrate free parameters against ground-truth data via MCMC",
	Args:  cobra.ExactArgs(1),
	RunE:  runCalibrate,
}

func init() {
	calibrateCmd.Flags().StringVar(&groundTruthDir, "ground-truth", "", "directory of <data_var>.csv ground-truth tables (defaults to the scenario's gt_data_path)")
	calibrateCmd.Flags().StringArrayVar(&calibrateSetFlags, "set", nil, "override scenario values (e.g., --set seir.parameters.beta.value=0.4)")
}

func runCalibrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := loggerFrom(cfg)

	scenario, err := loadScenario(args[0], calibrateSetFlags)
	if err != nil {
		return err
	}

	subpops, population, mobility, err := loadSubpopSetup(scenario.SubpopSetup)
	if err != nil {
		return err
	}

	rc, err := runcontext.Build(scenario, subpops, population, mobility)
	if err != nil {
		return err
	}
	rc.TableLoader = loadTable

	gt, err := loadGroundTruth(scenario, rc.Subpops)
	if err != nil {
		return err
	}

	store, err := artifacts.NewStore(cfg.Artifacts, rc, "calib", "calib", log)
	if err != nil {
		return err
	}
	log.Info("calibrate starting", "run_id", store.RunID(), "nslots", rc.Scenario.NSlots, "iterations_per_slot", rc.Scenario.Inference.IterationsPerSlot)

	ctx, stop := inference.WithInterruptHandling(context.Background())
	defer stop()

	var metrics *telemetry.Metrics
	if cfg.Telemetry.Enabled {
		reg := prometheus.NewRegistry()
		metrics = telemetry.New(reg)
		go func() {
			if err := telemetry.Serve(ctx, cfg.Telemetry.Addr, reg); err != nil {
				log.Warn("telemetry server stopped", "error", err)
			}
		}()
	}

	sink := func(chain, iteration int, outcome *inference.IterationOutcome) {
		if metrics != nil {
			recordMetrics(metrics, chain, outcome)
		}
		if outcome == nil || outcome.Failed {
			return
		}
		if err := store.FlushIteration(chain, iteration, outcome, artifacts.StageIntermediate); err != nil {
			log.Warn("failed to persist iteration artifacts", "chain", chain, "iteration", iteration, "error", err)
		}
	}

	results, err := inference.Run(ctx, rc, cfg.Run, gt, log, sink)
	if err != nil {
		return err
	}

	for _, r := range results {
		if r.Err != nil {
			log.Warn("chain finished with error", "chain", r.Index, "error", r.Err)
			continue
		}
		log.Info("chain finished", "chain", r.Index, "accepted", r.AcceptedIterations, "total", r.TotalIterations)
	}

	return nil
}

// loadGroundTruth reads one CSV per distinct data_var referenced by the
// scenario's statistics, from the --ground-truth directory if set, else the
// scenario's own inference.gt_data_path.
func loadGroundTruth(scenario *scenariocfg.Scenario, subpops []string) (map[string]*likelihood.GroundTruth, error) {
	dir := groundTruthDir
	if dir == "" {
		dir = scenario.Inference.GTDataPath
	}

	out := map[string]*likelihood.GroundTruth{}
	for _, stat := range scenario.Inference.Statistics {
		if _, ok := out[stat.DataVar]; ok {
			continue
		}
		path := filepath.Join(dir, stat.DataVar+".csv")
		f, err := os.Open(path)
		if err != nil {
			return nil, perr.NewIOError(path, err)
		}
		gt, err := likelihood.LoadGroundTruth(f, subpops)
		f.Close()
		if err != nil {
			return nil, err
		}
		out[stat.DataVar] = gt
	}
	return out, nil
}

// recordMetrics updates the process's live gauges/counters from one
// completed iteration's outcome.
func recordMetrics(m *telemetry.Metrics, chain int, outcome *inference.IterationOutcome) {
	label := strconv.Itoa(chain)
	m.Iterations.WithLabelValues(label).Inc()
	if outcome == nil {
		return
	}
	if outcome.Failed {
		m.IntegrationFailures.WithLabelValues(label).Inc()
		return
	}
	if outcome.GlobalAccept {
		m.GlobalAccepts.WithLabelValues(label).Inc()
	}
	for i, accepted := range outcome.ChimericAccepts {
		if accepted {
			m.ChimericAccepts.WithLabelValues(label, strconv.Itoa(i)).Inc()
		}
	}
	if outcome.Result != nil {
		m.TotalLogLik.WithLabelValues(label).Set(outcome.Result.TotalLogLik)
	}
}
