package inference

import (
	"context"
	"math/rand"

	"golang.org/x/sync/errgroup"

	"github.com/HopkinsIDD/flepimop-go/pkg/config"
	"github.com/HopkinsIDD/flepimop-go/pkg/likelihood"
	"github.com/HopkinsIDD/flepimop-go/pkg/obslog"
	"github.com/HopkinsIDD/flepimop-go/pkg/runcontext"
)

// ChainResult summarizes one finished chain, for the controller's run report.
type ChainResult struct {
	Index              int
	AcceptedIterations int
	TotalIterations    int
	Final              *Vector
	Err                error
}

// ChainArtifactSink receives each iteration's outcome as it completes, so a
// caller (e.g. pkg/artifacts) can persist it without the controller knowing
// the output format (§6 Outputs).
type ChainArtifactSink func(chain, iteration int, outcome *IterationOutcome)

// Run drives scenario.Inference.IterationsPerSlot iterations across
// scenario.NSlots independent chains, up to runCfg.MaxConcurrentChains at a
// time (§4.I, §5 "per-chain random number generators are seeded from a
// controller-level seed composed with the chain index"). It returns once
// every chain has finished or ctx is canceled; a canceled run stops
// launching new chains but lets in-flight chains return their partial
// state rather than discarding it.
func Run(ctx context.Context, rc *runcontext.RunContext, runCfg config.RunConfig, gt map[string]*likelihood.GroundTruth, log *obslog.Logger, sink ChainArtifactSink) ([]ChainResult, error) {
	nslots := rc.Scenario.NSlots
	if nslots < 1 {
		nslots = 1
	}

	results := make([]ChainResult, nslots)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxInt(runCfg.MaxConcurrentChains, 1))

	for slot := 0; slot < nslots; slot++ {
		slot := slot
		g.Go(func() error {
			chainSeed := runCfg.Seed*1_000_003 + int64(slot)
			rng := rand.New(rand.NewSource(chainSeed))

			chain, err := NewChain(slot, rc, rng)
			if err != nil {
				results[slot] = ChainResult{Index: slot, Err: err}
				return err
			}

			iterations := rc.Scenario.Inference.IterationsPerSlot
			for i := 0; i < iterations; i++ {
				select {
				case <-gctx.Done():
					results[slot] = chainResultOf(chain, gctx.Err())
					return gctx.Err()
				default:
				}

				outcome, err := chain.Step(rc, gt, runCfg, chainSeed, rng, log)
				if err != nil {
					results[slot] = chainResultOf(chain, err)
					return err
				}
				if sink != nil {
					sink(slot, i, outcome)
				}
			}

			results[slot] = chainResultOf(chain, nil)
			return nil
		})
	}

	err := g.Wait()
	return results, err
}

func chainResultOf(c *ChainState, err error) ChainResult {
	return ChainResult{
		Index:               c.Index,
		AcceptedIterations:  c.AcceptedIterations,
		TotalIterations:     c.TotalIterations,
		Final:               c.Current,
		Err:                 err,
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
