package inference

import (
	"math"
	"math/rand"

	"github.com/HopkinsIDD/flepimop-go/pkg/config"
	"github.com/HopkinsIDD/flepimop-go/pkg/likelihood"
	"github.com/HopkinsIDD/flepimop-go/pkg/obslog"
	"github.com/HopkinsIDD/flepimop-go/pkg/perr"
	"github.com/HopkinsIDD/flepimop-go/pkg/runcontext"
)

// ChainState is one chain's accumulated accept/reject state across
// iterations (§4.I): the last-accepted proposal, its scored log-likelihoods,
// and the consecutive-integration-failure counter that escalates to fatal.
type ChainState struct {
	Index int

	Current         *Vector
	CurrentPerSubpop []float64
	CurrentTotal    float64

	consecutiveFailures int
	AcceptedIterations  int
	TotalIterations     int
}

// IterationOutcome is what one chain iteration did, for logging and artifact
// persistence.
type IterationOutcome struct {
	Result          *IterationResult
	ChimericAccepts []bool // per subpop
	GlobalAccept    bool
	Failed          bool // integration failed this iteration (rejected, not fatal)
}

// NewChain seeds a chain's starting state from scenario's declared priors.
func NewChain(index int, rc *runcontext.RunContext, rng *rand.Rand) (*ChainState, error) {
	v, err := InitialVector(rc.Scenario, rc.Subpops, rng)
	if err != nil {
		return nil, err
	}
	return &ChainState{Index: index, Current: v}, nil
}

// Step runs one perturb/evaluate/accept cycle (§4.I steps 1-3): propose,
// score, accept per-subpopulation using each subpopulation's own
// log-likelihood delta (chimeric accept), then accept globally using the
// pooled total (global accept). A proposal whose integration fails scores
// -Inf and is always rejected; ConsecutiveFailureLimit such failures in a
// row escalate to a fatal error for the whole chain.
func (c *ChainState) Step(rc *runcontext.RunContext, gt map[string]*likelihood.GroundTruth, runCfg config.RunConfig, chainSeed int64, rng *rand.Rand, log *obslog.Logger) (*IterationOutcome, error) {
	c.TotalIterations++
	iterationLog := log.WithChain(c.Index, c.TotalIterations)

	proposal, err := Perturb(rc.Scenario, c.Current, rng)
	if err != nil {
		return nil, err
	}

	result, err := RunIteration(rc, proposal, gt, chainSeed, c.TotalIterations, rng)
	if _, isIntegration := err.(*perr.IntegrationError); isIntegration {
		c.consecutiveFailures++
		iterationLog.Warn("integration failed, rejecting proposal", "consecutive_failures", c.consecutiveFailures)
		if c.consecutiveFailures >= runCfg.ConsecutiveFailureLimit {
			return nil, err
		}
		return &IterationOutcome{Failed: true}, nil
	}
	if err != nil {
		return nil, err
	}
	c.consecutiveFailures = 0

	if c.CurrentPerSubpop == nil {
		c.CurrentPerSubpop = result.PerSubpopOrZero(len(rc.Subpops))
		c.CurrentTotal = math.Inf(-1)
	}

	accepts := make([]bool, len(rc.Subpops))
	anyAccepted := false
	for s := range accepts {
		delta := result.PerSubpopOrZero(len(rc.Subpops))[s] - c.CurrentPerSubpop[s]
		if acceptMetropolis(delta, rng) {
			accepts[s] = true
			anyAccepted = true
		}
	}

	globalDelta := result.TotalLogLik - c.CurrentTotal
	globalAccept := acceptMetropolis(globalDelta, rng)

	if globalAccept {
		c.Current = proposal
		c.CurrentTotal = result.TotalLogLik
		c.CurrentPerSubpop = result.PerSubpopOrZero(len(rc.Subpops))
		c.AcceptedIterations++
		if runCfg.ResetChimericOnAccept {
			accepts = allTrue(len(accepts))
		}
	} else if anyAccepted {
		// Chimeric accept without a global accept only updates the modifier
		// block's per-subpop centers, per §4.I: plain parameters have no
		// chimeric axis to diverge on, so only c.Current.Modifiers moves.
		mergeChimeric(c.Current, proposal, accepts)
		for s, accepted := range accepts {
			if accepted {
				c.CurrentPerSubpop[s] = result.PerSubpopOrZero(len(rc.Subpops))[s]
			}
		}
	}

	iterationLog.Debug("iteration scored", "total_loglik", result.TotalLogLik, "global_accept", globalAccept)

	return &IterationOutcome{Result: result, ChimericAccepts: accepts, GlobalAccept: globalAccept}, nil
}

// PerSubpopOrZero pads or truncates r.PerSubpopLogLik to n entries, defensive
// against a statistic configured without full subpop coverage.
func (r *IterationResult) PerSubpopOrZero(n int) []float64 {
	if len(r.PerSubpopLogLik) == n {
		return r.PerSubpopLogLik
	}
	out := make([]float64, n)
	copy(out, r.PerSubpopLogLik)
	return out
}

func acceptMetropolis(logLikDelta float64, rng *rand.Rand) bool {
	if logLikDelta >= 0 {
		return true
	}
	return math.Log(rng.Float64()) < logLikDelta
}

func allTrue(n int) []bool {
	out := make([]bool, n)
	for i := range out {
		out[i] = true
	}
	return out
}

// mergeChimeric copies proposal's per-subpop modifier centers into current
// wherever accepts[s] is true, leaving the rest of current untouched.
func mergeChimeric(current, proposal *Vector, accepts []bool) {
	for name, vals := range proposal.Modifiers {
		cur, ok := current.Modifiers[name]
		if !ok {
			continue
		}
		for s, accepted := range accepts {
			if accepted && s < len(vals) && s < len(cur) {
				cur[s] = vals[s]
			}
		}
	}
}
