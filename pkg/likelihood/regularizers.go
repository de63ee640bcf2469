package likelihood

// forecastBonus reweights the last N buckets of an already-scored
// log-likelihood series (§4.H "forecast penalizes the last N buckets
// extra"): params["last_n"] buckets are rescaled by params["weight"], so a
// weight above 1 sharpens the pull toward matching the most recent data and
// a weight below 1 softens it. Returns the delta to add to the unweighted
// total, not the rescaled total itself.
func forecastBonus(bucketLLs []float64, params map[string]float64) float64 {
	lastN := int(paramOr(params, "last_n", 0))
	weight := paramOr(params, "weight", 1.0)
	if lastN <= 0 || weight == 1.0 || len(bucketLLs) == 0 {
		return 0
	}
	if lastN > len(bucketLLs) {
		lastN = len(bucketLLs)
	}
	start := len(bucketLLs) - lastN
	delta := 0.0
	for i := start; i < len(bucketLLs); i++ {
		delta += bucketLLs[i] * (weight - 1)
	}
	return delta
}

// allsubpopPenalty penalizes deviation between the subpop-pooled simulated
// series and the subpop-pooled data series (§4.H "allsubpop penalizes
// deviation between the pooled series and the sum of subpop series"),
// returning a Gaussian-shaped penalty term (not a named likelihood
// distribution — the spec only sketches the intent, so this is a
// documented design decision) weighted by params["weight"] and scaled by
// params["sd"] (default 1).
//
// Buckets are aligned by index across subpops; subpops whose per-subpop
// skipna dropped a different number of buckets are truncated to the
// shortest common length so every included bucket has a value from every
// subpop.
func allsubpopPenalty(simBuckets, dataBuckets [][]float64, params map[string]float64) float64 {
	if len(simBuckets) == 0 {
		return 0
	}
	minLen := len(simBuckets[0])
	for _, b := range simBuckets {
		if len(b) < minLen {
			minLen = len(b)
		}
	}
	if minLen == 0 {
		return 0
	}

	sd := paramOr(params, "sd", 1.0)
	weight := paramOr(params, "weight", 1.0)

	total := 0.0
	for i := 0; i < minLen; i++ {
		pooledSim, pooledData := 0.0, 0.0
		for s := range simBuckets {
			pooledSim += simBuckets[s][i]
			pooledData += dataBuckets[s][i]
		}
		total += weight * normalLogPdf(pooledData, pooledSim, sd)
	}
	return total
}
