package dflow

import (
	"math/rand"
	"time"
)

// Backoff computes the delay before retry attempt i (0-indexed): exponential
// in base, plus up to 50% random jitter. Used by cmd/dflow's
// retry-until-success driver to pace repeated Workflow.Execute calls —
// the replay engine already makes each individual attempt deterministic,
// so this is purely about not hammering a failing sandbox or backend in a
// tight retry loop between attempts.
func Backoff(base time.Duration, i int) time.Duration {
	exp := base * (1 << i)
	jitter := time.Duration(rand.Int63n(int64(exp)/2 + 1))
	return exp + jitter
}
