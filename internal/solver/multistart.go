package solver

import (
	"context"
	"time"
)

// SolveMultiStart runs cfg.Starts independent solves with distinct seeds
// and returns the best result. Workers share nothing mutable, so no
// locking is needed; ranking prefers fewer unassigned stops, then lower
// cost. Progress callbacks, when set, fire only for the first worker to
// keep the event stream single-voiced.
func SolveMultiStart(ctx context.Context, p *Problem, cfg Config, onProgress func(ProgressEvent)) (*Result, error) {
	starts := cfg.Starts
	if starts <= 1 {
		return solve(ctx, p, cfg, onProgress)
	}
	// Fail fast once, before fanning out.
	if err := Validate(p); err != nil {
		return nil, err
	}

	baseSeed := cfg.Seed
	if baseSeed == 0 {
		baseSeed = time.Now().UnixNano()
	}

	type outcome struct {
		res *Result
		err error
	}
	results := make(chan outcome, starts)
	for w := 0; w < starts; w++ {
		wcfg := cfg
		wcfg.Starts = 1
		wcfg.Seed = baseSeed + int64(w)
		var cb func(ProgressEvent)
		if w == 0 {
			cb = onProgress
		}
		go func() {
			res, err := solve(ctx, p, wcfg, cb)
			results <- outcome{res: res, err: err}
		}()
	}

	var best *Result
	var firstErr error
	for w := 0; w < starts; w++ {
		o := <-results
		if o.err != nil {
			if firstErr == nil {
				firstErr = o.err
			}
			continue
		}
		if best == nil || better(o.res, best) {
			best = o.res
		}
	}
	if best == nil {
		return nil, firstErr
	}
	return best, nil
}

func better(a, b *Result) bool {
	if len(a.Solution.Unassigned) != len(b.Solution.Unassigned) {
		return len(a.Solution.Unassigned) < len(b.Solution.Unassigned)
	}
	return a.Summary.TotalCost < b.Summary.TotalCost
}
