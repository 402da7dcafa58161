// Package worker runs a function over a batch of items on a bounded number
// of goroutines.
//
// Results come back in input order, so callers can zip them with their
// inputs:
//
//	b := worker.NewBatch(func(ctx context.Context, q Query) Answer {
//	    return answer(q)
//	}, 8)
//	res := b.Run(ctx, queries)
//	for i, a := range res.Results {
//	    // a answers queries[i]
//	}
package worker
