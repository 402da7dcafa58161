package validation

import (
	"context"

	"github.com/onc-healthit/onc-certification-g10-test-kit-sub001/worker"
)

// Query is one membership question. Empty strings mean absent.
type Query struct {
	ID       string `json:"id,omitempty"`
	Code     string `json:"code"`
	System   string `json:"system,omitempty"`
	ValueSet string `json:"url,omitempty"`
}

// Answer is the outcome of a Query.
type Answer struct {
	ID     string `json:"id,omitempty"`
	Result bool   `json:"result"`
	Error  string `json:"error,omitempty"`

	// Err is the error behind Error, for errors.Is checks.
	Err error `json:"-"`

	answered bool
}

// ValidateBatch answers queries on up to workers goroutines, in input
// order. Queries not reached before ctx is canceled carry ctx.Err().
func (v *Validator) ValidateBatch(ctx context.Context, queries []Query, workers int) []Answer {
	b := worker.NewBatch(func(_ context.Context, q Query) Answer {
		a := Answer{ID: q.ID, answered: true}
		a.Result, a.Err = v.Validate(q.Code, q.System, q.ValueSet)
		if a.Err != nil {
			a.Error = a.Err.Error()
		}
		return a
	}, workers)

	res := b.Run(ctx, queries)
	if res.Completed < len(queries) {
		for i := range res.Results {
			if !res.Results[i].answered {
				res.Results[i] = Answer{ID: queries[i].ID, Err: ctx.Err(), Error: ctx.Err().Error()}
			}
		}
	}
	return res.Results
}
