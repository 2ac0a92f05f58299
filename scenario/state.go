package scenario

import (
	"context"

	"github.com/cucumber/godog"

	"github.com/hazyhaar/designref/verify"
)

type stateKey struct{}

// state is per-scenario and travels in the godog step context.
type state struct {
	name    string
	tags    map[string]bool
	results []*verify.Result
}

func newState(sc *godog.Scenario) *state {
	st := &state{name: sc.Name, tags: make(map[string]bool, len(sc.Tags))}
	for _, t := range sc.Tags {
		st.tags[t.Name] = true
	}
	return st
}

func (st *state) has(tag string) bool { return st.tags[tag] }

func withState(ctx context.Context, st *state) context.Context {
	return context.WithValue(ctx, stateKey{}, st)
}

func stateFrom(ctx context.Context) *state {
	st, _ := ctx.Value(stateKey{}).(*state)
	return st
}

// Results returns the verification results recorded so far in the
// scenario carried by ctx.
func Results(ctx context.Context) []*verify.Result {
	if st := stateFrom(ctx); st != nil {
		return st.results
	}
	return nil
}
