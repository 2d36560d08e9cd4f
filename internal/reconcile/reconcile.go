// Package reconcile compares this run's signals with the persisted state
// so only new BUY/SELL decisions are reported.
package reconcile

import (
	"sort"

	"signal-systemv1/internal/model"
)

// Result is the outcome of one reconciliation.
type Result struct {
	// Changed holds the signals to report, ordered by symbol.
	Changed []model.Signal

	// Persisted is the state to write back: this run's signals in full.
	// Assets absent from this run are not carried over; see CarryForward.
	Persisted model.SignalState
}

// Reconcile reports a signal as changed when its action differs from the
// stored action for the same symbol and is not HOLD. It is a pure
// function: reconciling the persisted result again reports nothing.
func Reconcile(current, last model.SignalState) Result {
	res := Result{Persisted: current.Clone()}
	for sym, sig := range current {
		if sig.Action == model.ActionHold {
			continue
		}
		if prev, ok := last[sym]; ok && prev.SameAs(sig) {
			continue
		}
		res.Changed = append(res.Changed, sig)
	}
	sort.Slice(res.Changed, func(i, j int) bool { return res.Changed[i].Symbol < res.Changed[j].Symbol })
	return res
}

// CarryForward copies last entries into persisted for the given symbols
// when this run has no signal for them. The pipeline passes the assets it
// skipped, so a transient fetch failure neither forgets a stored BUY nor
// reports it again on the next successful run. Assets no longer configured
// are not passed and drop out of the state.
func CarryForward(persisted, last model.SignalState, skipped []string) model.SignalState {
	out := persisted.Clone()
	for _, sym := range skipped {
		if _, ok := out[sym]; ok {
			continue
		}
		if prev, ok := last[sym]; ok {
			out[sym] = prev
		}
	}
	return out
}
