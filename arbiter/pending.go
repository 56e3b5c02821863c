package arbiter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/collabmesh/core"
)

// settleFunc is invoked exactly once when a suspension ends, whether by
// explicit resolution, cancellation, or timeout.
type settleFunc func(conflict *core.Conflict, resolvedBy string, option core.ArbitrationOption, timedOut bool)

// settled carries the terminal outcome of a suspension.
type settled struct {
	option     core.ArbitrationOption
	resolvedBy string
	timedOut   bool
}

// Pending is the handle to a conflict suspended on a human decision.
// Exactly one of Resolve, Cancel, or the timeout settles it; all later
// attempts fail with core.ErrConflictUnresolved. The timeout fail-safe is
// cancellation of the agent, never silent continuation.
type Pending struct {
	conflict *core.Conflict
	timer    *time.Timer
	settle   settleFunc

	once    sync.Once
	done    chan struct{}
	outcome settled
}

func newPending(conflict *core.Conflict, timeout time.Duration, settle settleFunc) *Pending {
	p := &Pending{
		conflict: conflict,
		settle:   settle,
		done:     make(chan struct{}),
	}

	p.timer = time.AfterFunc(timeout, func() {
		p.fire("", core.OptionCancelAgent, true)
	})

	return p
}

// Conflict returns the suspended conflict.
func (p *Pending) Conflict() *core.Conflict { return p.conflict }

// Options lists the exactly three choices offered to the human.
func (p *Pending) Options() []core.ArbitrationOption {
	return []core.ArbitrationOption{
		core.OptionContinueAgent,
		core.OptionSwitchToHuman,
		core.OptionCancelAgent,
	}
}

// Resolve settles the suspension with the human's choice. It fails when
// the option is unknown or the conflict already settled.
func (p *Pending) Resolve(resolvedBy string, option core.ArbitrationOption) error {
	switch option {
	case core.OptionContinueAgent, core.OptionSwitchToHuman, core.OptionCancelAgent:
	default:
		return fmt.Errorf("unknown arbitration option %q: %w", option, core.ErrConflictUnresolved)
	}

	if !p.fire(resolvedBy, option, false) {
		return fmt.Errorf("conflict %s already settled: %w", p.conflict.ID, core.ErrConflictUnresolved)
	}

	return nil
}

// Cancel settles the suspension as CancelAgent. It is always permitted
// and idempotent.
func (p *Pending) Cancel(resolvedBy string) {
	p.fire(resolvedBy, core.OptionCancelAgent, false)
}

// Await blocks until the suspension settles or ctx is done. A timeout
// settlement surfaces core.ErrConflictUnresolved alongside the fail-safe
// option.
func (p *Pending) Await(ctx context.Context) (core.ArbitrationOption, error) {
	select {
	case <-p.done:
	case <-ctx.Done():
		return "", ctx.Err()
	}

	if p.outcome.timedOut {
		return p.outcome.option, fmt.Errorf("arbitration timed out for conflict %s: %w", p.conflict.ID, core.ErrConflictUnresolved)
	}

	return p.outcome.option, nil
}

// fire performs the single-shot settlement. It reports whether this call
// was the one that settled the suspension.
func (p *Pending) fire(resolvedBy string, option core.ArbitrationOption, timedOut bool) bool {
	won := false

	p.once.Do(func() {
		won = true

		p.timer.Stop()
		p.outcome = settled{option: option, resolvedBy: resolvedBy, timedOut: timedOut}
		close(p.done)

		p.settle(p.conflict, resolvedBy, option, timedOut)
	})

	return won
}
