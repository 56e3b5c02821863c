package engine

import (
	"context"

	"github.com/hupe1980/collabmesh/coordinator"
	"github.com/hupe1980/collabmesh/core"
)

// HookType names the submission lifecycle points hooks can attach to.
type HookType string

const (
	// HookBeforeApply runs after the permission check, before arbitration
	// and the coordinator. An error aborts the submission.
	HookBeforeApply HookType = "before_apply"

	// HookAfterApply runs after a batch mutated the document. Errors are
	// logged, never propagated: the mutation already happened.
	HookAfterApply HookType = "after_apply"

	// HookOnConflict runs when the arbiter opens a conflict. Errors are
	// logged, never propagated.
	HookOnConflict HookType = "on_conflict"

	// HookOnReject runs when the coordinator rejects a batch. Errors are
	// logged, never propagated.
	HookOnReject HookType = "on_reject"
)

// HookContext carries what is known at the hook's lifecycle point. Action
// is always set; Result, Conflict and Err depend on the hook type.
type HookContext struct {
	Action   core.Action
	Result   *coordinator.Result
	Conflict *core.Conflict
	Err      error
}

// Hook is a synchronous submission lifecycle observer.
type Hook interface {
	// Type returns the lifecycle point this hook attaches to.
	Type() HookType

	// Execute runs the hook. Only HookBeforeApply errors influence the
	// submission.
	Execute(ctx context.Context, hookCtx *HookContext) error
}

// FunctionHook wraps a plain function as a Hook.
type FunctionHook struct {
	hookType HookType
	fn       func(ctx context.Context, hookCtx *HookContext) error
}

// NewFunctionHook builds a hook of the given type from fn.
func NewFunctionHook(hookType HookType, fn func(ctx context.Context, hookCtx *HookContext) error) *FunctionHook {
	return &FunctionHook{hookType: hookType, fn: fn}
}

// Type returns the lifecycle point this hook attaches to.
func (h *FunctionHook) Type() HookType { return h.hookType }

// Execute calls the wrapped function.
func (h *FunctionHook) Execute(ctx context.Context, hookCtx *HookContext) error {
	return h.fn(ctx, hookCtx)
}

// hookSet routes hooks by type, executing them in registration order.
type hookSet struct {
	hooks map[HookType][]Hook
}

func newHookSet() *hookSet {
	return &hookSet{hooks: make(map[HookType][]Hook)}
}

func (hs *hookSet) register(h Hook) {
	hs.hooks[h.Type()] = append(hs.hooks[h.Type()], h)
}

// run executes every hook of the given type and returns the first error.
func (hs *hookSet) run(ctx context.Context, hookType HookType, hookCtx *HookContext) error {
	for _, h := range hs.hooks[hookType] {
		if err := h.Execute(ctx, hookCtx); err != nil {
			return err
		}
	}

	return nil
}
