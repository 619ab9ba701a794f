package fsm

import (
	"context"
	"errors"

	loopfsm "github.com/looplab/fsm"

	"github.com/neomorfeo/orgstate/internal/domain"
)

// Compile-time check: Validator implements domain.TransitionGuard.
var _ domain.TransitionGuard = (*Validator)(nil)

// eventsByKind converts domain.Transitions into looplab/fsm EventDesc format,
// one machine definition per kind. Each target status is an event whose
// sources are all of its enumerated predecessors, so asking the machine to
// fire event "Archived" answers "may this resource become Archived".
var eventsByKind = buildEvents()

func buildEvents() map[domain.Kind][]loopfsm.EventDesc {
	type key struct {
		kind domain.Kind
		dst  domain.Status
	}
	grouped := make(map[key][]string)
	order := make([]key, 0)

	for _, t := range domain.Transitions {
		k := key{kind: t.Kind, dst: t.Dst}
		if _, exists := grouped[k]; !exists {
			order = append(order, k)
		}
		grouped[k] = append(grouped[k], string(t.Src))
	}

	out := make(map[domain.Kind][]loopfsm.EventDesc)
	for _, k := range order {
		out[k.kind] = append(out[k.kind], loopfsm.EventDesc{
			Name: string(k.dst),
			Src:  grouped[k],
			Dst:  string(k.dst),
		})
	}
	return out
}

// Validator implements domain.TransitionGuard using looplab/fsm.
// It creates a short-lived FSM instance per Check call, initialized with
// the resource's current state, because looplab/fsm tracks state internally.
type Validator struct{}

// New creates a new FSM-backed transition guard.
func New() *Validator {
	return &Validator{}
}

// Check returns nil when the resource may move from current to target.
// Otherwise it returns a *domain.TransitionError: NoOp for current == target,
// Reason set when a guard refused an enumerated transition.
func (v *Validator) Check(ctx context.Context, kind domain.Kind, current, target domain.Status, gctx domain.GuardContext) error {
	denied := &domain.TransitionError{Kind: kind, Current: current, Target: target}

	if current == target {
		denied.NoOp = true
		return denied
	}

	events, ok := eventsByKind[kind]
	if !ok {
		return denied
	}

	callbacks := loopfsm.Callbacks{
		"before_event": func(_ context.Context, e *loopfsm.Event) {
			rule, found := domain.FindTransition(kind, domain.Status(e.Src), domain.Status(e.Dst))
			if !found || rule.Guard == nil {
				return
			}
			if reason := rule.Guard(gctx); reason != "" {
				denied.Reason = reason
				e.Cancel(denied)
			}
		},
	}

	machine := loopfsm.NewFSM(string(current), events, callbacks)

	if err := machine.Event(ctx, string(target)); err != nil {
		var (
			invalidEvent loopfsm.InvalidEventError
			unknownEvent loopfsm.UnknownEventError
			noTransition loopfsm.NoTransitionError
			canceled     loopfsm.CanceledError
		)
		switch {
		case errors.As(err, &canceled):
			return denied
		case errors.As(err, &invalidEvent), errors.As(err, &unknownEvent), errors.As(err, &noTransition):
			return denied
		}
		return err
	}

	return nil
}
