// Package flow implements the per-request workflow sequencer that drives the
// administrative pipelines. A Sequencer is bound to exactly one request: the
// caller registers its named steps, runs the sequencer from an initial step,
// and receives either the accumulated Outcome (the response terminal) or an
// error (the exception terminal), never both and never neither.
package flow

import (
	"context"
	"fmt"

	"github.com/pitabwire/karani/model"
)

// Handler performs one named step. It may read and mutate the sequencer's
// Outcome and call collaborators, and must finish by returning exactly one
// transition: Goto to hand off to the next step, Respond to complete the run
// with the current Outcome, or Fail to abort with a system error.
type Handler func(ctx context.Context) Next

type nextKind int

const (
	nextGoto nextKind = iota
	nextRespond
	nextFail
)

// Next is the tagged transition value returned by a step handler.
type Next struct {
	kind nextKind
	step string
	err  error
}

// Goto transitions to the named step.
func Goto(step string) Next {
	return Next{kind: nextGoto, step: step}
}

// Respond completes the run through the response terminal. The Outcome is
// ready to render regardless of whether it carries validation errors.
func Respond() Next {
	return Next{kind: nextRespond}
}

// Fail aborts the run through the exception terminal with a system error.
// Validation failures belong on the Outcome, not here.
func Fail(err error) Next {
	return Next{kind: nextFail, err: err}
}

// Sequencer owns one Outcome and a step table for a single run. It is not
// safe for concurrent use and must not be reused across requests.
type Sequencer struct {
	outcome *model.Outcome
	steps   map[string]Handler
	ran     bool
}

// New returns a Sequencer with a fresh Outcome.
func New() *Sequencer {
	return &Sequencer{
		outcome: model.NewOutcome(),
		steps:   make(map[string]Handler),
	}
}

// Outcome returns the accumulator shared by this run's steps.
func (s *Sequencer) Outcome() *model.Outcome {
	return s.outcome
}

// On registers the handler for a named step. Registering the same name again
// replaces the previous handler; the full step graph is expected to be in
// place before Run starts.
func (s *Sequencer) On(name string, h Handler) {
	s.steps[name] = h
}

// Run drives the sequencer from the start step until a terminal transition.
// A Goto to an unregistered step, re-entry into an already-executed step, or
// a second Run on the same sequencer is a wiring defect and fails fast with
// an internal error rather than being recovered.
func (s *Sequencer) Run(ctx context.Context, start string) (*model.Outcome, error) {
	if s.ran {
		return nil, fmt.Errorf("flow: sequencer reused: %w", model.NewInternalError())
	}
	s.ran = true

	visited := make(map[string]bool, len(s.steps))
	current := start
	for {
		h, ok := s.steps[current]
		if !ok {
			return nil, fmt.Errorf("flow: step %q not registered: %w", current, model.NewInternalError())
		}
		if visited[current] {
			return nil, fmt.Errorf("flow: step %q re-entered: %w", current, model.NewInternalError())
		}
		visited[current] = true

		next := h(ctx)
		switch next.kind {
		case nextRespond:
			return s.outcome, nil
		case nextFail:
			if next.err == nil {
				return nil, fmt.Errorf("flow: step %q failed without error: %w", current, model.NewInternalError())
			}
			return nil, next.err
		default:
			current = next.step
		}
	}
}
