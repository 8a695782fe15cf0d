// Package engine evaluates aggregate-program rounds. A Round binds a
// device's trace stack, context and previous export to a fresh
// outbound export, and the exchange primitives (Old, Nbr, Share,
// Branch) read and write through it.
package engine

import (
	"errors"
	"fmt"
	"math/rand"

	"fieldnet/internal/exchange"
	"fieldnet/internal/model"
	"fieldnet/internal/trace"
)

// Program is one aggregate program: a single function evaluated
// identically on every device, every round.
type Program func(r *Round) error

// Round is the evaluation state of one device for one round.
type Round struct {
	UID     model.DeviceID
	Time    model.Time
	Storage *model.Storage
	RNG     *rand.Rand

	stack *trace.Stack
	ctx   *exchange.Context
	prev  *exchange.Export
	out   *exchange.Export
}

func NewRound(uid model.DeviceID, t model.Time, stack *trace.Stack, ctx *exchange.Context, prev *exchange.Export, storage *model.Storage, rng *rand.Rand) *Round {
	return &Round{
		UID:     uid,
		Time:    t,
		Storage: storage,
		RNG:     rng,
		stack:   stack,
		ctx:     ctx,
		prev:    prev,
		out:     exchange.NewExport(),
	}
}

// Context exposes the neighbourhood view, for callers that inspect it
// outside the exchange primitives.
func (r *Round) Context() *exchange.Context { return r.ctx }

// roundFailure aborts the current round from inside a primitive; the
// driver converts it into a round error.
type roundFailure struct{ err error }

func (r *Round) fail(err error) {
	panic(roundFailure{err: err})
}

// Execute runs one round of p on r. The returned export is sealed and
// becomes the device's outbound message. Any failure inside the round
// aborts only this round: the error is reported, the previous export
// stays in force, and the device is rescheduled normally. Invariant
// violations are the exception; they propagate and abort the net.
func Execute(r *Round, p Program) (out *exchange.Export, err error) {
	defer func() {
		rec := recover()
		if rec == nil {
			return
		}
		r.stack.Reset()
		switch v := rec.(type) {
		case roundFailure:
			err = fmt.Errorf("%w: %w", model.ErrRound, v.err)
		case error:
			if errors.Is(v, model.ErrInvariant) {
				err = v
				return
			}
			err = fmt.Errorf("%w: %w", model.ErrRound, v)
		default:
			err = fmt.Errorf("%w: panic: %v", model.ErrRound, v)
		}
	}()

	r.stack.Reset()
	if perr := p(r); perr != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrRound, perr)
	}
	if r.stack.Depth() != 0 {
		return nil, model.Invariantf("program left %d trace frames open", r.stack.Depth())
	}
	r.out.Seal()
	return r.out, nil
}
