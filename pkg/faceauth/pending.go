package faceauth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/teslashibe/go-faceauth/pkg/authapi"
)

// Pending is an armed capture request. It settles exactly once, with
// the auth result or an error.
type Pending struct {
	id     string
	mode   Mode
	fields map[string]any
	armed  time.Time

	// withdraw disarms the request if it has not been captured yet and
	// reports whether it did.
	withdraw func(*Pending, error) bool

	once   sync.Once
	done   chan struct{}
	result *authapi.Result
	err    error
}

func newPending(mode Mode, fields map[string]any) *Pending {
	return &Pending{
		id:     uuid.NewString(),
		mode:   mode,
		fields: fields,
		armed:  time.Now(),
		done:   make(chan struct{}),
	}
}

// ID returns the request identifier used in logs and the audit trail.
func (p *Pending) ID() string { return p.id }

// Mode returns whether this is a login or signup request.
func (p *Pending) Mode() Mode { return p.mode }

// Done is closed once the request has settled.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Result returns the settled outcome. It must only be called after Done
// is closed; before that it returns (nil, nil).
func (p *Pending) Result() (*authapi.Result, error) {
	select {
	case <-p.done:
		return p.result, p.err
	default:
		return nil, nil
	}
}

// settle records the outcome. Later calls are ignored.
func (p *Pending) settle(res *authapi.Result, err error) bool {
	settled := false
	p.once.Do(func() {
		p.result = res
		p.err = err
		close(p.done)
		settled = true
	})
	return settled
}

// Wait blocks until the request settles or ctx ends. If ctx ends before
// a frame was captured for the request, it is disarmed and settled with
// ctx.Err(). A send already in flight is not aborted: Wait returns an
// error wrapping both ErrResultPending and ctx.Err(), and the outcome is
// still recorded on the Pending.
func (p *Pending) Wait(ctx context.Context) (*authapi.Result, error) {
	select {
	case <-p.done:
		return p.result, p.err
	case <-ctx.Done():
		withdrawn := true
		if p.withdraw != nil {
			withdrawn = p.withdraw(p, ctx.Err())
		}
		// The send may have won the race.
		select {
		case <-p.done:
			return p.result, p.err
		default:
		}
		if !withdrawn {
			return nil, fmt.Errorf("%w: %w", ErrResultPending, ctx.Err())
		}
		return nil, ctx.Err()
	}
}
