package link

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Call is the future returned by Go. It completes exactly once: with the
// peer's reply, with ErrTimeout, or with ErrConnectionLost. There is no
// per-call cancel; closing the connection cancels every pending call.
type Call struct {
	ID          int64
	Method      string
	SubmittedAt time.Time
	Result      json.RawMessage
	Err         error
	Done        chan *Call

	timer *time.Timer
}

func newCall(method string) *Call {
	return &Call{
		Method:      method,
		SubmittedAt: time.Now(),
		Done:        make(chan *Call, 1),
	}
}

// failedCall builds an already-completed call, used for fail-fast paths.
func failedCall(method string, err error) *Call {
	call := newCall(method)
	call.Err = err
	call.Done <- call
	return call
}

// finish completes the call. Callers must guarantee single completion by
// removing the call from the pending table first.
func (c *Call) finish(result json.RawMessage, err error) {
	if c.timer != nil {
		c.timer.Stop()
	}
	c.Result = result
	c.Err = err
	select {
	case c.Done <- c:
	default:
	}
}

// Wait blocks until the call completes or ctx is done, decoding the result
// into out when provided. Abandoning via ctx does not cancel the call on the
// wire; it is still resolved (into the void) by reply, timeout, or loss.
func (c *Call) Wait(ctx context.Context, out any) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case done := <-c.Done:
		if done.Err != nil {
			return done.Err
		}
		if out != nil && len(done.Result) > 0 {
			if err := json.Unmarshal(done.Result, out); err != nil {
				return fmt.Errorf("failed to decode %s result: %w", c.Method, err)
			}
		}
		return nil
	}
}
