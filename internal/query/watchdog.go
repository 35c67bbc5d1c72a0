// ABOUTME: Liveness supervision for the event feed: heartbeat watchdog plus
// ABOUTME: overall deadline, converting silent stalls into explicit errors.

package query

import (
	"context"
	"time"

	"github.com/christopher-kapic/kinetic-context/internal/opencode"
)

// guardedEvent is one item from a supervised feed: either an event or the
// terminal supervision error.
type guardedEvent struct {
	event opencode.Event
	err   error
}

// guardEvents relays events from in, enforcing two independent bounds: no
// single silence may exceed window (the heartbeat resets on every event,
// not only text), and the whole relay may not outlive overall.
//
// The returned channel closes after the input closes, a bound fires, or ctx
// is cancelled. When a bound fires its error is the final element.
func guardEvents(ctx context.Context, in <-chan opencode.Event, window, overall time.Duration, sessionID string) <-chan guardedEvent {
	out := make(chan guardedEvent)

	go func() {
		defer close(out)

		heartbeat := time.NewTimer(window)
		defer heartbeat.Stop()
		deadline := time.NewTimer(overall)
		defer deadline.Stop()

		for {
			select {
			case evt, ok := <-in:
				if !ok {
					return
				}
				if !heartbeat.Stop() {
					select {
					case <-heartbeat.C:
					default:
					}
				}
				heartbeat.Reset(window)

				select {
				case out <- guardedEvent{event: evt}:
				case <-ctx.Done():
					return
				}

			case <-heartbeat.C:
				select {
				case out <- guardedEvent{err: &StreamStallError{SessionID: sessionID, Window: window}}:
				case <-ctx.Done():
				}
				return

			case <-deadline.C:
				select {
				case out <- guardedEvent{err: &OverallTimeoutError{SessionID: sessionID, Timeout: overall}}:
				case <-ctx.Done():
				}
				return

			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}
