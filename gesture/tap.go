package gesture

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrPermission reports that the OS refused the low-level input tap
// (missing accessibility/input-group permission). It is a persistent,
// user-visible state: the supervisor keeps retrying but never crashes.
var ErrPermission = errors.New("input tap permission denied")

// Tap delivers raw key events from the OS. Install starts delivery to
// feed on the tap's own goroutine; Uninstall stops it.
type Tap interface {
	Install(feed func(RawEvent)) error
	Uninstall()
}

const (
	supervisorBaseDelay  = 500 * time.Millisecond
	supervisorMaxDelay   = 30 * time.Second
	supervisorMaxRetries = 8
)

// Supervisor installs the tap with capped exponential backoff,
// independent of session state. Transient failures are retried up to a
// bound; permission denial is retried indefinitely at the capped
// interval so that granting the permission recovers the daemon without
// a restart.
type Supervisor struct {
	tap  Tap
	feed func(RawEvent)

	// OnError, when set, observes every failed install attempt.
	OnError func(error)

	baseDelay  time.Duration
	maxDelay   time.Duration
	maxRetries int
}

func NewSupervisor(tap Tap, feed func(RawEvent)) *Supervisor {
	return &Supervisor{
		tap:        tap,
		feed:       feed,
		baseDelay:  supervisorBaseDelay,
		maxDelay:   supervisorMaxDelay,
		maxRetries: supervisorMaxRetries,
	}
}

// Run blocks until the tap is installed, the retry budget for
// transient errors is exhausted, or ctx is cancelled. On success the
// tap stays installed until ctx is cancelled, at which point it is
// uninstalled.
func (s *Supervisor) Run(ctx context.Context) error {
	delay := s.baseDelay
	attempts := 0
	for {
		err := s.tap.Install(s.feed)
		if err == nil {
			<-ctx.Done()
			s.tap.Uninstall()
			return nil
		}
		if s.OnError != nil {
			s.OnError(err)
		}
		if !errors.Is(err, ErrPermission) {
			attempts++
			if attempts >= s.maxRetries {
				return fmt.Errorf("input tap failed after %d attempts: %w", attempts, err)
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > s.maxDelay {
			delay = s.maxDelay
		}
	}
}
