// Package race implements the race coordinator (C3): two independent
// arms run concurrently and the coordinator commits to the first one
// whose output validates, cancelling the loser's further consumption.
package race

import (
	"context"
	"fmt"
	"time"

	"chatcoach/internal/domain"
)

// Arm is one competing operation. It receives a context already scoped
// to its own per-arm deadline.
type Arm struct {
	Label string
	Run   func(ctx context.Context) (string, error)
}

// Validate reports whether a raw arm output is usable. Callers typically
// supply a C6 parser/validator here.
type Validate func(raw string) bool

// Outcome is notified once per arm as its disposition is settled: "winner"
// for the arm whose output Race returned, "loser" for the other (invalid,
// errored, or simply second to validate). Callers typically adapt this to
// a collab.TelemetrySink. A nil Outcome is a valid no-op.
type Outcome func(label, disposition string, err error)

type result struct {
	label string
	raw   string
	err   error
	valid bool
}

func notify(onOutcome Outcome, label, disposition string, err error) {
	if onOutcome != nil {
		onOutcome(label, disposition, err)
	}
}

func loserErr(r result) error {
	if r.err != nil {
		return r.err
	}
	if !r.valid {
		return fmt.Errorf("%s: output failed validation", r.label)
	}
	return nil
}

// Race runs armA and armB concurrently, each under its own per-arm
// deadline (when armTimeout > 0), and returns the label and raw output of
// the first arm whose result satisfies validate. The loser is not waited
// on by the return path, but its context is cancelled as soon as Race
// returns; if onOutcome is non-nil, a detached goroutine reports its
// eventual disposition once it arrives (bounded by ctx). If neither arm
// validates, Race returns the error carried by the last arm to finish.
func Race(ctx context.Context, armA, armB Arm, validate Validate, armTimeout time.Duration, onOutcome Outcome) (label string, raw string, err error) {
	resultCh := make(chan result, 2)
	raceCtx, cancelRace := context.WithCancel(ctx)
	defer cancelRace()

	runArm := func(arm Arm) {
		armCtx := raceCtx
		var cancel context.CancelFunc
		if armTimeout > 0 {
			armCtx, cancel = context.WithTimeout(raceCtx, armTimeout)
			defer cancel()
		}
		out, runErr := arm.Run(armCtx)
		r := result{label: arm.Label, raw: out, err: runErr}
		if runErr == nil {
			r.valid = validate(out)
		}
		select {
		case resultCh <- r:
		case <-ctx.Done():
		}
	}

	go runArm(armA)
	go runArm(armB)

	var lastErr error
	var lastLabel string
	received := 0

	for received < 2 {
		select {
		case r := <-resultCh:
			received++
			if r.err == nil && r.valid {
				notify(onOutcome, r.label, "winner", nil)
				if received < 2 {
					go func() {
						select {
						case loser := <-resultCh:
							notify(onOutcome, loser.label, "loser", loserErr(loser))
						case <-ctx.Done():
						}
					}()
				}
				return r.label, r.raw, nil
			}
			lastErr = loserErr(r)
			lastLabel = r.label
			notify(onOutcome, r.label, "loser", lastErr)
		case <-ctx.Done():
			return "", "", domain.Wrap(domain.KindTimeout, "race.Race", "overall deadline expired", ctx.Err())
		}
	}

	return "", "", domain.Wrap(domain.KindRaceBothArmsInvalid, "race.Race",
		fmt.Sprintf("both arms invalid, last failure from %s", lastLabel), lastErr)
}
