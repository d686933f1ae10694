package scope

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Recorder polls one input at a fixed cadence, building a Recording.  It
// rides the session's single-operation lock like any other caller, so a
// recording and ad-hoc captures interleave cleanly between readings.
type Recorder struct {
	// Scope is the session to read through
	Scope *Scope

	// Input is the physical input to poll
	Input Input

	// Interval is the time between readings; 1s if zero
	Interval time.Duration
}

// Record polls until the duration elapses or ctx is canceled.  On error
// the readings collected so far are returned alongside it.
func (r Recorder) Record(ctx context.Context, duration time.Duration) (Recording, error) {
	interval := r.Interval
	if interval <= 0 {
		interval = time.Second
	}
	lim := rate.NewLimiter(rate.Every(interval), 1)
	rec := Recording{Input: r.Input, Start: time.Now()}
	deadline := rec.Start.Add(duration)
	for time.Now().Before(deadline) {
		if err := lim.Wait(ctx); err != nil {
			return rec, err
		}
		v, err := r.Scope.ReadVoltage(r.Input)
		if err != nil {
			return rec, err
		}
		rec.Offsets = append(rec.Offsets, time.Since(rec.Start).Seconds())
		rec.Values = append(rec.Values, v)
	}
	return rec, nil
}
