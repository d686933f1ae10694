package scope

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"
)

func TestRecorderCollects(t *testing.T) {
	s := New(dcSim(0.7), DefaultCalibration())
	r := Recorder{Scope: s, Input: AN8, Interval: 5 * time.Millisecond}
	rec, err := r.Record(context.Background(), 50*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Input != AN8 {
		t.Errorf("expected the recording to carry its input, got %s", rec.Input)
	}
	if len(rec.Values) < 5 || len(rec.Values) > 15 {
		t.Fatalf("expected roughly 10 readings over 50 ms at 5 ms cadence, got %d", len(rec.Values))
	}
	if len(rec.Offsets) != len(rec.Values) {
		t.Fatalf("offsets and values disagree: %d vs %d", len(rec.Offsets), len(rec.Values))
	}
	for i, v := range rec.Values {
		if math.Abs(v-0.7) > 0.002 {
			t.Errorf("reading %d: expected ~0.7 got %g", i, v)
		}
	}
	for i := 1; i < len(rec.Offsets); i++ {
		if rec.Offsets[i] < rec.Offsets[i-1] {
			t.Fatalf("offsets must not run backwards: %g after %g", rec.Offsets[i], rec.Offsets[i-1])
		}
	}
}

func TestRecorderCancel(t *testing.T) {
	s := New(dcSim(0.7), DefaultCalibration())
	r := Recorder{Scope: s, Input: AN8, Interval: 5 * time.Millisecond}
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(12*time.Millisecond, cancel)
	rec, err := r.Record(ctx, 10*time.Second)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(rec.Values) == 0 {
		t.Error("expected the partial recording to hold the readings taken before cancelation")
	}
}
