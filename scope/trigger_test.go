package scope

import (
	"errors"
	"math"
	"testing"

	"github.com/labpod/golabpod/packet"
)

func TestTriggeredCaptureFirstSample(t *testing.T) {
	s := newTestScope()
	if err := s.ConfigureTrigger(CH1, 0.5); err != nil {
		t.Fatal(err)
	}
	wf, err := s.Capture(1, 200, 1)
	if err != nil {
		t.Fatal(err)
	}
	first := wf.Channels[0].Data[0]
	if math.Abs(first-0.5) > 0.05 {
		t.Errorf("triggered capture should start at the crossing: expected ~0.5, got %g", first)
	}
	if second := wf.Channels[0].Data[1]; second < first-0.01 {
		t.Errorf("the trigger fires on a rising edge, but the signal fell from %g to %g", first, second)
	}
}

func TestTriggerDefaultEnable(t *testing.T) {
	s := newTestScope()
	if err := s.EnableTrigger(); err != nil {
		t.Fatal(err)
	}
	trig := s.Trigger()
	if trig.Source != CH1 || trig.Level != 0 || !trig.Enabled {
		t.Errorf("expected the default trigger to be slot one at 0 V, got %+v", trig)
	}
}

func TestTriggerDefaultEnableFollowsMapping(t *testing.T) {
	s := newTestScope()
	if err := s.SetChannelOneMap(SEN); err != nil {
		t.Fatal(err)
	}
	if err := s.EnableTrigger(); err != nil {
		t.Fatal(err)
	}
	if trig := s.Trigger(); trig.Source != SEN {
		t.Errorf("the default trigger source is the current slot one input, got %s", trig.Source)
	}
}

func TestTriggerDisableKeepsConfig(t *testing.T) {
	h := &recordingHandler{}
	s := New(h, DefaultCalibration())
	if err := s.ConfigureTrigger(CH2, 1.2); err != nil {
		t.Fatal(err)
	}
	s.DisableTrigger()
	trig := s.Trigger()
	if trig.Enabled {
		t.Error("trigger still enabled after DisableTrigger")
	}
	if trig.Source != CH2 || trig.Level != 1.2 {
		t.Errorf("DisableTrigger must keep the configuration, got %+v", trig)
	}
	if err := s.EnableTrigger(); err != nil {
		t.Fatal(err)
	}
	if !s.Trigger().Enabled {
		t.Error("trigger not enabled after EnableTrigger")
	}
	if n := h.opCount(packet.OpSetTrigger); n != 1 {
		t.Errorf("re-enabling a configured trigger must not rewrite the comparator, saw %d writes", n)
	}
}

func TestTriggerSourceValidity(t *testing.T) {
	s := newTestScope()
	for _, inp := range []Input{CH1, CH2, CH3, MIC} {
		if err := s.ConfigureTrigger(inp, 0); err != nil {
			t.Errorf("%s is routed to the ADC by default and should trigger, got %v", inp, err)
		}
	}
	for _, inp := range []Input{CAP, SEN, AN8} {
		err := s.ConfigureTrigger(inp, 0)
		var tme TypeMismatchError
		if !errors.As(err, &tme) {
			t.Errorf("%s is not routed under the default mapping: expected TypeMismatchError, got %v", inp, err)
		}
	}
}

func TestTriggerSourceFollowsRemap(t *testing.T) {
	s := newTestScope()
	if err := s.SetChannelOneMap(CAP); err != nil {
		t.Fatal(err)
	}
	if err := s.ConfigureTrigger(CAP, 1.0); err != nil {
		t.Errorf("CAP holds slot one and should trigger, got %v", err)
	}
	err := s.ConfigureTrigger(CH1, 0)
	var tme TypeMismatchError
	if !errors.As(err, &tme) {
		t.Errorf("CH1 lost its slot to CAP: expected TypeMismatchError, got %v", err)
	}
}

func TestTriggerRejectsUnknownInput(t *testing.T) {
	s := newTestScope()
	err := s.ConfigureTrigger(Input(77), 0)
	var ice InvalidChannelError
	if !errors.As(err, &ice) {
		t.Errorf("expected InvalidChannelError, got %v", err)
	}
}
