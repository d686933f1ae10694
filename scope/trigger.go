package scope

import "github.com/labpod/golabpod/packet"

// triggerBits is the depth of the pod's trigger comparator.  The comparator
// sits on the shared 10-bit path regardless of the capture resolution.
const triggerBits = 10

// TriggerConfig holds the trigger source, level and whether captures wait
// for a crossing at all.
type TriggerConfig struct {
	Source  Input   `json:"source"`
	Level   float64 `json:"level"`
	Enabled bool    `json:"enabled"`
}

// ConfigureTrigger points the trigger comparator at a channel and level and
// enables it.  The source must be routed to the ADC under the current slot
// mapping: the slot-one input or one of the fixed slot inputs CH2, CH3 and
// MIC.  A rejected call leaves the previous configuration, enabled or not,
// exactly as it was.
func (s *Scope) ConfigureTrigger(inp Input, level float64) error {
	s.Lock()
	defer s.Unlock()
	return s.configureTrigger(inp, level)
}

// configureTrigger does the work of ConfigureTrigger.  callers hold the lock.
func (s *Scope) configureTrigger(inp Input, level float64) error {
	if !inp.valid() {
		return InvalidChannelError{Name: inp.String()}
	}
	if !s.triggerable(inp) {
		return TypeMismatchError{Input: inp, Reason: "not a capture slot source under the current mapping"}
	}
	entry, ok := s.cal.Entry(inp, s.gainOf(inp))
	if !ok {
		return InvalidChannelError{Name: inp.String()}
	}
	raw := entry.Raw(level, triggerBits)
	if err := s.h.SendCommand(packet.SetTrigger(inp.Mux(), raw)); err != nil {
		return TransportError{Op: "configure trigger", Err: err}
	}
	s.trig = TriggerConfig{Source: inp, Level: level, Enabled: true}
	s.trigConfigured = true
	return nil
}

// triggerable reports whether an input can source the trigger right now.
// callers hold the lock.
func (s *Scope) triggerable(inp Input) bool {
	if inp == s.chanOneMap {
		return true
	}
	for _, fixed := range slotInputs {
		if inp == fixed {
			return true
		}
	}
	return false
}

// EnableTrigger makes captures wait for a crossing again.  If no trigger
// was ever configured it installs the default, the current slot-one input
// at zero volts.
func (s *Scope) EnableTrigger() error {
	s.Lock()
	defer s.Unlock()
	if !s.trigConfigured {
		return s.configureTrigger(s.chanOneMap, 0)
	}
	s.trig.Enabled = true
	return nil
}

// DisableTrigger makes captures start immediately.  The configured source
// and level are kept for a later EnableTrigger.
func (s *Scope) DisableTrigger() {
	s.Lock()
	defer s.Unlock()
	s.trig.Enabled = false
}

// Trigger returns the current trigger configuration.
func (s *Scope) Trigger() TriggerConfig {
	s.Lock()
	defer s.Unlock()
	return s.trig
}
