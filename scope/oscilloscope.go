/*Package scope implements the host-side acquisition core for the LabPod
pocket instrument.

A Scope session turns a request like "two channels, a thousand samples,
one microsecond apart" into a validated capture on the pod and a calibrated
Waveform back.  It owns the pieces that make that safe: the slot-to-input
mapping (slot one is remappable, slots two through four are fixed), the
trigger configuration, the per-input range selections and the calibration
table that converts raw counts to volts.

The pod is one shared, stateful device with no internal queuing, so the
session serializes every device-touching call through its mutex; a capture
holds the device for its full duration including any trigger wait.  Nothing
here spawns goroutines and nothing retries: a failed capture surfaces a
TransportError and the caller decides whether to run a fresh one.
*/
package scope

import (
	"math"
	"sync"
	"time"

	"github.com/labpod/golabpod/packet"
)

// BufferSamples is the pod's capture buffer depth.  sample count times
// channel count must fit in it.
const BufferSamples = 10000

// ticksPerMicrosecond is the pod's capture timer rate.  timegaps travel on
// the wire in whole ticks.
const ticksPerMicrosecond = 8

// MaxTimegap is the largest inter-sample interval the capture timer can
// count, in µs.
const MaxTimegap = 65535.0 / ticksPerMicrosecond

// Inter-sample interval floors in µs.  Multiplexing more channels needs
// more time per composite sample, and the triggered single-channel path
// runs the comparator in line with the conversion.
const (
	minTimegapOne     = 0.5
	minTimegapOneTrig = 0.75
	minTimegapTwo     = 0.875
	minTimegapMulti   = 1.75
)

// ResolutionFor returns the ADC bit depth used for a channel count: the
// full 12 bits for a single channel, the shared 10-bit path otherwise.
// Pure policy, no device interaction.
func ResolutionFor(channels int) uint8 {
	if channels == 1 {
		return 12
	}
	return 10
}

// MinTimegap returns the smallest legal inter-sample interval in µs for a
// channel count, accounting for the slower triggered single-channel path.
func MinTimegap(channels int, triggered bool) float64 {
	switch channels {
	case 1:
		if triggered {
			return minTimegapOneTrig
		}
		return minTimegapOne
	case 2:
		return minTimegapTwo
	default:
		return minTimegapMulti
	}
}

// Scope is a session against one pod.  Construct with New; the zero value
// is not usable.  All methods are safe for concurrent use; device-touching
// calls serialize, one at a time.
type Scope struct {
	sync.Mutex

	h   packet.Handler
	cal CalibrationTable

	chanOneMap Input
	gains      map[Input]int

	trig           TriggerConfig
	trigConfigured bool
}

// New returns a session over a transport handler using the supplied
// calibration table.  Most callers pass DefaultCalibration(); per-unit
// tables come from LoadCalibration.
func New(h packet.Handler, cal CalibrationTable) *Scope {
	return &Scope{
		h:          h,
		cal:        cal,
		chanOneMap: CH1,
		gains:      map[Input]int{},
	}
}

// SetChannelOneMap routes capture slot one to a physical input.  Any of
// the seven inputs is legal; a rejected value leaves the mapping unchanged.
func (s *Scope) SetChannelOneMap(inp Input) error {
	s.Lock()
	defer s.Unlock()
	if !inp.valid() {
		return InvalidChannelError{Name: inp.String()}
	}
	if _, ok := s.cal.Entry(inp, s.gainOf(inp)); !ok {
		return InvalidChannelError{Name: inp.String()}
	}
	s.chanOneMap = inp
	return nil
}

// ChannelOneMap returns the physical input currently routed to slot one.
func (s *Scope) ChannelOneMap() Input {
	s.Lock()
	defer s.Unlock()
	return s.chanOneMap
}

// slotInput resolves a 1-based slot to its physical input.  callers hold
// the lock and pass slots in 1..NumSlots.
func (s *Scope) slotInput(slot int) Input {
	if slot == 1 {
		return s.chanOneMap
	}
	return slotInputs[slot-2]
}

// gainOf returns the PGA gain selected for an input, 1 if none was ever
// selected or the input has no PGA.  callers hold the lock.
func (s *Scope) gainOf(inp Input) int {
	if g, ok := s.gains[inp]; ok {
		return g
	}
	return 1
}

// SelectRange picks the smallest PGA range on a channel whose maximum
// covers ceiling volts, programs the gain and returns the chosen full
// scale.  Only CH1 and CH2 sit behind the PGA; other inputs and ceilings
// beyond the largest range fail with a RangeError, leaving the previous
// selection intact.
func (s *Scope) SelectRange(inp Input, ceiling float64) (float64, error) {
	s.Lock()
	defer s.Unlock()
	if !inp.valid() {
		return 0, InvalidChannelError{Name: inp.String()}
	}
	if !HasPGA(inp) {
		entry, _ := s.cal.Entry(inp, 1)
		return 0, RangeError{Reason: ReasonRange, Value: ceiling, Limit: entry.VMax}
	}
	if ceiling <= 0 || ceiling > pgaBase {
		return 0, RangeError{Reason: ReasonRange, Value: ceiling, Limit: pgaBase}
	}
	gain := 0
	for _, g := range PGAGains {
		if FullScale(g) >= ceiling {
			gain = g
		}
	}
	if _, ok := s.cal.Entry(inp, gain); !ok {
		return 0, RangeError{Reason: ReasonRange, Value: ceiling, Limit: pgaBase}
	}
	if err := s.h.SendCommand(packet.SetGain(inp.Mux(), byte(gain))); err != nil {
		return 0, TransportError{Op: "select range", Err: err}
	}
	s.gains[inp] = gain
	return FullScale(gain), nil
}

// Range returns the full-scale maximum currently selected on an input.
func (s *Scope) Range(inp Input) (float64, error) {
	s.Lock()
	defer s.Unlock()
	if !inp.valid() {
		return 0, InvalidChannelError{Name: inp.String()}
	}
	entry, ok := s.cal.Entry(inp, s.gainOf(inp))
	if !ok {
		return 0, InvalidChannelError{Name: inp.String()}
	}
	return entry.VMax, nil
}

// Capture acquires samples spaced timegap µs apart on the first channels
// capture slots and returns them calibrated to volts on a shared time
// axis.  Parameters are validated in a fixed order before the pod is
// touched: channel count, slot mappings, timegap floor, then buffer
// budget.  If the trigger is enabled the pod holds the first sample until
// the crossing, so the call can block for as long as the crossing takes;
// the transport's timeout bounds that wait.
func (s *Scope) Capture(channels, samples int, timegap float64) (Waveform, error) {
	s.Lock()
	defer s.Unlock()

	if channels < 1 || channels > NumSlots {
		return Waveform{}, RangeError{Reason: ReasonTooManyChannels, Value: float64(channels), Limit: NumSlots}
	}
	inputs := make([]Input, channels)
	entries := make([]CalibrationEntry, channels)
	for i := range inputs {
		inp := s.slotInput(i + 1)
		entry, ok := s.cal.Entry(inp, s.gainOf(inp))
		if !ok {
			return Waveform{}, InvalidChannelError{Name: inp.String()}
		}
		inputs[i], entries[i] = inp, entry
	}
	if floor := MinTimegap(channels, s.trig.Enabled); timegap < floor {
		return Waveform{}, RangeError{Reason: ReasonTimegapSmall, Value: timegap, Limit: floor}
	}
	if timegap > MaxTimegap {
		return Waveform{}, RangeError{Reason: ReasonTimegapLarge, Value: timegap, Limit: MaxTimegap}
	}
	if samples < 1 {
		return Waveform{}, RangeError{Reason: ReasonBadSamples, Value: float64(samples), Limit: 1}
	}
	if samples*channels > BufferSamples {
		return Waveform{}, RangeError{Reason: ReasonTooManySamples, Value: float64(samples * channels), Limit: BufferSamples}
	}

	bits := ResolutionFor(channels)
	var flags byte
	if s.trig.Enabled {
		flags |= packet.FlagTriggered
	}
	ticks := uint16(math.Round(timegap * ticksPerMicrosecond))
	cmd := packet.CaptureCmd(byte(channels), s.chanOneMap.Mux(), uint16(samples), ticks, flags)
	if err := s.h.SendCommand(cmd); err != nil {
		return Waveform{}, TransportError{Op: "capture", Err: err}
	}

	// the record does not exist until the pod has clocked it out
	time.Sleep(time.Duration(float64(samples) * timegap * float64(time.Microsecond)))

	wf := Waveform{
		Timegap:  timegap,
		Time:     make([]float64, samples),
		Channels: make([]Channel, channels),
	}
	for i := range wf.Time {
		wf.Time[i] = float64(i) * timegap
	}
	for i, inp := range inputs {
		raw, err := s.h.ReadSamples(samples, bits)
		if err != nil {
			return Waveform{}, TransportError{Op: "sample read", Err: err}
		}
		if len(raw) != samples {
			return Waveform{}, TransportError{Op: "sample read", Err: packet.ErrShortRead}
		}
		data := make([]float64, samples)
		for j, r := range raw {
			data[j] = entries[i].Convert(r, bits)
		}
		wf.Channels[i] = Channel{Input: inp, Range: entries[i].VMax, Data: data}
	}
	return wf, nil
}

// ReadVoltage performs one immediate 12-bit conversion on an input and
// returns it in volts.  The input does not need to be bound to a slot.
func (s *Scope) ReadVoltage(inp Input) (float64, error) {
	s.Lock()
	defer s.Unlock()
	if !inp.valid() {
		return 0, InvalidChannelError{Name: inp.String()}
	}
	entry, ok := s.cal.Entry(inp, s.gainOf(inp))
	if !ok {
		return 0, InvalidChannelError{Name: inp.String()}
	}
	if err := s.h.SendCommand(packet.ReadVoltage(inp.Mux())); err != nil {
		return 0, TransportError{Op: "read voltage", Err: err}
	}
	raw, err := s.h.ReadSamples(1, 12)
	if err != nil {
		return 0, TransportError{Op: "read voltage", Err: err}
	}
	if len(raw) != 1 {
		return 0, TransportError{Op: "read voltage", Err: packet.ErrShortRead}
	}
	return entry.Convert(raw[0], 12), nil
}
