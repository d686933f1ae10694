package scope

import (
	"fmt"
	"math"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
)

// pgaBase is the full-scale voltage of the PGA inputs at unity gain.
const pgaBase = 16.5

// PGAGains is the pod's programmable gain ladder, available on CH1 and CH2.
// Each gain divides the base full scale, so the ladder of range maxima runs
// 16.5, 8.25, 4.125, 3.3, 2.0625, 1.65, 1.03125, 0.515625 volts.
var PGAGains = [...]int{1, 2, 4, 5, 8, 10, 16, 32}

// FullScale returns the maximum representable voltage of a PGA input at
// the given gain.
func FullScale(gain int) float64 {
	return pgaBase / float64(gain)
}

// HasPGA reports whether an input sits behind the programmable gain
// amplifier.  Only PGA inputs accept range selection.
func HasPGA(inp Input) bool {
	return inp == CH1 || inp == CH2
}

// CalibrationEntry describes the linear transfer from raw ADC counts to
// volts for one input at one range.  Inverting front ends map count zero to
// VMax, so their slope is negative.
type CalibrationEntry struct {
	VMin     float64
	VMax     float64
	Inverted bool
}

// maxCount is the largest raw count at a bit depth.
func maxCount(bits uint8) float64 {
	return float64(uint32(1)<<bits - 1)
}

// Slope returns volts per count at the given bit depth.
func (e CalibrationEntry) Slope(bits uint8) float64 {
	span := (e.VMax - e.VMin) / maxCount(bits)
	if e.Inverted {
		return -span
	}
	return span
}

// Intercept returns the voltage of raw count zero.
func (e CalibrationEntry) Intercept() float64 {
	if e.Inverted {
		return e.VMax
	}
	return e.VMin
}

// Convert maps one raw count to volts.
func (e CalibrationEntry) Convert(raw uint16, bits uint8) float64 {
	return e.Slope(bits)*float64(raw) + e.Intercept()
}

// Raw maps a voltage back to the nearest raw count, clamped to the
// representable span.  Used to program the trigger comparator.
func (e CalibrationEntry) Raw(volts float64, bits uint8) uint16 {
	raw := math.Round((volts - e.Intercept()) / e.Slope(bits))
	if raw < 0 {
		raw = 0
	}
	if m := maxCount(bits); raw > m {
		raw = m
	}
	return uint16(raw)
}

// CalKey identifies a calibration entry by input and PGA gain.  Inputs
// without a PGA always use gain 1.
type CalKey struct {
	Input Input
	Gain  int
}

// CalibrationTable holds a CalibrationEntry for every input and legal
// range.  It is supplied when the session is created and read-only while
// captures run.
type CalibrationTable map[CalKey]CalibrationEntry

// Entry looks up the calibration for an input at a gain.
func (t CalibrationTable) Entry(inp Input, gain int) (CalibrationEntry, bool) {
	e, ok := t[CalKey{Input: inp, Gain: gain}]
	return e, ok
}

// DefaultCalibration returns the factory transfer table: ideal spans with
// no per-unit correction.  CH1 and CH2 get one entry per PGA gain; the
// remaining inputs have a single fixed range.
func DefaultCalibration() CalibrationTable {
	t := CalibrationTable{}
	for _, g := range PGAGains {
		fs := FullScale(g)
		t[CalKey{CH1, g}] = CalibrationEntry{VMin: -fs, VMax: fs, Inverted: true}
		t[CalKey{CH2, g}] = CalibrationEntry{VMin: -fs, VMax: fs, Inverted: true}
	}
	t[CalKey{CH3, 1}] = CalibrationEntry{VMin: -3.3, VMax: 3.3, Inverted: true}
	t[CalKey{MIC, 1}] = CalibrationEntry{VMin: -3.3, VMax: 3.3, Inverted: true}
	t[CalKey{CAP, 1}] = CalibrationEntry{VMin: 0, VMax: 3.3}
	t[CalKey{SEN, 1}] = CalibrationEntry{VMin: 0, VMax: 3.3, Inverted: true}
	t[CalKey{AN8, 1}] = CalibrationEntry{VMin: 0, VMax: 3.3}
	return t
}

// calFileEntry is one record of a calibration file.
type calFileEntry struct {
	Input    string  `koanf:"input"`
	Gain     int     `koanf:"gain"`
	Min      float64 `koanf:"min"`
	Max      float64 `koanf:"max"`
	Inverted bool    `koanf:"inverted"`
}

// LoadCalibration reads a per-unit calibration file and overlays it on the
// factory table.  The file is YAML, a list of {input, gain, min, max,
// inverted} records under the key "inputs"; records for inputs or gains the
// pod does not have are rejected.
func LoadCalibration(path string) (CalibrationTable, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("loading calibration %s: %w", path, err)
	}
	var entries []calFileEntry
	if err := k.Unmarshal("inputs", &entries); err != nil {
		return nil, fmt.Errorf("parsing calibration %s: %w", path, err)
	}
	t := DefaultCalibration()
	for _, fe := range entries {
		inp, err := ParseInput(fe.Input)
		if err != nil {
			return nil, err
		}
		gain := fe.Gain
		if gain == 0 {
			gain = 1
		}
		if _, ok := t.Entry(inp, gain); !ok {
			return nil, RangeError{Reason: ReasonRange, Value: float64(gain), Limit: float64(PGAGains[len(PGAGains)-1])}
		}
		if fe.Max <= fe.Min {
			return nil, fmt.Errorf("calibration for %s gain %d: max %g not above min %g", inp, gain, fe.Max, fe.Min)
		}
		t[CalKey{inp, gain}] = CalibrationEntry{VMin: fe.Min, VMax: fe.Max, Inverted: fe.Inverted}
	}
	return t, nil
}
