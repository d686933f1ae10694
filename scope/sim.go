package scope

import (
	"fmt"
	"math"
	"sync"

	"github.com/labpod/golabpod/packet"
)

// Sim emulates a pod in process.  It implements packet.Handler by decoding
// the same command payloads the hardware receives, modeling the mux, PGA
// gains, trigger comparator and capture buffer, and synthesizing samples
// from a signal source.  It backs the test suite and the daemon's mock
// mode, so everything above the handler boundary runs unmodified.
type Sim struct {
	sync.Mutex

	// Source is the voltage presented to every input at time t seconds.
	// The default is a 1 kHz sine of 1 V amplitude.
	Source func(t float64) float64

	cal   CalibrationTable
	gains map[byte]int

	trigSet bool
	trigMux byte
	trigRaw uint16

	// sim clock in seconds; advances across captures so repeated captures
	// land at uncontrolled phases, as they would on hardware
	now float64

	pending     [][]uint16
	pendingBits uint8
	timedOut    bool
}

// NewSim returns a pod simulator with the factory calibration geometry and
// the default source.
func NewSim() *Sim {
	return &Sim{
		Source: func(t float64) float64 {
			return math.Sin(2 * math.Pi * 1000 * t)
		},
		cal:   DefaultCalibration(),
		gains: map[byte]int{},
	}
}

// simTriggerWindow is how long, in simulated seconds, the pod hunts for a
// crossing before a triggered capture is considered hung.
const simTriggerWindow = 0.05

// SendCommand decodes and executes one command payload.
func (p *Sim) SendCommand(cmd []byte) error {
	p.Lock()
	defer p.Unlock()
	c, err := packet.ParseCommand(cmd)
	if err != nil {
		return err
	}
	switch c.Op {
	case packet.OpSetGain:
		legal := false
		for _, g := range PGAGains {
			if int(c.Gain) == g {
				legal = true
			}
		}
		if !legal {
			return packet.ErrNak
		}
		p.gains[c.Mux] = int(c.Gain)
	case packet.OpSetTrigger:
		p.trigSet = true
		p.trigMux = c.Mux
		p.trigRaw = c.Level
	case packet.OpCapture:
		return p.capture(c)
	case packet.OpReadVoltage:
		inp, ok := InputForMux(c.Mux)
		if !ok {
			return packet.ErrNak
		}
		entry, ok := p.cal.Entry(inp, p.gainOf(c.Mux))
		if !ok {
			return packet.ErrNak
		}
		raw := entry.Raw(p.Source(p.now), 12)
		p.now += 1e-6
		p.pending = [][]uint16{{raw}}
		p.pendingBits = 12
		p.timedOut = false
	default:
		return packet.ErrNak
	}
	return nil
}

func (p *Sim) gainOf(mux byte) int {
	if g, ok := p.gains[mux]; ok {
		return g
	}
	return 1
}

// capture synthesizes a record.  callers hold the lock.
func (p *Sim) capture(c packet.Command) error {
	if c.Channels < 1 || c.Channels > NumSlots {
		return packet.ErrNak
	}
	if _, ok := InputForMux(c.Mux); !ok {
		return packet.ErrNak
	}
	dt := float64(c.Ticks) / ticksPerMicrosecond * 1e-6
	if dt <= 0 {
		return packet.ErrNak
	}
	bits := ResolutionFor(int(c.Channels))

	start := p.now
	p.timedOut = false
	if c.Flags&packet.FlagTriggered != 0 {
		if !p.trigSet {
			return packet.ErrNak
		}
		inp, _ := InputForMux(p.trigMux)
		entry, ok := p.cal.Entry(inp, p.gainOf(p.trigMux))
		if !ok {
			return packet.ErrNak
		}
		level := entry.Convert(p.trigRaw, triggerBits)
		cross, found := p.riseCrossing(level, start, dt)
		if !found {
			// the comparator never fired; reads will time out
			p.timedOut = true
			p.pending = nil
			p.now = start + simTriggerWindow
			return nil
		}
		start = cross
	}

	blocks := make([][]uint16, c.Channels)
	for slot := 0; slot < int(c.Channels); slot++ {
		mux := c.Mux
		if slot > 0 {
			mux = slotInputs[slot-1].Mux()
		}
		inp, _ := InputForMux(mux)
		entry, ok := p.cal.Entry(inp, p.gainOf(mux))
		if !ok {
			return packet.ErrNak
		}
		block := make([]uint16, c.Samples)
		for j := range block {
			t := start + float64(j)*dt
			block[j] = entry.Raw(p.Source(t), bits)
		}
		blocks[slot] = block
	}
	p.pending = blocks
	p.pendingBits = bits
	p.now = start + float64(c.Samples)*dt
	return nil
}

// riseCrossing hunts forward from t0 for the source rising through level,
// then bisects the bracket down to sub-sample precision.
func (p *Sim) riseCrossing(level, t0, dt float64) (float64, bool) {
	step := dt / 2
	if step < 1e-7 {
		step = 1e-7
	}
	if step > 5e-5 {
		step = 5e-5
	}
	prev := p.Source(t0)
	for t := t0 + step; t <= t0+simTriggerWindow; t += step {
		cur := p.Source(t)
		if prev < level && cur >= level {
			lo, hi := t-step, t
			for i := 0; i < 40; i++ {
				mid := (lo + hi) / 2
				if p.Source(mid) >= level {
					hi = mid
				} else {
					lo = mid
				}
			}
			return hi, true
		}
		prev = cur
	}
	return 0, false
}

// ReadSamples hands back the next synthesized channel block.
func (p *Sim) ReadSamples(n int, bits uint8) ([]uint16, error) {
	p.Lock()
	defer p.Unlock()
	if p.timedOut {
		return nil, packet.ErrTimeout
	}
	if len(p.pending) == 0 {
		return nil, fmt.Errorf("scope: sim has no capture to read")
	}
	block := p.pending[0]
	if n != len(block) || bits != p.pendingBits {
		return nil, fmt.Errorf("scope: sim read of %d samples at %d bits, capture holds %d at %d", n, bits, len(block), p.pendingBits)
	}
	p.pending = p.pending[1:]
	return block, nil
}
