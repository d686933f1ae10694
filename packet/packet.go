/*Package packet implements the request/response byte channel to a LabPod
mixed-signal pocket instrument.

The pod speaks a simple command protocol: the host sends one command at a
time and the pod answers with an ACK (optionally carrying data) or a NAK.
Commands and responses travel inside telegrams (see telegram.go) which add
framing and a CRC so that a glitched serial line is detected instead of
silently producing wrong samples.

The acquisition core consumes only the Handler interface; the concrete
Device in this package carries it over a serial port or USB bulk endpoints.
*/
package packet

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Handler is the primitive exchange surface the acquisition core drives.
// Both calls are synchronous and blocking.
type Handler interface {
	// SendCommand transmits one encoded command and confirms the pod
	// accepted it.
	SendCommand(cmd []byte) error

	// ReadSamples retrieves n raw counts digitized at the given bit depth.
	ReadSamples(n int, bits uint8) ([]uint16, error)
}

// Command opcodes.  One byte, first in every command payload.
const (
	// OpSetGain programs the PGA gain for one input
	OpSetGain = 0x11

	// OpSetTrigger loads the trigger comparator with an input and raw level
	OpSetTrigger = 0x12

	// OpCapture begins a capture sequence
	OpCapture = 0x13

	// OpReadBlock requests the next block of samples from the pod's buffer
	OpReadBlock = 0x14

	// OpReadVoltage performs a single immediate conversion on one input
	OpReadVoltage = 0x15
)

// FlagTriggered in a capture command tells the pod to hold the first sample
// until the trigger comparator fires.
const FlagTriggered = 1 << 0

// Response status bytes, first in every response payload.
const (
	// Ack indicates the command was accepted; data, if any, follows
	Ack = 0x06

	// Nak indicates the pod rejected the command
	Nak = 0x15
)

var (
	// ErrNotConnected is returned when the device handle is used before Open
	ErrNotConnected = errors.New("packet: not connected to the pod")

	// ErrNak is returned when the pod rejects a command
	ErrNak = errors.New("packet: pod NAKed command")

	// ErrShortRead is returned when the pod returns fewer samples than requested
	ErrShortRead = errors.New("packet: short sample read")

	// ErrTimeout is returned when the pod does not reply within the deadline
	ErrTimeout = errors.New("packet: timeout waiting for the pod")
)

// byte order on the wire
var dataOrder = binary.LittleEndian

// SetGain encodes a gain command for one input.  gain is the PGA gain value
// itself, not a ladder index.
func SetGain(mux byte, gain byte) []byte {
	return []byte{OpSetGain, mux, gain}
}

// SetTrigger encodes a trigger configuration command.  level is the raw
// comparator count in the input's current range.
func SetTrigger(mux byte, level uint16) []byte {
	out := []byte{OpSetTrigger, mux, 0, 0}
	dataOrder.PutUint16(out[2:], level)
	return out
}

// CaptureCmd encodes a capture command.  channels is how many slots to
// sample, mux the physical input routed to slot one, ticks the inter-sample
// interval in eighths of a microsecond.
func CaptureCmd(channels byte, mux byte, samples uint16, ticks uint16, flags byte) []byte {
	out := []byte{OpCapture, channels, mux, 0, 0, 0, 0, flags}
	dataOrder.PutUint16(out[3:], samples)
	dataOrder.PutUint16(out[5:], ticks)
	return out
}

// ReadBlock encodes a request for the next n samples in the pod's buffer.
func ReadBlock(n uint16, bits uint8) []byte {
	out := []byte{OpReadBlock, 0, 0, bits}
	dataOrder.PutUint16(out[1:], n)
	return out
}

// ReadVoltage encodes a single-conversion command for one input.
func ReadVoltage(mux byte) []byte {
	return []byte{OpReadVoltage, mux}
}

// Command is a decoded command payload.  Only the fields relevant to the
// opcode carry meaning.
type Command struct {
	Op       byte
	Mux      byte
	Gain     byte
	Level    uint16
	Channels byte
	Samples  uint16
	Ticks    uint16
	Bits     uint8
	Flags    byte
}

// ParseCommand decodes a command payload built by the encoders above.  The
// pod firmware and the in-process simulator both sit on this side of the
// protocol.
func ParseCommand(b []byte) (Command, error) {
	var c Command
	if len(b) == 0 {
		return c, errors.New("packet: empty command")
	}
	c.Op = b[0]
	switch c.Op {
	case OpSetGain:
		if len(b) != 3 {
			return c, fmt.Errorf("packet: set gain command is %d bytes, want 3", len(b))
		}
		c.Mux = b[1]
		c.Gain = b[2]
	case OpSetTrigger:
		if len(b) != 4 {
			return c, fmt.Errorf("packet: set trigger command is %d bytes, want 4", len(b))
		}
		c.Mux = b[1]
		c.Level = dataOrder.Uint16(b[2:])
	case OpCapture:
		if len(b) != 8 {
			return c, fmt.Errorf("packet: capture command is %d bytes, want 8", len(b))
		}
		c.Channels = b[1]
		c.Mux = b[2]
		c.Samples = dataOrder.Uint16(b[3:])
		c.Ticks = dataOrder.Uint16(b[5:])
		c.Flags = b[7]
	case OpReadBlock:
		if len(b) != 4 {
			return c, fmt.Errorf("packet: read block command is %d bytes, want 4", len(b))
		}
		c.Samples = dataOrder.Uint16(b[1:])
		c.Bits = b[3]
	case OpReadVoltage:
		if len(b) != 2 {
			return c, fmt.Errorf("packet: read voltage command is %d bytes, want 2", len(b))
		}
		c.Mux = b[1]
	default:
		return c, fmt.Errorf("packet: unknown opcode 0x%X", c.Op)
	}
	return c, nil
}

// PackSamples encodes raw counts as little-endian uint16 pairs, the format
// sample blocks travel in.
func PackSamples(samples []uint16) []byte {
	out := make([]byte, 2*len(samples))
	for i, s := range samples {
		dataOrder.PutUint16(out[2*i:], s)
	}
	return out
}

// UnpackSamples decodes a sample block.  The byte count must be even.
func UnpackSamples(b []byte) ([]uint16, error) {
	if len(b)%2 != 0 {
		return nil, fmt.Errorf("packet: sample block of %d bytes is not a whole number of samples", len(b))
	}
	out := make([]uint16, len(b)/2)
	for i := range out {
		out[i] = dataOrder.Uint16(b[2*i:])
	}
	return out, nil
}
