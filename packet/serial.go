package packet

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/tarm/serial"
)

// DefaultBaud is the pod's CDC-ACM line rate.  The USB bridge ignores the
// value but the field must be populated to open the port.
const DefaultBaud = 1000000

// Device is a connection to a pod.  It frames commands into telegrams,
// checks the ACK on every exchange and retrieves sample blocks.  The zero
// value is not usable; construct with NewDevice or NewDeviceConn.
//
// Device serializes exchanges internally, so a single instance may be
// shared, but callers sequencing multi-command operations (a capture and
// its reads) must hold their own lock around the whole sequence.
type Device struct {
	sync.Mutex

	// Addr is the serial port the pod enumerated at, e.g. /dev/ttyACM0
	Addr string

	// Baud is the line rate used when opening Addr
	Baud int

	// Timeout bounds each read from the pod.  Zero blocks indefinitely,
	// which is the contract trigger waits want; anything interactive should
	// set a bound and treat ErrTimeout as "no crossing arrived."
	Timeout time.Duration

	conn io.ReadWriteCloser
	br   *bufio.Reader
}

// NewDevice returns a Device that will connect to a pod on a serial port.
// Call Open before use.
func NewDevice(addr string, baud int, timeout time.Duration) *Device {
	if baud == 0 {
		baud = DefaultBaud
	}
	return &Device{Addr: addr, Baud: baud, Timeout: timeout}
}

// NewDeviceConn returns a Device over an existing byte stream.  Used for
// USB bulk endpoints and for tests; Open is a no-op.
func NewDeviceConn(conn io.ReadWriteCloser, timeout time.Duration) *Device {
	return &Device{Timeout: timeout, conn: conn, br: bufio.NewReader(conn)}
}

// Open connects to the pod.  Transient failures are retried with an
// exponential backoff; a missing port fails immediately.
func (d *Device) Open() error {
	d.Lock()
	defer d.Unlock()
	if d.conn != nil {
		return nil
	}
	var conn *serial.Port
	op := func() error {
		var err error
		conn, err = serial.OpenPort(&serial.Config{
			Name:        d.Addr,
			Baud:        d.Baud,
			ReadTimeout: d.Timeout})
		if err != nil {
			errS := strings.ToLower(err.Error())
			if strings.Contains(errS, "no such file") {
				return backoff.Permanent(err)
			}
			return err
		}
		return nil
	}
	err := backoff.Retry(op, &backoff.ExponentialBackOff{
		InitialInterval:     25 * time.Millisecond,
		RandomizationFactor: 0.,
		Multiplier:          2.,
		MaxInterval:         1 * time.Second,
		MaxElapsedTime:      3 * time.Second,
		Clock:               backoff.SystemClock})
	if err != nil {
		return fmt.Errorf("packet: opening %s: %w", d.Addr, err)
	}
	d.conn = conn
	d.br = bufio.NewReader(conn)
	return nil
}

// Close releases the connection.  The Device may be reopened afterwards.
func (d *Device) Close() error {
	d.Lock()
	defer d.Unlock()
	if d.conn == nil {
		return nil
	}
	err := d.conn.Close()
	d.conn = nil
	d.br = nil
	return err
}

// exchange frames cmd, writes it and reads back the response payload.
// callers hold the lock.
func (d *Device) exchange(cmd []byte) ([]byte, error) {
	if d.conn == nil {
		return nil, ErrNotConnected
	}
	tele := Frame(cmd)
	n, err := d.conn.Write(tele)
	if err != nil {
		return nil, err
	}
	if n != len(tele) {
		return nil, fmt.Errorf("packet: wrote %d of %d telegram bytes", n, len(tele))
	}
	resp, err := readTelegram(d.br)
	if err != nil {
		// a serial line has no end of file: depending on the platform a
		// tarm port hitting its read deadline surfaces as zero-count reads
		// or as a bare EOF, so with a deadline set both mean the pod went
		// silent
		if errors.Is(err, io.ErrNoProgress) || (d.Timeout > 0 && errors.Is(err, io.EOF)) {
			return nil, ErrTimeout
		}
		return nil, err
	}
	if len(resp) == 0 {
		return nil, ErrFraming
	}
	switch resp[0] {
	case Ack:
		return resp[1:], nil
	case Nak:
		return nil, ErrNak
	default:
		return nil, fmt.Errorf("packet: response status 0x%X is neither ACK nor NAK", resp[0])
	}
}

// SendCommand transmits one command and confirms the pod ACKed it.
func (d *Device) SendCommand(cmd []byte) error {
	d.Lock()
	defer d.Unlock()
	_, err := d.exchange(cmd)
	return err
}

// ReadSamples requests the next n samples from the pod's buffer.  bits is
// forwarded so the pod scales its reply to the commanded depth.
func (d *Device) ReadSamples(n int, bits uint8) ([]uint16, error) {
	d.Lock()
	defer d.Unlock()
	out := make([]uint16, 0, n)
	for len(out) < n {
		want := n - len(out)
		if want > blockSamples {
			want = blockSamples
		}
		data, err := d.exchange(ReadBlock(uint16(want), bits))
		if err != nil {
			return nil, err
		}
		samples, err := UnpackSamples(data)
		if err != nil {
			return nil, err
		}
		if len(samples) == 0 {
			return nil, ErrShortRead
		}
		out = append(out, samples...)
	}
	if len(out) != n {
		return nil, ErrShortRead
	}
	return out, nil
}

// blockSamples is how many samples fit one read block.  2 bytes a sample
// plus framing stays under the telegram bound.
const blockSamples = 1000
