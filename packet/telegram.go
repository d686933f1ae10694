package packet

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/snksoft/crc"
)

// telegrams are encoded as [STX][BODY][ETX] where BODY is the payload with
// a two byte CRC appended, then escaped so that neither sentinel can appear
// inside it.  any STX, ETX or ESC byte in the body is replaced by ESC
// followed by the byte shifted up by escShift; the shifted values never
// collide with the sentinels.

const (
	// telStart is the start of telegram byte
	telStart = 0x02

	// telEnd is the end of telegram byte
	telEnd = 0x03

	// escMark prefixes an escaped byte inside a telegram body
	escMark = 0x10

	// escShift is the amount escaped bytes are shifted up
	escShift = 0x40

	// maxTelegram bounds a single telegram on the wire.  the largest body is
	// a full 10000 sample buffer read split into blocks; blocks are capped
	// well under this.
	maxTelegram = 4096
)

var (
	// specialBytes must not appear unescaped inside a telegram body
	specialBytes = []byte{telStart, telEnd, escMark}

	crcTable = crc.NewTable(crc.XMODEM)

	// ErrCRC is returned when a received telegram fails its CRC check
	ErrCRC = errors.New("packet: telegram CRC mismatch, pod state unknown")

	// ErrFraming is returned when a byte stream does not contain a telegram
	ErrFraming = errors.New("packet: telegram framing not found")
)

// crcBytes computes the two byte big-endian CRC-CCITT (XMODEM) of buf.
func crcBytes(buf []byte) []byte {
	c := crcTable.InitCrc()
	c = crcTable.UpdateCrc(c, buf)
	out := make([]byte, 2)
	binary.BigEndian.PutUint16(out, crcTable.CRC16(c))
	return out
}

func sanitize(data []byte) []byte {
	out := make([]byte, 0, len(data))
	for _, b := range data {
		if bytes.IndexByte(specialBytes, b) >= 0 {
			out = append(out, escMark, b+escShift)
		} else {
			out = append(out, b)
		}
	}
	return out
}

func reverseSanitize(data []byte) []byte {
	out := make([]byte, 0, len(data))
	subNext := false
	for _, b := range data {
		if b == escMark {
			subNext = true
			continue
		}
		if subNext {
			b = b - escShift
			subNext = false
		}
		out = append(out, b)
	}
	return out
}

// Frame wraps a payload in a telegram: CRC appended, body escaped,
// sentinels added.
func Frame(payload []byte) []byte {
	body := append(append([]byte{}, payload...), crcBytes(payload)...)
	body = sanitize(body)
	out := make([]byte, 0, len(body)+2)
	out = append(out, telStart)
	out = append(out, body...)
	out = append(out, telEnd)
	return out
}

// Deframe extracts and verifies the payload of a telegram.  Bytes outside
// the sentinels are ignored.
func Deframe(tele []byte) ([]byte, error) {
	iStart := bytes.IndexByte(tele, telStart)
	if iStart < 0 {
		return nil, ErrFraming
	}
	iEnd := bytes.IndexByte(tele[iStart:], telEnd)
	if iEnd < 0 {
		return nil, ErrFraming
	}
	body := reverseSanitize(tele[iStart+1 : iStart+iEnd])
	if len(body) < 2 {
		return nil, ErrFraming
	}
	fidx := len(body) - 2
	payload, recv := body[:fidx], body[fidx:]
	if !bytes.Equal(recv, crcBytes(payload)) {
		return nil, ErrCRC
	}
	return payload, nil
}

// readTelegram scans a stream for the next complete telegram and returns
// its verified payload.  it tolerates noise bytes before the start sentinel.
func readTelegram(br *bufio.Reader) ([]byte, error) {
	// skip to the start sentinel
	for {
		b, err := br.ReadByte()
		if err != nil {
			return nil, err
		}
		if b == telStart {
			break
		}
	}
	body := make([]byte, 0, 64)
	for {
		b, err := br.ReadByte()
		if err != nil {
			return nil, err
		}
		if b == telEnd {
			break
		}
		body = append(body, b)
		if len(body) > maxTelegram {
			return nil, fmt.Errorf("packet: telegram exceeds %d bytes without terminating", maxTelegram)
		}
	}
	body = reverseSanitize(body)
	if len(body) < 2 {
		return nil, ErrFraming
	}
	fidx := len(body) - 2
	payload, recv := body[:fidx], body[fidx:]
	if !bytes.Equal(recv, crcBytes(payload)) {
		return nil, ErrCRC
	}
	return payload, nil
}
