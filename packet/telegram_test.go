package packet

import (
	"bufio"
	"bytes"
	"errors"
	"testing"
)

func TestFrameDeframeRoundTrip(t *testing.T) {
	payload := []byte{0x01, telStart, telEnd, escMark, 0xFF, 0x00}
	tele := Frame(payload)
	if tele[0] != telStart || tele[len(tele)-1] != telEnd {
		t.Fatalf("telegram not bracketed by sentinels: % X", tele)
	}
	for _, b := range tele[1 : len(tele)-1] {
		if b == telStart || b == telEnd {
			t.Errorf("sentinel byte %X appears unescaped inside telegram body", b)
		}
	}
	back, err := Deframe(tele)
	if err != nil {
		t.Fatalf("round trip failed: %v", err)
	}
	if !bytes.Equal(back, payload) {
		t.Errorf("expected payload % X got % X", payload, back)
	}
}

func TestDeframeRejectsCorruption(t *testing.T) {
	tele := Frame([]byte{Ack, 0x22, 0x33})
	tele[1] ^= 0x01
	_, err := Deframe(tele)
	if !errors.Is(err, ErrCRC) {
		t.Errorf("expected ErrCRC for a flipped payload bit, got %v", err)
	}
}

func TestDeframeIgnoresLeadingNoise(t *testing.T) {
	payload := []byte{Ack, 0x10, 0x20}
	tele := append([]byte{0xAA, 0x55, 0xAA}, Frame(payload)...)
	back, err := Deframe(tele)
	if err != nil {
		t.Fatalf("leading noise should be skipped: %v", err)
	}
	if !bytes.Equal(back, payload) {
		t.Errorf("expected payload % X got % X", payload, back)
	}
}

func TestDeframeMissingEnd(t *testing.T) {
	tele := Frame([]byte{Ack})
	_, err := Deframe(tele[:len(tele)-1])
	if !errors.Is(err, ErrFraming) {
		t.Errorf("expected ErrFraming without an end sentinel, got %v", err)
	}
}

func TestReadTelegramStream(t *testing.T) {
	first := []byte{Ack, 0x01}
	second := []byte{Ack, 0x02, telStart}
	stream := append([]byte{0x77}, Frame(first)...)
	stream = append(stream, 0x88, 0x99)
	stream = append(stream, Frame(second)...)
	br := bufio.NewReader(bytes.NewReader(stream))
	got, err := readTelegram(br)
	if err != nil {
		t.Fatalf("first telegram: %v", err)
	}
	if !bytes.Equal(got, first) {
		t.Errorf("first telegram: expected % X got % X", first, got)
	}
	got, err = readTelegram(br)
	if err != nil {
		t.Fatalf("second telegram: %v", err)
	}
	if !bytes.Equal(got, second) {
		t.Errorf("second telegram: expected % X got % X", second, got)
	}
}

func TestReadTelegramRunaway(t *testing.T) {
	stream := make([]byte, maxTelegram+10)
	stream[0] = telStart
	for i := 1; i < len(stream); i++ {
		stream[i] = 0x55
	}
	br := bufio.NewReader(bytes.NewReader(stream))
	_, err := readTelegram(br)
	if err == nil {
		t.Fatal("expected an unterminated telegram to error")
	}
}
