package scope

import (
	"bytes"
	"testing"
)

func TestWriteFITS(t *testing.T) {
	wf := Waveform{
		Timegap: 2,
		Time:    []float64{0, 2, 4, 6},
		Channels: []Channel{
			{Input: CH1, Range: 16.5, Data: []float64{0, 0.5, 1, 0.5}},
			{Input: CH2, Range: 1.65, Data: []float64{-1, 0, 1, 0}},
		},
	}
	buf := bytes.Buffer{}
	if err := WriteFITS(&buf, wf); err != nil {
		t.Fatal(err)
	}
	out := buf.Bytes()
	if !bytes.HasPrefix(out, []byte("SIMPLE")) {
		t.Fatal("output does not start with the FITS magic card")
	}
	if len(out)%2880 != 0 {
		t.Errorf("FITS files are a whole number of 2880 byte blocks, got %d bytes", len(out))
	}
	hdr := out[:2880]
	for _, card := range []string{"TIMEGAP", "NCHAN", "CHAN1", "CHAN2", "RANGE1", "RANGE2"} {
		if !bytes.Contains(hdr, []byte(card)) {
			t.Errorf("header missing the %s card", card)
		}
	}
	if !bytes.Contains(hdr, []byte("CH2")) {
		t.Error("header should record the physical input labels")
	}
}
