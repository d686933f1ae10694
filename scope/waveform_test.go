package scope

import (
	"bytes"
	"encoding/csv"
	"strconv"
	"testing"
	"time"
)

func TestWaveformEncodeCSV(t *testing.T) {
	wf := Waveform{
		Timegap: 2,
		Time:    []float64{0, 2, 4},
		Channels: []Channel{
			{Input: CH1, Range: 16.5, Data: []float64{0.25, 0.5, 0.75}},
			{Input: CH2, Range: 1.65, Data: []float64{-1, 0, 1}},
		},
	}
	buf := bytes.Buffer{}
	if err := wf.EncodeCSV(&buf); err != nil {
		t.Fatal(err)
	}
	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("output did not parse as CSV: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("expected a header and 3 rows, got %d rows", len(rows))
	}
	hdr := rows[0]
	if hdr[0] != "time_us" || hdr[1] != "CH1" || hdr[2] != "CH2" {
		t.Errorf("unexpected header %v", hdr)
	}
	v, err := strconv.ParseFloat(rows[2][2], 64)
	if err != nil {
		t.Fatal(err)
	}
	if v != 0 {
		t.Errorf("row 2 CH2: expected 0 got %g", v)
	}
	ts, err := strconv.ParseFloat(rows[3][0], 64)
	if err != nil {
		t.Fatal(err)
	}
	if ts != 4 {
		t.Errorf("row 3 time: expected 4 got %g", ts)
	}
}

func TestRecordingEncodeCSV(t *testing.T) {
	rec := Recording{
		Input:   SEN,
		Start:   time.Date(2023, 4, 1, 12, 0, 0, 0, time.UTC),
		Offsets: []float64{0, 1.5},
		Values:  []float64{3.1, 3.2},
	}
	buf := bytes.Buffer{}
	if err := rec.EncodeCSV(&buf); err != nil {
		t.Fatal(err)
	}
	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("output did not parse as CSV: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected a header and 2 rows, got %d rows", len(rows))
	}
	v, err := strconv.ParseFloat(rows[2][1], 64)
	if err != nil {
		t.Fatal(err)
	}
	if v != 3.2 {
		t.Errorf("row 2 value: expected 3.2 got %g", v)
	}
}
