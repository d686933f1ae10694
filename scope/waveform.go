package scope

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"
)

// Channel is one captured slot: the physical input it was routed to, the
// full-scale range in effect and the calibrated samples.
type Channel struct {
	// Input is the physical input this slot sampled
	Input Input `json:"input"`

	// Range is the full-scale maximum in volts at capture time
	Range float64 `json:"range"`

	// Data is the calibrated voltage sequence
	Data []float64 `json:"data"`
}

// Waveform is the result of one capture: a time axis shared by every
// channel and the channels in slot order.
type Waveform struct {
	// Timegap is the inter-sample interval in µs
	Timegap float64 `json:"timegap"`

	// Time is the shared axis in µs, sample index times Timegap
	Time []float64 `json:"time"`

	// Channels holds slot one first, then two, three, four as requested
	Channels []Channel `json:"channels"`
}

// EncodeCSV writes the waveform as CSV, one header row naming the time
// axis and each channel's input, then one row per sample.
func (wf Waveform) EncodeCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	hdr := make([]string, 0, len(wf.Channels)+1)
	hdr = append(hdr, "time_us")
	for _, ch := range wf.Channels {
		hdr = append(hdr, ch.Input.String())
	}
	if err := cw.Write(hdr); err != nil {
		return err
	}
	row := make([]string, len(hdr))
	for i, t := range wf.Time {
		row[0] = strconv.FormatFloat(t, 'g', -1, 64)
		for j, ch := range wf.Channels {
			row[j+1] = strconv.FormatFloat(ch.Data[i], 'g', -1, 64)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Recording is a timestamped log of single-shot readings on one input,
// produced by a Recorder.
type Recording struct {
	// Input is the physical input that was polled
	Input Input `json:"input"`

	// Start is the wall time of the first reading
	Start time.Time `json:"start"`

	// Offsets are seconds since Start, one per reading
	Offsets []float64 `json:"offsets"`

	// Values are the readings in volts
	Values []float64 `json:"values"`
}

// EncodeCSV writes the recording as CSV with absolute start metadata in
// the header row.
func (r Recording) EncodeCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	err := cw.Write([]string{"seconds_since_" + r.Start.Format(time.RFC3339), r.Input.String()})
	if err != nil {
		return err
	}
	for i := range r.Values {
		err = cw.Write([]string{
			strconv.FormatFloat(r.Offsets[i], 'f', 6, 64),
			strconv.FormatFloat(r.Values[i], 'g', -1, 64)})
		if err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
