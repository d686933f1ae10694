package scope

import (
	"fmt"
	"io"

	"github.com/astrogo/fitsio"
)

// WriteFITS streams a waveform to w as a FITS file: one 32-bit float image
// HDU, samples along the first axis and channels along the second, with
// the timegap and per-channel routing recorded as header cards.
func WriteFITS(w io.Writer, wf Waveform) error {
	fits, err := fitsio.Create(w)
	if err != nil {
		return err
	}
	defer fits.Close()
	dims := []int{len(wf.Time), len(wf.Channels)}
	im := fitsio.NewImage(-32, dims)
	defer im.Close()
	cards := []fitsio.Card{
		{Name: "TIMEGAP", Value: wf.Timegap, Comment: "microseconds between samples"},
		{Name: "NCHAN", Value: len(wf.Channels), Comment: "captured channels"},
	}
	for i, ch := range wf.Channels {
		cards = append(cards,
			fitsio.Card{Name: fmt.Sprintf("CHAN%d", i+1), Value: ch.Input.String(), Comment: "physical input"},
			fitsio.Card{Name: fmt.Sprintf("RANGE%d", i+1), Value: ch.Range, Comment: "volts full scale"})
	}
	err = im.Header().Append(cards...)
	if err != nil {
		return err
	}
	floats := make([]float32, 0, len(wf.Time)*len(wf.Channels))
	for _, ch := range wf.Channels {
		for _, v := range ch.Data {
			floats = append(floats, float32(v))
		}
	}
	err = im.Write(&floats)
	if err != nil {
		return err
	}
	return fits.Write(im)
}
