package scope

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorClass(t *testing.T) {
	var (
		cases = []struct {
			err   error
			class string
		}{
			{InvalidChannelError{Name: "CH9"}, "invalid_channel"},
			{TypeMismatchError{Input: AN8, Reason: "not routed"}, "type_mismatch"},
			{RangeError{Reason: ReasonTooManySamples}, "range"},
			{TransportError{Op: "capture", Err: errors.New("cable yanked")}, "transport"},
			{fmt.Errorf("capture failed: %w", RangeError{Reason: ReasonRange}), "range"},
			{errors.New("anything else"), "other"},
		}
	)
	for _, c := range cases {
		if got := ErrorClass(c.err); got != c.class {
			t.Errorf("ErrorClass(%v): expected %q got %q", c.err, c.class, got)
		}
	}
}
