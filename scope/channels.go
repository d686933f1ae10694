package scope

import (
	"fmt"
	"strings"
)

// Input identifies one of the analog-capable pins on the front of the pod.
// The set is closed; values outside it are rejected at the parse boundary.
type Input int

// The seven physical inputs.  CH1..MIC are the namesake inputs of capture
// slots 1..4; CAP, SEN and AN8 are only reachable by remapping slot 1.
const (
	CH1 Input = iota
	CH2
	CH3
	MIC
	CAP
	SEN
	AN8
)

var inputNames = [...]string{"CH1", "CH2", "CH3", "MIC", "CAP", "SEN", "AN8"}

// String returns the label printed on the pod's front panel.
func (i Input) String() string {
	if !i.valid() {
		return fmt.Sprintf("Input(%d)", int(i))
	}
	return inputNames[i]
}

// MarshalJSON encodes the input as its front-panel label.
func (i Input) MarshalJSON() ([]byte, error) {
	if !i.valid() {
		return nil, InvalidChannelError{Name: i.String()}
	}
	return []byte(`"` + inputNames[i] + `"`), nil
}

// UnmarshalJSON decodes a front-panel label into an Input.
func (i *Input) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	inp, err := ParseInput(s)
	if err != nil {
		return err
	}
	*i = inp
	return nil
}

// Mux returns the input's multiplexer code on the wire.
func (i Input) Mux() byte {
	return byte(i)
}

func (i Input) valid() bool {
	return i >= 0 && int(i) < len(inputNames)
}

// ParseInput resolves a front-panel label to an Input, case-insensitively.
// Unknown labels return an InvalidChannelError.
func ParseInput(name string) (Input, error) {
	up := strings.ToUpper(strings.TrimSpace(name))
	for i, n := range inputNames {
		if n == up {
			return Input(i), nil
		}
	}
	return 0, InvalidChannelError{Name: name}
}

// InputForMux is the inverse of Mux, for code sitting on the pod side of
// the protocol.
func InputForMux(mux byte) (Input, bool) {
	i := Input(mux)
	return i, i.valid()
}

// slotInputs are the fixed bindings of capture slots 2..4.  Slot 1 is held
// by the session and may be remapped.
var slotInputs = [...]Input{CH2, CH3, MIC}

// NumSlots is how many capture slots the pod multiplexes.
const NumSlots = 4
