package tx

import (
	"testing"
)

// FuzzRevealOf tests that arbitrary raw transactions do not panic reveal
// extraction or the zero-value OP_RETURN check.
func FuzzRevealOf(f *testing.F) {
	f.Add([]byte{})
	f.Add([]byte{0x02, 0, 0, 0, 0x01})
	// version 2, one input with an empty script, no outputs, locktime 0
	f.Add(append(append([]byte{0x02, 0, 0, 0, 0x01}, make([]byte, 36)...), 0x00, 0xff, 0xff, 0xff, 0xff, 0x00, 0, 0, 0, 0))

	f.Fuzz(func(t *testing.T, raw []byte) {
		msg, err := DecodeTx(raw)
		if err != nil {
			return
		}
		RevealOf(msg) // May fail but must not panic.
		for _, out := range msg.TxOut {
			IsValidZeroValueOpReturn(out)
		}
	})
}
