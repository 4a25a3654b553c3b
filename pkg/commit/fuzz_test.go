package commit

import (
	"bytes"
	"testing"
)

// FuzzDeserialize checks that arbitrary bytes never panic the decoder and
// that every accepted encoding re-serializes to itself.
func FuzzDeserialize(f *testing.F) {
	valid, _ := Serialize(make([]byte, 32), 840000, "alice")
	f.Add(valid)
	f.Add([]byte{})
	f.Add(make([]byte, 37))
	f.Add(append(make([]byte, 36), 0xff, 'a'))

	f.Fuzz(func(t *testing.T, data []byte) {
		r, err := Deserialize(data)
		if err != nil {
			return
		}
		out, err := r.Bytes()
		if err != nil {
			// Decodable but out of protocol range, e.g. expiry above the
			// locktime limit.
			return
		}
		if !bytes.Equal(out, data) {
			t.Fatalf("re-serialized %x, decoded from %x", out, data)
		}
	})
}
