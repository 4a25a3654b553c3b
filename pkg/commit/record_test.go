package commit

import (
	"bytes"
	"encoding/hex"
	"errors"
	"math/rand"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/Klingon-tech/bitname/pkg/types"
)

func testNonce(seed byte) []byte {
	n := make([]byte, types.NonceSize)
	for i := range n {
		n[i] = seed + byte(i)
	}
	return n
}

func TestSerialize_Layout(t *testing.T) {
	nonce := testNonce(0x10)
	b, err := Serialize(nonce, 0x01020304, "colin")
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}

	if len(b) != 32+4+1+5 {
		t.Fatalf("len = %d, want %d", len(b), 42)
	}
	if !bytes.Equal(b[:32], nonce) {
		t.Error("nonce not at offset 0")
	}
	if got := hex.EncodeToString(b[32:36]); got != "01020304" {
		t.Errorf("expiry bytes = %s, want big-endian 01020304", got)
	}
	if b[36] != 5 {
		t.Errorf("name length byte = %d, want 5", b[36])
	}
	if string(b[37:]) != "colin" {
		t.Errorf("name = %q", b[37:])
	}
}

func TestSerialize_Errors(t *testing.T) {
	tests := []struct {
		name   string
		nonce  []byte
		expiry uint32
		label  string
		want   error
	}{
		{"short nonce", make([]byte, 31), 10, "a", types.ErrNonceLength},
		{"long nonce", make([]byte, 33), 10, "a", types.ErrNonceLength},
		{"nil nonce", nil, 10, "a", types.ErrNonceLength},
		{"expiry past split", testNonce(0), types.MaxExpiryHeight + 1, "a", types.ErrLocktimeRange},
		{"name too long", testNonce(0), 10, strings.Repeat("x", 65), types.ErrNameTooLong},
		{"empty name", testNonce(0), 10, "", types.ErrEmptyName},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Serialize(tt.nonce, tt.expiry, tt.label)
			if !errors.Is(err, tt.want) {
				t.Errorf("Serialize error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSerialize_Boundaries(t *testing.T) {
	if _, err := Serialize(testNonce(0), types.MaxExpiryHeight, strings.Repeat("x", 64)); err != nil {
		t.Errorf("boundary values rejected: %v", err)
	}
}

func TestDeserialize_Errors(t *testing.T) {
	valid, err := Serialize(testNonce(1), 80, "test")
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"empty", nil, types.ErrInvalidCommitData},
		{"37 bytes", valid[:37], types.ErrInvalidCommitData},
		{"truncated name", valid[:len(valid)-1], types.ErrNameLengthMismatch},
		{"trailing byte", append(append([]byte{}, valid...), 'x'), types.ErrNameLengthMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Deserialize(tt.data)
			if !errors.Is(err, tt.want) {
				t.Errorf("Deserialize error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789_.~-"

	for i := 0; i < 200; i++ {
		nonce := make([]byte, types.NonceSize)
		rng.Read(nonce)
		expiry := uint32(rng.Int63n(types.MaxExpiryHeight + 1))
		nameLen := 1 + rng.Intn(types.MaxNameLength)
		name := make([]byte, nameLen)
		for j := range name {
			name[j] = charset[rng.Intn(len(charset))]
		}

		b, err := Serialize(nonce, expiry, string(name))
		if err != nil {
			t.Fatalf("Serialize(%x, %d, %q): %v", nonce, expiry, name, err)
		}
		r, err := Deserialize(b)
		if err != nil {
			t.Fatalf("Deserialize: %v", err)
		}
		if !bytes.Equal(r.Nonce[:], nonce) || r.ExpiryHeight != expiry || r.Name != string(name) {
			t.Fatalf("round trip mismatch: got {%x %d %q}, want {%x %d %q}",
				r.Nonce, r.ExpiryHeight, r.Name, nonce, expiry, name)
		}
	}
}

func TestRecord_Hash(t *testing.T) {
	r := &Record{ExpiryHeight: 80, Name: "bepis"}
	copy(r.Nonce[:], testNonce(7))

	b, err := r.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	h, err := r.Hash()
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if h != chainhash.DoubleHashH(b) {
		t.Error("Hash() is not hash256 of the serialized record")
	}
}

func TestRecord_Equal(t *testing.T) {
	a := &Record{ExpiryHeight: 1, Name: "a"}
	b := &Record{ExpiryHeight: 1, Name: "a"}
	if !a.Equal(b) {
		t.Error("identical records should be equal")
	}
	b.Nonce[0] = 1
	if a.Equal(b) {
		t.Error("records with different nonces should differ")
	}
	if a.Equal(nil) {
		t.Error("record should not equal nil")
	}
}
