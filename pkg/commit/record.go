// Package commit encodes the (nonce, expiry height, name) tuple a registrant
// commits to. The byte layout is hashed into a Bitcoin script, so it must
// never change.
package commit

import (
	"bytes"
	"encoding/binary"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/Klingon-tech/bitname/pkg/types"
)

// Record is a decoded commitment.
type Record struct {
	Nonce        [types.NonceSize]byte
	ExpiryHeight uint32
	Name         string
}

// Serialize encodes a commitment as
//
//	nonce(32) | expiryHeight big-endian(4) | nameLen(1) | name
//
// Out-of-range fields are rejected, never truncated.
func Serialize(nonce []byte, expiryHeight uint32, name string) ([]byte, error) {
	if len(nonce) != types.NonceSize {
		return nil, types.Errorf(types.CodeNonceLength, "invalid nonce size: %d bytes, want %d", len(nonce), types.NonceSize)
	}
	if err := types.ValidateExpiryHeight(expiryHeight); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, types.ErrEmptyName
	}
	if len(name) > types.MaxNameLength {
		return nil, types.Errorf(types.CodeNameTooLong, "name is too long: %d bytes, max %d", len(name), types.MaxNameLength)
	}

	buf := make([]byte, 0, types.CommitRecordHeaderSize+len(name))
	buf = append(buf, nonce...)
	buf = binary.BigEndian.AppendUint32(buf, expiryHeight)
	buf = append(buf, byte(len(name)))
	buf = append(buf, name...)
	return buf, nil
}

// Deserialize decodes a commitment produced by Serialize.
// The name is returned as-is; charset rules are the caller's concern.
func Deserialize(data []byte) (*Record, error) {
	if len(data) < types.CommitRecordHeaderSize+1 {
		return nil, types.Errorf(types.CodeInvalidCommitData, "invalid commit data: %d bytes", len(data))
	}

	var r Record
	copy(r.Nonce[:], data[:types.NonceSize])
	r.ExpiryHeight = binary.BigEndian.Uint32(data[types.NonceSize:])

	nameLen := int(data[types.NonceSize+4])
	nameRaw := data[types.CommitRecordHeaderSize:]
	if len(nameRaw) != nameLen {
		return nil, types.Errorf(types.CodeNameLengthMismatch, "name has incorrect length: declared %d, got %d", nameLen, len(nameRaw))
	}
	r.Name = string(nameRaw)

	return &r, nil
}

// Bytes returns the serialized record.
func (r *Record) Bytes() ([]byte, error) {
	return Serialize(r.Nonce[:], r.ExpiryHeight, r.Name)
}

// Hash returns hash256 (double SHA-256) of the serialized record, the value
// a commit script checks the reveal against.
func (r *Record) Hash() (chainhash.Hash, error) {
	b, err := r.Bytes()
	if err != nil {
		return chainhash.Hash{}, err
	}
	return chainhash.DoubleHashH(b), nil
}

// Equal reports whether two records carry the same fields.
func (r *Record) Equal(other *Record) bool {
	if r == nil || other == nil {
		return r == other
	}
	return bytes.Equal(r.Nonce[:], other.Nonce[:]) &&
		r.ExpiryHeight == other.ExpiryHeight &&
		r.Name == other.Name
}
