// Package tx builds and verifies the three transactions of a bitname
// registration: commit, lock and unlock.
//
// Builders take a parameter struct and return a fully signed
// *wire.MsgTx. Verifiers rebuild every expected script from the claimed
// parameters and compare destinations, so a transaction is only accepted
// when it could have been produced by the builders.
package tx

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/wire"
)

// SerializeTx returns the hex encoding of a transaction.
func SerializeTx(tx *wire.MsgTx) (string, error) {
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return "", fmt.Errorf("serialize tx: %w", err)
	}
	return hex.EncodeToString(buf.Bytes()), nil
}

// DeserializeTx decodes a hex-encoded transaction.
func DeserializeTx(hexStr string) (*wire.MsgTx, error) {
	raw, err := hex.DecodeString(hexStr)
	if err != nil {
		return nil, fmt.Errorf("decode hex: %w", err)
	}
	return DecodeTx(raw)
}

// DecodeTx decodes a raw transaction.
func DecodeTx(raw []byte) (*wire.MsgTx, error) {
	tx := wire.NewMsgTx(wire.TxVersion)
	if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("deserialize tx: %w", err)
	}
	return tx, nil
}
