// Package script builds and inspects the two redeem scripts of the bitname
// protocol and the standard output scripts around them.
//
// Commit script (escrow output of a commit transaction):
//
//	6 CHECKSEQUENCEVERIFY DROP HASH256 <hash256(record)> EQUALVERIFY <user> CHECKSIG
//
// Lock script (locked-fee output of a lock transaction):
//
//	IF 0 CHECKSEQUENCEVERIFY DROP <user> CHECKSIG
//	ELSE <expiry> CHECKLOCKTIMEVERIFY DROP <service> CHECKSIG ENDIF
//
// Both layouts are fixed: funds already committed are only spendable by the
// exact byte sequences built here.
package script

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/Klingon-tech/bitname/pkg/commit"
	"github.com/Klingon-tech/bitname/pkg/types"
)

// CompressedPubKeySize is the only accepted public key encoding.
const CompressedPubKeySize = 33

// commitPubKeyIndex is the opcode position of the user key in a commit script.
const commitPubKeyIndex = 6

// ValidatePubKey reports whether pub is a compressed point on secp256k1.
func ValidatePubKey(pub []byte) bool {
	if len(pub) != CompressedPubKeySize {
		return false
	}
	if pub[0] != secp256k1.PubKeyFormatCompressedEven && pub[0] != secp256k1.PubKeyFormatCompressedOdd {
		return false
	}
	_, err := secp256k1.ParsePubKey(pub)
	return err == nil
}

// LockRedeemScript builds the dual-branch lock script. The user branch is
// spendable at any time, the service branch once the chain reaches
// expiryHeight.
func LockRedeemScript(userPub, servicePub []byte, expiryHeight uint32) ([]byte, error) {
	if !ValidatePubKey(userPub) {
		return nil, types.ErrInvalidUserPublicKey
	}
	if !ValidatePubKey(servicePub) {
		return nil, types.ErrInvalidServicePublicKey
	}
	if err := types.ValidateExpiryHeight(expiryHeight); err != nil {
		return nil, err
	}

	return txscript.NewScriptBuilder().
		AddOp(txscript.OP_IF).
		AddInt64(0).
		AddOp(txscript.OP_CHECKSEQUENCEVERIFY).
		AddOp(txscript.OP_DROP).
		AddData(userPub).
		AddOp(txscript.OP_CHECKSIG).
		AddOp(txscript.OP_ELSE).
		AddInt64(int64(expiryHeight)).
		AddOp(txscript.OP_CHECKLOCKTIMEVERIFY).
		AddOp(txscript.OP_DROP).
		AddData(servicePub).
		AddOp(txscript.OP_CHECKSIG).
		AddOp(txscript.OP_ENDIF).
		Script()
}

// CommitRedeemScript builds the commit script binding a later reveal to
// (nonce, expiryHeight, name) and to the user's signature.
func CommitRedeemScript(userPub, nonce []byte, name string, expiryHeight uint32) ([]byte, error) {
	if !ValidatePubKey(userPub) {
		return nil, types.ErrInvalidUserPublicKey
	}
	record, err := commit.Serialize(nonce, expiryHeight, name)
	if err != nil {
		return nil, err
	}

	return txscript.NewScriptBuilder().
		AddInt64(types.CommitMaturity).
		AddOp(txscript.OP_CHECKSEQUENCEVERIFY).
		AddOp(txscript.OP_DROP).
		AddOp(txscript.OP_HASH256).
		AddData(chainhash.DoubleHashB(record)).
		AddOp(txscript.OP_EQUALVERIFY).
		AddData(userPub).
		AddOp(txscript.OP_CHECKSIG).
		Script()
}

// CommitScriptPubKey returns the user key embedded in a commit redeem
// script. It only looks at the fixed key position; callers rebuild the full
// script from the result to check the rest.
func CommitScriptPubKey(redeemScript []byte) ([]byte, bool) {
	tokenizer := txscript.MakeScriptTokenizer(0, redeemScript)
	for i := 0; tokenizer.Next(); i++ {
		if i == commitPubKeyIndex {
			data := tokenizer.Data()
			if len(data) == 0 {
				return nil, false
			}
			pub := make([]byte, len(data))
			copy(pub, data)
			return pub, true
		}
	}
	return nil, false
}

// NonceScript returns the OP_RETURN script carrying a commit nonce.
func NonceScript(nonce []byte) ([]byte, error) {
	if len(nonce) != types.NonceSize {
		return nil, types.Errorf(types.CodeNonceLength, "invalid nonce size: %d bytes, want %d", len(nonce), types.NonceSize)
	}
	return txscript.NullDataScript(nonce)
}

// Disasm renders a script one opcode per token. Unparseable tails are
// marked by txscript with "[error]".
func Disasm(s []byte) string {
	str, _ := txscript.DisasmString(s)
	return str
}
