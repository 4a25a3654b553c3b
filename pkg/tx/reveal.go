package tx

import (
	"bytes"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/Klingon-tech/bitname/pkg/commit"
	"github.com/Klingon-tech/bitname/pkg/script"
)

// Reveal is what a lock transaction's input discloses.
type Reveal struct {
	Signature    []byte
	Record       *commit.Record
	PubKey       []byte
	RedeemScript []byte
}

// RevealOf extracts the revealed commitment from input 0 of a lock
// transaction. The input script must be exactly
// <sig> <record> <commit script>, and the commit script must be the one
// rebuilt from the embedded key and the revealed record.
func RevealOf(lockTx *wire.MsgTx) (*Reveal, error) {
	if lockTx == nil || len(lockTx.TxIn) == 0 {
		return nil, verifyErr("lock tx has no inputs")
	}
	sigScript := lockTx.TxIn[0].SignatureScript
	if !txscript.IsPushOnlyScript(sigScript) {
		return nil, verifyErr("input 0 script is not push-only")
	}
	pushes, err := txscript.PushedData(sigScript)
	if err != nil {
		return nil, verifyErr("parse input 0 script: %v", err)
	}
	if len(pushes) != 3 {
		return nil, verifyErr("input 0 script has %d pushes, want 3", len(pushes))
	}

	redeem := pushes[2]
	pub, ok := script.CommitScriptPubKey(redeem)
	if !ok || !script.ValidatePubKey(pub) {
		return nil, verifyErr("commit script carries no valid user key")
	}
	rec, err := commit.Deserialize(pushes[1])
	if err != nil {
		return nil, verifyErr("revealed record: %v", err)
	}

	rebuilt, err := script.CommitRedeemScript(pub, rec.Nonce[:], rec.Name, rec.ExpiryHeight)
	if err != nil {
		return nil, verifyErr("rebuild commit script: %v", err)
	}
	if !bytes.Equal(rebuilt, redeem) {
		return nil, verifyErr("revealed commit script does not match the record")
	}

	return &Reveal{
		Signature:    pushes[0],
		Record:       rec,
		PubKey:       pub,
		RedeemScript: redeem,
	}, nil
}
