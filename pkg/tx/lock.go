package tx

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/Klingon-tech/bitname/pkg/commit"
	"github.com/Klingon-tech/bitname/pkg/script"
	"github.com/Klingon-tech/bitname/pkg/types"
)

// LockParams holds the inputs of GenLockTx.
type LockParams struct {
	CommitTx      *wire.MsgTx
	Name          string
	UpfrontFee    int64 // paid to the service
	LockedFee     int64 // locked until expiry or revocation
	FeeRate       int64 // satoshis per kilobyte
	User          *btcec.PrivateKey
	ServicePubKey []byte
	ExpiryHeight  uint32
}

// GenLockTx builds and signs the lock transaction revealing a commitment.
// It spends commit output 2 with a relative delay of CommitMaturity blocks:
//
//	0: P2PKH(service)      UpfrontFee
//	1: P2SH(lock script)   LockedFee
//	2: P2PKH(user)         change, minus the transaction fee
//
// The input script is <sig> <record> <commit script>.
func GenLockTx(p LockParams) (*wire.MsgTx, error) {
	if err := types.ValidateExpiryHeight(p.ExpiryHeight); err != nil {
		return nil, err
	}
	if err := types.ValidateName(p.Name); err != nil {
		return nil, err
	}
	if !script.ValidatePubKey(p.ServicePubKey) {
		return nil, types.ErrInvalidServicePublicKey
	}
	if p.User == nil {
		return nil, ErrMissingKey
	}
	if p.UpfrontFee < 0 || p.LockedFee < 0 || p.FeeRate < 0 {
		return nil, ErrNegativeAmount
	}

	userPub := p.User.PubKey().SerializeCompressed()
	if err := CheckCommitTx(p.CommitTx, userPub, p.ServicePubKey, p.Name, p.ExpiryHeight); err != nil {
		return nil, types.Errorf(types.CodeInvalidCommitment, "invalid commitment tx: %v", err)
	}
	nonce, _ := commitNonce(p.CommitTx)

	record, err := commit.Serialize(nonce, p.ExpiryHeight, p.Name)
	if err != nil {
		return nil, err
	}
	commitRedeem, err := script.CommitRedeemScript(userPub, nonce, p.Name, p.ExpiryHeight)
	if err != nil {
		return nil, err
	}
	lockRedeem, err := script.LockRedeemScript(userPub, p.ServicePubKey, p.ExpiryHeight)
	if err != nil {
		return nil, err
	}

	servicePkScript, err := p2pkhScript(p.ServicePubKey)
	if err != nil {
		return nil, types.ErrInvalidServicePublicKey
	}
	lockPkScript, err := p2shScript(lockRedeem)
	if err != nil {
		return nil, err
	}
	userPkScript, err := p2pkhScript(userPub)
	if err != nil {
		return nil, types.ErrInvalidUserPublicKey
	}

	commitHash := p.CommitTx.TxHash()
	escrow := p.CommitTx.TxOut[types.CommitEscrowOutput].Value

	tx := wire.NewMsgTx(2)
	in := wire.NewTxIn(wire.NewOutPoint(&commitHash, types.CommitEscrowOutput), nil, nil)
	in.Sequence = types.CommitMaturity
	tx.AddTxIn(in)

	tx.AddTxOut(wire.NewTxOut(p.UpfrontFee, servicePkScript))
	tx.AddTxOut(wire.NewTxOut(p.LockedFee, lockPkScript))
	tx.AddTxOut(wire.NewTxOut(escrow-p.UpfrontFee-p.LockedFee, userPkScript))

	spends := []spend{{
		subscript: commitRedeem,
		key:       p.User,
		inputScript: func(sig []byte) ([]byte, error) {
			return txscript.NewScriptBuilder().
				AddData(sig).
				AddData(record).
				AddData(commitRedeem).
				Script()
		},
	}}
	if _, err := payFee(tx, spends, types.LockChangeOutput, p.FeeRate); err != nil {
		return nil, err
	}
	return tx, nil
}
