package tx

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/Klingon-tech/bitname/pkg/script"
	"github.com/Klingon-tech/bitname/pkg/types"
)

// Input sequences of the two unlock branches.
const (
	userUnlockSequence    = 0
	serviceUnlockSequence = wire.MaxTxInSequenceNum - 1
)

// UnlockParams holds the inputs of GenUnlockTx.
type UnlockParams struct {
	LockTx   *wire.MsgTx
	CommitTx *wire.MsgTx
	FeeRate  int64 // satoshis per kilobyte
	// AsService selects the service branch (reclaim after expiry).
	// Otherwise the user branch (revocation) is used.
	AsService bool
	Signer    *btcec.PrivateKey
	// OtherPubKey is the user's key when AsService, the service's otherwise.
	OtherPubKey []byte
}

// GenUnlockTx spends lock output 1 back to the signer. The service branch
// sets the locktime to the revealed expiry height; the user branch sets a
// zero relative sequence. The single output pays the signer's P2PKH
// address, minus the transaction fee.
func GenUnlockTx(p UnlockParams) (*wire.MsgTx, error) {
	if p.Signer == nil {
		return nil, ErrMissingKey
	}
	if p.FeeRate < 0 {
		return nil, ErrNegativeAmount
	}

	signerPub := p.Signer.PubKey().SerializeCompressed()
	var userPub, servicePub []byte
	if p.AsService {
		if !script.ValidatePubKey(p.OtherPubKey) {
			return nil, types.ErrInvalidUserPublicKey
		}
		userPub, servicePub = p.OtherPubKey, signerPub
	} else {
		if !script.ValidatePubKey(p.OtherPubKey) {
			return nil, types.ErrInvalidServicePublicKey
		}
		userPub, servicePub = signerPub, p.OtherPubKey
	}

	if err := CheckLockTx(p.LockTx, p.CommitTx, servicePub); err != nil {
		return nil, types.Errorf(types.CodeBadLockTransaction, "bad lock transaction: %v", err)
	}
	reveal, err := RevealOf(p.LockTx)
	if err != nil {
		return nil, types.Errorf(types.CodeBadLockTransaction, "bad lock transaction: %v", err)
	}
	expiry := reveal.Record.ExpiryHeight

	lockRedeem, err := script.LockRedeemScript(userPub, servicePub, expiry)
	if err != nil {
		return nil, err
	}
	lockAddr, err := script.P2SHAddress(lockRedeem, scriptParams)
	if err != nil {
		return nil, err
	}
	locked := p.LockTx.TxOut[types.LockLockedOutput]
	if !script.SameDestination(locked.PkScript, lockAddr) {
		return nil, ErrWrongSigner
	}

	payout, err := p2pkhScript(signerPub)
	if err != nil {
		return nil, err
	}

	lockHash := p.LockTx.TxHash()
	tx := wire.NewMsgTx(2)
	in := wire.NewTxIn(wire.NewOutPoint(&lockHash, types.LockLockedOutput), nil, nil)
	var selector int64
	if p.AsService {
		tx.LockTime = expiry
		in.Sequence = serviceUnlockSequence
	} else {
		in.Sequence = userUnlockSequence
		selector = 1
	}
	tx.AddTxIn(in)
	tx.AddTxOut(wire.NewTxOut(locked.Value, payout))

	spends := []spend{{
		subscript: lockRedeem,
		key:       p.Signer,
		inputScript: func(sig []byte) ([]byte, error) {
			return txscript.NewScriptBuilder().
				AddData(sig).
				AddInt64(selector).
				AddData(lockRedeem).
				Script()
		},
	}}
	if _, err := payFee(tx, spends, 0, p.FeeRate); err != nil {
		return nil, err
	}
	return tx, nil
}
