package tx

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/Klingon-tech/bitname/pkg/script"
	"github.com/Klingon-tech/bitname/pkg/types"
)

// Builder errors outside the protocol error set.
var (
	ErrNoCoins        = errors.New("no coins to spend")
	ErrNegativeAmount = errors.New("negative amount")
	ErrMissingKey     = errors.New("missing signing key")
	ErrWrongSigner    = errors.New("signing key is not a party to the lock")
)

// scriptParams only selects address encodings; output scripts are the same
// on every network.
var scriptParams = &chaincfg.MainNetParams

// Coin is a spendable P2PKH output owned by the signing key.
type Coin struct {
	OutPoint wire.OutPoint
	Value    int64
	// PkScript of the output. Empty means the signer's P2PKH script.
	PkScript []byte
}

// CommitParams holds the inputs of GenCommitTx.
type CommitParams struct {
	// Coins are all spent; funding sufficiency is the caller's concern.
	Coins        []Coin
	Name         string
	ExpiryHeight uint32
	CommitFee    int64 // paid to the service now
	RegisterFee  int64 // paid to the service by the lock tx
	EscrowFee    int64 // locked by the lock tx
	FeeRate      int64 // satoshis per kilobyte
	User         *btcec.PrivateKey
	// ServicePubKey is the service's compressed public key.
	ServicePubKey []byte
	// Rand is the nonce source. Nil means crypto/rand.
	Rand io.Reader
}

// escrowValue is the amount output 2 locks for the lock transaction.
func escrowValue(p CommitParams) int64 {
	return p.RegisterFee + p.EscrowFee + 4*p.FeeRate
}

// GenCommitTx builds and signs a commit transaction:
//
//	0: OP_RETURN <nonce>                     value 0
//	1: P2PKH(service)                        CommitFee
//	2: P2SH(commit script)                   RegisterFee + EscrowFee + 4*FeeRate
//	3: P2PKH(user)                           change, minus the transaction fee
//
// The escrow carries four kilobytes worth of fee so the lock transaction can
// pay for itself.
func GenCommitTx(p CommitParams) (*wire.MsgTx, error) {
	if err := types.ValidateName(p.Name); err != nil {
		return nil, err
	}
	if !script.ValidatePubKey(p.ServicePubKey) {
		return nil, types.ErrInvalidServicePublicKey
	}
	if err := types.ValidateExpiryHeight(p.ExpiryHeight); err != nil {
		return nil, err
	}
	if p.User == nil {
		return nil, ErrMissingKey
	}
	if len(p.Coins) == 0 {
		return nil, ErrNoCoins
	}
	if p.CommitFee < 0 || p.RegisterFee < 0 || p.EscrowFee < 0 || p.FeeRate < 0 {
		return nil, ErrNegativeAmount
	}
	// The verifier rejects empty service and escrow outputs.
	if p.CommitFee == 0 {
		return nil, types.Errorf(types.CodeZeroAmount, "commit fee must be positive")
	}
	if escrowValue(p) == 0 {
		return nil, types.Errorf(types.CodeZeroAmount, "escrow must be positive")
	}

	rnd := p.Rand
	if rnd == nil {
		rnd = rand.Reader
	}
	nonce := make([]byte, types.NonceSize)
	if _, err := io.ReadFull(rnd, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	userPub := p.User.PubKey().SerializeCompressed()
	redeem, err := script.CommitRedeemScript(userPub, nonce, p.Name, p.ExpiryHeight)
	if err != nil {
		return nil, err
	}

	nonceScript, err := script.NonceScript(nonce)
	if err != nil {
		return nil, err
	}
	servicePkScript, err := p2pkhScript(p.ServicePubKey)
	if err != nil {
		return nil, types.ErrInvalidServicePublicKey
	}
	escrowPkScript, err := p2shScript(redeem)
	if err != nil {
		return nil, err
	}
	userPkScript, err := p2pkhScript(userPub)
	if err != nil {
		return nil, types.ErrInvalidUserPublicKey
	}

	tx := wire.NewMsgTx(wire.TxVersion)
	spends := make([]spend, 0, len(p.Coins))
	var total int64
	for i := range p.Coins {
		c := p.Coins[i]
		if c.Value < 0 {
			return nil, fmt.Errorf("coin %d: %w", i, ErrNegativeAmount)
		}
		total += c.Value
		tx.AddTxIn(wire.NewTxIn(&c.OutPoint, nil, nil))

		subscript := c.PkScript
		if len(subscript) == 0 {
			subscript = userPkScript
		}
		spends = append(spends, spend{
			subscript:   subscript,
			key:         p.User,
			inputScript: p2pkhInputScript(userPub),
		})
	}

	escrow := escrowValue(p)
	change := total - p.CommitFee - escrow

	tx.AddTxOut(wire.NewTxOut(0, nonceScript))
	tx.AddTxOut(wire.NewTxOut(p.CommitFee, servicePkScript))
	tx.AddTxOut(wire.NewTxOut(escrow, escrowPkScript))
	tx.AddTxOut(wire.NewTxOut(change, userPkScript))

	if _, err := payFee(tx, spends, types.CommitChangeOutput, p.FeeRate); err != nil {
		return nil, err
	}
	return tx, nil
}

func p2pkhScript(pub []byte) ([]byte, error) {
	addr, err := script.P2PKHAddress(pub, scriptParams)
	if err != nil {
		return nil, err
	}
	return script.PayTo(addr)
}

func p2shScript(redeem []byte) ([]byte, error) {
	addr, err := script.P2SHAddress(redeem, scriptParams)
	if err != nil {
		return nil, err
	}
	return script.PayTo(addr)
}

func p2pkhInputScript(pub []byte) func([]byte) ([]byte, error) {
	return func(sig []byte) ([]byte, error) {
		return txscript.NewScriptBuilder().AddData(sig).AddData(pub).Script()
	}
}
