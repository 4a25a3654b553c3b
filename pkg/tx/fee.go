package tx

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/Klingon-tech/bitname/internal/log"
	"github.com/Klingon-tech/bitname/pkg/types"
)

// placeholderSigSize is the size assumed for a DER signature plus sighash
// byte while the real signature is not known yet.
const placeholderSigSize = 72

// VirtualSize returns the BIP-141 virtual size of a transaction in vbytes.
func VirtualSize(tx *wire.MsgTx) int64 {
	stripped := tx.SerializeSizeStripped()
	total := tx.SerializeSize()
	return int64((stripped*3 + total + 3) / 4)
}

// FeeForSize returns the fee for vsize vbytes at feeRate satoshis per
// kilobyte, rounded up.
func FeeForSize(vsize, feeRate int64) int64 {
	if vsize <= 0 || feeRate <= 0 {
		return 0
	}
	return (vsize*feeRate + 999) / 1000
}

// spend describes how to sign one input.
type spend struct {
	// subscript is the script the signature commits to.
	subscript []byte
	key       *btcec.PrivateKey
	// inputScript wraps a signature into the final input script.
	inputScript func(sig []byte) ([]byte, error)
}

// signInputs fills every input script. With placeholder set, a zeroed
// signature of placeholderSigSize bytes stands in for the real one.
func signInputs(tx *wire.MsgTx, spends []spend, placeholder bool) error {
	for i, sp := range spends {
		var sig []byte
		if placeholder {
			sig = make([]byte, placeholderSigSize)
		} else {
			var err error
			sig, err = txscript.RawTxInSignature(tx, i, sp.subscript, txscript.SigHashAll, sp.key)
			if err != nil {
				return fmt.Errorf("sign input %d: %w", i, err)
			}
		}
		s, err := sp.inputScript(sig)
		if err != nil {
			return fmt.Errorf("input %d script: %w", i, err)
		}
		tx.TxIn[i].SignatureScript = s
	}
	return nil
}

// payFee signs tx with placeholder signatures, measures it, deducts the fee
// from output changeIdx and signs again for real. The placeholder-signed
// transaction never leaves this function.
func payFee(tx *wire.MsgTx, spends []spend, changeIdx int, feeRate int64) (int64, error) {
	if err := signInputs(tx, spends, true); err != nil {
		return 0, err
	}

	vsize := VirtualSize(tx)
	fee := FeeForSize(vsize, feeRate)
	out := tx.TxOut[changeIdx]
	if out.Value-fee < 0 {
		return 0, types.Errorf(types.CodeInsufficientFunds,
			"insufficient funds: output %d holds %d, fee is %d", changeIdx, out.Value, fee)
	}
	out.Value -= fee

	if err := signInputs(tx, spends, false); err != nil {
		return 0, err
	}

	log.Builder.Debug().
		Int64("vsize", vsize).
		Int64("fee_rate", feeRate).
		Int64("fee", fee).
		Int("change_index", changeIdx).
		Msg("fee deducted")
	return fee, nil
}
