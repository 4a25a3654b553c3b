package tx

import (
	"bytes"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/Klingon-tech/bitname/internal/log"
	"github.com/Klingon-tech/bitname/pkg/script"
	"github.com/Klingon-tech/bitname/pkg/types"
)

// ScriptFlags are the script rules a lock input is executed under.
const ScriptFlags = txscript.ScriptBip16 |
	txscript.ScriptVerifyDERSignatures |
	txscript.ScriptVerifyStrictEncoding |
	txscript.ScriptVerifyCheckLockTimeVerify |
	txscript.ScriptVerifyCheckSequenceVerify

func verifyErr(format string, args ...interface{}) error {
	return types.Errorf(types.CodeVerification, format, args...)
}

// IsValidZeroValueOpReturn reports whether out is a zero-value null-data
// output of exactly two script elements: OP_RETURN and one push.
func IsValidZeroValueOpReturn(out *wire.TxOut) bool {
	if out == nil || out.Value != 0 {
		return false
	}
	if txscript.GetScriptClass(out.PkScript) != txscript.NullDataTy {
		return false
	}
	tokenizer := txscript.MakeScriptTokenizer(0, out.PkScript)
	n := 0
	for tokenizer.Next() {
		n++
	}
	return tokenizer.Err() == nil && n == 2
}

// commitNonce returns the nonce pushed by commit output 0.
func commitNonce(tx *wire.MsgTx) ([]byte, bool) {
	if tx == nil || len(tx.TxOut) == 0 || !IsValidZeroValueOpReturn(tx.TxOut[types.CommitNonceOutput]) {
		return nil, false
	}
	pushes, err := txscript.PushedData(tx.TxOut[types.CommitNonceOutput].PkScript)
	if err != nil || len(pushes) != 1 || len(pushes[0]) != types.NonceSize {
		return nil, false
	}
	return pushes[0], true
}

// VerifyCommitTx reports whether tx is a commit transaction for
// (userPub, name, expiryHeight) paying servicePub.
func VerifyCommitTx(tx *wire.MsgTx, userPub, servicePub []byte, name string, expiryHeight uint32) bool {
	if err := CheckCommitTx(tx, userPub, servicePub, name, expiryHeight); err != nil {
		log.Verify.Debug().Err(err).Str("name", name).Msg("commit tx rejected")
		return false
	}
	return true
}

// CheckCommitTx is VerifyCommitTx returning the reason for rejection.
// Output 3 (change) is not inspected. Outputs 1 and 2 must carry value.
func CheckCommitTx(tx *wire.MsgTx, userPub, servicePub []byte, name string, expiryHeight uint32) error {
	if tx == nil {
		return verifyErr("missing commit tx")
	}
	if len(tx.TxOut) < 3 {
		return verifyErr("commit tx has %d outputs, need at least 3", len(tx.TxOut))
	}
	if err := types.ValidateName(name); err != nil {
		return verifyErr("commit name: %v", err)
	}
	nonce, ok := commitNonce(tx)
	if !ok {
		return verifyErr("output 0 is not a zero-value nonce commitment")
	}

	serviceAddr, err := script.P2PKHAddress(servicePub, scriptParams)
	if err != nil {
		return verifyErr("service key: %v", types.ErrInvalidServicePublicKey)
	}
	out := tx.TxOut[types.CommitServiceOutput]
	if !script.SameDestination(out.PkScript, serviceAddr) {
		return verifyErr("output 1 does not pay the service")
	}
	if out.Value <= 0 {
		return verifyErr("output 1 carries no value")
	}

	redeem, err := script.CommitRedeemScript(userPub, nonce, name, expiryHeight)
	if err != nil {
		return verifyErr("rebuild commit script: %v", err)
	}
	escrowAddr, err := script.P2SHAddress(redeem, scriptParams)
	if err != nil {
		return verifyErr("commit script address: %v", err)
	}
	out = tx.TxOut[types.CommitEscrowOutput]
	if !script.SameDestination(out.PkScript, escrowAddr) {
		return verifyErr("output 2 does not pay the commit script")
	}
	if out.Value <= 0 {
		return verifyErr("output 2 carries no value")
	}
	return nil
}

// VerifyLockTx reports whether tx is a lock transaction paying servicePub
// and revealing a commitment made by commitTx.
func VerifyLockTx(tx, commitTx *wire.MsgTx, servicePub []byte) bool {
	if err := CheckLockTx(tx, commitTx, servicePub); err != nil {
		log.Verify.Debug().Err(err).Msg("lock tx rejected")
		return false
	}
	return true
}

// CheckLockTx is VerifyLockTx returning the reason for rejection. Beyond
// the output checks, input 0 must spend commit output 2 of commitTx, the
// revealed nonce must be the one committed in commitTx, and the input
// script must execute successfully against the commit escrow.
func CheckLockTx(tx, commitTx *wire.MsgTx, servicePub []byte) error {
	if tx == nil || commitTx == nil {
		return verifyErr("missing lock or commit tx")
	}
	if len(tx.TxIn) == 0 {
		return verifyErr("lock tx has no inputs")
	}
	if len(tx.TxOut) < 2 {
		return verifyErr("lock tx has %d outputs, need at least 2", len(tx.TxOut))
	}

	prev := tx.TxIn[0].PreviousOutPoint
	if prev.Hash != commitTx.TxHash() || prev.Index != types.CommitEscrowOutput {
		return verifyErr("input 0 spends %s, not the commit escrow", prev)
	}

	reveal, err := RevealOf(tx)
	if err != nil {
		return err
	}
	rec := reveal.Record
	if err := types.ValidateName(rec.Name); err != nil {
		return verifyErr("revealed name: %v", err)
	}

	serviceAddr, err := script.P2PKHAddress(servicePub, scriptParams)
	if err != nil {
		return verifyErr("service key: %v", types.ErrInvalidServicePublicKey)
	}
	if !script.SameDestination(tx.TxOut[types.LockServiceOutput].PkScript, serviceAddr) {
		return verifyErr("output 0 does not pay the service")
	}

	lockRedeem, err := script.LockRedeemScript(reveal.PubKey, servicePub, rec.ExpiryHeight)
	if err != nil {
		return verifyErr("rebuild lock script: %v", err)
	}
	lockAddr, err := script.P2SHAddress(lockRedeem, scriptParams)
	if err != nil {
		return verifyErr("lock script address: %v", err)
	}
	if !script.SameDestination(tx.TxOut[types.LockLockedOutput].PkScript, lockAddr) {
		return verifyErr("output 1 does not pay the lock script")
	}

	if err := CheckCommitTx(commitTx, reveal.PubKey, servicePub, rec.Name, rec.ExpiryHeight); err != nil {
		return verifyErr("commit ancestor: %v", err)
	}
	nonce, _ := commitNonce(commitTx)
	if !bytes.Equal(nonce, rec.Nonce[:]) {
		return verifyErr("revealed nonce differs from the committed one")
	}

	if err := ExecuteInput(tx, 0, commitTx.TxOut[types.CommitEscrowOutput]); err != nil {
		return verifyErr("input 0 script: %v", err)
	}
	return nil
}

// ExecuteInput runs input idx of tx against the output it spends.
func ExecuteInput(tx *wire.MsgTx, idx int, prevOut *wire.TxOut) error {
	fetcher := txscript.NewCannedPrevOutputFetcher(prevOut.PkScript, prevOut.Value)
	vm, err := txscript.NewEngine(prevOut.PkScript, tx, idx, ScriptFlags, nil,
		txscript.NewTxSigHashes(tx, fetcher), prevOut.Value, fetcher)
	if err != nil {
		return err
	}
	return vm.Execute()
}
