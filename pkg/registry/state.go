package registry

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"

	"github.com/Klingon-tech/bitname/pkg/tx"
	"github.com/Klingon-tech/bitname/pkg/txlist"
	"github.com/Klingon-tech/bitname/pkg/types"
)

// State is the position of a registration in its lifecycle:
//
//	UNCOMMITTED -> COMMITTED -> MATURING -> LOCKED -> REVOKED | EXPIRED | RECLAIMED
//
// Only LOCKED counts as registered.
type State int

const (
	StateUncommitted State = iota
	// StateCommitted: commit transaction broadcast, not yet mined.
	StateCommitted
	// StateMaturing: commit mined, relative delay not yet satisfied.
	StateMaturing
	// StateMature: commit mined long enough ago to be revealed.
	StateMature
	// StateLocked: lock transaction live and holding the name.
	StateLocked
	// StateDefeated: lock transaction live but not holding the name, either
	// because of a same-height rival or an earlier unexpired holder.
	StateDefeated
	// StateRevoked: locked output spent through the user branch.
	StateRevoked
	// StateReclaimed: locked output spent through the service branch.
	StateReclaimed
	// StateSpent: locked output spent by a transaction outside the history.
	StateSpent
	// StateExpired: expiry height passed, locked output still unspent.
	StateExpired
	// StateInvalid: not a valid lock transaction for the service.
	StateInvalid
)

func (s State) String() string {
	switch s {
	case StateUncommitted:
		return "uncommitted"
	case StateCommitted:
		return "committed"
	case StateMaturing:
		return "maturing"
	case StateMature:
		return "mature"
	case StateLocked:
		return "locked"
	case StateDefeated:
		return "defeated"
	case StateRevoked:
		return "revoked"
	case StateReclaimed:
		return "reclaimed"
	case StateSpent:
		return "spent"
	case StateExpired:
		return "expired"
	case StateInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Confirmations returns how many blocks have confirmed a transaction mined
// at height, counting its own block. Unmined transactions (height <= 0)
// have none.
func Confirmations(height, currentHeight int64) int64 {
	if height <= 0 || currentHeight < height {
		return 0
	}
	return currentHeight - height + 1
}

// CommitState returns the state of a commit transaction mined at
// commitHeight (<= 0 when unmined).
func CommitState(commitHeight, currentHeight int64) State {
	switch conf := Confirmations(commitHeight, currentHeight); {
	case commitHeight <= 0:
		return StateCommitted
	case conf < types.CommitMaturity:
		return StateMaturing
	default:
		return StateMature
	}
}

// StateOf returns the state of lock transaction lockTxid in list as of
// currentHeight. It fails only when lockTxid is not in list.
func StateOf(list *txlist.List, lockTxid chainhash.Hash, servicePub []byte, currentHeight int64, opts ...Option) (State, error) {
	lockTx, err := list.TX(lockTxid)
	if err != nil {
		return StateUncommitted, err
	}
	o := buildOptions(opts)
	c := examine(list, lockTxid, servicePub, o.mode)
	if c == nil {
		if len(lockTx.TxIn) == 0 || !list.Has(lockTx.TxIn[0].PreviousOutPoint.Hash) {
			return StateInvalid, nil
		}
		commitTx, _ := list.TX(lockTx.TxIn[0].PreviousOutPoint.Hash)
		if !tx.VerifyLockTx(lockTx, commitTx, servicePub) {
			return StateInvalid, nil
		}
		return spentState(list, lockTxid), nil
	}

	if c.reg.Expires < currentHeight {
		return StateExpired, nil
	}
	live := ExtractInfo(list, servicePub, currentHeight, opts...)
	if reg, ok := live[c.name]; ok && reg.Txid == lockTxid {
		return StateLocked, nil
	}
	return StateDefeated, nil
}

// spentState finds the transaction spending the locked output of lockTxid
// and reports which branch it used.
func spentState(list *txlist.List, lockTxid chainhash.Hash) State {
	for _, txid := range list.Txids() {
		spender, _ := list.TX(txid)
		for _, in := range spender.TxIn {
			prev := in.PreviousOutPoint
			if prev.Hash != lockTxid || prev.Index != types.LockLockedOutput {
				continue
			}
			return unlockBranch(in.SignatureScript)
		}
	}
	return StateSpent
}

// unlockBranch reads the branch selector, the second element of an unlock
// input script.
func unlockBranch(sigScript []byte) State {
	tokenizer := txscript.MakeScriptTokenizer(0, sigScript)
	if !tokenizer.Next() || !tokenizer.Next() {
		return StateSpent
	}
	switch tokenizer.Opcode() {
	case txscript.OP_0:
		return StateReclaimed
	case txscript.OP_1:
		return StateRevoked
	default:
		return StateSpent
	}
}
