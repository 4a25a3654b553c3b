// Package txlist holds an immutable, txid-indexed view of a transaction
// history: each transaction with its per-output spent flags and the height
// it was mined at.
package txlist

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/zeebo/blake3"

	"github.com/Klingon-tech/bitname/pkg/types"
)

// ErrNilTx is returned by New for a nil transaction.
var ErrNilTx = errors.New("nil transaction")

// OutputCountError reports a transaction whose spent flags do not cover
// its outputs exactly.
type OutputCountError struct {
	Txid     chainhash.Hash
	Got      int
	Expected int
}

func (e *OutputCountError) Error() string {
	return fmt.Sprintf("bad outputs for tx %s; got %d, expected %d", e.Txid, e.Got, e.Expected)
}

// Unwrap lets errors.Is match types.ErrOutputCountMismatch.
func (e *OutputCountError) Unwrap() error {
	return types.ErrOutputCountMismatch
}

type entry struct {
	tx     *wire.MsgTx
	spent  []bool
	height int64
}

// List is a transaction history. It is never modified after New.
type List struct {
	order   []chainhash.Hash
	entries map[chainhash.Hash]*entry
}

// New builds a List from three parallel sequences. spent[i] must hold one
// flag per output of txs[i]. Txids must be unique.
func New(txs []*wire.MsgTx, spent [][]bool, heights []int64) (*List, error) {
	if len(txs) != len(spent) || len(txs) != len(heights) {
		return nil, types.ErrLengthMismatch
	}

	l := &List{
		order:   make([]chainhash.Hash, 0, len(txs)),
		entries: make(map[chainhash.Hash]*entry, len(txs)),
	}
	for i, tx := range txs {
		if tx == nil {
			return nil, fmt.Errorf("tx %d: %w", i, ErrNilTx)
		}
		txid := tx.TxHash()
		if len(spent[i]) != len(tx.TxOut) {
			return nil, &OutputCountError{Txid: txid, Got: len(spent[i]), Expected: len(tx.TxOut)}
		}
		if _, dup := l.entries[txid]; dup {
			return nil, types.Errorf(types.CodeDuplicateTxid, "duplicate txid %s", txid)
		}

		flags := make([]bool, len(spent[i]))
		copy(flags, spent[i])
		l.entries[txid] = &entry{tx: tx, spent: flags, height: heights[i]}
		l.order = append(l.order, txid)
	}
	return l, nil
}

// Len returns the number of transactions.
func (l *List) Len() int {
	return len(l.order)
}

func (l *List) get(txid chainhash.Hash) (*entry, error) {
	e, ok := l.entries[txid]
	if !ok {
		return nil, types.Errorf(types.CodeUnknownTxid, "unknown txid '%s'", txid)
	}
	return e, nil
}

// TX returns the transaction with the given txid. The returned value is
// shared; callers must not modify it.
func (l *List) TX(txid chainhash.Hash) (*wire.MsgTx, error) {
	e, err := l.get(txid)
	if err != nil {
		return nil, err
	}
	return e.tx, nil
}

// Has reports whether txid is in the list.
func (l *List) Has(txid chainhash.Hash) bool {
	_, ok := l.entries[txid]
	return ok
}

// OutputSpent reports whether output index of txid is spent.
func (l *List) OutputSpent(txid chainhash.Hash, index uint32) (bool, error) {
	e, err := l.get(txid)
	if err != nil {
		return false, err
	}
	if int(index) >= len(e.spent) {
		return false, types.Errorf(types.CodeUnknownOutput, "unknown output '%d' for txid '%s'", index, txid)
	}
	return e.spent[index], nil
}

// Height returns the height txid was mined at.
func (l *List) Height(txid chainhash.Hash) (int64, error) {
	e, err := l.get(txid)
	if err != nil {
		return 0, err
	}
	return e.height, nil
}

// Txids returns the txids in insertion order. No ordering by height is
// implied; use Chronological for that.
func (l *List) Txids() []chainhash.Hash {
	out := make([]chainhash.Hash, len(l.order))
	copy(out, l.order)
	return out
}

// Chronological returns the txids oldest-mined first. Transactions mined at
// the same height keep their insertion order.
func (l *List) Chronological() []chainhash.Hash {
	out := l.Txids()
	sort.SliceStable(out, func(i, j int) bool {
		return l.entries[out[i]].height < l.entries[out[j]].height
	})
	return out
}

// Fingerprint returns a BLAKE3 digest over every (txid, height, spent
// flags) triple in insertion order. Two lists with the same fingerprint
// resolve to the same registrations.
func (l *List) Fingerprint() [32]byte {
	h := blake3.New()
	var buf [8]byte
	for _, txid := range l.order {
		e := l.entries[txid]
		h.Write(txid[:])
		binary.BigEndian.PutUint64(buf[:], uint64(e.height))
		h.Write(buf[:])
		binary.BigEndian.PutUint32(buf[:4], uint32(len(e.spent)))
		h.Write(buf[:4])
		for _, s := range e.spent {
			if s {
				h.Write([]byte{1})
			} else {
				h.Write([]byte{0})
			}
		}
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
