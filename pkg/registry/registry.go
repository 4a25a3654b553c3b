// Package registry reconstructs who owns which name from a transaction
// history.
//
// Resolution walks the history oldest-mined first. Every lock transaction
// that verifies against its own commit ancestor (present in the same
// history) and whose locked output is unspent becomes a candidate. The
// candidates are then reduced in one sequential pass:
//
//   - two candidates for the same name mined at the same height defeat each
//     other, and neither is registered;
//   - a later candidate only replaces an earlier one once the earlier one
//     has expired at the later one's height.
//
// Registrations that expired before the query height are dropped. A
// registration expiring exactly at the query height is still live.
package registry

import (
	"runtime"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"golang.org/x/sync/errgroup"

	"github.com/Klingon-tech/bitname/internal/log"
	"github.com/Klingon-tech/bitname/pkg/tx"
	"github.com/Klingon-tech/bitname/pkg/txlist"
	"github.com/Klingon-tech/bitname/pkg/types"
)

// Registration is a live name registration.
type Registration struct {
	Txid    chainhash.Hash // lock transaction
	PubKey  []byte         // registrant
	Expires int64
	Height  int64 // height the lock transaction was mined at
}

// ExpiryMode selects how Expires is derived from a revealed record.
type ExpiryMode int

const (
	// ExpiryAbsolute uses the revealed expiry height as is. The lock
	// script's service branch becomes spendable at that height.
	ExpiryAbsolute ExpiryMode = iota
	// ExpiryRelative adds the revealed value to the mined height, for
	// histories written when the expiry field was a block count.
	ExpiryRelative
)

type options struct {
	mode        ExpiryMode
	concurrency int
}

// Option configures ExtractInfo.
type Option func(*options)

// WithExpiryMode selects the expiry derivation. Default ExpiryAbsolute.
func WithExpiryMode(m ExpiryMode) Option {
	return func(o *options) { o.mode = m }
}

// WithConcurrency bounds parallel verification. Default GOMAXPROCS.
func WithConcurrency(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{mode: ExpiryAbsolute, concurrency: runtime.GOMAXPROCS(0)}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// candidate is a verified, unspent lock transaction.
type candidate struct {
	name string
	reg  Registration
}

type record struct {
	Registration
	invalid bool
}

// ExtractInfo returns the live registrations of list as of currentHeight,
// keyed by name, for the service identified by servicePub.
func ExtractInfo(list *txlist.List, servicePub []byte, currentHeight int64, opts ...Option) map[string]Registration {
	o := buildOptions(opts)
	defer log.Benchmark("extract_info")()

	candidates := collect(list, servicePub, o)

	records := make(map[string]*record)
	for _, c := range candidates {
		if c == nil {
			continue
		}
		existing, ok := records[c.name]
		if ok {
			if existing.Height == c.reg.Height {
				log.Registry.Debug().
					Str("name", c.name).
					Stringer("txid", c.reg.Txid).
					Stringer("rival", existing.Txid).
					Int64("height", c.reg.Height).
					Msg("same-height registrations defeat each other")
				existing.invalid = true
				continue
			}
			if existing.Expires >= c.reg.Height {
				log.Registry.Debug().
					Str("name", c.name).
					Stringer("txid", c.reg.Txid).
					Stringer("holder", existing.Txid).
					Msg("name still held")
				continue
			}
		}
		records[c.name] = &record{Registration: c.reg}
	}

	out := make(map[string]Registration, len(records))
	for name, r := range records {
		if r.invalid || r.Expires < currentHeight {
			continue
		}
		out[name] = r.Registration
	}
	return out
}

// collect verifies every transaction of list in parallel and returns the
// candidates in chronological order. Entries that are not candidates are nil.
func collect(list *txlist.List, servicePub []byte, o options) []*candidate {
	order := list.Chronological()
	candidates := make([]*candidate, len(order))

	var g errgroup.Group
	g.SetLimit(o.concurrency)
	for i, txid := range order {
		i, txid := i, txid
		g.Go(func() error {
			candidates[i] = examine(list, txid, servicePub, o.mode)
			return nil
		})
	}
	_ = g.Wait()
	return candidates
}

// examine returns the candidate for txid, or nil when txid is not a live
// lock transaction of this service.
func examine(list *txlist.List, txid chainhash.Hash, servicePub []byte, mode ExpiryMode) *candidate {
	lockTx, err := list.TX(txid)
	if err != nil || len(lockTx.TxIn) == 0 {
		return nil
	}

	funding := lockTx.TxIn[0].PreviousOutPoint.Hash
	commitTx, err := list.TX(funding)
	if err != nil {
		return nil
	}

	if err := tx.CheckLockTx(lockTx, commitTx, servicePub); err != nil {
		log.Registry.Debug().Stringer("txid", txid).Err(err).Msg("not a lock tx")
		return nil
	}
	reveal, err := tx.RevealOf(lockTx)
	if err != nil {
		return nil
	}

	height, err := list.Height(txid)
	if err != nil {
		return nil
	}
	expires := int64(reveal.Record.ExpiryHeight)
	if mode == ExpiryRelative {
		expires += height
	}

	spent, err := list.OutputSpent(txid, types.LockLockedOutput)
	if err != nil || spent {
		log.Registry.Debug().Stringer("txid", txid).Str("name", reveal.Record.Name).Msg("locked output spent")
		return nil
	}

	return &candidate{
		name: reveal.Record.Name,
		reg: Registration{
			Txid:    txid,
			PubKey:  reveal.PubKey,
			Expires: expires,
			Height:  height,
		},
	}
}
