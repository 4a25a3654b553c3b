package registrar

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/Klingon-tech/bitname/internal/log"
	"github.com/Klingon-tech/bitname/internal/store"
	"github.com/Klingon-tech/bitname/pkg/registry"
	"github.com/Klingon-tech/bitname/pkg/script"
	"github.com/Klingon-tech/bitname/pkg/tx"
	"github.com/Klingon-tech/bitname/pkg/txlist"
	"github.com/Klingon-tech/bitname/pkg/types"
)

// Entry is a live registration with its name.
type Entry struct {
	Name string
	registry.Registration
}

// history returns the service's address history and the current height.
func (r *Registrar) history(ctx context.Context, servicePub []byte) (*txlist.List, int64, error) {
	if !script.ValidatePubKey(servicePub) {
		return nil, 0, types.ErrInvalidServicePublicKey
	}
	addr, err := script.P2PKHAddress(servicePub, r.params)
	if err != nil {
		return nil, 0, err
	}
	list, err := r.backend.AddressHistory(ctx, addr)
	if err != nil {
		return nil, 0, fmt.Errorf("service history: %w", err)
	}
	height, err := r.backend.BlockHeight(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("block height: %w", err)
	}
	return list, height, nil
}

// AllNames resolves the live registrations of a service, sorted by name.
// Resolved registries are cached by history fingerprint and height.
func (r *Registrar) AllNames(ctx context.Context, servicePub []byte) ([]Entry, error) {
	list, height, err := r.history(ctx, servicePub)
	if err != nil {
		return nil, err
	}

	fp := r.snapshotKey(list, servicePub)
	var regs map[string]registry.Registration
	if r.store != nil {
		regs, err = r.store.Snapshot(fp, height)
		switch {
		case err == nil:
			log.Registrar.Debug().Int64("height", height).Msg("registry snapshot hit")
		case errors.Is(err, store.ErrNotFound):
			regs = nil
		default:
			log.Registrar.Warn().Err(err).Msg("read registry snapshot")
			regs = nil
		}
	}
	if regs == nil {
		done := log.Benchmark("extract registry")
		regs = registry.ExtractInfo(list, servicePub, height, r.registryOptions()...)
		done()
		if r.store != nil {
			if err := r.store.PutSnapshot(fp, height, regs); err != nil {
				log.Registrar.Warn().Err(err).Msg("write registry snapshot")
			}
		}
	}

	entries := make([]Entry, 0, len(regs))
	for name, reg := range regs {
		entries = append(entries, Entry{Name: name, Registration: reg})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// snapshotKey identifies a resolution: the history, the service it was
// resolved for and the expiry mode.
func (r *Registrar) snapshotKey(list *txlist.List, servicePub []byte) [32]byte {
	fp := list.Fingerprint()
	b := make([]byte, 0, len(fp)+len(servicePub)+1)
	b = append(b, fp[:]...)
	b = append(b, servicePub...)
	if r.reg.RelativeExpiry {
		b = append(b, 'r')
	}
	return chainhash.HashH(b)
}

// DropSnapshots clears the registry snapshot cache.
func (r *Registrar) DropSnapshots() error {
	if r.store == nil {
		return nil
	}
	return r.store.PruneSnapshots()
}

// Status returns the lifecycle state of a lock transaction in the
// service's history. A commit transaction in the history reports its
// maturity instead.
func (r *Registrar) Status(ctx context.Context, servicePub []byte, txid chainhash.Hash) (registry.State, error) {
	list, height, err := r.history(ctx, servicePub)
	if err != nil {
		return registry.StateUncommitted, err
	}
	if !list.Has(txid) {
		return registry.StateUncommitted, nil
	}
	state, err := registry.StateOf(list, txid, servicePub, height)
	if err != nil {
		return state, err
	}
	if state == registry.StateInvalid {
		t, _ := list.TX(txid)
		if isCommitShape(t) {
			mined, _ := list.Height(txid)
			return registry.CommitState(mined, height), nil
		}
	}
	return state, nil
}

// isCommitShape reports whether t carries a commit transaction's nonce
// and escrow outputs.
func isCommitShape(t *wire.MsgTx) bool {
	return len(t.TxOut) > types.CommitEscrowOutput &&
		tx.IsValidZeroValueOpReturn(t.TxOut[types.CommitNonceOutput])
}

// PendingStatus is a pending commitment with its current maturity.
type PendingStatus struct {
	store.Pending
	State         registry.State
	Confirmations int64
}

// Pending lists the commitments awaiting their lock transaction with the
// maturity of each commit transaction.
func (r *Registrar) Pending(ctx context.Context) ([]PendingStatus, error) {
	if r.store == nil {
		return nil, nil
	}
	pending, err := r.store.ListPending()
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		return nil, nil
	}
	current, err := r.backend.BlockHeight(ctx)
	if err != nil {
		return nil, fmt.Errorf("block height: %w", err)
	}

	out := make([]PendingStatus, 0, len(pending))
	for _, p := range pending {
		ps := PendingStatus{Pending: p, State: registry.StateCommitted}
		txid, err := chainhash.NewHashFromStr(p.CommitTxid)
		if err != nil {
			return nil, fmt.Errorf("pending txid %q: %w", p.CommitTxid, err)
		}
		commitTx, err := r.backend.Transaction(ctx, *txid)
		if err == nil && len(commitTx.TxOut) > types.CommitEscrowOutput {
			height, err := r.backend.TxHeight(ctx, *txid, commitTx.TxOut[types.CommitEscrowOutput].PkScript)
			if err == nil {
				ps.State = registry.CommitState(height, current)
				ps.Confirmations = registry.Confirmations(height, current)
			}
		}
		out = append(out, ps)
	}
	return out, nil
}
