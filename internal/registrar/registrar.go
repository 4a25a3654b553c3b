// Package registrar drives name registrations against the network: it
// funds and broadcasts commit, lock and unlock transactions, and resolves
// the registry of a service from its address history.
package registrar

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/Klingon-tech/bitname/config"
	"github.com/Klingon-tech/bitname/internal/log"
	"github.com/Klingon-tech/bitname/internal/store"
	"github.com/Klingon-tech/bitname/pkg/registry"
	"github.com/Klingon-tech/bitname/pkg/script"
	"github.com/Klingon-tech/bitname/pkg/tx"
	"github.com/Klingon-tech/bitname/pkg/txlist"
	"github.com/Klingon-tech/bitname/pkg/types"
)

var (
	// ErrNotMature is returned when registering before the commit
	// transaction has CommitMaturity confirmations.
	ErrNotMature = errors.New("commit transaction not mature")
	// ErrNotExpired is returned when the service reclaims a registration
	// before its expiry height.
	ErrNotExpired = errors.New("registration not expired")
	// ErrNoName is returned by Register when neither the request nor a
	// pending commitment names the registration.
	ErrNoName = errors.New("registration name unknown")
)

// Backend is the network the registrar reads from and broadcasts to.
type Backend interface {
	FeeRate(ctx context.Context) (int64, error)
	BlockHeight(ctx context.Context) (int64, error)
	UTXOs(ctx context.Context, addr btcutil.Address, minValue int64) ([]tx.Coin, error)
	Transaction(ctx context.Context, txid chainhash.Hash) (*wire.MsgTx, error)
	TxHeight(ctx context.Context, txid chainhash.Hash, pkScript []byte) (int64, error)
	AddressHistory(ctx context.Context, addr btcutil.Address) (*txlist.List, error)
	Broadcast(ctx context.Context, t *wire.MsgTx) (chainhash.Hash, error)
}

// Registrar runs registration operations for one network.
type Registrar struct {
	backend Backend
	store   *store.Store // optional
	network config.NetworkType
	params  *chaincfg.Params
	fees    config.FeeConfig
	reg     config.RegistryConfig
	now     func() time.Time
}

// New creates a Registrar. st may be nil, which disables pending
// commitment tracking and snapshot caching.
func New(backend Backend, st *store.Store, network config.NetworkType, fees config.FeeConfig) (*Registrar, error) {
	params, err := network.Params()
	if err != nil {
		return nil, err
	}
	return &Registrar{
		backend: backend,
		store:   st,
		network: network,
		params:  params,
		fees:    fees,
		now:     time.Now,
	}, nil
}

// SetRegistry changes how AllNames resolves a service's history.
func (r *Registrar) SetRegistry(cfg config.RegistryConfig) {
	r.reg = cfg
}

func (r *Registrar) registryOptions() []registry.Option {
	opts := []registry.Option{registry.WithConcurrency(r.reg.Workers)}
	if r.reg.RelativeExpiry {
		opts = append(opts, registry.WithExpiryMode(registry.ExpiryRelative))
	}
	return opts
}

// Result is a built transaction, broadcast when Pushed.
type Result struct {
	Tx     *wire.MsgTx
	Txid   chainhash.Hash
	Pushed bool
}

// Raw returns the transaction as hex.
func (r *Result) Raw() string {
	raw, _ := tx.SerializeTx(r.Tx)
	return raw
}

// CommitRequest asks for a new commitment to name.
type CommitRequest struct {
	ServicePubKey []byte
	Name          string
	ExpiryHeight  uint32
	User          *btcec.PrivateKey
	Push          bool
}

// FundingTarget is the amount Commit gathers from the user's address:
// the protocol fees plus room for an eight kilobyte fee at feeRate.
func (r *Registrar) FundingTarget(feeRate int64) int64 {
	return r.fees.CommitFee + r.fees.RegisterFee + r.fees.EscrowFee + 8*feeRate
}

// Commit funds and builds a commit transaction from the user's P2PKH
// address, and records it as pending.
func (r *Registrar) Commit(ctx context.Context, req CommitRequest) (*Result, error) {
	if req.User == nil {
		return nil, tx.ErrMissingKey
	}
	if err := types.ValidateName(req.Name); err != nil {
		return nil, err
	}
	if err := types.ValidateExpiryHeight(req.ExpiryHeight); err != nil {
		return nil, err
	}
	if !script.ValidatePubKey(req.ServicePubKey) {
		return nil, types.ErrInvalidServicePublicKey
	}

	userPub := req.User.PubKey().SerializeCompressed()
	addr, err := script.P2PKHAddress(userPub, r.params)
	if err != nil {
		return nil, err
	}
	feeRate, err := r.backend.FeeRate(ctx)
	if err != nil {
		return nil, fmt.Errorf("fee rate: %w", err)
	}
	coins, err := r.backend.UTXOs(ctx, addr, r.FundingTarget(feeRate))
	if err != nil {
		return nil, fmt.Errorf("fund commit: %w", err)
	}

	commitTx, err := tx.GenCommitTx(tx.CommitParams{
		Coins:         coins,
		Name:          req.Name,
		ExpiryHeight:  req.ExpiryHeight,
		CommitFee:     r.fees.CommitFee,
		RegisterFee:   r.fees.RegisterFee,
		EscrowFee:     r.fees.EscrowFee,
		FeeRate:       feeRate,
		User:          req.User,
		ServicePubKey: req.ServicePubKey,
	})
	if err != nil {
		return nil, err
	}

	if r.store != nil {
		p := store.Pending{
			CommitTxid:    commitTx.TxHash().String(),
			Name:          req.Name,
			ExpiryHeight:  req.ExpiryHeight,
			UserPubKey:    hex.EncodeToString(userPub),
			ServicePubKey: hex.EncodeToString(req.ServicePubKey),
			Network:       string(r.network),
			CreatedAt:     r.now().Unix(),
		}
		if err := r.store.AddPending(p, commitTx); err != nil {
			return nil, fmt.Errorf("record pending: %w", err)
		}
	}

	res, err := r.finish(ctx, commitTx, req.Push)
	if err != nil {
		return nil, err
	}
	log.Registrar.Info().Str("name", req.Name).Stringer("txid", res.Txid).Bool("pushed", res.Pushed).Msg("commit built")
	return res, nil
}

// RegisterRequest asks for the lock transaction revealing a commitment.
// Name and ExpiryHeight may be left zero when the commitment is pending
// in the store.
type RegisterRequest struct {
	ServicePubKey []byte
	CommitTxid    chainhash.Hash
	Name          string
	ExpiryHeight  uint32
	User          *btcec.PrivateKey
	Push          bool
}

// Register builds the lock transaction of a mature commitment.
func (r *Registrar) Register(ctx context.Context, req RegisterRequest) (*Result, error) {
	if req.User == nil {
		return nil, tx.ErrMissingKey
	}
	if req.Name == "" && r.store != nil {
		if p, err := r.store.GetPending(req.CommitTxid); err == nil {
			req.Name, req.ExpiryHeight = p.Name, p.ExpiryHeight
		}
	}
	if req.Name == "" {
		return nil, fmt.Errorf("%w: commit %s", ErrNoName, req.CommitTxid)
	}

	commitTx, err := r.backend.Transaction(ctx, req.CommitTxid)
	if err != nil {
		return nil, fmt.Errorf("fetch commit tx: %w", err)
	}
	if err := r.checkMature(ctx, commitTx); err != nil {
		return nil, err
	}
	feeRate, err := r.backend.FeeRate(ctx)
	if err != nil {
		return nil, fmt.Errorf("fee rate: %w", err)
	}

	lockTx, err := tx.GenLockTx(tx.LockParams{
		CommitTx:      commitTx,
		Name:          req.Name,
		UpfrontFee:    r.fees.UpfrontFee,
		LockedFee:     r.fees.LockedFee,
		FeeRate:       feeRate,
		User:          req.User,
		ServicePubKey: req.ServicePubKey,
		ExpiryHeight:  req.ExpiryHeight,
	})
	if err != nil {
		return nil, err
	}

	res, err := r.finish(ctx, lockTx, req.Push)
	if err != nil {
		return nil, err
	}
	if res.Pushed && r.store != nil {
		if err := r.store.RemovePending(req.CommitTxid); err != nil {
			log.Registrar.Warn().Err(err).Stringer("commit", req.CommitTxid).Msg("remove pending")
		}
	}
	log.Registrar.Info().Str("name", req.Name).Stringer("txid", res.Txid).Bool("pushed", res.Pushed).Msg("lock built")
	return res, nil
}

// checkMature fails ErrNotMature unless a lock transaction spending
// commitTx could be mined in the next block.
func (r *Registrar) checkMature(ctx context.Context, commitTx *wire.MsgTx) error {
	if len(commitTx.TxOut) <= types.CommitEscrowOutput {
		return types.ErrInvalidCommitment
	}
	txid := commitTx.TxHash()
	height, err := r.backend.TxHeight(ctx, txid, commitTx.TxOut[types.CommitEscrowOutput].PkScript)
	if err != nil {
		return fmt.Errorf("commit height: %w", err)
	}
	current, err := r.backend.BlockHeight(ctx)
	if err != nil {
		return fmt.Errorf("block height: %w", err)
	}
	if registry.CommitState(height, current) != registry.StateMature {
		return fmt.Errorf("%w: %d of %d confirmations", ErrNotMature,
			registry.Confirmations(height, current), types.CommitMaturity)
	}
	return nil
}

// RevokeRequest asks the user to release a registration.
type RevokeRequest struct {
	ServicePubKey []byte
	LockTxid      chainhash.Hash
	User          *btcec.PrivateKey
	Push          bool
}

// Revoke spends the locked output back to the user.
func (r *Registrar) Revoke(ctx context.Context, req RevokeRequest) (*Result, error) {
	lockTx, commitTx, err := r.lockPair(ctx, req.LockTxid)
	if err != nil {
		return nil, err
	}
	feeRate, err := r.backend.FeeRate(ctx)
	if err != nil {
		return nil, fmt.Errorf("fee rate: %w", err)
	}
	unlockTx, err := tx.GenUnlockTx(tx.UnlockParams{
		LockTx:      lockTx,
		CommitTx:    commitTx,
		FeeRate:     feeRate,
		Signer:      req.User,
		OtherPubKey: req.ServicePubKey,
	})
	if err != nil {
		return nil, err
	}
	res, err := r.finish(ctx, unlockTx, req.Push)
	if err != nil {
		return nil, err
	}
	log.Registrar.Info().Stringer("lock", req.LockTxid).Stringer("txid", res.Txid).Bool("pushed", res.Pushed).Msg("revocation built")
	return res, nil
}

// ServiceSpendRequest asks the service to reclaim an expired registration.
type ServiceSpendRequest struct {
	LockTxid chainhash.Hash
	Service  *btcec.PrivateKey
	Push     bool
}

// ServiceSpend spends the locked output of an expired registration to the
// service. It refuses while the chain is below the expiry height.
func (r *Registrar) ServiceSpend(ctx context.Context, req ServiceSpendRequest) (*Result, error) {
	lockTx, commitTx, err := r.lockPair(ctx, req.LockTxid)
	if err != nil {
		return nil, err
	}
	reveal, err := tx.RevealOf(lockTx)
	if err != nil {
		return nil, types.Errorf(types.CodeBadLockTransaction, "bad lock transaction: %v", err)
	}
	current, err := r.backend.BlockHeight(ctx)
	if err != nil {
		return nil, fmt.Errorf("block height: %w", err)
	}
	if expiry := int64(reveal.Record.ExpiryHeight); current < expiry {
		return nil, fmt.Errorf("%w: expires at %d, chain at %d", ErrNotExpired, expiry, current)
	}
	feeRate, err := r.backend.FeeRate(ctx)
	if err != nil {
		return nil, fmt.Errorf("fee rate: %w", err)
	}
	unlockTx, err := tx.GenUnlockTx(tx.UnlockParams{
		LockTx:      lockTx,
		CommitTx:    commitTx,
		FeeRate:     feeRate,
		AsService:   true,
		Signer:      req.Service,
		OtherPubKey: reveal.PubKey,
	})
	if err != nil {
		return nil, err
	}
	res, err := r.finish(ctx, unlockTx, req.Push)
	if err != nil {
		return nil, err
	}
	log.Registrar.Info().Stringer("lock", req.LockTxid).Stringer("txid", res.Txid).Bool("pushed", res.Pushed).Msg("reclaim built")
	return res, nil
}

// lockPair fetches a lock transaction and the commit transaction it spends.
func (r *Registrar) lockPair(ctx context.Context, lockTxid chainhash.Hash) (lockTx, commitTx *wire.MsgTx, err error) {
	lockTx, err = r.backend.Transaction(ctx, lockTxid)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch lock tx: %w", err)
	}
	if len(lockTx.TxIn) == 0 {
		return nil, nil, types.Errorf(types.CodeBadLockTransaction, "lock tx %s has no inputs", lockTxid)
	}
	commitTx, err = r.backend.Transaction(ctx, lockTx.TxIn[0].PreviousOutPoint.Hash)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch commit tx: %w", err)
	}
	return lockTx, commitTx, nil
}

// finish broadcasts t when push is set.
func (r *Registrar) finish(ctx context.Context, t *wire.MsgTx, push bool) (*Result, error) {
	res := &Result{Tx: t, Txid: t.TxHash()}
	if e := log.Registrar.Debug(); e.Enabled() {
		outs := make([]string, len(t.TxOut))
		for i, out := range t.TxOut {
			outs[i] = fmt.Sprintf("%d: %d %s", i, out.Value, script.Disasm(out.PkScript))
		}
		e.Stringer("txid", res.Txid).Strs("outputs", outs).Msg("transaction built")
	}
	if !push {
		return res, nil
	}
	txid, err := r.backend.Broadcast(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("broadcast %s: %w", res.Txid, err)
	}
	if txid != res.Txid {
		log.Registrar.Warn().Stringer("want", res.Txid).Stringer("got", txid).Msg("server reported a different txid")
	}
	res.Pushed = true
	return res, nil
}
