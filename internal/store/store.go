// Package store persists what the CLI learns between runs: raw
// transactions fetched from the network, commitments awaiting their lock
// transaction, and resolved registry snapshots.
package store

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/Klingon-tech/bitname/internal/log"
	"github.com/Klingon-tech/bitname/internal/storage"
	"github.com/Klingon-tech/bitname/pkg/registry"
	"github.com/Klingon-tech/bitname/pkg/tx"
)

// Key namespaces.
var (
	prefixTx      = []byte("tx/")
	prefixPending = []byte("pending/")
	prefixSnap    = []byte("snap/")
)

// ErrNotFound is returned for a missing transaction, commitment or snapshot.
var ErrNotFound = errors.New("not found")

// Store wraps a storage.DB with typed accessors.
type Store struct {
	db      storage.DB
	root    *storage.PrefixDB
	txs     *storage.PrefixDB
	pending *storage.PrefixDB
	snaps   *storage.PrefixDB
}

// New returns a Store over db. Closing the Store closes db.
func New(db storage.DB) *Store {
	return &Store{
		db:      db,
		root:    storage.NewPrefixDB(db, nil),
		txs:     storage.NewPrefixDB(db, prefixTx),
		pending: storage.NewPrefixDB(db, prefixPending),
		snaps:   storage.NewPrefixDB(db, prefixSnap),
	}
}

// Open opens a Badger-backed Store at path.
func Open(path string) (*Store, error) {
	db, err := storage.NewBadger(path)
	if err != nil {
		return nil, err
	}
	return New(db), nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// PutTx caches a raw transaction under its txid.
func (s *Store) PutTx(t *wire.MsgTx) error {
	var buf bytes.Buffer
	if err := t.Serialize(&buf); err != nil {
		return fmt.Errorf("serialize tx: %w", err)
	}
	txid := t.TxHash()
	return s.txs.Put(txid[:], buf.Bytes())
}

// Tx returns a cached transaction.
func (s *Store) Tx(txid chainhash.Hash) (*wire.MsgTx, error) {
	raw, err := s.txs.Get(txid[:])
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("tx %s: %w", txid, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return tx.DecodeTx(raw)
}

// Pending is a commitment whose lock transaction has not been broadcast.
type Pending struct {
	CommitTxid    string `json:"commit_txid"`
	Name          string `json:"name"`
	ExpiryHeight  uint32 `json:"expiry_height"`
	UserPubKey    string `json:"user_pubkey"`
	ServicePubKey string `json:"service_pubkey"`
	Network       string `json:"network"`
	CreatedAt     int64  `json:"created_at"`
}

// AddPending records a commitment together with its commit transaction.
func (s *Store) AddPending(p Pending, commitTx *wire.MsgTx) error {
	txid := commitTx.TxHash()
	if p.CommitTxid != txid.String() {
		return fmt.Errorf("pending commitment names %s, commit tx is %s", p.CommitTxid, txid)
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal pending: %w", err)
	}
	var raw bytes.Buffer
	if err := commitTx.Serialize(&raw); err != nil {
		return fmt.Errorf("serialize tx: %w", err)
	}

	b := s.root.NewBatch()
	if err := b.Put(s.txs.Key(txid[:]), raw.Bytes()); err != nil {
		return err
	}
	if err := b.Put(s.pending.Key(txid[:]), data); err != nil {
		return err
	}
	if err := b.Commit(); err != nil {
		return err
	}
	log.Store.Debug().Str("name", p.Name).Str("commit", p.CommitTxid).Msg("pending commitment saved")
	return nil
}

// GetPending returns the pending commitment of a commit transaction.
func (s *Store) GetPending(commitTxid chainhash.Hash) (*Pending, error) {
	data, err := s.pending.Get(commitTxid[:])
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("pending %s: %w", commitTxid, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	var p Pending
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode pending %s: %w", commitTxid, err)
	}
	return &p, nil
}

// ListPending returns all pending commitments, oldest first.
func (s *Store) ListPending() ([]Pending, error) {
	var out []Pending
	err := s.pending.ForEach(nil, func(key, value []byte) error {
		var p Pending
		if err := json.Unmarshal(value, &p); err != nil {
			return fmt.Errorf("decode pending %x: %w", key, err)
		}
		out = append(out, p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].CommitTxid < out[j].CommitTxid
	})
	return out, nil
}

// RemovePending forgets a commitment once its lock is broadcast.
func (s *Store) RemovePending(commitTxid chainhash.Hash) error {
	return s.pending.Delete(commitTxid[:])
}

type snapshotEntry struct {
	Txid    string `json:"txid"`
	PubKey  string `json:"pubkey"`
	Expires int64  `json:"expires"`
	Height  int64  `json:"height"`
}

func snapshotKey(fingerprint [32]byte, height int64) []byte {
	key := make([]byte, 0, 40)
	key = append(key, fingerprint[:]...)
	return binary.BigEndian.AppendUint64(key, uint64(height))
}

// PutSnapshot caches a resolved registry for a history fingerprint at a
// query height.
func (s *Store) PutSnapshot(fingerprint [32]byte, height int64, regs map[string]registry.Registration) error {
	entries := make(map[string]snapshotEntry, len(regs))
	for name, r := range regs {
		entries[name] = snapshotEntry{
			Txid:    r.Txid.String(),
			PubKey:  hex.EncodeToString(r.PubKey),
			Expires: r.Expires,
			Height:  r.Height,
		}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	return s.snaps.Put(snapshotKey(fingerprint, height), data)
}

// Snapshot returns a cached registry, or ErrNotFound.
func (s *Store) Snapshot(fingerprint [32]byte, height int64) (map[string]registry.Registration, error) {
	data, err := s.snaps.Get(snapshotKey(fingerprint, height))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var entries map[string]snapshotEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	out := make(map[string]registry.Registration, len(entries))
	for name, e := range entries {
		txid, err := chainhash.NewHashFromStr(e.Txid)
		if err != nil {
			return nil, fmt.Errorf("snapshot %s txid: %w", name, err)
		}
		pub, err := hex.DecodeString(e.PubKey)
		if err != nil {
			return nil, fmt.Errorf("snapshot %s pubkey: %w", name, err)
		}
		out[name] = registry.Registration{Txid: *txid, PubKey: pub, Expires: e.Expires, Height: e.Height}
	}
	return out, nil
}

// PruneSnapshots deletes every cached snapshot.
func (s *Store) PruneSnapshots() error {
	n, err := s.snaps.DeleteAll()
	if err != nil {
		return fmt.Errorf("prune snapshots: %w", err)
	}
	if n > 0 {
		log.Store.Debug().Int("count", n).Msg("registry snapshots pruned")
	}
	return nil
}
