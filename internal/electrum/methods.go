package electrum

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/Klingon-tech/bitname/internal/log"
	"github.com/Klingon-tech/bitname/pkg/tx"
	"github.com/Klingon-tech/bitname/pkg/txlist"
	"github.com/Klingon-tech/bitname/pkg/types"
)

// FeeTarget is the confirmation target, in blocks, of FeeRate.
const FeeTarget = 2

// unspent is an entry of blockchain.scripthash.listunspent.
type unspent struct {
	TxHash string `json:"tx_hash"`
	TxPos  uint32 `json:"tx_pos"`
	Height int64  `json:"height"`
	Value  int64  `json:"value"`
}

// historyItem is an entry of blockchain.scripthash.get_history.
type historyItem struct {
	TxHash string `json:"tx_hash"`
	Height int64  `json:"height"`
}

// headerInfo is the result of blockchain.headers.subscribe.
type headerInfo struct {
	Height int64  `json:"height"`
	Hex    string `json:"hex"`
}

// ScriptHash returns the Electrum script hash of an output script: the
// byte-reversed SHA-256 of the script, hex encoded.
func ScriptHash(pkScript []byte) string {
	h := sha256.Sum256(pkScript)
	for i, j := 0, len(h)-1; i < j; i, j = i+1, j-1 {
		h[i], h[j] = h[j], h[i]
	}
	return hex.EncodeToString(h[:])
}

// FeeRate returns the estimated fee rate, in satoshis per kilobyte, for
// confirmation within FeeTarget blocks.
func (c *Client) FeeRate(ctx context.Context) (int64, error) {
	var btcPerKB float64
	err := c.do(ctx, true, func(s *session) error {
		return s.call("blockchain.estimatefee", &btcPerKB, FeeTarget)
	})
	if err != nil {
		return 0, err
	}
	if btcPerKB <= 0 {
		return 0, ErrNoFeeEstimate
	}
	amt, err := btcutil.NewAmount(btcPerKB)
	if err != nil {
		return 0, fmt.Errorf("fee estimate %v: %w", btcPerKB, err)
	}
	if amt <= 0 {
		return 0, ErrNoFeeEstimate
	}
	return int64(amt), nil
}

// BlockHeight returns the height of the server's chain tip.
func (c *Client) BlockHeight(ctx context.Context) (int64, error) {
	var info headerInfo
	err := c.do(ctx, true, func(s *session) error {
		return s.call("blockchain.headers.subscribe", &info)
	})
	if err != nil {
		return 0, err
	}
	return info.Height, nil
}

// UTXOs selects unspent outputs of addr, largest first, until their total
// reaches minValue.
func (c *Client) UTXOs(ctx context.Context, addr btcutil.Address, minValue int64) ([]tx.Coin, error) {
	pkScript, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return nil, fmt.Errorf("address script: %w", err)
	}

	var utxos []unspent
	err = c.do(ctx, true, func(s *session) error {
		return s.call("blockchain.scripthash.listunspent", &utxos, ScriptHash(pkScript))
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(utxos, func(i, j int) bool { return utxos[i].Value > utxos[j].Value })

	var coins []tx.Coin
	var total int64
	seen := make(map[wire.OutPoint]bool, len(utxos))
	for _, u := range utxos {
		if total >= minValue && len(coins) > 0 {
			break
		}
		hash, err := chainhash.NewHashFromStr(u.TxHash)
		if err != nil {
			return nil, fmt.Errorf("utxo txid %q: %w", u.TxHash, err)
		}
		op := wire.OutPoint{Hash: *hash, Index: u.TxPos}
		if seen[op] {
			continue
		}
		seen[op] = true
		coins = append(coins, tx.Coin{OutPoint: op, Value: u.Value, PkScript: pkScript})
		total += u.Value
	}
	if len(coins) == 0 || total < minValue {
		return nil, types.Errorf(types.CodeInsufficientFunds,
			"insufficient funds: %d available at %s, %d needed", total, addr, minValue)
	}
	log.Electrum.Debug().Str("address", addr.String()).Int("coins", len(coins)).Int64("total", total).Msg("funding selected")
	return coins, nil
}

// Transaction fetches a transaction by txid.
func (c *Client) Transaction(ctx context.Context, txid chainhash.Hash) (*wire.MsgTx, error) {
	if t := c.cached(txid); t != nil {
		return t, nil
	}
	var t *wire.MsgTx
	err := c.do(ctx, true, func(s *session) error {
		var err error
		t, err = c.fetchTx(s, txid)
		return err
	})
	return t, err
}

// AddressHistory returns the confirmed transactions touching addr with the
// spent flag of each of their outputs. An output counts as unspent while
// it is listed by blockchain.scripthash.listunspent of its own script;
// OP_RETURN outputs are never spent.
func (c *Client) AddressHistory(ctx context.Context, addr btcutil.Address) (*txlist.List, error) {
	pkScript, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return nil, fmt.Errorf("address script: %w", err)
	}

	var list *txlist.List
	err = c.do(ctx, true, func(s *session) error {
		var history []historyItem
		if err := s.call("blockchain.scripthash.get_history", &history, ScriptHash(pkScript)); err != nil {
			return err
		}

		var txs []*wire.MsgTx
		var heights []int64
		for _, h := range history {
			if h.Height <= 0 {
				continue
			}
			txid, err := chainhash.NewHashFromStr(h.TxHash)
			if err != nil {
				return fmt.Errorf("history txid %q: %w", h.TxHash, err)
			}
			t, err := c.fetchTx(s, *txid)
			if err != nil {
				return err
			}
			txs = append(txs, t)
			heights = append(heights, h.Height)
		}

		unspentBy := make(map[string]map[wire.OutPoint]bool)
		spent := make([][]bool, len(txs))
		for i, t := range txs {
			txid := t.TxHash()
			spent[i] = make([]bool, len(t.TxOut))
			for idx, out := range t.TxOut {
				if txscript.GetScriptClass(out.PkScript) == txscript.NullDataTy {
					continue
				}
				sh := ScriptHash(out.PkScript)
				set, ok := unspentBy[sh]
				if !ok {
					if set, err = listUnspent(s, sh); err != nil {
						return err
					}
					unspentBy[sh] = set
				}
				spent[i][idx] = !set[wire.OutPoint{Hash: txid, Index: uint32(idx)}]
			}
		}

		list, err = txlist.New(txs, spent, heights)
		return err
	})
	if err != nil {
		return nil, err
	}
	log.Electrum.Debug().Str("address", addr.String()).Int("txs", list.Len()).Msg("history fetched")
	return list, nil
}

// TxHeight returns the height txid was mined at, looked up in the history
// of pkScript, one of its output scripts. Mempool transactions have height
// 0. A txid absent from the history fails ErrTxNotFound.
func (c *Client) TxHeight(ctx context.Context, txid chainhash.Hash, pkScript []byte) (int64, error) {
	var history []historyItem
	err := c.do(ctx, true, func(s *session) error {
		return s.call("blockchain.scripthash.get_history", &history, ScriptHash(pkScript))
	})
	if err != nil {
		return 0, err
	}
	want := txid.String()
	for _, h := range history {
		if h.TxHash != want {
			continue
		}
		if h.Height < 0 {
			return 0, nil
		}
		return h.Height, nil
	}
	return 0, fmt.Errorf("%w: %s", ErrTxNotFound, txid)
}

// Broadcast submits a transaction and returns its txid as reported by the
// server. A broadcast that reached a server is not retried elsewhere.
func (c *Client) Broadcast(ctx context.Context, t *wire.MsgTx) (chainhash.Hash, error) {
	raw, err := tx.SerializeTx(t)
	if err != nil {
		return chainhash.Hash{}, err
	}
	var txidStr string
	err = c.do(ctx, false, func(s *session) error {
		return s.call("blockchain.transaction.broadcast", &txidStr, raw)
	})
	if err != nil {
		return chainhash.Hash{}, err
	}
	txid, err := chainhash.NewHashFromStr(txidStr)
	if err != nil {
		return chainhash.Hash{}, fmt.Errorf("broadcast result %q: %w", txidStr, err)
	}
	if c.cache != nil {
		if err := c.cache.PutTx(t); err != nil {
			log.Electrum.Warn().Err(err).Msg("cache broadcast tx")
		}
	}
	log.Electrum.Info().Stringer("txid", txid).Msg("transaction broadcast")
	return *txid, nil
}

func listUnspent(s *session, scriptHash string) (map[wire.OutPoint]bool, error) {
	var utxos []unspent
	if err := s.call("blockchain.scripthash.listunspent", &utxos, scriptHash); err != nil {
		return nil, err
	}
	set := make(map[wire.OutPoint]bool, len(utxos))
	for _, u := range utxos {
		hash, err := chainhash.NewHashFromStr(u.TxHash)
		if err != nil {
			return nil, fmt.Errorf("utxo txid %q: %w", u.TxHash, err)
		}
		set[wire.OutPoint{Hash: *hash, Index: u.TxPos}] = true
	}
	return set, nil
}

func (c *Client) cached(txid chainhash.Hash) *wire.MsgTx {
	if c.cache == nil {
		return nil
	}
	t, err := c.cache.Tx(txid)
	if err != nil {
		return nil
	}
	return t
}

// fetchTx returns txid from the cache or the server, checking that the
// server returned the transaction asked for.
func (c *Client) fetchTx(s *session, txid chainhash.Hash) (*wire.MsgTx, error) {
	if t := c.cached(txid); t != nil {
		return t, nil
	}
	var raw string
	if err := s.call("blockchain.transaction.get", &raw, txid.String()); err != nil {
		return nil, err
	}
	t, err := tx.DeserializeTx(raw)
	if err != nil {
		return nil, fmt.Errorf("tx %s: %w", txid, err)
	}
	if got := t.TxHash(); got != txid {
		return nil, fmt.Errorf("server returned tx %s for %s", got, txid)
	}
	if c.cache != nil {
		if err := c.cache.PutTx(t); err != nil {
			log.Electrum.Warn().Err(err).Stringer("txid", txid).Msg("cache tx")
		}
	}
	return t, nil
}
