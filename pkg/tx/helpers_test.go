package tx

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

const (
	testExpiry      = 1000
	testFeeRate     = 10_000 // 10 sat/vbyte
	testCommitFee   = 10_000
	testRegisterFee = 50_000
	testEscrowFee   = 100_000
	testCoinValue   = 1_000_000
)

func testKey(seed byte) *btcec.PrivateKey {
	priv, _ := btcec.PrivKeyFromBytes(bytes.Repeat([]byte{seed}, 32))
	return priv
}

func pubOf(k *btcec.PrivateKey) []byte {
	return k.PubKey().SerializeCompressed()
}

type fixture struct {
	user    *btcec.PrivateKey
	service *btcec.PrivateKey
	other   *btcec.PrivateKey
}

func newFixture() *fixture {
	return &fixture{
		user:    testKey(1),
		service: testKey(2),
		other:   testKey(3),
	}
}

func (f *fixture) commitParams(name string, seed int64) CommitParams {
	return CommitParams{
		Coins: []Coin{
			{OutPoint: wire.OutPoint{Hash: chainhash.Hash{0x01}, Index: 0}, Value: testCoinValue},
			{OutPoint: wire.OutPoint{Hash: chainhash.Hash{0x02}, Index: 3}, Value: testCoinValue / 2},
		},
		Name:          name,
		ExpiryHeight:  testExpiry,
		CommitFee:     testCommitFee,
		RegisterFee:   testRegisterFee,
		EscrowFee:     testEscrowFee,
		FeeRate:       testFeeRate,
		User:          f.user,
		ServicePubKey: pubOf(f.service),
		Rand:          rand.New(rand.NewSource(seed)),
	}
}

func (f *fixture) commitTx(t *testing.T, name string) *wire.MsgTx {
	t.Helper()
	tx, err := GenCommitTx(f.commitParams(name, 1))
	if err != nil {
		t.Fatalf("GenCommitTx: %v", err)
	}
	return tx
}

func (f *fixture) lockParams(commitTx *wire.MsgTx, name string) LockParams {
	return LockParams{
		CommitTx:      commitTx,
		Name:          name,
		UpfrontFee:    testRegisterFee,
		LockedFee:     testEscrowFee,
		FeeRate:       testFeeRate,
		User:          f.user,
		ServicePubKey: pubOf(f.service),
		ExpiryHeight:  testExpiry,
	}
}

func (f *fixture) lockTx(t *testing.T, commitTx *wire.MsgTx, name string) *wire.MsgTx {
	t.Helper()
	tx, err := GenLockTx(f.lockParams(commitTx, name))
	if err != nil {
		t.Fatalf("GenLockTx: %v", err)
	}
	return tx
}

func p2pkhOf(t *testing.T, pub []byte) []byte {
	t.Helper()
	s, err := p2pkhScript(pub)
	if err != nil {
		t.Fatalf("p2pkhScript: %v", err)
	}
	return s
}

// sameHashOtherKind turns a P2PKH script into P2SH and vice versa, keeping
// the 20-byte hash.
func sameHashOtherKind(t *testing.T, pkScript []byte) []byte {
	t.Helper()
	class, addrs, _, err := txscript.ExtractPkScriptAddrs(pkScript, scriptParams)
	if err != nil || len(addrs) != 1 {
		t.Fatalf("extract addrs: %v", err)
	}
	hash := addrs[0].ScriptAddress()

	var addr btcutil.Address
	switch class {
	case txscript.PubKeyHashTy:
		addr, err = btcutil.NewAddressScriptHashFromHash(hash, scriptParams)
	case txscript.ScriptHashTy:
		addr, err = btcutil.NewAddressPubKeyHash(hash, scriptParams)
	default:
		t.Fatalf("unexpected class %v", class)
	}
	if err != nil {
		t.Fatalf("build address: %v", err)
	}
	s, err := txscript.PayToAddrScript(addr)
	if err != nil {
		t.Fatalf("PayToAddrScript: %v", err)
	}
	return s
}

func totalOut(tx *wire.MsgTx) int64 {
	var sum int64
	for _, out := range tx.TxOut {
		sum += out.Value
	}
	return sum
}

// checkFee asserts the paid fee matches the fee rate, allowing for the
// difference between the placeholder and the real signature sizes.
func checkFee(t *testing.T, tx *wire.MsgTx, paid int64) {
	t.Helper()
	want := FeeForSize(VirtualSize(tx), testFeeRate)
	slack := FeeForSize(int64(2*len(tx.TxIn)), testFeeRate)
	if paid < want-slack || paid > want+slack {
		t.Errorf("fee = %d, want %d (+/- %d)", paid, want, slack)
	}
}
