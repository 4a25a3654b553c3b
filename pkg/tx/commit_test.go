package tx

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/wire"

	"github.com/Klingon-tech/bitname/pkg/script"
	"github.com/Klingon-tech/bitname/pkg/types"
)

func TestGenCommitTx_Layout(t *testing.T) {
	f := newFixture()
	tx := f.commitTx(t, "colin")

	if len(tx.TxIn) != 2 {
		t.Fatalf("inputs = %d, want 2 (all coins spent)", len(tx.TxIn))
	}
	if len(tx.TxOut) != 4 {
		t.Fatalf("outputs = %d, want 4", len(tx.TxOut))
	}
	if !IsValidZeroValueOpReturn(tx.TxOut[0]) {
		t.Error("output 0 is not a zero-value OP_RETURN")
	}
	if got := tx.TxOut[1].Value; got != testCommitFee {
		t.Errorf("service fee = %d, want %d", got, testCommitFee)
	}
	if !bytes.Equal(tx.TxOut[1].PkScript, p2pkhOf(t, pubOf(f.service))) {
		t.Error("output 1 does not pay the service P2PKH")
	}
	wantEscrow := int64(testRegisterFee + testEscrowFee + 4*testFeeRate)
	if got := tx.TxOut[2].Value; got != wantEscrow {
		t.Errorf("escrow = %d, want %d", got, wantEscrow)
	}
	if !bytes.Equal(tx.TxOut[3].PkScript, p2pkhOf(t, pubOf(f.user))) {
		t.Error("output 3 does not pay the user P2PKH")
	}

	in := int64(testCoinValue + testCoinValue/2)
	checkFee(t, tx, in-totalOut(tx))
}

func TestGenCommitTx_Verifies(t *testing.T) {
	f := newFixture()
	for _, name := range []string{"a", "colin", "A-b_c.d~e", strings.Repeat("z", types.MaxNameLength)} {
		t.Run(name, func(t *testing.T) {
			tx := f.commitTx(t, name)
			if err := CheckCommitTx(tx, pubOf(f.user), pubOf(f.service), name, testExpiry); err != nil {
				t.Fatalf("CheckCommitTx: %v", err)
			}
			if !VerifyCommitTx(tx, pubOf(f.user), pubOf(f.service), name, testExpiry) {
				t.Error("VerifyCommitTx = false")
			}
		})
	}
}

func TestGenCommitTx_SignaturesExecute(t *testing.T) {
	f := newFixture()
	p := f.commitParams("colin", 1)
	tx, err := GenCommitTx(p)
	if err != nil {
		t.Fatalf("GenCommitTx: %v", err)
	}
	for i, c := range p.Coins {
		prev := wire.NewTxOut(c.Value, p2pkhOf(t, pubOf(f.user)))
		if err := ExecuteInput(tx, i, prev); err != nil {
			t.Errorf("input %d: %v", i, err)
		}
	}
}

func TestGenCommitTx_DeterministicNonce(t *testing.T) {
	f := newFixture()

	a, err := GenCommitTx(f.commitParams("colin", 7))
	if err != nil {
		t.Fatalf("GenCommitTx: %v", err)
	}
	b, err := GenCommitTx(f.commitParams("colin", 7))
	if err != nil {
		t.Fatalf("GenCommitTx: %v", err)
	}
	if a.TxHash() != b.TxHash() {
		t.Error("same seed should yield the same transaction")
	}

	c, err := GenCommitTx(f.commitParams("colin", 8))
	if err != nil {
		t.Fatalf("GenCommitTx: %v", err)
	}
	if bytes.Equal(a.TxOut[0].PkScript, c.TxOut[0].PkScript) {
		t.Error("different seeds should yield different nonces")
	}
}

func TestGenCommitTx_NilRandUsesCryptoRand(t *testing.T) {
	f := newFixture()
	p := f.commitParams("colin", 1)
	p.Rand = nil
	tx, err := GenCommitTx(p)
	if err != nil {
		t.Fatalf("GenCommitTx: %v", err)
	}
	if !VerifyCommitTx(tx, pubOf(f.user), pubOf(f.service), "colin", testExpiry) {
		t.Error("VerifyCommitTx = false")
	}
}

func TestGenCommitTx_ValidationBeforeSigning(t *testing.T) {
	f := newFixture()

	tests := []struct {
		name   string
		modify func(*CommitParams)
		want   error
	}{
		{"name too long", func(p *CommitParams) { p.Name = strings.Repeat("a", 65) }, types.ErrNameTooLong},
		{"too long with bad chars", func(p *CommitParams) { p.Name = strings.Repeat("/", 65) }, types.ErrNameTooLong},
		{"bad chars", func(p *CommitParams) { p.Name = "no spaces" }, types.ErrInvalidNameCharacters},
		{"empty name", func(p *CommitParams) { p.Name = "" }, types.ErrEmptyName},
		{"bad service key", func(p *CommitParams) { p.ServicePubKey = []byte{0x02, 0x01} }, types.ErrInvalidServicePublicKey},
		{"expiry", func(p *CommitParams) { p.ExpiryHeight = types.MaxExpiryHeight + 1 }, types.ErrLocktimeRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := f.commitParams("colin", 1)
			tt.modify(&p)
			// No key and no coins: validation must fail before they matter.
			p.User = nil
			p.Coins = nil
			_, err := GenCommitTx(p)
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestGenCommitTx_Errors(t *testing.T) {
	f := newFixture()

	p := f.commitParams("colin", 1)
	p.Coins = p.Coins[:1]
	p.Coins[0].Value = testCommitFee + testRegisterFee + testEscrowFee
	if _, err := GenCommitTx(p); !errors.Is(err, types.ErrInsufficientFunds) {
		t.Errorf("short funds: got %v", err)
	}
	if types.CodeOf(types.ErrInsufficientFunds).Category() != types.CategoryValidation {
		t.Error("insufficient funds should be a validation error")
	}

	p = f.commitParams("colin", 1)
	p.Coins = nil
	if _, err := GenCommitTx(p); !errors.Is(err, ErrNoCoins) {
		t.Errorf("no coins: got %v", err)
	}

	p = f.commitParams("colin", 1)
	p.User = nil
	if _, err := GenCommitTx(p); !errors.Is(err, ErrMissingKey) {
		t.Errorf("no key: got %v", err)
	}

	p = f.commitParams("colin", 1)
	p.CommitFee = -1
	if _, err := GenCommitTx(p); !errors.Is(err, ErrNegativeAmount) {
		t.Errorf("negative fee: got %v", err)
	}

	p = f.commitParams("colin", 1)
	p.Rand = bytes.NewReader(make([]byte, 4))
	if _, err := GenCommitTx(p); err == nil {
		t.Error("short randomness source should fail")
	}
}

// Every commit the builder accepts must pass verification, so amounts that
// would leave output 1 or 2 empty are refused up front.
func TestGenCommitTx_ZeroAmounts(t *testing.T) {
	f := newFixture()
	tests := []struct {
		name   string
		mutate func(p *CommitParams)
	}{
		{"zero commit fee", func(p *CommitParams) { p.CommitFee = 0 }},
		{"zero escrow", func(p *CommitParams) { p.RegisterFee, p.EscrowFee, p.FeeRate = 0, 0, 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := f.commitParams("colin", 1)
			tt.mutate(&p)
			_, err := GenCommitTx(p)
			if !errors.Is(err, types.ErrZeroAmount) {
				t.Fatalf("err = %v, want ErrZeroAmount", err)
			}
			if types.CodeOf(err).Category() != types.CategoryValidation {
				t.Errorf("category = %v, want validation", types.CodeOf(err).Category())
			}
		})
	}

	// A zero fee rate alone still leaves a funded escrow.
	p := f.commitParams("colin", 1)
	p.FeeRate = 0
	c, err := GenCommitTx(p)
	if err != nil {
		t.Fatalf("GenCommitTx: %v", err)
	}
	if !VerifyCommitTx(c, pubOf(f.user), pubOf(f.service), "colin", testExpiry) {
		t.Error("commit built with zero fee rate does not verify")
	}
}

func TestGenCommitTx_ShortRand(t *testing.T) {
	f := newFixture()
	p := f.commitParams("colin", 1)
	p.Rand = bytes.NewReader(make([]byte, 4))
	if _, err := GenCommitTx(p); err == nil {
		t.Error("short randomness source should fail")
	}
}

func TestVerifyCommitTx_Tampering(t *testing.T) {
	f := newFixture()
	valid := f.commitTx(t, "colin")
	otherNonce, err := script.NonceScript(bytes.Repeat([]byte{0x55}, types.NonceSize))
	if err != nil {
		t.Fatalf("NonceScript: %v", err)
	}
	otherRedeem, err := script.CommitRedeemScript(pubOf(f.user), bytes.Repeat([]byte{0x55}, types.NonceSize), "colin", testExpiry)
	if err != nil {
		t.Fatalf("CommitRedeemScript: %v", err)
	}
	otherEscrow, err := p2shScript(otherRedeem)
	if err != nil {
		t.Fatalf("p2shScript: %v", err)
	}

	tests := []struct {
		name   string
		tamper func(tx *wire.MsgTx)
	}{
		{"output 0 value", func(tx *wire.MsgTx) { tx.TxOut[0].Value = 1 }},
		{"output 0 nonce", func(tx *wire.MsgTx) { tx.TxOut[0].PkScript = otherNonce }},
		{"output 0 kind", func(tx *wire.MsgTx) { tx.TxOut[0].PkScript = p2pkhOf(t, pubOf(f.user)) }},
		{"output 1 address", func(tx *wire.MsgTx) { tx.TxOut[1].PkScript = p2pkhOf(t, pubOf(f.other)) }},
		{"output 1 kind", func(tx *wire.MsgTx) { tx.TxOut[1].PkScript = sameHashOtherKind(t, tx.TxOut[1].PkScript) }},
		{"output 1 value", func(tx *wire.MsgTx) { tx.TxOut[1].Value = 0 }},
		{"output 2 address", func(tx *wire.MsgTx) { tx.TxOut[2].PkScript = otherEscrow }},
		{"output 2 kind", func(tx *wire.MsgTx) { tx.TxOut[2].PkScript = sameHashOtherKind(t, tx.TxOut[2].PkScript) }},
		{"output 2 value", func(tx *wire.MsgTx) { tx.TxOut[2].Value = 0 }},
		{"too few outputs", func(tx *wire.MsgTx) { tx.TxOut = tx.TxOut[:2] }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := valid.Copy()
			tt.tamper(tx)
			if VerifyCommitTx(tx, pubOf(f.user), pubOf(f.service), "colin", testExpiry) {
				t.Error("tampered commit tx verified")
			}
			err := CheckCommitTx(tx, pubOf(f.user), pubOf(f.service), "colin", testExpiry)
			if !errors.Is(err, types.ErrVerification) {
				t.Errorf("CheckCommitTx = %v, want verification error", err)
			}
		})
	}
}

// Amounts are not part of the commitment: the service prices its own fee
// and the lock builder checks the escrow covers the lock. Only empty
// service and escrow outputs and a valued nonce output are rejected.
func TestVerifyCommitTx_AmountsNotBound(t *testing.T) {
	f := newFixture()
	valid := f.commitTx(t, "colin")
	for i := types.CommitServiceOutput; i <= types.CommitChangeOutput; i++ {
		tx := valid.Copy()
		tx.TxOut[i].Value--
		if !VerifyCommitTx(tx, pubOf(f.user), pubOf(f.service), "colin", testExpiry) {
			t.Errorf("output %d value changed by one: commit no longer verifies", i)
		}
	}
}

func TestVerifyCommitTx_WrongClaims(t *testing.T) {
	f := newFixture()
	tx := f.commitTx(t, "colin")

	tests := []struct {
		name    string
		user    []byte
		service []byte
		label   string
		expiry  uint32
	}{
		{"other name", pubOf(f.user), pubOf(f.service), "colim", testExpiry},
		{"other expiry", pubOf(f.user), pubOf(f.service), "colin", testExpiry + 1},
		{"other user", pubOf(f.other), pubOf(f.service), "colin", testExpiry},
		{"other service", pubOf(f.user), pubOf(f.other), "colin", testExpiry},
		{"bad user key", []byte{1}, pubOf(f.service), "colin", testExpiry},
		{"bad service key", pubOf(f.user), []byte{1}, "colin", testExpiry},
		{"bad name", pubOf(f.user), pubOf(f.service), "col in", testExpiry},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if VerifyCommitTx(tx, tt.user, tt.service, tt.label, tt.expiry) {
				t.Error("commit tx verified against wrong claims")
			}
		})
	}

	if VerifyCommitTx(nil, pubOf(f.user), pubOf(f.service), "colin", testExpiry) {
		t.Error("nil tx verified")
	}
}
