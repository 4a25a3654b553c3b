package main

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/Klingon-tech/bitname/config"
	"github.com/Klingon-tech/bitname/internal/wallet"
)

func testMeta(t *testing.T, network config.NetworkType) *metadata {
	t.Helper()
	cfg := config.Default(network)
	cfg.DataDir = t.TempDir()
	params, err := cfg.Params()
	if err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	return &metadata{cfg: cfg, flags: &config.Flags{}, params: params, w: &out, e: &out}
}

func testPub(t *testing.T) []byte {
	t.Helper()
	priv, _ := btcec.PrivKeyFromBytes(bytes.Repeat([]byte{0x11}, 32))
	return priv.PubKey().SerializeCompressed()
}

func TestParsePubKey(t *testing.T) {
	pub := testPub(t)
	mainKey, err := wallet.EncodePubKey(pub, wallet.HRPMainnet)
	if err != nil {
		t.Fatal(err)
	}
	testKey, err := wallet.EncodePubKey(pub, wallet.HRPTestnet)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		network config.NetworkType
		in      string
		wantErr bool
	}{
		{"hex", config.Mainnet, hex.EncodeToString(pub), false},
		{"mainnet bech32", config.Mainnet, mainKey, false},
		{"testnet bech32", config.Testnet, testKey, false},
		{"regtest shares testnet prefix", config.Regtest, testKey, false},
		{"testnet key on mainnet", config.Mainnet, testKey, true},
		{"mainnet key on testnet", config.Testnet, mainKey, true},
		{"short hex", config.Mainnet, hex.EncodeToString(pub[:32]), true},
		{"garbage", config.Mainnet, "not-a-key", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := testMeta(t, tt.network)
			got, err := m.parsePubKey(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parsePubKey(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if err == nil && !bytes.Equal(got, pub) {
				t.Errorf("parsePubKey(%q) = %x, want %x", tt.in, got, pub)
			}
		})
	}
}

func TestEncodePubKey_Network(t *testing.T) {
	pub := testPub(t)
	m := testMeta(t, config.Regtest)
	s := m.encodePubKey(pub)
	got, err := m.parsePubKey(s)
	if err != nil {
		t.Fatalf("parsePubKey(%q) error: %v", s, err)
	}
	if !bytes.Equal(got, pub) {
		t.Errorf("round trip = %x, want %x", got, pub)
	}
}

func TestParseTxid(t *testing.T) {
	valid := "4a5e1e4baab89f3a32518a88c31bc87f618f76673e2cc77ab2127b7afdeda33b"
	h, err := parseTxid(valid)
	if err != nil {
		t.Fatalf("parseTxid() error: %v", err)
	}
	if h.String() != valid {
		t.Errorf("parseTxid() = %s, want %s", h, valid)
	}
	for _, bad := range []string{"", "abcd", valid + "00", "zz" + valid[2:]} {
		if _, err := parseTxid(bad); err == nil {
			t.Errorf("parseTxid(%q) succeeded", bad)
		}
	}
}

func TestParseHeight(t *testing.T) {
	tests := []struct {
		in      string
		want    uint32
		wantErr bool
	}{
		{"0", 0, false},
		{"840000", 840000, false},
		{"4294967295", 4294967295, false},
		{"4294967296", 0, true},
		{"-1", 0, true},
		{"ten", 0, true},
	}
	for _, tt := range tests {
		got, err := parseHeight(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseHeight(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("parseHeight(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
