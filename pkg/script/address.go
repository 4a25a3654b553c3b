package script

import (
	"bytes"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"

	"github.com/Klingon-tech/bitname/pkg/types"
)

// P2SHAddress returns the pay-to-script-hash address of a redeem script.
func P2SHAddress(redeemScript []byte, params *chaincfg.Params) (*btcutil.AddressScriptHash, error) {
	return btcutil.NewAddressScriptHash(redeemScript, params)
}

// P2PKHAddress returns the pay-to-pubkey-hash address of a compressed key.
func P2PKHAddress(pub []byte, params *chaincfg.Params) (*btcutil.AddressPubKeyHash, error) {
	if !ValidatePubKey(pub) {
		return nil, types.ErrInvalidUserPublicKey
	}
	return btcutil.NewAddressPubKeyHash(btcutil.Hash160(pub), params)
}

// PayTo returns the output script paying addr.
func PayTo(addr btcutil.Address) ([]byte, error) {
	return txscript.PayToAddrScript(addr)
}

// SameDestination reports whether pkScript pays exactly addr. Outputs are
// compared by address kind and hash, so the network an address was
// encoded for does not matter.
func SameDestination(pkScript []byte, addr btcutil.Address) bool {
	var want txscript.ScriptClass
	switch addr.(type) {
	case *btcutil.AddressPubKeyHash:
		want = txscript.PubKeyHashTy
	case *btcutil.AddressScriptHash:
		want = txscript.ScriptHashTy
	default:
		return false
	}

	class, addrs, _, err := txscript.ExtractPkScriptAddrs(pkScript, &chaincfg.MainNetParams)
	if err != nil || class != want || len(addrs) != 1 {
		return false
	}
	return bytes.Equal(addrs[0].ScriptAddress(), addr.ScriptAddress())
}
