package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"

	"github.com/urfave/cli"

	"github.com/Klingon-tech/bitname/internal/registrar"
)

// commandContext is cancelled on interrupt.
func commandContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func runCommit(c *cli.Context) error {
	m := meta(c)
	a, err := args(c, 3, 3)
	if err != nil {
		return err
	}
	servicePub, err := m.parsePubKey(a[0])
	if err != nil {
		return err
	}
	expiry, err := parseHeight(a[2])
	if err != nil {
		return err
	}
	user, err := m.signingKey()
	if err != nil {
		return err
	}
	reg, err := m.registrar()
	if err != nil {
		return err
	}

	ctx, cancel := commandContext()
	defer cancel()
	res, err := reg.Commit(ctx, registrar.CommitRequest{
		ServicePubKey: servicePub,
		Name:          a[1],
		ExpiryHeight:  expiry,
		User:          user,
		Push:          c.Bool("push"),
	})
	if err != nil {
		return err
	}
	printResult(m.w, res)
	return nil
}

func runRegister(c *cli.Context) error {
	m := meta(c)
	a, err := args(c, 2, 4)
	if err == nil && len(a) == 3 {
		err = fmt.Errorf("usage: %s register %s", c.App.Name, c.Command.ArgsUsage)
	}
	if err != nil {
		return err
	}
	servicePub, err := m.parsePubKey(a[0])
	if err != nil {
		return err
	}
	commitTxid, err := parseTxid(a[1])
	if err != nil {
		return err
	}
	req := registrar.RegisterRequest{
		ServicePubKey: servicePub,
		CommitTxid:    commitTxid,
		Push:          c.Bool("push"),
	}
	if len(a) == 4 {
		req.Name = a[2]
		if req.ExpiryHeight, err = parseHeight(a[3]); err != nil {
			return err
		}
	}
	if req.User, err = m.signingKey(); err != nil {
		return err
	}
	reg, err := m.registrar()
	if err != nil {
		return err
	}

	ctx, cancel := commandContext()
	defer cancel()
	res, err := reg.Register(ctx, req)
	if err != nil {
		return err
	}
	printResult(m.w, res)
	return nil
}

func runRevoke(c *cli.Context) error {
	m := meta(c)
	a, err := args(c, 2, 2)
	if err != nil {
		return err
	}
	servicePub, err := m.parsePubKey(a[0])
	if err != nil {
		return err
	}
	lockTxid, err := parseTxid(a[1])
	if err != nil {
		return err
	}
	user, err := m.signingKey()
	if err != nil {
		return err
	}
	reg, err := m.registrar()
	if err != nil {
		return err
	}

	ctx, cancel := commandContext()
	defer cancel()
	res, err := reg.Revoke(ctx, registrar.RevokeRequest{
		ServicePubKey: servicePub,
		LockTxid:      lockTxid,
		User:          user,
		Push:          c.Bool("push"),
	})
	if err != nil {
		return err
	}
	printResult(m.w, res)
	return nil
}

func runServiceSpend(c *cli.Context) error {
	m := meta(c)
	a, err := args(c, 1, 1)
	if err != nil {
		return err
	}
	lockTxid, err := parseTxid(a[0])
	if err != nil {
		return err
	}
	service, err := m.signingKey()
	if err != nil {
		return err
	}
	reg, err := m.registrar()
	if err != nil {
		return err
	}

	ctx, cancel := commandContext()
	defer cancel()
	res, err := reg.ServiceSpend(ctx, registrar.ServiceSpendRequest{
		LockTxid: lockTxid,
		Service:  service,
		Push:     c.Bool("push"),
	})
	if err != nil {
		return err
	}
	printResult(m.w, res)
	return nil
}

type nameEntry struct {
	Name    string `json:"name"`
	PubKey  string `json:"pubkey"`
	Txid    string `json:"txid"`
	Expires int64  `json:"expires"`
	Height  int64  `json:"height"`
}

func runAllNames(c *cli.Context) error {
	m := meta(c)
	a, err := args(c, 1, 1)
	if err != nil {
		return err
	}
	servicePub, err := m.parsePubKey(a[0])
	if err != nil {
		return err
	}
	reg, err := m.registrar()
	if err != nil {
		return err
	}

	if c.Bool("refresh") {
		if err := reg.DropSnapshots(); err != nil {
			return err
		}
	}

	ctx, cancel := commandContext()
	defer cancel()
	entries, err := reg.AllNames(ctx, servicePub)
	if err != nil {
		return err
	}
	out := make([]nameEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, nameEntry{
			Name:    e.Name,
			PubKey:  m.encodePubKey(e.PubKey),
			Txid:    e.Txid.String(),
			Expires: e.Expires,
			Height:  e.Height,
		})
	}
	return printJSON(m.w, out)
}

func runStatus(c *cli.Context) error {
	m := meta(c)
	a, err := args(c, 2, 2)
	if err != nil {
		return err
	}
	servicePub, err := m.parsePubKey(a[0])
	if err != nil {
		return err
	}
	txid, err := parseTxid(a[1])
	if err != nil {
		return err
	}
	reg, err := m.registrar()
	if err != nil {
		return err
	}

	ctx, cancel := commandContext()
	defer cancel()
	state, err := reg.Status(ctx, servicePub, txid)
	if err != nil {
		return err
	}
	fmt.Fprintln(m.w, state)
	return nil
}

type pendingEntry struct {
	CommitTxid    string `json:"commit_txid"`
	Name          string `json:"name"`
	ExpiryHeight  uint32 `json:"expiry_height"`
	ServicePubKey string `json:"service_pubkey"`
	State         string `json:"state"`
	Confirmations int64  `json:"confirmations"`
}

func runPending(c *cli.Context) error {
	m := meta(c)
	reg, err := m.registrar()
	if err != nil {
		return err
	}

	ctx, cancel := commandContext()
	defer cancel()
	pending, err := reg.Pending(ctx)
	if err != nil {
		return err
	}
	out := make([]pendingEntry, 0, len(pending))
	for _, p := range pending {
		service := p.ServicePubKey
		if pub, err := hex.DecodeString(p.ServicePubKey); err == nil {
			service = m.encodePubKey(pub)
		}
		out = append(out, pendingEntry{
			CommitTxid:    p.CommitTxid,
			Name:          p.Name,
			ExpiryHeight:  p.ExpiryHeight,
			ServicePubKey: service,
			State:         p.State.String(),
			Confirmations: p.Confirmations,
		})
	}
	return printJSON(m.w, out)
}
