// bitname-cli registers names on Bitcoin with a commit/reveal protocol and
// lists the names a service holds.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli"

	"github.com/Klingon-tech/bitname/config"
	"github.com/Klingon-tech/bitname/internal/log"
)

// set by the linker: go build -ldflags "-X main.version=M.N" ./...
var version = "dev"

func main() {
	app := cli.NewApp()
	app.Name = "bitname-cli"
	app.Usage = "register names with Bitcoin commit/reveal transactions"
	app.Version = version

	app.Writer = os.Stdout
	app.ErrWriter = os.Stderr

	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "network, n",
			Usage: " bitcoin `NETWORK` [mainnet|testnet|regtest] (default mainnet)",
		},
		cli.StringFlag{
			Name:  "datadir, d",
			Usage: " data `DIR` (default ~/.bitname)",
		},
		cli.StringFlag{
			Name:  "config, c",
			Usage: " config `FILE` (default <datadir>/bitname.conf)",
		},
		cli.StringFlag{
			Name:  "server, s",
			Usage: " electrum servers `HOST:PORT[,HOST:PORT]`, tried in order",
		},
		cli.BoolFlag{
			Name:  "tls",
			Usage: " connect to electrum servers over TLS",
		},
		cli.StringFlag{
			Name:  "key, k",
			Usage: " signing key: keystore `NAME`, .key file or WIF file (default: passphrase prompt)",
		},
		cli.StringFlag{
			Name:  "log-level",
			Usage: " log `LEVEL` [debug|info|warn|error]",
		},
		cli.StringFlag{
			Name:  "log-file",
			Usage: " also write JSON logs to `FILE`",
		},
		cli.BoolFlag{
			Name:  "log-json",
			Usage: " JSON log output",
		},
	}

	pushFlag := cli.BoolFlag{
		Name:  "push, p",
		Usage: " broadcast the transaction (default: print txid and raw hex)",
	}

	app.Commands = []cli.Command{
		{
			Name:      "commit",
			Usage:     "commit to registering a name",
			ArgsUsage: "<servicePubKey> <name> <expiryHeight>",
			Flags:     []cli.Flag{pushFlag},
			Action:    runCommit,
		},
		{
			Name:      "register",
			Usage:     "reveal a mature commitment with a lock transaction",
			ArgsUsage: "<servicePubKey> <commitTxid> [<name> <expiryHeight>]",
			Flags:     []cli.Flag{pushFlag},
			Action:    runRegister,
		},
		{
			Name:      "revoke",
			Usage:     "release a registration and recover the locked fee",
			ArgsUsage: "<servicePubKey> <lockTxid>",
			Flags:     []cli.Flag{pushFlag},
			Action:    runRevoke,
		},
		{
			Name:      "service-spend",
			Usage:     "reclaim the locked fee of an expired registration (service key)",
			ArgsUsage: "<lockTxid>",
			Flags:     []cli.Flag{pushFlag},
			Action:    runServiceSpend,
		},
		{
			Name:      "all-names",
			Usage:     "list the live registrations of a service",
			ArgsUsage: "<servicePubKey>",
			Flags: []cli.Flag{
				cli.BoolFlag{
					Name:  "refresh",
					Usage: " ignore cached registry snapshots",
				},
			},
			Action: runAllNames,
		},
		{
			Name:      "status",
			Usage:     "show the state of a lock or commit transaction",
			ArgsUsage: "<servicePubKey> <txid>",
			Action:    runStatus,
		},
		{
			Name:   "pending",
			Usage:  "list commitments awaiting registration",
			Action: runPending,
		},
		{
			Name:  "key-gen",
			Usage: "create a signing key",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "name",
					Value: "default",
					Usage: " keystore `NAME`",
				},
				cli.BoolFlag{
					Name:  "passphrase",
					Usage: " derive the key from a passphrase instead of a new mnemonic",
				},
				cli.StringFlag{
					Name:  "wif",
					Usage: " also write the private key as WIF to `FILE`",
				},
			},
			Action: runKeyGen,
		},
		{
			Name:      "key-info",
			Usage:     "show the public key and address of a key",
			ArgsUsage: "[<name|file>]",
			Action:    runKeyInfo,
		},
		{
			Name:      "init",
			Usage:     "write a default config file",
			ArgsUsage: " ",
			Action:    runInit,
		},
	}

	app.Before = func(c *cli.Context) error {
		f := &config.Flags{
			Network:    c.GlobalString("network"),
			DataDir:    c.GlobalString("datadir"),
			Config:     c.GlobalString("config"),
			Servers:    c.GlobalString("server"),
			TLS:        c.GlobalBool("tls"),
			SetTLS:     c.GlobalIsSet("tls"),
			LogLevel:   c.GlobalString("log-level"),
			LogFile:    c.GlobalString("log-file"),
			LogJSON:    c.GlobalBool("log-json"),
			SetLogJSON: c.GlobalIsSet("log-json"),
		}
		cfg, err := config.Load(f)
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}
		if err := log.Init(cfg.Log.Level, cfg.Log.JSON, cfg.Log.File); err != nil {
			return fmt.Errorf("init logging: %w", err)
		}
		params, err := cfg.Params()
		if err != nil {
			return err
		}

		c.App.Metadata["config"] = &metadata{
			cfg:    cfg,
			flags:  f,
			params: params,
			key:    c.GlobalString("key"),
			w:      c.App.Writer,
			e:      c.App.ErrWriter,
		}
		log.CLI.Debug().Str("network", string(cfg.Network)).Strs("servers", cfg.Electrum.Servers).Str("datadir", cfg.DataDir).Msg("configuration loaded")
		return nil
	}

	app.After = func(c *cli.Context) error {
		m, ok := c.App.Metadata["config"].(*metadata)
		if !ok {
			return nil
		}
		return m.close()
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(app.ErrWriter, "Error: %s\n", err)
		os.Exit(1)
	}
}
