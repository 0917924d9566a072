package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/alanyoungcy/shuttle/internal/client"
	"github.com/alanyoungcy/shuttle/internal/crypto"
	"github.com/alanyoungcy/shuttle/internal/domain"
	"github.com/alanyoungcy/shuttle/internal/quotelog"
)

var quote = cli.Command{
	Name:      "quote",
	Usage:     "get a fee quote for an amount",
	ArgsUsage: "<amount>",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "action", Usage: "deposit or withdraw", Value: "deposit"},
		&cli.BoolFlag{Name: "batch", Usage: "quote a batched operation"},
		&cli.StringFlag{Name: "token", Usage: "token symbol"},
	},
	Action: quoteAction,
}

func quoteAction(c *cli.Context) error {
	amount, err := amountArg(c)
	if err != nil {
		return err
	}
	q, err := newClient(c).Quote(c.Context, client.QuoteRequest{
		Amount: amount,
		Action: domain.Action(c.String("action")),
		Batch:  c.Bool("batch"),
		Token:  c.String("token"),
	})
	if err != nil {
		return err
	}
	printJSON(q)
	return nil
}

var balance = cli.Command{
	Name:   "balance",
	Usage:  "show the vault balance of an address",
	Flags:  []cli.Flag{btcAddressFlag, starknetAddressFlag},
	Action: balanceAction,
}

func balanceAction(c *cli.Context) error {
	bal, err := newClient(c).Balance(c.Context, c.String(btcAddressFlag.Name), c.String(starknetAddressFlag.Name))
	if err != nil {
		return err
	}
	printJSON(map[string]any{"balance": bal})
	return nil
}

var history = cli.Command{
	Name:   "history",
	Usage:  "list history records, optionally filtered by address",
	Flags:  []cli.Flag{btcAddressFlag, starknetAddressFlag},
	Action: historyAction,
}

func historyAction(c *cli.Context) error {
	recs, err := newClient(c).History(c.Context, domain.HistoryFilter{
		BTCAddress:      c.String(btcAddressFlag.Name),
		StarknetAddress: c.String(starknetAddressFlag.Name),
	})
	if err != nil {
		return err
	}
	printJSON(recs)
	return nil
}

var preflight = cli.Command{
	Name:  "preflight",
	Usage: "run the compliance gate for an address pair",
	Flags: []cli.Flag{
		btcAddressFlag,
		starknetAddressFlag,
		&cli.StringFlag{Name: "country", Usage: "ISO country code sent as X-Country"},
		&cli.BoolFlag{Name: "accept-tos", Usage: "accept the terms of service", Value: true},
	},
	Action: preflightAction,
}

func preflightAction(c *cli.Context) error {
	d, err := newClient(c).Preflight(c.Context, client.PreflightRequest{
		TOSAccepted:     c.Bool("accept-tos"),
		BTCAddress:      c.String(btcAddressFlag.Name),
		StarknetAddress: c.String(starknetAddressFlag.Name),
		Country:         c.String("country"),
	})
	if err != nil {
		return err
	}
	printJSON(d)
	return nil
}

var encryptKey = cli.Command{
	Name:  "encrypt-key",
	Usage: "encrypt a Stark private key or remote signer secret for signer.encrypted_key_path",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "secret", Usage: "secret to encrypt", EnvVars: []string{"SIGNER_SECRET"}, Required: true},
		&cli.StringFlag{Name: "password", Usage: "encryption password", EnvVars: []string{"SIGNER_KEY_PASSWORD"}, Required: true},
		&cli.StringFlag{Name: "out", Usage: "output file", Value: "signer.key.json"},
	},
	Action: encryptKeyAction,
}

func encryptKeyAction(c *cli.Context) error {
	blob, err := crypto.EncryptSecret([]byte(c.String("secret")), c.String("password"))
	if err != nil {
		return err
	}
	if err := os.WriteFile(c.String("out"), blob, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", c.String("out"), err)
	}
	fmt.Println("wrote", c.String("out"))
	return nil
}

func amountArg(c *cli.Context) (float64, error) {
	if c.NArg() != 1 {
		return 0, errors.New("exactly one <amount> argument required")
	}
	var amount float64
	if _, err := fmt.Sscan(c.Args().First(), &amount); err != nil || amount <= 0 {
		return 0, fmt.Errorf("invalid amount %q", c.Args().First())
	}
	return amount, nil
}

var quotes = cli.Command{
	Name:  "quotes",
	Usage: "dump the quote log from a WAL directory",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "dir", Usage: "quote_log.dir of a stopped daemon", Required: true},
		&cli.Uint64Flag{Name: "since", Usage: "only entries after this index"},
	},
	Action: quotesAction,
}

func quotesAction(c *cli.Context) error {
	l, err := quotelog.Open(c.String("dir"), 1, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		return err
	}
	defer l.Close()

	entries, err := l.Since(c.Uint64("since"))
	if err != nil {
		return err
	}
	printJSON(entries)
	return nil
}
