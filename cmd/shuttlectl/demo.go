package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/alanyoungcy/shuttle/internal/client"
)

var demo = cli.Command{
	Name:  "demo",
	Usage: "run a deposit then withdraw round trip and print balances",
	Flags: []cli.Flag{
		btcAddressFlag,
		starknetAddressFlag,
		&cli.Float64Flag{Name: "amount", Usage: "BTC amount", Value: 0.01},
		&cli.StringFlag{Name: "onchain-tx-hash", Usage: "user withdraw transaction, required in non-custodial mode"},
		&cli.DurationFlag{Name: "wait", Usage: "pause after each operation", Value: 5 * time.Second},
	},
	Action: demoAction,
}

func demoAction(c *cli.Context) error {
	btcAddress := c.String(btcAddressFlag.Name)
	starknetAddress := c.String(starknetAddressFlag.Name)
	if starknetAddress == "" {
		return errors.New("--starknet-address (or STARKNET_ADDRESS) required")
	}
	if btcAddress == "" {
		btcAddress = "tb1qexamplebtcaddr"
	}
	api := newClient(c)
	ctx := c.Context
	req := client.OperationRequest{
		BTCAddress:      btcAddress,
		StarknetAddress: starknetAddress,
		Amount:          c.Float64("amount"),
	}

	step := func(n int, msg string) { fmt.Printf("Step %d: %s\n", n, msg) }
	pause := func() error {
		fmt.Printf("Waiting %s for on-chain confirmation...\n", c.Duration("wait"))
		select {
		case <-time.After(c.Duration("wait")):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	step(1, "refresh balances")
	bal, err := api.Balance(ctx, btcAddress, starknetAddress)
	if err != nil {
		return fmt.Errorf("demo: initial balance: %w", err)
	}
	fmt.Println("Initial balance:", bal)

	step(2, "deposit")
	res, err := api.Deposit(ctx, req)
	if err != nil {
		return fmt.Errorf("demo: deposit: %w", err)
	}
	printJSON(res)
	if err := pause(); err != nil {
		return err
	}

	step(3, "verify balance")
	if bal, err = api.Balance(ctx, btcAddress, starknetAddress); err != nil {
		return fmt.Errorf("demo: post-deposit balance: %w", err)
	}
	fmt.Println("Post-deposit balance:", bal)

	step(4, "withdraw")
	req.OnchainTxHash = c.String("onchain-tx-hash")
	if res, err = api.Withdraw(ctx, req); err != nil {
		return fmt.Errorf("demo: withdraw: %w", err)
	}
	printJSON(res)
	if err := pause(); err != nil {
		return err
	}

	step(5, "verify final balance")
	if bal, err = api.Balance(ctx, btcAddress, starknetAddress); err != nil {
		return fmt.Errorf("demo: final balance: %w", err)
	}
	fmt.Println("Final balance:", bal)

	fmt.Println("Demo complete")
	return nil
}
