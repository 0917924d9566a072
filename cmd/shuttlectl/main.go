// Command shuttlectl is a command line client for the bridge API.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/alanyoungcy/shuttle/internal/client"
)

var (
	apiFlag = &cli.StringFlag{
		Name:    "api",
		Usage:   "bridge API base URL",
		Value:   "http://localhost:4000",
		EnvVars: []string{"API_BASE", "SHUTTLE_API"},
	}
	apiKeyFlag = &cli.StringFlag{
		Name:    "api-key",
		Usage:   "API key for deposit and withdraw",
		EnvVars: []string{"SHUTTLE_API_KEY"},
	}
	btcAddressFlag = &cli.StringFlag{
		Name:    "btc-address",
		Usage:   "BTC address",
		EnvVars: []string{"BTC_ADDRESS"},
	}
	starknetAddressFlag = &cli.StringFlag{
		Name:    "starknet-address",
		Usage:   "Starknet address",
		EnvVars: []string{"STARKNET_ADDRESS"},
	}
)

func main() {
	app := cli.NewApp()

	app.Name = "shuttlectl"
	app.Usage = "Command line interface for the shuttle bridge API"
	app.Flags = []cli.Flag{apiFlag, apiKeyFlag}
	app.Commands = append(
		app.Commands,
		&demo,
		&quote,
		&balance,
		&history,
		&preflight,
		&encryptKey,
		&quotes,
	)

	if err := app.Run(os.Args); err != nil {
		fatal(err)
	}
}

func newClient(c *cli.Context) *client.Client {
	return client.New(c.String(apiFlag.Name), c.String(apiKeyFlag.Name), 0)
}

func printJSON(v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", v)
		return
	}
	fmt.Println(string(b))
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "[shuttlectl] %v\n", err)
	os.Exit(1)
}
