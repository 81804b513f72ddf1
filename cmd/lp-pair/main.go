// Utility for pairing a client identity with a merchant account

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ledgerpay/payment-sdk/internal/log"
	"github.com/ledgerpay/payment-sdk/pkg/cli"
)

func usage() {
	w := flag.CommandLine.Output()
	fmt.Fprintf(w, "usage: %s [OPTION...] request FACADE\n", filepath.Base(os.Args[0]))
	fmt.Fprintf(w, "       %s [OPTION...] claim PAIRING_CODE\n", filepath.Base(os.Args[0]))
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Pairs the configured client identity with a merchant account and saves the resulting")
	fmt.Fprintln(w, "access tokens. The request command prints a pairing code that an administrator must")
	fmt.Fprintln(w, "approve in the merchant dashboard before the token becomes active. The claim command")
	fmt.Fprintln(w, "redeems a pairing code created in the dashboard.")
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "The identity key is created if it does not exist. Tokens are saved to -token-file or\n")
	fmt.Fprintf(w, "-token-name (defaults $%s and $%s).\n", cli.EnvLedgerPayTokenFile, cli.EnvLedgerPayTokenName)
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "OPTIONS:")
	flag.PrintDefaults()
}

func main() {
	returnCode := 1
	defer func() {
		os.Exit(returnCode)
	}()

	var (
		debug   bool
		timeout time.Duration
	)
	config, err := cli.NewConfig(cli.FlagAll)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load credential configuration: %s\n", err)
		return
	}

	config.RegisterCommandLineFlags()
	flag.BoolVar(&debug, "debug", false, "Enable verbose debugging messages")
	flag.DurationVar(&timeout, "timeout", 30*time.Second, "Timeout for the pairing request")
	flag.Usage = usage
	flag.Parse()
	if debug {
		log.SetLevel(log.LevelDebug)
	}
	config.ReadFromEnvironment()
	if err := config.ReadFromFile(""); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read configuration file: %s\n", err)
		return
	}

	if flag.NArg() != 2 {
		usage()
		return
	}
	if config.TokenFilename == "" && config.KeyringTokenName == "" {
		fmt.Fprintf(os.Stderr, "Must provide a location for access tokens using -token-file or -token-name\n")
		return
	}

	skey, err := config.GenerateOrLoadKey()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load private key: %s\n", err)
		return
	}
	log.Info("Client identity: %s", skey.Identity())

	flow, client, err := config.Authorizer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create client: %s\n", err)
		return
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	switch command, arg := flag.Arg(0), flag.Arg(1); command {
	case "request":
		code, err := flow.RequestPairingCodeForFacade(ctx, arg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			return
		}
		fmt.Println(code)
	case "claim":
		if err := flow.AuthorizeClientWithPairingCode(ctx, arg); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			return
		}
		for _, facade := range client.Tokens().Facades() {
			fmt.Println(facade)
		}
	default:
		fmt.Fprintf(os.Stderr, "Unrecognized command '%s'\n", command)
		return
	}

	if err := config.SaveTokens(); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving access tokens: %s\n", err)
		return
	}
	returnCode = 0
}
