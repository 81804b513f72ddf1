// Utility for generating, saving, and migrating client identity keys

package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ledgerpay/payment-sdk/internal/log"
	"github.com/ledgerpay/payment-sdk/pkg/cli"
	"github.com/ledgerpay/payment-sdk/pkg/protocol"
)

func writeErr(format string, a ...interface{}) {
	fmt.Fprintf(os.Stderr, format, a...)
	fmt.Fprintf(os.Stderr, "\n")
}

const usageText = `
Creates or deletes a client identity key and saves it in the system keyring or a file, or migrates
a key from a plaintext file into the system keyring.

The program writes the client identity (SIN) and hex-encoded public key to stdout (except when
deleting or exporting a key). When using the create option, the program will not overwrite an
existing key unless invoked with -f.

The type of keyring and name of the key inside that keyring are controlled by the command-line
options below, or through the corresponding environment variables.`

func cliUsage() {
	usage(flag.CommandLine.Output())
}

func usage(w io.Writer) {
	fmt.Fprintf(w, "usage: %s [OPTION...] create|delete|export|migrate|show\n", filepath.Base(os.Args[0]))
	fmt.Fprintln(w, usageText)
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "OPTIONS:")
	flag.PrintDefaults()
}

func printIdentity(w io.Writer, skey protocol.PrivateKey) {
	fmt.Fprintf(w, "identity:   %s\n", skey.Identity())
	fmt.Fprintf(w, "public key: %s\n", protocol.PublicKeyHex(skey))
}

func printPrivateKey(w io.Writer, skey protocol.PrivateKey) error {
	encoded, err := protocol.MarshalPrivateKey(skey)
	if err != nil {
		return err
	}
	_, err = w.Write(encoded)
	return err
}

func main() {
	// Command-line variables
	var (
		overwrite    bool
		uncompressed bool
		debug        bool
		skey         protocol.PrivateKey
		err          error
	)
	status := 1
	defer func() {
		os.Exit(status)
	}()

	config, err := cli.NewConfig(cli.FlagPrivateKey)
	config.RegisterCommandLineFlags()
	flag.Usage = cliUsage
	flag.BoolVar(&overwrite, "f", false, "Overwrite existing key if it exists")
	flag.BoolVar(&uncompressed, "uncompressed", false, "Print and store the public key in uncompressed form")
	flag.BoolVar(&debug, "debug", false, "Enable debugging")
	flag.Parse()
	if debug || config.Debug {
		log.SetLevel(log.LevelDebug)
	}
	if err != nil {
		writeErr("Failed to load credential configuration: %s", err)
		return
	}
	config.ReadFromEnvironment()
	if err := config.ReadFromFile(""); err != nil {
		writeErr("Failed to read configuration file: %s", err)
		return
	}

	if flag.NArg() != 1 {
		usage(os.Stderr)
		return
	}

	switch flag.Arg(0) {
	case "migrate":
		if config.KeyFilename == "" || config.KeyringKeyName == "" {
			writeErr("Must provide path of existing key (-key-file) and name of new key (-key-name)")
			return
		}

		skey, err = protocol.LoadPrivateKey(config.KeyFilename)
		if err != nil {
			writeErr("Unable to read key: %s", err)
			return
		}
		config.KeyFilename = "" // Prevent key from being re-written to a file
	case "delete":
		if err := config.DeletePrivateKey(); err != nil {
			writeErr("Failed to delete key: %s", err)
		} else {
			status = 0
		}
		return
	case "show":
		skey, err = config.PrivateKey()
		if err != nil {
			writeErr("Failed to load key: %s", err)
			return
		}
		skey.SetCompressed(!uncompressed)
		printIdentity(os.Stdout, skey)
		status = 0
		return
	case "create":
		if !overwrite {
			// Print key and exit if it already exists
			skey, err = config.PrivateKey()
			if err == nil {
				printIdentity(os.Stdout, skey)
				status = 0
				return
			}
			if protocol.KindOf(err) == protocol.KindKeyFormat {
				writeErr("Failed to parse key. The key store may be corrupted. Run with -f to generate new key.")
				return
			}
		}
		skey, err = protocol.GenerateKey()
		if err != nil {
			writeErr("Failed to generate private key: %s", err)
			return
		}
	case "export":
		skey, err = config.PrivateKey()
		if err == nil {
			skey.SetCompressed(!uncompressed)
			err = printPrivateKey(os.Stdout, skey)
		}
		if err != nil {
			writeErr("Failed to export private key: %s", err)
		}
		if err == nil {
			status = 0
		}
		return
	default:
		writeErr("Unrecognized command-line argument.")
		writeErr("")
		usage(os.Stderr)
		return
	}

	skey.SetCompressed(!uncompressed)
	if err = config.SavePrivateKey(skey); err != nil {
		writeErr("Failed to save key: %s", err)
		return
	}
	printIdentity(os.Stdout, skey)
	status = 0
}
