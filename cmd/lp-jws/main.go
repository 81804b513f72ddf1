package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ledgerpay/payment-sdk/pkg/cli"
	"github.com/ledgerpay/payment-sdk/pkg/sign"
)

const helpStr = `
usage: lp-jws [OPTION...] sign [JSON_FILE]
			Generates a JWS (JSON Web Signature) for JSON_FILE.
       lp-jws [OPTION...] verify [JWS_FILE]
			Verifies that the signature on JWS_FILE is correct and that the issuer matches the
			embedded public key, but does not check that the issuer is trusted.

Creates or verifies a JWS signed with the client identity key using ECDSA over secp256k1
("ES256K").

The JSON_FILE may contain standard JWT (JSON Web Token) claims, such as an expiration time.
However, the issuer ("iss"), "pub" and issued-at ("iat") claims will be overwritten, as will the
audience ("aud") if -audience is provided.

The issuer of a verified token is the SIN of the signing key. The caller must verify that the
issuer is trusted.`

func readStdinOrFile(filenamePosition int) ([]byte, error) {
	if flag.NArg() <= filenamePosition {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(flag.Arg(filenamePosition))
}

func readClaims(argNumber int) (jwt.MapClaims, error) {
	jsonBytes, err := readStdinOrFile(argNumber)
	if err != nil {
		return nil, err
	}
	var claims jwt.MapClaims
	if err := json.Unmarshal(jsonBytes, &claims); err != nil {
		return nil, err
	}
	return claims, nil
}

func usage() {
	fmt.Println(helpStr)
	fmt.Println("")
	flag.PrintDefaults()
}

func signClaims(config *cli.Config, audience string) {
	skey, err := config.PrivateKey()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load private key: %s\n", err)
		os.Exit(1)
	}
	claims, err := readClaims(1)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading JSON: %s\n", err)
		os.Exit(1)
	}
	token, err := sign.Message(skey, audience, claims)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create JWS: %s\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}

func verify(audience string) {
	tokenBytes, err := readStdinOrFile(1)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read token: %s\n", err)
		os.Exit(1)
	}
	claims, err := sign.Verify(strings.TrimSpace(string(tokenBytes)), audience)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid JWT: %s\n", err)
		os.Exit(1)
	}
	encoded, err := json.Marshal(claims)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to encode claims as JSON: %s\n", err)
		os.Exit(1)
	}
	fmt.Printf("%s\n", encoded)
}

func main() {
	var audience string
	flag.Usage = usage
	flag.StringVar(&audience, "audience", "", "Audience (\"aud\") claim to set when signing or require when verifying")

	config, err := cli.NewConfig(cli.FlagPrivateKey)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create configuration: %s\n", err)
		os.Exit(1)
	}

	config.RegisterCommandLineFlags()
	flag.Parse()
	config.ReadFromEnvironment()
	if err := config.ReadFromFile(""); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read configuration file: %s\n", err)
		os.Exit(1)
	}

	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "Missing command (verify/sign)")
		os.Exit(1)
	}

	switch flag.Arg(0) {
	case "sign":
		signClaims(config, audience)
	case "verify":
		verify(audience)
	default:
		fmt.Fprintln(os.Stderr, "Unrecognized command")
		os.Exit(1)
	}
}
