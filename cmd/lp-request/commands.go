package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/ledgerpay/payment-sdk/internal/log"
	"github.com/ledgerpay/payment-sdk/pkg/authorization"
	"github.com/ledgerpay/payment-sdk/pkg/cli"
	"github.com/ledgerpay/payment-sdk/pkg/client"
	"github.com/ledgerpay/payment-sdk/pkg/protocol"
)

var (
	ErrCommandLineArgs    = errors.New("invalid command line arguments")
	ErrUnknownFacade      = errors.New("unrecognized facade")
	ErrRequiresTokens     = errors.New("command requires an access token location")
	ErrRequiresPrivateKey = errors.New("command requires a private key")
	ErrUnknownCommand     = errors.New("unrecognized command")
)

// publicFacade selects unauthenticated endpoints on the command line.
const publicFacade = "public"

// output receives response payloads. Replaced in tests.
var output io.Writer = os.Stdout

type Argument struct {
	name string
	help string
}

type Handler func(ctx context.Context, cl *client.Client, args map[string]string) error

type Command struct {
	help           string
	requiresKey    bool // True if command always needs the client identity key
	requiresTokens bool // True if command reads or writes the access token store
	args           []Argument
	optional       []Argument
	handler        Handler
}

// ParseFacade maps a command-line facade name to the name used by the token store. "public" maps
// to the empty facade.
func ParseFacade(name string) (string, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == publicFacade {
		return "", nil
	}
	for _, known := range cli.KnownFacades {
		if name == known {
			return name, nil
		}
	}
	return "", fmt.Errorf("%w: '%s'", ErrUnknownFacade, name)
}

// ParseQuery accepts either a URL-encoded query ("a=1&b=2") or a comma-separated list of
// key=value pairs.
func ParseQuery(raw string) (url.Values, error) {
	if raw == "" {
		return nil, nil
	}
	if !strings.Contains(raw, "&") && strings.Contains(raw, ",") {
		raw = strings.ReplaceAll(raw, ",", "&")
	}
	query, err := url.ParseQuery(strings.TrimPrefix(raw, "?"))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrCommandLineArgs, err)
	}
	return query, nil
}

// ParseBody returns the JSON request body named by raw. A leading '@' reads the body from a file,
// and "-" reads it from stdin.
func ParseBody(raw string) (json.RawMessage, error) {
	var data []byte
	var err error
	switch {
	case raw == "":
		return nil, nil
	case raw == "-":
		data, err = io.ReadAll(os.Stdin)
	case strings.HasPrefix(raw, "@"):
		data, err = os.ReadFile(raw[1:])
	default:
		data = []byte(raw)
	}
	if err != nil {
		return nil, err
	}
	data = bytes.TrimSpace(data)
	if !json.Valid(data) {
		return nil, fmt.Errorf("%w: body is not valid JSON", ErrCommandLineArgs)
	}
	return json.RawMessage(data), nil
}

func writePayload(payload json.RawMessage) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, payload, "", "  "); err != nil {
		// The client only returns valid JSON, but don't lose output if that changes.
		buf.Reset()
		buf.Write(payload)
	}
	buf.WriteByte('\n')
	_, err := output.Write(buf.Bytes())
	return err
}

// configureFlags verifies that c contains all the information required to execute a command.
func configureFlags(c *cli.Config, commandName string) error {
	if _, ok := commands[commandName]; !ok {
		return ErrUnknownCommand
	}
	c.Flags = cli.FlagAll

	havePrivateKey := !(c.KeyringKeyName == "" && c.KeyFilename == "")
	haveTokens := !(c.KeyringTokenName == "" && c.TokenFilename == "")
	_, err := checkReadiness(commandName, havePrivateKey, haveTokens)
	return err
}

func checkReadiness(commandName string, havePrivateKey, haveTokens bool) (*Command, error) {
	info, ok := commands[commandName]
	if !ok {
		return nil, ErrUnknownCommand
	}
	if info.requiresTokens && !haveTokens {
		return nil, ErrRequiresTokens
	}
	if info.requiresKey && !havePrivateKey {
		return nil, ErrRequiresPrivateKey
	}
	return info, nil
}

func execute(ctx context.Context, cl *client.Client, args []string) error {
	if len(args) == 0 {
		return errors.New("missing COMMAND")
	}

	// Token locations were validated by configureFlags before the client was created.
	info, err := checkReadiness(args[0], cl.Identity() != "", true)
	if err != nil {
		return err
	}

	if len(args)-1 < len(info.args) || len(args)-1 > len(info.args)+len(info.optional) {
		writeErr("Invalid number of command line arguments: %d (%d required, %d optional).", len(args)-1, len(info.args), len(info.optional))
		err = ErrCommandLineArgs
	} else {
		keywords := make(map[string]string)
		for i, argInfo := range info.args {
			keywords[argInfo.name] = args[i+1]
		}
		index := len(info.args) + 1
		for _, argInfo := range info.optional {
			if index >= len(args) {
				break
			}
			keywords[argInfo.name] = args[index]
			index++
		}
		err = info.handler(ctx, cl, keywords)
	}

	// Print command-specific help
	if errors.Is(err, ErrCommandLineArgs) || errors.Is(err, ErrUnknownFacade) {
		info.Usage(args[0])
	}
	return err
}

func (c *Command) Usage(name string) {
	fmt.Printf("Usage: %s", name)
	maxLength := 0
	for _, arg := range c.args {
		fmt.Printf(" %s", arg.name)
		if len(arg.name) > maxLength {
			maxLength = len(arg.name)
		}
	}
	if len(c.optional) > 0 {
		fmt.Printf(" [")
	}
	for _, arg := range c.optional {
		fmt.Printf(" %s", arg.name)
		if len(arg.name) > maxLength {
			maxLength = len(arg.name)
		}
	}
	if len(c.optional) > 0 {
		fmt.Printf(" ]")
	}
	fmt.Printf("\n%s\n", c.help)
	maxLength++
	for _, arg := range c.args {
		fmt.Printf("    %s:%s%s\n", arg.name, strings.Repeat(" ", maxLength-len(arg.name)), arg.help)
	}
	for _, arg := range c.optional {
		fmt.Printf("    %s:%s%s\n", arg.name, strings.Repeat(" ", maxLength-len(arg.name)), arg.help)
	}
}

var (
	facadeArg = Argument{name: "FACADE", help: "Token facade (merchant, payout, pos) or public"}
	pathArg   = Argument{name: "PATH", help: "Resource path relative to the API root, e.g. invoices"}
	queryArg  = Argument{name: "QUERY", help: "Query parameters, e.g. status=complete&limit=10"}
	bodyArg   = Argument{name: "BODY", help: "JSON body, @FILE to read it from a file, or - for stdin"}
)

func queryHandler(method string) Handler {
	return func(ctx context.Context, cl *client.Client, args map[string]string) error {
		facade, err := ParseFacade(args["FACADE"])
		if err != nil {
			return err
		}
		query, err := ParseQuery(args["QUERY"])
		if err != nil {
			return err
		}
		var payload json.RawMessage
		if method == http.MethodDelete {
			payload, err = cl.Delete(ctx, args["PATH"], facade, query)
		} else {
			payload, err = cl.Get(ctx, args["PATH"], facade, query)
		}
		if err != nil {
			return err
		}
		return writePayload(payload)
	}
}

func bodyHandler(method string) Handler {
	return func(ctx context.Context, cl *client.Client, args map[string]string) error {
		facade, err := ParseFacade(args["FACADE"])
		if err != nil {
			return err
		}
		body, err := ParseBody(args["BODY"])
		if err != nil {
			return err
		}
		if body == nil {
			body = json.RawMessage("{}")
		}
		var payload json.RawMessage
		if method == http.MethodPut {
			payload, err = cl.Put(ctx, args["PATH"], facade, []byte(body))
		} else {
			payload, err = cl.Post(ctx, args["PATH"], facade, []byte(body))
		}
		if err != nil {
			return err
		}
		return writePayload(payload)
	}
}

var commands = map[string]*Command{
	"get": &Command{
		help:     "Send a GET request and print the response payload",
		args:     []Argument{facadeArg, pathArg},
		optional: []Argument{queryArg},
		handler:  queryHandler(http.MethodGet),
	},
	"delete": &Command{
		help:     "Send a DELETE request and print the response payload",
		args:     []Argument{facadeArg, pathArg},
		optional: []Argument{queryArg},
		handler:  queryHandler(http.MethodDelete),
	},
	"post": &Command{
		help:     "Send a POST request and print the response payload",
		args:     []Argument{facadeArg, pathArg},
		optional: []Argument{bodyArg},
		handler:  bodyHandler(http.MethodPost),
	},
	"put": &Command{
		help:     "Send a PUT request and print the response payload",
		args:     []Argument{facadeArg, pathArg},
		optional: []Argument{bodyArg},
		handler:  bodyHandler(http.MethodPut),
	},
	"identity": &Command{
		help:        "Print the client identity (SIN) and public key",
		requiresKey: true,
		handler: func(ctx context.Context, cl *client.Client, args map[string]string) error {
			fmt.Fprintln(output, cl.Identity())
			return nil
		},
	},
	"tokens": &Command{
		help:           "List facades that have a stored access token",
		requiresTokens: true,
		handler: func(ctx context.Context, cl *client.Client, args map[string]string) error {
			store := cl.Tokens()
			for _, facade := range store.Facades() {
				token, _ := store.Get(facade)
				fmt.Fprintf(output, "%-10s %s\n", facade, log.Masked(token))
			}
			return nil
		},
	},
	"pair": &Command{
		help:           "Request an access token for a facade and print the pairing code to approve",
		requiresKey:    true,
		requiresTokens: true,
		args:           []Argument{Argument{name: "FACADE", help: "Facade to request (merchant, payout, pos)"}},
		handler: func(ctx context.Context, cl *client.Client, args map[string]string) error {
			facade, err := ParseFacade(args["FACADE"])
			if err != nil {
				return err
			}
			if facade == "" {
				return fmt.Errorf("%w: cannot pair with the public facade", ErrUnknownFacade)
			}
			flow := authorization.New(cl, cl.Identity(), cl.Tokens())
			code, err := flow.RequestPairingCodeForFacade(ctx, facade)
			if err != nil {
				return err
			}
			fmt.Fprintln(output, code)
			return nil
		},
	},
	"claim": &Command{
		help:           "Claim a pairing code created in the merchant dashboard",
		requiresKey:    true,
		requiresTokens: true,
		args:           []Argument{Argument{name: "CODE", help: "Pairing code"}},
		handler: func(ctx context.Context, cl *client.Client, args map[string]string) error {
			flow := authorization.New(cl, cl.Identity(), cl.Tokens())
			if err := flow.AuthorizeClientWithPairingCode(ctx, args["CODE"]); err != nil {
				return err
			}
			for _, facade := range cl.Tokens().Facades() {
				fmt.Fprintln(output, facade)
			}
			return nil
		},
	},
}

// describeError adds a hint for errors the user can fix.
func describeError(err error) string {
	switch {
	case errors.Is(err, protocol.ErrNoIdentity):
		return "You must provide a private key with -key-name or -key-file to execute this command"
	case protocol.IsTokenNotFound(err):
		return fmt.Sprintf("%s. Pair the client first with the pair or claim command", err)
	case protocol.MayHaveSucceeded(err):
		return fmt.Sprintf("Couldn't verify success: %s", err)
	}
	return fmt.Sprintf("Failed to execute command: %s", err)
}
