package client

import (
	"context"
	_ "embed" // Used to embed version for use with user agent
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"runtime/debug"
	"strings"

	"github.com/ledgerpay/payment-sdk/internal/authentication"
	"github.com/ledgerpay/payment-sdk/internal/log"
	"github.com/ledgerpay/payment-sdk/pkg/connector"
	"github.com/ledgerpay/payment-sdk/pkg/connector/inet"
	"github.com/ledgerpay/payment-sdk/pkg/protocol"
	"github.com/ledgerpay/payment-sdk/pkg/tokens"
)

var (
	//go:embed version.txt
	libraryVersion string
)

const (
	// APIVersion is sent in the X-Accept-Version header.
	APIVersion = "2.0.0"

	headerSignature     = "X-Signature"
	headerIdentity      = "X-Identity"
	headerAcceptVersion = "X-Accept-Version"
	headerClientVersion = "X-Client-Version"

	tokenField = "token"
)

// Facades issue the access tokens that scope what a client may do.
const (
	FacadeMerchant = "merchant"
	FacadePayout   = "payout"
	FacadePos      = "pos"
)

// SignatureRequired returns true if requests made with facade's token must be signed. Point of
// sale tokens are bearer tokens; the others are bound to the client identity.
func SignatureRequired(facade string) bool {
	return facade != "" && facade != FacadePos
}

// ClientVersion returns the value of the X-Client-Version header.
func ClientVersion() string {
	return "ledgerpay-go/" + strings.TrimSpace(libraryVersion)
}

func buildUserAgent(app string) string {
	library := ClientVersion()
	if app == "" {
		app = appFromBuildInfo()
	}
	if app == "" {
		return library
	}
	return fmt.Sprintf("%s %s", app, library)
}

func appFromBuildInfo() string {
	build, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	path := strings.Split(build.Path, "/")
	app := path[len(path)-1]
	var version string
	if build.Main.Version != "(devel)" && build.Main.Version != "" {
		version = build.Main.Version
	} else {
		for _, info := range build.Settings {
			if info.Key == "vcs.revision" {
				if len(info.Value) > 8 {
					version = info.Value[0:8]
				}
				break
			}
		}
	}
	if app != "" && version != "" {
		app = fmt.Sprintf("%s/%s", app, version)
	}
	return app
}

// Request describes a call to the API.
type Request struct {
	Method string
	// Path is relative to the environment's base URL, e.g. "invoices". It is given unescaped;
	// characters such as spaces are percent-encoded before the request is signed.
	Path  string
	Query url.Values
	// Body is marshaled to JSON unless it is already a []byte. Nil means no body.
	Body interface{}
	// Facade selects the access token to attach. Leave empty for public endpoints.
	Facade string
	// Signed requests carry X-Signature and X-Identity headers.
	Signed bool
}

// Client sends signed requests to the payment API.
type Client struct {
	// The default UserAgent is constructed from the build info, but can be overridden.
	UserAgent string
	baseURL   string
	conn      connector.Connector
	key       protocol.PrivateKey
	tokens    *tokens.Store
}

// New returns a Client for env.
//
// Providing a nil key is allowed, but requests that must be signed will fail with
// protocol.ErrNoIdentity. If store is nil, an empty one is created. If conn is nil, an HTTPS
// connection with default settings is used. Optional userAgent can be passed in; otherwise it
// is generated from the build info.
func New(env Environment, conn connector.Connector, key protocol.PrivateKey, store *tokens.Store, userAgent string) (*Client, error) {
	base, err := env.BaseURL()
	if err != nil {
		return nil, err
	}
	if conn == nil {
		conn = inet.NewConnection(nil)
	}
	if store == nil {
		store = tokens.New()
	}
	return &Client{
		UserAgent: buildUserAgent(userAgent),
		baseURL:   base,
		conn:      conn,
		key:       key,
		tokens:    store,
	}, nil
}

// Tokens returns the client's token store.
func (c *Client) Tokens() *tokens.Store {
	return c.tokens
}

// Identity returns the SIN of the client key, or "" if the client has no key.
func (c *Client) Identity() string {
	if c.key == nil {
		return ""
	}
	return c.key.Identity()
}

// Close releases the underlying connection.
func (c *Client) Close() {
	c.conn.Close()
}

func encodeBody(body interface{}) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return b, nil
	case json.RawMessage:
		return b, nil
	}
	return json.Marshal(body)
}

// withToken adds the token field to a JSON object body.
func withToken(body []byte, token string) ([]byte, error) {
	fields := make(map[string]json.RawMessage)
	if len(body) > 0 {
		if err := json.Unmarshal(body, &fields); err != nil {
			return nil, fmt.Errorf("request body must be a JSON object to carry a token: %w", err)
		}
	}
	if fields == nil {
		fields = make(map[string]json.RawMessage)
	}
	encodedToken, err := json.Marshal(token)
	if err != nil {
		return nil, err
	}
	fields[tokenField] = encodedToken
	return json.Marshal(fields)
}

// requestURL joins base and path and returns the URL in the form it takes on the wire. net/http
// re-parses the string before sending, and the escaped form produced here survives that round
// trip unchanged, so the signature covers exactly the bytes in the request line.
func requestURL(base, path string, query url.Values) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	u.Path += strings.TrimPrefix(path, "/")
	u.RawPath = ""
	u.RawQuery = query.Encode()
	return u.String(), nil
}

func (c *Client) build(req *Request) (*connector.Request, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	query := url.Values{}
	for k, v := range req.Query {
		query[k] = append([]string(nil), v...)
	}
	body, err := encodeBody(req.Body)
	if err != nil {
		return nil, err
	}

	if req.Facade != "" {
		token, err := c.tokens.Get(req.Facade)
		if err != nil {
			return nil, err
		}
		switch method {
		case http.MethodPost, http.MethodPut, http.MethodPatch:
			if body, err = withToken(body, token); err != nil {
				return nil, err
			}
		default:
			query.Set(tokenField, token)
		}
	}

	fullURL, err := requestURL(c.baseURL, req.Path, query)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	header.Set("Content-Type", "application/json")
	header.Set("Accept", "application/json")
	header.Set("User-Agent", c.UserAgent)
	header.Set(headerAcceptVersion, APIVersion)
	header.Set(headerClientVersion, ClientVersion())

	if req.Signed {
		if c.key == nil {
			return nil, protocol.ErrNoIdentity
		}
		signed, err := authentication.SignRequest(c.key, authentication.CanonicalMessage(fullURL, body))
		if err != nil {
			return nil, err
		}
		header.Set(headerSignature, signed.SignatureHex)
		header.Set(headerIdentity, signed.PublicKeyHex)
	}

	return &connector.Request{Method: method, URL: fullURL, Header: header, Body: body}, nil
}

// Do sends req and decodes the reply. A server-reported error is returned as a *protocol.Failure
// response, not as an error; errors are reserved for failures to build, deliver, or parse the
// exchange.
func (c *Client) Do(ctx context.Context, req *Request) (protocol.Response, error) {
	outbound, err := c.build(req)
	if err != nil {
		return nil, err
	}
	log.Debug("%s %s (facade=%q signed=%v)", outbound.Method, req.Path, req.Facade, req.Signed)
	rsp, err := c.conn.Send(ctx, outbound)
	if err != nil {
		return nil, err
	}
	return protocol.DecodeResponse(rsp.StatusCode, rsp.Body)
}

func (c *Client) call(ctx context.Context, method, path, facade string, query url.Values, body interface{}) (json.RawMessage, error) {
	rsp, err := c.Do(ctx, &Request{
		Method: method,
		Path:   path,
		Query:  query,
		Body:   body,
		Facade: facade,
		Signed: SignatureRequired(facade),
	})
	if err != nil {
		return nil, err
	}
	return protocol.Payload(rsp)
}

// Get sends a GET request to path, attaching facade's token (if facade is non-empty) as a query
// parameter. Returns the response payload; a server-reported error is returned as a
// *protocol.Failure.
func (c *Client) Get(ctx context.Context, path, facade string, query url.Values) (json.RawMessage, error) {
	return c.call(ctx, http.MethodGet, path, facade, query, nil)
}

// Post sends body to path, attaching facade's token (if facade is non-empty) to the body.
func (c *Client) Post(ctx context.Context, path, facade string, body interface{}) (json.RawMessage, error) {
	return c.call(ctx, http.MethodPost, path, facade, nil, body)
}

// Put sends body to path, attaching facade's token (if facade is non-empty) to the body.
func (c *Client) Put(ctx context.Context, path, facade string, body interface{}) (json.RawMessage, error) {
	return c.call(ctx, http.MethodPut, path, facade, nil, body)
}

// Delete sends a DELETE request to path, attaching facade's token as a query parameter.
func (c *Client) Delete(ctx context.Context, path, facade string, query url.Values) (json.RawMessage, error) {
	return c.call(ctx, http.MethodDelete, path, facade, query, nil)
}
