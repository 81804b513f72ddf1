// Package authorization implements the pairing protocol that grants a client identity access
// tokens for one or more facades.
//
// There are two ways to pair. A client can request a token for a facade, receiving a pairing
// code that an administrator approves in the merchant dashboard. Alternatively, an administrator
// creates a pairing code in the dashboard and the client claims it. Either way the resulting
// tokens are recorded in a [tokens.Store].
package authorization

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/ledgerpay/payment-sdk/internal/log"
	"github.com/ledgerpay/payment-sdk/pkg/client"
	"github.com/ledgerpay/payment-sdk/pkg/protocol"
	"github.com/ledgerpay/payment-sdk/pkg/tokens"
)

const tokensPath = "tokens"

// Submitter sends a request to the API. *client.Client implements Submitter.
type Submitter interface {
	Do(ctx context.Context, req *client.Request) (protocol.Response, error)
}

// State is the progress of a single authorization attempt.
type State int

const (
	StateBuilding State = iota
	StateSubmitted
	StateParsed
	StateStored
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateBuilding:
		return "Building"
	case StateSubmitted:
		return "Submitted"
	case StateParsed:
		return "Parsed"
	case StateStored:
		return "Stored"
	case StateFailed:
		return "Failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// pairingRequest is either a facadeRequest or a pairingCodeRequest.
type pairingRequest interface {
	isPairingRequest()
}

type facadeRequest struct {
	ID     string `json:"id"`
	GUID   string `json:"guid"`
	Facade string `json:"facade"`
}

type pairingCodeRequest struct {
	ID          string `json:"id"`
	GUID        string `json:"guid"`
	PairingCode string `json:"pairingCode"`
}

func (*facadeRequest) isPairingRequest()      {}
func (*pairingCodeRequest) isPairingRequest() {}

// Policy restricts how a token may be used.
type Policy struct {
	Policy string   `json:"policy"`
	Method string   `json:"method"`
	Params []string `json:"params"`
}

// Grant is one token issued by the server.
type Grant struct {
	Facade            string   `json:"facade"`
	Token             string   `json:"token"`
	PairingCode       string   `json:"pairingCode"`
	PairingExpiration int64    `json:"pairingExpiration,omitempty"`
	DateCreated       int64    `json:"dateCreated,omitempty"`
	Policies          []Policy `json:"policies,omitempty"`
}

// Flow runs pairing attempts for one client identity.
type Flow struct {
	submitter Submitter
	identity  string
	tokens    *tokens.Store
	// NewGUID generates the request GUID. Defaults to a random UUID.
	NewGUID func() string
}

// New returns a Flow that requests tokens for identity (a SIN) and records them in store.
func New(submitter Submitter, identity string, store *tokens.Store) *Flow {
	return &Flow{
		submitter: submitter,
		identity:  identity,
		tokens:    store,
		NewGUID:   uuid.NewString,
	}
}

// attempt tracks the state of one call and wraps its failure exactly once.
type attempt struct {
	operation string
	state     State
}

func (a *attempt) advance(state State) {
	log.Debug("%s: %s -> %s", a.operation, a.state, state)
	a.state = state
}

func (a *attempt) fail(err error) error {
	a.advance(StateFailed)
	var authzErr *protocol.ClientAuthorizationError
	if errors.As(err, &authzErr) {
		return err
	}
	wrapped := &protocol.ClientAuthorizationError{Err: err}
	var failure *protocol.Failure
	if errors.As(err, &failure) {
		wrapped.Code = failure.Code
	}
	return wrapped
}

// submit sends req and returns the grants in the response. Nothing is stored.
func (f *Flow) submit(ctx context.Context, a *attempt, req pairingRequest) ([]Grant, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	a.advance(StateSubmitted)
	rsp, err := f.submitter.Do(ctx, &client.Request{
		Method: http.MethodPost,
		Path:   tokensPath,
		Body:   body,
	})
	if err != nil {
		return nil, err
	}
	data, err := protocol.Payload(rsp)
	if err != nil {
		return nil, err
	}
	var grants []Grant
	if err := json.Unmarshal(data, &grants); err != nil {
		return nil, &protocol.RemoteProtocolError{Reason: "expected a list of tokens", Err: err}
	}
	if len(grants) == 0 {
		return nil, &protocol.RemoteProtocolError{Reason: "server returned no tokens"}
	}
	for i, g := range grants {
		if g.Token == "" || g.Facade == "" {
			return nil, &protocol.RemoteProtocolError{Reason: fmt.Sprintf("token %d is missing its facade or value", i)}
		}
	}
	a.advance(StateParsed)
	return grants, nil
}

// RequestPairingCodeForFacade asks the server for a token scoped to facade. The token is stored
// immediately but remains inactive until an administrator approves the returned pairing code.
func (f *Flow) RequestPairingCodeForFacade(ctx context.Context, facade string) (string, error) {
	a := &attempt{operation: "pairing request for " + facade}
	if facade == "" {
		return "", a.fail(errors.New("facade must not be empty"))
	}
	grants, err := f.submit(ctx, a, &facadeRequest{ID: f.identity, GUID: f.NewGUID(), Facade: facade})
	if err != nil {
		return "", a.fail(err)
	}
	grant := grants[0]
	if grant.PairingCode == "" {
		return "", a.fail(&protocol.RemoteProtocolError{Reason: "response did not include a pairing code"})
	}
	f.tokens.Put(grant.Facade, grant.Token)
	a.advance(StateStored)
	return grant.PairingCode, nil
}

// AuthorizeClientWithPairingCode claims a pairing code created by an administrator. A single code
// may grant several facades; all of them are stored together, or none if the call fails.
func (f *Flow) AuthorizeClientWithPairingCode(ctx context.Context, pairingCode string) error {
	a := &attempt{operation: "pairing code claim"}
	if pairingCode == "" {
		return a.fail(errors.New("pairing code must not be empty"))
	}
	grants, err := f.submit(ctx, a, &pairingCodeRequest{ID: f.identity, GUID: f.NewGUID(), PairingCode: pairingCode})
	if err != nil {
		return a.fail(err)
	}
	granted := make(map[string]string, len(grants))
	for _, g := range grants {
		granted[g.Facade] = g.Token
	}
	f.tokens.PutAll(granted)
	a.advance(StateStored)
	return nil
}
