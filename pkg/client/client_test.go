package client_test

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/jarcoal/httpmock"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/ledgerpay/payment-sdk/internal/authentication"
	"github.com/ledgerpay/payment-sdk/pkg/client"
	"github.com/ledgerpay/payment-sdk/pkg/protocol"
	"github.com/ledgerpay/payment-sdk/pkg/tokens"
)

const baseURL = "https://test.ledgerpay.com/"

// wireURL returns the URL of an outgoing request as it appears on the wire. r.URL.String() may
// differ from the request line, so it is not used here.
func wireURL(r *http.Request) string {
	return r.URL.Scheme + "://" + r.URL.Host + r.URL.RequestURI()
}

// verifySignature checks the X-Signature header of r against the exact URL and body sent.
func verifySignature(r *http.Request, body []byte) bool {
	return verifySignatureFor(r, wireURL(r), body)
}

func verifySignatureFor(r *http.Request, url string, body []byte) bool {
	publicBytes, err := hex.DecodeString(r.Header.Get("X-Identity"))
	if err != nil {
		return false
	}
	sig, err := hex.DecodeString(r.Header.Get("X-Signature"))
	if err != nil {
		return false
	}
	return authentication.VerifySignature(publicBytes, authentication.CanonicalMessage(url, body), sig)
}

var _ = Describe("Client", func() {
	var (
		c     *client.Client
		store *tokens.Store
		key   protocol.PrivateKey
		ctx   context.Context
	)

	BeforeEach(func() {
		var err error
		httpmock.Activate()
		DeferCleanup(httpmock.DeactivateAndReset)

		ctx = context.Background()
		key, err = protocol.LoadPrivateKey("../protocol/test/private.pem")
		Expect(err).NotTo(HaveOccurred())
		store = tokens.New()
		store.Put(client.FacadeMerchant, "tok123")
		store.Put(client.FacadePos, "pos456")
		c, err = client.New(client.Test, nil, key, store, "client-test/1.0")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(c.Close)
	})

	Context("GET with a merchant token", func() {
		It("attaches the token as a query parameter and signs the full URL", func() {
			httpmock.RegisterResponder(http.MethodGet, baseURL+"invoices/inv1", func(r *http.Request) (*http.Response, error) {
				defer GinkgoRecover()
				Expect(r.URL.Query().Get("token")).To(Equal("tok123"))
				Expect(r.URL.Query().Get("status")).To(Equal("paid"))
				Expect(verifySignature(r, nil)).To(BeTrue())
				Expect(r.Header.Get("X-Identity")).To(Equal(protocol.PublicKeyHex(key)))
				Expect(r.Header.Get("X-Accept-Version")).To(Equal(client.APIVersion))
				Expect(r.Header.Get("X-Client-Version")).To(Equal(client.ClientVersion()))
				Expect(r.Header.Get("User-Agent")).To(HavePrefix("client-test/1.0 "))
				Expect(r.Header.Get("Content-Type")).To(Equal("application/json"))
				return httpmock.NewStringResponse(http.StatusOK, `{"data":{"id":"inv1","status":"paid"}}`), nil
			})

			data, err := c.Get(ctx, "invoices/inv1", client.FacadeMerchant, map[string][]string{"status": {"paid"}})
			Expect(err).NotTo(HaveOccurred())
			Expect(data).To(MatchJSON(`{"id":"inv1","status":"paid"}`))
			Expect(httpmock.GetTotalCallCount()).To(Equal(1))
		})
	})

	Context("POST with a merchant token", func() {
		It("merges the token into the body and signs URL plus body", func() {
			httpmock.RegisterResponder(http.MethodPost, baseURL+"invoices", func(r *http.Request) (*http.Response, error) {
				defer GinkgoRecover()
				body, err := io.ReadAll(r.Body)
				Expect(err).NotTo(HaveOccurred())
				Expect(body).To(MatchJSON(`{"price":10.5,"currency":"USD","token":"tok123"}`))
				Expect(r.URL.RawQuery).To(BeEmpty())
				Expect(verifySignature(r, body)).To(BeTrue())
				Expect(verifySignature(r, append(body, ' '))).To(BeFalse())
				return httpmock.NewStringResponse(http.StatusOK, `{"data":{"id":"inv2"}}`), nil
			})

			data, err := c.Post(ctx, "invoices", client.FacadeMerchant, map[string]interface{}{"price": 10.5, "currency": "USD"})
			Expect(err).NotTo(HaveOccurred())
			Expect(data).To(MatchJSON(`{"id":"inv2"}`))
		})
	})

	Context("point of sale requests", func() {
		It("attaches the token without signing", func() {
			httpmock.RegisterResponder(http.MethodPost, baseURL+"invoices", func(r *http.Request) (*http.Response, error) {
				defer GinkgoRecover()
				body, _ := io.ReadAll(r.Body)
				Expect(body).To(MatchJSON(`{"token":"pos456"}`))
				Expect(r.Header.Get("X-Signature")).To(BeEmpty())
				Expect(r.Header.Get("X-Identity")).To(BeEmpty())
				return httpmock.NewStringResponse(http.StatusOK, `{"data":{"id":"inv3"}}`), nil
			})
			_, err := c.Post(ctx, "invoices", client.FacadePos, nil)
			Expect(err).NotTo(HaveOccurred())
		})
	})

	Context("facade without a token", func() {
		It("fails with TokenNotFoundError before sending anything", func() {
			_, err := c.Get(ctx, "payouts", client.FacadePayout, nil)
			var notFound *protocol.TokenNotFoundError
			Expect(errors.As(err, &notFound)).To(BeTrue())
			Expect(notFound.Facade).To(Equal(client.FacadePayout))
			Expect(httpmock.GetTotalCallCount()).To(Equal(0))
		})
	})

	Context("client without a key", func() {
		It("refuses to send signed requests", func() {
			keyless, err := client.New(client.Test, nil, nil, store, "")
			Expect(err).NotTo(HaveOccurred())
			_, err = keyless.Get(ctx, "invoices", client.FacadeMerchant, nil)
			Expect(err).To(MatchError(protocol.ErrNoIdentity))
			Expect(httpmock.GetTotalCallCount()).To(Equal(0))
		})
	})

	Context("server-reported errors", func() {
		It("returns the failure envelope as an error", func() {
			httpmock.RegisterResponder(http.MethodGet, baseURL+"invoices/missing", httpmock.NewStringResponder(
				http.StatusNotFound, `{"error":"Object not found","code":"010404"}`))

			_, err := c.Get(ctx, "invoices/missing", client.FacadeMerchant, nil)
			var failure *protocol.Failure
			Expect(errors.As(err, &failure)).To(BeTrue())
			Expect(failure.Status).To(Equal(http.StatusNotFound))
			Expect(failure.Code).To(Equal("010404"))
			Expect(failure.Message).To(Equal("Object not found"))
			Expect(protocol.KindOf(err)).To(Equal(protocol.KindRemote))
		})

		It("reports unparseable success bodies as protocol errors", func() {
			httpmock.RegisterResponder(http.MethodGet, baseURL+"rates", httpmock.NewStringResponder(http.StatusOK, `<html>`))
			_, err := c.Get(ctx, "rates", "", nil)
			Expect(protocol.KindOf(err)).To(Equal(protocol.KindRemoteProtocol))
		})
	})

	Context("Do", func() {
		It("returns the tagged response without converting failures", func() {
			httpmock.RegisterResponder(http.MethodDelete, baseURL+"subscriptions/s1", func(r *http.Request) (*http.Response, error) {
				defer GinkgoRecover()
				Expect(r.URL.Query().Get("token")).To(Equal("tok123"))
				return httpmock.NewStringResponse(http.StatusOK, `{"status":"error","code":"STATE","message":"already cancelled"}`), nil
			})
			rsp, err := c.Do(ctx, &client.Request{
				Method: http.MethodDelete,
				Path:   "/subscriptions/s1",
				Facade: client.FacadeMerchant,
				Signed: true,
			})
			Expect(err).NotTo(HaveOccurred())
			failure, ok := rsp.(*protocol.Failure)
			Expect(ok).To(BeTrue())
			Expect(failure.Code).To(Equal("STATE"))
		})

		It("rejects token attachment to non-object bodies", func() {
			_, err := c.Do(ctx, &client.Request{
				Method: http.MethodPost,
				Path:   "ledgers",
				Body:   json.RawMessage(`[1,2]`),
				Facade: client.FacadeMerchant,
			})
			Expect(err).To(HaveOccurred())
			Expect(httpmock.GetTotalCallCount()).To(Equal(0))
		})
	})
})
