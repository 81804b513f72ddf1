package client_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/ledgerpay/payment-sdk/pkg/client"
	"github.com/ledgerpay/payment-sdk/pkg/connector/inet"
	"github.com/ledgerpay/payment-sdk/pkg/protocol"
	"github.com/ledgerpay/payment-sdk/pkg/tokens"
)

type received struct {
	requestURI string
	body       []byte
	verified   bool
}

var _ = Describe("Signed requests on the wire", func() {
	var (
		c        *client.Client
		requests chan received
	)

	BeforeEach(func() {
		requests = make(chan received, 1)
		// The server checks the signature against its raw request line, not a re-encoded URL.
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, _ := io.ReadAll(r.Body)
			requests <- received{
				requestURI: r.RequestURI,
				body:       body,
				verified:   verifySignatureFor(r, "http://"+r.Host+r.RequestURI, body),
			}
			w.Write([]byte(`{"data":{}}`))
		}))
		DeferCleanup(server.Close)

		key, err := protocol.LoadPrivateKey("../protocol/test/private.pem")
		Expect(err).NotTo(HaveOccurred())
		env, err := client.ParseEnvironment(server.URL)
		Expect(err).NotTo(HaveOccurred())
		store := tokens.New()
		store.Put(client.FacadeMerchant, "tok")
		c, err = client.New(env, inet.NewConnection(server.Client()), key, store, "client-test/1.0")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(c.Close)
	})

	DescribeTable("GET paths",
		func(path, requestURI string) {
			_, err := c.Get(context.Background(), path, client.FacadeMerchant, nil)
			Expect(err).NotTo(HaveOccurred())
			last := <-requests
			Expect(last.requestURI).To(Equal(requestURI))
			Expect(last.verified).To(BeTrue())
		},
		Entry("plain", "invoices/abc", "/invoices/abc?token=tok"),
		Entry("leading slash", "/invoices/abc", "/invoices/abc?token=tok"),
		Entry("space", "invoices/a b", "/invoices/a%20b?token=tok"),
		Entry("non-ASCII", "invoices/ünï", "/invoices/%C3%BCn%C3%AF?token=tok"),
		Entry("percent sign", "invoices/100%", "/invoices/100%25?token=tok"),
	)

	It("signs the escaped URL and the body of a POST", func() {
		_, err := c.Post(context.Background(), "invoices/a b/refunds", client.FacadeMerchant, map[string]int{"amount": 5})
		Expect(err).NotTo(HaveOccurred())
		last := <-requests
		Expect(last.requestURI).To(Equal("/invoices/a%20b/refunds"))
		Expect(last.body).To(MatchJSON(`{"amount":5,"token":"tok"}`))
		Expect(last.verified).To(BeTrue())
	})
})
