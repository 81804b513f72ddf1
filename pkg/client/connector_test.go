package client_test

import (
	"context"
	"net/http"
	"net/url"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/ledgerpay/payment-sdk/mocks"
	"github.com/ledgerpay/payment-sdk/pkg/client"
	"github.com/ledgerpay/payment-sdk/pkg/connector"
	"github.com/ledgerpay/payment-sdk/pkg/protocol"
	"github.com/ledgerpay/payment-sdk/pkg/tokens"
)

var _ = Describe("Client with a custom connector", func() {
	var (
		ctrl *gomock.Controller
		conn *mocks.Connector
		c    *client.Client
	)

	BeforeEach(func() {
		var err error
		ctrl = gomock.NewController(GinkgoT())
		conn = mocks.NewConnector(ctrl)
		store := tokens.New()
		store.Put(client.FacadePos, "pos456")
		c, err = client.New(client.Prod, conn, nil, store, "client-test/1.0")
		Expect(err).NotTo(HaveOccurred())
	})

	It("sends requests to the production host", func() {
		conn.EXPECT().Send(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, req *connector.Request) (*connector.Response, error) {
				Expect(req.Method).To(Equal(http.MethodGet))
				Expect(req.URL).To(Equal("https://ledgerpay.com/invoices/inv1?token=pos456"))
				Expect(req.Header.Get("X-Signature")).To(BeEmpty())
				return &connector.Response{StatusCode: http.StatusOK, Body: []byte(`{"data":{"id":"inv1"}}`)}, nil
			})

		data, err := c.Get(context.Background(), "/invoices/inv1", client.FacadePos, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(data).To(MatchJSON(`{"id":"inv1"}`))
	})

	It("hands the connector the escaped URL it signed", func() {
		conn.EXPECT().Send(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, req *connector.Request) (*connector.Response, error) {
				Expect(req.URL).To(Equal("https://ledgerpay.com/invoices/a%20b?token=pos456"))
				parsed, err := url.Parse(req.URL)
				Expect(err).NotTo(HaveOccurred())
				Expect(parsed.String()).To(Equal(req.URL))
				return &connector.Response{StatusCode: http.StatusOK, Body: []byte(`{"data":{}}`)}, nil
			})

		_, err := c.Get(context.Background(), "invoices/a b", client.FacadePos, nil)
		Expect(err).NotTo(HaveOccurred())
	})

	It("passes transport errors through unchanged", func() {
		transportErr := protocol.NewError("connection reset", true, true)
		conn.EXPECT().Send(gomock.Any(), gomock.Any()).Return(nil, transportErr)

		_, err := c.Post(context.Background(), "invoices", client.FacadePos, map[string]int{"price": 10})
		Expect(err).To(BeIdenticalTo(transportErr))
		Expect(protocol.MayHaveSucceeded(err)).To(BeTrue())
		Expect(protocol.ShouldRetry(err)).To(BeFalse())
		Expect(protocol.KindOf(err)).To(Equal(protocol.KindTransport))
	})

	It("closes the connector", func() {
		conn.EXPECT().Close()
		c.Close()
	})
})
