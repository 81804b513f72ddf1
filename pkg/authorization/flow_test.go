package authorization_test

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/jarcoal/httpmock"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/ledgerpay/payment-sdk/mocks"
	"github.com/ledgerpay/payment-sdk/pkg/authorization"
	"github.com/ledgerpay/payment-sdk/pkg/client"
	"github.com/ledgerpay/payment-sdk/pkg/protocol"
	"github.com/ledgerpay/payment-sdk/pkg/tokens"
)

const (
	identity = "TfEfCasGkSXHiLW3NfojcaDEsDjjUGFRuro"
	guid     = "6f1c4a0e-8a5d-4a8e-9a3c-1e1b5b2f0c7d"
)

func success(data string) protocol.Response {
	rsp, err := protocol.DecodeResponse(http.StatusOK, []byte(data))
	Expect(err).NotTo(HaveOccurred())
	return rsp
}

var _ = Describe("Flow with a mocked submitter", func() {
	var (
		ctrl      *gomock.Controller
		submitter *mocks.Submitter
		store     *tokens.Store
		flow      *authorization.Flow
		ctx       context.Context
	)

	BeforeEach(func() {
		ctrl = gomock.NewController(GinkgoT())
		submitter = mocks.NewSubmitter(ctrl)
		store = tokens.New()
		flow = authorization.New(submitter, identity, store)
		flow.NewGUID = func() string { return guid }
		ctx = context.Background()
		DeferCleanup(ctrl.Finish)
	})

	Context("requesting a pairing code", func() {
		It("submits an unsigned facade request and stores the token", func() {
			submitter.EXPECT().Do(gomock.Any(), gomock.Any()).DoAndReturn(
				func(_ context.Context, req *client.Request) (protocol.Response, error) {
					Expect(req.Method).To(Equal(http.MethodPost))
					Expect(req.Path).To(Equal("tokens"))
					Expect(req.Signed).To(BeFalse())
					Expect(req.Facade).To(BeEmpty())
					Expect(req.Body).To(MatchJSON(`{"id":"` + identity + `","guid":"` + guid + `","facade":"merchant"}`))
					return success(`[{"facade":"merchant","token":"tok123","pairingCode":"ABC123"}]`), nil
				})

			code, err := flow.RequestPairingCodeForFacade(ctx, "merchant")
			Expect(err).NotTo(HaveOccurred())
			Expect(code).To(Equal("ABC123"))
			Expect(store.Get("merchant")).To(Equal("tok123"))
		})

		It("stores only the first token", func() {
			submitter.EXPECT().Do(gomock.Any(), gomock.Any()).Return(success(
				`{"data":[{"facade":"merchant","token":"first","pairingCode":"AAA"},{"facade":"payout","token":"second","pairingCode":"BBB"}]}`), nil)

			code, err := flow.RequestPairingCodeForFacade(ctx, "merchant")
			Expect(err).NotTo(HaveOccurred())
			Expect(code).To(Equal("AAA"))
			Expect(store.Facades()).To(Equal([]string{"merchant"}))
		})

		It("wraps a remote error and leaves the store unchanged", func() {
			store.Put("pos", "existing")
			submitter.EXPECT().Do(gomock.Any(), gomock.Any()).Return(success(`{"error":"invalid facade"}`), nil)

			_, err := flow.RequestPairingCodeForFacade(ctx, "bogus")
			var authzErr *protocol.ClientAuthorizationError
			Expect(errors.As(err, &authzErr)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring("invalid facade"))
			Expect(store.Snapshot()).To(Equal(map[string]string{"pos": "existing"}))
		})

		It("attaches the remote machine code", func() {
			submitter.EXPECT().Do(gomock.Any(), gomock.Any()).Return(&protocol.Failure{
				Status: http.StatusBadRequest, Code: "FACADE_UNKNOWN", Message: "invalid facade"}, nil)

			_, err := flow.RequestPairingCodeForFacade(ctx, "bogus")
			var authzErr *protocol.ClientAuthorizationError
			Expect(errors.As(err, &authzErr)).To(BeTrue())
			Expect(authzErr.Code).To(Equal("FACADE_UNKNOWN"))
			var failure *protocol.Failure
			Expect(errors.As(err, &failure)).To(BeTrue())
			Expect(protocol.KindOf(err)).To(Equal(protocol.KindClientAuthorization))
		})

		It("wraps transport errors exactly once", func() {
			cause := protocol.NewError("connection reset", false, true)
			submitter.EXPECT().Do(gomock.Any(), gomock.Any()).Return(nil, cause)

			_, err := flow.RequestPairingCodeForFacade(ctx, "merchant")
			var authzErr *protocol.ClientAuthorizationError
			Expect(errors.As(err, &authzErr)).To(BeTrue())
			Expect(authzErr.Err).To(BeIdenticalTo(cause))
			Expect(errors.As(authzErr.Err, new(*protocol.ClientAuthorizationError))).To(BeFalse())
			Expect(store.Facades()).To(BeEmpty())
		})

		It("rejects responses without a pairing code", func() {
			submitter.EXPECT().Do(gomock.Any(), gomock.Any()).Return(success(`[{"facade":"merchant","token":"tok123"}]`), nil)

			_, err := flow.RequestPairingCodeForFacade(ctx, "merchant")
			var remoteErr *protocol.RemoteProtocolError
			Expect(errors.As(err, &remoteErr)).To(BeTrue())
			Expect(store.Exists("merchant")).To(BeFalse())
		})

		It("rejects malformed token lists", func() {
			submitter.EXPECT().Do(gomock.Any(), gomock.Any()).Return(success(`{"data":{"token":"x"}}`), nil)
			_, err := flow.RequestPairingCodeForFacade(ctx, "merchant")
			Expect(protocol.KindOf(err)).To(Equal(protocol.KindClientAuthorization))
			Expect(errors.As(err, new(*protocol.RemoteProtocolError))).To(BeTrue())
		})

		It("rejects an empty facade without calling the server", func() {
			_, err := flow.RequestPairingCodeForFacade(ctx, "")
			Expect(errors.As(err, new(*protocol.ClientAuthorizationError))).To(BeTrue())
		})
	})

	Context("claiming a pairing code", func() {
		It("stores every granted facade", func() {
			submitter.EXPECT().Do(gomock.Any(), gomock.Any()).DoAndReturn(
				func(_ context.Context, req *client.Request) (protocol.Response, error) {
					Expect(req.Body).To(MatchJSON(`{"id":"` + identity + `","guid":"` + guid + `","pairingCode":"XYZ7890"}`))
					return success(`[{"facade":"merchant","token":"m1"},{"facade":"payout","token":"p1"}]`), nil
				})

			Expect(flow.AuthorizeClientWithPairingCode(ctx, "XYZ7890")).To(Succeed())
			Expect(store.Snapshot()).To(Equal(map[string]string{"merchant": "m1", "payout": "p1"}))
		})

		It("stores nothing if any grant is malformed", func() {
			submitter.EXPECT().Do(gomock.Any(), gomock.Any()).Return(success(`[{"facade":"merchant","token":"m1"},{"facade":"payout"}]`), nil)

			err := flow.AuthorizeClientWithPairingCode(ctx, "XYZ7890")
			Expect(errors.As(err, new(*protocol.ClientAuthorizationError))).To(BeTrue())
			Expect(store.Facades()).To(BeEmpty())
		})

		It("stores nothing if the caller gives up", func() {
			cancelled, cancel := context.WithCancel(ctx)
			cancel()
			submitter.EXPECT().Do(gomock.Any(), gomock.Any()).DoAndReturn(
				func(ctx context.Context, _ *client.Request) (protocol.Response, error) {
					return nil, ctx.Err()
				})

			err := flow.AuthorizeClientWithPairingCode(cancelled, "XYZ7890")
			Expect(errors.Is(err, context.Canceled)).To(BeTrue())
			Expect(store.Facades()).To(BeEmpty())
		})

		It("overwrites tokens when re-run", func() {
			store.Put("merchant", "old")
			submitter.EXPECT().Do(gomock.Any(), gomock.Any()).Return(success(`[{"facade":"merchant","token":"new"}]`), nil).Times(2)

			Expect(flow.AuthorizeClientWithPairingCode(ctx, "XYZ7890")).To(Succeed())
			Expect(flow.AuthorizeClientWithPairingCode(ctx, "XYZ7890")).To(Succeed())
			Expect(store.Get("merchant")).To(Equal("new"))
		})
	})
})

var _ = Describe("Flow over HTTP", func() {
	var (
		store *tokens.Store
		flow  *authorization.Flow
	)

	BeforeEach(func() {
		httpmock.Activate()
		DeferCleanup(httpmock.DeactivateAndReset)

		key, err := protocol.LoadPrivateKey("../protocol/test/private.pem")
		Expect(err).NotTo(HaveOccurred())
		store = tokens.New()
		c, err := client.New(client.Test, nil, key, store, "")
		Expect(err).NotTo(HaveOccurred())
		flow = authorization.New(c, c.Identity(), store)
	})

	It("pairs a facade end to end", func() {
		httpmock.RegisterResponder(http.MethodPost, "https://test.ledgerpay.com/tokens", func(r *http.Request) (*http.Response, error) {
			defer GinkgoRecover()
			body, err := io.ReadAll(r.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(ContainSubstring(`"id":"` + identity + `"`))
			Expect(string(body)).To(ContainSubstring(`"facade":"merchant"`))
			Expect(r.Header.Get("X-Signature")).To(BeEmpty())
			Expect(r.Header.Get("X-Accept-Version")).To(Equal(client.APIVersion))
			return httpmock.NewStringResponse(http.StatusOK, `[{"facade":"merchant","token":"tok123","pairingCode":"ABC123"}]`), nil
		})

		code, err := flow.RequestPairingCodeForFacade(context.Background(), "merchant")
		Expect(err).NotTo(HaveOccurred())
		Expect(code).To(Equal("ABC123"))
		Expect(store.Get("merchant")).To(Equal("tok123"))
	})

	It("surfaces HTTP errors as authorization errors", func() {
		httpmock.RegisterResponder(http.MethodPost, "https://test.ledgerpay.com/tokens",
			httpmock.NewStringResponder(http.StatusBadRequest, `{"error":"invalid facade"}`))

		_, err := flow.RequestPairingCodeForFacade(context.Background(), "bogus")
		var authzErr *protocol.ClientAuthorizationError
		Expect(errors.As(err, &authzErr)).To(BeTrue())
		Expect(store.Facades()).To(BeEmpty())
	})
})
