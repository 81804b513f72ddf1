// Package mocks contains gomock implementations of the module's interfaces, for use in tests.
package mocks

//go:generate mockgen -destination submitter.go -package mocks -mock_names Submitter=Submitter github.com/ledgerpay/payment-sdk/pkg/authorization Submitter
//go:generate mockgen -destination connector.go -package mocks -mock_names Connector=Connector github.com/ledgerpay/payment-sdk/pkg/connector Connector
