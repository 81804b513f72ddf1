// Package tokens holds the access tokens a client has been granted, one per facade.
//
// A facade is a named permission scope on the server (for example "merchant", "pos" or
// "payout"). Tokens are obtained through the pairing protocol implemented by the authorization
// package and are attached to requests by the client package.
//
// A [Store] lives in memory. If a Store is exported using its [Store.Export] or
// [Store.ExportToFile] methods, access controls should be used to prevent third parties from
// reading the tokens, since a token grants the holder the facade's permissions.
package tokens
