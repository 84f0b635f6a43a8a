//go:build !wasm
// +build !wasm

// Package gae stores cookieauth users in Google Cloud Datastore.  It supports
// multi-tenancy through Datastore namespaces.
//
// # Datastore Kinds
//
//   - User: accounts keyed by user id
//   - Email: email index keyed by stores.EmailKey
//   - ProviderLink: OAuth identity index keyed by stores.ProviderKey
//
// Writes that touch an index run in a transaction so that two signups for
// one email cannot both succeed.
//
// # Usage
//
//	client, _ := datastore.NewClient(ctx, projectID)
//	driver := gae.NewDriver(client, "tenant-123")
package gae
