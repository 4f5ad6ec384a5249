// Package connpolicy resolves a client configuration into the immutable
// connection policy, serializer and request pipeline a client runs with.
//
// Resolution is pure computation: it performs no I/O, never retries, and
// fails on the first invalid input without returning a partial result.
// Building the same configuration twice yields equal policies.
//
// Typical use:
//
//	cfg := config.NewClientConfiguration()
//	cfg.Endpoint = "https://account.documents.azure.com:443/"
//	cfg.AccountKey = key
//	res, err := connpolicy.Build(cfg.WithConnectionModeGateway(100))
//
// Watch rebuilds the resolution whenever a configuration file changes.
package connpolicy
