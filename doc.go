// Package kfi is a registry and dispatch layer for pluggable fabric
// providers.
//
// A *provider* is an independent implementation of a network fabric
// (a QUIC transport, a gossip mesh, an RDMA backend...). Providers
// register themselves with a `Registry` and the registry lets
// applications:
//
//   - discover, with `Registry.GetInfo`, every fabric configuration the
//     registered providers can serve, as one ordered `Chain` of `Info`
//     records;
//   - open, with `Registry.OpenFabric`, a fabric served by one named
//     provider.
//
// ## Registration
//
// Providers are keyed by name. When two providers claim the same name,
// the one with the highest `Provider.Version` wins and the other one is
// released; on a tie the provider registered first stays. Providers keep
// the position of their first registration, which is also the order in
// which they are queried.
//
// ## Discovery
//
// `GetInfo` tolerates partial failures: a provider returning an error is
// logged and skipped, and the call only fails when no provider returned
// anything. Every record carries the name and version of the provider
// that produced it in its `FabricAttr`, so it can be fed back to
// `OpenFabric` as is:
//
//	chain, err := reg.GetInfo(kfi.APIVersion, hints)
//	if err != nil {
//		return err
//	}
//	defer kfi.FreeInfo(chain)
//	fabric, err := reg.OpenFabric(chain.At(0).FabricAttr, nil)
//
// ## Observability
//
// The registry logs through `log/slog` (see `WithLog`) and emits metrics
// through [`hashicorp/go-metrics`][dep-met] (see `WithMetricSink`).
//
// Ready to use providers live under `pkg/quicfab` (QUIC, built on
// [`quic-go`][dep-quic]) and `pkg/gossipfab` (cluster membership, built
// on [`hashicorp/memberlist`][dep-mbl]).
//
// [dep-met]: https://pkg.go.dev/github.com/hashicorp/go-metrics
// [dep-quic]: https://pkg.go.dev/github.com/quic-go/quic-go
// [dep-mbl]: https://pkg.go.dev/github.com/hashicorp/memberlist
package kfi
