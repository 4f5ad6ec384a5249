// Package domain defines the core types shared by the client configuration
// resolver, the request pipeline and the resource layer.
//
// This package contains pure domain logic with ZERO external dependencies outside the
// Go standard library. All types in this package are:
//
// - Independent of transport (no HTTP, TCP, or emulator coupling)
// - Immutable once built (ConnectionPolicy exposes accessors only)
// - Testable in isolation without mocks
//
// Other packages (connstr, config, connpolicy, handlers, client) depend on these
// types. The dependency direction is always:
//
//	Resolver/Transport → Domain (CORRECT)
//	Domain → Resolver/Transport (FORBIDDEN)
package domain
