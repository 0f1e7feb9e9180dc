// Package engine speaks to the schema engine: the server that owns the live
// schema, computes migration diffs, and records applied migrations. The
// engine is a black box here; everything goes through EdgeQL text sent over
// its HTTP query endpoint.
package engine

import "context"

// Conn is a single session with the engine. Migration negotiation is
// stateful (START MIGRATION opens a transaction-like session on the
// connection), so one Conn must not be shared between concurrent planners.
type Conn interface {
	// Execute runs a statement and discards any result.
	Execute(ctx context.Context, query string) error

	// QueryJSON runs a query and decodes its single JSON result into out.
	QueryJSON(ctx context.Context, query string, out any) error

	// Close releases the session.
	Close() error
}
