// Package audit is the append-only, queryable trail of authorized accesses
// and authentication events.
//
// The Trail owns record ids and timestamps. Stores only persist and scan;
// sinks receive a copy of each record after it is durable.
package audit

import "context"

// Store persists records and scans them back in append (id) order.
type Store interface {
	Append(ctx context.Context, record Record) error
	Query(ctx context.Context, filter Filter) ([]Record, error)
	// LastID returns the highest persisted id, 0 for an empty store.
	LastID(ctx context.Context) (RecordID, error)
}

// Sink receives records after they have been persisted. Sinks must not block
// for long and must handle their own failures.
type Sink interface {
	Publish(ctx context.Context, record Record)
}
