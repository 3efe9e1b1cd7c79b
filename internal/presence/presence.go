// Package presence records which participant IDs currently hold a live
// connection, in a store shared across relay processes.
package presence

import "context"

// DefaultKey is the set key used when no presence key is configured.
const DefaultKey = "online_users"

// Store is the narrow set-membership contract the relay consumes. All
// operations are idempotent: adding a present ID or removing an absent one
// is not an error. Clear drops every record at once and is reserved for
// process shutdown so stale presence never survives a restart.
type Store interface {
	Add(ctx context.Context, id string) error
	Remove(ctx context.Context, id string) error
	Contains(ctx context.Context, id string) (bool, error)
	Clear(ctx context.Context) error
}
