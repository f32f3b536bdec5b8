package store

import (
	"context"
	"encoding/json"
)

// MetaStore persists zero or more JSON values under an (event id, key) pair.
// The same value may be stored several times under one key; Append never
// overwrites. Remove deletes the oldest value that is structurally equal to
// the given one and is a no-op when nothing matches.
type MetaStore interface {
	Append(ctx context.Context, eventID int64, key string, value json.RawMessage) error
	ReadAll(ctx context.Context, eventID int64, key string) ([]json.RawMessage, error)
	Remove(ctx context.Context, eventID int64, key string, value json.RawMessage) error
	DeleteAll(ctx context.Context, eventID int64, key string) error

	// EventIDs returns the distinct event ids that hold at least one value
	// for key, ascending.
	EventIDs(ctx context.Context, key string) ([]int64, error)

	// CountAll returns the total number of values stored under key across
	// all events.
	CountAll(ctx context.Context, key string) (int64, error)
}
