package itbi

import (
	"context"
)

// Source abstracts the remote ITBI dataset. FetchAll returns every raw feature
// in request order or fails as a whole.
type Source interface {
	Name() string
	FetchAll(ctx context.Context) ([]RawFeature, error)
}

// Store is the contract the snapshot holder must satisfy.
type Store interface {
	Replace(snapshot *Snapshot)
	Current() (*Snapshot, error)
}
