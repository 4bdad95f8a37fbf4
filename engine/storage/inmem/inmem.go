// Package inmem implements an engine storage backend using the a map-based key-value store.
package inmem

import (
	"github.com/formflow/formflow/engine/storage/kv"
	"github.com/formflow/formflow/utils/kv/kvmap"
)

// InMem is an in-memory engine storage backend.
type InMem struct {
	*kv.KV
}

func New() *InMem {
	return &InMem{KV: kv.New(
		kvmap.NewBucket(),
		kvmap.NewBucket(),
		kvmap.NewBucket(),
		kvmap.NewBucket(),
		kvmap.NewBucket(),
	)}
}
