// Package inmem implements an in-memory storage backend for the schema subsystem.
package inmem

import (
	"github.com/formflow/formflow/subsystem/schema/storage/kv"
	"github.com/formflow/formflow/utils/kv/kvmap"
)

// InMem is a schema storage backend using an in-memory key-value store.
type InMem struct {
	*kv.KV
}

func New() *InMem {
	return &InMem{KV: kv.New(kvmap.NewBucket())}
}
