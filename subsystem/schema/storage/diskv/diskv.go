// Package diskv implements a storage backend for the schema subsystem backed by diskv.
package diskv

import (
	"path/filepath"

	"github.com/formflow/formflow/subsystem/schema/storage/kv"
	"github.com/formflow/formflow/utils/kv/kvdiskv"
)

// Diskv is a schema storage backend that uses an on-disk key-value store.
type Diskv struct {
	*kv.KV
}

// New creates a new schema store on disk at path.
func New(path string) *Diskv {
	return &Diskv{KV: kv.New(kvdiskv.New(filepath.Join(path, "schema")))}
}
