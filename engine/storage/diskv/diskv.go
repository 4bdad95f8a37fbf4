// Package diskv implements an engine storage backend using the diskv key-value store.
package diskv

import (
	"path/filepath"

	"github.com/formflow/formflow/engine/storage/kv"
	"github.com/formflow/formflow/utils/kv/kvdiskv"
)

// Diskv is a a diskv-backed engine storage backend.
type Diskv struct {
	*kv.KV
}

// New creates a new engine store on disk under path.
func New(path string) *Diskv {
	bucket := func(name string) *kvdiskv.KVDiskv {
		return kvdiskv.New(filepath.Join(path, "engine", name))
	}
	return &Diskv{KV: kv.New(
		bucket("submission"),
		bucket("instance"),
		bucket("history"),
		bucket("active"),
		bucket("subscription"),
	)}
}
