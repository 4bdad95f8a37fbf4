package diskv

import (
	"testing"

	"github.com/formflow/formflow/engine/storage"
	"github.com/formflow/formflow/engine/storage/test"
)

func TestDiskvStorage(t *testing.T) {
	dir := t.TempDir()
	test.TestEngineStorage(t, func() storage.AllStorage { return New(dir) })
}
