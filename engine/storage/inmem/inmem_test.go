package inmem

import (
	"testing"

	"github.com/formflow/formflow/engine/storage"
	"github.com/formflow/formflow/engine/storage/test"
)

func TestInmemStorage(t *testing.T) {
	test.TestEngineStorage(t, func() storage.AllStorage { return New() })
}
