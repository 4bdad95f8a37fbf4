package inmem

import (
	"testing"

	"github.com/formflow/formflow/subsystem/schema/storage"
	"github.com/formflow/formflow/subsystem/schema/storage/test"
)

func TestInMem(t *testing.T) {
	test.TestSchemaStorage(t, func() storage.Storage { return New() })
}
