package kvdiskv

import (
	"testing"

	"github.com/formflow/formflow/utils/kv/test"
)

func TestKVDiskv(t *testing.T) {
	test.TestBucket(t, New(t.TempDir()))
}
