package redis

import (
	"context"
	"os"
	"testing"

	"github.com/formflow/formflow/engine/storage"
	"github.com/formflow/formflow/engine/storage/test"
)

func TestRedisStorage(t *testing.T) {
	addr := os.Getenv("FORMFLOW_REDIS_STORAGE_TEST_ADDR")
	if addr == "" {
		t.Skip("FORMFLOW_REDIS_STORAGE_TEST_ADDR not set")
	}

	s, err := New(context.Background(), WithAddr(addr), WithPrefix("formflow-test:"))
	if err != nil {
		t.Fatal(err)
	}

	test.TestEngineStorage(t, func() storage.AllStorage { return s })
}
