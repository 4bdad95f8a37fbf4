package redis

import (
	"context"
	"os"
	"testing"

	"github.com/formflow/formflow/subsystem/schema/storage"
	"github.com/formflow/formflow/subsystem/schema/storage/test"
	"github.com/formflow/formflow/utils/uuid"

	"github.com/go-redis/redis/v8"
)

func TestRedis(t *testing.T) {
	addr := os.Getenv("FORMFLOW_REDIS_STORAGE_TEST_ADDR")
	if addr == "" {
		t.Skip("FORMFLOW_REDIS_STORAGE_TEST_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Fatal(err)
	}
	// a unique prefix per run keeps ListFormIDs isolated
	prefix := "formflow:test:" + uuid.NewUUID().ID() + ":"
	test.TestSchemaStorage(t, func() storage.Storage { return New(client, prefix) })
}
