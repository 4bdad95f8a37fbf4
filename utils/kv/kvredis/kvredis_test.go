package kvredis

import (
	"os"
	"testing"

	"github.com/formflow/formflow/utils/kv/test"
	"github.com/formflow/formflow/utils/uuid"

	"github.com/go-redis/redis/v8"
)

func TestKVRedis(t *testing.T) {
	addr := os.Getenv("FORMFLOW_REDIS_STORAGE_TEST_ADDR")
	if addr == "" {
		t.Skip("FORMFLOW_REDIS_STORAGE_TEST_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	test.TestBucket(t, NewBucket(client, "formflow:test:kv:"+uuid.NewUUID().ID()+":"))
}
