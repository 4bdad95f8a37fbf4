// Package redis implements a storage backend for the schema subsystem backed by Redis.
package redis

import (
	"github.com/formflow/formflow/subsystem/schema/storage/kv"
	"github.com/formflow/formflow/utils/kv/kvredis"

	"github.com/go-redis/redis/v8"
)

// DefaultPrefix namespaces schema keys.
const DefaultPrefix = "formflow:schema:"

// Redis is a schema storage backend that uses a Redis key-value store.
type Redis struct {
	*kv.KV
}

// New creates a new schema store in Redis with keys under prefix.
// An empty prefix uses DefaultPrefix.
func New(client redis.UniversalClient, prefix string) *Redis {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Redis{KV: kv.New(kvredis.NewBucket(client, prefix))}
}
