// Package kvredis implements a key-value bucket backed by Redis.
package kvredis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/formflow/formflow/utils/kv"

	"github.com/go-redis/redis/v8"
)

// scanCount is the SCAN batch size hint.
const scanCount = 100

// KVRedis is a key-value bucket backed by Redis.
// All keys are namespaced under a prefix.
type KVRedis struct {
	client redis.UniversalClient
	prefix string
}

// NewBucket creates a bucket whose keys are prefixed with prefix.
func NewBucket(client redis.UniversalClient, prefix string) *KVRedis {
	return &KVRedis{client: client, prefix: prefix}
}

func (s *KVRedis) Get(ctx context.Context, k string) ([]byte, error) {
	v, err := s.client.Get(ctx, s.prefix+k).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", kv.ErrKeyNotFound, k)
	}
	return v, err
}

func (s *KVRedis) Set(ctx context.Context, k string, v []byte) error {
	return s.client.Set(ctx, s.prefix+k, v, 0).Err()
}

func (s *KVRedis) Has(ctx context.Context, k string) (bool, error) {
	n, err := s.client.Exists(ctx, s.prefix+k).Result()
	return n > 0, err
}

func (s *KVRedis) Delete(ctx context.Context, k string) error {
	return s.client.Del(ctx, s.prefix+k).Err()
}

// Keys returns the keys in this bucket using SCAN.
// Scanning stops on cancel or on the first Redis error.
func (s *KVRedis) Keys(cancel <-chan struct{}) <-chan string {
	r := make(chan string)
	go func() {
		defer close(r)
		ctx, stop := context.WithCancel(context.Background())
		defer stop()
		go func() {
			select {
			case <-cancel:
				stop()
			case <-ctx.Done():
			}
		}()
		var cursor uint64
		for {
			keys, next, err := s.client.Scan(ctx, cursor, s.prefix+"*", scanCount).Result()
			if err != nil {
				return
			}
			for _, k := range keys {
				select {
				case <-ctx.Done():
					return
				case r <- strings.TrimPrefix(k, s.prefix):
				}
			}
			if next == 0 {
				return
			}
			cursor = next
		}
	}()
	return r
}
