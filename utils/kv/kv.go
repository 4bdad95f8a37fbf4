// Package kv defines an interface for key-value store.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrKeyNotFound is returned by bucket Gets for missing keys.
var ErrKeyNotFound = errors.New("key not found")

// Bucket defines basic CRUD operations for key-value pairs in a single "namespace."
type Bucket interface {
	// Get returns an error wrapping ErrKeyNotFound for missing keys.
	Get(ctx context.Context, k string) (v []byte, err error)
	Set(ctx context.Context, k string, v []byte) error
	Has(ctx context.Context, k string) (found bool, err error)
	Delete(ctx context.Context, k string) error
}

// TraversingBucket allows us to get a list of the keys in the bucket as well.
type TraversingBucket interface {
	Bucket
	// Keys returns the unordered keys in the bucket
	Keys(cancel <-chan struct{}) <-chan string
}

// GetJSON unmarshals the JSON value of k in b into v.
// A missing key is reported as an error wrapping ErrKeyNotFound.
func GetJSON(ctx context.Context, b Bucket, k string, v interface{}) error {
	raw, err := b.Get(ctx, k)
	if err != nil {
		return fmt.Errorf("getting %s: %w", k, err)
	}
	if err = json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("unmarshal %s: %w", k, err)
	}
	return nil
}

// SetJSON marshals v to JSON and sets it as the value of k in b.
func SetJSON(ctx context.Context, b Bucket, k string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", k, err)
	}
	if err = b.Set(ctx, k, raw); err != nil {
		return fmt.Errorf("setting %s: %w", k, err)
	}
	return nil
}

// KeysWithPrefix returns the sorted keys in b starting with prefix.
// The prefix is trimmed from the returned keys.
// All keys are collected before returning: some buckets hold a lock while traversing.
func KeysWithPrefix(ctx context.Context, b TraversingBucket, prefix string) ([]string, error) {
	var keys []string
	for k := range b.Keys(ctx.Done()) {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, strings.TrimPrefix(k, prefix))
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}
