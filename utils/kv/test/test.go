// Package test contains a shared test suite for key-value buckets.
package test

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/formflow/formflow/utils/kv"
)

type record struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// TestBucket runs the shared bucket tests against b.
// The bucket is expected to be empty and is left empty.
func TestBucket(t *testing.T, b kv.TraversingBucket) {
	ctx := context.Background()

	t.Run("missing", func(t *testing.T) {
		if _, err := b.Get(ctx, "missing"); !errors.Is(err, kv.ErrKeyNotFound) {
			t.Errorf("have: %v, want: %v", err, kv.ErrKeyNotFound)
		}
		if found, err := b.Has(ctx, "missing"); err != nil {
			t.Fatal(err)
		} else if found {
			t.Error("missing key found")
		}
		if err := b.Delete(ctx, "missing"); err != nil {
			t.Errorf("deleting missing key: %v", err)
		}
	})

	t.Run("json", func(t *testing.T) {
		want := &record{Name: "expense", Count: 3}
		if err := kv.SetJSON(ctx, b, "a.1", want); err != nil {
			t.Fatal(err)
		}
		have := new(record)
		if err := kv.GetJSON(ctx, b, "a.1", have); err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(have, want) {
			t.Errorf("have: %v, want: %v", have, want)
		}
		if err := kv.GetJSON(ctx, b, "a.missing", have); !errors.Is(err, kv.ErrKeyNotFound) {
			t.Errorf("have: %v, want: %v", err, kv.ErrKeyNotFound)
		}
	})

	t.Run("keys", func(t *testing.T) {
		for _, k := range []string{"a.3", "a.2", "b.1"} {
			if err := b.Set(ctx, k, []byte(k)); err != nil {
				t.Fatal(err)
			}
		}
		keys, err := kv.KeysWithPrefix(ctx, b, "a.")
		if err != nil {
			t.Fatal(err)
		}
		if have, want := keys, []string{"1", "2", "3"}; !reflect.DeepEqual(have, want) {
			t.Errorf("have: %v, want: %v", have, want)
		}
	})

	t.Run("delete", func(t *testing.T) {
		for _, k := range []string{"a.1", "a.2", "a.3", "b.1"} {
			if err := b.Delete(ctx, k); err != nil {
				t.Fatal(err)
			}
			if found, err := b.Has(ctx, k); err != nil {
				t.Fatal(err)
			} else if found {
				t.Errorf("key %s found after delete", k)
			}
		}
		keys, err := kv.KeysWithPrefix(ctx, b, "")
		if err != nil {
			t.Fatal(err)
		}
		if len(keys) != 0 {
			t.Errorf("keys left after delete: %v", keys)
		}
	})
}
