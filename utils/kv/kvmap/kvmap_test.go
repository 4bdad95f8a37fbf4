package kvmap

import (
	"context"
	"testing"

	"github.com/formflow/formflow/utils/kv/test"
)

func TestKVMap(t *testing.T) {
	test.TestBucket(t, NewBucket())
}

func TestKeysWhileWriting(t *testing.T) {
	ctx := context.Background()
	b := NewBucket()
	for _, k := range []string{"a", "b", "c"} {
		if err := b.Set(ctx, k, []byte(k)); err != nil {
			t.Fatal(err)
		}
	}
	for k := range b.Keys(nil) {
		// would deadlock if Keys held the lock
		if err := b.Delete(ctx, k); err != nil {
			t.Fatal(err)
		}
	}
	if have, want := len(b.m), 0; have != want {
		t.Errorf("have: %v, want: %v", have, want)
	}
}

func TestValuesCopied(t *testing.T) {
	ctx := context.Background()
	b := NewBucket()
	v := []byte("abc")
	if err := b.Set(ctx, "k", v); err != nil {
		t.Fatal(err)
	}
	v[0] = 'x'
	have, err := b.Get(ctx, "k")
	if err != nil {
		t.Fatal(err)
	}
	if want := "abc"; string(have) != want {
		t.Errorf("have: %v, want: %v", string(have), want)
	}
}
