package uuid

import (
	"sort"
	"testing"
)

func TestUUIDUnique(t *testing.T) {
	for _, u := range []*UUID{NewUUID(), NewOrderedUUID()} {
		if u.ID() == u.ID() {
			t.Error("UUIDs are not unique")
		}
	}
}

func TestOrderedUUID(t *testing.T) {
	u := NewOrderedUUID()
	ids := make([]string, 50)
	for i := range ids {
		ids[i] = u.ID()
	}
	if !sort.StringsAreSorted(ids) {
		t.Errorf("ordered UUIDs not sorted: %v", ids)
	}
}

func TestStaticIDs(t *testing.T) {
	u := NewStaticIDs("A", "B")
	for _, expected := range []string{"A", "B", "A", "B", "A"} {
		if have, want := u.ID(), expected; have != want {
			t.Errorf("unexpected ID: have: %v, want: %v", have, want)
		}
	}
}
