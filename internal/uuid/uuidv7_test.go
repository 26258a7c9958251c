package uuid

import (
	"strings"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	a, b := New(), New()
	if a == b {
		t.Fatal("expected distinct ids")
	}
	if a > b {
		t.Errorf("expected time-ordered ids, got %s then %s", a, b)
	}
	created, ok := CreatedAt(a)
	if !ok {
		t.Fatalf("expected a v7 id, got %s", a)
	}
	if d := time.Since(created); d < 0 || d > time.Minute {
		t.Errorf("embedded time %v too far from now", created)
	}
}

func TestParse(t *testing.T) {
	id := New()
	got, err := Parse(strings.ToUpper(id))
	if err != nil || got != id {
		t.Errorf("expected canonical %s, got %s (%v)", id, got, err)
	}
	for _, bad := range []string{"", "42", "not-a-uuid"} {
		if _, err := Parse(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

func TestCreatedAtRejectsV4(t *testing.T) {
	if _, ok := CreatedAt("f47ac10b-58cc-4372-a567-0e02b2c3d479"); ok {
		t.Error("v4 id should not report a creation time")
	}
}
