package idgen

import (
	"strings"
	"testing"
)

func TestNanoID_LengthAndAlphabet(t *testing.T) {
	for _, length := range []int{6, 12, 24} {
		id := NanoID(length)()
		if len(id) != length {
			t.Fatalf("NanoID(%d): got length %d", length, len(id))
		}
		for _, c := range id {
			if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'z')) {
				t.Fatalf("NanoID: unexpected character %q in %q", c, id)
			}
		}
	}
}

func TestUUIDv7_Uniqueness(t *testing.T) {
	gen := UUIDv7()
	seen := make(map[string]struct{}, 100)
	for i := 0; i < 100; i++ {
		id := gen()
		if len(id) != 36 {
			t.Fatalf("UUIDv7: expected length 36, got %d", len(id))
		}
		if _, ok := seen[id]; ok {
			t.Fatalf("UUIDv7: duplicate at iteration %d: %q", i, id)
		}
		seen[id] = struct{}{}
	}
}

func TestPrefixed(t *testing.T) {
	id := Prefixed("ver_", NanoID(8))()
	if !strings.HasPrefix(id, "ver_") || len(id) != 12 {
		t.Fatalf("Prefixed: got %q", id)
	}
}

func TestNewRunID_Format(t *testing.T) {
	id := NewRunID()
	// run_20060102T150405Z_xxxxxx
	if !strings.HasPrefix(id, "run_") || len(id) != 4+16+1+6 || !strings.Contains(id, "Z_") {
		t.Fatalf("NewRunID: bad format %q", id)
	}
}

func TestNewVerificationID_Format(t *testing.T) {
	id := NewVerificationID()
	if !strings.HasPrefix(id, "ver_") || len(id) != 4+36 {
		t.Fatalf("NewVerificationID: bad format %q", id)
	}
	if other := NewVerificationID(); other == id {
		t.Fatalf("NewVerificationID: duplicate %q", id)
	}
}
