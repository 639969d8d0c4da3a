package util

import (
	"strings"
	"testing"
	"time"
)

func TestNewIDPrefix(t *testing.T) {
	id := NewID("usr")
	if !strings.HasPrefix(id, "usr_") || len(id) != len("usr_")+36 {
		t.Fatalf("NewID(usr) = %q", id)
	}
	if NewID("") == NewID("") {
		t.Fatal("ids should be unique")
	}
}

func TestNewSortableIDOrdersByTime(t *testing.T) {
	earlier := NewSortableID(time.Unix(1700000000, 0))
	later := NewSortableID(time.Unix(1700000001, 0))
	if len(earlier) != 26 {
		t.Fatalf("ulid length = %d", len(earlier))
	}
	if earlier >= later {
		t.Fatalf("expected %s < %s", earlier, later)
	}
}

func TestNewTokenLength(t *testing.T) {
	if got := len(NewToken()); got != 64 {
		t.Fatalf("token length = %d, want 64", got)
	}
}
