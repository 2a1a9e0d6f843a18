package ids

import (
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
)

func TestNewULID_Parses(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s, err := NewULID(now)
	if err != nil {
		t.Fatalf("NewULID: %v", err)
	}
	if len(s) != 26 {
		t.Fatalf("len=%d want=26", len(s))
	}
	id, err := ulid.ParseStrict(s)
	if err != nil {
		t.Fatalf("ParseStrict: %v", err)
	}
	if got := ulid.Time(id.Time()); !got.Equal(now) {
		t.Fatalf("time=%v want=%v", got, now)
	}
}

func TestGenerator_MonotonicWithinMillisecond(t *testing.T) {
	t.Parallel()

	g := NewGenerator(nil)
	now := time.Now().UTC()

	prev := ""
	for i := 0; i < 100; i++ {
		s, err := g.New(now)
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		if s <= prev {
			t.Fatalf("id %q not after %q", s, prev)
		}
		prev = s
	}
}
