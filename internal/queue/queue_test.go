package queue

import (
	"testing"
	"time"
)

func TestNew_DefaultBlockTimeout(t *testing.T) {
	q := New(nil, "jobs", "jobs:processing", 0)
	if q.blockTimeout != 5*time.Second {
		t.Fatalf("blockTimeout = %v, want 5s", q.blockTimeout)
	}
}

func TestNew_KeepsExplicitBlockTimeout(t *testing.T) {
	q := New(nil, "jobs", "jobs:processing", 30*time.Second)
	if q.blockTimeout != 30*time.Second {
		t.Fatalf("blockTimeout = %v, want 30s", q.blockTimeout)
	}
}

func TestErrEmpty_IsDistinctSentinel(t *testing.T) {
	if ErrEmpty == nil {
		t.Fatal("ErrEmpty must not be nil")
	}
	if ErrEmpty.Error() == "" {
		t.Fatal("ErrEmpty must have a message")
	}
}
