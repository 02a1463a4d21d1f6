package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemory_SetGet(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if err := m.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := m.Get(ctx, "k")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != "v" {
		t.Errorf("expected v, got %q", got)
	}
}

func TestMemory_Miss(t *testing.T) {
	m := NewMemory()
	if _, err := m.Get(context.Background(), "absent"); !errors.Is(err, ErrMiss) {
		t.Errorf("expected ErrMiss, got %v", err)
	}
}

func TestMemory_Expiry(t *testing.T) {
	m := NewMemory()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	_ = m.Set(ctx, "k", []byte("v"), time.Second)
	now = now.Add(2 * time.Second)

	if ok, _ := m.Exists(ctx, "k"); ok {
		t.Error("expected entry to be expired")
	}
	if m.Len() != 0 {
		t.Errorf("expected lazy expiry to remove the entry, got %d", m.Len())
	}
}

func TestMemory_NoTTL(t *testing.T) {
	m := NewMemory()
	now := time.Now()
	m.now = func() time.Time { return now }
	ctx := context.Background()

	_ = m.Set(ctx, "k", []byte("v"), 0)
	now = now.Add(24 * time.Hour)
	if ok, _ := m.Exists(ctx, "k"); !ok {
		t.Error("expected entry without TTL to persist")
	}
}

func TestMemory_Sweep(t *testing.T) {
	m := NewMemory()
	now := time.Now()
	m.now = func() time.Time { return now }
	ctx := context.Background()

	_ = m.Set(ctx, "a", []byte("1"), time.Second)
	_ = m.Set(ctx, "b", []byte("2"), time.Hour)
	now = now.Add(time.Minute)
	m.sweep()

	if m.Len() != 1 {
		t.Errorf("expected 1 entry after sweep, got %d", m.Len())
	}
}

func TestMemory_Delete(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	_ = m.Set(ctx, "k", []byte("v"), 0)
	_ = m.Delete(ctx, "k")
	if ok, _ := m.Exists(ctx, "k"); ok {
		t.Error("expected key to be deleted")
	}
}

func TestMemory_ValuesAreCopied(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	buf := []byte("abc")
	_ = m.Set(ctx, "k", buf, 0)
	buf[0] = 'x'

	got, _ := m.Get(ctx, "k")
	if string(got) != "abc" {
		t.Errorf("expected stored copy to be unaffected, got %q", got)
	}
}
