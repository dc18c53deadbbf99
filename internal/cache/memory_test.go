package cache

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestMemory_PutGet(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if err := m.Put(ctx, "dataset:MGI:1", []byte("a"), time.Hour); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := m.Get(ctx, "dataset:MGI:1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, []byte("a")) {
		t.Errorf("Get = %q", got)
	}
}

func TestMemory_OverwriteIsVisible(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	_ = m.Put(ctx, "k", []byte("old"), time.Hour)
	_ = m.Put(ctx, "k", []byte("new"), time.Hour)

	got, _ := m.Get(ctx, "k")
	if string(got) != "new" {
		t.Errorf("Get after overwrite = %q, want new", got)
	}
}

func TestMemory_PutCopiesValue(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	v := []byte("abc")
	_ = m.Put(ctx, "k", v, 0)
	v[0] = 'x'

	got, _ := m.Get(ctx, "k")
	if string(got) != "abc" {
		t.Errorf("stored value changed with caller buffer: %q", got)
	}
}

func TestMemory_Expiry(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewMemory().WithClock(func() time.Time { return now })
	ctx := context.Background()

	_ = m.Put(ctx, "k", []byte("v"), time.Minute)

	now = now.Add(59 * time.Second)
	if _, err := m.Get(ctx, "k"); err != nil {
		t.Fatalf("entry expired too early: %v", err)
	}

	now = now.Add(time.Second)
	if _, err := m.Get(ctx, "k"); !errors.Is(err, ErrMiss) {
		t.Errorf("expected ErrMiss at expiry, got %v", err)
	}
	if m.Len() != 0 {
		t.Errorf("expired entry should be dropped, Len = %d", m.Len())
	}
}

func TestMemory_DeleteAndClear(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	_ = m.Put(ctx, "a", []byte("1"), 0)
	_ = m.Put(ctx, "b", []byte("2"), 0)

	_ = m.Delete(ctx, "a")
	if _, err := m.Get(ctx, "a"); !errors.Is(err, ErrMiss) {
		t.Errorf("expected ErrMiss after Delete, got %v", err)
	}

	_ = m.Clear(ctx)
	if m.Len() != 0 {
		t.Errorf("Len after Clear = %d", m.Len())
	}
}

func TestMemory_Concurrent(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = m.Put(ctx, "k", []byte{byte(j)}, time.Hour)
				_, _ = m.Get(ctx, "k")
			}
		}()
	}
	wg.Wait()

	if _, err := m.Get(ctx, "k"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
