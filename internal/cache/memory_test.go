package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()

	type overview struct {
		TotalReports int `json:"total_reports"`
	}

	if err := c.Set(ctx, "stats:overview", overview{TotalReports: 7}, 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	var got overview
	if err := c.Get(ctx, "stats:overview", &got); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.TotalReports != 7 {
		t.Errorf("expected 7, got %d", got.TotalReports)
	}
}

func TestMemoryMiss(t *testing.T) {
	c := NewMemory()
	var dest string
	if err := c.Get(context.Background(), "absent", &dest); !errors.Is(err, ErrMiss) {
		t.Errorf("expected ErrMiss, got %v", err)
	}
}

func TestMemoryExpiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()

	if err := c.Set(ctx, "k", "v", time.Millisecond); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	var dest string
	if err := c.Get(ctx, "k", &dest); !errors.Is(err, ErrMiss) {
		t.Errorf("expected ErrMiss after expiry, got %v", err)
	}
}

func TestMemoryDelete(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()

	_ = c.Set(ctx, "a", 1, 0)
	_ = c.Set(ctx, "b", 2, 0)
	if err := c.Delete(ctx, "a", "b", "never-existed"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	var dest int
	if err := c.Get(ctx, "a", &dest); !errors.Is(err, ErrMiss) {
		t.Errorf("expected ErrMiss after delete, got %v", err)
	}
}
