package kv

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestVersionedKeyAndCurrentKey(t *testing.T) {
	if got, want := versionedKey("ds-1", 3), "ds-1:v3"; got != want {
		t.Errorf("versionedKey() = %q, want %q", got, want)
	}

	if got, want := currentKey("ds-1"), "ds-1:current"; got != want {
		t.Errorf("currentKey() = %q, want %q", got, want)
	}

	if got, want := currentValue(7), "v7"; got != want {
		t.Errorf("currentValue() = %q, want %q", got, want)
	}
}

func TestMemoryClient_VersionedRoundTrip(t *testing.T) {
	c := NewMemoryClient()
	ctx := context.Background()

	if err := c.PutVersioned(ctx, "ds-1", 1, []byte(`{"data":1}`), time.Hour); err != nil {
		t.Fatalf("PutVersioned() error = %v", err)
	}

	got, err := c.GetVersioned(ctx, "ds-1", 1)
	if err != nil {
		t.Fatalf("GetVersioned() error = %v", err)
	}

	if string(got) != `{"data":1}` {
		t.Errorf("GetVersioned() = %s, want %s", got, `{"data":1}`)
	}

	if _, err := c.GetVersioned(ctx, "ds-1", 2); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetVersioned() missing version error = %v, want ErrNotFound", err)
	}
}

func TestMemoryClient_VersionedExpires(t *testing.T) {
	c := NewMemoryClient()
	ctx := context.Background()

	if err := c.PutVersioned(ctx, "ds-1", 1, []byte("x"), time.Millisecond); err != nil {
		t.Fatalf("PutVersioned() error = %v", err)
	}

	time.Sleep(5 * time.Millisecond)

	if _, err := c.GetVersioned(ctx, "ds-1", 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetVersioned() after expiry error = %v, want ErrNotFound", err)
	}
}

func TestMemoryClient_CurrentPointerIsLastWriterWins(t *testing.T) {
	c := NewMemoryClient()
	ctx := context.Background()

	if err := c.PutCurrent(ctx, "ds-1", 1); err != nil {
		t.Fatalf("PutCurrent() error = %v", err)
	}

	if err := c.PutCurrent(ctx, "ds-1", 2); err != nil {
		t.Fatalf("PutCurrent() error = %v", err)
	}

	got, err := c.GetCurrent(ctx, "ds-1")
	if err != nil {
		t.Fatalf("GetCurrent() error = %v", err)
	}

	if got != 2 {
		t.Errorf("GetCurrent() = %d, want 2 (last writer wins)", got)
	}
}

func TestMemoryClient_DeleteVersioned(t *testing.T) {
	c := NewMemoryClient()
	ctx := context.Background()

	if err := c.PutVersioned(ctx, "ds-1", 1, []byte("x"), time.Hour); err != nil {
		t.Fatalf("PutVersioned() error = %v", err)
	}

	if err := c.DeleteVersioned(ctx, "ds-1", 1); err != nil {
		t.Fatalf("DeleteVersioned() error = %v", err)
	}

	if _, err := c.GetVersioned(ctx, "ds-1", 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetVersioned() after delete error = %v, want ErrNotFound", err)
	}

	if err := c.DeleteVersioned(ctx, "ds-1", 99); err != nil {
		t.Errorf("DeleteVersioned() on missing key should be a no-op, got error = %v", err)
	}
}

func TestMemoryClient_GetCurrent_Unset(t *testing.T) {
	c := NewMemoryClient()

	if _, err := c.GetCurrent(context.Background(), "unknown"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetCurrent() error = %v, want ErrNotFound", err)
	}
}

func TestMemoryClient_HealthCheck(t *testing.T) {
	c := NewMemoryClient()

	if err := c.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}
