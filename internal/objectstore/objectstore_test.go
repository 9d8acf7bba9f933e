package objectstore

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestVersionKey(t *testing.T) {
	tests := []struct {
		datasetID string
		version   int
		want      string
	}{
		{datasetID: "ds-1", version: 1, want: "snapshots/ds-1/v1.json"},
		{datasetID: "ds-2", version: 42, want: "snapshots/ds-2/v42.json"},
	}

	for _, tt := range tests {
		if got := versionKey(tt.datasetID, tt.version); got != tt.want {
			t.Errorf("versionKey(%q, %d) = %q, want %q", tt.datasetID, tt.version, got, tt.want)
		}
	}
}

func TestLatestKey(t *testing.T) {
	if got, want := latestKey("ds-1"), "snapshots/ds-1/latest.json"; got != want {
		t.Errorf("latestKey() = %q, want %q", got, want)
	}
}

func TestDoWithRetry_SucceedsAfterTransientFailures(t *testing.T) {
	cfg := retryConfig{maxAttempts: 3, initialWait: time.Millisecond}

	attempts := 0
	err := doWithRetry(context.Background(), cfg, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}

		return nil
	})

	if err != nil {
		t.Fatalf("doWithRetry() error = %v", err)
	}

	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestDoWithRetry_ExhaustsAttempts(t *testing.T) {
	cfg := retryConfig{maxAttempts: 2, initialWait: time.Millisecond}

	attempts := 0
	err := doWithRetry(context.Background(), cfg, func() error {
		attempts++

		return errors.New("permanent")
	})

	if err == nil {
		t.Fatal("doWithRetry() expected error, got nil")
	}

	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
}

func TestDoWithRetry_RespectsCancellation(t *testing.T) {
	cfg := retryConfig{maxAttempts: 5, initialWait: time.Hour}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts := 0
	err := doWithRetry(ctx, cfg, func() error {
		attempts++

		return errors.New("always fails")
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("doWithRetry() error = %v, want context.Canceled", err)
	}

	if attempts != 1 {
		t.Errorf("attempts = %d, want 1 (fails before first sleep)", attempts)
	}
}
