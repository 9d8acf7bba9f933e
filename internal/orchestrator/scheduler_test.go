package orchestrator_test

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/dcsp-io/dcsp/internal/orchestrator"
	"github.com/dcsp-io/dcsp/internal/rules"
)

func TestScheduler_CloseIsIdempotentAndSafeWithoutStart(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ruleSet := rules.NewSet(rules.Config{})

	s := orchestrator.NewScheduler(nil, ruleSet, func(string) orchestrator.Fetcher { return nil }, time.Hour, logger)

	if err := s.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}

	if err := s.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestScheduler_StartThenClose(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ruleSet := rules.NewSet(rules.Config{})

	s := orchestrator.NewScheduler(nil, ruleSet, func(string) orchestrator.Fetcher { return nil }, time.Hour, logger)
	s.Start()

	if err := s.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
