package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"serialization failure code", &pgconn.PgError{Code: "40001"}, true},
		{"deadlock code", &pgconn.PgError{Code: "40P01"}, true},
		{"lock not available code", &pgconn.PgError{Code: "55P03"}, true},
		{"unique violation is not transient", &pgconn.PgError{Code: "23505"}, false},
		{"wrapped deadlock code", fmt.Errorf("tx failed: %w", &pgconn.PgError{Code: "40P01"}), true},
		{"deadlock message", errors.New("deadlock detected"), true},
		{"serialization message", errors.New("could not serialize access due to concurrent update"), true},
		{"lock timeout message", errors.New("canceling statement due to lock timeout"), true},
		{"plain failure", errors.New("connection refused"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestRunWithRetry_RetriesTransientUntilSuccess(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond}

	attempts := 0
	err := runWithRetry(context.Background(), cfg, func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return &pgconn.PgError{Code: "40001"}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestRunWithRetry_ExhaustsAndSurfacesLastError(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond}

	attempts := 0
	transient := &pgconn.PgError{Code: "40P01"}
	err := runWithRetry(context.Background(), cfg, func(ctx context.Context) error {
		attempts++
		return transient
	})
	if err == nil {
		t.Fatalf("expected error after exhausting retries")
	}
	if !errors.Is(err, transient) {
		t.Errorf("err = %v, want last transient error", err)
	}
	// MaxRetries bounds the retries, so attempts = retries + 1.
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestRunWithRetry_NonTransientPropagatesImmediately(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 5, BaseDelay: time.Millisecond}

	attempts := 0
	fatal := errors.New("constraint violation")
	err := runWithRetry(context.Background(), cfg, func(ctx context.Context) error {
		attempts++
		return fatal
	})
	if !errors.Is(err, fatal) {
		t.Fatalf("err = %v, want %v", err, fatal)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1 (no retry for non-transient errors)", attempts)
	}
}
