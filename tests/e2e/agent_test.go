package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/vietddude/costwatch/internal/control"
	"github.com/vietddude/costwatch/internal/core/config"
	"github.com/vietddude/costwatch/internal/core/domain"
)

// memoryConfig starts the agent without external dependencies: memory
// storage, simulated fleet, no redis, no webhook.
func memoryConfig(port int) config.AppConfig {
	return config.AppConfig{
		Server: config.ServerConfig{Port: port},
		Agent: config.AgentConfig{
			Tenants:       []string{"e2e"},
			CycleInterval: 200 * time.Millisecond,
			MinBatch:      2,
			MaxBatch:      5,
		},
	}
}

func TestAgentLifecycle(t *testing.T) {
	cfg := memoryConfig(18230)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	app, err := control.NewAgent(cfg, log)
	if err != nil {
		t.Fatalf("NewAgent() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := app.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// The first cycle runs immediately; the simulated fleet always carries
	// wasteful resources, so pending recommendations must appear.
	deadline := time.Now().Add(3 * time.Second)
	for {
		counts, err := app.Recommendations().CountByStatus(ctx, "e2e")
		if err != nil {
			t.Fatalf("CountByStatus() error = %v", err)
		}
		if counts[domain.StatusPending] > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("no recommendations created within deadline")
		}
		time.Sleep(50 * time.Millisecond)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := app.Stop(shutdownCtx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
}

func TestHealthEndpoint(t *testing.T) {
	cfg := memoryConfig(18231)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	app, err := control.NewAgent(cfg, log)
	if err != nil {
		t.Fatalf("NewAgent() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := app.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = app.Stop(shutdownCtx)
	}()

	// Give the server and the first cycle a moment.
	time.Sleep(500 * time.Millisecond)

	resp, err := http.Get(fmt.Sprintf("http://localhost:%d/health", cfg.Server.Port))
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d, want 200", resp.StatusCode)
	}

	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode health response: %v", err)
	}
	if body["status"] == "" {
		t.Error("expected status field in health response")
	}
}

func TestApprovalFlow(t *testing.T) {
	cfg := memoryConfig(18232)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	app, err := control.NewAgent(cfg, log)
	if err != nil {
		t.Fatalf("NewAgent() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := app.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = app.Stop(shutdownCtx)
	}()

	// Wait for a pending recommendation, approve it, and watch the next
	// cycle execute it.
	var pendingID string
	deadline := time.Now().Add(3 * time.Second)
	for pendingID == "" {
		pending, err := app.Recommendations().ListByStatus(ctx, "e2e", domain.StatusPending)
		if err != nil {
			t.Fatalf("ListByStatus() error = %v", err)
		}
		if len(pending) > 0 {
			pendingID = pending[0].ID
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("no pending recommendation within deadline")
		}
		time.Sleep(50 * time.Millisecond)
	}

	if _, err := app.Machine().Approve(ctx, pendingID, "e2e-test"); err != nil {
		t.Fatalf("Approve() error = %v", err)
	}

	deadline = time.Now().Add(3 * time.Second)
	for {
		rec, err := app.Recommendations().GetByID(ctx, pendingID)
		if err != nil {
			t.Fatalf("GetByID() error = %v", err)
		}
		if rec.Status == domain.StatusExecuted {
			entries, err := app.History().ListByRecommendation(ctx, pendingID)
			if err != nil {
				t.Fatalf("ListByRecommendation() error = %v", err)
			}
			if len(entries) != 1 {
				t.Fatalf("history entries = %d, want 1", len(entries))
			}
			if !entries[0].Success {
				t.Error("expected successful execution entry")
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("recommendation stuck in %s", rec.Status)
		}
		time.Sleep(50 * time.Millisecond)
	}
}
