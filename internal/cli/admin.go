package cli

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/vietddude/costwatch/internal/agent/recommender"
	"github.com/vietddude/costwatch/internal/core/config"
	"github.com/vietddude/costwatch/internal/core/domain"
	"github.com/vietddude/costwatch/internal/infra/broadcast"
	"github.com/vietddude/costwatch/internal/infra/notify"
	"github.com/vietddude/costwatch/internal/infra/storage/postgres"
)

// adminEnv bundles the stores an admin command needs. Admin commands talk to
// the same database as the running agent; they never execute remediations
// themselves.
type adminEnv struct {
	db        *postgres.DB
	recs      *postgres.RecommendationRepo
	history   *postgres.HistoryRepo
	configs   *postgres.ConfigRepo
	publisher broadcast.Publisher
	machine   *recommender.Machine
}

// noExec guards the admin surface: approval only transitions the record, the
// agent's next cycle performs the mutation.
type noExec struct{}

func (noExec) Apply(ctx context.Context, rec *domain.Recommendation) (*domain.MutationResult, error) {
	panic("admin surface must not execute remediations")
}

func openAdmin(ctx context.Context, cfg *config.AppConfig) *adminEnv {
	if cfg.Database.URL == "" {
		slog.Error("Admin commands require a database; memory storage is per-process")
		os.Exit(1)
	}

	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	var publisher broadcast.Publisher = broadcast.NopPublisher{}
	if cfg.Redis.URL != "" {
		quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
		if client, err := broadcast.NewClient(cfg.Redis, quiet); err == nil {
			publisher = client
		} else {
			slog.Warn("Redis unavailable, transitions will not be broadcast", "error", err)
		}
	}

	recs := postgres.NewRecommendationRepo(db)
	machine := recommender.New(
		recs,
		postgres.NewTxRunner(db, cfg.Agent.Retry),
		noExec{},
		publisher,
		notify.NopNotifier{},
		slog.Default(),
	)

	return &adminEnv{
		db:        db,
		recs:      recs,
		history:   postgres.NewHistoryRepo(db),
		configs:   postgres.NewConfigRepo(db),
		publisher: publisher,
		machine:   machine,
	}
}

func (e *adminEnv) close() {
	_ = e.publisher.Close()
	_ = e.db.Close()
}
