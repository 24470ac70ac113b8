package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/twmb/franz-go/pkg/kgo"
	"golang.org/x/sync/errgroup"

	"quorum/internal/engine"
	"quorum/internal/meeting"
	"quorum/internal/meeting/scheduler"
	"quorum/internal/notify"
	"quorum/internal/platform/config"
	"quorum/internal/platform/database"
	"quorum/internal/platform/httpserver"
	"quorum/internal/platform/logger"
	"quorum/internal/platform/metrics"
	platformredis "quorum/internal/platform/redis"
	"quorum/internal/registry"
	"quorum/internal/signature"
	"quorum/internal/snapshot"
	"quorum/internal/tally"
	httptransport "quorum/internal/transport/http"
	"quorum/internal/voting"
	"quorum/pkg/platform/audit"
	"quorum/pkg/platform/audit/outbox"
	auditmem "quorum/pkg/platform/audit/store/memory"
	auditpg "quorum/pkg/platform/audit/store/postgres"
	"quorum/pkg/platform/circuit"
)

// replayTTL bounds how long proof digests stay in the replay index; well past
// any meeting's voting window.
const replayTTL = 45 * 24 * time.Hour

// main wires dependencies and owns the process lifecycle. Business logic
// lives in the internal service packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()
	m := metrics.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Storage. Postgres when configured, in-memory otherwise.
	var db *sql.DB
	if cfg.PostgresURL != "" {
		var err error
		db, err = sql.Open("postgres", cfg.PostgresURL)
		if err != nil {
			log.Error("failed to open postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			log.Error("postgres ping failed", "error", err)
			os.Exit(1)
		}
		if err := database.ApplySchema(ctx, db); err != nil {
			log.Error("schema apply failed", "error", err)
			os.Exit(1)
		}
	}

	var (
		registryStore registry.Store
		meetingStore  meeting.Store
		snapshotStore snapshot.Store
		voteStore     voting.Store
		tallyStore    tally.Store
		auditStore    audit.Store
	)
	if db != nil {
		registryStore = registry.NewPostgresStore(db)
		meetingStore = meeting.NewPostgresStore(db)
		snapshotStore = snapshot.NewPostgresStore(db)
		voteStore = voting.NewPostgresStore(db)
		tallyStore = tally.NewPostgresStore(db)
		auditStore = auditpg.New(db)
	} else {
		log.Warn("no postgres configured, using in-memory stores")
		registryStore = registry.NewInMemoryStore()
		meetingStore = meeting.NewInMemoryStore()
		snapshotStore = snapshot.NewInMemoryStore()
		voteStore = voting.NewInMemoryStore()
		tallyStore = tally.NewInMemoryStore()
		auditStore = auditmem.NewInMemoryStore()
	}

	// Replay index. Redis when configured, in-memory otherwise.
	var replay signature.ReplayIndex = signature.NewInMemoryReplayIndex()
	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		replay = signature.NewRedisReplayIndex(redisClient.Client, replayTTL)
	}

	// Kafka. Notice dispatch and the audit outbox drain when configured.
	var dispatcher notify.Dispatcher = notify.NewInMemoryDispatcher()
	var kafkaClient *kgo.Client
	if len(cfg.KafkaBrokers) > 0 {
		kafkaClient, err = kgo.NewClient(kgo.SeedBrokers(cfg.KafkaBrokers...))
		if err != nil {
			log.Error("failed to create kafka client", "error", err)
			os.Exit(1)
		}
		defer kafkaClient.Close()
		dispatcher = notify.NewKafkaDispatcher(kafkaClient, cfg.NoticeTopic)
	}

	auditor := audit.NewPublisher(auditStore)

	snapshots := snapshot.NewService(snapshotStore, meetingStore, registryStore, auditor, log, m)
	tallies := tally.NewService(tallyStore, voteStore, snapshots, meetingStore, auditor, log, m)
	meetings := meeting.NewService(meetingStore, snapshots, tallies, dispatcher,
		registryStore, auditor, log, m, meeting.Defaults{
			RecordDateOffset:    cfg.RecordDateOffset,
			CollaboratorTimeout: cfg.CollaboratorTimeout,
		})

	verifier := signature.NewBreakerVerifier(
		signature.NewJWTVerifier(cfg.IdentitySigningKey, cfg.IdentityIssuer),
		circuit.New("identity-verifier"), log)
	votes := voting.NewService(voteStore, meetings, snapshots, verifier, replay,
		auditor, log, m, cfg.RevotePolicy, cfg.CollaboratorTimeout)

	eng := engine.New(meetings, snapshots, votes, tallies, auditor)
	srv := httpserver.New(cfg.Addr, httptransport.NewRouter(eng, log))

	sweep := scheduler.New(meetings, meetingStore, log, m, cfg.SweepInterval,
		scheduler.WithWorkers(cfg.SchedulerWorkers))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting quorum engine", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		sweep.Run(gctx)
		return nil
	})

	if db != nil && kafkaClient != nil {
		drain := outbox.New(db, kafkaClient, cfg.AuditTopic, cfg.SweepInterval, log)
		g.Go(func() error {
			if err := drain.EnsureTopic(gctx, 3, 1); err != nil {
				log.Error("failed to ensure audit topic", "error", err)
			}
			return drain.Run(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}
