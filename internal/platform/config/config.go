package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	id "quorum/pkg/domain"
)

// Server captures process-level configuration.
type Server struct {
	Addr         string
	PostgresURL  string
	Redis        RedisConfig
	KafkaBrokers []string
	AuditTopic   string
	NoticeTopic  string

	// Statutory scheduling inputs. Offsets are configuration, never hardcoded.
	NoticeWindow     time.Duration
	RecordDateOffset time.Duration
	VotingDuration   time.Duration
	SweepInterval    time.Duration
	SchedulerWorkers int

	// RevotePolicy decides whether a second ballot supersedes or is rejected.
	RevotePolicy id.RevotePolicy

	// Identity assertion verification inputs.
	IdentitySigningKey string
	IdentityIssuer     string

	// External collaborator call budget (identity service, dispatcher).
	CollaboratorTimeout time.Duration
}

// RedisConfig holds Redis connection settings for the replay digest index.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	cfg := Server{
		Addr:                envOr("QUORUM_ADDR", ":8080"),
		PostgresURL:         os.Getenv("QUORUM_POSTGRES_URL"),
		AuditTopic:          envOr("QUORUM_AUDIT_TOPIC", "quorum.audit"),
		NoticeTopic:         envOr("QUORUM_NOTICE_TOPIC", "quorum.notices"),
		NoticeWindow:        envDays("QUORUM_NOTICE_WINDOW_DAYS", 40),
		RecordDateOffset:    envDays("QUORUM_RECORD_DATE_OFFSET_DAYS", 3),
		VotingDuration:      envDuration("QUORUM_VOTING_DURATION", 4*time.Hour),
		SweepInterval:       envDuration("QUORUM_SWEEP_INTERVAL", time.Minute),
		SchedulerWorkers:    envInt("QUORUM_SCHEDULER_WORKERS", 2),
		RevotePolicy:        id.RevoteSupersede,
		IdentitySigningKey:  envOr("QUORUM_IDENTITY_SIGNING_KEY", "dev-secret-key-change-in-production"),
		IdentityIssuer:      envOr("QUORUM_IDENTITY_ISSUER", "quorum-identity"),
		CollaboratorTimeout: envDuration("QUORUM_COLLABORATOR_TIMEOUT", 10*time.Second),
	}

	if brokers := os.Getenv("QUORUM_KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}
	if policy, err := id.ParseRevotePolicy(os.Getenv("QUORUM_REVOTE_POLICY")); err == nil {
		cfg.RevotePolicy = policy
	}

	cfg.Redis = RedisConfig{
		URL:          os.Getenv("QUORUM_REDIS_URL"),
		PoolSize:     envInt("QUORUM_REDIS_POOL_SIZE", 10),
		MinIdleConns: envInt("QUORUM_REDIS_MIN_IDLE", 2),
		DialTimeout:  envDuration("QUORUM_REDIS_DIAL_TIMEOUT", 5*time.Second),
		ReadTimeout:  envDuration("QUORUM_REDIS_READ_TIMEOUT", 3*time.Second),
		WriteTimeout: envDuration("QUORUM_REDIS_WRITE_TIMEOUT", 3*time.Second),
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func envDays(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * 24 * time.Hour
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}
