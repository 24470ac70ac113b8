// Package outbox drains the audit outbox table into Kafka. Kafka is the
// compliance export channel; the database row is only deleted after the
// broker acknowledges the record, so no event can be lost between the two.
package outbox

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"
)

const defaultBatchSize = 100

// Publisher polls the outbox table and publishes pending entries to Kafka.
type Publisher struct {
	db        *sql.DB
	client    *kgo.Client
	logger    *slog.Logger
	topic     string
	interval  time.Duration
	batchSize int
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithBatchSize overrides the number of rows drained per poll.
func WithBatchSize(n int) Option {
	return func(p *Publisher) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

// New creates an outbox publisher draining into the given topic.
func New(db *sql.DB, client *kgo.Client, topic string, interval time.Duration, logger *slog.Logger, opts ...Option) *Publisher {
	p := &Publisher{
		db:        db,
		client:    client,
		logger:    logger,
		topic:     topic,
		interval:  interval,
		batchSize: defaultBatchSize,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// EnsureTopic creates the export topic if it does not exist yet. Safe to call
// on every startup.
func (p *Publisher) EnsureTopic(ctx context.Context, partitions int32, replicas int16) error {
	adm := kadm.NewClient(p.client)
	resp, err := adm.CreateTopics(ctx, partitions, replicas, nil, p.topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", p.topic, err)
	}
	for _, res := range resp {
		if res.Err != nil && res.Err.Error() != "TOPIC_ALREADY_EXISTS" {
			if !kgo.IsRetryableBrokerErr(res.Err) {
				p.logger.Warn("topic creation returned error", "topic", res.Topic, "error", res.Err)
			}
		}
	}
	return nil
}

// Run polls until the context is cancelled.
func (p *Publisher) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := p.drain(ctx); err != nil {
				// Broker or database hiccups are retried on the next tick;
				// rows stay in the outbox until acknowledged.
				p.logger.Error("outbox drain failed", "error", err)
			}
		}
	}
}

type outboxRow struct {
	id        uuid.UUID
	eventType string
	aggregate string
	payload   []byte
}

func (p *Publisher) drain(ctx context.Context) error {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, event_type, aggregate_id, payload
		FROM outbox
		ORDER BY created_at
		LIMIT $1
	`, p.batchSize)
	if err != nil {
		return fmt.Errorf("select outbox: %w", err)
	}
	var pending []outboxRow
	for rows.Next() {
		var row outboxRow
		if err := rows.Scan(&row.id, &row.eventType, &row.aggregate, &row.payload); err != nil {
			rows.Close()
			return fmt.Errorf("scan outbox row: %w", err)
		}
		pending = append(pending, row)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, row := range pending {
		record := &kgo.Record{
			Topic: p.topic,
			// Keyed by aggregate so per-meeting events stay ordered within a
			// partition.
			Key:   []byte(row.aggregate),
			Value: row.payload,
		}
		if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
			return fmt.Errorf("produce audit event %s: %w", row.id, err)
		}
		if _, err := p.db.ExecContext(ctx, `DELETE FROM outbox WHERE id = $1`, row.id); err != nil {
			return fmt.Errorf("delete outbox row %s: %w", row.id, err)
		}
	}
	return nil
}
