package snapshot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	id "quorum/pkg/domain"
	"quorum/pkg/platform/sentinel"
)

// PostgresStore persists weight snapshots. At-most-once freezing rides on a
// marker row in snapshot_freezes: the first transaction to insert it wins,
// any later freeze hits the primary key and short-circuits.
type PostgresStore struct {
	db    *sql.DB
	clock func() time.Time
}

// PostgresOption configures a PostgresStore.
type PostgresOption func(*PostgresStore)

// WithPostgresClock sets the clock function for testability.
func WithPostgresClock(clock func() time.Time) PostgresOption {
	return func(s *PostgresStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func NewPostgresStore(db *sql.DB, opts ...PostgresOption) *PostgresStore {
	s := &PostgresStore{db: db, clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *PostgresStore) FreezeAll(ctx context.Context, meetingID id.MeetingID, entries []WeightSnapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin freeze: %w", err)
	}
	defer tx.Rollback()

	// The marker insert is the compare-and-set: exactly one transaction per
	// meeting can commit it.
	_, err = tx.ExecContext(ctx, `
		INSERT INTO snapshot_freezes (meeting_id, frozen_at) VALUES ($1, $2)
	`, uuid.UUID(meetingID), s.clock())
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return fmt.Errorf("snapshot for meeting %s: %w", meetingID, sentinel.ErrAlreadyUsed)
		}
		return fmt.Errorf("insert freeze marker: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO weight_snapshots (meeting_id, shareholder_id, weight, frozen_at)
		VALUES ($1, $2, $3, $4)
	`)
	if err != nil {
		return fmt.Errorf("prepare snapshot insert: %w", err)
	}
	defer stmt.Close()

	for _, entry := range entries {
		if _, err := stmt.ExecContext(ctx,
			uuid.UUID(entry.MeetingID), uuid.UUID(entry.ShareholderID),
			entry.Weight, entry.FrozenAt); err != nil {
			return fmt.Errorf("insert snapshot row: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit freeze: %w", err)
	}
	return nil
}

func (s *PostgresStore) WeightOf(ctx context.Context, meetingID id.MeetingID, shareholderID id.ShareholderID) (int64, error) {
	var weight int64
	err := s.db.QueryRowContext(ctx, `
		SELECT weight FROM weight_snapshots WHERE meeting_id = $1 AND shareholder_id = $2
	`, uuid.UUID(meetingID), uuid.UUID(shareholderID)).Scan(&weight)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("snapshot for shareholder %s: %w", shareholderID, sentinel.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("weight of: %w", err)
	}
	return weight, nil
}

func (s *PostgresStore) TotalWeight(ctx context.Context, meetingID id.MeetingID) (int64, error) {
	frozen, err := s.Frozen(ctx, meetingID)
	if err != nil {
		return 0, err
	}
	if !frozen {
		return 0, fmt.Errorf("snapshot for meeting %s: %w", meetingID, sentinel.ErrNotFound)
	}
	var total int64
	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(weight), 0) FROM weight_snapshots WHERE meeting_id = $1
	`, uuid.UUID(meetingID)).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("total weight: %w", err)
	}
	return total, nil
}

func (s *PostgresStore) List(ctx context.Context, meetingID id.MeetingID) ([]WeightSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT meeting_id, shareholder_id, weight, frozen_at
		FROM weight_snapshots WHERE meeting_id = $1
		ORDER BY shareholder_id
	`, uuid.UUID(meetingID))
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var out []WeightSnapshot
	for rows.Next() {
		var (
			entry          WeightSnapshot
			rawMeeting     string
			rawShareholder string
		)
		if err := rows.Scan(&rawMeeting, &rawShareholder, &entry.Weight, &entry.FrozenAt); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		if entry.MeetingID, err = id.ParseMeetingID(rawMeeting); err != nil {
			return nil, err
		}
		if entry.ShareholderID, err = id.ParseShareholderID(rawShareholder); err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Frozen(ctx context.Context, meetingID id.MeetingID) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM snapshot_freezes WHERE meeting_id = $1)
	`, uuid.UUID(meetingID)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check frozen: %w", err)
	}
	return exists, nil
}
