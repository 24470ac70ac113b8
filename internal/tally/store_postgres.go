package tally

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	id "quorum/pkg/domain"
	"quorum/pkg/platform/sentinel"
)

// PostgresStore persists finalized results. The (meeting_id, resolution_id)
// primary key plus insert-only writes keep results immutable.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) SaveAll(ctx context.Context, meetingID id.MeetingID, results []Result) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save tally: %w", err)
	}
	defer tx.Rollback()

	var exists bool
	if err := tx.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM tally_results WHERE meeting_id = $1)
	`, uuid.UUID(meetingID)).Scan(&exists); err != nil {
		return fmt.Errorf("check tally exists: %w", err)
	}
	if exists {
		return fmt.Errorf("meeting %s already finalized: %w", meetingID, sentinel.ErrConflict)
	}

	for _, result := range results {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO tally_results (meeting_id, resolution_id, yes_weight, no_weight, abstain_weight, finalized_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, uuid.UUID(result.MeetingID), uuid.UUID(result.ResolutionID),
			result.Yes, result.No, result.Abstain, result.FinalizedAt); err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
				return fmt.Errorf("meeting %s already finalized: %w", meetingID, sentinel.ErrConflict)
			}
			return fmt.Errorf("insert tally result: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save tally: %w", err)
	}
	return nil
}

func (s *PostgresStore) Find(ctx context.Context, meetingID id.MeetingID, resolutionID id.ResolutionID) (Result, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT meeting_id, resolution_id, yes_weight, no_weight, abstain_weight, finalized_at
		FROM tally_results WHERE meeting_id = $1 AND resolution_id = $2
	`, uuid.UUID(meetingID), uuid.UUID(resolutionID))
	result, err := scanResult(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return Result{}, fmt.Errorf("tally for resolution %s: %w", resolutionID, sentinel.ErrNotFound)
	}
	return result, err
}

func (s *PostgresStore) ListByMeeting(ctx context.Context, meetingID id.MeetingID) ([]Result, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.meeting_id, t.resolution_id, t.yes_weight, t.no_weight, t.abstain_weight, t.finalized_at
		FROM tally_results t
		JOIN resolutions r ON r.id = t.resolution_id
		WHERE t.meeting_id = $1
		ORDER BY r.position
	`, uuid.UUID(meetingID))
	if err != nil {
		return nil, fmt.Errorf("list tally results: %w", err)
	}
	defer rows.Close()

	var out []Result
	for rows.Next() {
		result, err := scanResult(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, result)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("tally for meeting %s: %w", meetingID, sentinel.ErrNotFound)
	}
	return out, nil
}

func (s *PostgresStore) Exists(ctx context.Context, meetingID id.MeetingID) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM tally_results WHERE meeting_id = $1)
	`, uuid.UUID(meetingID)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check tally exists: %w", err)
	}
	return exists, nil
}

func scanResult(scan func(dest ...any) error) (Result, error) {
	var (
		result        Result
		rawMeeting    string
		rawResolution string
	)
	if err := scan(&rawMeeting, &rawResolution, &result.Yes, &result.No, &result.Abstain, &result.FinalizedAt); err != nil {
		return Result{}, err
	}
	var err error
	if result.MeetingID, err = id.ParseMeetingID(rawMeeting); err != nil {
		return Result{}, err
	}
	if result.ResolutionID, err = id.ParseResolutionID(rawResolution); err != nil {
		return Result{}, err
	}
	return result, nil
}
