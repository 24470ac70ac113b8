package voting

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

const voteColumns = `id, meeting_id, shareholder_id, resolution_id, choice, weight,
	proof_digest, proof_algorithm, assertion_ref, cast_at, superseded, superseded_at`

// PostgresStore persists the vote ledger. A partial unique index on the
// ballot key over non-superseded rows makes supersede-and-insert
// single-writer-wins; the proof digest carries its own unique constraint.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Record writes the ballot, superseding any active prior when allowed. Two
// first casts can race past the lock query and collide on the active-ballot
// index; under a supersede policy the loser retries, locks the winner's
// committed row and corrects it like any other revote. Each collision means
// another cast committed, so the loop always advances; cancellation surfaces
// through the transaction.
func (s *PostgresStore) Record(ctx context.Context, vote Vote, allowSupersede bool) (*Vote, error) {
	for {
		prior, err := s.record(ctx, vote, allowSupersede)
		if !allowSupersede || !errors.Is(err, sentinel.ErrConflict) {
			return prior, err
		}
	}
}

func (s *PostgresStore) record(ctx context.Context, vote Vote, allowSupersede bool) (*Vote, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin record vote: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		SELECT `+voteColumns+`
		FROM votes
		WHERE meeting_id = $1 AND shareholder_id = $2 AND resolution_id = $3 AND NOT superseded
		FOR UPDATE
	`, uuid.UUID(vote.MeetingID), uuid.UUID(vote.ShareholderID), uuid.UUID(vote.ResolutionID))

	var prior *Vote
	existing, err := scanVote(row.Scan)
	switch {
	case err == nil:
		if !allowSupersede {
			return nil, fmt.Errorf("vote already recorded for key: %w", sentinel.ErrConflict)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE votes SET superseded = TRUE, superseded_at = $2 WHERE id = $1
		`, uuid.UUID(existing.ID), vote.CastAt); err != nil {
			return nil, fmt.Errorf("supersede prior vote: %w", err)
		}
		existing.Superseded = true
		existing.SupersededAt = vote.CastAt
		prior = &existing
	case errors.Is(err, sql.ErrNoRows):
		// First ballot for this key.
	default:
		return nil, fmt.Errorf("lock prior vote: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO votes (`+voteColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, FALSE, NULL)
	`, uuid.UUID(vote.ID), uuid.UUID(vote.MeetingID), uuid.UUID(vote.ShareholderID),
		uuid.UUID(vote.ResolutionID), string(vote.Choice), vote.Weight,
		vote.Proof.Digest, vote.Proof.Algorithm, vote.Proof.AssertionRef, vote.CastAt); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			if pqErr.Constraint == "votes_proof_digest_key" {
				return nil, fmt.Errorf("proof digest %s: %w", vote.Proof.Digest, sentinel.ErrAlreadyUsed)
			}
			// Lost the race on the active-ballot index to a concurrent cast.
			return nil, fmt.Errorf("concurrent vote for key: %w", sentinel.ErrConflict)
		}
		return nil, fmt.Errorf("insert vote: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit record vote: %w", err)
	}
	return prior, nil
}

func (s *PostgresStore) FindActive(ctx context.Context, meetingID id.MeetingID, shareholderID id.ShareholderID, resolutionID id.ResolutionID) (Vote, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+voteColumns+`
		FROM votes
		WHERE meeting_id = $1 AND shareholder_id = $2 AND resolution_id = $3 AND NOT superseded
	`, uuid.UUID(meetingID), uuid.UUID(shareholderID), uuid.UUID(resolutionID))
	vote, err := scanVote(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return Vote{}, fmt.Errorf("no active vote for key: %w", sentinel.ErrNotFound)
	}
	return vote, err
}

func (s *PostgresStore) ListActive(ctx context.Context, meetingID id.MeetingID) ([]Vote, error) {
	return s.list(ctx, `
		SELECT `+voteColumns+`
		FROM votes WHERE meeting_id = $1 AND NOT superseded
		ORDER BY cast_at, id
	`, meetingID)
}

func (s *PostgresStore) ListLedger(ctx context.Context, meetingID id.MeetingID) ([]Vote, error) {
	return s.list(ctx, `
		SELECT `+voteColumns+`
		FROM votes WHERE meeting_id = $1
		ORDER BY cast_at, id
	`, meetingID)
}

func (s *PostgresStore) list(ctx context.Context, query string, meetingID id.MeetingID) ([]Vote, error) {
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(meetingID))
	if err != nil {
		return nil, fmt.Errorf("list votes: %w", err)
	}
	defer rows.Close()

	var out []Vote
	for rows.Next() {
		vote, err := scanVote(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, vote)
	}
	return out, rows.Err()
}

func scanVote(scan func(dest ...any) error) (Vote, error) {
	var (
		vote          Vote
		rawID         string
		rawMeeting    string
		rawHolder     string
		rawResolution string
		choice        string
		supersededAt  sql.NullTime
	)
	if err := scan(&rawID, &rawMeeting, &rawHolder, &rawResolution, &choice, &vote.Weight,
		&vote.Proof.Digest, &vote.Proof.Algorithm, &vote.Proof.AssertionRef,
		&vote.CastAt, &vote.Superseded, &supersededAt); err != nil {
		return Vote{}, err
	}
	var err error
	if vote.ID, err = id.ParseVoteID(rawID); err != nil {
		return Vote{}, err
	}
	if vote.MeetingID, err = id.ParseMeetingID(rawMeeting); err != nil {
		return Vote{}, err
	}
	if vote.ShareholderID, err = id.ParseShareholderID(rawHolder); err != nil {
		return Vote{}, err
	}
	if vote.ResolutionID, err = id.ParseResolutionID(rawResolution); err != nil {
		return Vote{}, err
	}
	if vote.Choice, err = id.ParseVoteChoice(choice); err != nil {
		return Vote{}, err
	}
	if supersededAt.Valid {
		vote.SupersededAt = supersededAt.Time.UTC()
	}
	return vote, nil
}
