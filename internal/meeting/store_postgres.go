package meeting

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

// PostgresStore persists meetings. Compare-and-set is a conditional UPDATE:
// zero affected rows means another worker won the race, and a follow-up read
// distinguishes not-found from lost-race.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, meeting Meeting) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO meetings (
			id, company_id, title, scheduled_at, record_date,
			notice_window_seconds, voting_duration_seconds, state, notice_sent, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, uuid.UUID(meeting.ID), uuid.UUID(meeting.CompanyID), meeting.Title,
		meeting.ScheduledAt, meeting.RecordDate,
		int64(meeting.NoticeWindow.Seconds()), int64(meeting.VotingDuration.Seconds()),
		string(meeting.State), meeting.NoticeSent, meeting.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return fmt.Errorf("meeting %s: %w", meeting.ID, sentinel.ErrConflict)
		}
		return fmt.Errorf("create meeting: %w", err)
	}
	return nil
}

const meetingColumns = `
	id, company_id, title, scheduled_at, record_date,
	notice_window_seconds, voting_duration_seconds, state, notice_sent, created_at`

func (s *PostgresStore) FindByID(ctx context.Context, meetingID id.MeetingID) (Meeting, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+meetingColumns+` FROM meetings WHERE id = $1`, uuid.UUID(meetingID))
	meeting, err := scanMeeting(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return Meeting{}, fmt.Errorf("meeting %s: %w", meetingID, sentinel.ErrNotFound)
	}
	return meeting, err
}

func (s *PostgresStore) ListInStates(ctx context.Context, states ...id.MeetingState) ([]Meeting, error) {
	raw := make([]string, len(states))
	for i, state := range states {
		raw[i] = string(state)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+meetingColumns+` FROM meetings WHERE state = ANY($1) ORDER BY scheduled_at`,
		pq.Array(raw))
	if err != nil {
		return nil, fmt.Errorf("list meetings: %w", err)
	}
	defer rows.Close()

	var out []Meeting
	for rows.Next() {
		meeting, err := scanMeeting(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, meeting)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CompareAndSetState(ctx context.Context, meetingID id.MeetingID, expected, next id.MeetingState) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE meetings SET state = $3 WHERE id = $1 AND state = $2
	`, uuid.UUID(meetingID), string(expected), string(next))
	if err != nil {
		return fmt.Errorf("transition meeting state: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("transition meeting state: %w", err)
	}
	if affected == 0 {
		if _, err := s.FindByID(ctx, meetingID); err != nil {
			return err
		}
		return fmt.Errorf("meeting %s not in state %s: %w", meetingID, expected, sentinel.ErrInvalidState)
	}
	return nil
}

func (s *PostgresStore) ClaimNotice(ctx context.Context, meetingID id.MeetingID) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE meetings SET notice_sent = TRUE, state = $2
		WHERE id = $1 AND notice_sent = FALSE AND state = $3
	`, uuid.UUID(meetingID), string(id.MeetingNoticeSent), string(id.MeetingNoticePending))
	if err != nil {
		return fmt.Errorf("claim notice: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("claim notice: %w", err)
	}
	if affected == 0 {
		meeting, err := s.FindByID(ctx, meetingID)
		if err != nil {
			return err
		}
		if meeting.NoticeSent {
			return fmt.Errorf("notice for meeting %s: %w", meetingID, sentinel.ErrAlreadyUsed)
		}
		return fmt.Errorf("meeting %s in state %s: %w", meetingID, meeting.State, sentinel.ErrInvalidState)
	}
	return nil
}

func (s *PostgresStore) AddResolution(ctx context.Context, resolution Resolution) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO resolutions (id, meeting_id, title, description, position)
		VALUES ($1, $2, $3, $4, $5)
	`, uuid.UUID(resolution.ID), uuid.UUID(resolution.MeetingID),
		resolution.Title, resolution.Description, resolution.Position)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "foreign_key_violation" {
			return fmt.Errorf("meeting %s: %w", resolution.MeetingID, sentinel.ErrNotFound)
		}
		return fmt.Errorf("add resolution: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListResolutions(ctx context.Context, meetingID id.MeetingID) ([]Resolution, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, meeting_id, title, description, position
		FROM resolutions WHERE meeting_id = $1 ORDER BY position
	`, uuid.UUID(meetingID))
	if err != nil {
		return nil, fmt.Errorf("list resolutions: %w", err)
	}
	defer rows.Close()

	var out []Resolution
	for rows.Next() {
		var (
			res        Resolution
			rawID      string
			rawMeeting string
		)
		if err := rows.Scan(&rawID, &rawMeeting, &res.Title, &res.Description, &res.Position); err != nil {
			return nil, fmt.Errorf("scan resolution: %w", err)
		}
		if res.ID, err = id.ParseResolutionID(rawID); err != nil {
			return nil, err
		}
		if res.MeetingID, err = id.ParseMeetingID(rawMeeting); err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

func (s *PostgresStore) RecordDate(ctx context.Context, meetingID id.MeetingID) (id.CompanyID, time.Time, error) {
	var (
		rawCompany string
		recordDate time.Time
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT company_id, record_date FROM meetings WHERE id = $1
	`, uuid.UUID(meetingID)).Scan(&rawCompany, &recordDate)
	if errors.Is(err, sql.ErrNoRows) {
		return id.CompanyID{}, time.Time{}, fmt.Errorf("meeting %s: %w", meetingID, sentinel.ErrNotFound)
	}
	if err != nil {
		return id.CompanyID{}, time.Time{}, fmt.Errorf("meeting record date: %w", err)
	}
	companyID, err := id.ParseCompanyID(rawCompany)
	if err != nil {
		return id.CompanyID{}, time.Time{}, err
	}
	return companyID, recordDate, nil
}

func scanMeeting(scan func(dest ...any) error) (Meeting, error) {
	var (
		meeting       Meeting
		rawID         string
		rawCompany    string
		rawState      string
		noticeSeconds int64
		votingSeconds int64
	)
	if err := scan(&rawID, &rawCompany, &meeting.Title, &meeting.ScheduledAt, &meeting.RecordDate,
		&noticeSeconds, &votingSeconds, &rawState, &meeting.NoticeSent, &meeting.CreatedAt); err != nil {
		return Meeting{}, err
	}
	var err error
	if meeting.ID, err = id.ParseMeetingID(rawID); err != nil {
		return Meeting{}, err
	}
	if meeting.CompanyID, err = id.ParseCompanyID(rawCompany); err != nil {
		return Meeting{}, err
	}
	if meeting.State, err = id.ParseMeetingState(rawState); err != nil {
		return Meeting{}, err
	}
	meeting.NoticeWindow = time.Duration(noticeSeconds) * time.Second
	meeting.VotingDuration = time.Duration(votingSeconds) * time.Second
	return meeting, nil
}
