package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	id "quorum/pkg/domain"
	audit "quorum/pkg/platform/audit"
)

// Store persists audit events in PostgreSQL using a transactional outbox.
// Events are written to audit_events for local queries and mirrored into the
// outbox table, which the outbox worker drains into Kafka for compliance
// export.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// outboxPayload is the JSON structure published to Kafka. Field names match
// audit.Event for proper deserialization by downstream consumers.
type outboxPayload struct {
	ID             string `json:"ID"`
	Category       string `json:"Category"`
	Timestamp      string `json:"Timestamp"`
	MeetingID      string `json:"MeetingID,omitempty"`
	ShareholderID  string `json:"ShareholderID,omitempty"`
	ResolutionID   string `json:"ResolutionID,omitempty"`
	Action         string `json:"Action"`
	Decision       string `json:"Decision,omitempty"`
	Reason         string `json:"Reason,omitempty"`
	ProofDigest    string `json:"ProofDigest,omitempty"`
	SupersededAt   string `json:"SupersededAt,omitempty"`
	Channel        string `json:"Channel,omitempty"`
	RecipientCount int    `json:"RecipientCount,omitempty"`
}

func nullUUID(u uuid.UUID) any {
	if u == uuid.Nil {
		return nil
	}
	return u.String()
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

// Append writes an audit event and its outbox mirror in one transaction so
// the local trail and the Kafka export can never diverge.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	eventID := uuid.New()
	category := event.Category
	if category == "" {
		category = audit.AuditEvent(event.Action).Category()
	}

	payload := outboxPayload{
		ID:             eventID.String(),
		Category:       string(category),
		Timestamp:      event.Timestamp.Format(time.RFC3339Nano),
		Action:         event.Action,
		Decision:       event.Decision,
		Reason:         event.Reason,
		ProofDigest:    event.ProofDigest,
		Channel:        event.Channel,
		RecipientCount: event.RecipientCount,
	}
	if !event.MeetingID.IsNil() {
		payload.MeetingID = event.MeetingID.String()
	}
	if !event.ShareholderID.IsNil() {
		payload.ShareholderID = event.ShareholderID.String()
	}
	if !event.ResolutionID.IsNil() {
		payload.ResolutionID = event.ResolutionID.String()
	}
	if !event.SupersededAt.IsZero() {
		payload.SupersededAt = event.SupersededAt.Format(time.RFC3339Nano)
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin audit tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO audit_events (
			id, category, occurred_at, meeting_id, shareholder_id, resolution_id,
			action, decision, reason, proof_digest, superseded_at, channel, recipient_count
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		eventID, string(category), event.Timestamp,
		nullUUID(uuid.UUID(event.MeetingID)),
		nullUUID(uuid.UUID(event.ShareholderID)),
		nullUUID(uuid.UUID(event.ResolutionID)),
		event.Action, event.Decision, event.Reason, event.ProofDigest,
		nullTime(event.SupersededAt), event.Channel, event.RecipientCount,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}

	aggregateType := "audit"
	aggregateID := eventID.String()
	if !event.MeetingID.IsNil() {
		aggregateType = "meeting"
		aggregateID = event.MeetingID.String()
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, uuid.New(), aggregateType, aggregateID, event.Action, payloadBytes, time.Now())
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit audit tx: %w", err)
	}
	return nil
}

// ListByMeeting returns the meeting's events ordered for replay.
func (s *Store) ListByMeeting(ctx context.Context, meetingID id.MeetingID) ([]audit.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT category, occurred_at, meeting_id, shareholder_id, resolution_id,
		       action, decision, reason, proof_digest, superseded_at, channel, recipient_count
		FROM audit_events
		WHERE meeting_id = $1
		ORDER BY occurred_at, id
	`, uuid.UUID(meetingID))
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		var (
			event                        audit.Event
			category                     string
			meeting, shareholder, resol  sql.NullString
			decision, reason, digest, ch sql.NullString
			superseded                   sql.NullTime
			recipients                   sql.NullInt64
		)
		if err := rows.Scan(&category, &event.Timestamp, &meeting, &shareholder, &resol,
			&event.Action, &decision, &reason, &digest, &superseded, &ch, &recipients); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		event.Category = audit.EventCategory(category)
		if meeting.Valid {
			if mid, err := id.ParseMeetingID(meeting.String); err == nil {
				event.MeetingID = mid
			}
		}
		if shareholder.Valid {
			if sid, err := id.ParseShareholderID(shareholder.String); err == nil {
				event.ShareholderID = sid
			}
		}
		if resol.Valid {
			if rid, err := id.ParseResolutionID(resol.String); err == nil {
				event.ResolutionID = rid
			}
		}
		event.Decision = decision.String
		event.Reason = reason.String
		event.ProofDigest = digest.String
		event.Channel = ch.String
		if superseded.Valid {
			event.SupersededAt = superseded.Time
		}
		event.RecipientCount = int(recipients.Int64)
		events = append(events, event)
	}
	return events, rows.Err()
}
