package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	id "quorum/pkg/domain"
	pstrings "quorum/pkg/platform/strings"
)

// KafkaDispatcher hands notice batches to the delivery pipeline over Kafka.
// Actual channel delivery (email, WhatsApp) is owned by downstream consumers;
// accepting the record is the dispatcher's Accepted signal.
type KafkaDispatcher struct {
	client *kgo.Client
	topic  string
}

func NewKafkaDispatcher(client *kgo.Client, topic string) *KafkaDispatcher {
	return &KafkaDispatcher{client: client, topic: topic}
}

type noticeJob struct {
	MeetingID  string    `json:"meeting_id"`
	Channel    string    `json:"channel"`
	Recipients []string  `json:"recipients"`
	QueuedAt   time.Time `json:"queued_at"`
}

func (d *KafkaDispatcher) Dispatch(ctx context.Context, meetingID id.MeetingID, channel string, recipients []Recipient) error {
	job := noticeJob{
		MeetingID: meetingID.String(),
		Channel:   channel,
		QueuedAt:  time.Now(),
	}
	for _, r := range recipients {
		job.Recipients = append(job.Recipients, r.Contact)
	}
	// Nominee holdings can share a custodian address; one notice per
	// address is enough.
	job.Recipients = pstrings.DedupeAndTrimLower(job.Recipients)

	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal notice job: %w", err)
	}
	record := &kgo.Record{
		Topic: d.topic,
		Key:   []byte(meetingID.String()),
		Value: payload,
	}
	if err := d.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce notice job: %w", err)
	}
	return nil
}
