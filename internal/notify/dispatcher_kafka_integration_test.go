//go:build integration

package notify_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"quorum/internal/notify"
	id "quorum/pkg/domain"
	"quorum/pkg/testutil/containers"
)

type KafkaDispatcherSuite struct {
	suite.Suite
	kafka    *containers.KafkaContainer
	producer *kgo.Client
}

func TestKafkaDispatcherSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(KafkaDispatcherSuite))
}

func (s *KafkaDispatcherSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.kafka = mgr.GetKafka(s.T())
	s.producer = s.kafka.NewClient(s.T())
}

func (s *KafkaDispatcherSuite) TearDownSuite() {
	if s.producer != nil {
		s.producer.Close()
	}
}

func (s *KafkaDispatcherSuite) TestDispatchProducesNoticeJob() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	const topic = "quorum.notices.test"
	dispatcher := notify.NewKafkaDispatcher(s.producer, topic)

	meetingID := id.NewMeetingID()
	recipients := []notify.Recipient{
		{ShareholderID: id.NewShareholderID(), Name: "A", Channel: "email", Contact: "A@acme.example"},
		{ShareholderID: id.NewShareholderID(), Name: "B", Channel: "email", Contact: "b@acme.example"},
		// Nominee sharing A's custodian address; deduped on dispatch.
		{ShareholderID: id.NewShareholderID(), Name: "C", Channel: "email", Contact: "a@acme.example"},
	}
	s.Require().NoError(dispatcher.Dispatch(ctx, meetingID, "email", recipients))

	consumer := s.kafka.NewClient(s.T(),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	defer consumer.Close()

	fetches := consumer.PollFetches(ctx)
	s.Require().NoError(fetches.Err())
	records := fetches.Records()
	s.Require().Len(records, 1)
	s.Equal(meetingID.String(), string(records[0].Key))

	var job struct {
		MeetingID  string   `json:"meeting_id"`
		Channel    string   `json:"channel"`
		Recipients []string `json:"recipients"`
	}
	s.Require().NoError(json.Unmarshal(records[0].Value, &job))
	s.Equal(meetingID.String(), job.MeetingID)
	s.Equal("email", job.Channel)
	s.Equal([]string{"a@acme.example", "b@acme.example"}, job.Recipients)
}
