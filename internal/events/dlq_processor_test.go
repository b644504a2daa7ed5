package events

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/IBM/sarama"
	"github.com/jogardn/cargo-lifecycle/internal/logging"
)

func dlqMessage(t *testing.T, retries int) *sarama.ConsumerMessage {
	t.Helper()
	meta, _ := json.Marshal(MessageMetadata{RetryCount: retries, OriginalTopic: "cargo.notifications", ErrorMessage: "gateway down"})
	return notificationMessage(t, &sarama.RecordHeader{Key: []byte(HeaderMetadata), Value: meta})
}

func TestDLQReplaySendsBackToOriginalTopic(t *testing.T) {
	out := &capturingProducer{}
	p := NewDLQProcessorFrom(nil, out, "cargo.notifications.dlq", "", true, logging.Discard())
	p.ReplayDelay = 0

	p.handle(context.Background(), dlqMessage(t, 1))

	if len(out.sent) != 1 || out.sent[0].Topic != "cargo.notifications" {
		t.Fatalf("expected replay to the original topic, got %+v", out.sent)
	}
	if got := out.header(t, 0, HeaderRetryCount); got != "1" {
		t.Errorf("expected retry count header 1, got %s", got)
	}
	if s := p.Stats(); s.Inspected != 1 || s.Replayed != 1 {
		t.Errorf("unexpected stats %+v", s)
	}
}

func TestDLQDropsAfterMaxReplays(t *testing.T) {
	out := &capturingProducer{}
	p := NewDLQProcessorFrom(nil, out, "cargo.notifications.dlq", "cargo.notifications", true, logging.Discard())
	p.ReplayDelay = 0

	if err := p.Replay(dlqMessage(t, DefaultMaxReplays)); err == nil {
		t.Error("expected replay limit error")
	}
	if len(out.sent) != 0 || p.Stats().Dropped != 1 {
		t.Errorf("expected message dropped, sent=%d stats=%+v", len(out.sent), p.Stats())
	}
}

func TestDLQMonitorOnly(t *testing.T) {
	p := NewDLQProcessorFrom(nil, nil, "cargo.notifications.dlq", "cargo.notifications", true, logging.Discard())
	p.handle(context.Background(), dlqMessage(t, 0))
	if s := p.Stats(); s.Inspected != 1 || s.Replayed != 0 {
		t.Errorf("without a producer the processor only inspects, got %+v", s)
	}
}
