package events

import (
	"context"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/jogardn/cargo-lifecycle/internal/logging"
)

var testTopics = Topics{StatusChanged: "cargo.status-changed", Notifications: "cargo.notifications"}

func TestPublishStatusChanged(t *testing.T) {
	mock := mocks.NewSyncProducer(t, NewProducerConfig())
	mock.ExpectSendMessageAndSucceed()
	mock.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	p := NewKafkaProducerFrom(mock, testTopics, logging.Discard())
	defer p.Close()

	ctx := context.Background()
	if err := p.PublishStatusChanged(ctx, StatusChangedEvent{Entity: EntityOrder, EntityID: 7, OrderID: 7, To: "IN_TRANSIT"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := p.Notify(ctx, Notification{Channel: ChannelSMS, Recipient: "+77010000007", Template: TemplateTracking})
	if !errors.Is(err, sarama.ErrOutOfBrokers) {
		t.Errorf("expected broker error, got %v", err)
	}
}

func TestPublishHonoursCancelledContext(t *testing.T) {
	mock := mocks.NewSyncProducer(t, NewProducerConfig())
	p := NewKafkaProducerFrom(mock, testTopics, logging.Discard())
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.PublishStatusChanged(ctx, StatusChangedEvent{}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context error, got %v", err)
	}
}

type recordingPublisher struct {
	events []StatusChangedEvent
	err    error
}

func (p *recordingPublisher) PublishStatusChanged(ctx context.Context, e StatusChangedEvent) error {
	p.events = append(p.events, e)
	return p.err
}

type recordingBroadcaster struct {
	topics []string
	types  []string
}

func (b *recordingBroadcaster) Broadcast(messageType string, data interface{}, source string) {
	b.types = append(b.types, messageType)
	b.topics = append(b.topics, source)
}

func TestEmitterFansOut(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("kafka down")}
	hub := &recordingBroadcaster{}
	e := NewEmitter(pub, hub, logging.Discard())

	e.Emit(context.Background(),
		StatusChangedEvent{Entity: EntityOrder, EntityID: 5, OrderID: 5},
		StatusChangedEvent{Entity: EntityShipment, EntityID: 9, ShipmentID: 9},
	)
	e.Position(9, 43.2, 76.9)

	if len(pub.events) != 2 {
		t.Errorf("publish failures must not stop the fan-out, got %d events", len(pub.events))
	}
	want := []string{"order:5", "shipment:9", "shipment:9"}
	for i, topic := range want {
		if hub.topics[i] != topic {
			t.Errorf("broadcast %d: expected %s, got %s", i, topic, hub.topics[i])
		}
	}
	if hub.types[2] != "shipment_position" {
		t.Errorf("expected position broadcast, got %s", hub.types[2])
	}

	var nilEmitter *Emitter
	nilEmitter.Emit(context.Background(), StatusChangedEvent{})
	nilEmitter.Position(1, 0, 0)
}
