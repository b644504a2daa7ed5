package events

import (
	"context"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	EntityOrder     = "order"
	EntityOrderItem = "order_item"
	EntityShipment  = "shipment"
	EntityResponse  = "shipment_response"
)

// StatusChangedEvent is published after the transaction that produced it
// commits. Events are keyed by order so consumers see one order in order.
type StatusChangedEvent struct {
	EventID    string    `json:"event_id"`
	Entity     string    `json:"entity"`
	EntityID   int64     `json:"entity_id"`
	OrderID    int64     `json:"order_id,omitempty"`
	ShipmentID int64     `json:"shipment_id,omitempty"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	ActorID    int64     `json:"actor_id,omitempty"`
	EventTime  time.Time `json:"event_time"`
}

const (
	TemplateCourierNewOrder = "COURIER_NEW_ORDER"
	TemplatePublicOffer     = "PUBLIC_OFFER"
	TemplateWaiverAgreement = "WAIVER_AGREEMENT"
	TemplateDriverContract  = "DRIVER_CONTRACT"
	TemplateTracking        = "TRACKING_TEMPLATE"
)

type Channel string

const (
	ChannelSMS  Channel = "sms"
	ChannelPush Channel = "push"
)

type Notification struct {
	ID        string            `json:"id"`
	Channel   Channel           `json:"channel"`
	Recipient string            `json:"recipient"`
	Template  string            `json:"template"`
	Params    map[string]string `json:"params"`
	CreatedAt time.Time         `json:"created_at"`
}

type Publisher interface {
	PublishStatusChanged(ctx context.Context, event StatusChangedEvent) error
}

type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

type Broadcaster interface {
	Broadcast(messageType string, data interface{}, topic string)
}

// Emitter fans committed changes out to Kafka and live websocket clients.
// A nil Emitter or nil collaborators are skipped.
type Emitter struct {
	publisher   Publisher
	broadcaster Broadcaster
	logger      *logrus.Logger
}

func NewEmitter(publisher Publisher, broadcaster Broadcaster, logger *logrus.Logger) *Emitter {
	return &Emitter{publisher: publisher, broadcaster: broadcaster, logger: logger}
}

func (e *Emitter) Emit(ctx context.Context, changes ...StatusChangedEvent) {
	if e == nil {
		return
	}
	for _, change := range changes {
		if e.publisher != nil {
			if err := e.publisher.PublishStatusChanged(ctx, change); err != nil {
				e.logger.WithError(err).WithFields(logrus.Fields{
					"entity":    change.Entity,
					"entity_id": change.EntityID,
				}).Error("Failed to publish status change")
			}
		}
		if e.broadcaster != nil {
			e.broadcaster.Broadcast("status_changed", change, topicFor(change))
		}
	}
}

// Position pushes a live coordinate update to subscribers of the shipment.
func (e *Emitter) Position(shipmentID int64, lat, lon float64) {
	if e == nil || e.broadcaster == nil {
		return
	}
	e.broadcaster.Broadcast("shipment_position", map[string]interface{}{
		"shipment_id": shipmentID,
		"latitude":    lat,
		"longitude":   lon,
	}, ShipmentTopic(shipmentID))
}

func topicFor(c StatusChangedEvent) string {
	if c.ShipmentID != 0 {
		return ShipmentTopic(c.ShipmentID)
	}
	return OrderTopic(c.OrderID)
}

// OrderTopic and ShipmentTopic name the websocket subscriptions.
func OrderTopic(id int64) string {
	return "order:" + strconv.FormatInt(id, 10)
}

func ShipmentTopic(id int64) string {
	return "shipment:" + strconv.FormatInt(id, 10)
}
