package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// NotificationPublisher publishes deal workflow events to NATS for
// consumption by downstream notification and dashboard services.
//
// Subject convention: notifications.deals.<event_type>
// Event types: deal_submitted, deal_status_changed, approval_required,
//              approval_decided, deal_revision_requested, deal_signed,
//              deal_lost
//
// All publish operations are non-fatal: errors are logged but never
// propagated, so notification failures never interrupt workflow operations.
type NotificationPublisher struct {
	conn *nats.Conn
	log  zerolog.Logger
}

// DealEvent is the JSON schema published to NATS.
type DealEvent struct {
	EventType string                 `json:"event_type"`
	DealID    string                 `json:"deal_id"`
	ActorID   string                 `json:"actor_id"`
	ActorRole string                 `json:"actor_role,omitempty"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
}

// NewNotificationPublisher connects to NATS and returns a publisher. An
// empty URL returns a disabled publisher whose methods are no-ops.
func NewNotificationPublisher(url string, log zerolog.Logger) (*NotificationPublisher, error) {
	if url == "" {
		return &NotificationPublisher{log: log}, nil
	}

	conn, err := nats.Connect(url,
		nats.Name("be-deal-approvals"),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return &NotificationPublisher{conn: conn, log: log}, nil
}

// Close drains the connection.
func (p *NotificationPublisher) Close() {
	if p.conn != nil {
		_ = p.conn.Drain()
	}
}

// PublishDealEvent publishes a deal workflow event.
// Subject: notifications.deals.<eventType>
func (p *NotificationPublisher) PublishDealEvent(ctx context.Context, eventType, dealID, actorID, actorRole string, payload map[string]interface{}) {
	if p.conn == nil {
		return
	}

	event := &DealEvent{
		EventType: eventType,
		DealID:    dealID,
		ActorID:   actorID,
		ActorRole: actorRole,
		Payload:   payload,
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.log.Warn().Err(err).Str("event_type", eventType).Msg("notification: failed to marshal event")
		return
	}

	subject := fmt.Sprintf("notifications.deals.%s", eventType)
	if err := p.conn.Publish(subject, data); err != nil {
		p.log.Warn().Err(err).
			Str("subject", subject).
			Str("deal_id", dealID).
			Msg("notification: failed to publish NATS event (non-fatal)")
		return
	}

	p.log.Debug().
		Str("subject", subject).
		Str("deal_id", dealID).
		Msg("notification: event published")
}
