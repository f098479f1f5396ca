package services

import (
	"auction-engine/internal/domain"
	"auction-engine/pkg/logger"
	"auction-engine/pkg/utils"
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// EventDispatcher carries committed outbox events and participant notifications
// out of the process. Nothing it does can undo a committed change.
type EventDispatcher struct {
	store     domain.Store
	publisher domain.EventPublisher
	notifier  domain.Notifier
	clock     domain.Clock
	log       logger.Logger
}

func NewEventDispatcher(store domain.Store, publisher domain.EventPublisher, notifier domain.Notifier,
	clock domain.Clock, log logger.Logger) *EventDispatcher {
	return &EventDispatcher{
		store:     store,
		publisher: publisher,
		notifier:  notifier,
		clock:     clock,
		log:       log,
	}
}

func newAuctionEvent(auctionID string, eventType domain.EventType, payload any, at time.Time) (*domain.AuctionEvent, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s event: %w", eventType, err)
	}
	return &domain.AuctionEvent{
		ID:        utils.GenerateID("evt"),
		AuctionID: auctionID,
		Type:      eventType,
		Payload:   data,
		CreatedAt: at,
	}, nil
}

// appendEvent builds an event and stores it in the caller's transaction.
func appendEvent(ctx context.Context, repo domain.Repository, auctionID string, eventType domain.EventType,
	payload any, at time.Time) (*domain.AuctionEvent, error) {
	event, err := newAuctionEvent(auctionID, eventType, payload, at)
	if err != nil {
		return nil, err
	}
	if err := repo.AppendEvent(ctx, event); err != nil {
		return nil, err
	}
	return event, nil
}

// Dispatch publishes events that were just committed. Failures are logged and left for Relay.
func (d *EventDispatcher) Dispatch(ctx context.Context, events ...*domain.AuctionEvent) {
	for _, event := range events {
		if event == nil {
			continue
		}
		d.publish(ctx, event)
	}
}

// Relay republishes events still unpublished after olderThan. It returns how many were published.
func (d *EventDispatcher) Relay(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	events, err := d.store.ListUnpublishedEvents(ctx, d.clock.Now().Add(-olderThan), limit)
	if err != nil {
		return 0, fmt.Errorf("event dispatcher: list unpublished: %w", err)
	}

	published := 0
	for _, event := range events {
		if d.publish(ctx, event) {
			published++
		}
	}

	if len(events) > 0 {
		d.log.Info("Relayed outbox events", "pending", len(events), "published", published)
	}
	return published, nil
}

func (d *EventDispatcher) publish(ctx context.Context, event *domain.AuctionEvent) bool {
	if err := d.publisher.Publish(ctx, event); err != nil {
		d.log.Error("Failed to publish auction event", "event_id", event.ID,
			"auction_id", event.AuctionID, "type", event.Type, "error", err)
		return false
	}

	if err := d.store.MarkEventPublished(ctx, event.ID, d.clock.Now()); err != nil {
		d.log.Warn("Failed to mark event published", "event_id", event.ID, "error", err)
	}
	return true
}

// Notify hands a notification to the notifier without waiting on the result for correctness.
func (d *EventDispatcher) Notify(ctx context.Context, notificationType domain.NotificationType,
	auctionID string, userIDs []string, data map[string]any) {
	if len(userIDs) == 0 {
		return
	}

	n := &domain.Notification{
		Type:      notificationType,
		AuctionID: auctionID,
		UserIDs:   userIDs,
		Data:      data,
		CreatedAt: d.clock.Now(),
	}
	if err := d.notifier.Notify(ctx, n); err != nil {
		d.log.Error("Failed to send notification", "type", notificationType,
			"auction_id", auctionID, "error", err)
	}
}

// LogNotifier records notifications in the log; used when no broker is configured.
type LogNotifier struct {
	log logger.Logger
}

func NewLogNotifier(log logger.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Notify(_ context.Context, notification *domain.Notification) error {
	n.log.Info("Notification", "type", notification.Type, "auction_id", notification.AuctionID,
		"user_ids", notification.UserIDs)
	return nil
}
