package services

import (
	"context"
	"time"

	"auction-engine/internal/domain"
	"auction-engine/pkg/logger"
)

// LiveMessage is what websocket viewers of an auction receive for each event.
type LiveMessage struct {
	Type      domain.EventType `json:"type"`
	EventID   string           `json:"event_id"`
	AuctionID string           `json:"auction_id"`
	Payload   any              `json:"payload"`
	Timestamp time.Time        `json:"timestamp"`
}

type EventListener struct {
	broadcaster       domain.AuctionBroadcaster
	connectionManager domain.ConnectionManager
	log               logger.Logger
}

func NewEventListener(connectionManager domain.ConnectionManager,
	broadcaster domain.AuctionBroadcaster, log logger.Logger) *EventListener {
	return &EventListener{
		broadcaster:       broadcaster,
		connectionManager: connectionManager,
		log:               log,
	}
}

func (el *EventListener) Start(ctx context.Context, subscriber domain.EventSubscriber) error {
	el.log.Info("Starting event listener")
	return subscriber.SubscribeToAuctionEvents(ctx, el.handleAuctionEvent)
}

func (el *EventListener) handleAuctionEvent(event *domain.AuctionEvent) error {
	el.log.Debug("Handling auction event", "type", event.Type, "auction_id", event.AuctionID)

	err := el.broadcaster.BroadcastToAuction(context.Background(), event.AuctionID, LiveMessage{
		Type:      event.Type,
		EventID:   event.ID,
		AuctionID: event.AuctionID,
		Payload:   event.Payload,
		Timestamp: event.CreatedAt,
	})
	if err != nil {
		el.log.Error("Failed to broadcast auction event", "auction_id", event.AuctionID, "error", err)
		return err
	}

	if !event.Type.IsTerminal() {
		return nil
	}

	if err := el.connectionManager.CloseAndUnregisterConnections(event.AuctionID); err != nil {
		el.log.Error("Failed to finalize connections for auction", "auction_id",
			event.AuctionID, "error", err)
		return err
	}
	return nil
}
