package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"auction-engine/internal/domain"
	"auction-engine/pkg/logger"

	"github.com/go-redis/redis/v8"
)

type RedisEventSubscriber struct {
	client *redis.Client
	log    logger.Logger
}

var _ domain.EventSubscriber = (*RedisEventSubscriber)(nil)

func NewRedisEventSubscriber(client *redis.Client, log logger.Logger) *RedisEventSubscriber {
	return &RedisEventSubscriber{
		client: client,
		log:    log,
	}
}

// SubscribeToAuctionEvents blocks, feeding every auction's events to handler until ctx ends.
func (r *RedisEventSubscriber) SubscribeToAuctionEvents(ctx context.Context, handler domain.EventHandler) error {
	pubsub := r.client.PSubscribe(ctx, auctionChannelPrefix+"*")
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("redis: subscribe to auction events: %w", err)
	}
	ch := pubsub.Channel()

	r.log.Info("Subscribed to auction events")

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("redis: auction event channel closed")
			}
			event, err := r.parseEventData(msg.Payload)
			if err != nil {
				r.log.Error("Failed to parse event", "channel", msg.Channel, "error", err)
				continue
			}

			if err := handler(event); err != nil {
				r.log.Error("Failed to handle event", "event_id", event.ID, "auction_id", event.AuctionID, "error", err)
			}

		case <-ctx.Done():
			r.log.Info("Event subscriber stopped")
			return ctx.Err()
		}
	}
}

func (r *RedisEventSubscriber) parseEventData(payload string) (*domain.AuctionEvent, error) {
	var event domain.AuctionEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return nil, fmt.Errorf("invalid event payload: %w", err)
	}
	if event.AuctionID == "" || event.Type == "" {
		return nil, fmt.Errorf("invalid event: missing auction id or type")
	}
	return &event, nil
}
