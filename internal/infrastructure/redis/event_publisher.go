package redis

import (
	"auction-engine/internal/domain"
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
)

const auctionChannelPrefix = "auction:"

// AuctionChannel is the pub/sub channel carrying one auction's events.
func AuctionChannel(auctionID string) string {
	return auctionChannelPrefix + auctionID
}

type EventPublisherImpl struct {
	client *redis.Client
}

var _ domain.EventPublisher = (*EventPublisherImpl)(nil)

func NewEventPublisher(client *redis.Client) *EventPublisherImpl {
	return &EventPublisherImpl{client: client}
}

func (r *EventPublisherImpl) Publish(ctx context.Context, event *domain.AuctionEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("redis: encode event %s: %w", event.ID, err)
	}

	return r.client.Publish(ctx, AuctionChannel(event.AuctionID), data).Err()
}
