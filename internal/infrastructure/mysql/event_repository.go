package mysql

import (
	"auction-engine/internal/domain"
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

func (r *Repository) AppendEvent(ctx context.Context, event *domain.AuctionEvent) error {
	query, args, err := r.sb.Insert("auction_events").
		Columns("id", "auction_id", "event_type", "payload", "created_at").
		Values(event.ID, event.AuctionID, string(event.Type), []byte(event.Payload), event.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("mysql: build insert event: %w", err)
	}

	if _, err := r.q.ExecContext(ctx, query, args...); err != nil {
		return translate(fmt.Errorf("mysql: insert event %s: %w", event.ID, err))
	}
	return nil
}

func (r *Repository) ListUnpublishedEvents(ctx context.Context, before time.Time, limit int) ([]*domain.AuctionEvent, error) {
	query, args, err := r.sb.Select("id", "auction_id", "event_type", "payload", "created_at").
		From("auction_events").
		Where(sq.Eq{"published_at": nil}).
		Where(sq.LtOrEq{"created_at": before}).
		OrderBy("created_at ASC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("mysql: build unpublished events: %w", err)
	}

	var events []*domain.AuctionEvent
	err = r.readOnce(func() error {
		events = events[:0]
		rows, err := r.q.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var (
				event     domain.AuctionEvent
				eventType string
				payload   []byte
			)
			if err := rows.Scan(&event.ID, &event.AuctionID, &eventType, &payload, &event.CreatedAt); err != nil {
				return err
			}
			event.Type = domain.EventType(eventType)
			event.Payload = payload
			events = append(events, &event)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("mysql: list unpublished events: %w", err)
	}
	return events, nil
}

func (r *Repository) MarkEventPublished(ctx context.Context, eventID string, at time.Time) error {
	query, args, err := r.sb.Update("auction_events").
		Set("published_at", at).
		Where(sq.Eq{"id": eventID, "published_at": nil}).
		ToSql()
	if err != nil {
		return fmt.Errorf("mysql: build mark event: %w", err)
	}

	if _, err := r.q.ExecContext(ctx, query, args...); err != nil {
		return translate(fmt.Errorf("mysql: mark event %s: %w", eventID, err))
	}
	return nil
}
