package mysql

import (
	"auction-engine/internal/domain"
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

var bidColumns = []string{"id", "auction_id", "bidder_id", "amount", "created_at"}

// highBidQuery is the only definition of an auction's current high bid:
// the largest stored amount, or min_bid-1 when nothing has been bid.
func (r *Repository) highBidQuery(auctionID string) sq.SelectBuilder {
	b := r.sb.Select("COALESCE(MAX(b.amount), a.min_bid - 1)").
		From("auctions a").
		LeftJoin("bids b ON b.auction_id = a.id").
		Where(sq.Eq{"a.id": auctionID}).
		GroupBy("a.id", "a.min_bid")
	return r.locking(b, "FOR SHARE")
}

func (r *Repository) GetCurrentHighBid(ctx context.Context, auctionID string) (int64, error) {
	query, args, err := r.highBidQuery(auctionID).ToSql()
	if err != nil {
		return 0, fmt.Errorf("mysql: build high bid: %w", err)
	}

	var high int64
	err = r.readOnce(func() error {
		return r.q.QueryRowContext(ctx, query, args...).Scan(&high)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return 0, domain.ErrAuctionNotFound
	}
	if err != nil {
		return 0, translate(fmt.Errorf("mysql: high bid for %s: %w", auctionID, err))
	}
	return high, nil
}

func (r *Repository) GetAuctionForBid(ctx context.Context, auctionID, bidderID string) (*domain.BidContext, error) {
	auction, err := r.LockAuction(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	high, err := r.GetCurrentHighBid(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	status, ok, err := r.GetParticipantStatus(ctx, bidderID, auctionID)
	if err != nil {
		return nil, err
	}

	return &domain.BidContext{
		Auction:           *auction,
		CurrentHighBid:    high,
		ParticipantStatus: status,
		IsParticipant:     ok,
	}, nil
}

func (r *Repository) GetHighestBid(ctx context.Context, auctionID string) (*domain.Bid, error) {
	query, args, err := r.sb.Select(bidColumns...).
		From("bids").
		Where(sq.Eq{"auction_id": auctionID}).
		OrderBy("amount DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("mysql: build highest bid: %w", err)
	}

	var bid domain.Bid
	err = r.readOnce(func() error {
		return r.q.QueryRowContext(ctx, query, args...).
			Scan(&bid.ID, &bid.AuctionID, &bid.BidderID, &bid.Amount, &bid.CreatedAt)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, translate(fmt.Errorf("mysql: highest bid for %s: %w", auctionID, err))
	}
	return &bid, nil
}

// InsertBid relies on the (auction_id, amount) unique key to reject a second bid at the same amount.
func (r *Repository) InsertBid(ctx context.Context, bid *domain.Bid) error {
	query, args, err := r.sb.Insert("bids").
		Columns(bidColumns...).
		Values(bid.ID, bid.AuctionID, bid.BidderID, bid.Amount, bid.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("mysql: build insert bid: %w", err)
	}

	if _, err := r.q.ExecContext(ctx, query, args...); err != nil {
		switch mysqlErrorNumber(err) {
		case errDuplicateEntry:
			return fmt.Errorf("mysql: bid %d on %s: %w", bid.Amount, bid.AuctionID, domain.ErrBidConflict)
		case errForeignKeyParent:
			return domain.ErrAuctionNotFound
		}
		return translate(fmt.Errorf("mysql: insert bid: %w", err))
	}
	return nil
}

func (r *Repository) ListBids(ctx context.Context, auctionID string, limit int) ([]*domain.Bid, error) {
	query, args, err := r.sb.Select(bidColumns...).
		From("bids").
		Where(sq.Eq{"auction_id": auctionID}).
		OrderBy("amount DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("mysql: build list bids: %w", err)
	}

	var bids []*domain.Bid
	err = r.readOnce(func() error {
		bids = bids[:0]
		rows, err := r.q.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var bid domain.Bid
			if err := rows.Scan(&bid.ID, &bid.AuctionID, &bid.BidderID, &bid.Amount, &bid.CreatedAt); err != nil {
				return err
			}
			bids = append(bids, &bid)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("mysql: list bids for %s: %w", auctionID, err)
	}
	return bids, nil
}
