package mysql

import (
	"auction-engine/internal/domain"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

var auctionColumns = []string{
	"id", "product_id", "owner_id", "status", "starts_at", "ends_at",
	"min_bid", "lot", "item_condition", "min_bidders", "max_bidders",
	"final_bid", "winner_id", "is_cancelled", "is_finished", "created_at", "updated_at",
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAuction(row rowScanner) (*domain.Auction, error) {
	var (
		auction  domain.Auction
		status   string
		finalBid sql.NullInt64
		winnerID sql.NullString
	)
	err := row.Scan(
		&auction.ID, &auction.ProductID, &auction.OwnerID, &status,
		&auction.StartsAt, &auction.EndsAt,
		&auction.MinBid, &auction.Lot, &auction.Condition,
		&auction.MinBidders, &auction.MaxBidders,
		&finalBid, &winnerID, &auction.IsCancelled, &auction.IsFinished,
		&auction.CreatedAt, &auction.UpdatedAt)
	if err != nil {
		return nil, err
	}

	auction.Status = domain.AuctionStatus(status)
	if finalBid.Valid {
		auction.FinalBid = &finalBid.Int64
	}
	if winnerID.Valid {
		auction.WinnerID = &winnerID.String
	}
	return &auction, nil
}

func (r *Repository) CreateAuction(ctx context.Context, auction *domain.Auction) error {
	query, args, err := r.sb.Insert("auctions").
		Columns(auctionColumns...).
		Values(
			auction.ID, auction.ProductID, auction.OwnerID, string(auction.Status),
			auction.StartsAt, auction.EndsAt,
			auction.MinBid, auction.Lot, auction.Condition,
			auction.MinBidders, auction.MaxBidders,
			auction.FinalBid, auction.WinnerID, auction.IsCancelled, auction.IsFinished,
			auction.CreatedAt, auction.UpdatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("mysql: build insert auction: %w", err)
	}

	if _, err := r.q.ExecContext(ctx, query, args...); err != nil {
		switch mysqlErrorNumber(err) {
		case errForeignKeyParent:
			return fmt.Errorf("mysql: insert auction %s: %w", auction.ID, domain.ErrProductNotFound)
		}
		return translate(fmt.Errorf("mysql: insert auction %s: %w", auction.ID, err))
	}
	return nil
}

func (r *Repository) GetAuction(ctx context.Context, auctionID string) (*domain.Auction, error) {
	return r.getAuction(ctx, auctionID, r.sb.Select(auctionColumns...))
}

func (r *Repository) LockAuction(ctx context.Context, auctionID string) (*domain.Auction, error) {
	return r.getAuction(ctx, auctionID, r.locking(r.sb.Select(auctionColumns...), "FOR UPDATE"))
}

func (r *Repository) getAuction(ctx context.Context, auctionID string, b sq.SelectBuilder) (*domain.Auction, error) {
	query, args, err := b.From("auctions").Where(sq.Eq{"id": auctionID}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("mysql: build select auction: %w", err)
	}

	var auction *domain.Auction
	err = r.readOnce(func() error {
		var scanErr error
		auction, scanErr = scanAuction(r.q.QueryRowContext(ctx, query, args...))
		return scanErr
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrAuctionNotFound
	}
	if err != nil {
		return nil, translate(fmt.Errorf("mysql: select auction %s: %w", auctionID, err))
	}
	return auction, nil
}

// CountUnfinishedByOwner locks the owner's open rows so concurrent registrations queue behind each other.
func (r *Repository) CountUnfinishedByOwner(ctx context.Context, ownerID string) (int, error) {
	return r.countOpen(ctx, sq.Eq{"owner_id": ownerID})
}

func (r *Repository) HasOpenAuctionForProduct(ctx context.Context, productID string) (bool, error) {
	n, err := r.countOpen(ctx, sq.Eq{"product_id": productID})
	return n > 0, err
}

func (r *Repository) countOpen(ctx context.Context, pred sq.Eq) (int, error) {
	b := r.sb.Select("COUNT(*)").
		From("auctions").
		Where(pred).
		Where(sq.Eq{"is_cancelled": false, "is_finished": false})
	query, args, err := r.locking(b, "FOR UPDATE").ToSql()
	if err != nil {
		return 0, fmt.Errorf("mysql: build count auctions: %w", err)
	}

	var n int
	err = r.readOnce(func() error {
		return r.q.QueryRowContext(ctx, query, args...).Scan(&n)
	})
	if err != nil {
		return 0, translate(fmt.Errorf("mysql: count open auctions: %w", err))
	}
	return n, nil
}

func (r *Repository) SetTerminal(ctx context.Context, auctionID string, t domain.TerminalTransition) (bool, error) {
	if t.Field != domain.TerminalCancel && t.Field != domain.TerminalFinish {
		return false, fmt.Errorf("mysql: unknown terminal field %q", t.Field)
	}

	b := r.sb.Update("auctions").
		Set("status", string(t.Status)).
		Set(string(t.Field), true).
		Set("updated_at", t.At)
	if t.Field == domain.TerminalFinish {
		b = b.Set("winner_id", t.WinnerID).Set("final_bid", t.FinalBid)
	}
	query, args, err := b.
		Where(sq.Eq{"id": auctionID, "is_cancelled": false, "is_finished": false}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("mysql: build terminal update: %w", err)
	}

	res, err := r.q.ExecContext(ctx, query, args...)
	if err != nil {
		return false, translate(fmt.Errorf("mysql: set %s on auction %s: %w", t.Field, auctionID, err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mysql: rows affected: %w", err)
	}
	return n == 1, nil
}

func (r *Repository) ListDueAuctions(ctx context.Context, now time.Time, limit int) ([]string, error) {
	query, args, err := r.sb.Select("id").
		From("auctions").
		Where(sq.Eq{"is_cancelled": false, "is_finished": false}).
		Where(sq.LtOrEq{"ends_at": now}).
		OrderBy("ends_at ASC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("mysql: build due auctions: %w", err)
	}

	var ids []string
	err = r.readOnce(func() error {
		ids = ids[:0]
		rows, err := r.q.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("mysql: list due auctions: %w", err)
	}
	return ids, nil
}
