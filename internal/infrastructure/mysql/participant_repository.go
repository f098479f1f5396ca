package mysql

import (
	"auction-engine/internal/domain"
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

func (r *Repository) GetParticipantStatus(ctx context.Context, userID, auctionID string) (domain.ParticipantStatus, bool, error) {
	query, args, err := r.sb.Select("status").
		From("participants").
		Where(sq.Eq{"user_id": userID, "auction_id": auctionID}).
		ToSql()
	if err != nil {
		return "", false, fmt.Errorf("mysql: build participant status: %w", err)
	}

	var status string
	err = r.readOnce(func() error {
		return r.q.QueryRowContext(ctx, query, args...).Scan(&status)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, translate(fmt.Errorf("mysql: participant %s on %s: %w", userID, auctionID, err))
	}
	return domain.ParticipantStatus(status), true, nil
}

func (r *Repository) CountJoinedParticipants(ctx context.Context, auctionID string) (int, error) {
	query, args, err := r.sb.Select("COUNT(*)").
		From("participants").
		Where(sq.Eq{"auction_id": auctionID, "status": string(domain.ParticipantJoined)}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("mysql: build count participants: %w", err)
	}

	var n int
	err = r.readOnce(func() error {
		return r.q.QueryRowContext(ctx, query, args...).Scan(&n)
	})
	if err != nil {
		return 0, translate(fmt.Errorf("mysql: count participants on %s: %w", auctionID, err))
	}
	return n, nil
}

func (r *Repository) InsertParticipant(ctx context.Context, p *domain.Participant) error {
	query, args, err := r.sb.Insert("participants").
		Columns("user_id", "auction_id", "status", "created_at").
		Values(p.UserID, p.AuctionID, string(p.Status), p.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("mysql: build insert participant: %w", err)
	}

	if _, err := r.q.ExecContext(ctx, query, args...); err != nil {
		switch mysqlErrorNumber(err) {
		case errDuplicateEntry:
			return domain.ErrAlreadyJoined
		case errForeignKeyParent:
			return domain.ErrAuctionNotFound
		}
		return translate(fmt.Errorf("mysql: insert participant: %w", err))
	}
	return nil
}

func (r *Repository) UpdateParticipantStatus(ctx context.Context, userID, auctionID string, status domain.ParticipantStatus) error {
	query, args, err := r.sb.Update("participants").
		Set("status", string(status)).
		Where(sq.Eq{"user_id": userID, "auction_id": auctionID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("mysql: build update participant: %w", err)
	}

	res, err := r.q.ExecContext(ctx, query, args...)
	if err != nil {
		return translate(fmt.Errorf("mysql: update participant: %w", err))
	}
	// MySQL reports changed rows, so an unchanged status also yields zero.
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		current, ok, err := r.GetParticipantStatus(ctx, userID, auctionID)
		if err != nil {
			return err
		}
		if !ok || current != status {
			return domain.ErrParticipantNotFound
		}
	}
	return nil
}

func (r *Repository) DeleteParticipant(ctx context.Context, userID, auctionID string) (bool, error) {
	query, args, err := r.sb.Delete("participants").
		Where(sq.Eq{"user_id": userID, "auction_id": auctionID}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("mysql: build delete participant: %w", err)
	}

	res, err := r.q.ExecContext(ctx, query, args...)
	if err != nil {
		return false, translate(fmt.Errorf("mysql: delete participant: %w", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mysql: rows affected: %w", err)
	}
	return n > 0, nil
}

func (r *Repository) ListParticipantIDs(ctx context.Context, auctionID string) ([]string, error) {
	query, args, err := r.sb.Select("user_id").
		From("participants").
		Where(sq.Eq{"auction_id": auctionID, "status": string(domain.ParticipantJoined)}).
		OrderBy("user_id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("mysql: build list participants: %w", err)
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
		return nil, fmt.Errorf("mysql: list participants on %s: %w", auctionID, err)
	}
	return ids, nil
}
