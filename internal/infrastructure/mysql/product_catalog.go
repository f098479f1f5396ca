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

// GetProductOwner reads the products table maintained by the catalog service.
func (s *Store) GetProductOwner(ctx context.Context, productID string) (string, error) {
	query, args, err := s.sb.Select("owner_id").
		From("products").
		Where(sq.Eq{"id": productID}).
		ToSql()
	if err != nil {
		return "", fmt.Errorf("mysql: build product owner: %w", err)
	}

	var ownerID string
	err = s.readOnce(func() error {
		return s.db.QueryRowContext(ctx, query, args...).Scan(&ownerID)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return "", domain.ErrProductNotFound
	}
	if err != nil {
		return "", fmt.Errorf("mysql: product %s: %w", productID, err)
	}
	return ownerID, nil
}

// AddProduct upserts a product row; used by auctionctl to seed the catalog.
func (s *Store) AddProduct(ctx context.Context, productID, ownerID, name string) error {
	query, args, err := s.sb.Insert("products").
		Columns("id", "owner_id", "name", "created_at").
		Values(productID, ownerID, name, time.Now().UTC()).
		Suffix("ON DUPLICATE KEY UPDATE owner_id = VALUES(owner_id), name = VALUES(name)").
		ToSql()
	if err != nil {
		return fmt.Errorf("mysql: build insert product: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("mysql: insert product %s: %w", productID, err)
	}
	return nil
}
