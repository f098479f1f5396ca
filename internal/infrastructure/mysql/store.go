package mysql

import (
	"auction-engine/internal/domain"
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	gomysql "github.com/go-sql-driver/mysql"
)

const (
	errDuplicateEntry   = 1062
	errLockWaitTimeout  = 1205
	errDeadlock         = 1213
	errForeignKeyParent = 1452
)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Repository implements domain.Repository over a connection or a transaction.
type Repository struct {
	q    queryer
	sb   sq.StatementBuilderType
	inTx bool
}

var _ domain.Repository = (*Repository)(nil)

type Store struct {
	*Repository
	db *sql.DB
}

var (
	_ domain.Store          = (*Store)(nil)
	_ domain.ProductCatalog = (*Store)(nil)
)

func NewStore(db *sql.DB) *Store {
	return &Store{
		Repository: &Repository{q: db, sb: sq.StatementBuilder.PlaceholderFormat(sq.Question)},
		db:         db,
	}
}

// WithTx runs fn inside a REPEATABLE READ transaction. Row locks taken by
// LockAuction serialize writers of the same auction until commit.
func (s *Store) WithTx(ctx context.Context, fn func(repo domain.Repository) error) (err error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead})
	if err != nil {
		return fmt.Errorf("mysql: begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(&Repository{q: tx, sb: s.sb, inTx: true}); err != nil {
		return translate(err)
	}
	if err = tx.Commit(); err != nil {
		return translate(fmt.Errorf("mysql: commit: %w", err))
	}
	return nil
}

// readOnce retries fn a single time on a dropped connection, outside transactions only.
func (r *Repository) readOnce(fn func() error) error {
	err := fn()
	if err != nil && !r.inTx && isBadConn(err) {
		err = fn()
	}
	return err
}

// locking appends clause inside a transaction so the read sees, and holds, the latest committed rows.
func (r *Repository) locking(b sq.SelectBuilder, clause string) sq.SelectBuilder {
	if r.inTx {
		return b.Suffix(clause)
	}
	return b
}

func isBadConn(err error) bool {
	return errors.Is(err, driver.ErrBadConn) || errors.Is(err, gomysql.ErrInvalidConn)
}

func mysqlErrorNumber(err error) uint16 {
	var myErr *gomysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number
	}
	return 0
}

// translate maps lock conflicts to domain.ErrConcurrentUpdate and leaves everything else intact.
func translate(err error) error {
	if err == nil {
		return nil
	}
	var domainErr *domain.Error
	if errors.As(err, &domainErr) {
		return err
	}
	switch mysqlErrorNumber(err) {
	case errDeadlock, errLockWaitTimeout:
		return fmt.Errorf("%w: %v", domain.ErrConcurrentUpdate, err)
	}
	return err
}
