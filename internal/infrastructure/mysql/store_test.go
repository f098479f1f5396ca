package mysql

import (
	"auction-engine/internal/domain"
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	gomysql "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/require"
)

var testStart = time.Date(2030, 1, 2, 10, 0, 0, 0, time.UTC)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(db), mock
}

func auctionRow(id string) *sqlmock.Rows {
	return sqlmock.NewRows(auctionColumns).AddRow(
		id, "p1", "owner", "pending", testStart, testStart.Add(time.Hour),
		int64(100), 1, "new", 2, 10,
		nil, nil, false, false, testStart.Add(-48*time.Hour), testStart.Add(-48*time.Hour))
}

func TestRepository_GetAuction(t *testing.T) {
	ctx := context.Background()
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM auctions WHERE id = ?")).
		WithArgs("a1").
		WillReturnRows(auctionRow("a1"))

	auction, err := store.GetAuction(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, "a1", auction.ID)
	require.Equal(t, domain.AuctionPending, auction.Status)
	require.Equal(t, int64(100), auction.MinBid)
	require.Nil(t, auction.FinalBid)
	require.Nil(t, auction.WinnerID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_GetAuctionNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM auctions WHERE id = ?")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := store.GetAuction(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrAuctionNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_ReadRetriesOnceOnInvalidConn(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT owner_id FROM products")).
		WillReturnError(gomysql.ErrInvalidConn)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT owner_id FROM products")).
		WillReturnRows(sqlmock.NewRows([]string{"owner_id"}).AddRow("u1"))

	owner, err := store.GetProductOwner(context.Background(), "p1")
	require.NoError(t, err)
	require.Equal(t, "u1", owner)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_GetProductOwnerNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT owner_id FROM products")).
		WillReturnError(sql.ErrNoRows)

	_, err := store.GetProductOwner(context.Background(), "p1")
	require.ErrorIs(t, err, domain.ErrProductNotFound)
}

func TestRepository_HighBidWithoutLockOutsideTx(t *testing.T) {
	store, mock := newMockStore(t)

	query := "SELECT COALESCE(MAX(b.amount), a.min_bid - 1) FROM auctions a " +
		"LEFT JOIN bids b ON b.auction_id = a.id WHERE a.id = ? GROUP BY a.id, a.min_bid"
	mock.ExpectQuery("^" + regexp.QuoteMeta(query) + "$").
		WithArgs("a1").
		WillReturnRows(sqlmock.NewRows([]string{"high"}).AddRow(int64(99)))

	high, err := store.GetCurrentHighBid(context.Background(), "a1")
	require.NoError(t, err)
	require.Equal(t, int64(99), high)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_WithTxPlacesBidUnderLock(t *testing.T) {
	ctx := context.Background()
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM auctions WHERE id = ? FOR UPDATE")).
		WithArgs("a1").
		WillReturnRows(auctionRow("a1"))
	mock.ExpectQuery(regexp.QuoteMeta("COALESCE(MAX(b.amount), a.min_bid - 1)") + ".*FOR SHARE").
		WithArgs("a1").
		WillReturnRows(sqlmock.NewRows([]string{"high"}).AddRow(int64(99)))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM participants")).
		WithArgs("a1", "u1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("joined"))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO bids")).
		WithArgs("b1", "a1", "u1", int64(100), testStart).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.WithTx(ctx, func(repo domain.Repository) error {
		bc, err := repo.GetAuctionForBid(ctx, "a1", "u1")
		if err != nil {
			return err
		}
		require.Equal(t, int64(99), bc.CurrentHighBid)
		require.True(t, bc.IsParticipant)
		require.Equal(t, domain.ParticipantJoined, bc.ParticipantStatus)

		return repo.InsertBid(ctx, &domain.Bid{ID: "b1", AuctionID: "a1", BidderID: "u1", Amount: 100, CreatedAt: testStart})
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_WithTxTranslatesErrors(t *testing.T) {
	tests := []struct {
		name  string
		setup func(mock sqlmock.Sqlmock)
		run   func(ctx context.Context, repo domain.Repository) error
		want  error
	}{
		{
			name: "duplicate bid amount",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(regexp.QuoteMeta("INSERT INTO bids")).
					WillReturnError(&gomysql.MySQLError{Number: errDuplicateEntry, Message: "Duplicate entry"})
			},
			run: func(ctx context.Context, repo domain.Repository) error {
				return repo.InsertBid(ctx, &domain.Bid{ID: "b2", AuctionID: "a1", BidderID: "u2", Amount: 100, CreatedAt: testStart})
			},
			want: domain.ErrBidConflict,
		},
		{
			name: "duplicate participant",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(regexp.QuoteMeta("INSERT INTO participants")).
					WillReturnError(&gomysql.MySQLError{Number: errDuplicateEntry})
			},
			run: func(ctx context.Context, repo domain.Repository) error {
				return repo.InsertParticipant(ctx, &domain.Participant{UserID: "u1", AuctionID: "a1", Status: domain.ParticipantJoined})
			},
			want: domain.ErrAlreadyJoined,
		},
		{
			name: "deadlock",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
					WillReturnError(&gomysql.MySQLError{Number: errDeadlock, Message: "Deadlock found"})
			},
			run: func(ctx context.Context, repo domain.Repository) error {
				_, err := repo.CountUnfinishedByOwner(ctx, "owner")
				return err
			},
			want: domain.ErrConcurrentUpdate,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mock := newMockStore(t)
			mock.ExpectBegin()
			tt.setup(mock)
			mock.ExpectRollback()

			err := store.WithTx(context.Background(), func(repo domain.Repository) error {
				return tt.run(context.Background(), repo)
			})
			require.ErrorIs(t, err, tt.want)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestRepository_SetTerminal(t *testing.T) {
	ctx := context.Background()
	store, mock := newMockStore(t)
	winner := "u1"
	final := int64(150)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE auctions SET status = ?, is_finished = ?, updated_at = ?, winner_id = ?, final_bid = ?")).
		WithArgs("completed", true, testStart, "u1", int64(150), "a1", false, false).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE auctions SET status = ?, is_cancelled = ?")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	applied, err := store.SetTerminal(ctx, "a1", domain.TerminalTransition{
		Field: domain.TerminalFinish, Status: domain.AuctionCompleted,
		WinnerID: &winner, FinalBid: &final, At: testStart,
	})
	require.NoError(t, err)
	require.True(t, applied)

	applied, err = store.SetTerminal(ctx, "a1", domain.TerminalTransition{
		Field: domain.TerminalCancel, Status: domain.AuctionCancelled, At: testStart,
	})
	require.NoError(t, err)
	require.False(t, applied)

	_, err = store.SetTerminal(ctx, "a1", domain.TerminalTransition{Field: "status"})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_ListUnpublishedEvents(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM auction_events WHERE published_at IS NULL AND created_at <= ?")).
		WithArgs(testStart).
		WillReturnRows(sqlmock.NewRows([]string{"id", "auction_id", "event_type", "payload", "created_at"}).
			AddRow("e1", "a1", "bid", []byte(`{"amount":100}`), testStart.Add(-time.Minute)).
			AddRow("e2", "a1", "closed", []byte(`{}`), testStart))

	events, err := store.ListUnpublishedEvents(context.Background(), testStart, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, domain.EventBid, events[0].Type)
	require.JSONEq(t, `{"amount":100}`, string(events[0].Payload))
	require.True(t, events[1].Type.IsTerminal())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_DeleteParticipant(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM participants WHERE auction_id = ? AND user_id = ?")).
		WithArgs("a1", "u1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	removed, err := store.DeleteParticipant(context.Background(), "u1", "a1")
	require.NoError(t, err)
	require.True(t, removed)
	require.NoError(t, mock.ExpectationsWereMet())
}
