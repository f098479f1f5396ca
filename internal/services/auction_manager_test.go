package services

import (
	"auction-engine/internal/domain"
	"auction-engine/internal/domain/mock"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestAuctionManager_RegisterAuction(t *testing.T) {
	env := newTestEnv(t, nil)

	auction := env.registerAuction(t, "owner")

	require.Equal(t, domain.AuctionPending, auction.Status)
	require.Equal(t, "owner", auction.OwnerID)
	require.Equal(t, defaultStart, auction.StartsAt)
	require.Equal(t, defaultStart.Add(time.Hour), auction.EndsAt)
	require.False(t, auction.IsTerminal())

	stored, err := env.auctions.GetAuction(context.Background(), auction.ID)
	require.NoError(t, err)
	require.Equal(t, auction.ID, stored.ID)

	high, err := env.bids.GetCurrentHighBid(context.Background(), auction.ID)
	require.NoError(t, err)
	require.Equal(t, int64(9999), high)
}

func TestAuctionManager_RegisterAuctionValidation(t *testing.T) {
	tests := []struct {
		name   string
		caller domain.Caller
		mutate func(in *RegisterAuctionInput)
		want   error
	}{
		{
			name:   "staff cannot own auctions",
			caller: admin("owner"),
			want:   domain.ErrStaffCannotOwn,
		},
		{
			name:   "moderator cannot own auctions",
			caller: domain.Caller{UserID: "owner", Role: domain.RoleModerator},
			want:   domain.ErrStaffCannotOwn,
		},
		{
			name:   "caller must own the product",
			caller: user("someone-else"),
			want:   domain.ErrNotProductOwner,
		},
		{
			name:   "missing caller",
			caller: domain.Caller{},
			want:   domain.ErrUnauthenticated,
		},
		{
			name:   "unknown product",
			caller: user("owner"),
			mutate: func(in *RegisterAuctionInput) { in.ProductID = "missing" },
			want:   domain.ErrProductNotFound,
		},
		{
			name:   "start less than 24h away",
			caller: user("owner"),
			mutate: func(in *RegisterAuctionInput) { in.StartsAt = baseTime.Add(23*time.Hour + 45*time.Minute) },
			want:   domain.ErrInvalidSchedule,
		},
		{
			name:   "start off the 15 minute grid",
			caller: user("owner"),
			mutate: func(in *RegisterAuctionInput) { in.StartsAt = defaultStart.Add(10 * time.Minute) },
			want:   domain.ErrInvalidSchedule,
		},
		{
			name:   "start with seconds",
			caller: user("owner"),
			mutate: func(in *RegisterAuctionInput) { in.StartsAt = defaultStart.Add(30 * time.Second) },
			want:   domain.ErrInvalidSchedule,
		},
		{
			name:   "start with milliseconds",
			caller: user("owner"),
			mutate: func(in *RegisterAuctionInput) { in.StartsAt = defaultStart.Add(time.Millisecond) },
			want:   domain.ErrInvalidSchedule,
		},
		{
			name:   "non positive min bid",
			caller: user("owner"),
			mutate: func(in *RegisterAuctionInput) { in.MinBid = 0 },
			want:   domain.ErrInvalidArgument,
		},
		{
			name:   "empty lot",
			caller: user("owner"),
			mutate: func(in *RegisterAuctionInput) { in.Lot = 0 },
			want:   domain.ErrInvalidArgument,
		},
		{
			name:   "missing condition",
			caller: user("owner"),
			mutate: func(in *RegisterAuctionInput) { in.Condition = "  " },
			want:   domain.ErrInvalidArgument,
		},
		{
			name:   "inverted bidder bounds",
			caller: user("owner"),
			mutate: func(in *RegisterAuctionInput) { in.MinBidders, in.MaxBidders = 5, 2 },
			want:   domain.ErrInvalidArgument,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil)
			env.store.AddProduct("p1", "owner")

			in := validInput("p1")
			if tt.mutate != nil {
				tt.mutate(&in)
			}
			_, err := env.auctions.RegisterAuction(context.Background(), tt.caller, in)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestAuctionManager_RegistrationCap(t *testing.T) {
	env := newTestEnv(t, nil)

	var first *domain.Auction
	for i := 0; i < domain.MaxUnfinishedPerOwner; i++ {
		a := env.registerAuction(t, "owner")
		if first == nil {
			first = a
		}
	}

	env.store.AddProduct("sixth", "owner")
	_, err := env.auctions.RegisterAuction(context.Background(), user("owner"), validInput("sixth"))
	require.ErrorIs(t, err, domain.ErrTooManyAuctions)
	requireKind(t, err, domain.KindForbidden)

	// a cancelled auction no longer counts against the cap
	require.NoError(t, env.auctions.CancelAuction(context.Background(), user("owner"), first.ID))
	_, err = env.auctions.RegisterAuction(context.Background(), user("owner"), validInput("sixth"))
	require.NoError(t, err)
}

func TestAuctionManager_OneOpenAuctionPerProduct(t *testing.T) {
	env := newTestEnv(t, nil)
	env.store.AddProduct("p1", "owner")

	_, err := env.auctions.RegisterAuction(context.Background(), user("owner"), validInput("p1"))
	require.NoError(t, err)

	in := validInput("p1")
	in.StartsAt = defaultStart.Add(24 * time.Hour)
	_, err = env.auctions.RegisterAuction(context.Background(), user("owner"), in)
	require.ErrorIs(t, err, domain.ErrProductInAuction)
	requireKind(t, err, domain.KindConflict)
}

func TestAuctionManager_CancelAuction(t *testing.T) {
	var notified *domain.Notification
	env := newTestEnv(t, func(p *mock.MockEventPublisher, n *mock.MockNotifier) {
		p.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
		n.EXPECT().Notify(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, notification *domain.Notification) error {
				notified = notification
				return nil
			}).Times(1)
	})
	ctx := context.Background()
	auction := env.registerAuction(t, "owner")
	env.join(t, auction.ID, "alice", "bob")

	err := env.auctions.CancelAuction(ctx, user("alice"), auction.ID)
	require.ErrorIs(t, err, domain.ErrNotAuctionOwner)

	require.NoError(t, env.auctions.CancelAuction(ctx, user("owner"), auction.ID))

	stored, err := env.auctions.GetAuction(ctx, auction.ID)
	require.NoError(t, err)
	require.True(t, stored.IsCancelled)
	require.Equal(t, domain.AuctionCancelled, stored.Status)

	require.NotNil(t, notified)
	require.Equal(t, domain.NotifyAuctionCancelled, notified.Type)
	require.ElementsMatch(t, []string{"alice", "bob"}, notified.UserIDs)

	err = env.auctions.CancelAuction(ctx, user("owner"), auction.ID)
	require.ErrorIs(t, err, domain.ErrAuctionTerminal)
	requireKind(t, err, domain.KindConflict)

	_, err = env.participation.JoinAuction(ctx, user("carol"), auction.ID)
	require.ErrorIs(t, err, domain.ErrAuctionClosed)
}

func TestAuctionManager_CancelPolicy(t *testing.T) {
	ctx := context.Background()

	env := newTestEnv(t, nil)
	auction := env.registerAuction(t, "owner")
	require.NoError(t, env.auctions.CancelAuction(ctx, admin("root"), auction.ID))

	env = newTestEnv(t, nil)
	env.auctions.policy = domain.Policy{AdminCanCancel: false}
	auction = env.registerAuction(t, "owner")
	err := env.auctions.CancelAuction(ctx, admin("root"), auction.ID)
	require.ErrorIs(t, err, domain.ErrNotAuctionOwner)
}

func TestAuctionManager_CancelAfterStart(t *testing.T) {
	env := newTestEnv(t, nil)
	auction := env.registerAuction(t, "owner")

	env.clock.Set(auction.StartsAt)
	err := env.auctions.CancelAuction(context.Background(), user("owner"), auction.ID)
	require.ErrorIs(t, err, domain.ErrAuctionStarted)
	requireKind(t, err, domain.KindForbidden)
}

func TestAuctionManager_CloseAuction(t *testing.T) {
	var notifications []*domain.Notification
	env := newTestEnv(t, func(p *mock.MockEventPublisher, n *mock.MockNotifier) {
		p.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
		n.EXPECT().Notify(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, notification *domain.Notification) error {
				notifications = append(notifications, notification)
				return nil
			}).AnyTimes()
	})
	ctx := context.Background()
	auction := env.registerAuction(t, "owner")
	env.join(t, auction.ID, "alice", "bob")

	env.clock.Set(auction.StartsAt.Add(time.Minute))
	_, err := env.bids.PlaceBid(ctx, user("alice"), auction.ID, 10000)
	require.NoError(t, err)
	_, err = env.bids.PlaceBid(ctx, user("bob"), auction.ID, 12000)
	require.NoError(t, err)

	_, err = env.auctions.CloseAuction(ctx, auction.ID)
	require.ErrorIs(t, err, domain.ErrAuctionNotEnded)

	env.clock.Set(auction.StartsAt.Add(time.Hour))
	first, err := env.auctions.CloseAuction(ctx, auction.ID)
	require.NoError(t, err)
	require.Equal(t, domain.AuctionCompleted, first.Status)
	require.Equal(t, "bob", *first.WinnerID)
	require.Equal(t, int64(12000), *first.FinalBid)

	second, err := env.auctions.CloseAuction(ctx, auction.ID)
	require.NoError(t, err)
	require.Equal(t, first, second)

	require.Len(t, notifications, 2)
	require.Equal(t, domain.NotifyAuctionWon, notifications[0].Type)
	require.Equal(t, []string{"bob"}, notifications[0].UserIDs)
	require.Equal(t, domain.NotifyAuctionClosed, notifications[1].Type)
	require.Equal(t, []string{"owner"}, notifications[1].UserIDs)

	err = env.auctions.CancelAuction(ctx, user("owner"), auction.ID)
	require.ErrorIs(t, err, domain.ErrAuctionTerminal)
}

func TestAuctionManager_CloseWithoutBids(t *testing.T) {
	env := newTestEnv(t, nil)
	auction := env.registerAuction(t, "owner")

	env.clock.Set(auction.EndsAt.Add(time.Minute))
	result, err := env.auctions.CloseAuction(context.Background(), auction.ID)
	require.NoError(t, err)
	require.Equal(t, domain.AuctionUnbidded, result.Status)
	require.Nil(t, result.WinnerID)
	require.Nil(t, result.FinalBid)

	stored, err := env.auctions.GetAuction(context.Background(), auction.ID)
	require.NoError(t, err)
	require.True(t, stored.IsFinished)
}

func TestAuctionManager_CloseCancelledAuction(t *testing.T) {
	env := newTestEnv(t, nil)
	auction := env.registerAuction(t, "owner")
	require.NoError(t, env.auctions.CancelAuction(context.Background(), user("owner"), auction.ID))

	env.clock.Set(auction.EndsAt)
	_, err := env.auctions.CloseAuction(context.Background(), auction.ID)
	require.ErrorIs(t, err, domain.ErrAuctionTerminal)

	_, err = env.auctions.CloseAuction(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrAuctionNotFound)
}

func TestAuctionManager_CloseAuctionAs(t *testing.T) {
	env := newTestEnv(t, nil)
	auction := env.registerAuction(t, "owner")
	env.clock.Set(auction.EndsAt)

	_, err := env.auctions.CloseAuctionAs(context.Background(), user("owner"), auction.ID)
	require.ErrorIs(t, err, domain.ErrForbidden)

	result, err := env.auctions.CloseAuctionAs(context.Background(), admin("root"), auction.ID)
	require.NoError(t, err)
	require.Equal(t, domain.AuctionUnbidded, result.Status)
}
