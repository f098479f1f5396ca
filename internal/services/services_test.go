package services

import (
	"auction-engine/internal/domain"
	"auction-engine/internal/domain/mock"
	"auction-engine/internal/infrastructure/memory"
	"auction-engine/pkg/logger"
	"auction-engine/pkg/utils"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var baseTime = time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)

// defaultStart is a valid start for registrations made at baseTime.
var defaultStart = baseTime.Add(48 * time.Hour)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type testEnv struct {
	store         *memory.Store
	clock         *fakeClock
	publisher     *mock.MockEventPublisher
	notifier      *mock.MockNotifier
	dispatcher    *EventDispatcher
	auctions      *AuctionManager
	bids          *BidService
	participation *ParticipationService
}

// newTestEnv wires the services over a memory store. setup registers collaborator
// expectations; nil accepts every publish and notification.
func newTestEnv(t *testing.T, setup func(p *mock.MockEventPublisher, n *mock.MockNotifier)) *testEnv {
	t.Helper()
	ctrl := gomock.NewController(t)
	publisher := mock.NewMockEventPublisher(ctrl)
	notifier := mock.NewMockNotifier(ctrl)
	if setup != nil {
		setup(publisher, notifier)
	} else {
		publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
		notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	}

	store := memory.NewStore()
	clock := &fakeClock{now: baseTime}
	log := logger.NewNop()
	policy := domain.DefaultPolicy()
	dispatcher := NewEventDispatcher(store, publisher, notifier, clock, log)

	return &testEnv{
		store:         store,
		clock:         clock,
		publisher:     publisher,
		notifier:      notifier,
		dispatcher:    dispatcher,
		auctions:      NewAuctionManager(store, store, dispatcher, policy, clock, log),
		bids:          NewBidService(store, dispatcher, policy, clock, log),
		participation: NewParticipationService(store, dispatcher, policy, clock, log),
	}
}

func user(id string) domain.Caller {
	return domain.Caller{UserID: id, Role: domain.RoleUser}
}

func admin(id string) domain.Caller {
	return domain.Caller{UserID: id, Role: domain.RoleAdmin}
}

func validInput(productID string) RegisterAuctionInput {
	return RegisterAuctionInput{
		ProductID:  productID,
		StartsAt:   defaultStart,
		MinBid:     10000,
		Lot:        1,
		Condition:  "new",
		MinBidders: 1,
		MaxBidders: 10,
	}
}

// registerAuction registers an auction for owner on a fresh product, at the current fake time.
func (e *testEnv) registerAuction(t *testing.T, owner string, mutate ...func(*RegisterAuctionInput)) *domain.Auction {
	t.Helper()
	productID := utils.GenerateID("product")
	e.store.AddProduct(productID, owner)

	in := validInput(productID)
	for _, m := range mutate {
		m(&in)
	}
	auction, err := e.auctions.RegisterAuction(context.Background(), user(owner), in)
	require.NoError(t, err)
	return auction
}

func (e *testEnv) join(t *testing.T, auctionID string, users ...string) {
	t.Helper()
	for _, u := range users {
		_, err := e.participation.JoinAuction(context.Background(), user(u), auctionID)
		require.NoError(t, err)
	}
}

func requireKind(t *testing.T, err error, kind domain.Kind) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, kind, domain.KindOf(err), "error: %v", err)
}
