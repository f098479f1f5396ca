package services

import (
	"auction-engine/internal/domain"
	"auction-engine/pkg/logger"
	"auction-engine/pkg/utils"
	"context"
	"fmt"
)

const (
	defaultBidHistory = 50
	maxBidHistory     = 200
)

type BidService struct {
	store      domain.Store
	dispatcher *EventDispatcher
	policy     domain.Policy
	clock      domain.Clock
	log        logger.Logger
}

func NewBidService(
	store domain.Store,
	dispatcher *EventDispatcher,
	policy domain.Policy,
	clock domain.Clock,
	log logger.Logger,
) *BidService {
	return &BidService{
		store:      store,
		dispatcher: dispatcher,
		policy:     policy,
		clock:      clock,
		log:        log,
	}
}

// PlaceBid validates amount against the auction's high bid and stores it in one
// transaction that holds the auction row, so bids on one auction are applied one at a time.
func (s *BidService) PlaceBid(ctx context.Context, caller domain.Caller, auctionID string, amount int64) (*domain.Bid, error) {
	if caller.UserID == "" {
		return nil, domain.ErrUnauthenticated
	}
	s.log.Info("Placing bid", "auction_id", auctionID, "user_id", caller.UserID, "amount", amount)

	if amount <= 0 {
		return nil, fmt.Errorf("bid service: %w - amount must be positive", domain.ErrInvalidArgument)
	}

	var (
		bid   *domain.Bid
		event *domain.AuctionEvent
	)
	err := s.store.WithTx(ctx, func(repo domain.Repository) error {
		bc, err := repo.GetAuctionForBid(ctx, auctionID, caller.UserID)
		if err != nil {
			return err
		}
		auction := &bc.Auction

		if err := s.policy.Authorize(domain.OpBid, caller, domain.Resource{OwnerID: auction.OwnerID}); err != nil {
			return err
		}
		if !bc.IsParticipant || bc.ParticipantStatus != domain.ParticipantJoined {
			return domain.ErrNotParticipant
		}
		if auction.IsTerminal() {
			return domain.ErrAuctionClosed
		}

		now := s.clock.Now()
		start, end := auction.BiddingWindow()
		if now.Before(start) {
			return domain.ErrAuctionNotStarted
		}
		if !now.Before(end) {
			return domain.ErrAuctionEnded
		}
		if amount <= bc.CurrentHighBid {
			return fmt.Errorf("bid service: %w - current high bid is %d", domain.ErrBidTooLow, bc.CurrentHighBid)
		}

		bid = &domain.Bid{
			ID:        utils.GenerateID("bid"),
			AuctionID: auctionID,
			BidderID:  caller.UserID,
			Amount:    amount,
			CreatedAt: now,
		}
		if err := repo.InsertBid(ctx, bid); err != nil {
			return err
		}

		event, err = appendEvent(ctx, repo, auctionID, domain.EventBid, map[string]any{
			"bid_id":        bid.ID,
			"bidder_id":     bid.BidderID,
			"amount":        bid.Amount,
			"previous_high": bc.CurrentHighBid,
			"created_at":    bid.CreatedAt,
		}, now)
		return err
	})
	if err != nil {
		s.log.Info("Bid rejected", "auction_id", auctionID, "user_id", caller.UserID,
			"amount", amount, "reason", domain.CodeOf(err))
		return nil, err
	}

	s.log.Info("Bid accepted", "auction_id", auctionID, "user_id", caller.UserID, "bid_id", bid.ID, "amount", amount)
	s.dispatcher.Dispatch(ctx, event)

	bidder := caller
	bid.Bidder = &bidder
	return bid, nil
}

func (s *BidService) GetCurrentHighBid(ctx context.Context, auctionID string) (int64, error) {
	return s.store.GetCurrentHighBid(ctx, auctionID)
}

// ListBids returns the newest bids first; limit is clamped to [1, 200].
func (s *BidService) ListBids(ctx context.Context, auctionID string, limit int) ([]*domain.Bid, error) {
	if limit <= 0 {
		limit = defaultBidHistory
	}
	if limit > maxBidHistory {
		limit = maxBidHistory
	}

	if _, err := s.store.GetAuction(ctx, auctionID); err != nil {
		return nil, err
	}
	return s.store.ListBids(ctx, auctionID, limit)
}
