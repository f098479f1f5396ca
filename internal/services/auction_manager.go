package services

import (
	"auction-engine/internal/domain"
	"auction-engine/pkg/logger"
	"auction-engine/pkg/utils"
	"context"
	"fmt"
	"strings"
	"time"
)

type RegisterAuctionInput struct {
	ProductID  string
	StartsAt   time.Time
	MinBid     int64
	Lot        int
	Condition  string
	MinBidders int
	MaxBidders int
}

type AuctionManager struct {
	store      domain.Store
	catalog    domain.ProductCatalog
	dispatcher *EventDispatcher
	policy     domain.Policy
	clock      domain.Clock
	log        logger.Logger
}

func NewAuctionManager(
	store domain.Store,
	catalog domain.ProductCatalog,
	dispatcher *EventDispatcher,
	policy domain.Policy,
	clock domain.Clock,
	log logger.Logger,
) *AuctionManager {
	return &AuctionManager{
		store:      store,
		catalog:    catalog,
		dispatcher: dispatcher,
		policy:     policy,
		clock:      clock,
		log:        log,
	}
}

func (am *AuctionManager) RegisterAuction(ctx context.Context, caller domain.Caller, in RegisterAuctionInput) (*domain.Auction, error) {
	if caller.UserID == "" {
		return nil, domain.ErrUnauthenticated
	}

	productOwner, err := am.catalog.GetProductOwner(ctx, in.ProductID)
	if err != nil {
		return nil, err
	}
	if err := am.policy.Authorize(domain.OpRegister, caller, domain.Resource{OwnerID: productOwner}); err != nil {
		return nil, err
	}

	now := am.clock.Now()
	if err := validateRegistration(in, now); err != nil {
		return nil, err
	}

	startsAt := in.StartsAt.UTC()
	auction := &domain.Auction{
		ID:         utils.GenerateID("auction"),
		ProductID:  in.ProductID,
		OwnerID:    caller.UserID,
		Status:     domain.AuctionPending,
		StartsAt:   startsAt,
		EndsAt:     startsAt.Add(domain.AuctionDuration),
		MinBid:     in.MinBid,
		Lot:        in.Lot,
		Condition:  strings.TrimSpace(in.Condition),
		MinBidders: in.MinBidders,
		MaxBidders: in.MaxBidders,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	err = am.store.WithTx(ctx, func(repo domain.Repository) error {
		open, err := repo.CountUnfinishedByOwner(ctx, caller.UserID)
		if err != nil {
			return err
		}
		if open >= domain.MaxUnfinishedPerOwner {
			return fmt.Errorf("auction manager: %w - %d open auctions", domain.ErrTooManyAuctions, open)
		}

		busy, err := repo.HasOpenAuctionForProduct(ctx, in.ProductID)
		if err != nil {
			return err
		}
		if busy {
			return domain.ErrProductInAuction
		}

		return repo.CreateAuction(ctx, auction)
	})
	if err != nil {
		return nil, err
	}

	am.log.Info("Auction registered", "auction_id", auction.ID, "user_id", caller.UserID,
		"product_id", auction.ProductID, "starts_at", auction.StartsAt)
	return auction, nil
}

func validateRegistration(in RegisterAuctionInput, now time.Time) error {
	switch {
	case in.ProductID == "":
		return fmt.Errorf("auction manager: %w - product id is required", domain.ErrInvalidArgument)
	case in.MinBid <= 0:
		return fmt.Errorf("auction manager: %w - min bid must be positive", domain.ErrInvalidArgument)
	case in.Lot < 1:
		return fmt.Errorf("auction manager: %w - lot must be at least 1", domain.ErrInvalidArgument)
	case strings.TrimSpace(in.Condition) == "":
		return fmt.Errorf("auction manager: %w - condition is required", domain.ErrInvalidArgument)
	case in.MinBidders < 1 || in.MaxBidders < in.MinBidders:
		return fmt.Errorf("auction manager: %w - bidder bounds must satisfy 1 <= min <= max", domain.ErrInvalidArgument)
	}

	startsAt := in.StartsAt.UTC()
	if startsAt.Before(now.Add(domain.RegistrationLeadTime)) {
		return fmt.Errorf("auction manager: %w - must start at least %s from now", domain.ErrInvalidSchedule, domain.RegistrationLeadTime)
	}
	if !startsAt.Truncate(domain.ScheduleAlignment).Equal(startsAt) {
		return fmt.Errorf("auction manager: %w - start must sit on a %s boundary", domain.ErrInvalidSchedule, domain.ScheduleAlignment)
	}
	return nil
}

func (am *AuctionManager) GetAuction(ctx context.Context, auctionID string) (*domain.Auction, error) {
	return am.store.GetAuction(ctx, auctionID)
}

// CancelAuction moves a not yet started auction to cancelled and notifies its participants.
func (am *AuctionManager) CancelAuction(ctx context.Context, caller domain.Caller, auctionID string) error {
	if caller.UserID == "" {
		return domain.ErrUnauthenticated
	}

	var (
		event        *domain.AuctionEvent
		participants []string
	)
	err := am.store.WithTx(ctx, func(repo domain.Repository) error {
		auction, err := repo.LockAuction(ctx, auctionID)
		if err != nil {
			return err
		}
		if err := am.policy.Authorize(domain.OpCancel, caller, domain.Resource{OwnerID: auction.OwnerID}); err != nil {
			return err
		}
		if auction.IsTerminal() {
			return fmt.Errorf("auction manager: %w - status %s", domain.ErrAuctionTerminal, auction.Status)
		}

		now := am.clock.Now()
		if auction.HasStarted(now) {
			return domain.ErrAuctionStarted
		}

		applied, err := repo.SetTerminal(ctx, auctionID, domain.TerminalTransition{
			Field:  domain.TerminalCancel,
			Status: domain.AuctionCancelled,
			At:     now,
		})
		if err != nil {
			return err
		}
		if !applied {
			return domain.ErrAuctionTerminal
		}

		if participants, err = repo.ListParticipantIDs(ctx, auctionID); err != nil {
			return err
		}
		event, err = appendEvent(ctx, repo, auctionID, domain.EventCancelled, map[string]any{
			"cancelled_by": caller.UserID,
		}, now)
		return err
	})
	if err != nil {
		return err
	}

	am.log.Info("Auction cancelled", "auction_id", auctionID, "user_id", caller.UserID)
	am.dispatcher.Dispatch(ctx, event)
	am.dispatcher.Notify(ctx, domain.NotifyAuctionCancelled, auctionID, participants, nil)
	return nil
}

// CloseAuctionAs closes on behalf of an operator instead of the scheduler.
func (am *AuctionManager) CloseAuctionAs(ctx context.Context, caller domain.Caller, auctionID string) (*domain.CloseResult, error) {
	if err := am.policy.Authorize(domain.OpClose, caller, domain.Resource{}); err != nil {
		return nil, err
	}
	return am.CloseAuction(ctx, auctionID)
}

// CloseAuction finalizes an auction whose window has elapsed. Closing a finished
// auction again returns the stored outcome.
func (am *AuctionManager) CloseAuction(ctx context.Context, auctionID string) (*domain.CloseResult, error) {
	var (
		result  *domain.CloseResult
		event   *domain.AuctionEvent
		ownerID string
		closed  bool
	)
	err := am.store.WithTx(ctx, func(repo domain.Repository) error {
		auction, err := repo.LockAuction(ctx, auctionID)
		if err != nil {
			return err
		}
		if auction.IsFinished {
			result = closeResultOf(auction)
			return nil
		}
		if auction.IsCancelled {
			return fmt.Errorf("auction manager: %w - auction was cancelled", domain.ErrAuctionTerminal)
		}

		now := am.clock.Now()
		if _, end := auction.BiddingWindow(); now.Before(end) {
			return domain.ErrAuctionNotEnded
		}

		highest, err := repo.GetHighestBid(ctx, auctionID)
		if err != nil {
			return err
		}
		transition := domain.TerminalTransition{
			Field:  domain.TerminalFinish,
			Status: domain.AuctionUnbidded,
			At:     now,
		}
		if highest != nil {
			winner, amount := highest.BidderID, highest.Amount
			transition.Status = domain.AuctionCompleted
			transition.WinnerID = &winner
			transition.FinalBid = &amount
		}

		applied, err := repo.SetTerminal(ctx, auctionID, transition)
		if err != nil {
			return err
		}
		if !applied {
			return domain.ErrConcurrentUpdate
		}

		result = &domain.CloseResult{
			AuctionID: auctionID,
			Status:    transition.Status,
			WinnerID:  transition.WinnerID,
			FinalBid:  transition.FinalBid,
		}
		ownerID = auction.OwnerID
		closed = true
		event, err = appendEvent(ctx, repo, auctionID, domain.EventClosed, result, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	if !closed {
		return result, nil
	}

	am.log.Info("Auction closed", "auction_id", auctionID, "status", result.Status)
	am.dispatcher.Dispatch(ctx, event)

	data := map[string]any{"status": result.Status}
	if result.WinnerID != nil {
		data["winner_id"] = *result.WinnerID
		data["final_bid"] = *result.FinalBid
		am.dispatcher.Notify(ctx, domain.NotifyAuctionWon, auctionID, []string{*result.WinnerID}, data)
	}
	am.dispatcher.Notify(ctx, domain.NotifyAuctionClosed, auctionID, []string{ownerID}, data)
	return result, nil
}

func closeResultOf(a *domain.Auction) *domain.CloseResult {
	return &domain.CloseResult{
		AuctionID: a.ID,
		Status:    a.Status,
		WinnerID:  a.WinnerID,
		FinalBid:  a.FinalBid,
	}
}
