package services

import (
	"auction-engine/internal/domain"
	"auction-engine/pkg/logger"
	"context"
	"fmt"
)

// ParticipationService admits, removes and invites auction participants. Every
// change runs under the auction row lock so the joined count cannot overshoot MaxBidders.
type ParticipationService struct {
	store      domain.Store
	dispatcher *EventDispatcher
	policy     domain.Policy
	clock      domain.Clock
	log        logger.Logger
}

func NewParticipationService(
	store domain.Store,
	dispatcher *EventDispatcher,
	policy domain.Policy,
	clock domain.Clock,
	log logger.Logger,
) *ParticipationService {
	return &ParticipationService{
		store:      store,
		dispatcher: dispatcher,
		policy:     policy,
		clock:      clock,
		log:        log,
	}
}

// JoinAuction admits the caller, promoting a pending invitation when there is one.
func (s *ParticipationService) JoinAuction(ctx context.Context, caller domain.Caller, auctionID string) (*domain.Participant, error) {
	if caller.UserID == "" {
		return nil, domain.ErrUnauthenticated
	}

	var (
		participant *domain.Participant
		event       *domain.AuctionEvent
	)
	err := s.store.WithTx(ctx, func(repo domain.Repository) error {
		auction, err := repo.LockAuction(ctx, auctionID)
		if err != nil {
			return err
		}
		if err := s.policy.Authorize(domain.OpJoin, caller, domain.Resource{OwnerID: auction.OwnerID}); err != nil {
			return err
		}
		if auction.IsTerminal() {
			return domain.ErrAuctionClosed
		}

		status, exists, err := repo.GetParticipantStatus(ctx, caller.UserID, auctionID)
		if err != nil {
			return err
		}
		if exists {
			switch status {
			case domain.ParticipantJoined:
				return domain.ErrAlreadyJoined
			case domain.ParticipantRejected, domain.ParticipantKicked:
				return domain.ErrParticipationRejected
			}
		}

		joined, err := repo.CountJoinedParticipants(ctx, auctionID)
		if err != nil {
			return err
		}
		if joined >= auction.MaxBidders {
			return fmt.Errorf("participation: %w - %d of %d seats taken", domain.ErrAuctionFull, joined, auction.MaxBidders)
		}

		now := s.clock.Now()
		participant = &domain.Participant{
			UserID:    caller.UserID,
			AuctionID: auctionID,
			Status:    domain.ParticipantJoined,
			CreatedAt: now,
		}
		if exists {
			err = repo.UpdateParticipantStatus(ctx, caller.UserID, auctionID, domain.ParticipantJoined)
		} else {
			err = repo.InsertParticipant(ctx, participant)
		}
		if err != nil {
			return err
		}

		event, err = appendEvent(ctx, repo, auctionID, domain.EventJoin, map[string]any{
			"user_id":      caller.UserID,
			"participants": joined + 1,
			"max_bidders":  auction.MaxBidders,
		}, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("Participant joined", "auction_id", auctionID, "user_id", caller.UserID)
	s.dispatcher.Dispatch(ctx, event)
	return participant, nil
}

// LeaveAuction removes the caller's participation; not allowed within LeaveLockout of the start.
func (s *ParticipationService) LeaveAuction(ctx context.Context, caller domain.Caller, auctionID string) error {
	if err := s.policy.Authorize(domain.OpLeave, caller, domain.Resource{}); err != nil {
		return err
	}

	var event *domain.AuctionEvent
	err := s.store.WithTx(ctx, func(repo domain.Repository) error {
		auction, err := repo.LockAuction(ctx, auctionID)
		if err != nil {
			return err
		}

		_, exists, err := repo.GetParticipantStatus(ctx, caller.UserID, auctionID)
		if err != nil {
			return err
		}
		if !exists {
			return domain.ErrParticipantNotFound
		}
		if auction.IsTerminal() {
			return domain.ErrAuctionClosed
		}

		now := s.clock.Now()
		if now.Add(domain.LeaveLockout).After(auction.StartsAt) {
			return domain.ErrLeaveLockout
		}

		if _, err := repo.DeleteParticipant(ctx, caller.UserID, auctionID); err != nil {
			return err
		}
		event, err = appendEvent(ctx, repo, auctionID, domain.EventLeave, map[string]any{
			"user_id": caller.UserID,
		}, now)
		return err
	})
	if err != nil {
		return err
	}

	s.log.Info("Participant left", "auction_id", auctionID, "user_id", caller.UserID)
	s.dispatcher.Dispatch(ctx, event)
	return nil
}

// KickParticipant removes targetUserID before the auction starts and notifies them.
func (s *ParticipationService) KickParticipant(ctx context.Context, caller domain.Caller, auctionID, targetUserID string) error {
	if caller.UserID == "" {
		return domain.ErrUnauthenticated
	}

	var event *domain.AuctionEvent
	err := s.store.WithTx(ctx, func(repo domain.Repository) error {
		auction, err := repo.LockAuction(ctx, auctionID)
		if err != nil {
			return err
		}
		if err := s.policy.Authorize(domain.OpKick, caller, domain.Resource{OwnerID: auction.OwnerID}); err != nil {
			return err
		}
		if auction.IsTerminal() {
			return domain.ErrAuctionClosed
		}

		now := s.clock.Now()
		if auction.HasStarted(now) {
			return domain.ErrAuctionStarted
		}

		removed, err := repo.DeleteParticipant(ctx, targetUserID, auctionID)
		if err != nil {
			return err
		}
		if !removed {
			return domain.ErrParticipantNotFound
		}

		event, err = appendEvent(ctx, repo, auctionID, domain.EventKick, map[string]any{
			"user_id":   targetUserID,
			"kicked_by": caller.UserID,
		}, now)
		return err
	})
	if err != nil {
		return err
	}

	s.log.Info("Participant kicked", "auction_id", auctionID, "user_id", targetUserID, "kicked_by", caller.UserID)
	s.dispatcher.Dispatch(ctx, event)
	s.dispatcher.Notify(ctx, domain.NotifyParticipantKicked, auctionID, []string{targetUserID}, nil)
	return nil
}

// InviteParticipant records an invitation; the invitee still has to join before bidding.
func (s *ParticipationService) InviteParticipant(ctx context.Context, caller domain.Caller, auctionID, targetUserID string) (*domain.Participant, error) {
	if caller.UserID == "" {
		return nil, domain.ErrUnauthenticated
	}
	if targetUserID == "" {
		return nil, fmt.Errorf("participation: %w - user id is required", domain.ErrInvalidArgument)
	}

	var (
		participant *domain.Participant
		event       *domain.AuctionEvent
	)
	err := s.store.WithTx(ctx, func(repo domain.Repository) error {
		auction, err := repo.LockAuction(ctx, auctionID)
		if err != nil {
			return err
		}
		if err := s.policy.Authorize(domain.OpInvite, caller, domain.Resource{OwnerID: auction.OwnerID}); err != nil {
			return err
		}
		if auction.IsTerminal() {
			return domain.ErrAuctionClosed
		}
		if targetUserID == auction.OwnerID {
			return domain.ErrOwnerCannotJoin
		}

		now := s.clock.Now()
		if _, end := auction.BiddingWindow(); !now.Before(end) {
			return domain.ErrAuctionEnded
		}

		participant = &domain.Participant{
			UserID:    targetUserID,
			AuctionID: auctionID,
			Status:    domain.ParticipantInvited,
			CreatedAt: now,
		}
		if err := repo.InsertParticipant(ctx, participant); err != nil {
			return err
		}

		event, err = appendEvent(ctx, repo, auctionID, domain.EventInvite, map[string]any{
			"user_id":    targetUserID,
			"invited_by": caller.UserID,
		}, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("Participant invited", "auction_id", auctionID, "user_id", targetUserID, "invited_by", caller.UserID)
	s.dispatcher.Dispatch(ctx, event)
	return participant, nil
}
