// Package memory is a single-process Store. Transactions are serialized
// behind one mutex and applied copy-on-commit, so a failed transaction leaves
// no trace. It must not back more than one service replica.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"auction-engine/internal/domain"
)

type state struct {
	auctions     map[string]domain.Auction
	bids         map[string][]domain.Bid
	participants map[string]map[string]domain.Participant
	events       []domain.AuctionEvent
	products     map[string]string
}

func newState() *state {
	return &state{
		auctions:     make(map[string]domain.Auction),
		bids:         make(map[string][]domain.Bid),
		participants: make(map[string]map[string]domain.Participant),
		products:     make(map[string]string),
	}
}

func (s *state) clone() *state {
	c := newState()
	for id, a := range s.auctions {
		c.auctions[id] = a
	}
	for id, bids := range s.bids {
		c.bids[id] = append([]domain.Bid(nil), bids...)
	}
	for id, ps := range s.participants {
		m := make(map[string]domain.Participant, len(ps))
		for uid, p := range ps {
			m[uid] = p
		}
		c.participants[id] = m
	}
	c.events = append([]domain.AuctionEvent(nil), s.events...)
	for id, owner := range s.products {
		c.products[id] = owner
	}
	return c
}

type Store struct {
	mu sync.Mutex
	st *state
}

var (
	_ domain.Store          = (*Store)(nil)
	_ domain.ProductCatalog = (*Store)(nil)
)

func NewStore() *Store {
	return &Store{st: newState()}
}

// AddProduct registers a product so auctions can be created for it.
func (s *Store) AddProduct(productID, ownerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.products[productID] = ownerID
}

func (s *Store) GetProductOwner(_ context.Context, productID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	owner, ok := s.st.products[productID]
	if !ok {
		return "", domain.ErrProductNotFound
	}
	return owner, nil
}

func (s *Store) WithTx(ctx context.Context, fn func(repo domain.Repository) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	working := s.st.clone()
	if err := fn(&repo{st: working}); err != nil {
		return err
	}
	s.st = working
	return nil
}

func read[T any](s *Store, fn func(r *repo) (T, error)) (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&repo{st: s.st})
}

func (s *Store) CreateAuction(ctx context.Context, auction *domain.Auction) error {
	return s.WithTx(ctx, func(r domain.Repository) error { return r.CreateAuction(ctx, auction) })
}

func (s *Store) GetAuction(ctx context.Context, auctionID string) (*domain.Auction, error) {
	return read(s, func(r *repo) (*domain.Auction, error) { return r.GetAuction(ctx, auctionID) })
}

func (s *Store) LockAuction(ctx context.Context, auctionID string) (*domain.Auction, error) {
	return s.GetAuction(ctx, auctionID)
}

func (s *Store) CountUnfinishedByOwner(ctx context.Context, ownerID string) (int, error) {
	return read(s, func(r *repo) (int, error) { return r.CountUnfinishedByOwner(ctx, ownerID) })
}

func (s *Store) HasOpenAuctionForProduct(ctx context.Context, productID string) (bool, error) {
	return read(s, func(r *repo) (bool, error) { return r.HasOpenAuctionForProduct(ctx, productID) })
}

func (s *Store) SetTerminal(ctx context.Context, auctionID string, t domain.TerminalTransition) (bool, error) {
	var applied bool
	err := s.WithTx(ctx, func(r domain.Repository) error {
		var err error
		applied, err = r.SetTerminal(ctx, auctionID, t)
		return err
	})
	return applied, err
}

func (s *Store) ListDueAuctions(ctx context.Context, now time.Time, limit int) ([]string, error) {
	return read(s, func(r *repo) ([]string, error) { return r.ListDueAuctions(ctx, now, limit) })
}

func (s *Store) GetAuctionForBid(ctx context.Context, auctionID, bidderID string) (*domain.BidContext, error) {
	return read(s, func(r *repo) (*domain.BidContext, error) { return r.GetAuctionForBid(ctx, auctionID, bidderID) })
}

func (s *Store) GetCurrentHighBid(ctx context.Context, auctionID string) (int64, error) {
	return read(s, func(r *repo) (int64, error) { return r.GetCurrentHighBid(ctx, auctionID) })
}

func (s *Store) GetHighestBid(ctx context.Context, auctionID string) (*domain.Bid, error) {
	return read(s, func(r *repo) (*domain.Bid, error) { return r.GetHighestBid(ctx, auctionID) })
}

func (s *Store) InsertBid(ctx context.Context, bid *domain.Bid) error {
	return s.WithTx(ctx, func(r domain.Repository) error { return r.InsertBid(ctx, bid) })
}

func (s *Store) ListBids(ctx context.Context, auctionID string, limit int) ([]*domain.Bid, error) {
	return read(s, func(r *repo) ([]*domain.Bid, error) { return r.ListBids(ctx, auctionID, limit) })
}

func (s *Store) GetParticipantStatus(ctx context.Context, userID, auctionID string) (domain.ParticipantStatus, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&repo{st: s.st}).GetParticipantStatus(ctx, userID, auctionID)
}

func (s *Store) CountJoinedParticipants(ctx context.Context, auctionID string) (int, error) {
	return read(s, func(r *repo) (int, error) { return r.CountJoinedParticipants(ctx, auctionID) })
}

func (s *Store) InsertParticipant(ctx context.Context, participant *domain.Participant) error {
	return s.WithTx(ctx, func(r domain.Repository) error { return r.InsertParticipant(ctx, participant) })
}

func (s *Store) UpdateParticipantStatus(ctx context.Context, userID, auctionID string, status domain.ParticipantStatus) error {
	return s.WithTx(ctx, func(r domain.Repository) error {
		return r.UpdateParticipantStatus(ctx, userID, auctionID, status)
	})
}

func (s *Store) DeleteParticipant(ctx context.Context, userID, auctionID string) (bool, error) {
	var deleted bool
	err := s.WithTx(ctx, func(r domain.Repository) error {
		var err error
		deleted, err = r.DeleteParticipant(ctx, userID, auctionID)
		return err
	})
	return deleted, err
}

func (s *Store) ListParticipantIDs(ctx context.Context, auctionID string) ([]string, error) {
	return read(s, func(r *repo) ([]string, error) { return r.ListParticipantIDs(ctx, auctionID) })
}

func (s *Store) AppendEvent(ctx context.Context, event *domain.AuctionEvent) error {
	return s.WithTx(ctx, func(r domain.Repository) error { return r.AppendEvent(ctx, event) })
}

func (s *Store) ListUnpublishedEvents(ctx context.Context, before time.Time, limit int) ([]*domain.AuctionEvent, error) {
	return read(s, func(r *repo) ([]*domain.AuctionEvent, error) { return r.ListUnpublishedEvents(ctx, before, limit) })
}

func (s *Store) MarkEventPublished(ctx context.Context, eventID string, at time.Time) error {
	return s.WithTx(ctx, func(r domain.Repository) error { return r.MarkEventPublished(ctx, eventID, at) })
}

// repo operates on one state snapshot; the owning Store holds the mutex.
type repo struct {
	st *state
}

func (r *repo) CreateAuction(_ context.Context, auction *domain.Auction) error {
	if _, exists := r.st.auctions[auction.ID]; exists {
		return fmt.Errorf("memory: duplicate auction id %s", auction.ID)
	}
	if _, ok := r.st.products[auction.ProductID]; !ok {
		return domain.ErrProductNotFound
	}
	r.st.auctions[auction.ID] = *auction
	return nil
}

func (r *repo) GetAuction(_ context.Context, auctionID string) (*domain.Auction, error) {
	a, ok := r.st.auctions[auctionID]
	if !ok {
		return nil, domain.ErrAuctionNotFound
	}
	return &a, nil
}

func (r *repo) LockAuction(ctx context.Context, auctionID string) (*domain.Auction, error) {
	return r.GetAuction(ctx, auctionID)
}

func (r *repo) CountUnfinishedByOwner(_ context.Context, ownerID string) (int, error) {
	n := 0
	for _, a := range r.st.auctions {
		if a.OwnerID == ownerID && !a.IsTerminal() {
			n++
		}
	}
	return n, nil
}

func (r *repo) HasOpenAuctionForProduct(_ context.Context, productID string) (bool, error) {
	for _, a := range r.st.auctions {
		if a.ProductID == productID && !a.IsTerminal() {
			return true, nil
		}
	}
	return false, nil
}

func (r *repo) SetTerminal(_ context.Context, auctionID string, t domain.TerminalTransition) (bool, error) {
	a, ok := r.st.auctions[auctionID]
	if !ok || a.IsTerminal() {
		return false, nil
	}

	switch t.Field {
	case domain.TerminalCancel:
		a.IsCancelled = true
	case domain.TerminalFinish:
		a.IsFinished = true
		a.WinnerID = t.WinnerID
		a.FinalBid = t.FinalBid
	default:
		return false, fmt.Errorf("memory: unknown terminal field %q", t.Field)
	}
	a.Status = t.Status
	a.UpdatedAt = t.At
	r.st.auctions[auctionID] = a
	return true, nil
}

func (r *repo) ListDueAuctions(_ context.Context, now time.Time, limit int) ([]string, error) {
	var due []domain.Auction
	for _, a := range r.st.auctions {
		if !a.IsTerminal() && !a.EndsAt.After(now) {
			due = append(due, a)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].EndsAt.Before(due[j].EndsAt) })

	ids := make([]string, 0, len(due))
	for _, a := range due {
		if limit > 0 && len(ids) == limit {
			break
		}
		ids = append(ids, a.ID)
	}
	return ids, nil
}

func (r *repo) GetAuctionForBid(ctx context.Context, auctionID, bidderID string) (*domain.BidContext, error) {
	a, err := r.GetAuction(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	high, err := r.GetCurrentHighBid(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	status, ok, err := r.GetParticipantStatus(ctx, bidderID, auctionID)
	if err != nil {
		return nil, err
	}
	return &domain.BidContext{
		Auction:           *a,
		CurrentHighBid:    high,
		ParticipantStatus: status,
		IsParticipant:     ok,
	}, nil
}

func (r *repo) GetCurrentHighBid(_ context.Context, auctionID string) (int64, error) {
	a, ok := r.st.auctions[auctionID]
	if !ok {
		return 0, domain.ErrAuctionNotFound
	}
	high := a.FloorBid()
	for _, b := range r.st.bids[auctionID] {
		if b.Amount > high {
			high = b.Amount
		}
	}
	return high, nil
}

func (r *repo) GetHighestBid(_ context.Context, auctionID string) (*domain.Bid, error) {
	var best *domain.Bid
	for _, b := range r.st.bids[auctionID] {
		if best == nil || b.Amount > best.Amount {
			b := b
			best = &b
		}
	}
	return best, nil
}

func (r *repo) InsertBid(_ context.Context, bid *domain.Bid) error {
	if _, ok := r.st.auctions[bid.AuctionID]; !ok {
		return domain.ErrAuctionNotFound
	}
	for _, b := range r.st.bids[bid.AuctionID] {
		if b.Amount == bid.Amount {
			return domain.ErrBidConflict
		}
	}
	stored := *bid
	stored.Bidder = nil
	r.st.bids[bid.AuctionID] = append(r.st.bids[bid.AuctionID], stored)
	return nil
}

func (r *repo) ListBids(_ context.Context, auctionID string, limit int) ([]*domain.Bid, error) {
	all := r.st.bids[auctionID]
	out := make([]*domain.Bid, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		b := all[i]
		out = append(out, &b)
	}
	return out, nil
}

func (r *repo) GetParticipantStatus(_ context.Context, userID, auctionID string) (domain.ParticipantStatus, bool, error) {
	p, ok := r.st.participants[auctionID][userID]
	if !ok {
		return "", false, nil
	}
	return p.Status, true, nil
}

func (r *repo) CountJoinedParticipants(_ context.Context, auctionID string) (int, error) {
	n := 0
	for _, p := range r.st.participants[auctionID] {
		if p.Status == domain.ParticipantJoined {
			n++
		}
	}
	return n, nil
}

func (r *repo) InsertParticipant(_ context.Context, participant *domain.Participant) error {
	if _, ok := r.st.auctions[participant.AuctionID]; !ok {
		return domain.ErrAuctionNotFound
	}
	ps := r.st.participants[participant.AuctionID]
	if ps == nil {
		ps = make(map[string]domain.Participant)
		r.st.participants[participant.AuctionID] = ps
	}
	if _, exists := ps[participant.UserID]; exists {
		return domain.ErrAlreadyJoined
	}
	ps[participant.UserID] = *participant
	return nil
}

func (r *repo) UpdateParticipantStatus(_ context.Context, userID, auctionID string, status domain.ParticipantStatus) error {
	p, ok := r.st.participants[auctionID][userID]
	if !ok {
		return domain.ErrParticipantNotFound
	}
	p.Status = status
	r.st.participants[auctionID][userID] = p
	return nil
}

func (r *repo) DeleteParticipant(_ context.Context, userID, auctionID string) (bool, error) {
	ps := r.st.participants[auctionID]
	if _, ok := ps[userID]; !ok {
		return false, nil
	}
	delete(ps, userID)
	return true, nil
}

func (r *repo) ListParticipantIDs(_ context.Context, auctionID string) ([]string, error) {
	ids := make([]string, 0, len(r.st.participants[auctionID]))
	for uid, p := range r.st.participants[auctionID] {
		if p.Status == domain.ParticipantJoined {
			ids = append(ids, uid)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *repo) AppendEvent(_ context.Context, event *domain.AuctionEvent) error {
	r.st.events = append(r.st.events, *event)
	return nil
}

func (r *repo) ListUnpublishedEvents(_ context.Context, before time.Time, limit int) ([]*domain.AuctionEvent, error) {
	var out []*domain.AuctionEvent
	for _, e := range r.st.events {
		if limit > 0 && len(out) == limit {
			break
		}
		if e.PublishedAt == nil && !e.CreatedAt.After(before) {
			e := e
			out = append(out, &e)
		}
	}
	return out, nil
}

func (r *repo) MarkEventPublished(_ context.Context, eventID string, at time.Time) error {
	for i := range r.st.events {
		if r.st.events[i].ID == eventID {
			t := at
			r.st.events[i].PublishedAt = &t
			return nil
		}
	}
	return fmt.Errorf("memory: event %s not found", eventID)
}
