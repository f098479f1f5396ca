package domain

import (
	"encoding/json"
	"time"
)

const (
	// AuctionDuration is the fixed bidding window; EndsAt is always StartsAt+AuctionDuration.
	AuctionDuration = time.Hour
	// RegistrationLeadTime is the minimum distance between registration and StartsAt.
	RegistrationLeadTime = 24 * time.Hour
	// ScheduleAlignment is the clock boundary StartsAt must sit on.
	ScheduleAlignment = 15 * time.Minute
	// LeaveLockout is the window before StartsAt in which participants may not leave.
	LeaveLockout = 6 * time.Hour
	// MaxUnfinishedPerOwner caps concurrently open auctions per owner.
	MaxUnfinishedPerOwner = 5
)

type AuctionStatus string

const (
	AuctionPending   AuctionStatus = "pending"
	AuctionCancelled AuctionStatus = "cancelled"
	AuctionCompleted AuctionStatus = "completed"
	AuctionUnbidded  AuctionStatus = "unbidded"
)

func (s AuctionStatus) IsTerminal() bool {
	return s == AuctionCancelled || s == AuctionCompleted || s == AuctionUnbidded
}

type Auction struct {
	ID          string        `json:"id"`
	ProductID   string        `json:"product_id"`
	OwnerID     string        `json:"owner_id"`
	Status      AuctionStatus `json:"status"`
	StartsAt    time.Time     `json:"starts_at"`
	EndsAt      time.Time     `json:"ends_at"`
	MinBid      int64         `json:"min_bid"`
	Lot         int           `json:"lot"`
	Condition   string        `json:"condition"`
	MinBidders  int           `json:"min_bidders"`
	MaxBidders  int           `json:"max_bidders"`
	FinalBid    *int64        `json:"final_bid,omitempty"`
	WinnerID    *string       `json:"winner_id,omitempty"`
	IsCancelled bool          `json:"is_cancelled"`
	IsFinished  bool          `json:"is_finished"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

func (a *Auction) IsTerminal() bool {
	return a.IsCancelled || a.IsFinished
}

// BiddingWindow re-derives [start, end) from StartsAt instead of trusting EndsAt.
func (a *Auction) BiddingWindow() (time.Time, time.Time) {
	return a.StartsAt, a.StartsAt.Add(AuctionDuration)
}

func (a *Auction) AcceptsBidsAt(now time.Time) bool {
	start, end := a.BiddingWindow()
	return !now.Before(start) && now.Before(end)
}

func (a *Auction) HasStarted(now time.Time) bool {
	return !now.Before(a.StartsAt)
}

// FloorBid is the high bid of an auction without bids.
func (a *Auction) FloorBid() int64 {
	return a.MinBid - 1
}

type ParticipantStatus string

const (
	ParticipantJoined   ParticipantStatus = "joined"
	ParticipantInvited  ParticipantStatus = "invited"
	ParticipantKicked   ParticipantStatus = "kicked"
	ParticipantRejected ParticipantStatus = "rejected"
)

type Participant struct {
	UserID    string            `json:"user_id"`
	AuctionID string            `json:"auction_id"`
	Status    ParticipantStatus `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
}

type Bid struct {
	ID        string    `json:"id"`
	AuctionID string    `json:"auction_id"`
	BidderID  string    `json:"bidder_id"`
	Amount    int64     `json:"amount"`
	CreatedAt time.Time `json:"created_at"`
	// Bidder is filled for responses only and never stored.
	Bidder *Caller `json:"bidder,omitempty"`
}

// BidContext is the consistent read a bid is validated against.
type BidContext struct {
	Auction           Auction
	CurrentHighBid    int64
	ParticipantStatus ParticipantStatus
	IsParticipant     bool
}

type TerminalField string

const (
	TerminalCancel TerminalField = "is_cancelled"
	TerminalFinish TerminalField = "is_finished"
)

// TerminalTransition is applied only while the auction is neither cancelled nor finished.
type TerminalTransition struct {
	Field    TerminalField
	Status   AuctionStatus
	WinnerID *string
	FinalBid *int64
	At       time.Time
}

type CloseResult struct {
	AuctionID string        `json:"auction_id"`
	Status    AuctionStatus `json:"status"`
	WinnerID  *string       `json:"winner_id,omitempty"`
	FinalBid  *int64        `json:"final_bid,omitempty"`
}

type EventType string

const (
	EventBid       EventType = "bid"
	EventJoin      EventType = "join"
	EventLeave     EventType = "leave"
	EventKick      EventType = "kick"
	EventInvite    EventType = "invite"
	EventCancelled EventType = "cancelled"
	EventClosed    EventType = "closed"
)

// IsTerminal reports whether the event ends the auction for live viewers.
func (t EventType) IsTerminal() bool {
	return t == EventCancelled || t == EventClosed
}

// AuctionEvent is an outbox record; it is written in the same transaction as the change it describes.
type AuctionEvent struct {
	ID          string          `json:"id"`
	AuctionID   string          `json:"auction_id"`
	Type        EventType       `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	CreatedAt   time.Time       `json:"created_at"`
	PublishedAt *time.Time      `json:"-"`
}

type NotificationType string

const (
	NotifyAuctionCancelled  NotificationType = "auction.cancelled"
	NotifyParticipantKicked NotificationType = "participant.kicked"
	NotifyAuctionWon        NotificationType = "auction.won"
	NotifyAuctionClosed     NotificationType = "auction.closed"
)

type Notification struct {
	Type      NotificationType `json:"type"`
	AuctionID string           `json:"auction_id"`
	UserIDs   []string         `json:"user_ids"`
	Data      map[string]any   `json:"data,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}
