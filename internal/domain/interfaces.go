package domain

import (
	"context"
	"time"
)

//go:generate mockgen -destination=mock/collaborators.go -package=mock . ProductCatalog,EventPublisher,Notifier,LeaderElection

// Repository interfaces
type AuctionRepository interface {
	CreateAuction(ctx context.Context, auction *Auction) error
	GetAuction(ctx context.Context, auctionID string) (*Auction, error)
	// LockAuction reads the auction and holds its row until the transaction ends.
	LockAuction(ctx context.Context, auctionID string) (*Auction, error)
	CountUnfinishedByOwner(ctx context.Context, ownerID string) (int, error)
	HasOpenAuctionForProduct(ctx context.Context, productID string) (bool, error)
	// SetTerminal applies t only if the auction is neither cancelled nor finished.
	SetTerminal(ctx context.Context, auctionID string, t TerminalTransition) (bool, error)
	ListDueAuctions(ctx context.Context, now time.Time, limit int) ([]string, error)
}

type BidRepository interface {
	// GetAuctionForBid locks the auction and returns it with the current high bid
	// and the bidder's participant status.
	GetAuctionForBid(ctx context.Context, auctionID, bidderID string) (*BidContext, error)
	GetCurrentHighBid(ctx context.Context, auctionID string) (int64, error)
	GetHighestBid(ctx context.Context, auctionID string) (*Bid, error)
	InsertBid(ctx context.Context, bid *Bid) error
	ListBids(ctx context.Context, auctionID string, limit int) ([]*Bid, error)
}

type ParticipantRepository interface {
	GetParticipantStatus(ctx context.Context, userID, auctionID string) (ParticipantStatus, bool, error)
	CountJoinedParticipants(ctx context.Context, auctionID string) (int, error)
	InsertParticipant(ctx context.Context, participant *Participant) error
	UpdateParticipantStatus(ctx context.Context, userID, auctionID string, status ParticipantStatus) error
	DeleteParticipant(ctx context.Context, userID, auctionID string) (bool, error)
	// ListParticipantIDs returns the users whose participation is currently joined.
	ListParticipantIDs(ctx context.Context, auctionID string) ([]string, error)
}

type EventRepository interface {
	AppendEvent(ctx context.Context, event *AuctionEvent) error
	ListUnpublishedEvents(ctx context.Context, before time.Time, limit int) ([]*AuctionEvent, error)
	MarkEventPublished(ctx context.Context, eventID string, at time.Time) error
}

type Repository interface {
	AuctionRepository
	BidRepository
	ParticipantRepository
	EventRepository
}

// Store runs fn in one transaction; fn's error rolls everything back.
type Store interface {
	Repository
	WithTx(ctx context.Context, fn func(repo Repository) error) error
}

// ProductCatalog is the product CRUD collaborator.
type ProductCatalog interface {
	GetProductOwner(ctx context.Context, productID string) (string, error)
}

// Event interfaces
type EventPublisher interface {
	Publish(ctx context.Context, event *AuctionEvent) error
}

type EventSubscriber interface {
	SubscribeToAuctionEvents(ctx context.Context, handler EventHandler) error
}

type EventHandler func(event *AuctionEvent) error

// Notification interfaces
type Notifier interface {
	Notify(ctx context.Context, notification *Notification) error
}

type AuctionBroadcaster interface {
	BroadcastToAuction(ctx context.Context, auctionID string, message interface{}) error
}

// Leader election interface
type LeaderElection interface {
	BecomeLeader(ctx context.Context, instanceID string) (bool, error)
	IsLeader(ctx context.Context, instanceID string) (bool, error)
	ReleaseLeadership(ctx context.Context, instanceID string) error
}

// Scheduler interface
type AuctionScheduler interface {
	Start(ctx context.Context) error
	Stop() error
}

// WebSocket interfaces
type WebSocketConnection interface {
	Send(message interface{}) error
	Close() error
	UserID() string
	AuctionID() string
}

type ConnectionManager interface {
	RegisterConnection(userID, auctionID string, conn WebSocketConnection) error
	UnregisterConnection(userID, auctionID string) error
	ReleaseConnection(conn WebSocketConnection) error
	GetConnectionsForAuction(auctionID string) []WebSocketConnection
	GetConnectionsForUser(userID string) []WebSocketConnection
	BroadcastToAuction(auctionID string, message interface{}) error
	NotifyUser(userID string, message interface{}) error
	CloseAndUnregisterConnections(auctionID string) error
}
