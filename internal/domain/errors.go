package domain

import "errors"

type Kind int

const (
	KindInternal Kind = iota
	KindUnauthenticated
	KindForbidden
	KindNotFound
	KindBadRequest
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindUnauthenticated:
		return "unauthenticated"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindBadRequest:
		return "bad_request"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

// Error is a caller-facing failure with a stable code.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func newError(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

var ErrUnauthenticated = newError(KindUnauthenticated, "unauthenticated", "caller identity missing")

// Authorization errors
var (
	ErrForbidden             = newError(KindForbidden, "forbidden", "operation not allowed")
	ErrStaffCannotOwn        = newError(KindForbidden, "staff_cannot_own", "staff accounts cannot own auctions")
	ErrStaffCannotBid        = newError(KindForbidden, "staff_cannot_bid", "staff accounts cannot take part in auctions")
	ErrNotProductOwner       = newError(KindForbidden, "not_product_owner", "caller does not own the product")
	ErrNotAuctionOwner       = newError(KindForbidden, "not_auction_owner", "caller does not own the auction")
	ErrOwnerCannotJoin       = newError(KindForbidden, "owner_cannot_join", "owners cannot take part in their own auction")
	ErrTooManyAuctions       = newError(KindForbidden, "too_many_auctions", "owner already has the maximum number of open auctions")
	ErrNotParticipant        = newError(KindForbidden, "not_participant", "caller has not joined the auction")
	ErrAuctionFull           = newError(KindForbidden, "auction_full", "auction reached its maximum number of bidders")
	ErrLeaveLockout          = newError(KindForbidden, "leave_lockout", "participants cannot leave within 6 hours of the start")
	ErrAuctionStarted        = newError(KindForbidden, "auction_started", "auction has already started")
	ErrParticipationRejected = newError(KindForbidden, "participation_rejected", "participation was rejected")
)

// Lookup errors
var (
	ErrAuctionNotFound     = newError(KindNotFound, "auction_not_found", "auction not found")
	ErrProductNotFound     = newError(KindNotFound, "product_not_found", "product not found")
	ErrParticipantNotFound = newError(KindNotFound, "participant_not_found", "participant not found")
)

// State errors
var (
	ErrInvalidArgument   = newError(KindBadRequest, "invalid_argument", "invalid argument")
	ErrInvalidSchedule   = newError(KindBadRequest, "invalid_schedule", "auction schedule is invalid")
	ErrAuctionClosed     = newError(KindBadRequest, "auction_closed", "auction is cancelled or finished")
	ErrAuctionNotStarted = newError(KindBadRequest, "auction_not_started", "auction has not started")
	ErrAuctionEnded      = newError(KindBadRequest, "auction_ended", "auction bidding window has elapsed")
	ErrAuctionNotEnded   = newError(KindBadRequest, "auction_not_ended", "auction bidding window is still open")
	ErrBidTooLow         = newError(KindBadRequest, "bid_too_low", "bid amount must exceed the current high bid")
	ErrAuctionTerminal   = newError(KindConflict, "auction_terminal", "auction already reached a terminal state")
	ErrBidConflict       = newError(KindConflict, "bid_conflict", "a concurrent bid with the same amount was accepted")
	ErrAlreadyJoined     = newError(KindConflict, "already_joined", "user already takes part in the auction")
	ErrProductInAuction  = newError(KindConflict, "product_in_auction", "product already has an open auction")
	ErrConcurrentUpdate  = newError(KindConflict, "concurrent_update", "auction was modified concurrently, retry with fresh state")
)

// KindOf returns the kind carried by err, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf returns the stable code carried by err, or "internal".
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "internal"
}
