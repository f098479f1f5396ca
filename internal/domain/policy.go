package domain

type Role string

const (
	RoleUser      Role = "user"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

// IsStaff reports whether the role belongs to platform staff.
func (r Role) IsStaff() bool {
	return r == RoleAdmin || r == RoleModerator
}

// Caller is the identity resolved by upstream authentication.
type Caller struct {
	UserID string `json:"user_id"`
	Role   Role   `json:"role"`
}

func (c Caller) IsAdmin() bool {
	return c.Role == RoleAdmin
}

type Operation string

const (
	OpRegister Operation = "register"
	OpCancel   Operation = "cancel"
	OpClose    Operation = "close"
	OpBid      Operation = "bid"
	OpJoin     Operation = "join"
	OpLeave    Operation = "leave"
	OpKick     Operation = "kick"
	OpInvite   Operation = "invite"
)

// Resource describes what an operation acts on. OwnerID is the product owner
// for OpRegister and the auction owner otherwise.
type Resource struct {
	OwnerID string
}

// Policy is the single authorization matrix for auction operations.
type Policy struct {
	AdminCanCancel bool
}

func DefaultPolicy() Policy {
	return Policy{AdminCanCancel: true}
}

func (p Policy) Authorize(op Operation, caller Caller, res Resource) error {
	if caller.UserID == "" {
		return ErrUnauthenticated
	}

	isOwner := res.OwnerID != "" && res.OwnerID == caller.UserID

	switch op {
	case OpRegister:
		if caller.Role.IsStaff() {
			return ErrStaffCannotOwn
		}
		if !isOwner {
			return ErrNotProductOwner
		}
	case OpBid, OpJoin:
		if caller.Role.IsStaff() {
			return ErrStaffCannotBid
		}
		if isOwner {
			return ErrOwnerCannotJoin
		}
	case OpLeave:
		return nil
	case OpKick, OpInvite:
		if !isOwner && !caller.IsAdmin() {
			return ErrNotAuctionOwner
		}
	case OpCancel:
		if isOwner {
			return nil
		}
		if caller.IsAdmin() && p.AdminCanCancel {
			return nil
		}
		return ErrNotAuctionOwner
	case OpClose:
		if !caller.IsAdmin() {
			return ErrForbidden
		}
	default:
		return ErrForbidden
	}
	return nil
}
