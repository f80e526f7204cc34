package exchange

import "math/big"

// State enumerates the exchange lifecycle. Disputed overlays a redeemed
// exchange while a dispute is active; the dispute module finalizes the
// exchange when the dispute reaches a terminal outcome.
type State uint8

const (
	StateCommitted State = iota
	StateRedeemed
	StateDisputed
	StateCompleted
	StateRevoked
	StateCanceled
)

// Valid reports whether the state value is within the supported range.
func (s State) Valid() bool {
	return s <= StateCanceled
}

func (s State) String() string {
	switch s {
	case StateCommitted:
		return "committed"
	case StateRedeemed:
		return "redeemed"
	case StateDisputed:
		return "disputed"
	case StateCompleted:
		return "completed"
	case StateRevoked:
		return "revoked"
	case StateCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Voucher is the transferable claim embedded in an exchange.
type Voucher struct {
	TokenID     uint64
	CommittedAt int64
	ValidUntil  int64
	RedeemedAt  int64
	Expired     bool
}

// Exchange is the stateful instance created by a successful commit. Ids are
// assigned monotonically and never reused; a finalized exchange is immutable.
// Price is the amount actually escrowed at commit time: the listed price for
// static offers, the mechanism-resolved price for discovery offers.
type Exchange struct {
	ID          uint64
	OfferID     uint64
	BuyerID     uint64
	Price       *big.Int
	State       State
	FinalizedAt int64
	Voucher     Voucher
}

// Clone returns a deep copy of the exchange.
func (e *Exchange) Clone() *Exchange {
	if e == nil {
		return nil
	}
	clone := *e
	if e.Price != nil {
		clone.Price = new(big.Int).Set(e.Price)
	}
	return &clone
}

// Finalized reports whether the exchange has reached a terminal outcome,
// including dispute-terminal ones.
func (e *Exchange) Finalized() bool {
	return e != nil && e.FinalizedAt != 0
}
