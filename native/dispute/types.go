package dispute

import "math/big"

// State enumerates the dispute lifecycle. Resolving and Escalated are live;
// every other state is terminal and finalizes the parent exchange.
type State uint8

const (
	StateResolving State = iota
	StateRetracted
	StateResolved
	StateEscalated
	StateDecided
	StateRefused
)

// Valid reports whether the state value is within the supported range.
func (s State) Valid() bool {
	return s <= StateRefused
}

func (s State) String() string {
	switch s {
	case StateResolving:
		return "resolving"
	case StateRetracted:
		return "retracted"
	case StateResolved:
		return "resolved"
	case StateEscalated:
		return "escalated"
	case StateDecided:
		return "decided"
	case StateRefused:
		return "refused"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state admits no further transitions.
func (s State) Terminal() bool {
	return s != StateResolving && s != StateEscalated
}

// Dispute tracks the contested settlement of one exchange. At most one
// dispute ever exists per exchange; its id is the exchange id.
type Dispute struct {
	ExchangeID      uint64
	State           State
	BuyerPercentBps uint32

	RaisedAt           int64
	ResolutionDeadline int64

	EscalatedAt        int64
	EscalationDeadline int64
	EscalatedBy        uint64
	EscalationDeposit  *big.Int
}

// Clone returns a deep copy of the dispute.
func (d *Dispute) Clone() *Dispute {
	if d == nil {
		return nil
	}
	clone := *d
	if d.EscalationDeposit != nil {
		clone.EscalationDeposit = new(big.Int).Set(d.EscalationDeposit)
	}
	return &clone
}

// Escalated reports whether an escalation deposit is held in the exchange's
// escrow pool and must be paid back out at settlement.
func (d *Dispute) Escalated() bool {
	return d != nil && d.EscalatedBy != 0
}
