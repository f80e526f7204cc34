package dispute

import (
	"strconv"

	"vouchermarket/core/types"
)

const (
	EventTypeDisputeRaised    = "market.dispute.raised"
	EventTypeDisputeRetracted = "market.dispute.retracted"
	EventTypeDisputeResolved  = "market.dispute.resolved"
	EventTypeDisputeEscalated = "market.dispute.escalated"
	EventTypeDisputeDecided   = "market.dispute.decided"
	EventTypeDisputeRefused   = "market.dispute.refused"
	EventTypeDisputeExpired   = "market.dispute.expired"
)

// NewRaisedEvent returns the payload emitted when a buyer opens a dispute.
func NewRaisedEvent(d *Dispute, actor uint64) *types.Event {
	return newDisputeEvent(EventTypeDisputeRaised, d, actor)
}

// NewRetractedEvent returns the payload emitted when the buyer withdraws.
func NewRetractedEvent(d *Dispute, actor uint64) *types.Event {
	return newDisputeEvent(EventTypeDisputeRetracted, d, actor)
}

// NewResolvedEvent returns the payload emitted on a mutual resolution.
func NewResolvedEvent(d *Dispute, actor uint64) *types.Event {
	return newDisputeEvent(EventTypeDisputeResolved, d, actor)
}

// NewEscalatedEvent returns the payload emitted when a party escalates.
func NewEscalatedEvent(d *Dispute, actor uint64) *types.Event {
	return newDisputeEvent(EventTypeDisputeEscalated, d, actor)
}

// NewDecidedEvent returns the payload emitted on the resolver's verdict.
func NewDecidedEvent(d *Dispute, actor uint64) *types.Event {
	return newDisputeEvent(EventTypeDisputeDecided, d, actor)
}

// NewRefusedEvent returns the payload emitted when the resolver declines.
func NewRefusedEvent(d *Dispute, actor uint64) *types.Event {
	return newDisputeEvent(EventTypeDisputeRefused, d, actor)
}

// NewExpiredEvent returns the payload emitted when a deadline-driven expiry
// finalizes the dispute.
func NewExpiredEvent(d *Dispute) *types.Event {
	return newDisputeEvent(EventTypeDisputeExpired, d, 0)
}

func newDisputeEvent(eventType string, d *Dispute, actor uint64) *types.Event {
	attrs := make(map[string]string)
	if d == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["exchangeId"] = strconv.FormatUint(d.ExchangeID, 10)
	attrs["state"] = d.State.String()
	if actor != 0 {
		attrs["actor"] = strconv.FormatUint(actor, 10)
	}
	if d.State == StateResolved || d.State == StateDecided {
		attrs["buyerPercentBps"] = strconv.FormatUint(uint64(d.BuyerPercentBps), 10)
	}
	if d.Escalated() {
		attrs["escalatedBy"] = strconv.FormatUint(d.EscalatedBy, 10)
		attrs["escalationDeposit"] = d.EscalationDeposit.String()
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}
