package exchange

import (
	"math/big"
	"strconv"

	"vouchermarket/core/types"
)

const (
	EventTypeExchangeCommitted   = "market.exchange.committed"
	EventTypeExchangeRedeemed    = "market.exchange.redeemed"
	EventTypeExchangeCanceled    = "market.exchange.canceled"
	EventTypeExchangeRevoked     = "market.exchange.revoked"
	EventTypeExchangeExpired     = "market.exchange.expired"
	EventTypeExchangeCompleted   = "market.exchange.completed"
	EventTypeVoucherTransferred  = "market.voucher.transferred"
	EventTypeSequentialCommitted = "market.exchange.sequential_commit"
)

// NewCommittedEvent returns the canonical payload for a successful commit.
func NewCommittedEvent(x *Exchange, actor uint64) *types.Event {
	return newExchangeEvent(EventTypeExchangeCommitted, x, actor, nil)
}

// NewRedeemedEvent returns the payload emitted when a voucher is redeemed.
func NewRedeemedEvent(x *Exchange, actor uint64) *types.Event {
	return newExchangeEvent(EventTypeExchangeRedeemed, x, actor, nil)
}

// NewCanceledEvent returns the payload emitted when the holder cancels.
func NewCanceledEvent(x *Exchange, actor uint64) *types.Event {
	return newExchangeEvent(EventTypeExchangeCanceled, x, actor, nil)
}

// NewRevokedEvent returns the payload emitted when the seller revokes.
func NewRevokedEvent(x *Exchange, actor uint64) *types.Event {
	return newExchangeEvent(EventTypeExchangeRevoked, x, actor, nil)
}

// NewExpiredEvent returns the payload emitted when a voucher expires unused.
func NewExpiredEvent(x *Exchange, actor uint64) *types.Event {
	return newExchangeEvent(EventTypeExchangeExpired, x, actor, nil)
}

// NewCompletedEvent returns the payload emitted at settlement.
func NewCompletedEvent(x *Exchange, actor uint64) *types.Event {
	return newExchangeEvent(EventTypeExchangeCompleted, x, actor, nil)
}

// NewTransferredEvent returns the payload emitted when the voucher-token
// collaborator reports an ownership transfer.
func NewTransferredEvent(x *Exchange, newHolder uint64) *types.Event {
	return newExchangeEvent(EventTypeVoucherTransferred, x, newHolder, nil)
}

// NewSequentialCommitEvent returns the payload for a secondary-market resale
// of the voucher's claim.
func NewSequentialCommitEvent(x *Exchange, newBuyer uint64, price *big.Int) *types.Event {
	return newExchangeEvent(EventTypeSequentialCommitted, x, newBuyer, price)
}

func newExchangeEvent(eventType string, x *Exchange, actor uint64, price *big.Int) *types.Event {
	attrs := make(map[string]string)
	if x == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["id"] = strconv.FormatUint(x.ID, 10)
	attrs["offerId"] = strconv.FormatUint(x.OfferID, 10)
	attrs["buyerId"] = strconv.FormatUint(x.BuyerID, 10)
	attrs["state"] = x.State.String()
	attrs["tokenId"] = strconv.FormatUint(x.Voucher.TokenID, 10)
	if actor != 0 {
		attrs["actor"] = strconv.FormatUint(actor, 10)
	}
	if price != nil {
		attrs["price"] = price.String()
	}
	if x.FinalizedAt != 0 {
		attrs["finalizedAt"] = strconv.FormatInt(x.FinalizedAt, 10)
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}
