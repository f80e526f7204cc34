package offer

import (
	"strconv"

	"vouchermarket/core/types"
)

const (
	EventTypeOfferCreated        = "market.offer.created"
	EventTypeOfferVoided         = "market.offer.voided"
	EventTypeOfferRoyaltyUpdated = "market.offer.royalty_updated"
)

// NewCreatedEvent returns the canonical payload for a newly created offer.
func NewCreatedEvent(o *Offer) *types.Event { return newOfferEvent(EventTypeOfferCreated, o) }

// NewVoidedEvent returns the payload emitted when an offer is voided.
func NewVoidedEvent(o *Offer) *types.Event { return newOfferEvent(EventTypeOfferVoided, o) }

// NewRoyaltyUpdatedEvent returns the payload emitted after an administrative
// royalty-recipient update.
func NewRoyaltyUpdatedEvent(o *Offer) *types.Event {
	return newOfferEvent(EventTypeOfferRoyaltyUpdated, o)
}

func newOfferEvent(eventType string, o *Offer) *types.Event {
	attrs := make(map[string]string)
	if o == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["id"] = strconv.FormatUint(o.ID, 10)
	attrs["sellerId"] = strconv.FormatUint(o.SellerID, 10)
	attrs["price"] = o.Price.String()
	attrs["sellerDeposit"] = o.SellerDeposit.String()
	attrs["currency"] = o.Currency
	attrs["quantity"] = strconv.FormatUint(o.Quantity, 10)
	attrs["priceType"] = strconv.FormatUint(uint64(o.PriceType), 10)
	attrs["voided"] = strconv.FormatBool(o.Voided)
	return &types.Event{Type: eventType, Attributes: attrs}
}
