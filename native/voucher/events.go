package voucher

import (
	"strconv"

	"vouchermarket/core/types"
)

const (
	EventTypeRangeReserved = "market.range.reserved"
	EventTypeRangePremint  = "market.range.preminted"
	EventTypeRangeBurned   = "market.range.burned"
)

// NewRangeReservedEvent returns the payload for a newly reserved range.
func NewRangeReservedEvent(r *Range) *types.Event {
	return newRangeEvent(EventTypeRangeReserved, r, 0)
}

// NewPremintedEvent returns the payload emitted after a premint batch.
func NewPremintedEvent(r *Range, count uint64) *types.Event {
	return newRangeEvent(EventTypeRangePremint, r, count)
}

// NewBurnedEvent returns the payload emitted after a burn batch.
func NewBurnedEvent(r *Range, count uint64) *types.Event {
	return newRangeEvent(EventTypeRangeBurned, r, count)
}

func newRangeEvent(eventType string, r *Range, count uint64) *types.Event {
	attrs := make(map[string]string)
	if r == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["offerId"] = strconv.FormatUint(r.OfferID, 10)
	attrs["start"] = strconv.FormatUint(r.Start, 10)
	attrs["length"] = strconv.FormatUint(r.Length, 10)
	attrs["minted"] = strconv.FormatUint(r.Minted, 10)
	attrs["owner"] = strconv.FormatUint(r.Owner, 10)
	if count > 0 {
		attrs["count"] = strconv.FormatUint(count, 10)
	}
	if r.LastBurned > 0 {
		attrs["lastBurned"] = strconv.FormatUint(r.LastBurned, 10)
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}
