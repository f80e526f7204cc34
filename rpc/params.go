package rpc

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"vouchermarket/native/dispute"
	"vouchermarket/native/exchange"
	"vouchermarket/native/fees"
	"vouchermarket/native/offer"
	"vouchermarket/native/pricing"
	"vouchermarket/native/voucher"
)

// decodeParams enforces the single-parameter-object convention every market
// method follows and unmarshals it into out.
func decodeParams(w http.ResponseWriter, req *RPCRequest, out interface{}) bool {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", "exactly one parameter object expected")
		return false
	}
	if err := json.Unmarshal(req.Params[0], out); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return false
	}
	return true
}

func parseAddress(value string) ([20]byte, error) {
	var addr [20]byte
	trimmed := strings.TrimSpace(value)
	if !strings.HasPrefix(trimmed, "0x") && !strings.HasPrefix(trimmed, "0X") {
		return addr, fmt.Errorf("address must be 0x-prefixed")
	}
	raw, err := hex.DecodeString(trimmed[2:])
	if err != nil {
		return addr, fmt.Errorf("address is not valid hex: %v", err)
	}
	if len(raw) != len(addr) {
		return addr, fmt.Errorf("address must be %d bytes, got %d", len(addr), len(raw))
	}
	copy(addr[:], raw)
	return addr, nil
}

func formatAddress(addr [20]byte) string {
	return "0x" + hex.EncodeToString(addr[:])
}

// parseAmount accepts a non-negative base-10 integer string. Amounts travel
// as strings because JSON numbers cannot carry full 256-bit precision.
func parseAmount(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("amount required")
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("amount %q is not a base-10 integer", value)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("amount must not be negative")
	}
	return amount, nil
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func parseHexBytes(value string) ([]byte, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	if strings.HasPrefix(trimmed, "0x") || strings.HasPrefix(trimmed, "0X") {
		trimmed = trimmed[2:]
	}
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("invalid hex payload: %v", err)
	}
	return raw, nil
}

func parseSide(value string) (pricing.Side, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "ask":
		return pricing.SideAsk, nil
	case "bid":
		return pricing.SideBid, nil
	case "wrapper":
		return pricing.SideWrapper, nil
	default:
		return 0, fmt.Errorf("side must be one of ask, bid, wrapper")
	}
}

type royaltyShareParam struct {
	Recipient uint64 `json:"recipient"`
	Bps       uint32 `json:"bps"`
}

func royaltyShares(params []royaltyShareParam) []fees.RoyaltyShare {
	shares := make([]fees.RoyaltyShare, 0, len(params))
	for _, p := range params {
		shares = append(shares, fees.RoyaltyShare{Recipient: p.Recipient, Bps: p.Bps})
	}
	return shares
}

type offerView struct {
	ID                   uint64              `json:"id"`
	SellerID             uint64              `json:"sellerId"`
	Price                string              `json:"price"`
	SellerDeposit        string              `json:"sellerDeposit"`
	BuyerCancelPenalty   string              `json:"buyerCancelPenalty"`
	Quantity             uint64              `json:"quantity"`
	Currency             string              `json:"currency"`
	ValidFrom            int64               `json:"validFrom"`
	ValidUntil           int64               `json:"validUntil"`
	RedeemableFrom       int64               `json:"redeemableFrom"`
	RedeemableUntil      int64               `json:"redeemableUntil,omitempty"`
	DisputePeriod        int64               `json:"disputePeriod"`
	ResolutionPeriod     int64               `json:"resolutionPeriod"`
	VoucherValidDuration int64               `json:"voucherValidDuration"`
	DisputeResolverID    uint64              `json:"disputeResolverId,omitempty"`
	AgentID              uint64              `json:"agentId,omitempty"`
	ProtocolFeeBps       uint32              `json:"protocolFeeBps"`
	AgentFeeBps          uint32              `json:"agentFeeBps,omitempty"`
	EscalationDeposit    string              `json:"escalationDeposit"`
	Royalties            []royaltyShareParam `json:"royalties,omitempty"`
	PriceType            string              `json:"priceType"`
	Voided               bool                `json:"voided"`
	CreatedAt            int64               `json:"createdAt"`
}

func newOfferView(o *offer.Offer) *offerView {
	view := &offerView{
		ID:                   o.ID,
		SellerID:             o.SellerID,
		Price:                formatAmount(o.Price),
		SellerDeposit:        formatAmount(o.SellerDeposit),
		BuyerCancelPenalty:   formatAmount(o.BuyerCancelPenalty),
		Quantity:             o.Quantity,
		Currency:             o.Currency,
		ValidFrom:            o.ValidFrom,
		ValidUntil:           o.ValidUntil,
		RedeemableFrom:       o.RedeemableFrom,
		RedeemableUntil:      o.RedeemableUntil,
		DisputePeriod:        o.DisputePeriod,
		ResolutionPeriod:     o.ResolutionPeriod,
		VoucherValidDuration: o.VoucherValidDuration,
		DisputeResolverID:    o.DisputeResolverID,
		AgentID:              o.AgentID,
		ProtocolFeeBps:       o.ProtocolFeeBps,
		AgentFeeBps:          o.AgentFeeBps,
		EscalationDeposit:    formatAmount(o.EscalationDeposit),
		PriceType:            "static",
		Voided:               o.Voided,
		CreatedAt:            o.CreatedAt,
	}
	if o.PriceType == offer.PriceDiscovery {
		view.PriceType = "discovery"
	}
	for _, share := range o.Royalties {
		view.Royalties = append(view.Royalties, royaltyShareParam{Recipient: share.Recipient, Bps: share.Bps})
	}
	return view
}

type exchangeView struct {
	ID          uint64 `json:"id"`
	OfferID     uint64 `json:"offerId"`
	BuyerID     uint64 `json:"buyerId"`
	Price       string `json:"price"`
	State       string `json:"state"`
	FinalizedAt int64  `json:"finalizedAt,omitempty"`
	TokenID     uint64 `json:"tokenId"`
	CommittedAt int64  `json:"committedAt"`
	ValidUntil  int64  `json:"validUntil"`
	RedeemedAt  int64  `json:"redeemedAt,omitempty"`
	Expired     bool   `json:"expired"`
}

func newExchangeView(x *exchange.Exchange) *exchangeView {
	return &exchangeView{
		ID:          x.ID,
		OfferID:     x.OfferID,
		BuyerID:     x.BuyerID,
		Price:       formatAmount(x.Price),
		State:       x.State.String(),
		FinalizedAt: x.FinalizedAt,
		TokenID:     x.Voucher.TokenID,
		CommittedAt: x.Voucher.CommittedAt,
		ValidUntil:  x.Voucher.ValidUntil,
		RedeemedAt:  x.Voucher.RedeemedAt,
		Expired:     x.Voucher.Expired,
	}
}

type disputeView struct {
	ExchangeID         uint64 `json:"exchangeId"`
	State              string `json:"state"`
	BuyerPercentBps    uint32 `json:"buyerPercentBps,omitempty"`
	RaisedAt           int64  `json:"raisedAt"`
	ResolutionDeadline int64  `json:"resolutionDeadline"`
	EscalatedAt        int64  `json:"escalatedAt,omitempty"`
	EscalationDeadline int64  `json:"escalationDeadline,omitempty"`
	EscalatedBy        uint64 `json:"escalatedBy,omitempty"`
	EscalationDeposit  string `json:"escalationDeposit"`
}

func newDisputeView(d *dispute.Dispute) *disputeView {
	return &disputeView{
		ExchangeID:         d.ExchangeID,
		State:              d.State.String(),
		BuyerPercentBps:    d.BuyerPercentBps,
		RaisedAt:           d.RaisedAt,
		ResolutionDeadline: d.ResolutionDeadline,
		EscalatedAt:        d.EscalatedAt,
		EscalationDeadline: d.EscalationDeadline,
		EscalatedBy:        d.EscalatedBy,
		EscalationDeposit:  formatAmount(d.EscalationDeposit),
	}
}

type rangeView struct {
	OfferID    uint64 `json:"offerId"`
	Start      uint64 `json:"start"`
	Length     uint64 `json:"length"`
	Minted     uint64 `json:"minted"`
	Sold       uint64 `json:"sold"`
	LastBurned uint64 `json:"lastBurned,omitempty"`
	Owner      uint64 `json:"owner"`
}

func newRangeView(r *voucher.Range) *rangeView {
	return &rangeView{
		OfferID:    r.OfferID,
		Start:      r.Start,
		Length:     r.Length,
		Minted:     r.Minted,
		Sold:       r.Sold,
		LastBurned: r.LastBurned,
		Owner:      r.Owner,
	}
}
