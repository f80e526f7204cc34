package state

import (
	"math/big"

	"vouchermarket/native/fees"
	"vouchermarket/native/offer"
)

const offerPrefix = "market/offer/"

// Stored forms use unsigned timestamps throughout: the RLP codec rejects
// signed integers, and protocol times are unix seconds that never go
// negative.
type storedOffer struct {
	ID       uint64
	SellerID uint64

	Price              *big.Int
	SellerDeposit      *big.Int
	BuyerCancelPenalty *big.Int
	Quantity           uint64
	Currency           string

	ValidFrom       uint64
	ValidUntil      uint64
	RedeemableFrom  uint64
	RedeemableUntil uint64

	DisputePeriod        uint64
	ResolutionPeriod     uint64
	VoucherValidDuration uint64

	DisputeResolverID uint64
	AgentID           uint64

	ProtocolFeeBps    uint32
	AgentFeeBps       uint32
	EscalationDeposit *big.Int

	Royalties []storedRoyalty
	PriceType uint8
	Voided    bool
	CreatedAt uint64
}

type storedRoyalty struct {
	Recipient uint64
	Bps       uint32
}

func offerToStored(o *offer.Offer) *storedOffer {
	stored := &storedOffer{
		ID:                   o.ID,
		SellerID:             o.SellerID,
		Price:                nonNil(o.Price),
		SellerDeposit:        nonNil(o.SellerDeposit),
		BuyerCancelPenalty:   nonNil(o.BuyerCancelPenalty),
		Quantity:             o.Quantity,
		Currency:             o.Currency,
		ValidFrom:            uint64(o.ValidFrom),
		ValidUntil:           uint64(o.ValidUntil),
		RedeemableFrom:       uint64(o.RedeemableFrom),
		RedeemableUntil:      uint64(o.RedeemableUntil),
		DisputePeriod:        uint64(o.DisputePeriod),
		ResolutionPeriod:     uint64(o.ResolutionPeriod),
		VoucherValidDuration: uint64(o.VoucherValidDuration),
		DisputeResolverID:    o.DisputeResolverID,
		AgentID:              o.AgentID,
		ProtocolFeeBps:       o.ProtocolFeeBps,
		AgentFeeBps:          o.AgentFeeBps,
		EscalationDeposit:    nonNil(o.EscalationDeposit),
		PriceType:            uint8(o.PriceType),
		Voided:               o.Voided,
		CreatedAt:            uint64(o.CreatedAt),
	}
	for _, share := range o.Royalties {
		stored.Royalties = append(stored.Royalties, storedRoyalty{Recipient: share.Recipient, Bps: share.Bps})
	}
	return stored
}

func offerFromStored(stored *storedOffer) *offer.Offer {
	o := &offer.Offer{
		ID:                   stored.ID,
		SellerID:             stored.SellerID,
		Price:                nonNil(stored.Price),
		SellerDeposit:        nonNil(stored.SellerDeposit),
		BuyerCancelPenalty:   nonNil(stored.BuyerCancelPenalty),
		Quantity:             stored.Quantity,
		Currency:             stored.Currency,
		ValidFrom:            int64(stored.ValidFrom),
		ValidUntil:           int64(stored.ValidUntil),
		RedeemableFrom:       int64(stored.RedeemableFrom),
		RedeemableUntil:      int64(stored.RedeemableUntil),
		DisputePeriod:        int64(stored.DisputePeriod),
		ResolutionPeriod:     int64(stored.ResolutionPeriod),
		VoucherValidDuration: int64(stored.VoucherValidDuration),
		DisputeResolverID:    stored.DisputeResolverID,
		AgentID:              stored.AgentID,
		ProtocolFeeBps:       stored.ProtocolFeeBps,
		AgentFeeBps:          stored.AgentFeeBps,
		EscalationDeposit:    nonNil(stored.EscalationDeposit),
		PriceType:            offer.PriceType(stored.PriceType),
		Voided:               stored.Voided,
		CreatedAt:            int64(stored.CreatedAt),
	}
	for _, share := range stored.Royalties {
		o.Royalties = append(o.Royalties, fees.RoyaltyShare{Recipient: share.Recipient, Bps: share.Bps})
	}
	return o
}

func nonNil(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// OfferPut persists the offer.
func (m *Manager) OfferPut(o *offer.Offer) error {
	return m.put(hashKey(offerPrefix, idSuffix(o.ID)), offerToStored(o))
}

// OfferGet loads the offer by id.
func (m *Manager) OfferGet(id uint64) (*offer.Offer, bool, error) {
	var stored storedOffer
	ok, err := m.get(hashKey(offerPrefix, idSuffix(id)), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return offerFromStored(&stored), true, nil
}

// NextOfferID draws the next offer id.
func (m *Manager) NextOfferID() (uint64, error) {
	return m.nextID("offers")
}
