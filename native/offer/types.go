package offer

import (
	"fmt"
	"math/big"

	"vouchermarket/native/common"
	"vouchermarket/native/fees"
	"vouchermarket/native/funds"
)

// PriceType distinguishes offers settled at the listed price from offers
// whose price comes out of an external discovery mechanism.
type PriceType uint8

const (
	PriceStatic PriceType = iota
	PriceDiscovery
)

// Valid reports whether the price type is within the supported range.
func (p PriceType) Valid() bool {
	return p == PriceStatic || p == PriceDiscovery
}

// Offer captures the seller-published terms a buyer can commit to, together
// with the fee and dispute-resolution snapshots taken at creation time.
// Offers are immutable after creation apart from the voided flag, the
// remaining quantity, and administrative royalty-recipient updates.
type Offer struct {
	ID       uint64
	SellerID uint64

	Price              *big.Int
	SellerDeposit      *big.Int
	BuyerCancelPenalty *big.Int
	Quantity           uint64
	Currency           string

	ValidFrom      int64
	ValidUntil     int64
	RedeemableFrom int64
	RedeemableUntil int64

	DisputePeriod        int64
	ResolutionPeriod     int64
	VoucherValidDuration int64

	DisputeResolverID uint64
	AgentID           uint64

	// Snapshots taken when the offer was created. Later registry or global
	// configuration changes never touch them.
	ProtocolFeeBps    uint32
	AgentFeeBps       uint32
	EscalationDeposit *big.Int

	Royalties []fees.RoyaltyShare
	PriceType PriceType
	Voided    bool
	CreatedAt int64
}

// FeeConfig assembles the settlement configuration snapshotted into the
// offer.
func (o *Offer) FeeConfig() fees.Config {
	cfg := fees.Config{
		ProtocolFeeBps: o.ProtocolFeeBps,
		AgentFeeBps:    o.AgentFeeBps,
		AgentID:        o.AgentID,
	}
	cfg.Royalties = append(cfg.Royalties, o.Royalties...)
	return cfg
}

// Clone returns a deep copy of the offer so callers can safely mutate the
// copy without affecting the stored instance.
func (o *Offer) Clone() *Offer {
	if o == nil {
		return nil
	}
	clone := *o
	clone.Price = cloneBigInt(o.Price)
	clone.SellerDeposit = cloneBigInt(o.SellerDeposit)
	clone.BuyerCancelPenalty = cloneBigInt(o.BuyerCancelPenalty)
	clone.EscalationDeposit = cloneBigInt(o.EscalationDeposit)
	clone.Royalties = append([]fees.RoyaltyShare(nil), o.Royalties...)
	return &clone
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// Sanitize validates and normalises the supplied offer, returning a cloned
// instance with canonical currency casing and non-nil amount fields. The
// original value is not mutated.
func Sanitize(o *Offer) (*Offer, error) {
	if o == nil {
		return nil, fmt.Errorf("offer: nil offer: %w", common.ErrConfigurationInvalid)
	}
	clone := o.Clone()
	currency, err := funds.NormalizeCurrency(clone.Currency)
	if err != nil {
		return nil, err
	}
	clone.Currency = currency
	if clone.Price.Sign() < 0 || clone.SellerDeposit.Sign() < 0 || clone.BuyerCancelPenalty.Sign() < 0 {
		return nil, fmt.Errorf("offer %d: negative amount: %w", clone.ID, common.ErrConfigurationInvalid)
	}
	if clone.BuyerCancelPenalty.Cmp(clone.Price) > 0 {
		return nil, fmt.Errorf("offer %d: cancel penalty exceeds price: %w", clone.ID, common.ErrConfigurationInvalid)
	}
	if clone.ValidFrom >= clone.ValidUntil {
		return nil, fmt.Errorf("offer %d: validity window empty: %w", clone.ID, common.ErrConfigurationInvalid)
	}
	if clone.RedeemableUntil != 0 && clone.RedeemableFrom >= clone.RedeemableUntil {
		return nil, fmt.Errorf("offer %d: redemption window empty: %w", clone.ID, common.ErrConfigurationInvalid)
	}
	if clone.VoucherValidDuration <= 0 {
		return nil, fmt.Errorf("offer %d: voucher valid duration must be positive: %w", clone.ID, common.ErrConfigurationInvalid)
	}
	if clone.DisputePeriod <= 0 || clone.ResolutionPeriod <= 0 {
		return nil, fmt.Errorf("offer %d: dispute periods must be positive: %w", clone.ID, common.ErrConfigurationInvalid)
	}
	if !clone.PriceType.Valid() {
		return nil, fmt.Errorf("offer %d: invalid price type %d: %w", clone.ID, clone.PriceType, common.ErrConfigurationInvalid)
	}
	return clone, nil
}
