package fees

import (
	"fmt"
	"math/big"

	"vouchermarket/native/common"
)

// BpsDenominator is the basis-point scale used for every percentage in the
// protocol. Amounts are computed with integer floor division so that dust
// always stays with the payer and results are bit-exact reproducible.
const BpsDenominator = 10_000

// RoyaltyShare assigns a basis-point slice of a sale price to a recipient
// account.
type RoyaltyShare struct {
	Recipient uint64
	Bps       uint32
}

// Config captures the fee percentages snapshotted into an offer at creation
// time. Settlement never re-reads global configuration.
type Config struct {
	ProtocolFeeBps uint32
	AgentFeeBps    uint32
	AgentID        uint64
	Royalties      []RoyaltyShare
}

// RoyaltyPayout is a resolved royalty obligation for a concrete price.
type RoyaltyPayout struct {
	Recipient uint64
	Amount    *big.Int
}

// Settlement is the result of splitting a sale price. The parts always sum
// exactly to the input price.
type Settlement struct {
	ProtocolFee *big.Int
	AgentFee    *big.Int
	Royalties   []RoyaltyPayout
	SellerNet   *big.Int
}

// BpsAmount returns floor(amount * bps / 10000).
func BpsAmount(amount *big.Int, bps uint32) *big.Int {
	if amount == nil || amount.Sign() <= 0 || bps == 0 {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(amount, big.NewInt(int64(bps)))
	return out.Div(out, big.NewInt(BpsDenominator))
}

// ValidateCaps enforces the offer-creation invariant that royalty shares plus
// the protocol fee fit under the configured maximum. It is evaluated once,
// when the offer is created; later changes to the global maximum do not
// retroactively invalidate existing offers.
func ValidateCaps(cfg Config, maxTotalFeeBps uint32) error {
	total := uint64(cfg.ProtocolFeeBps)
	for _, share := range cfg.Royalties {
		if share.Bps > BpsDenominator {
			return fmt.Errorf("fees: royalty share %d bps out of range: %w", share.Bps, common.ErrConfigurationInvalid)
		}
		total += uint64(share.Bps)
	}
	if cfg.AgentFeeBps > BpsDenominator {
		return fmt.Errorf("fees: agent fee %d bps out of range: %w", cfg.AgentFeeBps, common.ErrConfigurationInvalid)
	}
	if total > uint64(maxTotalFeeBps) {
		return fmt.Errorf("fees: royalty plus protocol fee %d bps exceeds cap %d: %w", total, maxTotalFeeBps, common.ErrConfigurationInvalid)
	}
	return nil
}

// Settle splits a primary-sale price into protocol fee, agent fee, royalty
// payouts and the seller's net payoff.
func Settle(price *big.Int, cfg Config) Settlement {
	out := Settlement{
		ProtocolFee: BpsAmount(price, cfg.ProtocolFeeBps),
		AgentFee:    big.NewInt(0),
		SellerNet:   big.NewInt(0),
	}
	if cfg.AgentID != 0 {
		out.AgentFee = BpsAmount(price, cfg.AgentFeeBps)
	}
	remainder := new(big.Int)
	if price != nil {
		remainder.Set(price)
	}
	remainder.Sub(remainder, out.ProtocolFee)
	remainder.Sub(remainder, out.AgentFee)
	for _, share := range cfg.Royalties {
		amount := BpsAmount(price, share.Bps)
		if amount.Sign() == 0 {
			continue
		}
		out.Royalties = append(out.Royalties, RoyaltyPayout{Recipient: share.Recipient, Amount: amount})
		remainder.Sub(remainder, amount)
	}
	out.SellerNet = remainder
	return out
}

// SettleSecondary recomputes fees for a resale of the voucher's claim against
// the new price. The agent took its cut on the original commit; a secondary
// sale owes only the protocol fee and royalties, with the remainder going to
// the reseller.
func SettleSecondary(price *big.Int, cfg Config) Settlement {
	secondary := cfg
	secondary.AgentID = 0
	secondary.AgentFeeBps = 0
	return Settle(price, secondary)
}
