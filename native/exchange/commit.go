package exchange

import (
	"fmt"
	"math/big"

	"vouchermarket/native/common"
	"vouchermarket/native/fees"
	"vouchermarket/native/offer"
	"vouchermarket/native/pricing"
	"vouchermarket/native/voucher"
)

func (e *Engine) commitChecks(offerID uint64, wantType offer.PriceType) (*offer.Offer, error) {
	o, err := e.loadOffer(offerID)
	if err != nil {
		return nil, err
	}
	if o.Voided {
		return nil, fmt.Errorf("exchange: offer %d is voided: %w", offerID, common.ErrInvalidState)
	}
	if o.PriceType != wantType {
		return nil, fmt.Errorf("exchange: offer %d has price type %d: %w", offerID, o.PriceType, common.ErrInvalidState)
	}
	if o.Quantity == 0 {
		return nil, fmt.Errorf("exchange: offer %d sold out: %w", offerID, common.ErrInvalidState)
	}
	now := e.now()
	if now < o.ValidFrom || now >= o.ValidUntil {
		return nil, fmt.Errorf("exchange: offer %d not open for commits: %w", offerID, common.ErrPeriodViolation)
	}
	return o, nil
}

func (e *Engine) voucherValidUntil(o *offer.Offer, committedAt int64) int64 {
	base := committedAt
	if o.RedeemableFrom > base {
		base = o.RedeemableFrom
	}
	validUntil := base + o.VoucherValidDuration
	if o.RedeemableUntil != 0 && validUntil > o.RedeemableUntil {
		validUntil = o.RedeemableUntil
	}
	return validUntil
}

func (e *Engine) storeCommit(o *offer.Offer, buyerID, tokenID uint64, price *big.Int) (*Exchange, error) {
	now := e.now()
	id, err := e.state.NextExchangeID()
	if err != nil {
		return nil, err
	}
	x := &Exchange{
		ID:      id,
		OfferID: o.ID,
		BuyerID: buyerID,
		Price:   new(big.Int).Set(price),
		State:   StateCommitted,
		Voucher: Voucher{
			TokenID:     tokenID,
			CommittedAt: now,
			ValidUntil:  e.voucherValidUntil(o, now),
		},
	}
	if err := e.ledger.Encumber(x.ID, buyerID, o.Currency, price); err != nil {
		return nil, err
	}
	if err := e.ledger.Encumber(x.ID, o.SellerID, o.Currency, o.SellerDeposit); err != nil {
		return nil, err
	}
	o.Quantity--
	if err := e.state.OfferPut(o); err != nil {
		return nil, err
	}
	if err := e.state.ExchangePut(x); err != nil {
		return nil, err
	}
	return x, nil
}

// CommitToOffer commits the caller to a static-price offer. Both escrow legs
// are pre-checked before the exchange id is drawn so a failed commit never
// consumes an id or moves funds.
func (e *Engine) CommitToOffer(caller [20]byte, offerID uint64) (*Exchange, error) {
	release, err := e.guard.Enter()
	if err != nil {
		return nil, err
	}
	defer release()
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if e.state == nil {
		return nil, errNilState
	}
	if e.ledger == nil {
		return nil, errNilLedger
	}
	if e.allocator == nil {
		return nil, errNilAllocator
	}
	if e.registry == nil {
		return nil, errNilRegistry
	}
	o, err := e.commitChecks(offerID, offer.PriceStatic)
	if err != nil {
		return nil, err
	}
	buyerID, err := e.registry.ResolveOrCreateBuyer(caller)
	if err != nil {
		return nil, err
	}
	if err := e.ledger.CanEncumber(buyerID, o.Currency, o.Price); err != nil {
		return nil, err
	}
	if err := e.ledger.CanEncumber(o.SellerID, o.Currency, o.SellerDeposit); err != nil {
		return nil, err
	}
	tokenID, err := e.allocator.IssueToken(offerID)
	if err != nil {
		return nil, err
	}
	x, err := e.storeCommit(o, buyerID, tokenID, o.Price)
	if err != nil {
		return nil, err
	}
	e.emit(NewCommittedEvent(x, buyerID))
	return x.Clone(), nil
}

// CommitToPriceDiscoveryOffer commits the caller to a discovery-priced offer.
// The external mechanism determines the price and settles it into the conduit
// account; the engine verifies the movement, then pulls the verified amount
// from the conduit into escrow alongside the seller deposit. The voucher comes
// out of the offer's preminted range. The seller deposit is checked before the
// external call so buyer funds never strand at the conduit on a doomed commit.
func (e *Engine) CommitToPriceDiscoveryOffer(caller [20]byte, offerID uint64, d pricing.Descriptor) (*Exchange, error) {
	release, err := e.guard.Enter()
	if err != nil {
		return nil, err
	}
	defer release()
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if e.state == nil {
		return nil, errNilState
	}
	if e.ledger == nil {
		return nil, errNilLedger
	}
	if e.allocator == nil {
		return nil, errNilAllocator
	}
	if e.registry == nil {
		return nil, errNilRegistry
	}
	if e.adapter == nil {
		return nil, fmt.Errorf("exchange: price discovery not configured: %w", common.ErrConfigurationInvalid)
	}
	o, err := e.commitChecks(offerID, offer.PriceDiscovery)
	if err != nil {
		return nil, err
	}
	buyerID, err := e.registry.ResolveOrCreateBuyer(caller)
	if err != nil {
		return nil, err
	}
	if err := e.ledger.CanEncumber(o.SellerID, o.Currency, o.SellerDeposit); err != nil {
		return nil, err
	}
	if d.Conduit == 0 {
		d.Conduit = e.conduit
	}
	price, err := e.adapter.ResolvePrice(d, buyerID, o.Currency)
	if err != nil {
		return nil, err
	}
	tokenID, err := e.allocator.ConsumePreminted(offerID)
	if err != nil {
		return nil, err
	}
	now := e.now()
	id, err := e.state.NextExchangeID()
	if err != nil {
		return nil, err
	}
	x := &Exchange{
		ID:      id,
		OfferID: o.ID,
		BuyerID: buyerID,
		Price:   price,
		State:   StateCommitted,
		Voucher: Voucher{
			TokenID:     tokenID,
			CommittedAt: now,
			ValidUntil:  e.voucherValidUntil(o, now),
		},
	}
	if err := e.ledger.Encumber(x.ID, d.Conduit, o.Currency, price); err != nil {
		return nil, err
	}
	if err := e.ledger.Encumber(x.ID, o.SellerID, o.Currency, o.SellerDeposit); err != nil {
		return nil, err
	}
	o.Quantity--
	if err := e.state.OfferPut(o); err != nil {
		return nil, err
	}
	if err := e.state.ExchangePut(x); err != nil {
		return nil, err
	}
	e.emit(NewCommittedEvent(x, buyerID))
	return x.Clone(), nil
}

// SequentialCommitToOffer resells a live voucher to a new buyer at an
// externally discovered price. The resale leg settles immediately out of the
// conduit: royalties and the protocol fee at the resale price, remainder to
// the current holder. The original escrow pool is untouched, so the primary
// settlement later plays out exactly as committed.
func (e *Engine) SequentialCommitToOffer(caller [20]byte, exchangeID uint64, d pricing.Descriptor) error {
	release, err := e.guard.Enter()
	if err != nil {
		return err
	}
	defer release()
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if e.ledger == nil {
		return errNilLedger
	}
	if e.registry == nil {
		return errNilRegistry
	}
	if e.adapter == nil {
		return fmt.Errorf("exchange: price discovery not configured: %w", common.ErrConfigurationInvalid)
	}
	stored, err := e.loadExchange(exchangeID)
	if err != nil {
		return err
	}
	if stored.State != StateCommitted || stored.Voucher.Expired {
		return fmt.Errorf("exchange %d: voucher not resellable in state %s: %w", exchangeID, stored.State, common.ErrInvalidState)
	}
	o, err := e.loadOffer(stored.OfferID)
	if err != nil {
		return err
	}
	now := e.now()
	if now >= stored.Voucher.ValidUntil {
		return fmt.Errorf("exchange %d: voucher no longer valid: %w", exchangeID, common.ErrPeriodViolation)
	}
	newBuyerID, err := e.registry.ResolveOrCreateBuyer(caller)
	if err != nil {
		return err
	}
	if newBuyerID == stored.BuyerID {
		return fmt.Errorf("exchange %d: holder cannot resell to itself: %w", exchangeID, common.ErrInvalidState)
	}
	if d.Conduit == 0 {
		d.Conduit = e.conduit
	}
	resalePrice, err := e.adapter.ResolvePrice(d, newBuyerID, o.Currency)
	if err != nil {
		return err
	}
	settlement := fees.SettleSecondary(resalePrice, o.FeeConfig())
	if settlement.ProtocolFee.Sign() > 0 {
		if err := e.ledger.Transfer(d.Conduit, e.treasury, o.Currency, settlement.ProtocolFee); err != nil {
			return err
		}
	}
	for _, payout := range settlement.Royalties {
		if err := e.ledger.Transfer(d.Conduit, payout.Recipient, o.Currency, payout.Amount); err != nil {
			return err
		}
	}
	if err := e.ledger.Transfer(d.Conduit, stored.BuyerID, o.Currency, settlement.SellerNet); err != nil {
		return err
	}
	stored.BuyerID = newBuyerID
	if err := e.state.ExchangePut(stored); err != nil {
		return err
	}
	e.emit(NewSequentialCommitEvent(stored, newBuyerID, resalePrice))
	return nil
}

// RoyaltyInfo reports the royalty receiver and amount for a sale of the token
// at the given price. The token id carries its offer id, so the lookup also
// answers for preminted vouchers that were never committed. With multiple
// royalty shares the first recipient is reported with the aggregate amount,
// matching the single-receiver lookup convention external marketplaces expect.
func (e *Engine) RoyaltyInfo(tokenID uint64, salePrice *big.Int) (uint64, *big.Int, error) {
	offerID, seq := voucher.SplitTokenID(tokenID)
	if offerID == 0 || seq == 0 {
		return 0, nil, fmt.Errorf("exchange: malformed token id %d: %w", tokenID, common.ErrConfigurationInvalid)
	}
	o, err := e.loadOffer(offerID)
	if err != nil {
		return 0, nil, err
	}
	if len(o.Royalties) == 0 {
		return 0, big.NewInt(0), nil
	}
	total := big.NewInt(0)
	for _, share := range o.Royalties {
		total.Add(total, fees.BpsAmount(salePrice, share.Bps))
	}
	return o.Royalties[0].Recipient, total, nil
}
