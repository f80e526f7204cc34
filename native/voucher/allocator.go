package voucher

import (
	"errors"
	"fmt"

	"vouchermarket/core/events"
	"vouchermarket/core/types"
	"vouchermarket/native/common"
	"vouchermarket/native/offer"
)

const moduleName = "voucher"

var (
	errNilState    = errors.New("voucher allocator: state not configured")
	errNilOffers   = errors.New("voucher allocator: offer view not configured")
	errNilRegistry = errors.New("voucher allocator: registry not configured")
)

type allocatorState interface {
	RangePut(*Range) error
	RangeGet(offerID uint64) (*Range, bool, error)
	VoucherSeqGet(offerID uint64) (uint64, error)
	VoucherSeqPut(offerID uint64, seq uint64) error
}

// OfferView is the slice of the offer catalog the allocator needs.
type OfferView interface {
	OfferGet(id uint64) (*offer.Offer, bool, error)
}

// RegistryView resolves seller identities for authorization checks.
type RegistryView interface {
	SellerByAddress(addr [20]byte) (uint64, bool, error)
}

type allocatorEvent struct {
	evt *types.Event
}

func (e allocatorEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e allocatorEvent) Event() *types.Event { return e.evt }

// Allocator reserves contiguous token id ranges per offer, premints vouchers
// into the range owner's holdings, and burns unsold preminted ids in bounded
// batches once the offer is voided.
type Allocator struct {
	state    allocatorState
	offers   OfferView
	registry RegistryView
	emitter  events.Emitter
	pauses   common.PauseView

	maxRangeLength uint64
	burnBatchSize  uint64
}

// NewAllocator creates an allocator with a no-op emitter.
func NewAllocator() *Allocator {
	return &Allocator{
		emitter:        events.NoopEmitter{},
		maxRangeLength: 1 << 20,
		burnBatchSize:  500,
	}
}

// SetState configures the state backend.
func (a *Allocator) SetState(state allocatorState) { a.state = state }

// SetOffers configures the offer catalog view.
func (a *Allocator) SetOffers(view OfferView) { a.offers = view }

// SetRegistry configures the registry view used for seller authorization.
func (a *Allocator) SetRegistry(r RegistryView) { a.registry = r }

// SetPauses configures the administrative pause view.
func (a *Allocator) SetPauses(p common.PauseView) { a.pauses = p }

// SetLimits overrides the maximum reservable range length and the burn batch
// size.
func (a *Allocator) SetLimits(maxRangeLength, burnBatchSize uint64) {
	if maxRangeLength > 0 {
		a.maxRangeLength = maxRangeLength
	}
	if burnBatchSize > 0 {
		a.burnBatchSize = burnBatchSize
	}
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (a *Allocator) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		a.emitter = events.NoopEmitter{}
		return
	}
	a.emitter = emitter
}

func (a *Allocator) emit(evt *types.Event) {
	if a == nil || a.emitter == nil || evt == nil {
		return
	}
	a.emitter.Emit(allocatorEvent{evt: evt})
}

func (a *Allocator) loadOffer(offerID uint64) (*offer.Offer, error) {
	if a.offers == nil {
		return nil, errNilOffers
	}
	stored, ok, err := a.offers.OfferGet(offerID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("voucher: offer %d: %w", offerID, common.ErrNotFound)
	}
	return stored, nil
}

func (a *Allocator) requireSeller(caller [20]byte, o *offer.Offer) error {
	if a.registry == nil {
		return errNilRegistry
	}
	sellerID, ok, err := a.registry.SellerByAddress(caller)
	if err != nil {
		return err
	}
	if !ok || sellerID != o.SellerID {
		return fmt.Errorf("voucher: offer %d: caller is not the seller: %w", o.ID, common.ErrAccessDenied)
	}
	return nil
}

// ReserveRange allocates a contiguous id range for the offer. It may run only
// once per offer, only before any voucher has been issued, and only by the
// seller. The owner may be the seller's own account or a designated contract
// account used for price-discovery listings.
func (a *Allocator) ReserveRange(caller [20]byte, offerID, length, owner uint64) (*Range, error) {
	if a == nil || a.state == nil {
		return nil, errNilState
	}
	if err := common.Guard(a.pauses, moduleName); err != nil {
		return nil, err
	}
	stored, err := a.loadOffer(offerID)
	if err != nil {
		return nil, err
	}
	if err := a.requireSeller(caller, stored); err != nil {
		return nil, err
	}
	if length == 0 || length > a.maxRangeLength {
		return nil, fmt.Errorf("voucher: range length %d out of bounds (max %d): %w", length, a.maxRangeLength, common.ErrConfigurationInvalid)
	}
	if length > stored.Quantity {
		return nil, fmt.Errorf("voucher: range length %d exceeds offer quantity %d: %w", length, stored.Quantity, common.ErrConfigurationInvalid)
	}
	if owner == 0 {
		return nil, fmt.Errorf("voucher: range owner required: %w", common.ErrConfigurationInvalid)
	}
	if _, exists, err := a.state.RangeGet(offerID); err != nil {
		return nil, err
	} else if exists {
		return nil, fmt.Errorf("voucher: offer %d already has a range: %w", offerID, common.ErrInvalidState)
	}
	seq, err := a.state.VoucherSeqGet(offerID)
	if err != nil {
		return nil, err
	}
	if seq != 0 {
		return nil, fmt.Errorf("voucher: offer %d already issued vouchers: %w", offerID, common.ErrInvalidState)
	}
	start, err := MakeTokenID(offerID, 1)
	if err != nil {
		return nil, err
	}
	rng := &Range{OfferID: offerID, Start: start, Length: length, Owner: owner}
	if err := a.state.RangePut(rng); err != nil {
		return nil, err
	}
	// Fresh mints continue after the reserved block.
	if err := a.state.VoucherSeqPut(offerID, length+1); err != nil {
		return nil, err
	}
	a.emit(NewRangeReservedEvent(rng))
	return rng.Clone(), nil
}

// IssueToken mints a fresh voucher id for a direct commit, outside any
// reserved range.
func (a *Allocator) IssueToken(offerID uint64) (uint64, error) {
	if a == nil || a.state == nil {
		return 0, errNilState
	}
	seq, err := a.state.VoucherSeqGet(offerID)
	if err != nil {
		return 0, err
	}
	if seq == 0 {
		seq = 1
	}
	tokenID, err := MakeTokenID(offerID, seq)
	if err != nil {
		return 0, err
	}
	if err := a.state.VoucherSeqPut(offerID, seq+1); err != nil {
		return 0, err
	}
	return tokenID, nil
}

// PreMint mints up to the remaining range capacity into the owner's holdings
// without creating exchanges. It returns the number of vouchers actually
// minted, which may be less than requested.
func (a *Allocator) PreMint(caller [20]byte, offerID, amount uint64) (uint64, error) {
	if a == nil || a.state == nil {
		return 0, errNilState
	}
	if err := common.Guard(a.pauses, moduleName); err != nil {
		return 0, err
	}
	stored, err := a.loadOffer(offerID)
	if err != nil {
		return 0, err
	}
	if err := a.requireSeller(caller, stored); err != nil {
		return 0, err
	}
	if stored.Voided {
		return 0, fmt.Errorf("voucher: offer %d is voided: %w", offerID, common.ErrInvalidState)
	}
	rng, ok, err := a.state.RangeGet(offerID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("voucher: offer %d has no reserved range: %w", offerID, common.ErrNotFound)
	}
	if amount == 0 {
		return 0, fmt.Errorf("voucher: premint amount must be positive: %w", common.ErrConfigurationInvalid)
	}
	minted := amount
	if remaining := rng.Remaining(); minted > remaining {
		minted = remaining
	}
	if minted == 0 {
		return 0, fmt.Errorf("voucher: range for offer %d exhausted: %w", offerID, common.ErrInvalidState)
	}
	rng.Minted += minted
	if err := a.state.RangePut(rng); err != nil {
		return 0, err
	}
	a.emit(NewPremintedEvent(rng, minted))
	return minted, nil
}

// ConsumePreminted takes the next unsold preminted token id out of the
// owner's holdings; the exchange engine creates the matching exchange lazily.
func (a *Allocator) ConsumePreminted(offerID uint64) (uint64, error) {
	if a == nil || a.state == nil {
		return 0, errNilState
	}
	rng, ok, err := a.state.RangeGet(offerID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("voucher: offer %d has no reserved range: %w", offerID, common.ErrNotFound)
	}
	if rng.Unsold() == 0 {
		return 0, fmt.Errorf("voucher: no preminted vouchers left for offer %d: %w", offerID, common.ErrInvalidState)
	}
	tokenID := rng.Start + rng.Sold
	rng.Sold++
	if err := a.state.RangePut(rng); err != nil {
		return 0, err
	}
	return tokenID, nil
}

// BurnPreminted burns unsold preminted vouchers for a voided offer in bounded
// batches, advancing the burn cursor so very large ranges never require an
// unbounded single operation. It returns the number of ids burned by this
// call.
func (a *Allocator) BurnPreminted(caller [20]byte, offerID uint64) (uint64, error) {
	if a == nil || a.state == nil {
		return 0, errNilState
	}
	if err := common.Guard(a.pauses, moduleName); err != nil {
		return 0, err
	}
	stored, err := a.loadOffer(offerID)
	if err != nil {
		return 0, err
	}
	if err := a.requireSeller(caller, stored); err != nil {
		return 0, err
	}
	if !stored.Voided {
		return 0, fmt.Errorf("voucher: offer %d must be voided before burning: %w", offerID, common.ErrInvalidState)
	}
	rng, ok, err := a.state.RangeGet(offerID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("voucher: offer %d has no reserved range: %w", offerID, common.ErrNotFound)
	}
	cursor := rng.Start + rng.Sold
	if rng.LastBurned >= cursor {
		cursor = rng.LastBurned + 1
	}
	end := rng.Start + rng.Minted // exclusive
	if cursor >= end {
		return 0, fmt.Errorf("voucher: nothing left to burn for offer %d: %w", offerID, common.ErrInvalidState)
	}
	burned := end - cursor
	if burned > a.burnBatchSize {
		burned = a.burnBatchSize
	}
	rng.LastBurned = cursor + burned - 1
	if err := a.state.RangePut(rng); err != nil {
		return 0, err
	}
	a.emit(NewBurnedEvent(rng, burned))
	return burned, nil
}

// RangeFor returns a copy of the offer's range allocation.
func (a *Allocator) RangeFor(offerID uint64) (*Range, error) {
	if a == nil || a.state == nil {
		return nil, errNilState
	}
	rng, ok, err := a.state.RangeGet(offerID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("voucher: offer %d has no reserved range: %w", offerID, common.ErrNotFound)
	}
	return rng.Clone(), nil
}
