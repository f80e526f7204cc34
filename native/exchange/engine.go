package exchange

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"vouchermarket/core/events"
	"vouchermarket/core/types"
	"vouchermarket/native/common"
	"vouchermarket/native/fees"
	"vouchermarket/native/funds"
	"vouchermarket/native/offer"
	"vouchermarket/native/pricing"
	"vouchermarket/native/voucher"
)

const moduleName = "exchange"

var (
	errNilState     = errors.New("exchange engine: state not configured")
	errNilLedger    = errors.New("exchange engine: funds ledger not configured")
	errNilRegistry  = errors.New("exchange engine: registry not configured")
	errNilAllocator = errors.New("exchange engine: voucher allocator not configured")
)

type engineState interface {
	OfferGet(id uint64) (*offer.Offer, bool, error)
	OfferPut(*offer.Offer) error
	ExchangePut(*Exchange) error
	ExchangeGet(id uint64) (*Exchange, bool, error)
	NextExchangeID() (uint64, error)
}

// AccountResolver is the slice of the account registry the engine consumes.
type AccountResolver interface {
	ResolveOrCreateBuyer(addr [20]byte) (uint64, error)
	AccountByAddress(addr [20]byte) (uint64, bool, error)
	AccountAddress(id uint64) ([20]byte, bool, error)
}

// TwinTransferer executes bundled-inventory transfers during redemption. A
// failure aborts the redemption; a partially delivered bundle is not a valid
// end state.
type TwinTransferer interface {
	TransferTwins(exchangeID, buyerID uint64) error
}

type exchangeEvent struct {
	evt *types.Event
}

func (e exchangeEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e exchangeEvent) Event() *types.Event { return e.evt }

// Engine drives exchanges through the commit, redemption, cancellation,
// revocation, expiry and completion transitions, invoking the funds ledger
// and the fee calculator at settlement. All deadline transitions are
// evaluated lazily at call time; the engine never schedules anything.
type Engine struct {
	state     engineState
	ledger    *funds.Ledger
	allocator *voucher.Allocator
	registry  AccountResolver
	adapter   *pricing.Adapter
	twins     TwinTransferer
	emitter   events.Emitter
	pauses    common.PauseView
	guard     common.ReentrancyGuard
	nowFn     func() int64

	treasury uint64
	conduit  uint64
}

// NewEngine creates an exchange engine with a no-op emitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetLedger configures the funds ledger.
func (e *Engine) SetLedger(l *funds.Ledger) { e.ledger = l }

// SetAllocator configures the voucher range allocator.
func (e *Engine) SetAllocator(a *voucher.Allocator) { e.allocator = a }

// SetRegistry configures the account registry view.
func (e *Engine) SetRegistry(r AccountResolver) { e.registry = r }

// SetPricingAdapter configures the price discovery adapter used by
// discovery-priced and sequential commits.
func (e *Engine) SetPricingAdapter(a *pricing.Adapter) { e.adapter = a }

// SetTwinTransferer configures the bundled-inventory executor invoked during
// redemption. Nil disables bundle transfers.
func (e *Engine) SetTwinTransferer(t TwinTransferer) { e.twins = t }

// SetPauses configures the administrative pause view.
func (e *Engine) SetPauses(p common.PauseView) { e.pauses = p }

// SetFeeTreasury configures the account credited with protocol fees.
func (e *Engine) SetFeeTreasury(account uint64) { e.treasury = account }

// SetConduit configures the clearing account price-discovery mechanisms
// settle into.
func (e *Engine) SetConduit(account uint64) { e.conduit = account }

// SetNowFunc overrides the time source used by the engine. Primarily
// intended for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(evt *types.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(exchangeEvent{evt: evt})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) loadExchange(id uint64) (*Exchange, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	stored, ok, err := e.state.ExchangeGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("exchange %d: %w", id, common.ErrNotFound)
	}
	return stored, nil
}

func (e *Engine) loadOffer(id uint64) (*offer.Offer, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	stored, ok, err := e.state.OfferGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("exchange: offer %d: %w", id, common.ErrNotFound)
	}
	return stored, nil
}

func (e *Engine) callerAccount(caller [20]byte) (uint64, error) {
	if e.registry == nil {
		return 0, errNilRegistry
	}
	id, ok, err := e.registry.AccountByAddress(caller)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("exchange: caller %x has no account: %w", caller, common.ErrAccessDenied)
	}
	return id, nil
}

// Get returns a copy of the exchange.
func (e *Engine) Get(exchangeID uint64) (*Exchange, error) {
	stored, err := e.loadExchange(exchangeID)
	if err != nil {
		return nil, err
	}
	return stored.Clone(), nil
}

// StateOf returns the exchange's current lifecycle state.
func (e *Engine) StateOf(exchangeID uint64) (State, error) {
	stored, err := e.loadExchange(exchangeID)
	if err != nil {
		return 0, err
	}
	return stored.State, nil
}

// IsFinalized reports whether the exchange reached a terminal outcome.
func (e *Engine) IsFinalized(exchangeID uint64) (bool, error) {
	stored, err := e.loadExchange(exchangeID)
	if err != nil {
		return false, err
	}
	return stored.Finalized(), nil
}

// CompletionSplits computes the full-settlement distribution of an
// exchange's escrow pool (price plus seller deposit): seller net payoff and
// deposit to the seller, protocol fee to the treasury, agent fee and royalty
// payouts to their recipients. The dispute module reuses it for
// retract-style outcomes.
func CompletionSplits(x *Exchange, o *offer.Offer, treasury uint64) []funds.Split {
	settlement := fees.Settle(x.Price, o.FeeConfig())
	sellerTake := new(big.Int).Add(settlement.SellerNet, o.SellerDeposit)
	splits := []funds.Split{{Account: o.SellerID, Amount: sellerTake}}
	if settlement.ProtocolFee.Sign() > 0 {
		splits = append(splits, funds.Split{Account: treasury, Amount: settlement.ProtocolFee})
	}
	if settlement.AgentFee.Sign() > 0 {
		splits = append(splits, funds.Split{Account: o.AgentID, Amount: settlement.AgentFee})
	}
	for _, payout := range settlement.Royalties {
		splits = append(splits, funds.Split{Account: payout.Recipient, Amount: payout.Amount})
	}
	return splits
}

// RedeemVoucher moves a committed exchange into the redeemed state. The
// caller must be the current voucher holder and the call must land inside
// the redemption window. Window checks use the offer's redeemable-from, not
// the committed date, because preminted vouchers exist before any commit.
func (e *Engine) RedeemVoucher(caller [20]byte, exchangeID uint64) error {
	release, err := e.guard.Enter()
	if err != nil {
		return err
	}
	defer release()
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	stored, err := e.loadExchange(exchangeID)
	if err != nil {
		return err
	}
	callerID, err := e.callerAccount(caller)
	if err != nil {
		return err
	}
	if callerID != stored.BuyerID {
		return fmt.Errorf("exchange %d: only the voucher holder may redeem: %w", exchangeID, common.ErrAccessDenied)
	}
	if stored.State != StateCommitted {
		return fmt.Errorf("exchange %d: cannot redeem in state %s: %w", exchangeID, stored.State, common.ErrInvalidState)
	}
	o, err := e.loadOffer(stored.OfferID)
	if err != nil {
		return err
	}
	now := e.now()
	if now < o.RedeemableFrom {
		return fmt.Errorf("exchange %d: redemption window not open: %w", exchangeID, common.ErrPeriodViolation)
	}
	if now >= stored.Voucher.ValidUntil {
		return fmt.Errorf("exchange %d: voucher no longer valid: %w", exchangeID, common.ErrPeriodViolation)
	}
	if e.twins != nil {
		if err := e.twins.TransferTwins(exchangeID, stored.BuyerID); err != nil {
			return fmt.Errorf("exchange %d: bundled transfer failed: %w: %v", exchangeID, common.ErrTransferFailure, err)
		}
	}
	stored.State = StateRedeemed
	stored.Voucher.RedeemedAt = now
	if err := e.state.ExchangePut(stored); err != nil {
		return err
	}
	e.emit(NewRedeemedEvent(stored, callerID))
	return nil
}

// CancelVoucher lets the voucher holder walk away from a committed exchange,
// forfeiting the cancellation penalty to the seller. Cancellation is valid
// exactly inside the redemption window; an expired voucher goes through
// ExpireVoucher instead.
func (e *Engine) CancelVoucher(caller [20]byte, exchangeID uint64) error {
	release, err := e.guard.Enter()
	if err != nil {
		return err
	}
	defer release()
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	stored, err := e.loadExchange(exchangeID)
	if err != nil {
		return err
	}
	callerID, err := e.callerAccount(caller)
	if err != nil {
		return err
	}
	if callerID != stored.BuyerID {
		return fmt.Errorf("exchange %d: only the voucher holder may cancel: %w", exchangeID, common.ErrAccessDenied)
	}
	if stored.State != StateCommitted {
		return fmt.Errorf("exchange %d: cannot cancel in state %s: %w", exchangeID, stored.State, common.ErrInvalidState)
	}
	o, err := e.loadOffer(stored.OfferID)
	if err != nil {
		return err
	}
	now := e.now()
	if now < o.RedeemableFrom {
		return fmt.Errorf("exchange %d: cancellation window not open: %w", exchangeID, common.ErrPeriodViolation)
	}
	if now >= stored.Voucher.ValidUntil {
		return fmt.Errorf("exchange %d: voucher expired, use expire instead: %w", exchangeID, common.ErrPeriodViolation)
	}
	penalty := new(big.Int).Set(o.BuyerCancelPenalty)
	if penalty.Cmp(stored.Price) > 0 {
		penalty.Set(stored.Price)
	}
	buyerTake := new(big.Int).Sub(stored.Price, penalty)
	sellerTake := new(big.Int).Add(o.SellerDeposit, penalty)
	splits := []funds.Split{
		{Account: stored.BuyerID, Amount: buyerTake},
		{Account: o.SellerID, Amount: sellerTake},
	}
	if err := e.ledger.Release(exchangeID, o.Currency, splits); err != nil {
		return err
	}
	stored.State = StateCanceled
	stored.FinalizedAt = now
	if err := e.state.ExchangePut(stored); err != nil {
		return err
	}
	e.emit(NewCanceledEvent(stored, callerID))
	return nil
}

// RevokeVoucher lets the seller back out of a committed exchange before
// fulfilment. Both parties' contributions return to them in full.
func (e *Engine) RevokeVoucher(caller [20]byte, exchangeID uint64) error {
	release, err := e.guard.Enter()
	if err != nil {
		return err
	}
	defer release()
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	stored, err := e.loadExchange(exchangeID)
	if err != nil {
		return err
	}
	o, err := e.loadOffer(stored.OfferID)
	if err != nil {
		return err
	}
	callerID, err := e.callerAccount(caller)
	if err != nil {
		return err
	}
	if callerID != o.SellerID {
		return fmt.Errorf("exchange %d: only the seller may revoke: %w", exchangeID, common.ErrAccessDenied)
	}
	if stored.State != StateCommitted {
		return fmt.Errorf("exchange %d: cannot revoke in state %s: %w", exchangeID, stored.State, common.ErrInvalidState)
	}
	if err := e.ledger.Release(exchangeID, o.Currency, revocationSplits(stored, o)); err != nil {
		return err
	}
	stored.State = StateRevoked
	stored.FinalizedAt = e.now()
	if err := e.state.ExchangePut(stored); err != nil {
		return err
	}
	e.emit(NewRevokedEvent(stored, callerID))
	return nil
}

// ExpireVoucher finalizes a committed exchange whose voucher validity lapsed
// without redemption. Anyone may trigger it once the deadline passed; the
// split matches revocation since the seller bears the cost of the
// unfulfilled window.
func (e *Engine) ExpireVoucher(exchangeID uint64) error {
	release, err := e.guard.Enter()
	if err != nil {
		return err
	}
	defer release()
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	stored, err := e.loadExchange(exchangeID)
	if err != nil {
		return err
	}
	if stored.State != StateCommitted {
		return fmt.Errorf("exchange %d: cannot expire in state %s: %w", exchangeID, stored.State, common.ErrInvalidState)
	}
	now := e.now()
	if now < stored.Voucher.ValidUntil {
		return fmt.Errorf("exchange %d: voucher still valid until %d: %w", exchangeID, stored.Voucher.ValidUntil, common.ErrPeriodViolation)
	}
	o, err := e.loadOffer(stored.OfferID)
	if err != nil {
		return err
	}
	if err := e.ledger.Release(exchangeID, o.Currency, revocationSplits(stored, o)); err != nil {
		return err
	}
	stored.State = StateCanceled
	stored.Voucher.Expired = true
	stored.FinalizedAt = now
	if err := e.state.ExchangePut(stored); err != nil {
		return err
	}
	e.emit(NewExpiredEvent(stored, 0))
	return nil
}

func revocationSplits(x *Exchange, o *offer.Offer) []funds.Split {
	return []funds.Split{
		{Account: x.BuyerID, Amount: new(big.Int).Set(x.Price)},
		{Account: o.SellerID, Amount: new(big.Int).Set(o.SellerDeposit)},
	}
}

// CompleteExchange settles a redeemed exchange. The buyer may complete at
// any time after redemption; anyone else only once the dispute period has
// elapsed with no dispute raised.
func (e *Engine) CompleteExchange(caller [20]byte, exchangeID uint64) error {
	release, err := e.guard.Enter()
	if err != nil {
		return err
	}
	defer release()
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	stored, err := e.loadExchange(exchangeID)
	if err != nil {
		return err
	}
	if stored.State != StateRedeemed {
		return fmt.Errorf("exchange %d: cannot complete in state %s: %w", exchangeID, stored.State, common.ErrInvalidState)
	}
	o, err := e.loadOffer(stored.OfferID)
	if err != nil {
		return err
	}
	callerID, err := e.callerAccount(caller)
	if err != nil {
		return err
	}
	now := e.now()
	if callerID != stored.BuyerID {
		if now < stored.Voucher.RedeemedAt+o.DisputePeriod {
			return fmt.Errorf("exchange %d: dispute period still open: %w", exchangeID, common.ErrPeriodViolation)
		}
	}
	if err := e.ledger.Release(exchangeID, o.Currency, CompletionSplits(stored, o, e.treasury)); err != nil {
		return err
	}
	stored.State = StateCompleted
	stored.FinalizedAt = now
	if err := e.state.ExchangePut(stored); err != nil {
		return err
	}
	e.emit(NewCompletedEvent(stored, callerID))
	return nil
}

// OnVoucherTransferred is invoked by the voucher-token collaborator on every
// ownership transfer. A transfer of a dead claim is meaningless, so it is
// rejected for anything but a live committed exchange.
func (e *Engine) OnVoucherTransferred(exchangeID uint64, newHolder [20]byte) error {
	release, err := e.guard.Enter()
	if err != nil {
		return err
	}
	defer release()
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if e.registry == nil {
		return errNilRegistry
	}
	if newHolder == ([20]byte{}) {
		return fmt.Errorf("exchange %d: zero transfer target: %w", exchangeID, common.ErrConfigurationInvalid)
	}
	stored, err := e.loadExchange(exchangeID)
	if err != nil {
		return err
	}
	if stored.State != StateCommitted || stored.Voucher.Expired {
		return fmt.Errorf("exchange %d: voucher not transferable in state %s: %w", exchangeID, stored.State, common.ErrInvalidState)
	}
	buyerID, err := e.registry.ResolveOrCreateBuyer(newHolder)
	if err != nil {
		return err
	}
	stored.BuyerID = buyerID
	if err := e.state.ExchangePut(stored); err != nil {
		return err
	}
	e.emit(NewTransferredEvent(stored, buyerID))
	return nil
}
