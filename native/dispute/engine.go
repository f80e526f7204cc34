package dispute

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/crypto"

	"vouchermarket/core/events"
	"vouchermarket/core/types"
	"vouchermarket/native/common"
	"vouchermarket/native/exchange"
	"vouchermarket/native/fees"
	"vouchermarket/native/funds"
	"vouchermarket/native/offer"
)

const moduleName = "dispute"

// resolutionDomainTag salts the digest both parties sign for a mutual
// resolution, so a signature can never be replayed against another message
// family.
const resolutionDomainTag = "vouchermarket/dispute/resolution/v1"

var (
	errNilState    = errors.New("dispute engine: state not configured")
	errNilLedger   = errors.New("dispute engine: funds ledger not configured")
	errNilRegistry = errors.New("dispute engine: registry not configured")
)

type engineState interface {
	DisputeGet(exchangeID uint64) (*Dispute, bool, error)
	DisputePut(*Dispute) error
	ExchangeGet(id uint64) (*exchange.Exchange, bool, error)
	ExchangePut(*exchange.Exchange) error
	OfferGet(id uint64) (*offer.Offer, bool, error)
}

// RegistryView is the slice of the account registry the engine consumes.
// Dispute settlement never consults resolver records; the offer snapshots
// carry everything needed, so registry edits cannot strand a live dispute.
type RegistryView interface {
	AccountByAddress(addr [20]byte) (uint64, bool, error)
	AccountAddress(id uint64) ([20]byte, bool, error)
}

type disputeEvent struct {
	evt *types.Event
}

func (e disputeEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e disputeEvent) Event() *types.Event { return e.evt }

// Engine drives disputes from raise through mutual resolution, escalation and
// the resolver's verdict, releasing the contested escrow pool on every
// terminal transition. Deadlines are evaluated lazily at call time.
type Engine struct {
	state    engineState
	ledger   *funds.Ledger
	registry RegistryView
	emitter  events.Emitter
	pauses   common.PauseView
	guard    common.ReentrancyGuard
	nowFn    func() int64

	treasury         uint64
	escalationPeriod int64
}

// NewEngine creates a dispute engine with a no-op emitter and a 30 day
// escalation response period.
func NewEngine() *Engine {
	return &Engine{
		emitter:          events.NoopEmitter{},
		nowFn:            func() int64 { return time.Now().Unix() },
		escalationPeriod: 30 * 24 * 60 * 60,
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetLedger configures the funds ledger.
func (e *Engine) SetLedger(l *funds.Ledger) { e.ledger = l }

// SetRegistry configures the account registry view.
func (e *Engine) SetRegistry(r RegistryView) { e.registry = r }

// SetPauses configures the administrative pause view.
func (e *Engine) SetPauses(p common.PauseView) { e.pauses = p }

// SetFeeTreasury configures the account credited with protocol fees on
// completion-style settlements.
func (e *Engine) SetFeeTreasury(account uint64) { e.treasury = account }

// SetEscalationResponsePeriod overrides how long a resolver has to act on an
// escalated dispute before anyone may expire it.
func (e *Engine) SetEscalationResponsePeriod(seconds int64) {
	if seconds > 0 {
		e.escalationPeriod = seconds
	}
}

// SetNowFunc overrides the time source used by the engine.
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
	e.emitter.Emit(disputeEvent{evt: evt})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) requireReady() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.ledger == nil {
		return errNilLedger
	}
	if e.registry == nil {
		return errNilRegistry
	}
	return nil
}

func (e *Engine) callerAccount(caller [20]byte) (uint64, error) {
	id, ok, err := e.registry.AccountByAddress(caller)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("dispute: caller %x has no account: %w", caller, common.ErrAccessDenied)
	}
	return id, nil
}

type context struct {
	dispute  *Dispute
	exchange *exchange.Exchange
	offer    *offer.Offer
}

func (e *Engine) load(exchangeID uint64) (*context, error) {
	d, ok, err := e.state.DisputeGet(exchangeID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("dispute for exchange %d: %w", exchangeID, common.ErrNotFound)
	}
	x, ok, err := e.state.ExchangeGet(exchangeID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("dispute: exchange %d: %w", exchangeID, common.ErrNotFound)
	}
	o, ok, err := e.state.OfferGet(x.OfferID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("dispute: offer %d: %w", x.OfferID, common.ErrNotFound)
	}
	return &context{dispute: d, exchange: x, offer: o}, nil
}

// Get returns a copy of the dispute for the exchange.
func (e *Engine) Get(exchangeID uint64) (*Dispute, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	d, ok, err := e.state.DisputeGet(exchangeID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("dispute for exchange %d: %w", exchangeID, common.ErrNotFound)
	}
	return d.Clone(), nil
}

// Raise opens a dispute against a redeemed exchange. Only the voucher holder
// may raise, and only inside the dispute period that started at redemption.
func (e *Engine) Raise(caller [20]byte, exchangeID uint64) error {
	release, err := e.guard.Enter()
	if err != nil {
		return err
	}
	defer release()
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if err := e.requireReady(); err != nil {
		return err
	}
	x, ok, err := e.state.ExchangeGet(exchangeID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("dispute: exchange %d: %w", exchangeID, common.ErrNotFound)
	}
	callerID, err := e.callerAccount(caller)
	if err != nil {
		return err
	}
	if callerID != x.BuyerID {
		return fmt.Errorf("dispute: exchange %d: only the buyer may raise: %w", exchangeID, common.ErrAccessDenied)
	}
	if x.State != exchange.StateRedeemed {
		return fmt.Errorf("dispute: exchange %d in state %s: %w", exchangeID, x.State, common.ErrInvalidState)
	}
	o, ok, err := e.state.OfferGet(x.OfferID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("dispute: offer %d: %w", x.OfferID, common.ErrNotFound)
	}
	now := e.now()
	if now >= x.Voucher.RedeemedAt+o.DisputePeriod {
		return fmt.Errorf("dispute: exchange %d dispute period elapsed: %w", exchangeID, common.ErrPeriodViolation)
	}
	d := &Dispute{
		ExchangeID:         exchangeID,
		State:              StateResolving,
		RaisedAt:           now,
		ResolutionDeadline: now + o.ResolutionPeriod,
		EscalationDeposit:  big.NewInt(0),
	}
	x.State = exchange.StateDisputed
	if err := e.state.ExchangePut(x); err != nil {
		return err
	}
	if err := e.state.DisputePut(d); err != nil {
		return err
	}
	e.emit(NewRaisedEvent(d, callerID))
	return nil
}

// Retract withdraws the dispute. The seller is settled exactly as if the
// exchange had completed; an escalation deposit, if one was posted, returns
// to whoever posted it.
func (e *Engine) Retract(caller [20]byte, exchangeID uint64) error {
	release, err := e.guard.Enter()
	if err != nil {
		return err
	}
	defer release()
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if err := e.requireReady(); err != nil {
		return err
	}
	ctx, err := e.load(exchangeID)
	if err != nil {
		return err
	}
	callerID, err := e.callerAccount(caller)
	if err != nil {
		return err
	}
	if callerID != ctx.exchange.BuyerID {
		return fmt.Errorf("dispute: exchange %d: only the buyer may retract: %w", exchangeID, common.ErrAccessDenied)
	}
	if ctx.dispute.State != StateResolving && ctx.dispute.State != StateEscalated {
		return fmt.Errorf("dispute: exchange %d: cannot retract in state %s: %w", exchangeID, ctx.dispute.State, common.ErrInvalidState)
	}
	if err := e.settle(ctx, StateRetracted, e.completionSplits(ctx)); err != nil {
		return err
	}
	e.emit(NewRetractedEvent(ctx.dispute, callerID))
	return nil
}

// ResolutionDigest is the message both parties sign to resolve a dispute
// mutually.
func ResolutionDigest(exchangeID uint64, buyerPercentBps uint32) []byte {
	buf := make([]byte, 0, len(resolutionDomainTag)+12)
	buf = append(buf, resolutionDomainTag...)
	buf = binary.BigEndian.AppendUint64(buf, exchangeID)
	buf = binary.BigEndian.AppendUint32(buf, buyerPercentBps)
	return crypto.Keccak256(buf)
}

// Resolve settles the dispute at a mutually agreed buyer percentage. The
// caller must be one of the two parties and must present the counterparty's
// signature over the resolution digest. Valid while resolving or escalated.
func (e *Engine) Resolve(caller [20]byte, exchangeID uint64, buyerPercentBps uint32, counterpartySig []byte) error {
	release, err := e.guard.Enter()
	if err != nil {
		return err
	}
	defer release()
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if err := e.requireReady(); err != nil {
		return err
	}
	ctx, err := e.load(exchangeID)
	if err != nil {
		return err
	}
	if ctx.dispute.State != StateResolving && ctx.dispute.State != StateEscalated {
		return fmt.Errorf("dispute: exchange %d: cannot resolve in state %s: %w", exchangeID, ctx.dispute.State, common.ErrInvalidState)
	}
	if buyerPercentBps > fees.BpsDenominator {
		return fmt.Errorf("dispute: buyer percent %d exceeds %d: %w", buyerPercentBps, fees.BpsDenominator, common.ErrConfigurationInvalid)
	}
	callerID, err := e.callerAccount(caller)
	if err != nil {
		return err
	}
	var counterpartyID uint64
	switch callerID {
	case ctx.exchange.BuyerID:
		counterpartyID = ctx.offer.SellerID
	case ctx.offer.SellerID:
		counterpartyID = ctx.exchange.BuyerID
	default:
		return fmt.Errorf("dispute: exchange %d: caller is not a party: %w", exchangeID, common.ErrAccessDenied)
	}
	counterpartyAddr, ok, err := e.registry.AccountAddress(counterpartyID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("dispute: account %d has no address: %w", counterpartyID, common.ErrNotFound)
	}
	if err := verifySignature(counterpartyAddr, ResolutionDigest(exchangeID, buyerPercentBps), counterpartySig); err != nil {
		return err
	}
	ctx.dispute.BuyerPercentBps = buyerPercentBps
	if err := e.settle(ctx, StateResolved, e.percentSplits(ctx, buyerPercentBps)); err != nil {
		return err
	}
	e.emit(NewResolvedEvent(ctx.dispute, callerID))
	return nil
}

func verifySignature(want [20]byte, digest []byte, sig []byte) error {
	if len(sig) != 65 {
		return fmt.Errorf("dispute: signature must be 65 bytes: %w", common.ErrSignatureInvalid)
	}
	normalized := make([]byte, 65)
	copy(normalized, sig)
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}
	pub, err := crypto.SigToPub(digest, normalized)
	if err != nil {
		return fmt.Errorf("dispute: cannot recover signer: %w", common.ErrSignatureInvalid)
	}
	recovered := crypto.PubkeyToAddress(*pub)
	if [20]byte(recovered) != want {
		return fmt.Errorf("dispute: signer %x is not the counterparty: %w", recovered, common.ErrSignatureInvalid)
	}
	return nil
}

// Escalate hands the dispute to the offer's resolver. Either party may
// escalate while resolving, posting the escalation deposit snapshotted into
// the offer at creation.
func (e *Engine) Escalate(caller [20]byte, exchangeID uint64) error {
	release, err := e.guard.Enter()
	if err != nil {
		return err
	}
	defer release()
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if err := e.requireReady(); err != nil {
		return err
	}
	ctx, err := e.load(exchangeID)
	if err != nil {
		return err
	}
	if ctx.dispute.State != StateResolving {
		return fmt.Errorf("dispute: exchange %d: cannot escalate in state %s: %w", exchangeID, ctx.dispute.State, common.ErrInvalidState)
	}
	now := e.now()
	if now >= ctx.dispute.ResolutionDeadline {
		return fmt.Errorf("dispute: exchange %d resolution deadline passed: %w", exchangeID, common.ErrPeriodViolation)
	}
	callerID, err := e.callerAccount(caller)
	if err != nil {
		return err
	}
	if callerID != ctx.exchange.BuyerID && callerID != ctx.offer.SellerID {
		return fmt.Errorf("dispute: exchange %d: caller is not a party: %w", exchangeID, common.ErrAccessDenied)
	}
	if ctx.offer.DisputeResolverID == 0 {
		return fmt.Errorf("dispute: offer %d has no resolver: %w", ctx.offer.ID, common.ErrConfigurationInvalid)
	}
	deposit := ctx.offer.EscalationDeposit
	if deposit == nil {
		deposit = big.NewInt(0)
	}
	if err := e.ledger.Encumber(exchangeID, callerID, ctx.offer.Currency, deposit); err != nil {
		return err
	}
	ctx.dispute.State = StateEscalated
	ctx.dispute.EscalatedAt = now
	ctx.dispute.EscalationDeadline = now + e.escalationPeriod
	ctx.dispute.EscalatedBy = callerID
	ctx.dispute.EscalationDeposit = new(big.Int).Set(deposit)
	if err := e.state.DisputePut(ctx.dispute); err != nil {
		return err
	}
	e.emit(NewEscalatedEvent(ctx.dispute, callerID))
	return nil
}

// Decide is the resolver's verdict on an escalated dispute. The buyer
// receives the decided percentage of the price, the seller the remainder plus
// the deposit, and the escalation deposit returns to whoever posted it. The
// resolver's current registry record is deliberately not consulted.
func (e *Engine) Decide(caller [20]byte, exchangeID uint64, buyerPercentBps uint32) error {
	release, err := e.guard.Enter()
	if err != nil {
		return err
	}
	defer release()
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if err := e.requireReady(); err != nil {
		return err
	}
	ctx, err := e.load(exchangeID)
	if err != nil {
		return err
	}
	if ctx.dispute.State != StateEscalated {
		return fmt.Errorf("dispute: exchange %d: cannot decide in state %s: %w", exchangeID, ctx.dispute.State, common.ErrInvalidState)
	}
	if buyerPercentBps > fees.BpsDenominator {
		return fmt.Errorf("dispute: buyer percent %d exceeds %d: %w", buyerPercentBps, fees.BpsDenominator, common.ErrConfigurationInvalid)
	}
	callerID, err := e.callerAccount(caller)
	if err != nil {
		return err
	}
	if callerID != ctx.offer.DisputeResolverID {
		return fmt.Errorf("dispute: exchange %d: only the resolver may decide: %w", exchangeID, common.ErrAccessDenied)
	}
	ctx.dispute.BuyerPercentBps = buyerPercentBps
	if err := e.settle(ctx, StateDecided, e.percentSplits(ctx, buyerPercentBps)); err != nil {
		return err
	}
	e.emit(NewDecidedEvent(ctx.dispute, callerID))
	return nil
}

// RefuseEscalated is the resolver declining to arbitrate. The seller is
// settled as on retract and the escalation deposit returns to its payer.
func (e *Engine) RefuseEscalated(caller [20]byte, exchangeID uint64) error {
	release, err := e.guard.Enter()
	if err != nil {
		return err
	}
	defer release()
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if err := e.requireReady(); err != nil {
		return err
	}
	ctx, err := e.load(exchangeID)
	if err != nil {
		return err
	}
	if ctx.dispute.State != StateEscalated {
		return fmt.Errorf("dispute: exchange %d: cannot refuse in state %s: %w", exchangeID, ctx.dispute.State, common.ErrInvalidState)
	}
	callerID, err := e.callerAccount(caller)
	if err != nil {
		return err
	}
	if callerID != ctx.offer.DisputeResolverID {
		return fmt.Errorf("dispute: exchange %d: only the resolver may refuse: %w", exchangeID, common.ErrAccessDenied)
	}
	if err := e.settle(ctx, StateRefused, e.completionSplits(ctx)); err != nil {
		return err
	}
	e.emit(NewRefusedEvent(ctx.dispute, callerID))
	return nil
}

// ExpireEscalated finalizes an escalated dispute the resolver never acted on.
// Anyone may trigger it once the escalation deadline passed; the outcome
// matches a refusal.
func (e *Engine) ExpireEscalated(exchangeID uint64) error {
	release, err := e.guard.Enter()
	if err != nil {
		return err
	}
	defer release()
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if err := e.requireReady(); err != nil {
		return err
	}
	ctx, err := e.load(exchangeID)
	if err != nil {
		return err
	}
	if ctx.dispute.State != StateEscalated {
		return fmt.Errorf("dispute: exchange %d: cannot expire in state %s: %w", exchangeID, ctx.dispute.State, common.ErrInvalidState)
	}
	if e.now() < ctx.dispute.EscalationDeadline {
		return fmt.Errorf("dispute: exchange %d escalation deadline not reached: %w", exchangeID, common.ErrPeriodViolation)
	}
	if err := e.settle(ctx, StateRefused, e.completionSplits(ctx)); err != nil {
		return err
	}
	e.emit(NewExpiredEvent(ctx.dispute))
	return nil
}

// Expire finalizes a dispute the parties never resolved nor escalated.
// Anyone may trigger it once the resolution deadline passed; the outcome
// matches a retraction, so an absent buyer cannot lock the seller's funds
// forever.
func (e *Engine) Expire(exchangeID uint64) error {
	release, err := e.guard.Enter()
	if err != nil {
		return err
	}
	defer release()
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if err := e.requireReady(); err != nil {
		return err
	}
	ctx, err := e.load(exchangeID)
	if err != nil {
		return err
	}
	if ctx.dispute.State != StateResolving {
		return fmt.Errorf("dispute: exchange %d: cannot expire in state %s: %w", exchangeID, ctx.dispute.State, common.ErrInvalidState)
	}
	if e.now() < ctx.dispute.ResolutionDeadline {
		return fmt.Errorf("dispute: exchange %d resolution deadline not reached: %w", exchangeID, common.ErrPeriodViolation)
	}
	if err := e.settle(ctx, StateRetracted, e.completionSplits(ctx)); err != nil {
		return err
	}
	e.emit(NewExpiredEvent(ctx.dispute))
	return nil
}

// completionSplits distributes the pool as if the exchange had completed
// normally, plus the escalation deposit back to its payer when one is held.
func (e *Engine) completionSplits(ctx *context) []funds.Split {
	splits := exchange.CompletionSplits(ctx.exchange, ctx.offer, e.treasury)
	return e.appendDepositReturn(ctx, splits)
}

// percentSplits awards the buyer the given percentage of the price, floor
// division with the dust going to the seller, who also recovers the deposit.
func (e *Engine) percentSplits(ctx *context, buyerPercentBps uint32) []funds.Split {
	buyerShare := fees.BpsAmount(ctx.exchange.Price, buyerPercentBps)
	sellerShare := new(big.Int).Sub(ctx.exchange.Price, buyerShare)
	sellerShare.Add(sellerShare, ctx.offer.SellerDeposit)
	splits := []funds.Split{
		{Account: ctx.exchange.BuyerID, Amount: buyerShare},
		{Account: ctx.offer.SellerID, Amount: sellerShare},
	}
	return e.appendDepositReturn(ctx, splits)
}

func (e *Engine) appendDepositReturn(ctx *context, splits []funds.Split) []funds.Split {
	if !ctx.dispute.Escalated() || ctx.dispute.EscalationDeposit.Sign() == 0 {
		return splits
	}
	return append(splits, funds.Split{
		Account: ctx.dispute.EscalatedBy,
		Amount:  new(big.Int).Set(ctx.dispute.EscalationDeposit),
	})
}

func (e *Engine) settle(ctx *context, outcome State, splits []funds.Split) error {
	if err := e.ledger.Release(ctx.exchange.ID, ctx.offer.Currency, splits); err != nil {
		return err
	}
	ctx.dispute.State = outcome
	ctx.exchange.FinalizedAt = e.now()
	if err := e.state.ExchangePut(ctx.exchange); err != nil {
		return err
	}
	return e.state.DisputePut(ctx.dispute)
}
