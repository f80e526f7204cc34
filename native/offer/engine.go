package offer

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"vouchermarket/core/events"
	"vouchermarket/core/types"
	"vouchermarket/native/common"
	"vouchermarket/native/fees"
)

const moduleName = "offer"

var (
	errNilState    = errors.New("offer engine: state not configured")
	errNilRegistry = errors.New("offer engine: registry not configured")
)

type engineState interface {
	OfferPut(*Offer) error
	OfferGet(id uint64) (*Offer, bool, error)
	NextOfferID() (uint64, error)
}

// RegistryView is the narrow slice of the account registry the offer engine
// consults. Membership and fee checks happen here, at offer creation, and
// never again afterwards.
type RegistryView interface {
	SellerByAddress(addr [20]byte) (uint64, bool, error)
	AgentFee(agentID uint64) (uint32, bool, error)
	ResolverQuote(resolverID, sellerID uint64, currency string) (*big.Int, bool, error)
}

type offerEvent struct {
	evt *types.Event
}

func (e offerEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e offerEvent) Event() *types.Event { return e.evt }

// Engine manages the offer catalog: creation with full validation, voiding,
// and administrative royalty-recipient updates.
type Engine struct {
	state    engineState
	registry RegistryView
	emitter  events.Emitter
	pauses   common.PauseView
	nowFn    func() int64

	protocolFeeBps          uint32
	maxTotalFeeBps          uint32
	escalationDepositPctBps uint32
}

// NewEngine creates an offer engine with a no-op emitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetRegistry configures the account registry view.
func (e *Engine) SetRegistry(r RegistryView) { e.registry = r }

// SetPauses configures the administrative pause view.
func (e *Engine) SetPauses(p common.PauseView) { e.pauses = p }

// SetFeeParams configures the protocol fee and the maximum combined
// royalty-plus-protocol-fee basis points enforced at offer creation.
func (e *Engine) SetFeeParams(protocolFeeBps, maxTotalFeeBps uint32) {
	e.protocolFeeBps = protocolFeeBps
	e.maxTotalFeeBps = maxTotalFeeBps
}

// SetEscalationDepositPct configures the escalation deposit percentage of the
// dispute resolver's fee, in basis points.
func (e *Engine) SetEscalationDepositPct(bps uint32) { e.escalationDepositPctBps = bps }

// SetNowFunc overrides the time source, primarily used in tests.
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
	e.emitter.Emit(offerEvent{evt: evt})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

// Definition carries the caller-supplied offer terms for Create.
type Definition struct {
	Price                *big.Int
	SellerDeposit        *big.Int
	BuyerCancelPenalty   *big.Int
	Quantity             uint64
	Currency             string
	ValidFrom            int64
	ValidUntil           int64
	RedeemableFrom       int64
	RedeemableUntil      int64
	DisputePeriod        int64
	ResolutionPeriod     int64
	VoucherValidDuration int64
	DisputeResolverID    uint64
	AgentID              uint64
	Royalties            []fees.RoyaltyShare
	PriceType            PriceType
}

// Create validates the definition against the registry and the fee caps, and
// persists a new offer. The dispute resolver's fee for the offer currency and
// the agent's fee percentage are snapshotted into the offer so later registry
// edits cannot affect exchanges or disputes created under these terms.
func (e *Engine) Create(caller [20]byte, def Definition) (*Offer, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if e.registry == nil {
		return nil, errNilRegistry
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	sellerID, ok, err := e.registry.SellerByAddress(caller)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("offer: caller %x is not a registered seller: %w", caller, common.ErrAccessDenied)
	}
	if def.Quantity == 0 {
		return nil, fmt.Errorf("offer: quantity must be positive: %w", common.ErrConfigurationInvalid)
	}
	agentFeeBps := uint32(0)
	if def.AgentID != 0 {
		feeBps, ok, err := e.registry.AgentFee(def.AgentID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("offer: agent %d not registered: %w", def.AgentID, common.ErrNotFound)
		}
		agentFeeBps = feeBps
	}
	candidate := &Offer{
		SellerID:             sellerID,
		Price:                def.Price,
		SellerDeposit:        def.SellerDeposit,
		BuyerCancelPenalty:   def.BuyerCancelPenalty,
		Quantity:             def.Quantity,
		Currency:             def.Currency,
		ValidFrom:            def.ValidFrom,
		ValidUntil:           def.ValidUntil,
		RedeemableFrom:       def.RedeemableFrom,
		RedeemableUntil:      def.RedeemableUntil,
		DisputePeriod:        def.DisputePeriod,
		ResolutionPeriod:     def.ResolutionPeriod,
		VoucherValidDuration: def.VoucherValidDuration,
		DisputeResolverID:    def.DisputeResolverID,
		AgentID:              def.AgentID,
		ProtocolFeeBps:       e.protocolFeeBps,
		AgentFeeBps:          agentFeeBps,
		Royalties:            append([]fees.RoyaltyShare(nil), def.Royalties...),
		PriceType:            def.PriceType,
		CreatedAt:            e.now(),
	}
	sanitized, err := Sanitize(candidate)
	if err != nil {
		return nil, err
	}
	if err := fees.ValidateCaps(sanitized.FeeConfig(), e.maxTotalFeeBps); err != nil {
		return nil, err
	}
	// A zero resolver id publishes the offer without an escalation path.
	sanitized.EscalationDeposit = big.NewInt(0)
	if def.DisputeResolverID != 0 {
		resolverFee, allowed, err := e.registry.ResolverQuote(def.DisputeResolverID, sellerID, sanitized.Currency)
		if err != nil {
			return nil, err
		}
		if !allowed {
			return nil, fmt.Errorf("offer: dispute resolver %d does not serve seller %d in %s: %w",
				def.DisputeResolverID, sellerID, sanitized.Currency, common.ErrConfigurationInvalid)
		}
		sanitized.EscalationDeposit = fees.BpsAmount(resolverFee, e.escalationDepositPctBps)
	}
	id, err := e.state.NextOfferID()
	if err != nil {
		return nil, err
	}
	sanitized.ID = id
	if err := e.state.OfferPut(sanitized); err != nil {
		return nil, err
	}
	e.emit(NewCreatedEvent(sanitized))
	return sanitized.Clone(), nil
}

// Void permanently removes the offer from circulation. Only the seller may
// void; repeated voids are no-ops.
func (e *Engine) Void(caller [20]byte, offerID uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.registry == nil {
		return errNilRegistry
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	stored, err := e.Get(offerID)
	if err != nil {
		return err
	}
	sellerID, ok, err := e.registry.SellerByAddress(caller)
	if err != nil {
		return err
	}
	if !ok || sellerID != stored.SellerID {
		return fmt.Errorf("offer %d: only the seller may void: %w", offerID, common.ErrAccessDenied)
	}
	if stored.Voided {
		return nil
	}
	stored.Voided = true
	if err := e.state.OfferPut(stored); err != nil {
		return err
	}
	e.emit(NewVoidedEvent(stored))
	return nil
}

// UpdateRoyaltyRecipients swaps royalty recipients while keeping every share's
// basis points unchanged. This is the only administrative mutation an offer
// supports after creation.
func (e *Engine) UpdateRoyaltyRecipients(caller [20]byte, offerID uint64, updated []fees.RoyaltyShare) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.registry == nil {
		return errNilRegistry
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	stored, err := e.Get(offerID)
	if err != nil {
		return err
	}
	sellerID, ok, err := e.registry.SellerByAddress(caller)
	if err != nil {
		return err
	}
	if !ok || sellerID != stored.SellerID {
		return fmt.Errorf("offer %d: only the seller may update royalties: %w", offerID, common.ErrAccessDenied)
	}
	if len(updated) != len(stored.Royalties) {
		return fmt.Errorf("offer %d: royalty share count must not change: %w", offerID, common.ErrConfigurationInvalid)
	}
	for i, share := range updated {
		if share.Bps != stored.Royalties[i].Bps {
			return fmt.Errorf("offer %d: royalty basis points are immutable: %w", offerID, common.ErrConfigurationInvalid)
		}
	}
	stored.Royalties = append([]fees.RoyaltyShare(nil), updated...)
	if err := e.state.OfferPut(stored); err != nil {
		return err
	}
	e.emit(NewRoyaltyUpdatedEvent(stored))
	return nil
}

// Get returns a copy of the stored offer.
func (e *Engine) Get(offerID uint64) (*Offer, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	stored, ok, err := e.state.OfferGet(offerID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("offer %d: %w", offerID, common.ErrNotFound)
	}
	return stored.Clone(), nil
}
