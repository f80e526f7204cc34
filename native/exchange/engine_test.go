package exchange

import (
	"errors"
	"fmt"
	"math/big"
	"testing"

	"vouchermarket/native/common"
	"vouchermarket/native/fees"
	"vouchermarket/native/funds"
	"vouchermarket/native/offer"
	"vouchermarket/native/pricing"
	"vouchermarket/native/voucher"
)

const (
	treasuryAccount = uint64(90)
	conduitAccount  = uint64(91)
)

type mockState struct {
	offers       map[uint64]*offer.Offer
	exchanges    map[uint64]*Exchange
	nextExchange uint64
	ranges       map[uint64]*voucher.Range
	seqs         map[uint64]uint64
	funds        map[string]*big.Int
	escrows      map[string]*big.Int
}

func newMockState() *mockState {
	return &mockState{
		offers:    make(map[uint64]*offer.Offer),
		exchanges: make(map[uint64]*Exchange),
		ranges:    make(map[uint64]*voucher.Range),
		seqs:      make(map[uint64]uint64),
		funds:     make(map[string]*big.Int),
		escrows:   make(map[string]*big.Int),
	}
}

func (m *mockState) OfferGet(id uint64) (*offer.Offer, bool, error) {
	stored, ok := m.offers[id]
	if !ok {
		return nil, false, nil
	}
	return stored.Clone(), true, nil
}

func (m *mockState) OfferPut(o *offer.Offer) error {
	m.offers[o.ID] = o.Clone()
	return nil
}

func (m *mockState) ExchangeGet(id uint64) (*Exchange, bool, error) {
	stored, ok := m.exchanges[id]
	if !ok {
		return nil, false, nil
	}
	return stored.Clone(), true, nil
}

func (m *mockState) ExchangePut(x *Exchange) error {
	m.exchanges[x.ID] = x.Clone()
	return nil
}

func (m *mockState) NextExchangeID() (uint64, error) {
	m.nextExchange++
	return m.nextExchange, nil
}

func (m *mockState) RangePut(r *voucher.Range) error {
	m.ranges[r.OfferID] = r.Clone()
	return nil
}

func (m *mockState) RangeGet(offerID uint64) (*voucher.Range, bool, error) {
	stored, ok := m.ranges[offerID]
	if !ok {
		return nil, false, nil
	}
	return stored.Clone(), true, nil
}

func (m *mockState) VoucherSeqGet(offerID uint64) (uint64, error) {
	return m.seqs[offerID], nil
}

func (m *mockState) VoucherSeqPut(offerID uint64, seq uint64) error {
	m.seqs[offerID] = seq
	return nil
}

func balanceKey(account uint64, currency string) string {
	return fmt.Sprintf("%d/%s", account, currency)
}

func (m *mockState) FundsGet(account uint64, currency string) (*big.Int, error) {
	if balance, ok := m.funds[balanceKey(account, currency)]; ok {
		return new(big.Int).Set(balance), nil
	}
	return big.NewInt(0), nil
}

func (m *mockState) FundsPut(account uint64, currency string, amount *big.Int) error {
	m.funds[balanceKey(account, currency)] = new(big.Int).Set(amount)
	return nil
}

func (m *mockState) EscrowGet(exchangeID uint64, currency string) (*big.Int, error) {
	if pool, ok := m.escrows[balanceKey(exchangeID, currency)]; ok {
		return new(big.Int).Set(pool), nil
	}
	return big.NewInt(0), nil
}

func (m *mockState) EscrowPut(exchangeID uint64, currency string, amount *big.Int) error {
	m.escrows[balanceKey(exchangeID, currency)] = new(big.Int).Set(amount)
	return nil
}

type mockRegistry struct {
	byAddr  map[[20]byte]uint64
	byID    map[uint64][20]byte
	sellers map[uint64]bool
	next    uint64
}

func newMockRegistry() *mockRegistry {
	return &mockRegistry{
		byAddr:  make(map[[20]byte]uint64),
		byID:    make(map[uint64][20]byte),
		sellers: make(map[uint64]bool),
	}
}

func (m *mockRegistry) add(addr [20]byte, seller bool) uint64 {
	m.next++
	m.byAddr[addr] = m.next
	m.byID[m.next] = addr
	if seller {
		m.sellers[m.next] = true
	}
	return m.next
}

func (m *mockRegistry) ResolveOrCreateBuyer(addr [20]byte) (uint64, error) {
	if id, ok := m.byAddr[addr]; ok {
		return id, nil
	}
	return m.add(addr, false), nil
}

func (m *mockRegistry) AccountByAddress(addr [20]byte) (uint64, bool, error) {
	id, ok := m.byAddr[addr]
	return id, ok, nil
}

func (m *mockRegistry) AccountAddress(id uint64) ([20]byte, bool, error) {
	addr, ok := m.byID[id]
	return addr, ok, nil
}

func (m *mockRegistry) SellerByAddress(addr [20]byte) (uint64, bool, error) {
	id, ok := m.byAddr[addr]
	if !ok || !m.sellers[id] {
		return 0, false, nil
	}
	return id, true, nil
}

type harness struct {
	engine *Engine
	ledger *funds.Ledger
	alloc  *voucher.Allocator
	reg    *mockRegistry
	state  *mockState
	now    int64

	sellerAddr [20]byte
	buyerAddr  [20]byte
	sellerID   uint64
}

func addr(b byte) [20]byte {
	var out [20]byte
	out[19] = b
	return out
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		state:      newMockState(),
		reg:        newMockRegistry(),
		now:        1000,
		sellerAddr: addr(1),
		buyerAddr:  addr(2),
	}
	h.sellerID = h.reg.add(h.sellerAddr, true)
	h.ledger = funds.NewLedger()
	h.ledger.SetState(h.state)
	h.alloc = voucher.NewAllocator()
	h.alloc.SetState(h.state)
	h.alloc.SetOffers(h.state)
	h.alloc.SetRegistry(h.reg)
	h.engine = NewEngine()
	h.engine.SetState(h.state)
	h.engine.SetLedger(h.ledger)
	h.engine.SetAllocator(h.alloc)
	h.engine.SetRegistry(h.reg)
	h.engine.SetFeeTreasury(treasuryAccount)
	h.engine.SetConduit(conduitAccount)
	h.engine.SetNowFunc(func() int64 { return h.now })
	return h
}

func (h *harness) putOffer(t *testing.T, o *offer.Offer) {
	t.Helper()
	sanitized, err := offer.Sanitize(o)
	if err != nil {
		t.Fatalf("sanitize offer: %v", err)
	}
	if err := h.state.OfferPut(sanitized); err != nil {
		t.Fatalf("put offer: %v", err)
	}
}

func (h *harness) baseOffer() *offer.Offer {
	return &offer.Offer{
		ID:                   7,
		SellerID:             h.sellerID,
		Price:                big.NewInt(1000),
		SellerDeposit:        big.NewInt(100),
		BuyerCancelPenalty:   big.NewInt(50),
		Quantity:             10,
		Currency:             "USDX",
		ValidFrom:            500,
		ValidUntil:           100_000,
		RedeemableFrom:       1500,
		DisputePeriod:        1000,
		ResolutionPeriod:     1000,
		VoucherValidDuration: 5000,
	}
}

func (h *harness) fund(t *testing.T, account uint64, amount int64) {
	t.Helper()
	if err := h.ledger.Deposit(account, "USDX", big.NewInt(amount)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
}

func (h *harness) available(t *testing.T, account uint64) int64 {
	t.Helper()
	balance, err := h.ledger.Available(account, "USDX")
	if err != nil {
		t.Fatalf("available: %v", err)
	}
	return balance.Int64()
}

func (h *harness) commit(t *testing.T) *Exchange {
	t.Helper()
	h.fund(t, 2, 1000)
	h.fund(t, h.sellerID, 100)
	x, err := h.engine.CommitToOffer(h.buyerAddr, 7)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	return x
}

func TestCommitEscrowsBothLegs(t *testing.T) {
	h := newHarness(t)
	h.putOffer(t, h.baseOffer())
	x := h.commit(t)
	if x.ID != 1 || x.State != StateCommitted {
		t.Fatalf("exchange = %+v", x)
	}
	wantToken, _ := voucher.MakeTokenID(7, 1)
	if x.Voucher.TokenID != wantToken {
		t.Fatalf("token id = %d, want %d", x.Voucher.TokenID, wantToken)
	}
	if x.Voucher.ValidUntil != 6500 {
		t.Fatalf("valid until = %d, want redeemable-from plus duration", x.Voucher.ValidUntil)
	}
	pool, _ := h.ledger.Escrowed(1, "USDX")
	if pool.Int64() != 1100 {
		t.Fatalf("pool = %s, want 1100", pool)
	}
	if h.available(t, 2) != 0 || h.available(t, h.sellerID) != 0 {
		t.Fatalf("available balances not drained")
	}
	stored := h.state.offers[7]
	if stored.Quantity != 9 {
		t.Fatalf("quantity = %d, want 9", stored.Quantity)
	}
}

func TestCommitRequiresBothLegsFunded(t *testing.T) {
	h := newHarness(t)
	h.putOffer(t, h.baseOffer())
	h.fund(t, h.sellerID, 100)
	if _, err := h.engine.CommitToOffer(h.buyerAddr, 7); !errors.Is(err, common.ErrInsufficientFunds) {
		t.Fatalf("unfunded buyer should fail, got %v", err)
	}
	if h.state.nextExchange != 0 {
		t.Fatalf("failed commit consumed an exchange id")
	}
	if h.available(t, h.sellerID) != 100 {
		t.Fatalf("seller deposit moved on a failed commit")
	}
}

func TestCommitOutsideValidityWindow(t *testing.T) {
	h := newHarness(t)
	h.putOffer(t, h.baseOffer())
	h.fund(t, 2, 1000)
	h.fund(t, h.sellerID, 100)
	h.now = 499
	if _, err := h.engine.CommitToOffer(h.buyerAddr, 7); !errors.Is(err, common.ErrPeriodViolation) {
		t.Fatalf("early commit should fail, got %v", err)
	}
	h.now = 100_000
	if _, err := h.engine.CommitToOffer(h.buyerAddr, 7); !errors.Is(err, common.ErrPeriodViolation) {
		t.Fatalf("late commit should fail, got %v", err)
	}
}

func TestCommitVoidedOffer(t *testing.T) {
	h := newHarness(t)
	o := h.baseOffer()
	o.Voided = true
	h.putOffer(t, o)
	h.fund(t, 2, 1000)
	if _, err := h.engine.CommitToOffer(h.buyerAddr, 7); !errors.Is(err, common.ErrInvalidState) {
		t.Fatalf("voided offer should reject commits, got %v", err)
	}
}

func TestCancelSplitsPenaltyToSeller(t *testing.T) {
	h := newHarness(t)
	h.putOffer(t, h.baseOffer())
	x := h.commit(t)
	if err := h.engine.CancelVoucher(h.buyerAddr, x.ID); !errors.Is(err, common.ErrPeriodViolation) {
		t.Fatalf("cancel before the redemption window should fail, got %v", err)
	}
	h.now = 1500
	if err := h.engine.CancelVoucher(h.sellerAddr, x.ID); !errors.Is(err, common.ErrAccessDenied) {
		t.Fatalf("non-holder cancel should fail, got %v", err)
	}
	if err := h.engine.CancelVoucher(h.buyerAddr, x.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if h.available(t, 2) != 950 || h.available(t, h.sellerID) != 150 {
		t.Fatalf("cancel split %d/%d, want 950/150", h.available(t, 2), h.available(t, h.sellerID))
	}
	stored := h.state.exchanges[x.ID]
	if stored.State != StateCanceled || !stored.Finalized() {
		t.Fatalf("exchange not finalized: %+v", stored)
	}
	if err := h.engine.CancelVoucher(h.buyerAddr, x.ID); !errors.Is(err, common.ErrInvalidState) {
		t.Fatalf("double cancel should fail, got %v", err)
	}
}

func TestRevokeReturnsBothContributions(t *testing.T) {
	h := newHarness(t)
	h.putOffer(t, h.baseOffer())
	x := h.commit(t)
	if err := h.engine.RevokeVoucher(h.buyerAddr, x.ID); !errors.Is(err, common.ErrAccessDenied) {
		t.Fatalf("buyer revoke should fail, got %v", err)
	}
	if err := h.engine.RevokeVoucher(h.sellerAddr, x.ID); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if h.available(t, 2) != 1000 || h.available(t, h.sellerID) != 100 {
		t.Fatalf("revoke split %d/%d, want 1000/100", h.available(t, 2), h.available(t, h.sellerID))
	}
	if h.state.exchanges[x.ID].State != StateRevoked {
		t.Fatalf("state = %s, want revoked", h.state.exchanges[x.ID].State)
	}
}

func TestRedeemWindow(t *testing.T) {
	h := newHarness(t)
	h.putOffer(t, h.baseOffer())
	x := h.commit(t)
	if err := h.engine.RedeemVoucher(h.buyerAddr, x.ID); !errors.Is(err, common.ErrPeriodViolation) {
		t.Fatalf("redeem before window should fail, got %v", err)
	}
	h.now = 6500
	if err := h.engine.RedeemVoucher(h.buyerAddr, x.ID); !errors.Is(err, common.ErrPeriodViolation) {
		t.Fatalf("redeem after validity should fail, got %v", err)
	}
	h.now = 2000
	if err := h.engine.RedeemVoucher(h.sellerAddr, x.ID); !errors.Is(err, common.ErrAccessDenied) {
		t.Fatalf("non-holder redeem should fail, got %v", err)
	}
	if err := h.engine.RedeemVoucher(h.buyerAddr, x.ID); err != nil {
		t.Fatalf("redeem: %v", err)
	}
	stored := h.state.exchanges[x.ID]
	if stored.State != StateRedeemed || stored.Voucher.RedeemedAt != 2000 {
		t.Fatalf("exchange after redeem: %+v", stored)
	}
}

type failingTwins struct{}

func (failingTwins) TransferTwins(exchangeID, buyerID uint64) error {
	return errors.New("inventory unavailable")
}

func TestRedeemAbortsWhenBundleFails(t *testing.T) {
	h := newHarness(t)
	h.putOffer(t, h.baseOffer())
	x := h.commit(t)
	h.engine.SetTwinTransferer(failingTwins{})
	h.now = 2000
	if err := h.engine.RedeemVoucher(h.buyerAddr, x.ID); !errors.Is(err, common.ErrTransferFailure) {
		t.Fatalf("failed bundle should abort redeem, got %v", err)
	}
	if h.state.exchanges[x.ID].State != StateCommitted {
		t.Fatalf("exchange left redeemed after aborted bundle transfer")
	}
}

func TestCompleteByBuyerSettlesFees(t *testing.T) {
	h := newHarness(t)
	o := h.baseOffer()
	o.ProtocolFeeBps = 250
	o.AgentID = 50
	o.AgentFeeBps = 100
	o.Royalties = []fees.RoyaltyShare{{Recipient: 60, Bps: 500}}
	h.putOffer(t, o)
	x := h.commit(t)
	h.now = 2000
	if err := h.engine.RedeemVoucher(h.buyerAddr, x.ID); err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if err := h.engine.CompleteExchange(h.buyerAddr, x.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	// 1000 price: protocol 25, agent 10, royalty 50, seller net 915 + 100 deposit.
	if got := h.available(t, h.sellerID); got != 1015 {
		t.Fatalf("seller = %d, want 1015", got)
	}
	if got := h.available(t, treasuryAccount); got != 25 {
		t.Fatalf("treasury = %d, want 25", got)
	}
	if got := h.available(t, 50); got != 10 {
		t.Fatalf("agent = %d, want 10", got)
	}
	if got := h.available(t, 60); got != 50 {
		t.Fatalf("royalty recipient = %d, want 50", got)
	}
	pool, _ := h.ledger.Escrowed(x.ID, "USDX")
	if pool.Sign() != 0 {
		t.Fatalf("pool not drained: %s", pool)
	}
	if h.state.exchanges[x.ID].State != StateCompleted {
		t.Fatalf("state = %s, want completed", h.state.exchanges[x.ID].State)
	}
}

func TestCompleteByThirdPartyWaitsDisputePeriod(t *testing.T) {
	h := newHarness(t)
	h.putOffer(t, h.baseOffer())
	x := h.commit(t)
	h.now = 2000
	if err := h.engine.RedeemVoucher(h.buyerAddr, x.ID); err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if err := h.engine.CompleteExchange(h.sellerAddr, x.ID); !errors.Is(err, common.ErrPeriodViolation) {
		t.Fatalf("complete inside dispute period should fail, got %v", err)
	}
	h.now = 3000
	if err := h.engine.CompleteExchange(h.sellerAddr, x.ID); err != nil {
		t.Fatalf("complete after dispute period: %v", err)
	}
}

func TestExpireVoucherRefundsBoth(t *testing.T) {
	h := newHarness(t)
	h.putOffer(t, h.baseOffer())
	x := h.commit(t)
	if err := h.engine.ExpireVoucher(x.ID); !errors.Is(err, common.ErrPeriodViolation) {
		t.Fatalf("expire while valid should fail, got %v", err)
	}
	h.now = x.Voucher.ValidUntil
	if err := h.engine.ExpireVoucher(x.ID); err != nil {
		t.Fatalf("expire: %v", err)
	}
	if h.available(t, 2) != 1000 || h.available(t, h.sellerID) != 100 {
		t.Fatalf("expire split %d/%d, want 1000/100", h.available(t, 2), h.available(t, h.sellerID))
	}
	stored := h.state.exchanges[x.ID]
	if stored.State != StateCanceled || !stored.Voucher.Expired {
		t.Fatalf("exchange after expire: %+v", stored)
	}
}

func TestVoucherTransferReassignsHolder(t *testing.T) {
	h := newHarness(t)
	h.putOffer(t, h.baseOffer())
	x := h.commit(t)
	newHolder := addr(9)
	if err := h.engine.OnVoucherTransferred(x.ID, newHolder); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	newID, ok, _ := h.reg.AccountByAddress(newHolder)
	if !ok {
		t.Fatalf("transfer target got no account")
	}
	if h.state.exchanges[x.ID].BuyerID != newID {
		t.Fatalf("holder not reassigned")
	}
	h.now = 1500
	if err := h.engine.CancelVoucher(h.buyerAddr, x.ID); !errors.Is(err, common.ErrAccessDenied) {
		t.Fatalf("previous holder should lose cancel rights, got %v", err)
	}
	if err := h.engine.RevokeVoucher(h.sellerAddr, x.ID); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if err := h.engine.OnVoucherTransferred(x.ID, addr(10)); !errors.Is(err, common.ErrInvalidState) {
		t.Fatalf("transfer of a finalized claim should fail, got %v", err)
	}
}

type transferMechanism struct {
	ledger *funds.Ledger
	price  *big.Int
}

func (m *transferMechanism) Execute(d pricing.Descriptor, payer uint64, currency string) (*big.Int, error) {
	if err := m.ledger.Transfer(payer, d.Conduit, currency, m.price); err != nil {
		return nil, err
	}
	return new(big.Int).Set(m.price), nil
}

func TestDiscoveryCommitEscrowsResolvedPrice(t *testing.T) {
	h := newHarness(t)
	o := h.baseOffer()
	o.PriceType = offer.PriceDiscovery
	o.Price = big.NewInt(0)
	o.BuyerCancelPenalty = big.NewInt(0)
	h.putOffer(t, o)
	if _, err := h.alloc.ReserveRange(h.sellerAddr, 7, 5, h.sellerID); err != nil {
		t.Fatalf("reserve range: %v", err)
	}
	if _, err := h.alloc.PreMint(h.sellerAddr, 7, 5); err != nil {
		t.Fatalf("premint: %v", err)
	}
	mech := &transferMechanism{ledger: h.ledger, price: big.NewInt(1234)}
	h.engine.SetPricingAdapter(pricing.NewAdapter(mech, h.ledger))
	h.fund(t, 2, 2000)
	h.fund(t, h.sellerID, 100)
	x, err := h.engine.CommitToPriceDiscoveryOffer(h.buyerAddr, 7, pricing.Descriptor{Side: pricing.SideAsk})
	if err != nil {
		t.Fatalf("discovery commit: %v", err)
	}
	if x.Price.Int64() != 1234 {
		t.Fatalf("exchange price = %s, want 1234", x.Price)
	}
	wantToken, _ := voucher.MakeTokenID(7, 1)
	if x.Voucher.TokenID != wantToken {
		t.Fatalf("token id = %d, want first preminted id %d", x.Voucher.TokenID, wantToken)
	}
	pool, _ := h.ledger.Escrowed(x.ID, "USDX")
	if pool.Int64() != 1334 {
		t.Fatalf("pool = %s, want 1334", pool)
	}
	if h.available(t, conduitAccount) != 0 {
		t.Fatalf("conduit retained %d after escrow pull", h.available(t, conduitAccount))
	}
	// Full refund on revoke covers the discovered price, not the listed one.
	if err := h.engine.RevokeVoucher(h.sellerAddr, x.ID); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if h.available(t, 2) != 2000 {
		t.Fatalf("buyer = %d after revoke, want 2000", h.available(t, 2))
	}
}

func TestDiscoveryCommitChecksDepositBeforeExternalCall(t *testing.T) {
	h := newHarness(t)
	o := h.baseOffer()
	o.PriceType = offer.PriceDiscovery
	h.putOffer(t, o)
	mech := &transferMechanism{ledger: h.ledger, price: big.NewInt(1234)}
	h.engine.SetPricingAdapter(pricing.NewAdapter(mech, h.ledger))
	h.fund(t, 2, 2000)
	if _, err := h.engine.CommitToPriceDiscoveryOffer(h.buyerAddr, 7, pricing.Descriptor{Side: pricing.SideAsk}); !errors.Is(err, common.ErrInsufficientFunds) {
		t.Fatalf("unfunded seller should fail before the external call, got %v", err)
	}
	if h.available(t, 2) != 2000 {
		t.Fatalf("buyer funds moved on a doomed commit")
	}
}

func TestSequentialCommitSettlesResaleImmediately(t *testing.T) {
	h := newHarness(t)
	o := h.baseOffer()
	o.ProtocolFeeBps = 250
	o.Royalties = []fees.RoyaltyShare{{Recipient: 60, Bps: 1000}}
	h.putOffer(t, o)
	x := h.commit(t)
	mech := &transferMechanism{ledger: h.ledger, price: big.NewInt(2000)}
	h.engine.SetPricingAdapter(pricing.NewAdapter(mech, h.ledger))
	newBuyer := addr(9)
	if err := h.ledger.Deposit(h.reg.add(newBuyer, false), "USDX", big.NewInt(2000)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := h.engine.SequentialCommitToOffer(newBuyer, x.ID, pricing.Descriptor{Side: pricing.SideAsk}); err != nil {
		t.Fatalf("sequential commit: %v", err)
	}
	// Resale at 2000: protocol 50, royalty 200, reseller net 1750.
	if got := h.available(t, treasuryAccount); got != 50 {
		t.Fatalf("treasury = %d, want 50", got)
	}
	if got := h.available(t, 60); got != 200 {
		t.Fatalf("royalty recipient = %d, want 200", got)
	}
	if got := h.available(t, 2); got != 1750 {
		t.Fatalf("reseller = %d, want 1750", got)
	}
	pool, _ := h.ledger.Escrowed(x.ID, "USDX")
	if pool.Int64() != 1100 {
		t.Fatalf("primary pool touched by resale: %s", pool)
	}
	newID, _, _ := h.reg.AccountByAddress(newBuyer)
	if h.state.exchanges[x.ID].BuyerID != newID {
		t.Fatalf("holder not reassigned to resale buyer")
	}
}

func TestRoyaltyInfoAggregatesShares(t *testing.T) {
	h := newHarness(t)
	o := h.baseOffer()
	o.Royalties = []fees.RoyaltyShare{{Recipient: 60, Bps: 500}, {Recipient: 61, Bps: 250}}
	h.putOffer(t, o)
	x := h.commit(t)
	recipient, amount, err := h.engine.RoyaltyInfo(x.Voucher.TokenID, big.NewInt(10_000))
	if err != nil {
		t.Fatalf("royalty info: %v", err)
	}
	if recipient != 60 || amount.Int64() != 750 {
		t.Fatalf("royalty info = %d/%s, want 60/750", recipient, amount)
	}
}

func TestRoyaltyInfoForPremintedToken(t *testing.T) {
	h := newHarness(t)
	o := h.baseOffer()
	o.PriceType = offer.PriceDiscovery
	o.Price = big.NewInt(0)
	o.BuyerCancelPenalty = big.NewInt(0)
	o.Royalties = []fees.RoyaltyShare{{Recipient: 60, Bps: 500}}
	h.putOffer(t, o)
	if _, err := h.alloc.ReserveRange(h.sellerAddr, 7, 5, h.sellerID); err != nil {
		t.Fatalf("reserve range: %v", err)
	}
	if _, err := h.alloc.PreMint(h.sellerAddr, 7, 5); err != nil {
		t.Fatalf("premint: %v", err)
	}
	// No commit: the preminted token has no exchange yet.
	tokenID, _ := voucher.MakeTokenID(7, 3)
	recipient, amount, err := h.engine.RoyaltyInfo(tokenID, big.NewInt(10_000))
	if err != nil {
		t.Fatalf("royalty info: %v", err)
	}
	if recipient != 60 || amount.Int64() != 500 {
		t.Fatalf("royalty info = %d/%s, want 60/500", recipient, amount)
	}
	if _, _, err := h.engine.RoyaltyInfo(0, big.NewInt(1)); !errors.Is(err, common.ErrConfigurationInvalid) {
		t.Fatalf("malformed token id should fail, got %v", err)
	}
	unknown, _ := voucher.MakeTokenID(8, 1)
	if _, _, err := h.engine.RoyaltyInfo(unknown, big.NewInt(1)); !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("token of an unknown offer should fail, got %v", err)
	}
}

type reenteringTwins struct {
	engine *Engine
	holder [20]byte
	inner  error
}

func (r *reenteringTwins) TransferTwins(exchangeID, buyerID uint64) error {
	r.inner = r.engine.RedeemVoucher(r.holder, exchangeID)
	return r.inner
}

func TestRedeemRejectsReenteringBundleTransfer(t *testing.T) {
	h := newHarness(t)
	h.putOffer(t, h.baseOffer())
	x := h.commit(t)
	twins := &reenteringTwins{engine: h.engine, holder: h.buyerAddr}
	h.engine.SetTwinTransferer(twins)
	h.now = 2000
	if err := h.engine.RedeemVoucher(h.buyerAddr, x.ID); !errors.Is(err, common.ErrTransferFailure) {
		t.Fatalf("outer redeem should report the failed bundle, got %v", err)
	}
	if !errors.Is(twins.inner, common.ErrReentrancy) {
		t.Fatalf("nested redeem should be rejected, got %v", twins.inner)
	}
	if h.state.exchanges[x.ID].State != StateCommitted {
		t.Fatalf("exchange left %s after a rejected nested call", h.state.exchanges[x.ID].State)
	}
}
