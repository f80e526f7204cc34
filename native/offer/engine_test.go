package offer

import (
	"errors"
	"math/big"
	"testing"

	"vouchermarket/native/common"
	"vouchermarket/native/fees"
)

type mockState struct {
	offers map[uint64]*Offer
	next   uint64
}

func newMockState() *mockState {
	return &mockState{offers: make(map[uint64]*Offer)}
}

func (m *mockState) OfferPut(o *Offer) error {
	m.offers[o.ID] = o.Clone()
	return nil
}

func (m *mockState) OfferGet(id uint64) (*Offer, bool, error) {
	stored, ok := m.offers[id]
	if !ok {
		return nil, false, nil
	}
	return stored.Clone(), true, nil
}

func (m *mockState) NextOfferID() (uint64, error) {
	m.next++
	return m.next, nil
}

type mockRegistry struct {
	sellers   map[[20]byte]uint64
	agentFees map[uint64]uint32
	quotes    map[uint64]*big.Int
}

func (m *mockRegistry) SellerByAddress(addr [20]byte) (uint64, bool, error) {
	id, ok := m.sellers[addr]
	return id, ok, nil
}

func (m *mockRegistry) AgentFee(agentID uint64) (uint32, bool, error) {
	fee, ok := m.agentFees[agentID]
	return fee, ok, nil
}

func (m *mockRegistry) ResolverQuote(resolverID, sellerID uint64, currency string) (*big.Int, bool, error) {
	fee, ok := m.quotes[resolverID]
	if !ok {
		return nil, false, nil
	}
	return new(big.Int).Set(fee), true, nil
}

func sellerAddr() [20]byte {
	var addr [20]byte
	addr[19] = 1
	return addr
}

func newTestEngine() (*Engine, *mockState, *mockRegistry) {
	state := newMockState()
	reg := &mockRegistry{
		sellers:   map[[20]byte]uint64{sellerAddr(): 11},
		agentFees: map[uint64]uint32{50: 100},
		quotes:    map[uint64]*big.Int{3: big.NewInt(200)},
	}
	engine := NewEngine()
	engine.SetState(state)
	engine.SetRegistry(reg)
	engine.SetFeeParams(250, 4000)
	engine.SetEscalationDepositPct(2000)
	engine.SetNowFunc(func() int64 { return 1000 })
	return engine, state, reg
}

func baseDefinition() Definition {
	return Definition{
		Price:                big.NewInt(1000),
		SellerDeposit:        big.NewInt(100),
		BuyerCancelPenalty:   big.NewInt(50),
		Quantity:             10,
		Currency:             "usdx",
		ValidFrom:            500,
		ValidUntil:           10_000,
		RedeemableFrom:       1500,
		DisputePeriod:        1000,
		ResolutionPeriod:     1000,
		VoucherValidDuration: 5000,
		DisputeResolverID:    3,
	}
}

func TestCreateSnapshotsFeesAndResolver(t *testing.T) {
	engine, state, _ := newTestEngine()
	def := baseDefinition()
	def.AgentID = 50
	def.Royalties = []fees.RoyaltyShare{{Recipient: 60, Bps: 500}}
	created, err := engine.Create(sellerAddr(), def)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID != 1 || created.SellerID != 11 {
		t.Fatalf("offer = %+v", created)
	}
	if created.Currency != "USDX" {
		t.Fatalf("currency not normalised: %q", created.Currency)
	}
	if created.ProtocolFeeBps != 250 || created.AgentFeeBps != 100 {
		t.Fatalf("fee snapshot = %d/%d", created.ProtocolFeeBps, created.AgentFeeBps)
	}
	// 20% of the resolver's 200 fee.
	if created.EscalationDeposit.Int64() != 40 {
		t.Fatalf("escalation deposit = %s, want 40", created.EscalationDeposit)
	}
	if _, ok := state.offers[1]; !ok {
		t.Fatalf("offer not persisted")
	}
}

func TestCreateRejectsNonSeller(t *testing.T) {
	engine, _, _ := newTestEngine()
	var stranger [20]byte
	stranger[19] = 9
	if _, err := engine.Create(stranger, baseDefinition()); !errors.Is(err, common.ErrAccessDenied) {
		t.Fatalf("non-seller create should fail, got %v", err)
	}
}

func TestCreateWithoutResolver(t *testing.T) {
	engine, _, _ := newTestEngine()
	def := baseDefinition()
	def.DisputeResolverID = 0
	created, err := engine.Create(sellerAddr(), def)
	if err != nil {
		t.Fatalf("create without resolver: %v", err)
	}
	if created.DisputeResolverID != 0 || created.EscalationDeposit.Sign() != 0 {
		t.Fatalf("offer = %+v", created)
	}
}

func TestCreateRejectsUnservedResolver(t *testing.T) {
	engine, _, reg := newTestEngine()
	delete(reg.quotes, 3)
	if _, err := engine.Create(sellerAddr(), baseDefinition()); !errors.Is(err, common.ErrConfigurationInvalid) {
		t.Fatalf("missing resolver quote should fail, got %v", err)
	}
}

func TestCreateEnforcesFeeCap(t *testing.T) {
	engine, _, _ := newTestEngine()
	def := baseDefinition()
	def.Royalties = []fees.RoyaltyShare{{Recipient: 60, Bps: 3751}}
	if _, err := engine.Create(sellerAddr(), def); !errors.Is(err, common.ErrConfigurationInvalid) {
		t.Fatalf("fee total over cap should fail, got %v", err)
	}
	def.Royalties[0].Bps = 3750
	if _, err := engine.Create(sellerAddr(), def); err != nil {
		t.Fatalf("fee total at cap: %v", err)
	}
}

func TestCreateValidatesWindows(t *testing.T) {
	engine, _, _ := newTestEngine()
	def := baseDefinition()
	def.ValidUntil = def.ValidFrom
	if _, err := engine.Create(sellerAddr(), def); !errors.Is(err, common.ErrConfigurationInvalid) {
		t.Fatalf("empty validity window should fail, got %v", err)
	}
	def = baseDefinition()
	def.BuyerCancelPenalty = big.NewInt(1001)
	if _, err := engine.Create(sellerAddr(), def); !errors.Is(err, common.ErrConfigurationInvalid) {
		t.Fatalf("penalty above price should fail, got %v", err)
	}
}

func TestVoidIsSellerOnlyAndIdempotent(t *testing.T) {
	engine, state, _ := newTestEngine()
	created, err := engine.Create(sellerAddr(), baseDefinition())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	var stranger [20]byte
	stranger[19] = 9
	if err := engine.Void(stranger, created.ID); !errors.Is(err, common.ErrAccessDenied) {
		t.Fatalf("stranger void should fail, got %v", err)
	}
	if err := engine.Void(sellerAddr(), created.ID); err != nil {
		t.Fatalf("void: %v", err)
	}
	if !state.offers[created.ID].Voided {
		t.Fatalf("offer not voided")
	}
	if err := engine.Void(sellerAddr(), created.ID); err != nil {
		t.Fatalf("repeat void should be a no-op, got %v", err)
	}
}

func TestUpdateRoyaltyRecipientsKeepsShares(t *testing.T) {
	engine, state, _ := newTestEngine()
	def := baseDefinition()
	def.Royalties = []fees.RoyaltyShare{{Recipient: 60, Bps: 500}, {Recipient: 61, Bps: 250}}
	created, err := engine.Create(sellerAddr(), def)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	err = engine.UpdateRoyaltyRecipients(sellerAddr(), created.ID, []fees.RoyaltyShare{{Recipient: 70, Bps: 600}, {Recipient: 71, Bps: 250}})
	if !errors.Is(err, common.ErrConfigurationInvalid) {
		t.Fatalf("changed bps should fail, got %v", err)
	}
	err = engine.UpdateRoyaltyRecipients(sellerAddr(), created.ID, []fees.RoyaltyShare{{Recipient: 70, Bps: 500}})
	if !errors.Is(err, common.ErrConfigurationInvalid) {
		t.Fatalf("changed count should fail, got %v", err)
	}
	err = engine.UpdateRoyaltyRecipients(sellerAddr(), created.ID, []fees.RoyaltyShare{{Recipient: 70, Bps: 500}, {Recipient: 71, Bps: 250}})
	if err != nil {
		t.Fatalf("update recipients: %v", err)
	}
	if state.offers[created.ID].Royalties[0].Recipient != 70 {
		t.Fatalf("recipient not updated")
	}
}
