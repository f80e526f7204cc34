package registry

import (
	"errors"
	"math/big"
	"testing"

	"vouchermarket/native/common"
)

type mockState struct {
	accounts  map[uint64]*Account
	byAddr    map[[20]byte]uint64
	agents    map[uint64]*Agent
	resolvers map[uint64]*Resolver
	next      uint64
}

func newMockState() *mockState {
	return &mockState{
		accounts:  make(map[uint64]*Account),
		byAddr:    make(map[[20]byte]uint64),
		agents:    make(map[uint64]*Agent),
		resolvers: make(map[uint64]*Resolver),
	}
}

func (m *mockState) AccountPut(a *Account) error {
	clone := *a
	m.accounts[a.ID] = &clone
	m.byAddr[a.Address] = a.ID
	return nil
}

func (m *mockState) AccountGet(id uint64) (*Account, bool, error) {
	stored, ok := m.accounts[id]
	if !ok {
		return nil, false, nil
	}
	clone := *stored
	return &clone, true, nil
}

func (m *mockState) AccountIDByAddress(addr [20]byte) (uint64, bool, error) {
	id, ok := m.byAddr[addr]
	return id, ok, nil
}

func (m *mockState) NextAccountID() (uint64, error) {
	m.next++
	return m.next, nil
}

func (m *mockState) AgentPut(a *Agent) error {
	clone := *a
	m.agents[a.AccountID] = &clone
	return nil
}

func (m *mockState) AgentGet(id uint64) (*Agent, bool, error) {
	stored, ok := m.agents[id]
	if !ok {
		return nil, false, nil
	}
	clone := *stored
	return &clone, true, nil
}

func (m *mockState) ResolverPut(r *Resolver) error {
	m.resolvers[r.AccountID] = r.Clone()
	return nil
}

func (m *mockState) ResolverGet(id uint64) (*Resolver, bool, error) {
	stored, ok := m.resolvers[id]
	if !ok {
		return nil, false, nil
	}
	return stored.Clone(), true, nil
}

func addr(b byte) [20]byte {
	var out [20]byte
	out[19] = b
	return out
}

func TestRegisterRejectsDuplicateAddress(t *testing.T) {
	reg := NewRegistry(newMockState())
	if _, err := reg.RegisterSeller(addr(1)); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := reg.RegisterBuyer(addr(1)); !errors.Is(err, common.ErrInvalidState) {
		t.Fatalf("duplicate address should fail, got %v", err)
	}
	if _, err := reg.RegisterSeller([20]byte{}); !errors.Is(err, common.ErrConfigurationInvalid) {
		t.Fatalf("zero address should fail, got %v", err)
	}
}

func TestResolveOrCreateBuyerIsIdempotent(t *testing.T) {
	reg := NewRegistry(newMockState())
	first, err := reg.ResolveOrCreateBuyer(addr(2))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	second, err := reg.ResolveOrCreateBuyer(addr(2))
	if err != nil || second != first {
		t.Fatalf("resolve twice = %d/%d (%v)", first, second, err)
	}
}

func TestSellerByAddressChecksRole(t *testing.T) {
	reg := NewRegistry(newMockState())
	seller, _ := reg.RegisterSeller(addr(1))
	buyer, _ := reg.RegisterBuyer(addr(2))
	id, ok, err := reg.SellerByAddress(addr(1))
	if err != nil || !ok || id != seller.ID {
		t.Fatalf("seller lookup = %d/%v (%v)", id, ok, err)
	}
	if _, ok, _ := reg.SellerByAddress(addr(2)); ok {
		t.Fatalf("buyer %d passed the seller check", buyer.ID)
	}
}

func TestAgentFee(t *testing.T) {
	reg := NewRegistry(newMockState())
	agent, err := reg.RegisterAgent(addr(3), 150)
	if err != nil {
		t.Fatalf("register agent: %v", err)
	}
	fee, ok, err := reg.AgentFee(agent.ID)
	if err != nil || !ok || fee != 150 {
		t.Fatalf("agent fee = %d/%v (%v)", fee, ok, err)
	}
	if _, ok, _ := reg.AgentFee(999); ok {
		t.Fatalf("unknown agent reported a fee")
	}
}

func TestResolverQuote(t *testing.T) {
	reg := NewRegistry(newMockState())
	seller, _ := reg.RegisterSeller(addr(1))
	resolver, err := reg.RegisterResolver(addr(4))
	if err != nil {
		t.Fatalf("register resolver: %v", err)
	}
	if _, ok, _ := reg.ResolverQuote(resolver.ID, seller.ID, "USDX"); ok {
		t.Fatalf("quote without a fee entry should be unavailable")
	}
	if err := reg.SetResolverFee(resolver.ID, "usdx", big.NewInt(200)); err != nil {
		t.Fatalf("set fee: %v", err)
	}
	fee, ok, err := reg.ResolverQuote(resolver.ID, seller.ID, "USDX")
	if err != nil || !ok || fee.Int64() != 200 {
		t.Fatalf("quote = %s/%v (%v)", fee, ok, err)
	}

	// A non-empty allow-list admits only its members.
	if err := reg.AddAllowedSeller(resolver.ID, seller.ID+100); err != nil {
		t.Fatalf("allow: %v", err)
	}
	if _, ok, _ := reg.ResolverQuote(resolver.ID, seller.ID, "USDX"); ok {
		t.Fatalf("unlisted seller got a quote")
	}
	if err := reg.AddAllowedSeller(resolver.ID, seller.ID); err != nil {
		t.Fatalf("allow: %v", err)
	}
	if _, ok, _ := reg.ResolverQuote(resolver.ID, seller.ID, "USDX"); !ok {
		t.Fatalf("listed seller got no quote")
	}

	if err := reg.SetResolverActive(resolver.ID, false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, ok, _ := reg.ResolverQuote(resolver.ID, seller.ID, "USDX"); ok {
		t.Fatalf("inactive resolver got a quote")
	}
}

func TestRemoveResolverFee(t *testing.T) {
	reg := NewRegistry(newMockState())
	seller, _ := reg.RegisterSeller(addr(1))
	resolver, _ := reg.RegisterResolver(addr(4))
	if err := reg.SetResolverFee(resolver.ID, "USDX", big.NewInt(200)); err != nil {
		t.Fatalf("set fee: %v", err)
	}
	if err := reg.RemoveResolverFee(resolver.ID, "USDX"); err != nil {
		t.Fatalf("remove fee: %v", err)
	}
	if _, ok, _ := reg.ResolverQuote(resolver.ID, seller.ID, "USDX"); ok {
		t.Fatalf("removed fee still quoted")
	}
}
