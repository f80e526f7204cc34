package state

import (
	"math/big"

	"vouchermarket/registry"
)

const (
	accountPrefix     = "market/account/"
	accountAddrPrefix = "market/account/addr/"
	agentPrefix       = "market/agent/"
	resolverPrefix    = "market/resolver/"
)

type storedAccount struct {
	ID      uint64
	Address [20]byte
	Role    uint8
}

// AccountPut persists the account record and its address index entry.
func (m *Manager) AccountPut(a *registry.Account) error {
	stored := &storedAccount{ID: a.ID, Address: a.Address, Role: uint8(a.Role)}
	if err := m.put(hashKey(accountPrefix, idSuffix(a.ID)), stored); err != nil {
		return err
	}
	return m.put(hashKey(accountAddrPrefix, a.Address[:]), a.ID)
}

// AccountGet loads the account by id.
func (m *Manager) AccountGet(id uint64) (*registry.Account, bool, error) {
	var stored storedAccount
	ok, err := m.get(hashKey(accountPrefix, idSuffix(id)), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return &registry.Account{ID: stored.ID, Address: stored.Address, Role: registry.Role(stored.Role)}, true, nil
}

// AccountIDByAddress resolves an address to its account id.
func (m *Manager) AccountIDByAddress(addr [20]byte) (uint64, bool, error) {
	var id uint64
	ok, err := m.get(hashKey(accountAddrPrefix, addr[:]), &id)
	if err != nil || !ok {
		return 0, false, err
	}
	return id, true, nil
}

// NextAccountID draws the next account id.
func (m *Manager) NextAccountID() (uint64, error) {
	return m.nextID("accounts")
}

type storedAgent struct {
	AccountID uint64
	FeeBps    uint32
}

// AgentPut persists the agent record.
func (m *Manager) AgentPut(a *registry.Agent) error {
	stored := storedAgent(*a)
	return m.put(hashKey(agentPrefix, idSuffix(a.AccountID)), &stored)
}

// AgentGet loads the agent record.
func (m *Manager) AgentGet(id uint64) (*registry.Agent, bool, error) {
	var stored storedAgent
	ok, err := m.get(hashKey(agentPrefix, idSuffix(id)), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	agent := registry.Agent(stored)
	return &agent, true, nil
}

type storedResolver struct {
	AccountID      uint64
	Active         bool
	Fees           []storedResolverFee
	AllowedSellers []uint64
}

type storedResolverFee struct {
	Currency string
	Fee      *big.Int
}

// ResolverPut persists the resolver record.
func (m *Manager) ResolverPut(r *registry.Resolver) error {
	stored := &storedResolver{
		AccountID:      r.AccountID,
		Active:         r.Active,
		AllowedSellers: append([]uint64(nil), r.AllowedSellers...),
	}
	for _, fee := range r.Fees {
		stored.Fees = append(stored.Fees, storedResolverFee{Currency: fee.Currency, Fee: nonNil(fee.Fee)})
	}
	return m.put(hashKey(resolverPrefix, idSuffix(r.AccountID)), stored)
}

// ResolverGet loads the resolver record.
func (m *Manager) ResolverGet(id uint64) (*registry.Resolver, bool, error) {
	var stored storedResolver
	ok, err := m.get(hashKey(resolverPrefix, idSuffix(id)), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	resolver := &registry.Resolver{
		AccountID:      stored.AccountID,
		Active:         stored.Active,
		AllowedSellers: append([]uint64(nil), stored.AllowedSellers...),
	}
	for _, fee := range stored.Fees {
		resolver.Fees = append(resolver.Fees, registry.ResolverFee{Currency: fee.Currency, Fee: nonNil(fee.Fee)})
	}
	return resolver, true, nil
}
