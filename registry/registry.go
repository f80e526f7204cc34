package registry

import (
	"errors"
	"fmt"
	"math/big"

	"vouchermarket/native/common"
	"vouchermarket/native/funds"
)

var errNilState = errors.New("registry: state not configured")

// Role classifies accounts known to the protocol.
type Role uint8

const (
	RoleBuyer Role = iota
	RoleSeller
	RoleAgent
	RoleResolver
)

// Account links a protocol-level numeric identity to an on-ledger address.
type Account struct {
	ID      uint64
	Address [20]byte
	Role    Role
}

// Agent is a marketing intermediary entitled to a fee slice of offers it
// brokered.
type Agent struct {
	AccountID uint64
	FeeBps    uint32
}

// ResolverFee is a dispute resolver's fee for one currency.
type ResolverFee struct {
	Currency string
	Fee      *big.Int
}

// Resolver is a designated third party empowered to decide escalated
// disputes. An empty allow-list admits every seller. Fee and allow-list
// edits apply to future offers only; existing offers carry snapshots.
type Resolver struct {
	AccountID      uint64
	Active         bool
	Fees           []ResolverFee
	AllowedSellers []uint64
}

// Clone returns a deep copy of the resolver record.
func (r *Resolver) Clone() *Resolver {
	if r == nil {
		return nil
	}
	clone := *r
	clone.Fees = make([]ResolverFee, len(r.Fees))
	for i, fee := range r.Fees {
		clone.Fees[i] = ResolverFee{Currency: fee.Currency, Fee: new(big.Int).Set(fee.Fee)}
	}
	clone.AllowedSellers = append([]uint64(nil), r.AllowedSellers...)
	return &clone
}

type registryState interface {
	AccountPut(*Account) error
	AccountGet(id uint64) (*Account, bool, error)
	AccountIDByAddress(addr [20]byte) (uint64, bool, error)
	NextAccountID() (uint64, error)
	AgentPut(*Agent) error
	AgentGet(id uint64) (*Agent, bool, error)
	ResolverPut(*Resolver) error
	ResolverGet(id uint64) (*Resolver, bool, error)
}

// Registry resolves and creates the account records the protocol engines
// consume: sellers, buyers, agents, and dispute resolvers.
type Registry struct {
	state registryState
}

// NewRegistry creates a registry over the supplied state backend.
func NewRegistry(state registryState) *Registry {
	return &Registry{state: state}
}

func (r *Registry) register(addr [20]byte, role Role) (*Account, error) {
	if r == nil || r.state == nil {
		return nil, errNilState
	}
	if addr == ([20]byte{}) {
		return nil, fmt.Errorf("registry: zero address: %w", common.ErrConfigurationInvalid)
	}
	if _, exists, err := r.state.AccountIDByAddress(addr); err != nil {
		return nil, err
	} else if exists {
		return nil, fmt.Errorf("registry: address %x already registered: %w", addr, common.ErrInvalidState)
	}
	id, err := r.state.NextAccountID()
	if err != nil {
		return nil, err
	}
	account := &Account{ID: id, Address: addr, Role: role}
	if err := r.state.AccountPut(account); err != nil {
		return nil, err
	}
	return account, nil
}

// RegisterSeller creates a seller account for the address.
func (r *Registry) RegisterSeller(addr [20]byte) (*Account, error) {
	return r.register(addr, RoleSeller)
}

// RegisterBuyer creates a buyer account for the address.
func (r *Registry) RegisterBuyer(addr [20]byte) (*Account, error) {
	return r.register(addr, RoleBuyer)
}

// RegisterAgent creates an agent account with the given fee percentage.
func (r *Registry) RegisterAgent(addr [20]byte, feeBps uint32) (*Account, error) {
	account, err := r.register(addr, RoleAgent)
	if err != nil {
		return nil, err
	}
	if err := r.state.AgentPut(&Agent{AccountID: account.ID, FeeBps: feeBps}); err != nil {
		return nil, err
	}
	return account, nil
}

// RegisterResolver creates a dispute resolver account. Fee schedules and
// allow-lists are configured separately.
func (r *Registry) RegisterResolver(addr [20]byte) (*Account, error) {
	account, err := r.register(addr, RoleResolver)
	if err != nil {
		return nil, err
	}
	if err := r.state.ResolverPut(&Resolver{AccountID: account.ID, Active: true}); err != nil {
		return nil, err
	}
	return account, nil
}

// ResolveOrCreateBuyer returns the account id for the address, creating a
// buyer account when the address has none.
func (r *Registry) ResolveOrCreateBuyer(addr [20]byte) (uint64, error) {
	if r == nil || r.state == nil {
		return 0, errNilState
	}
	if addr == ([20]byte{}) {
		return 0, fmt.Errorf("registry: zero address: %w", common.ErrConfigurationInvalid)
	}
	if id, exists, err := r.state.AccountIDByAddress(addr); err != nil {
		return 0, err
	} else if exists {
		return id, nil
	}
	account, err := r.register(addr, RoleBuyer)
	if err != nil {
		return 0, err
	}
	return account.ID, nil
}

// AccountByAddress returns the account id registered for the address.
func (r *Registry) AccountByAddress(addr [20]byte) (uint64, bool, error) {
	if r == nil || r.state == nil {
		return 0, false, errNilState
	}
	return r.state.AccountIDByAddress(addr)
}

// AccountAddress returns the registered address for the account id.
func (r *Registry) AccountAddress(id uint64) ([20]byte, bool, error) {
	if r == nil || r.state == nil {
		return [20]byte{}, false, errNilState
	}
	account, ok, err := r.state.AccountGet(id)
	if err != nil || !ok {
		return [20]byte{}, false, err
	}
	return account.Address, true, nil
}

// SellerByAddress resolves a seller account id from its address.
func (r *Registry) SellerByAddress(addr [20]byte) (uint64, bool, error) {
	if r == nil || r.state == nil {
		return 0, false, errNilState
	}
	id, ok, err := r.state.AccountIDByAddress(addr)
	if err != nil || !ok {
		return 0, false, err
	}
	account, ok, err := r.state.AccountGet(id)
	if err != nil || !ok {
		return 0, false, err
	}
	if account.Role != RoleSeller {
		return 0, false, nil
	}
	return id, true, nil
}

// AgentFee returns the fee percentage registered for the agent.
func (r *Registry) AgentFee(agentID uint64) (uint32, bool, error) {
	if r == nil || r.state == nil {
		return 0, false, errNilState
	}
	agent, ok, err := r.state.AgentGet(agentID)
	if err != nil || !ok {
		return 0, false, err
	}
	return agent.FeeBps, true, nil
}

// ResolverQuote returns the resolver's fee for the currency when the resolver
// is active, serves the seller, and has a fee entry for the currency. This is
// consulted at offer creation only; dispute settlement relies on the snapshot
// the offer took here.
func (r *Registry) ResolverQuote(resolverID, sellerID uint64, currency string) (*big.Int, bool, error) {
	if r == nil || r.state == nil {
		return nil, false, errNilState
	}
	normalized, err := funds.NormalizeCurrency(currency)
	if err != nil {
		return nil, false, err
	}
	resolver, ok, err := r.state.ResolverGet(resolverID)
	if err != nil || !ok {
		return nil, false, err
	}
	if !resolver.Active {
		return nil, false, nil
	}
	if len(resolver.AllowedSellers) > 0 {
		allowed := false
		for _, id := range resolver.AllowedSellers {
			if id == sellerID {
				allowed = true
				break
			}
		}
		if !allowed {
			return nil, false, nil
		}
	}
	for _, fee := range resolver.Fees {
		if fee.Currency == normalized {
			return new(big.Int).Set(fee.Fee), true, nil
		}
	}
	return nil, false, nil
}

func (r *Registry) loadResolver(resolverID uint64) (*Resolver, error) {
	resolver, ok, err := r.state.ResolverGet(resolverID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("registry: resolver %d: %w", resolverID, common.ErrNotFound)
	}
	return resolver, nil
}

// SetResolverFee adds or replaces the resolver's fee entry for a currency.
func (r *Registry) SetResolverFee(resolverID uint64, currency string, fee *big.Int) error {
	if r == nil || r.state == nil {
		return errNilState
	}
	normalized, err := funds.NormalizeCurrency(currency)
	if err != nil {
		return err
	}
	if fee == nil || fee.Sign() < 0 {
		return fmt.Errorf("registry: resolver fee must be non-negative: %w", common.ErrConfigurationInvalid)
	}
	resolver, err := r.loadResolver(resolverID)
	if err != nil {
		return err
	}
	for i, entry := range resolver.Fees {
		if entry.Currency == normalized {
			resolver.Fees[i].Fee = new(big.Int).Set(fee)
			return r.state.ResolverPut(resolver)
		}
	}
	resolver.Fees = append(resolver.Fees, ResolverFee{Currency: normalized, Fee: new(big.Int).Set(fee)})
	return r.state.ResolverPut(resolver)
}

// RemoveResolverFee drops the resolver's fee entry for a currency. Offers
// created before the removal keep their snapshots.
func (r *Registry) RemoveResolverFee(resolverID uint64, currency string) error {
	if r == nil || r.state == nil {
		return errNilState
	}
	normalized, err := funds.NormalizeCurrency(currency)
	if err != nil {
		return err
	}
	resolver, err := r.loadResolver(resolverID)
	if err != nil {
		return err
	}
	kept := resolver.Fees[:0]
	for _, entry := range resolver.Fees {
		if entry.Currency != normalized {
			kept = append(kept, entry)
		}
	}
	resolver.Fees = kept
	return r.state.ResolverPut(resolver)
}

// AddAllowedSeller restricts the resolver to an explicit seller allow-list,
// adding the seller to it.
func (r *Registry) AddAllowedSeller(resolverID, sellerID uint64) error {
	if r == nil || r.state == nil {
		return errNilState
	}
	resolver, err := r.loadResolver(resolverID)
	if err != nil {
		return err
	}
	for _, id := range resolver.AllowedSellers {
		if id == sellerID {
			return nil
		}
	}
	resolver.AllowedSellers = append(resolver.AllowedSellers, sellerID)
	return r.state.ResolverPut(resolver)
}

// RemoveAllowedSeller removes the seller from the resolver's allow-list.
func (r *Registry) RemoveAllowedSeller(resolverID, sellerID uint64) error {
	if r == nil || r.state == nil {
		return errNilState
	}
	resolver, err := r.loadResolver(resolverID)
	if err != nil {
		return err
	}
	kept := resolver.AllowedSellers[:0]
	for _, id := range resolver.AllowedSellers {
		if id != sellerID {
			kept = append(kept, id)
		}
	}
	resolver.AllowedSellers = kept
	return r.state.ResolverPut(resolver)
}

// SetResolverActive toggles the resolver's availability for new offers.
func (r *Registry) SetResolverActive(resolverID uint64, active bool) error {
	if r == nil || r.state == nil {
		return errNilState
	}
	resolver, err := r.loadResolver(resolverID)
	if err != nil {
		return err
	}
	resolver.Active = active
	return r.state.ResolverPut(resolver)
}
