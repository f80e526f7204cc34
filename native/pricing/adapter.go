package pricing

import (
	"errors"
	"fmt"
	"math/big"

	"vouchermarket/native/common"
)

// Side names which party's calldata drives the external pricing mechanism.
type Side uint8

const (
	SideAsk Side = iota
	SideBid
	SideWrapper
)

// Valid reports whether the side value is within the supported range.
func (s Side) Valid() bool {
	return s == SideAsk || s == SideBid || s == SideWrapper
}

// Descriptor is the ephemeral, per-call description of an external
// price-discovery invocation. It is never persisted.
type Descriptor struct {
	Side     Side
	Price    *big.Int
	Conduit  uint64
	Calldata []byte
}

// Mechanism executes the external price-discovery call and reports the price
// at which funds moved. The adapter never trusts this value on its own.
type Mechanism interface {
	Execute(d Descriptor, payer uint64, currency string) (*big.Int, error)
}

// LedgerView exposes the balance reads the adapter needs to verify that the
// funds the mechanism claims to have moved actually moved.
type LedgerView interface {
	Available(account uint64, currency string) (*big.Int, error)
}

var (
	errNilMechanism = errors.New("pricing adapter: mechanism not configured")
	errNilLedger    = errors.New("pricing adapter: ledger view not configured")
)

// Adapter wraps the external price-discovery mechanism. It snapshots ledger
// balances around the call and fails the whole commit when the observed
// movement differs from the reported price.
type Adapter struct {
	mech   Mechanism
	ledger LedgerView
}

// NewAdapter creates an adapter bound to the mechanism and ledger view.
func NewAdapter(mech Mechanism, ledger LedgerView) *Adapter {
	return &Adapter{mech: mech, ledger: ledger}
}

// ResolvePrice runs the external mechanism for the payer and returns the
// verified transfer price. After the call the conduit must hold exactly the
// reported price more, and for ask/bid sides the payer must hold exactly the
// reported price less.
func (a *Adapter) ResolvePrice(d Descriptor, payer uint64, currency string) (*big.Int, error) {
	if a == nil || a.mech == nil {
		return nil, errNilMechanism
	}
	if a.ledger == nil {
		return nil, errNilLedger
	}
	if !d.Side.Valid() {
		return nil, fmt.Errorf("pricing: invalid side %d: %w", d.Side, common.ErrConfigurationInvalid)
	}
	if d.Conduit == 0 {
		return nil, fmt.Errorf("pricing: conduit account required: %w", common.ErrConfigurationInvalid)
	}
	payerBefore, err := a.ledger.Available(payer, currency)
	if err != nil {
		return nil, err
	}
	conduitBefore, err := a.ledger.Available(d.Conduit, currency)
	if err != nil {
		return nil, err
	}
	reported, err := a.mech.Execute(d, payer, currency)
	if err != nil {
		return nil, fmt.Errorf("pricing: external call failed: %w: %v", common.ErrTransferFailure, err)
	}
	if reported == nil || reported.Sign() <= 0 {
		return nil, fmt.Errorf("pricing: reported price must be positive: %w", common.ErrTransferFailure)
	}
	conduitAfter, err := a.ledger.Available(d.Conduit, currency)
	if err != nil {
		return nil, err
	}
	received := new(big.Int).Sub(conduitAfter, conduitBefore)
	if received.Cmp(reported) != 0 {
		return nil, fmt.Errorf("pricing: conduit received %s, mechanism reported %s: %w", received, reported, common.ErrTransferFailure)
	}
	if d.Side != SideWrapper {
		payerAfter, err := a.ledger.Available(payer, currency)
		if err != nil {
			return nil, err
		}
		paid := new(big.Int).Sub(payerBefore, payerAfter)
		if paid.Cmp(reported) != 0 {
			return nil, fmt.Errorf("pricing: payer moved %s, mechanism reported %s: %w", paid, reported, common.ErrTransferFailure)
		}
	}
	return new(big.Int).Set(reported), nil
}
