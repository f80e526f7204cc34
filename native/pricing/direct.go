package pricing

import (
	"fmt"
	"math/big"

	"vouchermarket/native/common"
)

// Mover moves available funds between accounts. Satisfied by the funds
// ledger.
type Mover interface {
	Transfer(from, to uint64, currency string, amount *big.Int) error
}

// DirectMechanism is the built-in discovery mechanism: the descriptor price
// is taken as the clearing price and moved from the payer to the conduit in
// one ledger transfer. External auction or order-book mechanisms replace it
// behind the same interface.
type DirectMechanism struct {
	ledger Mover
}

// NewDirectMechanism creates a mechanism over the supplied ledger.
func NewDirectMechanism(ledger Mover) *DirectMechanism {
	return &DirectMechanism{ledger: ledger}
}

// Execute transfers the descriptor price from payer to conduit and reports
// it as the price at which funds moved.
func (m *DirectMechanism) Execute(d Descriptor, payer uint64, currency string) (*big.Int, error) {
	if m == nil || m.ledger == nil {
		return nil, fmt.Errorf("pricing: direct mechanism not configured: %w", common.ErrConfigurationInvalid)
	}
	if d.Price == nil || d.Price.Sign() <= 0 {
		return nil, fmt.Errorf("pricing: direct mechanism requires a positive price: %w", common.ErrConfigurationInvalid)
	}
	if err := m.ledger.Transfer(payer, d.Conduit, currency, d.Price); err != nil {
		return nil, err
	}
	return new(big.Int).Set(d.Price), nil
}
