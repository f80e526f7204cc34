package state

import (
	"math/big"
)

const (
	fundsPrefix  = "market/funds/"
	escrowPrefix = "market/escrow/"
)

func currencyKey(prefix string, id uint64, currency string) []byte {
	suffix := idSuffix(id)
	suffix = append(suffix, currency...)
	return hashKey(prefix, suffix)
}

// FundsGet returns the available balance for the account and currency.
func (m *Manager) FundsGet(account uint64, currency string) (*big.Int, error) {
	balance := new(big.Int)
	if _, err := m.get(currencyKey(fundsPrefix, account, currency), balance); err != nil {
		return nil, err
	}
	return balance, nil
}

// FundsPut stores the available balance for the account and currency.
func (m *Manager) FundsPut(account uint64, currency string, amount *big.Int) error {
	return m.put(currencyKey(fundsPrefix, account, currency), nonNil(amount))
}

// EscrowGet returns the escrow pool held against the exchange.
func (m *Manager) EscrowGet(exchangeID uint64, currency string) (*big.Int, error) {
	pool := new(big.Int)
	if _, err := m.get(currencyKey(escrowPrefix, exchangeID, currency), pool); err != nil {
		return nil, err
	}
	return pool, nil
}

// EscrowPut stores the escrow pool held against the exchange.
func (m *Manager) EscrowPut(exchangeID uint64, currency string, amount *big.Int) error {
	return m.put(currencyKey(escrowPrefix, exchangeID, currency), nonNil(amount))
}
