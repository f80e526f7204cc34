package state

import (
	"math/big"

	"vouchermarket/native/exchange"
)

const exchangePrefix = "market/exchange/"

type storedExchange struct {
	ID          uint64
	OfferID     uint64
	BuyerID     uint64
	Price       *big.Int
	State       uint8
	FinalizedAt uint64

	TokenID     uint64
	CommittedAt uint64
	ValidUntil  uint64
	RedeemedAt  uint64
	Expired     bool
}

func exchangeToStored(x *exchange.Exchange) *storedExchange {
	return &storedExchange{
		ID:          x.ID,
		OfferID:     x.OfferID,
		BuyerID:     x.BuyerID,
		Price:       nonNil(x.Price),
		State:       uint8(x.State),
		FinalizedAt: uint64(x.FinalizedAt),
		TokenID:     x.Voucher.TokenID,
		CommittedAt: uint64(x.Voucher.CommittedAt),
		ValidUntil:  uint64(x.Voucher.ValidUntil),
		RedeemedAt:  uint64(x.Voucher.RedeemedAt),
		Expired:     x.Voucher.Expired,
	}
}

func exchangeFromStored(stored *storedExchange) *exchange.Exchange {
	return &exchange.Exchange{
		ID:          stored.ID,
		OfferID:     stored.OfferID,
		BuyerID:     stored.BuyerID,
		Price:       nonNil(stored.Price),
		State:       exchange.State(stored.State),
		FinalizedAt: int64(stored.FinalizedAt),
		Voucher: exchange.Voucher{
			TokenID:     stored.TokenID,
			CommittedAt: int64(stored.CommittedAt),
			ValidUntil:  int64(stored.ValidUntil),
			RedeemedAt:  int64(stored.RedeemedAt),
			Expired:     stored.Expired,
		},
	}
}

// ExchangePut persists the exchange.
func (m *Manager) ExchangePut(x *exchange.Exchange) error {
	return m.put(hashKey(exchangePrefix, idSuffix(x.ID)), exchangeToStored(x))
}

// ExchangeGet loads the exchange by id.
func (m *Manager) ExchangeGet(id uint64) (*exchange.Exchange, bool, error) {
	var stored storedExchange
	ok, err := m.get(hashKey(exchangePrefix, idSuffix(id)), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return exchangeFromStored(&stored), true, nil
}

// NextExchangeID draws the next exchange id.
func (m *Manager) NextExchangeID() (uint64, error) {
	return m.nextID("exchanges")
}
