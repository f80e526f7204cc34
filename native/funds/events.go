package funds

import (
	"math/big"
	"strconv"

	"vouchermarket/core/types"
)

const (
	EventTypeFundsDeposited  = "market.funds.deposited"
	EventTypeFundsWithdrawn  = "market.funds.withdrawn"
	EventTypeFundsEncumbered = "market.funds.encumbered"
	EventTypeFundsReleased   = "market.funds.released"
)

func newFundsEvent(eventType string, account uint64, currency string, amount, balance *big.Int) *types.Event {
	attrs := map[string]string{
		"account":  strconv.FormatUint(account, 10),
		"currency": currency,
		"amount":   amount.String(),
		"balance":  balance.String(),
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}

func newEscrowEvent(eventType string, exchangeID, account uint64, currency string, amount, pool *big.Int) *types.Event {
	attrs := map[string]string{
		"exchangeId": strconv.FormatUint(exchangeID, 10),
		"currency":   currency,
		"amount":     amount.String(),
		"pool":       pool.String(),
	}
	if account != 0 {
		attrs["account"] = strconv.FormatUint(account, 10)
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}
