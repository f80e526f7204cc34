package state

import (
	"math/big"

	"vouchermarket/native/dispute"
)

const disputePrefix = "market/dispute/"

type storedDispute struct {
	ExchangeID      uint64
	State           uint8
	BuyerPercentBps uint32

	RaisedAt           uint64
	ResolutionDeadline uint64

	EscalatedAt        uint64
	EscalationDeadline uint64
	EscalatedBy        uint64
	EscalationDeposit  *big.Int
}

// DisputePut persists the dispute keyed by its exchange id.
func (m *Manager) DisputePut(d *dispute.Dispute) error {
	stored := &storedDispute{
		ExchangeID:         d.ExchangeID,
		State:              uint8(d.State),
		BuyerPercentBps:    d.BuyerPercentBps,
		RaisedAt:           uint64(d.RaisedAt),
		ResolutionDeadline: uint64(d.ResolutionDeadline),
		EscalatedAt:        uint64(d.EscalatedAt),
		EscalationDeadline: uint64(d.EscalationDeadline),
		EscalatedBy:        d.EscalatedBy,
		EscalationDeposit:  nonNil(d.EscalationDeposit),
	}
	return m.put(hashKey(disputePrefix, idSuffix(d.ExchangeID)), stored)
}

// DisputeGet loads the dispute for the exchange.
func (m *Manager) DisputeGet(exchangeID uint64) (*dispute.Dispute, bool, error) {
	var stored storedDispute
	ok, err := m.get(hashKey(disputePrefix, idSuffix(exchangeID)), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return &dispute.Dispute{
		ExchangeID:         stored.ExchangeID,
		State:              dispute.State(stored.State),
		BuyerPercentBps:    stored.BuyerPercentBps,
		RaisedAt:           int64(stored.RaisedAt),
		ResolutionDeadline: int64(stored.ResolutionDeadline),
		EscalatedAt:        int64(stored.EscalatedAt),
		EscalationDeadline: int64(stored.EscalationDeadline),
		EscalatedBy:        stored.EscalatedBy,
		EscalationDeposit:  nonNil(stored.EscalationDeposit),
	}, true, nil
}
