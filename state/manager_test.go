package state

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"vouchermarket/native/dispute"
	"vouchermarket/native/exchange"
	"vouchermarket/native/fees"
	"vouchermarket/native/offer"
	"vouchermarket/native/voucher"
	"vouchermarket/registry"
	"vouchermarket/storage"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(storage.NewMemDB())
}

func TestOfferRoundTrip(t *testing.T) {
	m := newTestManager(t)
	original := &offer.Offer{
		ID:                   7,
		SellerID:             11,
		Price:                big.NewInt(1000),
		SellerDeposit:        big.NewInt(100),
		BuyerCancelPenalty:   big.NewInt(50),
		Quantity:             10,
		Currency:             "USDX",
		ValidFrom:            500,
		ValidUntil:           10_000,
		RedeemableFrom:       1500,
		RedeemableUntil:      20_000,
		DisputePeriod:        1000,
		ResolutionPeriod:     1000,
		VoucherValidDuration: 5000,
		DisputeResolverID:    3,
		AgentID:              50,
		ProtocolFeeBps:       250,
		AgentFeeBps:          100,
		EscalationDeposit:    big.NewInt(40),
		Royalties:            []fees.RoyaltyShare{{Recipient: 60, Bps: 500}},
		PriceType:            offer.PriceDiscovery,
		Voided:               true,
		CreatedAt:            400,
	}
	require.NoError(t, m.OfferPut(original))
	loaded, ok, err := m.OfferGet(7)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, original, loaded)

	_, ok, err = m.OfferGet(8)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestExchangeRoundTrip(t *testing.T) {
	m := newTestManager(t)
	original := &exchange.Exchange{
		ID:          1,
		OfferID:     7,
		BuyerID:     2,
		Price:       big.NewInt(1234),
		State:       exchange.StateDisputed,
		FinalizedAt: 9000,
		Voucher: exchange.Voucher{
			TokenID:     7<<32 | 1,
			CommittedAt: 1000,
			ValidUntil:  6500,
			RedeemedAt:  2000,
			Expired:     true,
		},
	}
	require.NoError(t, m.ExchangePut(original))
	loaded, ok, err := m.ExchangeGet(1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, original, loaded)
}

func TestRangeAndSeqRoundTrip(t *testing.T) {
	m := newTestManager(t)
	original := &voucher.Range{
		OfferID:    7,
		Start:      7<<32 | 1,
		Length:     80,
		Minted:     50,
		Sold:       3,
		LastBurned: 7<<32 | 10,
		Owner:      11,
	}
	require.NoError(t, m.RangePut(original))
	loaded, ok, err := m.RangeGet(7)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, original, loaded)

	seq, err := m.VoucherSeqGet(7)
	require.NoError(t, err)
	require.Zero(t, seq)
	require.NoError(t, m.VoucherSeqPut(7, 81))
	seq, err = m.VoucherSeqGet(7)
	require.NoError(t, err)
	require.Equal(t, uint64(81), seq)
}

func TestDisputeRoundTrip(t *testing.T) {
	m := newTestManager(t)
	original := &dispute.Dispute{
		ExchangeID:         1,
		State:              dispute.StateEscalated,
		BuyerPercentBps:    4321,
		RaisedAt:           2000,
		ResolutionDeadline: 3000,
		EscalatedAt:        2500,
		EscalationDeadline: 7500,
		EscalatedBy:        2,
		EscalationDeposit:  big.NewInt(40),
	}
	require.NoError(t, m.DisputePut(original))
	loaded, ok, err := m.DisputeGet(1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, original, loaded)
}

func TestFundsAndEscrow(t *testing.T) {
	m := newTestManager(t)
	balance, err := m.FundsGet(1, "USDX")
	require.NoError(t, err)
	require.Zero(t, balance.Sign())

	require.NoError(t, m.FundsPut(1, "USDX", big.NewInt(500)))
	require.NoError(t, m.FundsPut(1, "EURX", big.NewInt(7)))
	balance, err = m.FundsGet(1, "USDX")
	require.NoError(t, err)
	require.Equal(t, int64(500), balance.Int64())

	require.NoError(t, m.EscrowPut(9, "USDX", big.NewInt(1100)))
	pool, err := m.EscrowGet(9, "USDX")
	require.NoError(t, err)
	require.Equal(t, int64(1100), pool.Int64())
	// Account 9's available funds live under a different prefix.
	balance, err = m.FundsGet(9, "USDX")
	require.NoError(t, err)
	require.Zero(t, balance.Sign())
}

func TestAccountRoundTrip(t *testing.T) {
	m := newTestManager(t)
	var addr [20]byte
	addr[19] = 5
	account := &registry.Account{ID: 4, Address: addr, Role: registry.RoleResolver}
	require.NoError(t, m.AccountPut(account))

	loaded, ok, err := m.AccountGet(4)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, account, loaded)

	id, ok, err := m.AccountIDByAddress(addr)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(4), id)

	require.NoError(t, m.AgentPut(&registry.Agent{AccountID: 4, FeeBps: 150}))
	agent, ok, err := m.AgentGet(4)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint32(150), agent.FeeBps)

	resolver := &registry.Resolver{
		AccountID:      4,
		Active:         true,
		Fees:           []registry.ResolverFee{{Currency: "USDX", Fee: big.NewInt(200)}},
		AllowedSellers: []uint64{11, 12},
	}
	require.NoError(t, m.ResolverPut(resolver))
	loadedResolver, ok, err := m.ResolverGet(4)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, resolver, loadedResolver)
}

func TestCountersAreIndependent(t *testing.T) {
	m := newTestManager(t)
	id, err := m.NextOfferID()
	require.NoError(t, err)
	require.Equal(t, uint64(1), id)
	id, err = m.NextOfferID()
	require.NoError(t, err)
	require.Equal(t, uint64(2), id)

	id, err = m.NextExchangeID()
	require.NoError(t, err)
	require.Equal(t, uint64(1), id)

	id, err = m.NextAccountID()
	require.NoError(t, err)
	require.Equal(t, uint64(1), id)
}
