package voucher

import (
	"errors"
	"math/big"
	"testing"

	"vouchermarket/native/common"
	"vouchermarket/native/offer"
)

type mockState struct {
	ranges map[uint64]*Range
	seqs   map[uint64]uint64
	offers map[uint64]*offer.Offer
}

func newMockState() *mockState {
	return &mockState{
		ranges: make(map[uint64]*Range),
		seqs:   make(map[uint64]uint64),
		offers: make(map[uint64]*offer.Offer),
	}
}

func (m *mockState) RangePut(r *Range) error {
	m.ranges[r.OfferID] = r.Clone()
	return nil
}

func (m *mockState) RangeGet(offerID uint64) (*Range, bool, error) {
	stored, ok := m.ranges[offerID]
	if !ok {
		return nil, false, nil
	}
	return stored.Clone(), true, nil
}

func (m *mockState) VoucherSeqGet(offerID uint64) (uint64, error) {
	return m.seqs[offerID], nil
}

func (m *mockState) VoucherSeqPut(offerID uint64, seq uint64) error {
	m.seqs[offerID] = seq
	return nil
}

func (m *mockState) OfferGet(id uint64) (*offer.Offer, bool, error) {
	stored, ok := m.offers[id]
	if !ok {
		return nil, false, nil
	}
	return stored.Clone(), true, nil
}

type mockRegistry struct {
	sellers map[[20]byte]uint64
}

func (m *mockRegistry) SellerByAddress(addr [20]byte) (uint64, bool, error) {
	id, ok := m.sellers[addr]
	return id, ok, nil
}

func sellerAddr() [20]byte {
	var addr [20]byte
	addr[19] = 1
	return addr
}

func newTestAllocator() (*Allocator, *mockState) {
	state := newMockState()
	state.offers[7] = &offer.Offer{
		ID:            7,
		SellerID:      11,
		Price:         big.NewInt(1000),
		SellerDeposit: big.NewInt(0),
		Quantity:      100,
		Currency:      "USDX",
	}
	alloc := NewAllocator()
	alloc.SetState(state)
	alloc.SetOffers(state)
	alloc.SetRegistry(&mockRegistry{sellers: map[[20]byte]uint64{sellerAddr(): 11}})
	return alloc, state
}

func TestReserveRangeOncePerOffer(t *testing.T) {
	alloc, state := newTestAllocator()
	rng, err := alloc.ReserveRange(sellerAddr(), 7, 80, 11)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	wantStart, _ := MakeTokenID(7, 1)
	if rng.Start != wantStart || rng.Length != 80 {
		t.Fatalf("range = %+v", rng)
	}
	if state.seqs[7] != 81 {
		t.Fatalf("seq = %d, fresh mints must continue after the range", state.seqs[7])
	}
	if _, err := alloc.ReserveRange(sellerAddr(), 7, 10, 11); !errors.Is(err, common.ErrInvalidState) {
		t.Fatalf("second reservation should fail, got %v", err)
	}
}

func TestReserveRangeRules(t *testing.T) {
	alloc, state := newTestAllocator()
	var stranger [20]byte
	stranger[19] = 9
	if _, err := alloc.ReserveRange(stranger, 7, 10, 11); !errors.Is(err, common.ErrAccessDenied) {
		t.Fatalf("stranger reserve should fail, got %v", err)
	}
	if _, err := alloc.ReserveRange(sellerAddr(), 7, 101, 11); !errors.Is(err, common.ErrConfigurationInvalid) {
		t.Fatalf("reserve above quantity should fail, got %v", err)
	}
	// A voucher already issued blocks reservation.
	state.seqs[7] = 2
	if _, err := alloc.ReserveRange(sellerAddr(), 7, 10, 11); !errors.Is(err, common.ErrInvalidState) {
		t.Fatalf("reserve after issuance should fail, got %v", err)
	}
}

func TestIssueTokenMonotonic(t *testing.T) {
	alloc, _ := newTestAllocator()
	first, err := alloc.IssueToken(7)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	second, err := alloc.IssueToken(7)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	offerID, seq := SplitTokenID(first)
	if offerID != 7 || seq != 1 {
		t.Fatalf("first token = %d/%d", offerID, seq)
	}
	if second != first+1 {
		t.Fatalf("ids not sequential: %d then %d", first, second)
	}
}

func TestPreMintCapsAtRemaining(t *testing.T) {
	alloc, _ := newTestAllocator()
	if _, err := alloc.ReserveRange(sellerAddr(), 7, 80, 11); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	minted, err := alloc.PreMint(sellerAddr(), 7, 50)
	if err != nil || minted != 50 {
		t.Fatalf("premint = %d (%v), want 50", minted, err)
	}
	minted, err = alloc.PreMint(sellerAddr(), 7, 50)
	if err != nil || minted != 30 {
		t.Fatalf("second premint = %d (%v), want capped 30", minted, err)
	}
	if _, err := alloc.PreMint(sellerAddr(), 7, 1); !errors.Is(err, common.ErrInvalidState) {
		t.Fatalf("premint on exhausted range should fail, got %v", err)
	}
}

func TestConsumePremintedWalksRange(t *testing.T) {
	alloc, _ := newTestAllocator()
	if _, err := alloc.ReserveRange(sellerAddr(), 7, 10, 11); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if _, err := alloc.ConsumePreminted(7); !errors.Is(err, common.ErrInvalidState) {
		t.Fatalf("consume before premint should fail, got %v", err)
	}
	if _, err := alloc.PreMint(sellerAddr(), 7, 2); err != nil {
		t.Fatalf("premint: %v", err)
	}
	start, _ := MakeTokenID(7, 1)
	for i := uint64(0); i < 2; i++ {
		tokenID, err := alloc.ConsumePreminted(7)
		if err != nil {
			t.Fatalf("consume: %v", err)
		}
		if tokenID != start+i {
			t.Fatalf("token = %d, want %d", tokenID, start+i)
		}
	}
	if _, err := alloc.ConsumePreminted(7); !errors.Is(err, common.ErrInvalidState) {
		t.Fatalf("consume past minted should fail, got %v", err)
	}
}

func TestBurnPremintedBatches(t *testing.T) {
	alloc, state := newTestAllocator()
	alloc.SetLimits(0, 3)
	if _, err := alloc.ReserveRange(sellerAddr(), 7, 10, 11); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if _, err := alloc.PreMint(sellerAddr(), 7, 8); err != nil {
		t.Fatalf("premint: %v", err)
	}
	if _, err := alloc.ConsumePreminted(7); err != nil {
		t.Fatalf("consume: %v", err)
	}
	if _, err := alloc.BurnPreminted(sellerAddr(), 7); !errors.Is(err, common.ErrInvalidState) {
		t.Fatalf("burn before void should fail, got %v", err)
	}
	state.offers[7].Voided = true
	// 7 unsold preminted ids burn in batches of 3.
	for _, want := range []uint64{3, 3, 1} {
		burned, err := alloc.BurnPreminted(sellerAddr(), 7)
		if err != nil {
			t.Fatalf("burn: %v", err)
		}
		if burned != want {
			t.Fatalf("burned = %d, want %d", burned, want)
		}
	}
	if _, err := alloc.BurnPreminted(sellerAddr(), 7); !errors.Is(err, common.ErrInvalidState) {
		t.Fatalf("burn with nothing left should fail, got %v", err)
	}
}

func TestTokenIDRoundTrip(t *testing.T) {
	tokenID, err := MakeTokenID(12345, 678)
	if err != nil {
		t.Fatalf("make: %v", err)
	}
	offerID, seq := SplitTokenID(tokenID)
	if offerID != 12345 || seq != 678 {
		t.Fatalf("split = %d/%d", offerID, seq)
	}
	if _, err := MakeTokenID(1, 0); err == nil {
		t.Fatalf("zero sequence should be rejected")
	}
	if _, err := MakeTokenID(1, 1<<32); err == nil {
		t.Fatalf("sequence overflow should be rejected")
	}
}
