package state

import (
	"vouchermarket/native/voucher"
)

const (
	rangePrefix      = "market/range/"
	voucherSeqPrefix = "market/voucherseq/"
)

type storedRange struct {
	OfferID    uint64
	Start      uint64
	Length     uint64
	Minted     uint64
	Sold       uint64
	LastBurned uint64
	Owner      uint64
}

// RangePut persists the offer's reserved token range.
func (m *Manager) RangePut(r *voucher.Range) error {
	stored := storedRange(*r)
	return m.put(hashKey(rangePrefix, idSuffix(r.OfferID)), &stored)
}

// RangeGet loads the offer's reserved token range.
func (m *Manager) RangeGet(offerID uint64) (*voucher.Range, bool, error) {
	var stored storedRange
	ok, err := m.get(hashKey(rangePrefix, idSuffix(offerID)), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	rng := voucher.Range(stored)
	return &rng, true, nil
}

// VoucherSeqGet returns the offer's issuance cursor, zero when no voucher has
// been issued yet.
func (m *Manager) VoucherSeqGet(offerID uint64) (uint64, error) {
	var seq uint64
	if _, err := m.get(hashKey(voucherSeqPrefix, idSuffix(offerID)), &seq); err != nil {
		return 0, err
	}
	return seq, nil
}

// VoucherSeqPut stores the offer's issuance cursor.
func (m *Manager) VoucherSeqPut(offerID uint64, seq uint64) error {
	return m.put(hashKey(voucherSeqPrefix, idSuffix(offerID)), seq)
}
