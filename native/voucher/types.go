package voucher

import (
	"fmt"

	"vouchermarket/native/common"
)

// Token ids pack the offer id into the high bits and a per-offer sequence
// number into the low 32 bits, making ids deterministic and collision-free
// across offers without any global counter.
const seqBits = 32

// MakeTokenID derives the token id for the given offer and sequence number.
func MakeTokenID(offerID, seq uint64) (uint64, error) {
	if offerID == 0 || offerID >= 1<<(64-seqBits) {
		return 0, fmt.Errorf("voucher: offer id %d out of range: %w", offerID, common.ErrConfigurationInvalid)
	}
	if seq == 0 || seq >= 1<<seqBits {
		return 0, fmt.Errorf("voucher: sequence %d out of range: %w", seq, common.ErrConfigurationInvalid)
	}
	return offerID<<seqBits | seq, nil
}

// SplitTokenID recovers the offer id and sequence number from a token id.
func SplitTokenID(tokenID uint64) (offerID, seq uint64) {
	return tokenID >> seqBits, tokenID & (1<<seqBits - 1)
}

// Range is an offer-scoped contiguous token id allocation. Preminted ids are
// owned by the range owner without exchanges; exchanges are created lazily
// when a preminted voucher is first sold. Minted never exceeds Length, and an
// id is either issued from the range or minted fresh beyond it, never both.
type Range struct {
	OfferID    uint64
	Start      uint64
	Length     uint64
	Minted     uint64
	Sold       uint64
	LastBurned uint64
	Owner      uint64
}

// Clone returns a copy of the range.
func (r *Range) Clone() *Range {
	if r == nil {
		return nil
	}
	clone := *r
	return &clone
}

// Remaining reports how many ids can still be preminted.
func (r *Range) Remaining() uint64 {
	if r == nil || r.Minted >= r.Length {
		return 0
	}
	return r.Length - r.Minted
}

// Unsold reports how many preminted ids are still held by the owner.
func (r *Range) Unsold() uint64 {
	if r == nil || r.Sold >= r.Minted {
		return 0
	}
	return r.Minted - r.Sold
}
