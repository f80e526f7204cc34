package rpc

import (
	"net/http"

	"vouchermarket/native/offer"
)

type createOfferParams struct {
	Caller               string              `json:"caller"`
	Price                string              `json:"price"`
	SellerDeposit        string              `json:"sellerDeposit"`
	BuyerCancelPenalty   string              `json:"buyerCancelPenalty"`
	Quantity             uint64              `json:"quantity"`
	Currency             string              `json:"currency"`
	ValidFrom            int64               `json:"validFrom"`
	ValidUntil           int64               `json:"validUntil"`
	RedeemableFrom       int64               `json:"redeemableFrom"`
	RedeemableUntil      int64               `json:"redeemableUntil"`
	DisputePeriod        int64               `json:"disputePeriod"`
	ResolutionPeriod     int64               `json:"resolutionPeriod"`
	VoucherValidDuration int64               `json:"voucherValidDuration"`
	DisputeResolverID    uint64              `json:"disputeResolverId"`
	AgentID              uint64              `json:"agentId"`
	Royalties            []royaltyShareParam `json:"royalties"`
	PriceType            string              `json:"priceType"`
}

func (s *Server) handleCreateOffer(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params createOfferParams
	if !decodeParams(w, req, &params) {
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return
	}
	def := offer.Definition{
		Quantity:             params.Quantity,
		Currency:             params.Currency,
		ValidFrom:            params.ValidFrom,
		ValidUntil:           params.ValidUntil,
		RedeemableFrom:       params.RedeemableFrom,
		RedeemableUntil:      params.RedeemableUntil,
		DisputePeriod:        params.DisputePeriod,
		ResolutionPeriod:     params.ResolutionPeriod,
		VoucherValidDuration: params.VoucherValidDuration,
		DisputeResolverID:    params.DisputeResolverID,
		AgentID:              params.AgentID,
		Royalties:            royaltyShares(params.Royalties),
	}
	if def.Price, err = parseAmount(params.Price); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", "price: "+err.Error())
		return
	}
	if def.SellerDeposit, err = parseAmount(params.SellerDeposit); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", "sellerDeposit: "+err.Error())
		return
	}
	if def.BuyerCancelPenalty, err = parseAmount(params.BuyerCancelPenalty); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", "buyerCancelPenalty: "+err.Error())
		return
	}
	switch params.PriceType {
	case "", "static":
		def.PriceType = offer.PriceStatic
	case "discovery":
		def.PriceType = offer.PriceDiscovery
	default:
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", "priceType must be static or discovery")
		return
	}
	created, err := s.offers.Create(caller, def)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, newOfferView(created))
}

type offerActionParams struct {
	Caller  string `json:"caller"`
	OfferID uint64 `json:"offerId"`
}

func (s *Server) handleVoidOffer(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params offerActionParams
	if !decodeParams(w, req, &params) {
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return
	}
	if err := s.offers.Void(caller, params.OfferID); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

type updateRoyaltyParams struct {
	Caller    string              `json:"caller"`
	OfferID   uint64              `json:"offerId"`
	Royalties []royaltyShareParam `json:"royalties"`
}

func (s *Server) handleUpdateRoyaltyRecipients(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params updateRoyaltyParams
	if !decodeParams(w, req, &params) {
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return
	}
	if err := s.offers.UpdateRoyaltyRecipients(caller, params.OfferID, royaltyShares(params.Royalties)); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

type getOfferParams struct {
	OfferID uint64 `json:"offerId"`
}

func (s *Server) handleGetOffer(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params getOfferParams
	if !decodeParams(w, req, &params) {
		return
	}
	loaded, err := s.offers.Get(params.OfferID)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, newOfferView(loaded))
}

type reserveRangeParams struct {
	Caller  string `json:"caller"`
	OfferID uint64 `json:"offerId"`
	Length  uint64 `json:"length"`
	Owner   uint64 `json:"owner"`
}

func (s *Server) handleReserveRange(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params reserveRangeParams
	if !decodeParams(w, req, &params) {
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return
	}
	reserved, err := s.allocator.ReserveRange(caller, params.OfferID, params.Length, params.Owner)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, newRangeView(reserved))
}

type preMintParams struct {
	Caller  string `json:"caller"`
	OfferID uint64 `json:"offerId"`
	Amount  uint64 `json:"amount"`
}

func (s *Server) handlePreMint(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params preMintParams
	if !decodeParams(w, req, &params) {
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return
	}
	minted, err := s.allocator.PreMint(caller, params.OfferID, params.Amount)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]uint64{"minted": minted})
}

func (s *Server) handleBurnPreminted(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params offerActionParams
	if !decodeParams(w, req, &params) {
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return
	}
	burned, err := s.allocator.BurnPreminted(caller, params.OfferID)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]uint64{"burned": burned})
}
