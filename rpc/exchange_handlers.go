package rpc

import (
	"net/http"

	"vouchermarket/native/pricing"
)

type commitParams struct {
	Caller  string `json:"caller"`
	OfferID uint64 `json:"offerId"`
}

func (s *Server) handleCommitToOffer(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params commitParams
	if !decodeParams(w, req, &params) {
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return
	}
	committed, err := s.exchanges.CommitToOffer(caller, params.OfferID)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, newExchangeView(committed))
}

type discoveryParams struct {
	Side     string `json:"side"`
	Price    string `json:"price"`
	Conduit  uint64 `json:"conduit"`
	Calldata string `json:"calldata"`
}

func (p *discoveryParams) descriptor(w http.ResponseWriter, id interface{}) (pricing.Descriptor, bool) {
	var d pricing.Descriptor
	side, err := parseSide(p.Side)
	if err != nil {
		writeError(w, http.StatusBadRequest, id, codeInvalidParams, "invalid params", err.Error())
		return d, false
	}
	price, err := parseAmount(p.Price)
	if err != nil {
		writeError(w, http.StatusBadRequest, id, codeInvalidParams, "invalid params", "price: "+err.Error())
		return d, false
	}
	calldata, err := parseHexBytes(p.Calldata)
	if err != nil {
		writeError(w, http.StatusBadRequest, id, codeInvalidParams, "invalid params", err.Error())
		return d, false
	}
	d = pricing.Descriptor{Side: side, Price: price, Conduit: p.Conduit, Calldata: calldata}
	return d, true
}

type discoveryCommitParams struct {
	Caller    string          `json:"caller"`
	OfferID   uint64          `json:"offerId"`
	Discovery discoveryParams `json:"discovery"`
}

func (s *Server) handleCommitToPriceDiscoveryOffer(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params discoveryCommitParams
	if !decodeParams(w, req, &params) {
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return
	}
	descriptor, ok := params.Discovery.descriptor(w, req.ID)
	if !ok {
		return
	}
	committed, err := s.exchanges.CommitToPriceDiscoveryOffer(caller, params.OfferID, descriptor)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, newExchangeView(committed))
}

type sequentialCommitParams struct {
	Caller     string          `json:"caller"`
	ExchangeID uint64          `json:"exchangeId"`
	Discovery  discoveryParams `json:"discovery"`
}

func (s *Server) handleSequentialCommitToOffer(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params sequentialCommitParams
	if !decodeParams(w, req, &params) {
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return
	}
	descriptor, ok := params.Discovery.descriptor(w, req.ID)
	if !ok {
		return
	}
	if err := s.exchanges.SequentialCommitToOffer(caller, params.ExchangeID, descriptor); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

type exchangeActionParams struct {
	Caller     string `json:"caller"`
	ExchangeID uint64 `json:"exchangeId"`
}

// exchangeAction dispatches the caller-gated lifecycle transitions that share
// the same parameter shape.
func (s *Server) exchangeAction(w http.ResponseWriter, req *RPCRequest, action func(caller [20]byte, exchangeID uint64) error) {
	var params exchangeActionParams
	if !decodeParams(w, req, &params) {
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return
	}
	if err := action(caller, params.ExchangeID); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

func (s *Server) handleRedeemVoucher(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	s.exchangeAction(w, req, s.exchanges.RedeemVoucher)
}

func (s *Server) handleCancelVoucher(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	s.exchangeAction(w, req, s.exchanges.CancelVoucher)
}

func (s *Server) handleRevokeVoucher(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	s.exchangeAction(w, req, s.exchanges.RevokeVoucher)
}

func (s *Server) handleCompleteExchange(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	s.exchangeAction(w, req, s.exchanges.CompleteExchange)
}

type transferVoucherParams struct {
	ExchangeID uint64 `json:"exchangeId"`
	NewHolder  string `json:"newHolder"`
}

// handleTransferVoucher records an ownership change of the voucher claim,
// reassigning the exchange to the new holder without touching escrow.
func (s *Server) handleTransferVoucher(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params transferVoucherParams
	if !decodeParams(w, req, &params) {
		return
	}
	newHolder, err := parseAddress(params.NewHolder)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return
	}
	if err := s.exchanges.OnVoucherTransferred(params.ExchangeID, newHolder); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

type exchangeIDParams struct {
	ExchangeID uint64 `json:"exchangeId"`
}

func (s *Server) handleExpireVoucher(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params exchangeIDParams
	if !decodeParams(w, req, &params) {
		return
	}
	if err := s.exchanges.ExpireVoucher(params.ExchangeID); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

func (s *Server) handleGetExchange(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params exchangeIDParams
	if !decodeParams(w, req, &params) {
		return
	}
	loaded, err := s.exchanges.Get(params.ExchangeID)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, newExchangeView(loaded))
}

func (s *Server) handleGetExchangeState(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params exchangeIDParams
	if !decodeParams(w, req, &params) {
		return
	}
	state, err := s.exchanges.StateOf(params.ExchangeID)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"state": state.String()})
}

func (s *Server) handleIsExchangeFinalized(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params exchangeIDParams
	if !decodeParams(w, req, &params) {
		return
	}
	finalized, err := s.exchanges.IsFinalized(params.ExchangeID)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"finalized": finalized})
}

type royaltyInfoParams struct {
	TokenID   uint64 `json:"tokenId"`
	SalePrice string `json:"salePrice"`
}

func (s *Server) handleRoyaltyInfo(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params royaltyInfoParams
	if !decodeParams(w, req, &params) {
		return
	}
	salePrice, err := parseAmount(params.SalePrice)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", "salePrice: "+err.Error())
		return
	}
	recipient, amount, err := s.exchanges.RoyaltyInfo(params.TokenID, salePrice)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]interface{}{
		"recipient": recipient,
		"amount":    formatAmount(amount),
	})
}
