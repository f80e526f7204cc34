package rpc

import "net/http"

type disputeActionParams struct {
	Caller     string `json:"caller"`
	ExchangeID uint64 `json:"exchangeId"`
}

func (s *Server) disputeAction(w http.ResponseWriter, req *RPCRequest, action func(caller [20]byte, exchangeID uint64) error) {
	var params disputeActionParams
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

func (s *Server) handleRaiseDispute(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	s.disputeAction(w, req, s.disputes.Raise)
}

func (s *Server) handleRetractDispute(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	s.disputeAction(w, req, s.disputes.Retract)
}

func (s *Server) handleEscalateDispute(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	s.disputeAction(w, req, s.disputes.Escalate)
}

func (s *Server) handleRefuseEscalatedDispute(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	s.disputeAction(w, req, s.disputes.RefuseEscalated)
}

type resolveDisputeParams struct {
	Caller          string `json:"caller"`
	ExchangeID      uint64 `json:"exchangeId"`
	BuyerPercentBps uint32 `json:"buyerPercentBps"`
	CounterpartySig string `json:"counterpartySig"`
}

func (s *Server) handleResolveDispute(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params resolveDisputeParams
	if !decodeParams(w, req, &params) {
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return
	}
	sig, err := parseHexBytes(params.CounterpartySig)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return
	}
	if err := s.disputes.Resolve(caller, params.ExchangeID, params.BuyerPercentBps, sig); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

type decideDisputeParams struct {
	Caller          string `json:"caller"`
	ExchangeID      uint64 `json:"exchangeId"`
	BuyerPercentBps uint32 `json:"buyerPercentBps"`
}

func (s *Server) handleDecideDispute(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params decideDisputeParams
	if !decodeParams(w, req, &params) {
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return
	}
	if err := s.disputes.Decide(caller, params.ExchangeID, params.BuyerPercentBps); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

type disputeIDParams struct {
	ExchangeID uint64 `json:"exchangeId"`
}

func (s *Server) handleExpireEscalatedDispute(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params disputeIDParams
	if !decodeParams(w, req, &params) {
		return
	}
	if err := s.disputes.ExpireEscalated(params.ExchangeID); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

func (s *Server) handleExpireDispute(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params disputeIDParams
	if !decodeParams(w, req, &params) {
		return
	}
	if err := s.disputes.Expire(params.ExchangeID); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

func (s *Server) handleGetDispute(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params disputeIDParams
	if !decodeParams(w, req, &params) {
		return
	}
	loaded, err := s.disputes.Get(params.ExchangeID)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, newDisputeView(loaded))
}
