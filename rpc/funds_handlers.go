package rpc

import "net/http"

type fundsMoveParams struct {
	AccountID uint64 `json:"accountId"`
	Currency  string `json:"currency"`
	Amount    string `json:"amount"`
}

func (s *Server) handleDepositFunds(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params fundsMoveParams
	if !decodeParams(w, req, &params) {
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return
	}
	if err := s.ledger.Deposit(params.AccountID, params.Currency, amount); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

func (s *Server) handleWithdrawFunds(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params fundsMoveParams
	if !decodeParams(w, req, &params) {
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return
	}
	if err := s.ledger.Withdraw(params.AccountID, params.Currency, amount); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

type fundsQueryParams struct {
	AccountID uint64 `json:"accountId"`
	Currency  string `json:"currency"`
}

func (s *Server) handleGetAvailableFunds(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params fundsQueryParams
	if !decodeParams(w, req, &params) {
		return
	}
	balance, err := s.ledger.Available(params.AccountID, params.Currency)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"available": formatAmount(balance)})
}
