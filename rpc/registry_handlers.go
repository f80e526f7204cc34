package rpc

import (
	"net/http"

	"vouchermarket/registry"
)

type registerAccountParams struct {
	Address string `json:"address"`
	FeeBps  uint32 `json:"feeBps,omitempty"`
}

type accountResult struct {
	AccountID uint64 `json:"accountId"`
	Address   string `json:"address"`
	Role      string `json:"role"`
}

func roleName(role registry.Role) string {
	switch role {
	case registry.RoleSeller:
		return "seller"
	case registry.RoleBuyer:
		return "buyer"
	case registry.RoleAgent:
		return "agent"
	case registry.RoleResolver:
		return "resolver"
	default:
		return "unknown"
	}
}

func (s *Server) writeAccount(w http.ResponseWriter, id interface{}, account *registry.Account, err error) {
	if err != nil {
		writeEngineError(w, id, err)
		return
	}
	writeResult(w, id, accountResult{
		AccountID: account.ID,
		Address:   formatAddress(account.Address),
		Role:      roleName(account.Role),
	})
}

func (s *Server) handleRegisterSeller(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params registerAccountParams
	if !decodeParams(w, req, &params) {
		return
	}
	addr, err := parseAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return
	}
	account, err := s.registry.RegisterSeller(addr)
	s.writeAccount(w, req.ID, account, err)
}

func (s *Server) handleRegisterBuyer(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params registerAccountParams
	if !decodeParams(w, req, &params) {
		return
	}
	addr, err := parseAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return
	}
	account, err := s.registry.RegisterBuyer(addr)
	s.writeAccount(w, req.ID, account, err)
}

func (s *Server) handleRegisterAgent(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params registerAccountParams
	if !decodeParams(w, req, &params) {
		return
	}
	addr, err := parseAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return
	}
	account, err := s.registry.RegisterAgent(addr, params.FeeBps)
	s.writeAccount(w, req.ID, account, err)
}

func (s *Server) handleRegisterResolver(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params registerAccountParams
	if !decodeParams(w, req, &params) {
		return
	}
	addr, err := parseAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return
	}
	account, err := s.registry.RegisterResolver(addr)
	s.writeAccount(w, req.ID, account, err)
}

type setResolverFeeParams struct {
	ResolverID uint64 `json:"resolverId"`
	Currency   string `json:"currency"`
	Fee        string `json:"fee"`
}

func (s *Server) handleSetResolverFee(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params setResolverFeeParams
	if !decodeParams(w, req, &params) {
		return
	}
	fee, err := parseAmount(params.Fee)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return
	}
	if err := s.registry.SetResolverFee(params.ResolverID, params.Currency, fee); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

type resolverCurrencyParams struct {
	ResolverID uint64 `json:"resolverId"`
	Currency   string `json:"currency"`
}

func (s *Server) handleRemoveResolverFee(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params resolverCurrencyParams
	if !decodeParams(w, req, &params) {
		return
	}
	if err := s.registry.RemoveResolverFee(params.ResolverID, params.Currency); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

type resolverActiveParams struct {
	ResolverID uint64 `json:"resolverId"`
	Active     bool   `json:"active"`
}

func (s *Server) handleSetResolverActive(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params resolverActiveParams
	if !decodeParams(w, req, &params) {
		return
	}
	if err := s.registry.SetResolverActive(params.ResolverID, params.Active); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

type resolverSellerParams struct {
	ResolverID uint64 `json:"resolverId"`
	SellerID   uint64 `json:"sellerId"`
}

func (s *Server) handleAddAllowedSeller(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params resolverSellerParams
	if !decodeParams(w, req, &params) {
		return
	}
	if err := s.registry.AddAllowedSeller(params.ResolverID, params.SellerID); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

func (s *Server) handleRemoveAllowedSeller(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params resolverSellerParams
	if !decodeParams(w, req, &params) {
		return
	}
	if err := s.registry.RemoveAllowedSeller(params.ResolverID, params.SellerID); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}
