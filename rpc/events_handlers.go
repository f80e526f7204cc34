package rpc

import (
	"net/http"

	"vouchermarket/core/types"
)

type getEventsParams struct {
	Limit int `json:"limit"`
}

func (s *Server) handleGetEvents(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params getEventsParams
	if !decodeParams(w, req, &params) {
		return
	}
	if s.events == nil {
		writeResult(w, req.ID, []*types.Event{})
		return
	}
	recent := s.events.Recent(params.Limit)
	if recent == nil {
		recent = []*types.Event{}
	}
	writeResult(w, req.ID, recent)
}
