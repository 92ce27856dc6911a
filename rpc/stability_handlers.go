package rpc

import (
	"net/http"
)

type availableResponse struct {
	Available string `json:"available"`
}

func (s *Server) handleAvailable(w http.ResponseWriter, r *http.Request) {
	available, err := s.pool.Available()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, availableResponse{Available: bigString(available)})
}

type poolMutationRequest struct {
	Account string `json:"account"`
	Amount  string `json:"amount"`
}

func (s *Server) handlePoolDeposit(w http.ResponseWriter, r *http.Request) {
	var req poolMutationRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	account, err := parseAddress("account", req.Account)
	if err != nil {
		s.writeError(w, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.pool.Deposit(account, amount); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, nil)
}

func (s *Server) handlePoolWithdraw(w http.ResponseWriter, r *http.Request) {
	var req poolMutationRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	account, err := parseAddress("account", req.Account)
	if err != nil {
		s.writeError(w, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.pool.Withdraw(account, amount); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, nil)
}
