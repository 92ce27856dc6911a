package rpc

import (
	"math/big"
	"net/http"

	"stablenet/crypto"
)

type openVaultRequest struct {
	Owner          string `json:"owner"`
	CollateralType string `json:"collateralType"`
}

type openVaultResponse struct {
	VaultID uint64 `json:"vaultId"`
}

func (s *Server) handleOpenVault(w http.ResponseWriter, r *http.Request) {
	var req openVaultRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	owner, err := parseAddress("owner", req.Owner)
	if err != nil {
		s.writeError(w, err)
		return
	}
	id, err := s.vaults.OpenVault(owner, req.CollateralType)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, openVaultResponse{VaultID: id})
}

type vaultResponse struct {
	VaultID        uint64 `json:"vaultId"`
	Owner          string `json:"owner"`
	CollateralType string `json:"collateralType"`
	Shares         string `json:"shares"`
	Debt           string `json:"debt"`
	Active         bool   `json:"active"`
}

func (s *Server) handleVaultSnapshot(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	snapshot, err := s.vaults.VaultSnapshot(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, vaultResponse{
		VaultID:        snapshot.ID,
		Owner:          snapshot.Owner.String(),
		CollateralType: snapshot.CollateralType,
		Shares:         bigString(snapshot.Shares),
		Debt:           bigString(snapshot.Debt),
		Active:         snapshot.Active,
	})
}

type vaultHealthResponse struct {
	CollateralValueWad string `json:"collateralValueWad"`
	Debt               string `json:"debt"`
	LTVBps             uint64 `json:"ltvBps"`
	Healthy            bool   `json:"healthy"`
}

func (s *Server) handleVaultHealth(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	health, err := s.vaults.VaultHealth(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, vaultHealthResponse{
		CollateralValueWad: bigString(health.CollateralValueWad),
		Debt:               bigString(health.Debt),
		LTVBps:             health.LTVBps,
		Healthy:            health.Healthy,
	})
}

type vaultMutationRequest struct {
	Caller   string `json:"caller"`
	Amount   string `json:"amount"`
	Receiver string `json:"receiver,omitempty"`
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	id, _, caller, amount, err := s.decodeVaultMutation(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.vaults.Deposit(caller, id, amount); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, nil)
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	id, req, caller, amount, err := s.decodeVaultMutation(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	receiver := caller
	if req.Receiver != "" {
		if receiver, err = parseAddress("receiver", req.Receiver); err != nil {
			s.writeError(w, err)
			return
		}
	}
	if err := s.vaults.Withdraw(caller, id, amount, receiver); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, nil)
}

func (s *Server) handleBorrow(w http.ResponseWriter, r *http.Request) {
	id, _, caller, amount, err := s.decodeVaultMutation(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.vaults.Borrow(caller, id, amount); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, nil)
}

type repayResponse struct {
	Repaid string `json:"repaid"`
}

func (s *Server) handleRepay(w http.ResponseWriter, r *http.Request) {
	id, _, caller, amount, err := s.decodeVaultMutation(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	repaid, err := s.vaults.Repay(caller, id, amount)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, repayResponse{Repaid: bigString(repaid)})
}

func (s *Server) handleFlag(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.vaults.FlagForLiquidation(id); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, nil)
}

func (s *Server) decodeVaultMutation(r *http.Request) (uint64, vaultMutationRequest, crypto.Address, *big.Int, error) {
	var req vaultMutationRequest
	id, err := pathID(r)
	if err != nil {
		return 0, req, crypto.Address{}, nil, err
	}
	if err := decodeBody(r, &req); err != nil {
		return 0, req, crypto.Address{}, nil, err
	}
	caller, err := parseAddress("caller", req.Caller)
	if err != nil {
		return 0, req, crypto.Address{}, nil, err
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		return 0, req, crypto.Address{}, nil, err
	}
	return id, req, caller, amount, nil
}
