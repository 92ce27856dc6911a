package rpc

import (
	"encoding/hex"
	"net/http"

	"stablenet/native/liquidation"
)

type queueResponse struct {
	VaultIDs []uint64 `json:"vaultIds"`
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	queue, err := s.liq.PendingQueue()
	if err != nil {
		s.writeError(w, err)
		return
	}
	if queue == nil {
		queue = []uint64{}
	}
	s.writeJSON(w, http.StatusOK, queueResponse{VaultIDs: queue})
}

type batchResponse struct {
	BatchID         uint64   `json:"batchId"`
	CollateralType  string   `json:"collateralType"`
	VaultIDs        []uint64 `json:"vaultIds"`
	Lots            []string `json:"lots"`
	TotalQtyOffered string   `json:"totalQtyOffered"`
	StartCommit     int64    `json:"startCommit"`
	StartReveal     int64    `json:"startReveal"`
	EndReveal       int64    `json:"endReveal"`
	ClearingPrice   string   `json:"clearingPrice"`
	Settled         bool     `json:"settled"`
	Phase           string   `json:"phase"`
}

func (s *Server) batchBody(batch *liquidation.Batch, phase liquidation.Phase) batchResponse {
	lots := make([]string, len(batch.Lots))
	for i, lot := range batch.Lots {
		lots[i] = bigString(lot)
	}
	return batchResponse{
		BatchID:         batch.ID,
		CollateralType:  batch.CollateralType,
		VaultIDs:        batch.VaultIDs,
		Lots:            lots,
		TotalQtyOffered: bigString(batch.TotalQtyOffered),
		StartCommit:     batch.StartCommit,
		StartReveal:     batch.StartReveal,
		EndReveal:       batch.EndReveal,
		ClearingPrice:   bigString(batch.ClearingPrice),
		Settled:         batch.Settled,
		Phase:           phase.String(),
	}
}

func (s *Server) handleStartBatch(w http.ResponseWriter, r *http.Request) {
	batch, err := s.liq.StartBatch()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, s.batchBody(batch, liquidation.PhaseCommitting))
}

func (s *Server) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	batch, err := s.liq.GetBatch(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.batchBody(batch, batch.Phase(s.liq.Now())))
}

type commitBidRequest struct {
	Bidder     string `json:"bidder"`
	Commitment string `json:"commitment"`
	Bond       string `json:"bond"`
}

func (s *Server) handleCommitBid(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req commitBidRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	bidder, err := parseAddress("bidder", req.Bidder)
	if err != nil {
		s.writeError(w, err)
		return
	}
	commitment, err := parseHash32("commitment", req.Commitment)
	if err != nil {
		s.writeError(w, err)
		return
	}
	bond, err := parseAmount("bond", req.Bond)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.liq.CommitBid(bidder, id, commitment, bond); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, nil)
}

type revealBidRequest struct {
	Bidder  string `json:"bidder"`
	VaultID uint64 `json:"vaultId"`
	Qty     string `json:"qty"`
	Price   string `json:"price"`
	Salt    string `json:"salt"`
}

type revealBidResponse struct {
	Valid bool `json:"valid"`
}

func (s *Server) handleRevealBid(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req revealBidRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	bidder, err := parseAddress("bidder", req.Bidder)
	if err != nil {
		s.writeError(w, err)
		return
	}
	qty, err := parseAmount("qty", req.Qty)
	if err != nil {
		s.writeError(w, err)
		return
	}
	price, err := parseAmount("price", req.Price)
	if err != nil {
		s.writeError(w, err)
		return
	}
	salt, err := parseHash32("salt", req.Salt)
	if err != nil {
		s.writeError(w, err)
		return
	}
	valid, err := s.liq.RevealBid(bidder, id, req.VaultID, qty, price, salt)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, revealBidResponse{Valid: valid})
}

func (s *Server) handleSettle(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.liq.Settle(id); err != nil {
		s.writeError(w, err)
		return
	}
	batch, err := s.liq.GetBatch(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.batchBody(batch, liquidation.PhaseSettled))
}

// commitmentHashResponse helps integration clients build sealed bids without
// reimplementing the digest; the salt never leaves the caller otherwise.
type commitmentHashRequest struct {
	BatchID uint64 `json:"batchId"`
	VaultID uint64 `json:"vaultId"`
	Qty     string `json:"qty"`
	Price   string `json:"price"`
	Salt    string `json:"salt"`
	Bidder  string `json:"bidder"`
}

type commitmentHashResponse struct {
	Commitment string `json:"commitment"`
}

func (s *Server) handleCommitmentHash(w http.ResponseWriter, r *http.Request) {
	var req commitmentHashRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	bidder, err := parseAddress("bidder", req.Bidder)
	if err != nil {
		s.writeError(w, err)
		return
	}
	qty, err := parseAmount("qty", req.Qty)
	if err != nil {
		s.writeError(w, err)
		return
	}
	price, err := parseAmount("price", req.Price)
	if err != nil {
		s.writeError(w, err)
		return
	}
	salt, err := parseHash32("salt", req.Salt)
	if err != nil {
		s.writeError(w, err)
		return
	}
	digest := liquidation.CommitmentHash(req.BatchID, req.VaultID, qty, price, salt, bidder)
	s.writeJSON(w, http.StatusOK, commitmentHashResponse{Commitment: hex.EncodeToString(digest[:])})
}
