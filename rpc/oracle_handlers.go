package rpc

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

type priceResponse struct {
	Asset     string    `json:"asset"`
	PriceWad  string    `json:"priceWad"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (s *Server) handleGetPrice(w http.ResponseWriter, r *http.Request) {
	asset := chi.URLParam(r, "asset")
	price, updatedAt, err := s.feed.GetPrice(asset)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, priceResponse{
		Asset:     asset,
		PriceWad:  bigString(price),
		UpdatedAt: updatedAt,
	})
}

type submitQuoteRequest struct {
	Asset    string `json:"asset"`
	PriceWad string `json:"priceWad"`
}

func (s *Server) handleSubmitQuote(w http.ResponseWriter, r *http.Request) {
	var req submitQuoteRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	price, err := parseAmount("priceWad", req.PriceWad)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.feed.SetPrice(req.Asset, price); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, nil)
}
