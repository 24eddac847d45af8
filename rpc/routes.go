package rpc

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"rollupmock/core/tx"
	"rollupmock/rpc/middleware"
)

// handleDonate credits the faucet amount to the address, simulating a deposit.
func (s *Server) handleDonate(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	balance, err := s.processor.Credit(address, s.faucet)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, tx.ErrInvalidRequest) {
			status = http.StatusBadRequest
		}
		http.Error(w, err.Error(), status)
		return
	}
	s.logger.Info("donation credited",
		slog.String("request_id", middleware.RequestIDFrom(r.Context())),
		slog.String("address", address),
		slog.String("balance", balance.String()))
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(DonateReceipt))
}

// handleTransfer returns the stored transfer record, or null on a miss. The id
// may arrive percent-encoded, e.g. sync-tx%3A...
func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	id, err := url.PathUnescape(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "malformed transfer id", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, s.query.TransferRecord(id))
}
