package handler

import (
	"net/http"
	"strconv"

	"github.com/alanyoungcy/memebot/internal/domain"
)

// PortfolioSource returns the current portfolio snapshot.
type PortfolioSource interface {
	Snapshot() domain.PortfolioView
}

// PortfolioHandler serves GET /portfolio.
type PortfolioHandler struct {
	src PortfolioSource
}

// NewPortfolioHandler creates a PortfolioHandler.
func NewPortfolioHandler(src PortfolioSource) *PortfolioHandler {
	return &PortfolioHandler{src: src}
}

// GetPortfolio writes the snapshot with per-position unrealized PnL.
// ?closed=false omits the closed history.
// GET /portfolio
func (h *PortfolioHandler) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	view := h.src.Snapshot()

	if v := r.URL.Query().Get("closed"); v != "" {
		include, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "closed must be a boolean")
			return
		}
		if !include {
			view.Closed = []domain.Position{}
		}
	}
	writeJSON(w, http.StatusOK, view)
}
