package http

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"brokerlink/internal/domain/refdata"
	"brokerlink/internal/infrastructure/provider"
)

// InstrumentLookup reads reference data from the cache.
type InstrumentLookup interface {
	Lookup(symbol string) (*provider.Instrument, error)
}

// InstrumentHandler serves cached reference data. It never calls a provider.
type InstrumentHandler struct {
	lookup InstrumentLookup
	logger *slog.Logger
}

func NewInstrumentHandler(lookup InstrumentLookup, logger *slog.Logger) *InstrumentHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &InstrumentHandler{lookup: lookup, logger: logger}
}

type InstrumentResponse struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Price    string `json:"price"`
	Currency string `json:"currency"`
	AsOf     string `json:"asOf"`
}

// HandleGetInstrument returns one cached instrument.
func (h *InstrumentHandler) HandleGetInstrument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	inst, err := h.lookup.Lookup(r.PathValue("symbol"))
	switch {
	case errors.Is(err, refdata.ErrInvalidSymbol):
		http.Error(w, "Symbol is required", http.StatusBadRequest)
		return
	case errors.Is(err, refdata.ErrNotCached):
		http.Error(w, "Instrument not found", http.StatusNotFound)
		return
	case err != nil:
		h.logger.ErrorContext(r.Context(), "instrument lookup failed", "error", err)
		http.Error(w, "Failed to look up instrument", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, InstrumentResponse{
		Symbol:   inst.Symbol,
		Name:     inst.Name,
		Price:    inst.Price.String(),
		Currency: inst.Currency,
		AsOf:     inst.AsOf.UTC().Format(time.RFC3339),
	})
}
