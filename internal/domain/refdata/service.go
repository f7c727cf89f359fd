// Package refdata keeps a small set of instrument lookups warm.
package refdata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"brokerlink/internal/infrastructure/provider"
)

var (
	ErrNotCached     = errors.New("instrument is not cached")
	ErrInvalidSymbol = errors.New("symbol is required")
)

// InstrumentSource fetches reference data from a provider.
type InstrumentSource interface {
	GetInstrument(ctx context.Context, symbol string) (*provider.Instrument, error)
}

// Cache stores instruments until they expire.
type Cache interface {
	Get(symbol string) (provider.Instrument, bool)
	Set(symbol string, inst provider.Instrument)
	Len() int
}

// Result summarizes one cache refresh.
type Result struct {
	Refreshed int
	Failed    map[string]error
}

// Service refreshes a fixed symbol list into the cache and serves reads from it.
// Reads never call the provider.
type Service struct {
	source  InstrumentSource
	cache   Cache
	symbols []string
	logger  *slog.Logger
}

// NewService creates a new reference-data service.
func NewService(source InstrumentSource, cache Cache, symbols []string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	seen := make(map[string]bool, len(symbols))
	normalized := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = normalize(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		normalized = append(normalized, s)
	}
	return &Service{
		source:  source,
		cache:   cache,
		symbols: normalized,
		logger:  logger.With("component", "refdata"),
	}
}

// Symbols returns the configured symbol list.
func (s *Service) Symbols() []string {
	return append([]string(nil), s.symbols...)
}

// Refresh fetches every configured symbol. A failed symbol keeps its
// previous entry until it expires.
func (s *Service) Refresh(ctx context.Context) (*Result, error) {
	res := &Result{Failed: make(map[string]error)}

	for _, sym := range s.symbols {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		inst, err := s.source.GetInstrument(ctx, sym)
		if err != nil {
			res.Failed[sym] = err
			s.logger.WarnContext(ctx, "instrument refresh failed", "symbol", sym, "error", err)
			continue
		}
		s.cache.Set(sym, *inst)
		res.Refreshed++
	}

	s.logger.InfoContext(ctx, "reference data refreshed",
		"refreshed", res.Refreshed,
		"failed", len(res.Failed),
		"cached", s.cache.Len(),
	)

	if res.Refreshed == 0 && len(res.Failed) > 0 {
		return res, fmt.Errorf("all %d instrument lookups failed", len(res.Failed))
	}
	return res, nil
}

// Lookup returns a cached instrument.
func (s *Service) Lookup(symbol string) (*provider.Instrument, error) {
	symbol = normalize(symbol)
	if symbol == "" {
		return nil, ErrInvalidSymbol
	}
	inst, ok := s.cache.Get(symbol)
	if !ok {
		return nil, ErrNotCached
	}
	return &inst, nil
}

func normalize(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
