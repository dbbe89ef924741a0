package oracle

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"
)

var (
	// ErrUnknownAsset marks a quote request for an asset the oracle does not
	// track.
	ErrUnknownAsset = errors.New("oracle: unknown asset")
	// ErrStaleQuote marks a quote older than the configured tolerance.
	ErrStaleQuote   = errors.New("oracle: quote stale")
	errInvalidQuote = errors.New("oracle: price must be positive")
)

// Quote carries the price and decimal precision for one asset, captured
// together so a valuation can never mix the price of one observation with the
// precision of another.
type Quote struct {
	Price     *big.Int
	Decimals  uint8
	Timestamp time.Time
}

// Clone returns a deep copy of the quote to prevent accidental mutations.
func (q Quote) Clone() Quote {
	clone := Quote{Decimals: q.Decimals, Timestamp: q.Timestamp}
	if q.Price != nil {
		clone.Price = new(big.Int).Set(q.Price)
	}
	return clone
}

// PriceOracle resolves the current quote for an asset symbol. Implementations
// must return price and decimals from a single consistent observation.
type PriceOracle interface {
	Quote(symbol string) (Quote, error)
}

// Posted is a PriceOracle fed by explicitly posted quotes. It enforces an
// optional maximum quote age.
type Posted struct {
	mu     sync.RWMutex
	quotes map[string]Quote
	maxAge time.Duration
	clock  func() time.Time
}

// NewPosted constructs an empty posted-quote oracle.
func NewPosted() *Posted {
	return &Posted{
		quotes: make(map[string]Quote),
		clock:  time.Now,
	}
}

// SetMaxAge configures the staleness tolerance. Zero disables the check.
func (p *Posted) SetMaxAge(age time.Duration) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.maxAge = age
}

// SetClock overrides the time source (primarily for deterministic testing).
func (p *Posted) SetClock(clock func() time.Time) {
	if p == nil || clock == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clock = clock
}

// SetQuote records the latest observation for the symbol.
func (p *Posted) SetQuote(symbol string, price *big.Int, decimals uint8) error {
	if p == nil {
		return fmt.Errorf("oracle: not initialised")
	}
	normalized := normalizeSymbol(symbol)
	if normalized == "" {
		return fmt.Errorf("oracle: symbol required")
	}
	if price == nil || price.Sign() <= 0 {
		return errInvalidQuote
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.quotes[normalized] = Quote{
		Price:     new(big.Int).Set(price),
		Decimals:  decimals,
		Timestamp: p.clock(),
	}
	return nil
}

// Quote implements the PriceOracle interface.
func (p *Posted) Quote(symbol string) (Quote, error) {
	if p == nil {
		return Quote{}, ErrUnknownAsset
	}
	normalized := normalizeSymbol(symbol)
	p.mu.RLock()
	defer p.mu.RUnlock()
	quote, ok := p.quotes[normalized]
	if !ok {
		return Quote{}, fmt.Errorf("%w: %s", ErrUnknownAsset, normalized)
	}
	if p.maxAge > 0 && p.clock().Sub(quote.Timestamp) > p.maxAge {
		return Quote{}, fmt.Errorf("%w: %s", ErrStaleQuote, normalized)
	}
	return quote.Clone(), nil
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
