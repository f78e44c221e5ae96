package venue

import (
	"sync"

	"github.com/basketfi/vaultcore/internal/pkg/apperrors"
)

// Registry resolves collaborator adapters by human-readable name. Each
// integration (a money market, a DEX aggregator) registers once at
// startup; lifecycle modules look adapters up instead of binding to a
// concrete implementation.
type Registry struct {
	mu           sync.RWMutex
	moneyMarkets map[string]MoneyMarket
	tradeVenues  map[string]TradeVenue
}

func NewRegistry() *Registry {
	return &Registry{
		moneyMarkets: make(map[string]MoneyMarket),
		tradeVenues:  make(map[string]TradeVenue),
	}
}

func (r *Registry) RegisterMoneyMarket(name string, mm MoneyMarket) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.moneyMarkets[name] = mm
}

func (r *Registry) RegisterTradeVenue(name string, tv TradeVenue) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tradeVenues[name] = tv
}

func (r *Registry) MoneyMarket(name string) (MoneyMarket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	mm, ok := r.moneyMarkets[name]
	if !ok {
		return nil, apperrors.NewNotFound("money market %q is not registered", name)
	}
	return mm, nil
}

func (r *Registry) TradeVenue(name string) (TradeVenue, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tv, ok := r.tradeVenues[name]
	if !ok {
		return nil, apperrors.NewNotFound("trade venue %q is not registered", name)
	}
	return tv, nil
}
