package ledger

import "fmt"

// TokenInfo holds per-asset collateral metadata, operator-supplied.
type TokenInfo struct {
	Token            string
	IsSupported      bool
	CollateralFactor int64 // Whole percent, 0-100 (haircut on valuation)
	Price            int64 // Fixed-point: price scale, protocol units per token unit
}

// TokenRegistry is the price-and-factor registry consulted by valuation
// and borrow validation. Mutated only through the privileged admin
// surface; reads are plain map lookups under the engine's single-writer
// guard.
type TokenRegistry struct {
	tokens map[string]*TokenInfo
}

func NewTokenRegistry() *TokenRegistry {
	return &TokenRegistry{tokens: make(map[string]*TokenInfo)}
}

// Get returns the registry entry for a token.
func (tr *TokenRegistry) Get(token string) (*TokenInfo, bool) {
	info, ok := tr.tokens[token]
	return info, ok
}

// IsSupported reports whether a token may be posted as collateral.
func (tr *TokenRegistry) IsSupported(token string) bool {
	info, ok := tr.tokens[token]
	return ok && info.IsSupported
}

// SetTokenInfo installs or replaces a token entry.
func (tr *TokenRegistry) SetTokenInfo(token string, supported bool, factorPct, price int64) error {
	if token == "" {
		return fmt.Errorf("token symbol must not be empty")
	}
	if factorPct < 0 || factorPct > 100 {
		return fmt.Errorf("collateral factor must be 0-100, got %d", factorPct)
	}
	if price < 0 {
		return fmt.Errorf("price must not be negative, got %d", price)
	}

	tr.tokens[token] = &TokenInfo{
		Token:            token,
		IsSupported:      supported,
		CollateralFactor: factorPct,
		Price:            price,
	}
	return nil
}

// UpdatePrice changes the operator-supplied price of a listed token.
func (tr *TokenRegistry) UpdatePrice(token string, price int64) error {
	info, ok := tr.tokens[token]
	if !ok {
		return fmt.Errorf("token %s is not listed", token)
	}
	if price < 0 {
		return fmt.Errorf("price must not be negative, got %d", price)
	}
	info.Price = price
	return nil
}

// All returns every registry entry (snapshot/restore path).
func (tr *TokenRegistry) All() []*TokenInfo {
	out := make([]*TokenInfo, 0, len(tr.tokens))
	for _, info := range tr.tokens {
		out = append(out, info)
	}
	return out
}

// Restore reinstalls an entry from a snapshot.
func (tr *TokenRegistry) Restore(info *TokenInfo) {
	tr.tokens[info.Token] = info
}
