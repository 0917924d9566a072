package pricing

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/shuttle/internal/domain"
)

// Token describes a BTC representation the vault accepts.
type Token struct {
	Symbol   string
	Decimals int32
	// PriceID is the price feed identifier used for USD conversion.
	PriceID string
}

var tokens = map[string]Token{
	"WBTC": {Symbol: "WBTC", Decimals: 8, PriceID: "bitcoin"},
	"TBTC": {Symbol: "TBTC", Decimals: 18, PriceID: "tbtc"},
	"LBTC": {Symbol: "LBTC", Decimals: 8, PriceID: "lombard-staked-btc"},
}

// LookupToken resolves symbol case-insensitively. An empty symbol resolves to
// fallback.
func LookupToken(symbol, fallback string) (Token, error) {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if s == "" {
		s = strings.ToUpper(fallback)
	}
	t, ok := tokens[s]
	if !ok {
		return Token{}, fmt.Errorf("pricing: token %q: %w", symbol, domain.ErrUnsupportedToken)
	}
	return t, nil
}

// ToBaseUnits converts a human amount into the token's integer base units,
// truncating anything below one unit.
func (t Token) ToBaseUnits(amount float64) *big.Int {
	return decimal.NewFromFloat(amount).Shift(t.Decimals).Truncate(0).BigInt()
}

// FromBaseUnits converts integer base units back into a human amount.
func (t Token) FromBaseUnits(units *big.Int) float64 {
	if units == nil {
		return 0
	}
	f, _ := decimal.NewFromBigInt(units, -t.Decimals).Float64()
	return f
}
