package service

import (
	"context"
	"math/big"
	"strings"
	"sync"
	"time"
)

// TxGuard stops one user transaction from releasing BTC twice. A hash is
// claimed before the bridge leg runs and released again if the leg fails.
// It is safe for concurrent use.
type TxGuard struct {
	seen map[string]time.Time // normalized hash -> claim time
	ttl  time.Duration
	now  func() time.Time
	mu   sync.Mutex
}

// NewTxGuard creates a TxGuard that remembers claims for ttl.
func NewTxGuard(ttl time.Duration) *TxGuard {
	return &TxGuard{
		seen: make(map[string]time.Time),
		ttl:  ttl,
		now:  time.Now,
	}
}

// Claim records hash and reports true, or reports false if it was already
// claimed within the TTL window.
func (g *TxGuard) Claim(hash string) bool {
	key := normalizeTxHash(hash)

	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if at, ok := g.seen[key]; ok && now.Sub(at) < g.ttl {
		return false
	}
	g.seen[key] = now
	return true
}

// Release forgets hash so it can be submitted again.
func (g *TxGuard) Release(hash string) {
	key := normalizeTxHash(hash)

	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.seen, key)
}

// Cleanup removes claims older than the TTL.
func (g *TxGuard) Cleanup() {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	for k, at := range g.seen {
		if now.Sub(at) >= g.ttl {
			delete(g.seen, k)
		}
	}
}

// Run calls Cleanup every interval until ctx is done.
func (g *TxGuard) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			g.Cleanup()
		}
	}
}

// normalizeTxHash maps hex spellings of the same felt to one key. Anything
// that is not plain hex digits is kept verbatim so it cannot alias a real hash.
func normalizeTxHash(hash string) string {
	h := strings.ToLower(strings.TrimSpace(hash))
	digits := strings.TrimPrefix(h, "0x")
	if digits == "" || strings.Trim(digits, "0123456789abcdef") != "" {
		return h
	}
	n, _ := new(big.Int).SetString(digits, 16)
	return "0x" + n.Text(16)
}
