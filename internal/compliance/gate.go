// Package compliance implements the preflight eligibility gate that runs
// before any quote or fund movement.
package compliance

import (
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"

	"github.com/alanyoungcy/shuttle/internal/domain"
)

// Config is the static policy applied by the Gate.
type Config struct {
	AllowedCountries []string
	Denylist         []string
	Allowlist        []string
	ValidateAddrs    bool
	BTCNetwork       string
}

// Gate evaluates preflight requests. It holds no mutable state and is safe
// for concurrent use.
type Gate struct {
	countries map[string]struct{}
	deny      map[string]struct{}
	allow     map[string]struct{}
	validate  bool
	params    *chaincfg.Params
	logger    *slog.Logger
}

// NewGate builds a Gate from cfg. Country codes are compared upper-cased and
// list entries are compared exactly after trimming.
func NewGate(cfg Config, logger *slog.Logger) *Gate {
	g := &Gate{
		countries: toSet(cfg.AllowedCountries, strings.ToUpper),
		deny:      toSet(cfg.Denylist, nil),
		allow:     toSet(cfg.Allowlist, nil),
		validate:  cfg.ValidateAddrs,
		params:    NetworkParams(cfg.BTCNetwork),
		logger:    logger.With(slog.String("component", "compliance")),
	}
	return g
}

// Check runs the preflight checks in order and stops at the first failure.
// An unexpected panic is converted into a SERVER_ERROR denial.
func (g *Gate) Check(req domain.PreflightRequest) (decision domain.PreflightDecision) {
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("preflight check panicked", slog.Any("panic", r))
			decision = domain.Deny(domain.ReasonServerError)
		}
	}()

	if !req.TermsAccepted {
		return domain.Deny(domain.ReasonTOSNotAccepted)
	}

	if len(g.countries) > 0 {
		if _, ok := g.countries[strings.ToUpper(strings.TrimSpace(req.CountryCode))]; !ok {
			return domain.Deny(domain.ReasonGeofence)
		}
	}

	btcAddr := strings.TrimSpace(req.BTCAddress)
	snAddr := strings.TrimSpace(req.StarknetAddress)
	if btcAddr == "" || snAddr == "" {
		return domain.Deny(domain.ReasonMissingAddresses)
	}

	if g.validate {
		if err := ValidateBTCAddress(btcAddr, g.params); err != nil {
			return domain.Deny(domain.ReasonInvalidBTCAddress)
		}
		if err := ValidateStarknetAddress(snAddr); err != nil {
			return domain.Deny(domain.ReasonInvalidStarknetAddress)
		}
	}

	if g.listed(g.deny, btcAddr, snAddr) {
		return domain.Deny(domain.ReasonKYCDenylist)
	}
	if len(g.allow) > 0 && !g.listed(g.allow, btcAddr, snAddr) {
		return domain.Deny(domain.ReasonKYCNotAllowlisted)
	}

	return domain.Allow()
}

// listed reports whether either address is in set.
func (g *Gate) listed(set map[string]struct{}, addrs ...string) bool {
	for _, a := range addrs {
		if _, ok := set[a]; ok {
			return true
		}
	}
	return false
}

// StatusCode maps a denial reason to its HTTP status.
func StatusCode(d domain.PreflightDecision) int {
	if d.Allowed {
		return 200
	}
	switch d.Reason {
	case domain.ReasonGeofence, domain.ReasonKYCDenylist, domain.ReasonKYCNotAllowlisted:
		return 403
	case domain.ReasonServerError:
		return 500
	default:
		return 400
	}
}

// NetworkParams resolves a network name to its chain parameters. Unknown
// names fall back to mainnet.
func NetworkParams(network string) *chaincfg.Params {
	switch strings.ToLower(network) {
	case "testnet", "testnet3":
		return &chaincfg.TestNet3Params
	case "signet":
		return &chaincfg.SigNetParams
	case "regtest":
		return &chaincfg.RegressionNetParams
	default:
		return &chaincfg.MainNetParams
	}
}

// ValidateBTCAddress checks that addr decodes and belongs to params' network.
func ValidateBTCAddress(addr string, params *chaincfg.Params) error {
	decoded, err := btcutil.DecodeAddress(addr, params)
	if err != nil {
		return fmt.Errorf("compliance: decode btc address: %w", err)
	}
	if !decoded.IsForNet(params) {
		return fmt.Errorf("compliance: btc address is not for %s", params.Name)
	}
	return nil
}

// feltPrime is the Starknet field modulus 2^251 + 17*2^192 + 1.
var feltPrime = func() *big.Int {
	p := new(big.Int).Lsh(big.NewInt(1), 251)
	p.Add(p, new(big.Int).Lsh(big.NewInt(17), 192))
	return p.Add(p, big.NewInt(1))
}()

// ValidateStarknetAddress checks that addr is 0x-prefixed hex of at most 64
// digits whose value is a non-zero field element.
func ValidateStarknetAddress(addr string) error {
	if !strings.HasPrefix(addr, "0x") && !strings.HasPrefix(addr, "0X") {
		return fmt.Errorf("compliance: starknet address must be 0x-prefixed")
	}
	digits := addr[2:]
	if len(digits) == 0 || len(digits) > 64 {
		return fmt.Errorf("compliance: starknet address has %d hex digits", len(digits))
	}
	v, ok := new(big.Int).SetString(digits, 16)
	if !ok {
		return fmt.Errorf("compliance: starknet address is not hex")
	}
	if v.Sign() == 0 || v.Cmp(feltPrime) >= 0 {
		return fmt.Errorf("compliance: starknet address out of field range")
	}
	return nil
}

func toSet(items []string, norm func(string) string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, it := range items {
		it = strings.TrimSpace(it)
		if it == "" {
			continue
		}
		if norm != nil {
			it = norm(it)
		}
		set[it] = struct{}{}
	}
	return set
}
