package starknet

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// selectorMask keeps the low 250 bits of a keccak digest.
var selectorMask = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 250), big.NewInt(1))

// fieldPrime is the Stark field modulus 2^251 + 17*2^192 + 1. Every felt is
// strictly below it.
var fieldPrime = func() *big.Int {
	p := new(big.Int).Lsh(big.NewInt(1), 251)
	p.Add(p, new(big.Int).Lsh(big.NewInt(17), 192))
	return p.Add(p, big.NewInt(1))
}()

// Selector returns the entry point selector for a function name: keccak256
// of the ASCII name truncated to 250 bits.
func Selector(name string) *big.Int {
	v := new(big.Int).SetBytes(ethcrypto.Keccak256([]byte(name)))
	return v.And(v, selectorMask)
}

// FeltHex renders v as minimal 0x-prefixed lowercase hex.
func FeltHex(v *big.Int) string {
	if v == nil {
		return "0x0"
	}
	return hexutil.EncodeBig(v)
}

// ParseFelt parses a 0x-prefixed hex felt. Leading zeros are accepted since
// wallets commonly pad addresses to 64 digits.
func ParseFelt(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return nil, fmt.Errorf("starknet: felt %q is not 0x-prefixed", s)
	}
	digits := s[2:]
	if digits == "" {
		return nil, fmt.Errorf("starknet: empty felt")
	}
	if !isHexDigits(digits) {
		return nil, fmt.Errorf("starknet: felt %q is not hex", s)
	}
	v, _ := new(big.Int).SetString(digits, 16)
	if v.Cmp(fieldPrime) >= 0 {
		return nil, fmt.Errorf("starknet: felt %q exceeds the field", s)
	}
	return v, nil
}

func isHexDigits(s string) bool {
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

// SameAddress compares two addresses by value, ignoring padding and case.
func SameAddress(a, b string) bool {
	x, err := ParseFelt(a)
	if err != nil {
		return false
	}
	y, err := ParseFelt(b)
	if err != nil {
		return false
	}
	return x.Cmp(y) == 0
}

// decodeUint reads an unsigned integer return value. A single felt is a u128
// or felt; two felts are the low and high halves of a u256.
func decodeUint(out []string) (*big.Int, error) {
	switch len(out) {
	case 1:
		return ParseFelt(out[0])
	case 2:
		low, err := ParseFelt(out[0])
		if err != nil {
			return nil, err
		}
		high, err := ParseFelt(out[1])
		if err != nil {
			return nil, err
		}
		return high.Lsh(high, 128).Add(high, low), nil
	default:
		return nil, fmt.Errorf("starknet: unexpected return length %d", len(out))
	}
}

// executeCalldata encodes a single call for an account's __execute__
// entrypoint: [num_calls, to, selector, calldata_len, ...calldata].
func executeCalldata(to string, selector *big.Int, args []string) []string {
	out := make([]string, 0, 4+len(args))
	out = append(out,
		FeltHex(big.NewInt(1)),
		to,
		FeltHex(selector),
		FeltHex(big.NewInt(int64(len(args)))),
	)
	return append(out, args...)
}
