package starknet

import (
	"context"
	"fmt"
	"math/big"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/starknet.go/curve"

	"github.com/alanyoungcy/shuttle/internal/domain"
)

// invokePrefix is the ASCII felt "invoke" that opens every invoke hash.
var invokePrefix = new(big.Int).SetBytes([]byte("invoke"))

// curveOrder is the order of the Stark curve generator.
var curveOrder, _ = new(big.Int).SetString("800000000000010ffffffffffffffffb781126dcae7b2321e66a241adc64d2f", 16)

// LocalSigner signs owner invocations in process with the account's Stark
// private key.
type LocalSigner struct {
	key *big.Int
}

var _ Signer = (*LocalSigner)(nil)

// NewLocalSigner parses a 0x-prefixed Stark private key.
func NewLocalSigner(privateKey string) (*LocalSigner, error) {
	k, err := ParseFelt(privateKey)
	if err != nil {
		return nil, fmt.Errorf("starknet: private key: %w", err)
	}
	if k.Sign() == 0 || k.Cmp(curveOrder) >= 0 {
		return nil, fmt.Errorf("starknet: private key out of range")
	}
	return &LocalSigner{key: k}, nil
}

// SignInvoke hashes txn for chainID and returns the [r, s] signature felts.
func (s *LocalSigner) SignInvoke(_ context.Context, chainID string, txn InvokeTxn) ([]string, error) {
	h, err := InvokeV1Hash(chainID, txn)
	if err != nil {
		return nil, fmt.Errorf("starknet: sign: %w: %v", domain.ErrSigningFailed, err)
	}
	r, sig, err := curve.Sign(h, s.key)
	if err != nil {
		return nil, fmt.Errorf("starknet: sign: %w: %v", domain.ErrSigningFailed, err)
	}
	return []string{FeltHex(r), FeltHex(sig)}, nil
}

// InvokeV1Hash computes the transaction hash of a version 1 invoke:
// pedersen over (prefix, version, sender, 0, pedersen(calldata), max_fee,
// chain_id, nonce).
func InvokeV1Hash(chainID string, txn InvokeTxn) (*big.Int, error) {
	calldata := make([]*big.Int, len(txn.Calldata))
	for i, c := range txn.Calldata {
		v, err := ParseFelt(c)
		if err != nil {
			return nil, fmt.Errorf("calldata[%d]: %w", i, err)
		}
		calldata[i] = v
	}

	fields := []struct {
		name, value string
	}{
		{"version", txn.Version},
		{"sender_address", txn.SenderAddress},
		{"max_fee", txn.MaxFee},
		{"chain_id", chainID},
		{"nonce", txn.Nonce},
	}
	vals := make(map[string]*big.Int, len(fields))
	for _, f := range fields {
		v, err := ParseFelt(f.value)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.name, err)
		}
		vals[f.name] = v
	}

	h := pedersenArray(
		invokePrefix,
		vals["version"],
		vals["sender_address"],
		big.NewInt(0),
		pedersenArray(calldata...),
		vals["max_fee"],
		vals["chain_id"],
		vals["nonce"],
	)
	return h, nil
}

func pedersenArray(vs ...*big.Int) *big.Int {
	felts := make([]*felt.Felt, len(vs))
	for i, v := range vs {
		felts[i] = new(felt.Felt).SetBigInt(v)
	}
	return curve.PedersenArray(felts...).BigInt(new(big.Int))
}
