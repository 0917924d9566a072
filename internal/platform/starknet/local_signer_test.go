package starknet

import (
	"context"
	"encoding/json"
	"math/big"
	"testing"

	"github.com/NethermindEth/starknet.go/curve"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/shuttle/internal/domain"
)

func TestNewLocalSignerRejectsBadKeys(t *testing.T) {
	for _, k := range []string{"", "0x0", "deadbeef", "0x-1", FeltHex(curveOrder)} {
		_, err := NewLocalSigner(k)
		assert.Error(t, err, k)
	}
	_, err := NewLocalSigner("0x1")
	assert.NoError(t, err)
}

func TestInvokeV1HashDependsOnEveryField(t *testing.T) {
	const chain = "0x534e5f5345504f4c4941"
	base := InvokeTxn{
		Type:          "INVOKE",
		SenderAddress: account,
		Calldata:      []string{"0x1", vault},
		MaxFee:        "0x5dc",
		Version:       invokeVersion,
		Nonce:         "0x7",
	}
	h, err := InvokeV1Hash(chain, base)
	require.NoError(t, err)

	again, err := InvokeV1Hash(chain, base)
	require.NoError(t, err)
	assert.Equal(t, 0, h.Cmp(again))

	variants := map[string]func(InvokeTxn) (string, InvokeTxn){
		"chain":    func(x InvokeTxn) (string, InvokeTxn) { return "0x534e5f4d41494e", x },
		"nonce":    func(x InvokeTxn) (string, InvokeTxn) { x.Nonce = "0x8"; return chain, x },
		"max fee":  func(x InvokeTxn) (string, InvokeTxn) { x.MaxFee = "0x5dd"; return chain, x },
		"sender":   func(x InvokeTxn) (string, InvokeTxn) { x.SenderAddress = "0x778"; return chain, x },
		"calldata": func(x InvokeTxn) (string, InvokeTxn) { x.Calldata = []string{"0x1"}; return chain, x },
	}
	for name, mutate := range variants {
		c, txn := mutate(base)
		other, err := InvokeV1Hash(c, txn)
		require.NoError(t, err, name)
		assert.NotEqual(t, 0, h.Cmp(other), name)
	}

	bad := base
	bad.Calldata = []string{"0x-1"}
	_, err = InvokeV1Hash(chain, bad)
	assert.Error(t, err)
}

func TestLocalSignerSubmitsVerifiableSignature(t *testing.T) {
	priv, pubX, _, err := curve.GetRandomKeys()
	require.NoError(t, err)
	signer, err := NewLocalSigner(FeltHex(priv))
	require.NoError(t, err)

	node, srv := newFakeNode(t)
	node.on("starknet_getNonce", func([]json.RawMessage) (any, *rpcErr) { return "0x2", nil })
	node.on("starknet_estimateFee", func([]json.RawMessage) (any, *rpcErr) {
		return []FeeEstimate{{OverallFee: "0x3e8", Unit: "WEI"}}, nil
	})
	node.on("starknet_chainId", func([]json.RawMessage) (any, *rpcErr) {
		return "0x534e5f5345504f4c4941", nil
	})
	var submitted InvokeTxn
	node.on("starknet_addInvokeTransaction", func(params []json.RawMessage) (any, *rpcErr) {
		require.NoError(t, json.Unmarshal(params[0], &submitted))
		return addInvokeResult{TransactionHash: "0xbeef"}, nil
	})

	c := newTestClient(t, srv.URL, signer)
	res, err := c.InvokeWithdraw(context.Background(), user, big.NewInt(100))
	require.NoError(t, err)
	assert.Equal(t, "0xbeef", res.TransactionHash)

	require.Len(t, submitted.Signature, 2)
	assert.Equal(t, account, submitted.SenderAddress)
	assert.Equal(t, "0x2", submitted.Nonce)

	h, err := InvokeV1Hash("0x534e5f5345504f4c4941", submitted)
	require.NoError(t, err)
	r, err := ParseFelt(submitted.Signature[0])
	require.NoError(t, err)
	s, err := ParseFelt(submitted.Signature[1])
	require.NoError(t, err)
	ok, err := curve.Verify(h, r, s, pubX)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLocalSignerWrapsHashErrors(t *testing.T) {
	signer, err := NewLocalSigner("0x1234")
	require.NoError(t, err)
	_, err = signer.SignInvoke(context.Background(), "not-a-chain", InvokeTxn{})
	assert.ErrorIs(t, err, domain.ErrSigningFailed)
}
