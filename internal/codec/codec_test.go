package codec

import (
	"encoding/hex"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectorsMatchWellKnownValues(t *testing.T) {
	sel := Selector("deposit()")
	assert.Equal(t, "d0e30db0", hex.EncodeToString(sel[:]))

	sel = Selector("withdraw(uint256)")
	assert.Equal(t, "2e1a7d4d", hex.EncodeToString(sel[:]))
}

func TestVaultMethodTableUsesTextualSignatures(t *testing.T) {
	want := map[string]string{
		MethodInitialize:      "initialize(address,address,address,address,address)",
		MethodDeposit:         "deposit()",
		MethodWithdraw:        "withdraw(uint256)",
		MethodGetUserInfo:     "get_user_info(address)",
		MethodGetAgentInvests: "get_agent_invests()",
		MethodRebalance:       "rebalance()",
	}

	methods := Vault.Methods()
	require.Len(t, methods, len(want))
	for _, m := range methods {
		sig, ok := want[m.Name]
		require.True(t, ok, "unexpected method %s", m.Name)
		assert.Equal(t, sig, m.Signature)
		sel := Selector(sig)
		assert.Equal(t, "0x"+hex.EncodeToString(sel[:]), m.Selector)
	}

	assert.True(t, Vault.IsPayable(MethodDeposit))
	assert.False(t, Vault.IsPayable(MethodWithdraw))
	assert.True(t, Vault.IsView(MethodGetUserInfo))
	assert.False(t, Vault.IsView(MethodRebalance))
}

func TestWithdrawEncodingIsSelectorPlusBigEndianWord(t *testing.T) {
	data, err := Vault.Pack(MethodWithdraw, big.NewInt(500))
	require.NoError(t, err)
	require.Len(t, data, SelectorLength+WordLength)

	sel := Selector("withdraw(uint256)")
	assert.Equal(t, sel[:], data[:SelectorLength])
	word := data[SelectorLength:]
	assert.Equal(t, byte(0x01), word[30])
	assert.Equal(t, byte(0xf4), word[31])

	call, err := Vault.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, MethodWithdraw, call.Name())
	amount, err := call.Uint256(0)
	require.NoError(t, err)
	assert.Equal(t, "500", amount.String())
}

func TestAddressArgumentRoundTrip(t *testing.T) {
	user := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	data := Vault.MustPack(MethodGetUserInfo, user)

	word := data[SelectorLength:]
	assert.Equal(t, user.Bytes(), word[12:])

	call, err := Vault.Decode(data)
	require.NoError(t, err)
	got, err := call.Address(0)
	require.NoError(t, err)
	assert.Equal(t, user, got)

	_, err = call.Uint256(0)
	require.ErrorIs(t, err, ErrArgumentType)
	_, err = call.Address(3)
	require.ErrorIs(t, err, ErrMalformedInput)
}

func TestDecodeRejectsMalformedInput(t *testing.T) {
	_, err := Vault.Decode([]byte{0xd0, 0xe3})
	require.ErrorIs(t, err, ErrMalformedInput)

	_, err = Vault.Decode([]byte{0xde, 0xad, 0xbe, 0xef})
	require.ErrorIs(t, err, ErrMalformedInput)
	require.ErrorIs(t, err, ErrUnknownSelector)

	short := Vault.MustPack(MethodWithdraw, big.NewInt(1))
	_, err = Vault.Decode(short[:len(short)-1])
	require.ErrorIs(t, err, ErrMalformedInput)

	long := append(Vault.MustPack(MethodDeposit), make([]byte, WordLength)...)
	_, err = Vault.Decode(long)
	require.ErrorIs(t, err, ErrMalformedInput)

	dirty := Vault.MustPack(MethodGetUserInfo, common.HexToAddress("0x01"))
	dirty[SelectorLength] = 0xff
	_, err = Vault.Decode(dirty)
	require.ErrorIs(t, err, ErrMalformedInput)
}

func TestStringOutputRoundTrip(t *testing.T) {
	out, err := Vault.PackOutput(MethodGetAgentInvests, "Total Shares: 1000, Contract ETH: 150")
	require.NoError(t, err)
	// offset word, length word, 37 bytes padded to two data words
	assert.Len(t, out, 4*WordLength)

	s, err := Vault.UnpackString(MethodGetAgentInvests, out)
	require.NoError(t, err)
	assert.Equal(t, "Total Shares: 1000, Contract ETH: 150", s)

	_, err = Vault.PackOutput("nope", "x")
	require.ErrorIs(t, err, ErrMalformedInput)
}

func TestMethodName(t *testing.T) {
	assert.Equal(t, MethodRebalance, Vault.MethodName(Vault.MustPack(MethodRebalance)))
	assert.Equal(t, MethodSwapETHForToken, Venue.MethodName(Venue.MustPack(MethodSwapETHForToken)))
	assert.Equal(t, "", Vault.MethodName([]byte{1}))
	assert.Equal(t, "", Vault.MethodName([]byte{1, 2, 3, 4}))
}
