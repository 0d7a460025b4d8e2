/*

This file implements the call encoding shared by the vault, its venues and every client:
a 4-byte selector (keccak256 of the textual signature) followed by 32-byte big-endian
argument words, with string results in standard ABI layout.

*/

package codec

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/elys-network/hedgefund/internal/utils"
)

const (
	// SelectorLength is the size of the function selector prefix.
	SelectorLength = 4
	// WordLength is the size of one encoded argument.
	WordLength = 32
)

// Error definitions for zero-tolerance error handling
var (
	ErrMalformedInput  = errors.New("malformed input")
	ErrUnknownSelector = errors.New("unknown function selector")
	ErrArgumentType    = errors.New("argument has unexpected type")
)

// VaultABI describes the vault boundary consumed by clients.
const VaultABI = `[
	{"type":"function","name":"initialize","stateMutability":"nonpayable","inputs":[
		{"name":"swapPrimary","type":"address"},
		{"name":"swapSecondary","type":"address"},
		{"name":"lending","type":"address"},
		{"name":"tokenA","type":"address"},
		{"name":"tokenB","type":"address"}],"outputs":[]},
	{"type":"function","name":"deposit","stateMutability":"payable","inputs":[],"outputs":[]},
	{"type":"function","name":"withdraw","stateMutability":"nonpayable","inputs":[{"name":"shareAmount","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"get_user_info","stateMutability":"view","inputs":[{"name":"user","type":"address"}],"outputs":[{"name":"","type":"string"}]},
	{"type":"function","name":"get_agent_invests","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
	{"type":"function","name":"rebalance","stateMutability":"nonpayable","inputs":[],"outputs":[]}
]`

// VenueABI describes the swap and lending venue capabilities the vault calls into.
const VenueABI = `[
	{"type":"function","name":"swapETHForToken","stateMutability":"payable","inputs":[],"outputs":[]},
	{"type":"function","name":"deposit","stateMutability":"payable","inputs":[],"outputs":[]},
	{"type":"function","name":"withdraw","stateMutability":"nonpayable","inputs":[{"name":"amount","type":"uint256"}],"outputs":[]}
]`

// Method names used across packages.
const (
	MethodInitialize      = "initialize"
	MethodDeposit         = "deposit"
	MethodWithdraw        = "withdraw"
	MethodGetUserInfo     = "get_user_info"
	MethodGetAgentInvests = "get_agent_invests"
	MethodRebalance       = "rebalance"
	MethodSwapETHForToken = "swapETHForToken"
)

var (
	// Vault is the codec for the vault boundary.
	Vault = MustParse(VaultABI)
	// Venue is the codec for venue calls.
	Venue = MustParse(VenueABI)
)

// Codec packs and unpacks calls for one contract interface.
type Codec struct {
	abi abi.ABI
}

// Parse builds a codec from an ABI JSON document.
func Parse(abiJSON string) (*Codec, error) {
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ABI: %w", err)
	}
	return &Codec{abi: parsed}, nil
}

// MustParse is Parse for package-level ABI constants.
func MustParse(abiJSON string) *Codec {
	c, err := Parse(abiJSON)
	if err != nil {
		panic(err)
	}
	return c
}

// Selector returns keccak256(signature)[:4].
func Selector(signature string) [SelectorLength]byte {
	var sel [SelectorLength]byte
	copy(sel[:], crypto.Keccak256([]byte(signature))[:SelectorLength])
	return sel
}

// Call is a decoded invocation.
type Call struct {
	Method *abi.Method
	Args   []interface{}
}

// Name returns the method name.
func (c *Call) Name() string {
	return c.Method.RawName
}

// Address returns argument i as an address.
func (c *Call) Address(i int) (common.Address, error) {
	if i < 0 || i >= len(c.Args) {
		return common.Address{}, fmt.Errorf("%w: no argument %d for %s", ErrMalformedInput, i, c.Method.Sig)
	}
	addr, ok := c.Args[i].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("%w: argument %d of %s is %T", ErrArgumentType, i, c.Method.Sig, c.Args[i])
	}
	return addr, nil
}

// Uint256 returns argument i as an SDK Int.
func (c *Call) Uint256(i int) (sdkmath.Int, error) {
	if i < 0 || i >= len(c.Args) {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: no argument %d for %s", ErrMalformedInput, i, c.Method.Sig)
	}
	v, ok := c.Args[i].(*big.Int)
	if !ok {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: argument %d of %s is %T", ErrArgumentType, i, c.Method.Sig, c.Args[i])
	}
	out, err := utils.BigToInt(v)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: argument %d of %s: %w", ErrMalformedInput, i, c.Method.Sig, err)
	}
	return out, nil
}

// Pack encodes a call to method with args.
func (c *Codec) Pack(method string, args ...interface{}) ([]byte, error) {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}
	return data, nil
}

// MustPack is Pack for argument lists known to be valid.
func (c *Codec) MustPack(method string, args ...interface{}) []byte {
	data, err := c.Pack(method, args...)
	if err != nil {
		panic(err)
	}
	return data
}

// Decode resolves the selector and unpacks the argument words. Inputs must be exactly as long
// as the method's static arguments and address words must have zero upper bytes.
func (c *Codec) Decode(data []byte) (*Call, error) {
	if len(data) < SelectorLength {
		return nil, fmt.Errorf("%w: call data is %d bytes, need at least %d", ErrMalformedInput, len(data), SelectorLength)
	}
	method, err := c.abi.MethodById(data[:SelectorLength])
	if err != nil {
		return nil, fmt.Errorf("%w: %w: 0x%s", ErrMalformedInput, ErrUnknownSelector, hex.EncodeToString(data[:SelectorLength]))
	}

	payload := data[SelectorLength:]
	if want := WordLength * len(method.Inputs); len(payload) != want {
		return nil, fmt.Errorf("%w: %s expects %d argument bytes, got %d", ErrMalformedInput, method.Sig, want, len(payload))
	}
	for i, input := range method.Inputs {
		word := payload[i*WordLength : (i+1)*WordLength]
		if input.Type.T == abi.AddressTy && !bytes.Equal(word[:WordLength-common.AddressLength], make([]byte, WordLength-common.AddressLength)) {
			return nil, fmt.Errorf("%w: argument %q of %s is not a clean address word", ErrMalformedInput, input.Name, method.Sig)
		}
	}

	args, err := method.Inputs.Unpack(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformedInput, method.Sig, err)
	}
	return &Call{Method: method, Args: args}, nil
}

// MethodName returns the method addressed by data, or "" when it cannot be resolved.
func (c *Codec) MethodName(data []byte) string {
	if len(data) < SelectorLength {
		return ""
	}
	method, err := c.abi.MethodById(data[:SelectorLength])
	if err != nil {
		return ""
	}
	return method.RawName
}

// PackOutput encodes the return values of method.
func (c *Codec) PackOutput(method string, values ...interface{}) ([]byte, error) {
	m, ok := c.abi.Methods[method]
	if !ok {
		return nil, fmt.Errorf("%w: no method %q", ErrMalformedInput, method)
	}
	out, err := m.Outputs.Pack(values...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack output of %s: %w", method, err)
	}
	return out, nil
}

// UnpackString decodes a single string return value of method.
func (c *Codec) UnpackString(method string, data []byte) (string, error) {
	values, err := c.abi.Unpack(method, data)
	if err != nil {
		return "", fmt.Errorf("%w: %s output: %w", ErrMalformedInput, method, err)
	}
	if len(values) != 1 {
		return "", fmt.Errorf("%w: %s returned %d values", ErrMalformedInput, method, len(values))
	}
	s, ok := values[0].(string)
	if !ok {
		return "", fmt.Errorf("%w: %s returned %T", ErrArgumentType, method, values[0])
	}
	return s, nil
}

// IsPayable reports whether method accepts value.
func (c *Codec) IsPayable(method string) bool {
	m, ok := c.abi.Methods[method]
	return ok && m.IsPayable()
}

// IsView reports whether method is read-only.
func (c *Codec) IsView(method string) bool {
	m, ok := c.abi.Methods[method]
	return ok && m.IsConstant()
}

// MethodInfo describes one entry of the interface.
type MethodInfo struct {
	Name      string `json:"name"`
	Signature string `json:"signature"`
	Selector  string `json:"selector"`
	Payable   bool   `json:"payable"`
	View      bool   `json:"view"`
}

// Methods lists the interface sorted by name.
func (c *Codec) Methods() []MethodInfo {
	out := make([]MethodInfo, 0, len(c.abi.Methods))
	for _, m := range c.abi.Methods {
		out = append(out, MethodInfo{
			Name:      m.RawName,
			Signature: m.Sig,
			Selector:  "0x" + hex.EncodeToString(m.ID),
			Payable:   m.IsPayable(),
			View:      m.IsConstant(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
