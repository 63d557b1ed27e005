package blockchain

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"golang.org/x/crypto/sha3"
)

const erc20JSON = `[
	{"type":"function","name":"approve","stateMutability":"nonpayable",
	 "inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],
	 "outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"allowance","stateMutability":"view",
	 "inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],
	 "outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"balanceOf","stateMutability":"view",
	 "inputs":[{"name":"owner","type":"address"}],
	 "outputs":[{"name":"","type":"uint256"}]}
]`

const saleJSON = `[
	{"type":"function","name":"mint","stateMutability":"payable",
	 "inputs":[
		{"name":"to","type":"address"},
		{"name":"tokenId","type":"uint256"},
		{"name":"quantity","type":"uint256"},
		{"name":"useAlternateCurrency","type":"bool"}
	 ],
	 "outputs":[]}
]`

var ErrInvalidAddress = errors.New("blockchain: invalid address")

var (
	erc20ABI = mustParseABI(erc20JSON)
	saleABI  = mustParseABI(saleJSON)

	uint256Return = abi.Arguments{{Type: mustNewType("uint256")}}

	maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
)

func mustParseABI(definition string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(definition))
	if err != nil {
		panic(err)
	}
	return parsed
}

func mustNewType(name string) abi.Type {
	t, err := abi.NewType(name, "", nil)
	if err != nil {
		panic(err)
	}
	return t
}

// Selector is the first four bytes of the keccak256 hash of a function signature.
func Selector(signature string) []byte {
	hash := sha3.NewLegacyKeccak256()
	hash.Write([]byte(signature))
	return hash.Sum(nil)[:4]
}

// IsAddress reports whether address is a 0x-prefixed 20 byte hex string.
func IsAddress(address string) bool {
	return strings.HasPrefix(address, "0x") && common.IsHexAddress(address)
}

func toAddress(address string) (common.Address, error) {
	if !IsAddress(address) {
		return common.Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	return common.HexToAddress(address), nil
}

func toUint256(value *big.Int) (*big.Int, error) {
	if value == nil || value.Sign() < 0 || value.Cmp(maxUint256) > 0 {
		return nil, fmt.Errorf("blockchain: uint256 out of range: %v", value)
	}
	return value, nil
}

func EncodeApprove(spender string, amount *big.Int) (string, error) {
	to, err := toAddress(spender)
	if err != nil {
		return "", err
	}
	value, err := toUint256(amount)
	if err != nil {
		return "", err
	}
	return pack(erc20ABI, "approve", to, value)
}

func EncodeAllowance(owner, spender string) (string, error) {
	from, err := toAddress(owner)
	if err != nil {
		return "", err
	}
	to, err := toAddress(spender)
	if err != nil {
		return "", err
	}
	return pack(erc20ABI, "allowance", from, to)
}

func EncodeBalanceOf(owner string) (string, error) {
	address, err := toAddress(owner)
	if err != nil {
		return "", err
	}
	return pack(erc20ABI, "balanceOf", address)
}

// EncodeMint builds calldata for the sale contract; useAlternateCurrency selects
// payment in the native currency instead of the stablecoin.
func EncodeMint(buyer string, tokenID uint64, quantity int64, useAlternateCurrency bool) (string, error) {
	to, err := toAddress(buyer)
	if err != nil {
		return "", err
	}
	amount, err := toUint256(big.NewInt(quantity))
	if err != nil {
		return "", err
	}
	return pack(saleABI, "mint", to, new(big.Int).SetUint64(tokenID), amount, useAlternateCurrency)
}

func pack(contract abi.ABI, method string, args ...any) (string, error) {
	data, err := contract.Pack(method, args...)
	if err != nil {
		return "", fmt.Errorf("blockchain: encode %s: %w", method, err)
	}
	return hexutil.Encode(data), nil
}

// DecodeUint256 reads a single uint256 return value from eth_call output. Empty
// output, as returned for an address without code, decodes to zero.
func DecodeUint256(data string) (*big.Int, error) {
	raw, err := hexutil.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("blockchain: invalid return data %q: %w", data, err)
	}
	return decodeUint256(raw)
}

func decodeUint256(raw []byte) (*big.Int, error) {
	if len(raw) == 0 {
		return new(big.Int), nil
	}

	values, err := uint256Return.Unpack(raw)
	if err != nil {
		return nil, fmt.Errorf("blockchain: decode uint256: %w", err)
	}
	value, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("blockchain: decode uint256: unexpected %T", values[0])
	}
	return value, nil
}
