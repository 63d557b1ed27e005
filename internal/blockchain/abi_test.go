package blockchain

import (
	"encoding/hex"
	"math/big"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	buyer   = "0x00000000000000000000000000000000000000aa"
	spender = "0x00000000000000000000000000000000000000Bb"
)

func TestSelectorsMatchKnownERC20Values(t *testing.T) {
	assert.Equal(t, "095ea7b3", hex.EncodeToString(Selector("approve(address,uint256)")))
	assert.Equal(t, "70a08231", hex.EncodeToString(Selector("balanceOf(address)")))
	assert.Equal(t, "dd62ed3e", hex.EncodeToString(Selector("allowance(address,address)")))
	assert.Equal(t, "a9059cbb", hex.EncodeToString(Selector("transfer(address,uint256)")))
}

func TestSelectorsMatchContractABI(t *testing.T) {
	assert.Equal(t, Selector("approve(address,uint256)"), erc20ABI.Methods["approve"].ID)
	assert.Equal(t, Selector("allowance(address,address)"), erc20ABI.Methods["allowance"].ID)
	assert.Equal(t, Selector("balanceOf(address)"), erc20ABI.Methods["balanceOf"].ID)
	assert.Equal(t, Selector("mint(address,uint256,uint256,bool)"), saleABI.Methods["mint"].ID)
}

func TestEncodeApprove(t *testing.T) {
	data, err := EncodeApprove(spender, big.NewInt(8_000_000))
	require.NoError(t, err)

	raw := strings.TrimPrefix(data, "0x")
	require.Len(t, raw, 8+64*2)
	assert.Equal(t, "095ea7b3", raw[:8])
	assert.Equal(t, strings.Repeat("0", 24)+"00000000000000000000000000000000000000bb", raw[8:72])

	amount, err := DecodeUint256("0x" + raw[72:])
	require.NoError(t, err)
	assert.Equal(t, int64(8_000_000), amount.Int64())
}

func TestEncodeMint(t *testing.T) {
	data, err := EncodeMint(buyer, 7, 3, true)
	require.NoError(t, err)

	raw := strings.TrimPrefix(data, "0x")
	require.Len(t, raw, 8+64*4)
	assert.Equal(t, hex.EncodeToString(Selector("mint(address,uint256,uint256,bool)")), raw[:8])

	words := make([]string, 4)
	for i := range words {
		words[i] = raw[8+i*64 : 8+(i+1)*64]
	}
	assert.True(t, strings.HasSuffix(words[0], "aa"))
	assert.Equal(t, strings.Repeat("0", 63)+"7", words[1])
	assert.Equal(t, strings.Repeat("0", 63)+"3", words[2])
	assert.Equal(t, strings.Repeat("0", 63)+"1", words[3])

	stablecoin, err := EncodeMint(buyer, 7, 3, false)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(stablecoin, strings.Repeat("0", 64)))
}

func TestEncodeRejectsInvalidInput(t *testing.T) {
	_, err := EncodeApprove("0x1234", big.NewInt(1))
	assert.ErrorIs(t, err, ErrInvalidAddress)

	_, err = EncodeApprove(spender, big.NewInt(-1))
	assert.Error(t, err)

	_, err = EncodeApprove(spender, new(big.Int).Lsh(big.NewInt(1), 256))
	assert.Error(t, err)

	_, err = EncodeMint(buyer, 1, -1, false)
	assert.Error(t, err)

	_, err = EncodeBalanceOf("not-an-address")
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestDecodeUint256(t *testing.T) {
	value, err := DecodeUint256("0x")
	require.NoError(t, err)
	assert.Zero(t, value.Sign())

	_, err = DecodeUint256("0x1234")
	assert.Error(t, err)

	value, err = DecodeUint256("0x" + strings.Repeat("0", 62) + "ff")
	require.NoError(t, err)
	assert.Equal(t, int64(255), value.Int64())
}

func TestToMinorUnitsRoundsUp(t *testing.T) {
	cases := []struct {
		amount   string
		decimals int32
		want     string
	}{
		{"8", StablecoinDecimals, "8000000"},
		{"8.0000001", StablecoinDecimals, "8000001"},
		{"0.0000000001", StablecoinDecimals, "1"},
		{"1.5", NativeDecimals, "1500000000000000000"},
		{"0.0033666666666666666667", NativeDecimals, "3366666666666667"},
	}

	for _, tc := range cases {
		got := ToMinorUnits(decimal.RequireFromString(tc.amount), tc.decimals)
		assert.Equal(t, tc.want, got.String(), tc.amount)
	}
}

func TestToMinorUnitsExceedsTruncationOnRemainder(t *testing.T) {
	for _, s := range []string{"0.1234567", "3.00000000001", "999.9999999"} {
		amount := decimal.RequireFromString(s)
		truncated := amount.Shift(StablecoinDecimals).Truncate(0).BigInt()
		got := ToMinorUnits(amount, StablecoinDecimals)
		assert.Equal(t, 1, got.Cmp(truncated), s)
	}
}

func TestQuoToMinorUnits(t *testing.T) {
	got := QuoToMinorUnits(decimal.RequireFromString("2.02"), decimal.NewFromInt(3), NativeDecimals)
	assert.Equal(t, "673333333333333334", got.String())

	got = QuoToMinorUnits(decimal.NewFromInt(8), decimal.NewFromInt(2), StablecoinDecimals)
	assert.Equal(t, "4000000", got.String())
}

func TestFromMinorUnits(t *testing.T) {
	got := FromMinorUnits(big.NewInt(8_000_000), StablecoinDecimals)
	assert.True(t, decimal.NewFromInt(8).Equal(got))
}
