package blockchain

import (
	"math/big"

	"github.com/shopspring/decimal"
)

const (
	StablecoinDecimals int32 = 6
	NativeDecimals     int32 = 18
)

// ToMinorUnits converts a display amount to integer minor units, rounding any
// fractional remainder up so the buyer never under-pays.
func ToMinorUnits(amount decimal.Decimal, decimals int32) *big.Int {
	return amount.Shift(decimals).Ceil().BigInt()
}

// QuoToMinorUnits converts numerator/denominator to minor units without an
// intermediate rounded quotient, rounding any remainder up.
func QuoToMinorUnits(numerator, denominator decimal.Decimal, decimals int32) *big.Int {
	quotient, remainder := numerator.Shift(decimals).QuoRem(denominator, 0)
	if remainder.Sign() != 0 {
		quotient = quotient.Add(decimal.NewFromInt(1))
	}
	return quotient.BigInt()
}

func FromMinorUnits(amount *big.Int, decimals int32) decimal.Decimal {
	return decimal.NewFromBigInt(amount, -decimals)
}
