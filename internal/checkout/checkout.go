package checkout

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"minter/internal/blockchain"

	"github.com/shopspring/decimal"
)

const (
	MinQuantity int64 = 1
	MaxQuantity int64 = 1000
)

var (
	ErrInvalidQuantity      = fmt.Errorf("checkout: quantity must be between %d and %d", MinQuantity, MaxQuantity)
	ErrInvalidPaymentMethod = errors.New("checkout: unknown payment method")
	ErrInvalidRate          = errors.New("checkout: no usable native currency rate")
	ErrInvalidTransition    = errors.New("checkout: invalid state transition")
	ErrInsufficientBalance  = errors.New("checkout: insufficient balance")
	ErrInFlight             = errors.New("checkout: a transaction is already in flight")
	ErrSessionNotFound      = errors.New("checkout: session not found")
	ErrSessionClosed        = errors.New("checkout: session closed")
	ErrSaleNotOpen          = errors.New("checkout: sale has not launched yet")
	ErrTransactionFailed    = errors.New("checkout: transaction failed")
	ErrOutcomeUnknown       = errors.New("checkout: transaction outcome unknown")
)

// nativeMarkup absorbs price drift between quote and execution.
var nativeMarkup = decimal.RequireFromString("1.01")

type PaymentMethod string

const (
	Stablecoin PaymentMethod = "stablecoin"
	Native     PaymentMethod = "native"
)

func ParsePaymentMethod(value string) (PaymentMethod, error) {
	switch method := PaymentMethod(value); method {
	case Stablecoin, Native:
		return method, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidPaymentMethod, value)
}

func (m PaymentMethod) currency() string {
	if m == Native {
		return "ETH"
	}
	return "USDC"
}

func (m PaymentMethod) decimals() int32 {
	if m == Native {
		return blockchain.NativeDecimals
	}
	return blockchain.StablecoinDecimals
}

type PriceFeed interface {
	NativeUSDRate(ctx context.Context) (decimal.Decimal, error)
}

// MintRequest is what the buyer is about to mint. UnitPriceUSD is fixed when the
// checkout opens, Rate (USD per native unit) follows the live feed.
type MintRequest struct {
	Buyer        string          `json:"buyer"`
	FID          int64           `json:"fid"`
	SongID       uint            `json:"songId"`
	TokenID      uint64          `json:"tokenId"`
	Quantity     int64           `json:"quantity"`
	Method       PaymentMethod   `json:"paymentMethod"`
	UnitPriceUSD decimal.Decimal `json:"unitPriceUsd"`
	Rate         decimal.Decimal `json:"rate"`
}

type Quote struct {
	DisplayAmount   decimal.Decimal `json:"displayAmount"`
	DisplayCurrency string          `json:"displayCurrency"`
	USDEquivalent   decimal.Decimal `json:"usdEquivalent"`

	minor *big.Int
}

// MinorUnits is the on-chain amount of the quote, rounded up from the exact
// total rather than from the display amount.
func (q Quote) MinorUnits() *big.Int {
	if q.minor == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(q.minor)
}

func ValidateQuantity(quantity int64) error {
	if quantity < MinQuantity || quantity > MaxQuantity {
		return ErrInvalidQuantity
	}
	return nil
}

// Quote prices quantity units paid with method. It does not modify r.
func (r MintRequest) Quote(quantity int64, method PaymentMethod) (Quote, error) {
	if err := ValidateQuantity(quantity); err != nil {
		return Quote{}, err
	}

	usd := r.UnitPriceUSD.Mul(decimal.NewFromInt(quantity))

	switch method {
	case Stablecoin:
		return Quote{
			DisplayAmount:   usd,
			DisplayCurrency: method.currency(),
			USDEquivalent:   usd,
			minor:           blockchain.ToMinorUnits(usd, method.decimals()),
		}, nil
	case Native:
		if !r.Rate.IsPositive() {
			return Quote{}, ErrInvalidRate
		}
		total := usd.Mul(nativeMarkup)
		return Quote{
			DisplayAmount:   total.Div(r.Rate),
			DisplayCurrency: method.currency(),
			USDEquivalent:   usd,
			minor:           blockchain.QuoToMinorUnits(total, r.Rate, method.decimals()),
		}, nil
	}
	return Quote{}, fmt.Errorf("%w: %q", ErrInvalidPaymentMethod, method)
}
