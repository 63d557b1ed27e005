package blockchain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
)

var (
	// ErrUserRejected is returned when the buyer declines a request in the wallet.
	ErrUserRejected = errors.New("blockchain: user rejected the request")
	// ErrCapabilityUnsupported is returned when the wallet cannot bundle calls.
	ErrCapabilityUnsupported = errors.New("blockchain: wallet capability unsupported")
)

type Call struct {
	To    string
	Data  string
	Value *big.Int
}

type Receipt struct {
	TxHash      string
	Success     bool
	BlockNumber uint64
}

type CallsStatus int

const (
	CallsPending CallsStatus = iota
	CallsSuccess
	CallsFailure
)

func (s CallsStatus) String() string {
	switch s {
	case CallsPending:
		return "pending"
	case CallsSuccess:
		return "success"
	case CallsFailure:
		return "failure"
	}
	return fmt.Sprintf("CallsStatus(%d)", int(s))
}

// Wallet is the buyer-facing chain access the checkout needs: balance and allowance
// reads, single transactions and bundled call batches.
type Wallet interface {
	TokenBalance(ctx context.Context, token, owner string) (*big.Int, error)
	NativeBalance(ctx context.Context, owner string) (*big.Int, error)
	Allowance(ctx context.Context, token, owner, spender string) (*big.Int, error)

	SendTransaction(ctx context.Context, from string, call Call) (string, error)
	WaitForReceipt(ctx context.Context, txHash string) (*Receipt, error)

	SendCalls(ctx context.Context, from string, calls []Call) (string, error)
	GetCallsStatus(ctx context.Context, batchID string) (CallsStatus, error)
}

// RPCError is a JSON-RPC error object returned by the wallet provider.
type RPCError struct {
	Method  string
	Code    int64
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("blockchain: %s: rpc error %d: %s", e.Method, e.Code, e.Message)
}

// Is maps EIP-1193 and EIP-5792 codes onto the package sentinels.
func (e *RPCError) Is(target error) bool {
	switch target {
	case ErrUserRejected:
		return e.Code == 4001
	case ErrCapabilityUnsupported:
		return e.Code == 5700 || e.Code == 5710 || e.Code == 4200 || e.Code == -32601
	}
	return false
}
