package blockchain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"minter/internal/logger"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

const callsVersion = "2.0.0"

// RPCWallet talks JSON-RPC to a wallet provider that holds the buyer's keys and
// supports EIP-5792 call batches.
type RPCWallet struct {
	client              *rpc.Client
	chainID             uint64
	receiptPollInterval time.Duration
}

type txArgs struct {
	From  *common.Address `json:"from,omitempty"`
	To    common.Address  `json:"to"`
	Data  hexutil.Bytes   `json:"data"`
	Value *hexutil.Big    `json:"value,omitempty"`
}

type sendCallsParams struct {
	Version        string         `json:"version"`
	ChainID        hexutil.Uint64 `json:"chainId"`
	From           common.Address `json:"from"`
	AtomicRequired bool           `json:"atomicRequired"`
	Calls          []txArgs       `json:"calls"`
}

type rpcReceipt struct {
	BlockNumber hexutil.Uint64 `json:"blockNumber"`
	Status      hexutil.Uint64 `json:"status"`
}

func NewRPCWallet(ctx context.Context, url string, chainID uint64, receiptPollInterval time.Duration) (*RPCWallet, error) {
	client, err := rpc.DialOptions(ctx, url, rpc.WithHTTPClient(&http.Client{Timeout: 30 * time.Second}))
	if err != nil {
		return nil, fmt.Errorf("blockchain: dial %s: %w", url, err)
	}

	return &RPCWallet{
		client:              client,
		chainID:             chainID,
		receiptPollInterval: receiptPollInterval,
	}, nil
}

func (w *RPCWallet) Close() {
	w.client.Close()
}

func (w *RPCWallet) call(ctx context.Context, result any, method string, params ...any) error {
	err := w.client.CallContext(ctx, result, method, params...)
	if err == nil {
		return nil
	}

	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return &RPCError{Method: method, Code: int64(rpcErr.ErrorCode()), Message: rpcErr.Error()}
	}
	return fmt.Errorf("blockchain: %s: %w", method, err)
}

func newTxArgs(call Call) (txArgs, error) {
	to, err := toAddress(call.To)
	if err != nil {
		return txArgs{}, err
	}
	data, err := hexutil.Decode(call.Data)
	if err != nil {
		return txArgs{}, fmt.Errorf("blockchain: invalid calldata: %w", err)
	}

	args := txArgs{To: to, Data: data}
	if call.Value != nil && call.Value.Sign() > 0 {
		args.Value = (*hexutil.Big)(call.Value)
	}
	return args, nil
}

func (w *RPCWallet) ethCall(ctx context.Context, to, data string) (*big.Int, error) {
	args, err := newTxArgs(Call{To: to, Data: data})
	if err != nil {
		return nil, err
	}

	var result hexutil.Bytes
	if err := w.call(ctx, &result, "eth_call", args, "latest"); err != nil {
		return nil, err
	}
	return decodeUint256(result)
}

func (w *RPCWallet) TokenBalance(ctx context.Context, token, owner string) (*big.Int, error) {
	data, err := EncodeBalanceOf(owner)
	if err != nil {
		return nil, err
	}
	return w.ethCall(ctx, token, data)
}

func (w *RPCWallet) NativeBalance(ctx context.Context, owner string) (*big.Int, error) {
	address, err := toAddress(owner)
	if err != nil {
		return nil, err
	}

	var balance hexutil.Big
	if err := w.call(ctx, &balance, "eth_getBalance", address, "latest"); err != nil {
		return nil, err
	}
	return balance.ToInt(), nil
}

func (w *RPCWallet) Allowance(ctx context.Context, token, owner, spender string) (*big.Int, error) {
	data, err := EncodeAllowance(owner, spender)
	if err != nil {
		return nil, err
	}
	return w.ethCall(ctx, token, data)
}

func (w *RPCWallet) SendTransaction(ctx context.Context, from string, call Call) (string, error) {
	logger.Debug("wallet: sending transaction...", zap.String("from", from), zap.String("to", call.To))

	sender, err := toAddress(from)
	if err != nil {
		return "", err
	}
	tx, err := newTxArgs(call)
	if err != nil {
		return "", err
	}
	tx.From = &sender

	var hash common.Hash
	if err := w.call(ctx, &hash, "eth_sendTransaction", tx); err != nil {
		return "", err
	}

	logger.Debug("wallet: sending transaction... done", zap.String("hash", hash.Hex()))
	return hash.Hex(), nil
}

func (w *RPCWallet) WaitForReceipt(ctx context.Context, txHash string) (*Receipt, error) {
	logger.Debug("wallet: waiting for receipt...", zap.String("hash", txHash))

	hash := common.HexToHash(txHash)
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}

		var receipt *rpcReceipt
		if err := w.call(ctx, &receipt, "eth_getTransactionReceipt", hash); err != nil {
			return nil, err
		}

		if receipt != nil {
			result := &Receipt{
				TxHash:      txHash,
				Success:     receipt.Status == 1,
				BlockNumber: uint64(receipt.BlockNumber),
			}
			logger.Debug("wallet: waiting for receipt... done", zap.String("hash", txHash), zap.Bool("success", result.Success))
			return result, nil
		}

		timer.Reset(w.receiptPollInterval)
	}
}

func (w *RPCWallet) SendCalls(ctx context.Context, from string, calls []Call) (string, error) {
	logger.Debug("wallet: sending call batch...", zap.String("from", from), zap.Int("calls", len(calls)))

	sender, err := toAddress(from)
	if err != nil {
		return "", err
	}

	params := sendCallsParams{
		Version:        callsVersion,
		ChainID:        hexutil.Uint64(w.chainID),
		From:           sender,
		AtomicRequired: true,
		Calls:          make([]txArgs, len(calls)),
	}
	for i, call := range calls {
		if params.Calls[i], err = newTxArgs(call); err != nil {
			return "", err
		}
	}

	var raw json.RawMessage
	if err := w.call(ctx, &raw, "wallet_sendCalls", params); err != nil {
		return "", err
	}

	// older providers answer with a bare identifier
	result := gjson.ParseBytes(raw)
	batchID := result.String()
	if result.IsObject() {
		batchID = result.Get("id").String()
	}
	if batchID == "" {
		return "", fmt.Errorf("blockchain: wallet_sendCalls: empty batch id")
	}

	logger.Debug("wallet: sending call batch... done", zap.String("batch id", batchID))
	return batchID, nil
}

// GetCallsStatus accepts both the numeric EIP-5792 status codes and the string
// statuses of earlier drafts.
func (w *RPCWallet) GetCallsStatus(ctx context.Context, batchID string) (CallsStatus, error) {
	var raw json.RawMessage
	if err := w.call(ctx, &raw, "wallet_getCallsStatus", batchID); err != nil {
		return CallsPending, err
	}

	result := gjson.ParseBytes(raw)
	status := result.Get("status")
	if status.Type == gjson.Number {
		switch code := status.Int(); {
		case code >= 100 && code < 200:
			return CallsPending, nil
		case code >= 200 && code < 300:
			if anyReverted(result.Get("receipts")) {
				return CallsFailure, nil
			}
			return CallsSuccess, nil
		case code >= 400 && code < 700:
			return CallsFailure, nil
		}
		return CallsPending, fmt.Errorf("blockchain: wallet_getCallsStatus: unknown status %d", status.Int())
	}

	switch strings.ToLower(status.String()) {
	case "pending":
		return CallsPending, nil
	case "confirmed", "success":
		if anyReverted(result.Get("receipts")) {
			return CallsFailure, nil
		}
		return CallsSuccess, nil
	case "failure", "failed", "reverted":
		return CallsFailure, nil
	}
	return CallsPending, fmt.Errorf("blockchain: wallet_getCallsStatus: unknown status %q", status.String())
}

func anyReverted(receipts gjson.Result) bool {
	reverted := false
	receipts.ForEach(func(_, receipt gjson.Result) bool {
		if s := receipt.Get("status"); s.Exists() && s.String() != "0x1" && s.String() != "success" {
			reverted = true
			return false
		}
		return true
	})
	return reverted
}
