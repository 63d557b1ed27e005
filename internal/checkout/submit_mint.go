package checkout

import (
	"context"
	"errors"
	"fmt"

	"minter/internal/blockchain"
	"minter/internal/logger"
	"minter/internal/metrics"
	"minter/internal/postmint"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SubmitMint sends the mint transaction and waits for its receipt.
func (s *Session) SubmitMint(ctx context.Context, quantity int64, method PaymentMethod) error {
	if err := s.begin(quantity, method); err != nil {
		return err
	}
	defer s.end()

	return s.runMint(ctx, quantity, method)
}

func (s *Session) runMint(ctx context.Context, quantity int64, method PaymentMethod) error {
	if err := s.sendMint(ctx, quantity, method); err != nil {
		return s.fail(method, err)
	}

	if method == Stablecoin {
		_, _ = s.refreshAllowance(ctx)
	}
	s.confirmMint(ctx, quantity, method)
	return nil
}

func (s *Session) mintCall(quantity int64, method PaymentMethod) (blockchain.Call, error) {
	request := s.Request()

	quote, err := request.Quote(quantity, method)
	if err != nil {
		return blockchain.Call{}, err
	}

	data, err := blockchain.EncodeMint(request.Buyer, request.TokenID, quantity, method == Native)
	if err != nil {
		return blockchain.Call{}, err
	}

	call := blockchain.Call{To: s.svc.opts.SaleContractAddress, Data: data}
	if method == Native {
		call.Value = quote.MinorUnits()
	}
	return call, nil
}

func (s *Session) sendMint(ctx context.Context, quantity int64, method PaymentMethod) error {
	call, err := s.mintCall(quantity, method)
	if err != nil {
		return err
	}

	txHash, err := s.svc.wallet.SendTransaction(ctx, s.Request().Buyer, call)
	if err != nil {
		return err
	}
	if err := s.enterConfirming(); err != nil {
		return err
	}
	logger.Debug("checkout: mint submitted", zap.String("session", s.ID), zap.String("tx", txHash))

	return s.awaitReceipt(ctx, txHash)
}

func (s *Session) awaitReceipt(ctx context.Context, txHash string) error {
	receipt, err := s.svc.wallet.WaitForReceipt(ctx, txHash)
	if err != nil {
		return err
	}
	if !receipt.Success {
		return fmt.Errorf("%w: %s", ErrTransactionFailed, txHash)
	}
	return nil
}

// confirmMint handles a mint success signal. Only the first signal of a
// session runs the pipeline and reaches Success.
func (s *Session) confirmMint(ctx context.Context, quantity int64, method PaymentMethod) {
	outcome, ran := s.svc.pipeline.Run(ctx, s.postMint(quantity, method), sessionHost{session: s})
	if !ran {
		return
	}

	s.mu.Lock()
	s.outcome = outcome
	err := s.transitionLocked(Success)
	s.mu.Unlock()
	if err != nil {
		logger.Warn("checkout: mint confirmed outside confirming state", zap.String("session", s.ID), zap.Error(err))
	}

	metrics.RecordMint(string(method), "success")
	logger.Info("checkout: mint confirmed", zap.String("session", s.ID), zap.Int64("quantity", quantity), zap.String("payment method", string(method)))
}

func (s *Session) postMint(quantity int64, method PaymentMethod) postmint.Mint {
	s.mu.Lock()
	defer s.mu.Unlock()

	return postmint.Mint{
		SessionID:     s.ID,
		FID:           s.request.FID,
		SongID:        s.request.SongID,
		SongTitle:     s.songTitle,
		ArtistName:    s.artistName,
		Quantity:      quantity,
		PaymentMethod: string(method),
		USDTotal:      s.request.UnitPriceUSD.Mul(decimal.NewFromInt(quantity)),
		Interactive:   !s.closed,
	}
}

// fail returns the session to Initial. Wallet rejections by the buyer leave
// no notice.
func (s *Session) fail(method PaymentMethod, err error) error {
	rejected := errors.Is(err, blockchain.ErrUserRejected)

	s.mu.Lock()
	if s.state == Confirming {
		_ = s.transitionLocked(Initial)
	}
	s.mu.Unlock()

	if rejected {
		metrics.RecordMint(string(method), "rejected")
		logger.Debug("checkout: request declined in wallet", zap.String("session", s.ID))
		return err
	}

	metrics.RecordMint(string(method), "failed")
	logger.Warn("checkout: mint failed", zap.String("session", s.ID), zap.Error(err))
	s.notice("Transaction failed. Please try again.")
	return err
}
