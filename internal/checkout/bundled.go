package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"minter/internal/blockchain"
	"minter/internal/logger"
	"minter/internal/metrics"

	"go.uber.org/zap"
)

// SubmitStablecoinApprovalAndMint asks the wallet to confirm the approval and
// the mint as one bundle. Wallets without bundled calls get the two-step flow.
func (s *Session) SubmitStablecoinApprovalAndMint(ctx context.Context, quantity int64) error {
	if err := s.begin(quantity, Stablecoin); err != nil {
		return err
	}
	defer s.end()

	return s.runBundled(ctx, quantity)
}

func (s *Session) runBundled(ctx context.Context, quantity int64) error {
	approve, err := s.approveCall(quantity)
	if err != nil {
		return s.fail(Stablecoin, err)
	}
	mint, err := s.mintCall(quantity, Stablecoin)
	if err != nil {
		return s.fail(Stablecoin, err)
	}

	batchID, err := s.svc.wallet.SendCalls(ctx, s.Request().Buyer, []blockchain.Call{approve, mint})
	if errors.Is(err, blockchain.ErrCapabilityUnsupported) {
		logger.Info("checkout: bundled calls unsupported, falling back to approval", zap.String("session", s.ID))
		return s.runApprovalThenMint(ctx, quantity)
	}
	if err != nil {
		return s.fail(Stablecoin, err)
	}
	if err := s.enterConfirming(); err != nil {
		return s.fail(Stablecoin, err)
	}
	logger.Debug("checkout: bundle submitted", zap.String("session", s.ID), zap.String("batch", batchID))

	return s.pollBundle(ctx, batchID, quantity)
}

func (s *Session) pollBundle(ctx context.Context, batchID string, quantity int64) error {
	for attempt := 0; attempt < s.svc.opts.PollMaxAttempts; attempt++ {
		if err := sleep(ctx, s.svc.opts.PollInterval); err != nil {
			return s.ambiguous(ctx, err)
		}

		status, err := s.svc.wallet.GetCallsStatus(ctx, batchID)
		if err != nil {
			metrics.RecordBundlePoll("error")
			return s.ambiguous(ctx, err)
		}
		metrics.RecordBundlePoll(status.String())

		switch status {
		case blockchain.CallsSuccess:
			_, _ = s.refreshAllowance(ctx)
			s.confirmMint(ctx, quantity, Stablecoin)
			return nil
		case blockchain.CallsFailure:
			return s.fail(Stablecoin, fmt.Errorf("%w: batch %s", ErrTransactionFailed, batchID))
		}
	}

	return s.ambiguous(ctx, fmt.Errorf("batch %s still pending after %d polls", batchID, s.svc.opts.PollMaxAttempts))
}

// ambiguous stops tracking a bundle whose outcome could not be observed. The
// mint is not assumed to have happened.
func (s *Session) ambiguous(ctx context.Context, cause error) error {
	logger.Warn("checkout: bundle status unknown", zap.String("session", s.ID), zap.Error(cause))

	if err := sleep(ctx, s.svc.opts.ErrorBackoff); err == nil {
		_, _ = s.refreshAllowance(ctx)
	}

	if err := s.transition(Initial); err != nil {
		logger.Warn("checkout: cannot reset session", zap.String("session", s.ID), zap.Error(err))
	}
	s.notice("We couldn't confirm your mint. Check your wallet before trying again.")
	metrics.RecordMint(string(Stablecoin), "unknown")

	return fmt.Errorf("%w: %w", ErrOutcomeUnknown, cause)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
