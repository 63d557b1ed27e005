package checkout

import (
	"context"

	"minter/internal/blockchain"
	"minter/internal/logger"

	"go.uber.org/zap"
)

// SubmitStablecoinApprovalOnly approves the sale contract for the required
// stablecoin amount and submits the mint once the approval is confirmed.
func (s *Session) SubmitStablecoinApprovalOnly(ctx context.Context, quantity int64) error {
	if err := s.begin(quantity, Stablecoin); err != nil {
		return err
	}
	defer s.end()

	return s.runApprovalThenMint(ctx, quantity)
}

func (s *Session) approveCall(quantity int64) (blockchain.Call, error) {
	quote, err := s.Request().Quote(quantity, Stablecoin)
	if err != nil {
		return blockchain.Call{}, err
	}

	data, err := blockchain.EncodeApprove(s.svc.opts.SaleContractAddress, quote.MinorUnits())
	if err != nil {
		return blockchain.Call{}, err
	}
	return blockchain.Call{To: s.svc.opts.StablecoinAddress, Data: data}, nil
}

func (s *Session) runApprovalThenMint(ctx context.Context, quantity int64) error {
	call, err := s.approveCall(quantity)
	if err != nil {
		return s.fail(Stablecoin, err)
	}

	txHash, err := s.svc.wallet.SendTransaction(ctx, s.Request().Buyer, call)
	if err != nil {
		return s.fail(Stablecoin, err)
	}
	if err := s.enterConfirming(); err != nil {
		return s.fail(Stablecoin, err)
	}
	logger.Debug("checkout: approval submitted", zap.String("session", s.ID), zap.String("tx", txHash))

	if err := s.awaitReceipt(ctx, txHash); err != nil {
		return s.fail(Stablecoin, err)
	}

	_, _ = s.refreshAllowance(ctx)
	logger.Debug("checkout: approval confirmed, submitting mint", zap.String("session", s.ID))
	return s.runMint(ctx, quantity, Stablecoin)
}
