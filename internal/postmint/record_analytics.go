package postmint

import (
	"minter/internal/logger"
	"minter/internal/metrics"

	"go.uber.org/zap"
)

func (p *Pipeline) recordAnalytics(mint Mint) {
	logger.Info("postmint: mint completed",
		zap.Int64("fid", mint.FID),
		zap.Uint("song", mint.SongID),
		zap.Int64("quantity", mint.Quantity),
		zap.String("payment method", mint.PaymentMethod),
		zap.String("usd total", mint.USDTotal.StringFixed(2)),
	)
	metrics.RecordMintUSD(mint.PaymentMethod, mint.USDTotal.InexactFloat64())
}
