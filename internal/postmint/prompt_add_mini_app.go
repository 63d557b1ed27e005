package postmint

import (
	"context"

	"minter/internal/logger"

	"go.uber.org/zap"
)

func (p *Pipeline) promptAddMiniApp(ctx context.Context, host Host) {
	if err := host.PromptAddMiniApp(ctx); err != nil {
		logger.Debug("postmint: add mini app prompt skipped", zap.Error(err))
	}
}
