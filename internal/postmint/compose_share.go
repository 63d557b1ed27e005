package postmint

import (
	"context"
	"fmt"

	"minter/internal/logger"

	"go.uber.org/zap"
)

func (p *Pipeline) composeShare(ctx context.Context, mint Mint, host Host, outcome *Outcome) {
	if p.profiles == nil {
		return
	}

	profile, err := p.profiles.UserByFID(ctx, mint.FID)
	if err != nil {
		logger.Debug("postmint: share skipped, profile unresolved", zap.Int64("fid", mint.FID), zap.Error(err))
		return
	}

	share := Share{
		Text:     fmt.Sprintf("I just minted %d %s of \"%s\" by %s", mint.Quantity, copies(mint.Quantity), mint.SongTitle, mint.ArtistName),
		EmbedURL: p.songURL(mint.SongID),
		Author:   profile.Username,
	}
	outcome.Share = &share
	host.Share(share)
}
