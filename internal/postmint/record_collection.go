package postmint

import (
	"context"
)

// recordCollection is keyed by FID so a failed registration does not lose the
// minted copies.
func (p *Pipeline) recordCollection(ctx context.Context, mint Mint, host Host, outcome *Outcome) {
	collection, err := p.store.UpsertCollectionByFID(ctx, mint.FID, mint.SongID, mint.Quantity)
	if err != nil {
		p.fail("collection", "We couldn't update your collection yet. Your mint is safe.", err, host, outcome)
		return
	}
	outcome.UserID = collection.UserID
	outcome.Amount = collection.Amount

	rank, err := p.store.LeaderboardRank(ctx, mint.SongID, collection.UserID)
	if err != nil {
		p.fail("leaderboard", "We couldn't load your leaderboard position.", err, host, outcome)
		return
	}
	outcome.Rank = rank
}
