package postmint

import (
	"context"
)

func (p *Pipeline) registerUser(ctx context.Context, mint Mint, host Host, outcome *Outcome) {
	user, err := p.store.GetOrCreateUser(ctx, mint.FID)
	if err != nil {
		p.fail("register", "We couldn't save your profile. Your mint is safe.", err, host, outcome)
		return
	}
	outcome.UserID = user.ID
}
