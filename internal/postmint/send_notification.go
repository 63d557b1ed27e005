package postmint

import (
	"context"
	"errors"
	"fmt"

	"minter/internal/notify"
)

const notificationTitle = "Mint successful!"

func (p *Pipeline) sendNotification(ctx context.Context, mint Mint, host Host, outcome *Outcome) {
	if p.notifier == nil {
		return
	}

	result, err := p.notifier.SendToUser(ctx, mint.FID, notify.Notification{
		Title:     notificationTitle,
		Body:      notificationBody(mint, outcome.Rank),
		TargetURL: p.songURL(mint.SongID),
	})
	if errors.Is(err, notify.ErrNoNotificationDetails) {
		return
	}
	if err != nil {
		p.fail("notification", "We couldn't send your mint notification.", err, host, outcome)
		return
	}
	outcome.Notified = result != nil && result.Delivered > 0
}

func notificationBody(mint Mint, rank int) string {
	minted := fmt.Sprintf("You minted %d %s of %s.", mint.Quantity, copies(mint.Quantity), mint.SongTitle)
	if rank < 1 {
		return minted + " Thanks for collecting!"
	}
	return fmt.Sprintf("%s You're now the %s collector!", minted, Ordinal(rank))
}

func copies(quantity int64) string {
	if quantity == 1 {
		return "copy"
	}
	return "copies"
}

// Ordinal renders n with its English suffix: 1st, 2nd, 3rd, 4th, 11th, 21st.
func Ordinal(n int) string {
	suffix := "th"
	switch n % 100 {
	case 11, 12, 13:
	default:
		switch n % 10 {
		case 1:
			suffix = "st"
		case 2:
			suffix = "nd"
		case 3:
			suffix = "rd"
		}
	}
	return fmt.Sprintf("%d%s", n, suffix)
}
