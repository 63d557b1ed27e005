package postmint

import (
	"context"
	"fmt"
	"strings"

	"minter/internal/logger"
	"minter/internal/metrics"
	"minter/internal/neynar"
	"minter/internal/notify"
	"minter/internal/storage"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Store interface {
	GetOrCreateUser(ctx context.Context, fid int64) (*storage.User, error)
	UpsertCollectionByFID(ctx context.Context, fid int64, songID uint, delta int64) (*storage.Collection, error)
	LeaderboardRank(ctx context.Context, songID, userID uint) (int, error)
}

type Notifier interface {
	SendToUser(ctx context.Context, fid int64, notification notify.Notification) (*notify.Result, error)
}

type Profiles interface {
	UserByFID(ctx context.Context, fid int64) (*neynar.Profile, error)
}

// Host receives the buyer-facing effects of a pipeline run.
type Host interface {
	PromptAddMiniApp(ctx context.Context) error
	Notice(message string)
	Share(share Share)
}

// Mint describes one confirmed mint.
type Mint struct {
	SessionID     string
	FID           int64
	SongID        uint
	SongTitle     string
	ArtistName    string
	Quantity      int64
	PaymentMethod string
	USDTotal      decimal.Decimal
	// Interactive is false once the buyer closed the checkout; prompts and
	// shares are skipped but persistence still happens.
	Interactive bool
}

type Share struct {
	Text     string `json:"text"`
	EmbedURL string `json:"embedUrl"`
	Author   string `json:"author"`
}

type Outcome struct {
	UserID   uint     `json:"userId"`
	Amount   int64    `json:"amount"`
	Rank     int      `json:"rank"`
	Notified bool     `json:"notified"`
	Share    *Share   `json:"share,omitempty"`
	Failures []string `json:"failures,omitempty"`
}

type Pipeline struct {
	guard    *Guard
	store    Store
	notifier Notifier
	profiles Profiles
	appURL   string
}

// NewPipeline builds the post-mint pipeline. notifier and profiles may be nil,
// which disables the notification and share steps.
func NewPipeline(store Store, notifier Notifier, profiles Profiles, appURL string) *Pipeline {
	return &Pipeline{
		guard:    NewGuard(),
		store:    store,
		notifier: notifier,
		profiles: profiles,
		appURL:   strings.TrimRight(appURL, "/"),
	}
}

func (p *Pipeline) Guard() *Guard {
	return p.guard
}

// Run executes the side effects of a confirmed mint in order. It returns false
// without doing anything when the session already ran its pipeline.
func (p *Pipeline) Run(ctx context.Context, mint Mint, host Host) (*Outcome, bool) {
	if !p.guard.TryAcquire(mint.SessionID) {
		logger.Debug("postmint: duplicate success signal ignored", zap.String("session", mint.SessionID))
		return nil, false
	}

	logger.Debug("postmint: running pipeline...", zap.String("session", mint.SessionID), zap.Int64("fid", mint.FID))
	outcome := &Outcome{}

	if mint.Interactive {
		p.promptAddMiniApp(ctx, host)
	}

	p.registerUser(ctx, mint, host, outcome)
	p.recordCollection(ctx, mint, host, outcome)

	p.sendNotification(ctx, mint, host, outcome)
	p.recordAnalytics(mint)

	if mint.Interactive {
		p.composeShare(ctx, mint, host, outcome)
	}

	logger.Debug("postmint: running pipeline... done",
		zap.String("session", mint.SessionID),
		zap.Int("rank", outcome.Rank),
		zap.Strings("failures", outcome.Failures),
	)
	return outcome, true
}

func (p *Pipeline) fail(step, message string, err error, host Host, outcome *Outcome) {
	logger.Warn(fmt.Sprintf("postmint: %s failed", step), zap.Error(err))
	metrics.RecordPostMintFailure(step)
	outcome.Failures = append(outcome.Failures, step)
	host.Notice(message)
}

func (p *Pipeline) songURL(songID uint) string {
	return fmt.Sprintf("%s/songs/%d", p.appURL, songID)
}
