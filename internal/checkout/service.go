package checkout

import (
	"context"
	"fmt"
	"sync"
	"time"

	"minter/internal/blockchain"
	"minter/internal/logger"
	"minter/internal/postmint"
	"minter/internal/storage"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultPollInterval    = 2 * time.Second
	defaultPollMaxAttempts = 90
	defaultErrorBackoff    = 5 * time.Second
	defaultSessionTTL      = 30 * time.Minute
)

type SongStore interface {
	GetSong(ctx context.Context, id uint) (*storage.Song, error)
	GetPrelaunch(ctx context.Context) (bool, error)
}

type Options struct {
	StablecoinAddress   string
	SaleContractAddress string

	// PollInterval is both the delay before the first bundled call status
	// query and the delay between queries.
	PollInterval    time.Duration
	PollMaxAttempts int
	ErrorBackoff    time.Duration

	// SessionTTL is how long a session without a running flow may stay idle
	// before it is dropped.
	SessionTTL time.Duration
}

type OpenRequest struct {
	Buyer    string        `json:"buyer"`
	FID      int64         `json:"fid"`
	SongID   uint          `json:"songId"`
	Quantity int64         `json:"quantity"`
	Method   PaymentMethod `json:"paymentMethod"`
}

// Service keeps the open checkout sessions and runs their submission flows.
type Service struct {
	wallet   blockchain.Wallet
	feed     PriceFeed
	songs    SongStore
	pipeline *postmint.Pipeline
	opts     Options

	mu       sync.Mutex
	sessions map[string]*Session

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewService(wallet blockchain.Wallet, feed PriceFeed, songs SongStore, pipeline *postmint.Pipeline, opts Options) *Service {
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.PollMaxAttempts <= 0 {
		opts.PollMaxAttempts = defaultPollMaxAttempts
	}
	if opts.ErrorBackoff <= 0 {
		opts.ErrorBackoff = defaultErrorBackoff
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = defaultSessionTTL
	}

	ctx, cancel := context.WithCancel(context.Background())
	svc := &Service{
		wallet:   wallet,
		feed:     feed,
		songs:    songs,
		pipeline: pipeline,
		opts:     opts,
		sessions: make(map[string]*Session),
		ctx:      ctx,
		cancel:   cancel,
	}
	go svc.evictLoop()
	return svc
}

// Open starts a checkout session; the song's unit price is fixed from here on.
func (svc *Service) Open(ctx context.Context, req OpenRequest) (*Session, error) {
	if !blockchain.IsAddress(req.Buyer) {
		return nil, fmt.Errorf("checkout: buyer: %w", blockchain.ErrInvalidAddress)
	}
	if req.Quantity == 0 {
		req.Quantity = MinQuantity
	}
	if err := ValidateQuantity(req.Quantity); err != nil {
		return nil, err
	}
	if req.Method == "" {
		req.Method = Stablecoin
	}
	if _, err := ParsePaymentMethod(string(req.Method)); err != nil {
		return nil, err
	}

	prelaunch, err := svc.songs.GetPrelaunch(ctx)
	if err != nil {
		return nil, err
	}
	if prelaunch {
		return nil, ErrSaleNotOpen
	}

	song, err := svc.songs.GetSong(ctx, req.SongID)
	if err != nil {
		return nil, err
	}

	session := &Session{
		ID:         uuid.NewString(),
		svc:        svc,
		songTitle:  song.Title,
		artistName: song.ArtistName,
		request: MintRequest{
			Buyer:        req.Buyer,
			FID:          req.FID,
			SongID:       song.ID,
			TokenID:      song.TokenID,
			Quantity:     req.Quantity,
			Method:       req.Method,
			UnitPriceUSD: song.PriceUSD,
		},
		state:   Initial,
		touched: time.Now(),
	}
	if err := session.refreshRate(ctx); err != nil {
		logger.Warn("checkout: no native rate at open", zap.String("session", session.ID), zap.Error(err))
	}

	svc.mu.Lock()
	svc.sessions[session.ID] = session
	svc.mu.Unlock()

	logger.Debug("checkout: session opened", zap.String("session", session.ID), zap.Uint("song", song.ID), zap.Int64("fid", req.FID))
	return session, nil
}

func (svc *Service) Get(id string) (*Session, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	session, ok := svc.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	session.touch(time.Now())
	return session, nil
}

// Close ends a session. A flow still running keeps going in the background and
// the session leaves the registry when it finishes.
func (svc *Service) Close(id string) error {
	session, err := svc.Get(id)
	if err != nil {
		return err
	}

	if session.close() {
		logger.Info("checkout: session closed with a transaction in flight", zap.String("session", id))
		return nil
	}
	svc.remove(id)
	return nil
}

func (svc *Service) remove(id string) {
	svc.mu.Lock()
	delete(svc.sessions, id)
	svc.mu.Unlock()

	svc.pipeline.Guard().Forget(id)
}

func (svc *Service) evictLoop() {
	ticker := time.NewTicker(svc.opts.SessionTTL / 2)
	defer ticker.Stop()

	for {
		select {
		case <-svc.ctx.Done():
			return
		case now := <-ticker.C:
			svc.evictIdle(now)
		}
	}
}

// evictIdle drops sessions idle for at least SessionTTL. Sessions with a flow
// in flight stay; they leave the registry when the flow ends.
func (svc *Service) evictIdle(now time.Time) int {
	var evicted []string

	svc.mu.Lock()
	for id, session := range svc.sessions {
		if session.expire(now, svc.opts.SessionTTL) {
			delete(svc.sessions, id)
			evicted = append(evicted, id)
		}
	}
	svc.mu.Unlock()

	for _, id := range evicted {
		svc.pipeline.Guard().Forget(id)
	}
	if len(evicted) > 0 {
		logger.Debug("checkout: evicted idle sessions", zap.Int("count", len(evicted)))
	}
	return len(evicted)
}

// StartPurchase validates the purchase synchronously and runs the chain flow
// in the background.
func (svc *Service) StartPurchase(ctx context.Context, id string) error {
	session, err := svc.Get(id)
	if err != nil {
		return err
	}

	flow, err := session.prepare(ctx)
	if err != nil {
		return err
	}

	svc.wg.Add(1)
	go func() {
		defer svc.wg.Done()
		if err := flow(svc.ctx); err != nil {
			logger.Info("checkout: purchase ended", zap.String("session", id), zap.Error(err))
		}
	}()
	return nil
}

// Shutdown waits for running flows, cancelling them when ctx expires.
func (svc *Service) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		svc.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		svc.cancel()
		return nil
	case <-ctx.Done():
		svc.cancel()
		<-done
		return ctx.Err()
	}
}
