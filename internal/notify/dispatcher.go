package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"minter/internal/logger"
	"minter/internal/metrics"
	"minter/internal/storage"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	maxTitleLength      = 32
	maxBodyLength       = 128
	maxTokensPerRequest = 100

	limiterPruneInterval = 5 * time.Minute
)

var ErrNoNotificationDetails = errors.New("notify: user has no notification details")

type Store interface {
	GetUserNotificationDetails(ctx context.Context, fid int64) (*storage.NotificationDetails, error)
	GetNotificationDetailsByFIDs(ctx context.Context, fids []int64) (map[int64]storage.NotificationDetails, error)
	GetAllNotificationDetails(ctx context.Context) (map[int64]storage.NotificationDetails, error)
	DeleteUserNotificationDetails(ctx context.Context, fid int64) error
}

type Notification struct {
	Title     string `json:"title"`
	Body      string `json:"body"`
	TargetURL string `json:"targetUrl"`
}

type Result struct {
	Delivered   int `json:"delivered"`
	Invalid     int `json:"invalid"`
	RateLimited int `json:"rateLimited"`
}

type request struct {
	NotificationID string   `json:"notificationId"`
	Title          string   `json:"title"`
	Body           string   `json:"body"`
	TargetURL      string   `json:"targetUrl"`
	Tokens         []string `json:"tokens"`
}

// Dispatcher delivers mini-app notifications to the endpoints the host registered
// for each user.
type Dispatcher struct {
	store  Store
	client *http.Client

	mu        sync.Mutex
	limiters  map[string]*rate.Limiter
	limit     rate.Limit
	burst     int
	lastPrune time.Time
}

func NewDispatcher(store Store) *Dispatcher {
	return &Dispatcher{
		store:    store,
		client:   &http.Client{Timeout: 10 * time.Second},
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Every(30 * time.Second),
		burst:    1,
	}
}

func (d *Dispatcher) getLimiter(token string, now time.Time) *rate.Limiter {
	d.mu.Lock()
	defer d.mu.Unlock()

	if now.Sub(d.lastPrune) >= limiterPruneInterval {
		d.pruneLimitersLocked(now)
		d.lastPrune = now
	}

	limiter, exists := d.limiters[token]
	if !exists {
		limiter = rate.NewLimiter(d.limit, d.burst)
		d.limiters[token] = limiter
	}

	return limiter
}

// pruneLimitersLocked drops limiters that have fully recharged, since a new
// limiter for the same token would behave the same.
func (d *Dispatcher) pruneLimitersLocked(now time.Time) int {
	pruned := 0
	for token, limiter := range d.limiters {
		if limiter.TokensAt(now) >= float64(d.burst) {
			delete(d.limiters, token)
			pruned++
		}
	}
	if pruned > 0 {
		logger.Debug("notify: pruned idle rate limiters", zap.Int("count", pruned), zap.Int("remaining", len(d.limiters)))
	}
	return pruned
}

func (d *Dispatcher) SendToUser(ctx context.Context, fid int64, notification Notification) (*Result, error) {
	details, err := d.store.GetUserNotificationDetails(ctx, fid)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNoNotificationDetails
	}
	if err != nil {
		return nil, err
	}

	return d.send(ctx, map[int64]storage.NotificationDetails{fid: *details}, notification)
}

// Broadcast notifies the given users, or every user with notifications enabled
// when fids is empty.
func (d *Dispatcher) Broadcast(ctx context.Context, fids []int64, notification Notification) (*Result, error) {
	var (
		details map[int64]storage.NotificationDetails
		err     error
	)
	if len(fids) == 0 {
		details, err = d.store.GetAllNotificationDetails(ctx)
	} else {
		details, err = d.store.GetNotificationDetailsByFIDs(ctx, fids)
	}
	if err != nil {
		return nil, err
	}

	return d.send(ctx, details, notification)
}

func (d *Dispatcher) send(ctx context.Context, details map[int64]storage.NotificationDetails, notification Notification) (*Result, error) {
	logger.Debug("notify: sending notification...", zap.String("title", notification.Title), zap.Int("recipients", len(details)))

	result := &Result{}
	fidByToken := make(map[string]int64, len(details))
	tokensByURL := make(map[string][]string)

	for fid, detail := range details {
		now := time.Now()
		if !d.getLimiter(detail.Token, now).AllowN(now, 1) {
			result.RateLimited++
			continue
		}
		fidByToken[detail.Token] = fid
		tokensByURL[detail.URL] = append(tokensByURL[detail.URL], detail.Token)
	}

	notificationID := uuid.NewString()
	var errs []error

	for url, tokens := range tokensByURL {
		for start := 0; start < len(tokens); start += maxTokensPerRequest {
			end := min(start+maxTokensPerRequest, len(tokens))

			err := d.post(ctx, url, request{
				NotificationID: notificationID,
				Title:          truncate(notification.Title, maxTitleLength),
				Body:           truncate(notification.Body, maxBodyLength),
				TargetURL:      notification.TargetURL,
				Tokens:         tokens[start:end],
			}, result, fidByToken)
			if err != nil {
				metrics.RecordNotification("error")
				errs = append(errs, err)
			}
		}
	}

	logger.Debug("notify: sending notification... done",
		zap.Int("delivered", result.Delivered),
		zap.Int("invalid", result.Invalid),
		zap.Int("rate limited", result.RateLimited),
	)
	return result, errors.Join(errs...)
}

func (d *Dispatcher) post(ctx context.Context, url string, payload request, result *Result, fidByToken map[string]int64) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("notify: read body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("notify: unexpected status %d", resp.StatusCode)
	}

	parsed := gjson.ParseBytes(raw)
	delivered := parsed.Get("result.successfulTokens").Array()
	result.Delivered += len(delivered)
	for range delivered {
		metrics.RecordNotification("success")
	}

	rateLimited := parsed.Get("result.rateLimitedTokens").Array()
	result.RateLimited += len(rateLimited)

	for _, token := range parsed.Get("result.invalidTokens").Array() {
		result.Invalid++
		metrics.RecordNotification("invalid")

		fid, ok := fidByToken[token.String()]
		if !ok {
			continue
		}
		if err := d.store.DeleteUserNotificationDetails(ctx, fid); err != nil {
			logger.Warn("notify: failed to clear invalid token", zap.Int64("fid", fid), zap.Error(err))
		}
	}

	return nil
}

func truncate(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit])
}
