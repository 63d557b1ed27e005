package neynar

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"minter/internal/logger"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

const (
	rateLimitAttempts = 3
	rateLimitWait     = 500 * time.Millisecond
)

const signerEventAdd = "SIGNER_EVENT_TYPE_ADD"

var ErrUserNotFound = errors.New("neynar: user not found")

// StatusError is a non-2xx answer from the upstream API.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("neynar: unexpected status %d: %s", e.StatusCode, e.Body)
}

type Profile struct {
	FID               int64    `json:"fid"`
	Username          string   `json:"username"`
	DisplayName       string   `json:"displayName"`
	PfpURL            string   `json:"pfpUrl"`
	CustodyAddress    string   `json:"custodyAddress"`
	VerifiedAddresses []string `json:"verifiedAddresses"`
}

type Client struct {
	baseURL string
	hubURL  string
	apiKey  string
	client  *http.Client
	wait    time.Duration
}

// NewClient builds a client for the Neynar REST API at baseURL and the Neynar
// hosted hub at hubURL. Both use the same API key.
func NewClient(baseURL, hubURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		hubURL:  strings.TrimRight(hubURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 10 * time.Second},
		wait:    rateLimitWait,
	}
}

type Func[T any] func() (T, error)

// rateLimitRetry repeats fn while the upstream answers 429, up to rateLimitAttempts.
func rateLimitRetry[T any](ctx context.Context, wait time.Duration, fn Func[T]) (T, error) {
	var (
		result T
		err    error
	)

	for attempt := 1; ; attempt++ {
		result, err = fn()

		var statusErr *StatusError
		if attempt >= rateLimitAttempts || !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusTooManyRequests {
			return result, err
		}

		logger.Debug("neynar: rate limited, retrying...", zap.Int("attempt", attempt))
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (c *Client) get(ctx context.Context, base, path string, query url.Values) ([]byte, error) {
	return rateLimitRetry(ctx, c.wait, func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+path+"?"+query.Encode(), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("x-api-key", c.apiKey)

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("neynar: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("neynar: read body: %w", err)
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
		}
		return body, nil
	})
}

func (c *Client) UserByFID(ctx context.Context, fid int64) (*Profile, error) {
	logger.Debug("neynar: fetch user by fid...", zap.Int64("fid", fid))

	body, err := c.get(ctx, c.baseURL, "/v2/farcaster/user/bulk", url.Values{"fids": {strconv.FormatInt(fid, 10)}})
	if err != nil {
		return nil, err
	}

	user := gjson.GetBytes(body, "users.0")
	if !user.Exists() {
		return nil, ErrUserNotFound
	}

	logger.Debug("neynar: fetch user by fid... done", zap.String("username", user.Get("username").String()))
	return parseProfile(user), nil
}

func (c *Client) UserByUsername(ctx context.Context, username string) (*Profile, error) {
	logger.Debug("neynar: fetch user by username...", zap.String("username", username))

	body, err := c.get(ctx, c.baseURL, "/v2/farcaster/user/by_username", url.Values{"username": {username}})
	if err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	user := gjson.GetBytes(body, "user")
	if !user.Exists() {
		return nil, ErrUserNotFound
	}

	logger.Debug("neynar: fetch user by username... done", zap.Int64("fid", user.Get("fid").Int()))
	return parseProfile(user), nil
}

// IsActiveAppKey reports whether key is an onchain signer currently registered
// for fid. Keys are compared as hex, ignoring case.
func (c *Client) IsActiveAppKey(ctx context.Context, fid int64, key string) (bool, error) {
	logger.Debug("neynar: check app key...", zap.Int64("fid", fid), zap.String("key", key))

	body, err := c.get(ctx, c.hubURL, "/v1/onChainSignersByFid", url.Values{"fid": {strconv.FormatInt(fid, 10)}})
	if err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
			return false, nil
		}
		return false, err
	}

	active := false
	gjson.GetBytes(body, "events").ForEach(func(_, event gjson.Result) bool {
		signer := event.Get("signerEventBody")
		if strings.EqualFold(signer.Get("key").String(), key) && signer.Get("eventType").String() == signerEventAdd {
			active = true
			return false
		}
		return true
	})

	logger.Debug("neynar: check app key... done", zap.Int64("fid", fid), zap.Bool("active", active))
	return active, nil
}

func parseProfile(user gjson.Result) *Profile {
	profile := &Profile{
		FID:            user.Get("fid").Int(),
		Username:       user.Get("username").String(),
		DisplayName:    user.Get("display_name").String(),
		PfpURL:         user.Get("pfp_url").String(),
		CustodyAddress: user.Get("custody_address").String(),
	}

	for _, address := range user.Get("verified_addresses.eth_addresses").Array() {
		profile.VerifiedAddresses = append(profile.VerifiedAddresses, address.String())
	}

	return profile
}
