package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"minter/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

type mockStore struct {
	mu      sync.Mutex
	details map[int64]storage.NotificationDetails
	deleted []int64
}

func (m *mockStore) GetUserNotificationDetails(ctx context.Context, fid int64) (*storage.NotificationDetails, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.details[fid]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &d, nil
}

func (m *mockStore) GetNotificationDetailsByFIDs(ctx context.Context, fids []int64) (map[int64]storage.NotificationDetails, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[int64]storage.NotificationDetails)
	for _, fid := range fids {
		if d, ok := m.details[fid]; ok {
			out[fid] = d
		}
	}
	return out, nil
}

func (m *mockStore) GetAllNotificationDetails(ctx context.Context) (map[int64]storage.NotificationDetails, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[int64]storage.NotificationDetails, len(m.details))
	for fid, d := range m.details {
		out[fid] = d
	}
	return out, nil
}

func (m *mockStore) DeleteUserNotificationDetails(ctx context.Context, fid int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.details, fid)
	m.deleted = append(m.deleted, fid)
	return nil
}

type hostServer struct {
	*httptest.Server
	mu       sync.Mutex
	requests []request
	invalid  map[string]bool
}

func newHostServer(t *testing.T, invalid ...string) *hostServer {
	t.Helper()

	h := &hostServer{invalid: make(map[string]bool)}
	for _, token := range invalid {
		h.invalid[token] = true
	}

	h.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		h.mu.Lock()
		h.requests = append(h.requests, req)
		h.mu.Unlock()

		successful := []string{}
		invalidTokens := []string{}
		for _, token := range req.Tokens {
			if h.invalid[token] {
				invalidTokens = append(invalidTokens, token)
			} else {
				successful = append(successful, token)
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"result": map[string]any{
				"successfulTokens":  successful,
				"invalidTokens":     invalidTokens,
				"rateLimitedTokens": []string{},
			},
		})
	}))
	t.Cleanup(h.Close)
	return h
}

func newTestDispatcher(store Store) *Dispatcher {
	d := NewDispatcher(store)
	d.limit = rate.Inf
	return d
}

func TestSendToUser(t *testing.T) {
	host := newHostServer(t)
	store := &mockStore{details: map[int64]storage.NotificationDetails{
		7: {URL: host.URL, Token: "tok-7"},
	}}

	result, err := newTestDispatcher(store).SendToUser(context.Background(), 7, Notification{
		Title:     "Mint complete",
		Body:      strings.Repeat("x", 200),
		TargetURL: "https://mint.example/songs/1",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Delivered)

	require.Len(t, host.requests, 1)
	sent := host.requests[0]
	assert.Equal(t, []string{"tok-7"}, sent.Tokens)
	assert.Len(t, sent.Body, maxBodyLength)
	assert.NotEmpty(t, sent.NotificationID)
}

func TestSendToUserWithoutDetails(t *testing.T) {
	store := &mockStore{details: map[int64]storage.NotificationDetails{}}

	_, err := newTestDispatcher(store).SendToUser(context.Background(), 7, Notification{Title: "hi"})
	assert.ErrorIs(t, err, ErrNoNotificationDetails)
}

func TestInvalidTokenClearsDetails(t *testing.T) {
	host := newHostServer(t, "tok-bad")
	store := &mockStore{details: map[int64]storage.NotificationDetails{
		1: {URL: host.URL, Token: "tok-good"},
		2: {URL: host.URL, Token: "tok-bad"},
	}}

	result, err := newTestDispatcher(store).Broadcast(context.Background(), nil, Notification{Title: "New drop"})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Delivered)
	assert.Equal(t, 1, result.Invalid)
	assert.Equal(t, []int64{2}, store.deleted)
}

func TestBroadcastSelectedUsersGroupsByEndpoint(t *testing.T) {
	hostA := newHostServer(t)
	hostB := newHostServer(t)
	store := &mockStore{details: map[int64]storage.NotificationDetails{
		1: {URL: hostA.URL, Token: "a1"},
		2: {URL: hostA.URL, Token: "a2"},
		3: {URL: hostB.URL, Token: "b3"},
		4: {URL: hostB.URL, Token: "b4"},
	}}

	result, err := newTestDispatcher(store).Broadcast(context.Background(), []int64{1, 2, 3}, Notification{Title: "New drop"})
	require.NoError(t, err)

	assert.Equal(t, 3, result.Delivered)
	require.Len(t, hostA.requests, 1)
	assert.ElementsMatch(t, []string{"a1", "a2"}, hostA.requests[0].Tokens)
	require.Len(t, hostB.requests, 1)
	assert.Equal(t, []string{"b3"}, hostB.requests[0].Tokens)
}

func TestLocalRateLimitPerToken(t *testing.T) {
	host := newHostServer(t)
	store := &mockStore{details: map[int64]storage.NotificationDetails{
		1: {URL: host.URL, Token: "tok"},
	}}
	d := NewDispatcher(store)

	first, err := d.SendToUser(context.Background(), 1, Notification{Title: "one"})
	require.NoError(t, err)
	assert.Equal(t, 1, first.Delivered)

	second, err := d.SendToUser(context.Background(), 1, Notification{Title: "two"})
	require.NoError(t, err)
	assert.Equal(t, 0, second.Delivered)
	assert.Equal(t, 1, second.RateLimited)
	assert.Len(t, host.requests, 1)
}

func TestIdleLimitersArePruned(t *testing.T) {
	host := newHostServer(t)
	store := &mockStore{details: map[int64]storage.NotificationDetails{
		1: {URL: host.URL, Token: "tok-1"},
		2: {URL: host.URL, Token: "tok-2"},
	}}
	d := NewDispatcher(store)
	ctx := context.Background()

	_, err := d.SendToUser(ctx, 1, Notification{Title: "one"})
	require.NoError(t, err)
	_, err = d.SendToUser(ctx, 2, Notification{Title: "two"})
	require.NoError(t, err)
	require.Len(t, d.limiters, 2)

	d.mu.Lock()
	assert.Zero(t, d.pruneLimitersLocked(time.Now()))
	d.mu.Unlock()

	// a lookup after the prune interval sweeps recharged limiters first
	d.getLimiter("tok-3", time.Now().Add(limiterPruneInterval+time.Minute))
	d.mu.Lock()
	defer d.mu.Unlock()
	assert.Len(t, d.limiters, 1)
	assert.Contains(t, d.limiters, "tok-3")
}

func TestHostFailureIsReported(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	store := &mockStore{details: map[int64]storage.NotificationDetails{1: {URL: server.URL, Token: "tok"}}}
	_, err := newTestDispatcher(store).SendToUser(context.Background(), 1, Notification{Title: "x"})
	assert.Error(t, err)
}
