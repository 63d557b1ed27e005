package storage

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T) *SqliteStorage {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	s, err := NewSqliteStorage(fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func createSong(t *testing.T, s *SqliteStorage, tokenID uint64) *Song {
	t.Helper()

	song := &Song{
		Title:      "Song " + fmt.Sprint(tokenID),
		ArtistName: "Artist",
		TokenID:    tokenID,
		PriceUSD:   decimal.RequireFromString("4.00"),
	}
	require.NoError(t, s.CreateSong(context.Background(), song))
	return song
}

func TestGetOrCreateUserIsIdempotent(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	first, err := s.GetOrCreateUser(ctx, 42)
	require.NoError(t, err)
	second, err := s.GetOrCreateUser(ctx, 42)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, int64(42), second.FID)
}

func TestGetUserByFIDNotFound(t *testing.T) {
	s := newTestStorage(t)

	_, err := s.GetUserByFID(context.Background(), 7)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNotificationDetailsLifecycle(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	details := NotificationDetails{URL: "https://host.example/notify", Token: "tok-1"}
	require.NoError(t, s.SetUserNotificationDetails(ctx, 10, details))

	got, err := s.GetUserNotificationDetails(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, details, *got)

	// setting again replaces the endpoint
	replaced := NotificationDetails{URL: "https://host.example/notify", Token: "tok-2"}
	require.NoError(t, s.SetUserNotificationDetails(ctx, 10, replaced))
	got, err = s.GetUserNotificationDetails(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, "tok-2", got.Token)

	require.NoError(t, s.DeleteUserNotificationDetails(ctx, 10))
	_, err = s.GetUserNotificationDetails(ctx, 10)
	assert.ErrorIs(t, err, ErrNotFound)

	// the user itself survives
	_, err = s.GetUserByFID(ctx, 10)
	assert.NoError(t, err)
}

func TestGetNotificationDetailsByFIDs(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, s.SetUserNotificationDetails(ctx, 1, NotificationDetails{URL: "https://a", Token: "a"}))
	require.NoError(t, s.SetUserNotificationDetails(ctx, 2, NotificationDetails{URL: "https://b", Token: "b"}))
	_, err := s.GetOrCreateUser(ctx, 3)
	require.NoError(t, err)

	details, err := s.GetNotificationDetailsByFIDs(ctx, []int64{1, 3, 99})
	require.NoError(t, err)
	assert.Len(t, details, 1)
	assert.Equal(t, "a", details[1].Token)

	empty, err := s.GetNotificationDetailsByFIDs(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)

	all, err := s.GetAllNotificationDetails(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestCreateAndGetSong(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	song := createSong(t, s, 1)
	require.NotZero(t, song.ID)

	got, err := s.GetSong(ctx, song.ID)
	require.NoError(t, err)
	assert.Equal(t, "Song 1", got.Title)
	assert.True(t, decimal.RequireFromString("4").Equal(got.PriceUSD))
	assert.Empty(t, got.Collectors)

	_, err = s.GetSong(ctx, song.ID+100)
	assert.ErrorIs(t, err, ErrNotFound)

	songs, err := s.ListSongs(ctx)
	require.NoError(t, err)
	assert.Len(t, songs, 1)
}

func TestUpsertCollectionAccumulates(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	song := createSong(t, s, 1)
	user, err := s.GetOrCreateUser(ctx, 5)
	require.NoError(t, err)

	first, err := s.UpsertCollection(ctx, user.ID, song.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(3), first.Amount)

	second, err := s.UpsertCollection(ctx, user.ID, song.ID, 4)
	require.NoError(t, err)
	assert.Equal(t, int64(7), second.Amount)
	assert.Equal(t, first.ID, second.ID)

	_, err = s.UpsertCollection(ctx, user.ID, song.ID, 0)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestUpsertCollectionByFIDCreatesUser(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	song := createSong(t, s, 1)

	first, err := s.UpsertCollectionByFID(ctx, 77, song.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), first.Amount)

	user, err := s.GetUserByFID(ctx, 77)
	require.NoError(t, err)
	assert.Equal(t, user.ID, first.UserID)

	second, err := s.UpsertCollectionByFID(ctx, 77, song.ID, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(7), second.Amount)
	assert.Equal(t, first.ID, second.ID)

	_, err = s.UpsertCollectionByFID(ctx, 78, song.ID, 0)
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = s.GetUserByFID(ctx, 78)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpsertCollectionSplitMintsMatchSingleMint(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	song := createSong(t, s, 1)
	split, err := s.GetOrCreateUser(ctx, 1)
	require.NoError(t, err)
	single, err := s.GetOrCreateUser(ctx, 2)
	require.NoError(t, err)

	for _, pair := range [][2]int64{{1, 1}, {2, 5}, {10, 990}} {
		a, b := pair[0], pair[1]

		_, err := s.UpsertCollection(ctx, split.ID, song.ID, a)
		require.NoError(t, err)
		afterSplit, err := s.UpsertCollection(ctx, split.ID, song.ID, b)
		require.NoError(t, err)

		afterSingle, err := s.UpsertCollection(ctx, single.ID, song.ID, a+b)
		require.NoError(t, err)

		assert.Equal(t, afterSingle.Amount, afterSplit.Amount)
	}
}

func TestLeaderboardRank(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	song := createSong(t, s, 1)
	other := createSong(t, s, 2)

	users := make([]*User, 4)
	for i := range users {
		user, err := s.GetOrCreateUser(ctx, int64(100+i))
		require.NoError(t, err)
		users[i] = user
	}

	_, err := s.UpsertCollection(ctx, users[0].ID, song.ID, 5)
	require.NoError(t, err)
	_, err = s.UpsertCollection(ctx, users[1].ID, song.ID, 2)
	require.NoError(t, err)
	_, err = s.UpsertCollection(ctx, users[2].ID, song.ID, 2)
	require.NoError(t, err)
	_, err = s.UpsertCollection(ctx, users[3].ID, other.ID, 50)
	require.NoError(t, err)

	rank := func(user *User) int {
		r, err := s.LeaderboardRank(ctx, song.ID, user.ID)
		require.NoError(t, err)
		return r
	}

	assert.Equal(t, 1, rank(users[0]))
	assert.Equal(t, 2, rank(users[1]))
	assert.Equal(t, 3, rank(users[2]))

	// a new collector with the largest amount takes first place
	_, err = s.UpsertCollection(ctx, users[3].ID, song.ID, 9)
	require.NoError(t, err)
	assert.Equal(t, 1, rank(users[3]))
	assert.Equal(t, 2, rank(users[0]))

	_, err = s.LeaderboardRank(ctx, other.ID, users[0].ID)
	assert.ErrorIs(t, err, ErrNotFound)

	loaded, err := s.GetSong(ctx, song.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Collectors, 4)
	assert.Equal(t, int64(103), loaded.Collectors[0].User.FID)
	for i := 1; i < len(loaded.Collectors); i++ {
		assert.GreaterOrEqual(t, loaded.Collectors[i-1].Amount, loaded.Collectors[i].Amount)
	}
}

func TestPrelaunchState(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	prelaunch, err := s.GetPrelaunch(ctx)
	require.NoError(t, err)
	assert.True(t, prelaunch)

	require.NoError(t, s.SetPrelaunch(ctx, false))
	prelaunch, err = s.GetPrelaunch(ctx)
	require.NoError(t, err)
	assert.False(t, prelaunch)

	require.NoError(t, s.SetPrelaunch(ctx, true))
	prelaunch, err = s.GetPrelaunch(ctx)
	require.NoError(t, err)
	assert.True(t, prelaunch)
}
