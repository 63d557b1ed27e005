package storage

import (
	"context"
	"errors"
)

var (
	ErrNotFound      = errors.New("storage: record not found")
	ErrInvalidAmount = errors.New("storage: collection delta must be positive")
)

type Storage interface {
	// user
	GetUserByFID(ctx context.Context, fid int64) (*User, error)
	GetOrCreateUser(ctx context.Context, fid int64) (*User, error)

	// notification details
	GetUserNotificationDetails(ctx context.Context, fid int64) (*NotificationDetails, error)
	SetUserNotificationDetails(ctx context.Context, fid int64, details NotificationDetails) error
	DeleteUserNotificationDetails(ctx context.Context, fid int64) error
	GetNotificationDetailsByFIDs(ctx context.Context, fids []int64) (map[int64]NotificationDetails, error)
	GetAllNotificationDetails(ctx context.Context) (map[int64]NotificationDetails, error)

	// song
	GetSong(ctx context.Context, id uint) (*Song, error)
	ListSongs(ctx context.Context) ([]*Song, error)
	CreateSong(ctx context.Context, song *Song) error

	// collection
	GetCollection(ctx context.Context, userID, songID uint) (*Collection, error)
	UpsertCollection(ctx context.Context, userID, songID uint, delta int64) (*Collection, error)
	// UpsertCollectionByFID creates the user if needed and adds delta in one transaction.
	UpsertCollectionByFID(ctx context.Context, fid int64, songID uint, delta int64) (*Collection, error)
	LeaderboardRank(ctx context.Context, songID, userID uint) (int, error)

	// global state
	GetPrelaunch(ctx context.Context) (bool, error)
	SetPrelaunch(ctx context.Context, prelaunch bool) error
}
