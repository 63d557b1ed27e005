package storage

import (
	"context"
	"errors"
	"time"

	"minter/internal/logger"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

const globalStateID = 1

type SqliteStorage struct {
	db *gorm.DB
}

func NewSqliteStorage(path string) (*SqliteStorage, error) {

	logger.Debug("initializing database...", zap.String("path", path))
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}

	err = db.AutoMigrate(
		&User{},
		&Song{},
		&Collection{},
		&GlobalState{},
	)
	if err != nil {
		return nil, err
	}

	logger.Debug("initializing database... done")
	return &SqliteStorage{
		db: db,
	}, nil
}

func (s *SqliteStorage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func (s *SqliteStorage) GetUserByFID(ctx context.Context, fid int64) (*User, error) {

	var user User
	err := s.db.WithContext(ctx).Where("fid = ?", fid).First(&user).Error
	if err != nil {
		return nil, notFound(err)
	}

	return &user, nil
}

func (s *SqliteStorage) GetOrCreateUser(ctx context.Context, fid int64) (*User, error) {
	logger.Debug("get or create user...", zap.Int64("fid", fid))

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "fid"}},
		DoNothing: true,
	}).Create(&User{FID: fid}).Error
	if err != nil {
		return nil, err
	}

	user, err := s.GetUserByFID(ctx, fid)
	if err != nil {
		return nil, err
	}

	logger.Debug("get or create user... done", zap.Uint("user id", user.ID))
	return user, nil
}

func (s *SqliteStorage) GetUserNotificationDetails(ctx context.Context, fid int64) (*NotificationDetails, error) {

	user, err := s.GetUserByFID(ctx, fid)
	if err != nil {
		return nil, err
	}

	if user.NotificationToken == "" || user.NotificationURL == "" {
		return nil, ErrNotFound
	}

	return &NotificationDetails{URL: user.NotificationURL, Token: user.NotificationToken}, nil
}

func (s *SqliteStorage) SetUserNotificationDetails(ctx context.Context, fid int64, details NotificationDetails) error {
	logger.Debug("updating notification details...", zap.Int64("fid", fid))

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "fid"}},
		DoUpdates: clause.AssignmentColumns([]string{"notification_url", "notification_token", "updated_at"}),
	}).Create(&User{
		FID:               fid,
		NotificationURL:   details.URL,
		NotificationToken: details.Token,
	}).Error
	if err != nil {
		return err
	}

	logger.Debug("updating notification details... done")
	return nil
}

func (s *SqliteStorage) DeleteUserNotificationDetails(ctx context.Context, fid int64) error {
	logger.Debug("clearing notification details...", zap.Int64("fid", fid))

	err := s.db.WithContext(ctx).Model(&User{}).Where("fid = ?", fid).Updates(map[string]any{
		"notification_url":   "",
		"notification_token": "",
		"updated_at":         time.Now(),
	}).Error
	if err != nil {
		return err
	}

	logger.Debug("clearing notification details... done")
	return nil
}

func (s *SqliteStorage) GetNotificationDetailsByFIDs(ctx context.Context, fids []int64) (map[int64]NotificationDetails, error) {
	if len(fids) == 0 {
		return map[int64]NotificationDetails{}, nil
	}

	var users []*User
	err := s.db.WithContext(ctx).
		Where("fid in ? and notification_token <> '' and notification_url <> ''", fids).
		Find(&users).Error
	if err != nil {
		return nil, err
	}

	return detailsByFID(users), nil
}

func (s *SqliteStorage) GetAllNotificationDetails(ctx context.Context) (map[int64]NotificationDetails, error) {

	var users []*User
	err := s.db.WithContext(ctx).
		Where("notification_token <> '' and notification_url <> ''").
		Find(&users).Error
	if err != nil {
		return nil, err
	}

	return detailsByFID(users), nil
}

func detailsByFID(users []*User) map[int64]NotificationDetails {
	details := make(map[int64]NotificationDetails, len(users))
	for _, user := range users {
		details[user.FID] = NotificationDetails{URL: user.NotificationURL, Token: user.NotificationToken}
	}
	return details
}

func (s *SqliteStorage) GetSong(ctx context.Context, id uint) (*Song, error) {

	var song Song
	err := s.db.WithContext(ctx).
		Preload("Collectors", func(db *gorm.DB) *gorm.DB {
			return db.Order("amount desc, id asc")
		}).
		Preload("Collectors.User").
		First(&song, id).Error
	if err != nil {
		return nil, notFound(err)
	}

	return &song, nil
}

func (s *SqliteStorage) ListSongs(ctx context.Context) ([]*Song, error) {

	var songs []*Song
	err := s.db.WithContext(ctx).Order("id asc").Find(&songs).Error
	if err != nil {
		return nil, err
	}

	return songs, nil
}

func (s *SqliteStorage) CreateSong(ctx context.Context, song *Song) error {
	logger.Debug("creating song...", zap.String("title", song.Title), zap.Uint64("token id", song.TokenID))

	err := s.db.WithContext(ctx).Omit("Collectors").Create(song).Error
	if err != nil {
		return err
	}

	logger.Debug("creating song... done", zap.Uint("song id", song.ID))
	return nil
}

func (s *SqliteStorage) GetCollection(ctx context.Context, userID, songID uint) (*Collection, error) {

	var collection Collection
	err := s.db.WithContext(ctx).Where("user_id = ? and song_id = ?", userID, songID).First(&collection).Error
	if err != nil {
		return nil, notFound(err)
	}

	return &collection, nil
}

// UpsertCollection creates the (user, song) row on the first mint and adds delta to
// the stored amount on every later one.
func (s *SqliteStorage) UpsertCollection(ctx context.Context, userID, songID uint, delta int64) (*Collection, error) {
	if delta <= 0 {
		return nil, ErrInvalidAmount
	}

	logger.Debug("upserting collection...", zap.Uint("user id", userID), zap.Uint("song id", songID), zap.Int64("delta", delta))

	var collection *Collection
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		collection, err = upsertCollection(tx, userID, songID, delta)
		return err
	})
	if err != nil {
		return nil, err
	}

	logger.Debug("upserting collection... done", zap.Int64("amount", collection.Amount))
	return collection, nil
}

func (s *SqliteStorage) UpsertCollectionByFID(ctx context.Context, fid int64, songID uint, delta int64) (*Collection, error) {
	if delta <= 0 {
		return nil, ErrInvalidAmount
	}

	logger.Debug("upserting collection by fid...", zap.Int64("fid", fid), zap.Uint("song id", songID), zap.Int64("delta", delta))

	var collection *Collection
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "fid"}},
			DoNothing: true,
		}).Create(&User{FID: fid}).Error
		if err != nil {
			return err
		}

		var user User
		if err := tx.Where("fid = ?", fid).First(&user).Error; err != nil {
			return err
		}

		collection, err = upsertCollection(tx, user.ID, songID, delta)
		return err
	})
	if err != nil {
		return nil, notFound(err)
	}

	logger.Debug("upserting collection by fid... done", zap.Uint("user id", collection.UserID), zap.Int64("amount", collection.Amount))
	return collection, nil
}

func upsertCollection(tx *gorm.DB, userID, songID uint, delta int64) (*Collection, error) {
	err := tx.Omit(clause.Associations).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "song_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"amount":     gorm.Expr("amount + ?", delta),
			"updated_at": time.Now(),
		}),
	}).Create(&Collection{UserID: userID, SongID: songID, Amount: delta}).Error
	if err != nil {
		return nil, err
	}

	var collection Collection
	if err := tx.Where("user_id = ? and song_id = ?", userID, songID).First(&collection).Error; err != nil {
		return nil, err
	}
	return &collection, nil
}

// LeaderboardRank is the 1-based position of the user among the song's collectors,
// ordered by amount descending, earlier collectors first on equal amounts.
func (s *SqliteStorage) LeaderboardRank(ctx context.Context, songID, userID uint) (int, error) {

	mine, err := s.GetCollection(ctx, userID, songID)
	if err != nil {
		return 0, err
	}

	var ahead int64
	err = s.db.WithContext(ctx).Model(&Collection{}).
		Where("song_id = ? and (amount > ? or (amount = ? and id < ?))", songID, mine.Amount, mine.Amount, mine.ID).
		Count(&ahead).Error
	if err != nil {
		return 0, err
	}

	return int(ahead) + 1, nil
}

func (s *SqliteStorage) GetPrelaunch(ctx context.Context) (bool, error) {

	state := GlobalState{ID: globalStateID, Prelaunch: true}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&state).Error
	if err != nil {
		return false, err
	}

	var stored GlobalState
	err = s.db.WithContext(ctx).First(&stored, globalStateID).Error
	if err != nil {
		return false, err
	}

	return stored.Prelaunch, nil
}

func (s *SqliteStorage) SetPrelaunch(ctx context.Context, prelaunch bool) error {
	logger.Info("updating prelaunch state...", zap.Bool("prelaunch", prelaunch))

	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"prelaunch", "updated_at"}),
	}).Create(&GlobalState{ID: globalStateID, Prelaunch: prelaunch}).Error
}
