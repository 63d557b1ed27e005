package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

type User struct {
	ID                uint   `gorm:"primaryKey"`
	FID               int64  `gorm:"column:fid;uniqueIndex;not null"`
	NotificationURL   string `gorm:"column:notification_url"`
	NotificationToken string `gorm:"column:notification_token"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type Song struct {
	ID         uint            `gorm:"primaryKey"`
	Title      string          `gorm:"not null"`
	ArtistName string          `gorm:"not null"`
	ArtistFID  int64           `gorm:"column:artist_fid"`
	TokenID    uint64          `gorm:"uniqueIndex;not null"`
	PriceUSD   decimal.Decimal `gorm:"column:price_usd;type:text;not null"`
	ImageURL   string
	AudioURL   string
	Collectors []Collection `gorm:"foreignKey:SongID"`
	CreatedAt  time.Time
}

// Collection is the cumulative amount of one song minted by one user.
type Collection struct {
	ID        uint  `gorm:"primaryKey"`
	UserID    uint  `gorm:"uniqueIndex:idx_collection_user_song;not null"`
	SongID    uint  `gorm:"uniqueIndex:idx_collection_user_song;not null"`
	Amount    int64 `gorm:"not null"`
	User      User
	CreatedAt time.Time
	UpdatedAt time.Time
}

type GlobalState struct {
	ID        uint `gorm:"primaryKey"`
	Prelaunch bool `gorm:"not null"`
	UpdatedAt time.Time
}

type NotificationDetails struct {
	URL   string `json:"url"`
	Token string `json:"token"`
}
