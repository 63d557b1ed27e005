package api

import (
	"time"

	"minter/internal/storage"

	"github.com/shopspring/decimal"
)

type SetQuantityRequest struct {
	Quantity int64 `json:"quantity" binding:"required"`
}

type SetPaymentMethodRequest struct {
	PaymentMethod string `json:"paymentMethod" binding:"required"`
}

type SetPrelaunchRequest struct {
	Prelaunch *bool `json:"prelaunch" binding:"required"`
}

type CreateSongRequest struct {
	Title      string          `json:"title" binding:"required"`
	ArtistName string          `json:"artistName" binding:"required"`
	ArtistFID  int64           `json:"artistFid"`
	TokenID    uint64          `json:"tokenId" binding:"required"`
	PriceUSD   decimal.Decimal `json:"priceUsd"`
	ImageURL   string          `json:"imageUrl"`
	AudioURL   string          `json:"audioUrl"`
}

type SendNotificationRequest struct {
	Title     string  `json:"title" binding:"required"`
	Body      string  `json:"body" binding:"required"`
	TargetURL string  `json:"targetUrl" binding:"required"`
	FIDs      []int64 `json:"fids"`
}

type CollectorResponse struct {
	FID    int64 `json:"fid"`
	Amount int64 `json:"amount"`
	Rank   int   `json:"rank"`
}

type SongResponse struct {
	ID         uint                `json:"id"`
	Title      string              `json:"title"`
	ArtistName string              `json:"artistName"`
	ArtistFID  int64               `json:"artistFid"`
	TokenID    uint64              `json:"tokenId"`
	PriceUSD   decimal.Decimal     `json:"priceUsd"`
	ImageURL   string              `json:"imageUrl"`
	AudioURL   string              `json:"audioUrl"`
	Collectors []CollectorResponse `json:"collectors,omitempty"`
	CreatedAt  time.Time           `json:"createdAt"`
}

func toSongResponse(song *storage.Song) SongResponse {
	response := SongResponse{
		ID:         song.ID,
		Title:      song.Title,
		ArtistName: song.ArtistName,
		ArtistFID:  song.ArtistFID,
		TokenID:    song.TokenID,
		PriceUSD:   song.PriceUSD,
		ImageURL:   song.ImageURL,
		AudioURL:   song.AudioURL,
		CreatedAt:  song.CreatedAt,
	}
	// collectors come ordered by amount desc, earlier collector first
	for i, collector := range song.Collectors {
		response.Collectors = append(response.Collectors, CollectorResponse{
			FID:    collector.User.FID,
			Amount: collector.Amount,
			Rank:   i + 1,
		})
	}
	return response
}
