package api

import (
	"net/http"

	"minter/internal/logger"
	"minter/internal/notify"
	"minter/internal/storage"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// PUT /admin/prelaunch
func (h *Handler) SetPrelaunch(c *gin.Context) {
	var req SetPrelaunchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "prelaunch is required"})
		return
	}

	if err := h.store.SetPrelaunch(c.Request.Context(), *req.Prelaunch); err != nil {
		abortWithError(c, err)
		return
	}

	logger.Info("api: prelaunch updated", zap.Bool("prelaunch", *req.Prelaunch))
	c.JSON(http.StatusOK, gin.H{"prelaunch": *req.Prelaunch})
}

// POST /admin/songs
func (h *Handler) CreateSong(c *gin.Context) {
	var req CreateSongRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid song"})
		return
	}
	if !req.PriceUSD.IsPositive() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "priceUsd must be positive"})
		return
	}

	song := &storage.Song{
		Title:      req.Title,
		ArtistName: req.ArtistName,
		ArtistFID:  req.ArtistFID,
		TokenID:    req.TokenID,
		PriceUSD:   req.PriceUSD,
		ImageURL:   req.ImageURL,
		AudioURL:   req.AudioURL,
	}
	if err := h.store.CreateSong(c.Request.Context(), song); err != nil {
		abortWithError(c, err)
		return
	}

	logger.Info("api: song created", zap.Uint("song", song.ID), zap.Uint64("token", song.TokenID))
	c.JSON(http.StatusCreated, toSongResponse(song))
}

// POST /admin/notifications
func (h *Handler) SendNotification(c *gin.Context) {
	var req SendNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "title, body and targetUrl are required"})
		return
	}

	result, err := h.notifier.Broadcast(c.Request.Context(), req.FIDs, notify.Notification{
		Title:     req.Title,
		Body:      req.Body,
		TargetURL: req.TargetURL,
	})
	if err != nil && result == nil {
		abortWithError(c, err)
		return
	}
	if err != nil {
		logger.Warn("api: notification partially delivered", zap.Error(err))
	}
	c.JSON(http.StatusOK, result)
}
