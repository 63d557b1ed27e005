package api

import (
	"crypto/ed25519"
	"encoding/base64"
	"net/http"
	"strings"

	"minter/internal/logger"
	"minter/internal/storage"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

const (
	eventMiniAppAdded          = "miniapp_added"
	eventMiniAppRemoved        = "miniapp_removed"
	eventNotificationsEnabled  = "notifications_enabled"
	eventNotificationsDisabled = "notifications_disabled"

	headerTypeAppKey = "app_key"
)

// signedEvent is the JSON envelope the mini-app host posts: base64url header
// and payload plus an ed25519 signature over "header.payload".
type signedEvent struct {
	Header    string `json:"header" binding:"required"`
	Payload   string `json:"payload" binding:"required"`
	Signature string `json:"signature" binding:"required"`
}

// decodeSegment accepts base64url with or without padding.
func decodeSegment(segment string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(segment, "="))
}

// POST /webhook
func (h *Handler) Webhook(c *gin.Context) {
	var req signedEvent
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event"})
		return
	}

	header, err := decodeSegment(req.Header)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid header encoding"})
		return
	}
	payload, err := decodeSegment(req.Payload)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload encoding"})
		return
	}
	signature, err := decodeSegment(req.Signature)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature encoding"})
		return
	}

	fid := gjson.GetBytes(header, "fid").Int()
	if fid <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing fid"})
		return
	}
	if gjson.GetBytes(header, "type").String() != headerTypeAppKey {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported signer type"})
		return
	}

	key := gjson.GetBytes(header, "key").String()
	publicKey, err := hexutil.Decode(key)
	if err != nil || len(publicKey) != ed25519.PublicKeySize {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid app key"})
		return
	}
	if !ed25519.Verify(publicKey, []byte(req.Header+"."+req.Payload), signature) {
		logger.Warn("api: webhook signature rejected", zap.Int64("fid", fid))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}

	ctx := c.Request.Context()

	active, err := h.appKeys.IsActiveAppKey(ctx, fid, key)
	if err != nil {
		logger.Error("api: cannot verify app key", zap.Int64("fid", fid), zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "cannot verify app key"})
		return
	}
	if !active {
		logger.Warn("api: webhook app key not active", zap.Int64("fid", fid), zap.String("key", key))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "app key not active"})
		return
	}

	event := gjson.GetBytes(payload, "event").String()

	switch event {
	case eventMiniAppAdded, eventNotificationsEnabled:
		details := gjson.GetBytes(payload, "notificationDetails")
		if !details.Exists() {
			break
		}
		err = h.store.SetUserNotificationDetails(ctx, fid, storage.NotificationDetails{
			URL:   details.Get("url").String(),
			Token: details.Get("token").String(),
		})
	case eventMiniAppRemoved, eventNotificationsDisabled:
		err = h.store.DeleteUserNotificationDetails(ctx, fid)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown event"})
		return
	}
	if err != nil {
		abortWithError(c, err)
		return
	}

	logger.Info("api: webhook event", zap.String("event", event), zap.Int64("fid", fid))
	c.JSON(http.StatusOK, gin.H{"success": true})
}
