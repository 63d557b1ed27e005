package api

import (
	"context"
	"errors"
	"net/http"

	"minter/internal/blockchain"
	"minter/internal/checkout"
	"minter/internal/metrics"
	"minter/internal/notify"
	"minter/internal/storage"

	"github.com/gin-gonic/gin"
)

type CheckoutService interface {
	Open(ctx context.Context, req checkout.OpenRequest) (*checkout.Session, error)
	Get(id string) (*checkout.Session, error)
	Close(id string) error
	StartPurchase(ctx context.Context, id string) error
}

type Broadcaster interface {
	Broadcast(ctx context.Context, fids []int64, notification notify.Notification) (*notify.Result, error)
}

// AppKeyVerifier checks that a webhook signing key is an app key currently
// registered for the FID.
type AppKeyVerifier interface {
	IsActiveAppKey(ctx context.Context, fid int64, key string) (bool, error)
}

type Handler struct {
	checkout   CheckoutService
	store      storage.Storage
	notifier   Broadcaster
	appKeys    AppKeyVerifier
	adminToken string
}

func NewHandler(checkout CheckoutService, store storage.Storage, notifier Broadcaster, appKeys AppKeyVerifier, adminToken string) *Handler {
	return &Handler{
		checkout:   checkout,
		store:      store,
		notifier:   notifier,
		appKeys:    appKeys,
		adminToken: adminToken,
	}
}

func NewRouter(h *Handler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger())
	h.RegisterRoutes(router)
	return router
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	sessions := router.Group("/checkout")
	{
		sessions.POST("", h.OpenCheckout)
		sessions.GET("/:id", h.GetCheckout)
		sessions.PUT("/:id/quantity", h.SetQuantity)
		sessions.PUT("/:id/method", h.SetPaymentMethod)
		sessions.POST("/:id/purchase", h.Purchase)
		sessions.DELETE("/:id", h.CloseCheckout)
	}

	router.GET("/songs", h.ListSongs)
	router.GET("/songs/:id", h.GetSong)
	router.GET("/state", h.GetState)
	router.POST("/webhook", h.Webhook)

	admin := router.Group("/admin")
	admin.Use(AdminAuth(h.adminToken))
	{
		admin.PUT("/prelaunch", h.SetPrelaunch)
		admin.POST("/songs", h.CreateSong)
		admin.POST("/notifications", h.SendNotification)
	}

	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	// health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, checkout.ErrSessionNotFound), errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, checkout.ErrInvalidQuantity),
		errors.Is(err, checkout.ErrInvalidPaymentMethod),
		errors.Is(err, blockchain.ErrInvalidAddress):
		return http.StatusBadRequest
	case errors.Is(err, checkout.ErrInsufficientBalance),
		errors.Is(err, checkout.ErrInFlight),
		errors.Is(err, checkout.ErrInvalidTransition),
		errors.Is(err, checkout.ErrSessionClosed),
		errors.Is(err, checkout.ErrSaleNotOpen):
		return http.StatusConflict
	case errors.Is(err, checkout.ErrInvalidRate):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func abortWithError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(statusFor(err), gin.H{"error": err.Error()})
}
