package api

import (
	"net/http"

	"minter/internal/checkout"
	"minter/internal/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// POST /checkout
func (h *Handler) OpenCheckout(c *gin.Context) {
	var req checkout.OpenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid checkout request"})
		return
	}

	session, err := h.checkout.Open(c.Request.Context(), req)
	if err != nil {
		abortWithError(c, err)
		return
	}

	if err := session.Refresh(c.Request.Context()); err != nil {
		logger.Warn("api: checkout refresh failed", zap.String("session", session.ID), zap.Error(err))
	}
	c.JSON(http.StatusCreated, session.Snapshot())
}

// GET /checkout/:id
func (h *Handler) GetCheckout(c *gin.Context) {
	session, err := h.checkout.Get(c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}

	if session.State() == checkout.Initial {
		if err := session.Refresh(c.Request.Context()); err != nil {
			logger.Warn("api: checkout refresh failed", zap.String("session", session.ID), zap.Error(err))
		}
	}
	c.JSON(http.StatusOK, session.Snapshot())
}

// PUT /checkout/:id/quantity
func (h *Handler) SetQuantity(c *gin.Context) {
	session, err := h.checkout.Get(c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}

	var req SetQuantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "quantity is required"})
		return
	}

	if err := session.SetQuantity(req.Quantity); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, session.Snapshot())
}

// PUT /checkout/:id/method
func (h *Handler) SetPaymentMethod(c *gin.Context) {
	session, err := h.checkout.Get(c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}

	var req SetPaymentMethodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "paymentMethod is required"})
		return
	}

	method, err := checkout.ParsePaymentMethod(req.PaymentMethod)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if err := session.SetPaymentMethod(method); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, session.Snapshot())
}

// POST /checkout/:id/purchase
func (h *Handler) Purchase(c *gin.Context) {
	id := c.Param("id")
	if err := h.checkout.StartPurchase(c.Request.Context(), id); err != nil {
		abortWithError(c, err)
		return
	}

	session, err := h.checkout.Get(id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, session.Snapshot())
}

// DELETE /checkout/:id
func (h *Handler) CloseCheckout(c *gin.Context) {
	if err := h.checkout.Close(c.Param("id")); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
