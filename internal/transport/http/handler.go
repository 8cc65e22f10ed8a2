package http

import (
	"net/http"
	"strconv"

	"log/slog"

	"github.com/astro-web3/txcache-auth/internal/infra/txcache"
	"github.com/astro-web3/txcache-auth/pkg/logger"
	"github.com/astro-web3/txcache-auth/pkg/tracer"
	"github.com/gin-gonic/gin"
)

// Handler exposes the permission-gated transaction-cache API surface.
type Handler struct {
	txCache *txcache.Client
}

func NewHandler(txCache *txcache.Client) *Handler {
	return &Handler{txCache: txCache}
}

func (h *Handler) GetBundles(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "transport.http.GetBundles")
	defer span.End()

	var page *txcache.Pagination
	if cursor, limit := c.Query("cursor"), c.Query("limit"); cursor != "" || limit != "" {
		page = &txcache.Pagination{Cursor: cursor}
		if limit != "" {
			n, err := strconv.Atoi(limit)
			if err != nil || n < 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
				return
			}
			page.Limit = n
		}
	}

	bundles, err := h.txCache.GetBundles(ctx, page)
	if err != nil {
		span.RecordError(err)
		logger.ErrorContext(ctx, "failed to get bundles", slog.String("error", err.Error()))
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to query transaction cache"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"bundles": bundles})
}

func (h *Handler) GetBundle(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "transport.http.GetBundle")
	defer span.End()

	bundle, err := h.txCache.GetBundle(ctx, c.Param("id"))
	if err != nil {
		span.RecordError(err)
		logger.ErrorContext(ctx, "failed to get bundle", slog.String("error", err.Error()))
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to query transaction cache"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"bundle": bundle})
}

func (h *Handler) SubmitBundle(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "transport.http.SubmitBundle")
	defer span.End()

	var bundle txcache.Bundle
	if err := c.ShouldBindJSON(&bundle); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid bundle payload"})
		return
	}

	submitted, err := h.txCache.SubmitBundle(ctx, bundle)
	if err != nil {
		span.RecordError(err)
		logger.ErrorContext(ctx, "failed to submit bundle", slog.String("error", err.Error()))
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to submit to transaction cache"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"bundle": submitted})
}

func (h *Handler) GetTransactions(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "transport.http.GetTransactions")
	defer span.End()

	txs, err := h.txCache.GetTransactions(ctx)
	if err != nil {
		span.RecordError(err)
		logger.ErrorContext(ctx, "failed to get transactions", slog.String("error", err.Error()))
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to query transaction cache"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"transactions": txs})
}
