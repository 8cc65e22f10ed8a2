package http

import (
	"net/http"

	appperms "github.com/astro-web3/txcache-auth/internal/app/perms"
	"github.com/astro-web3/txcache-auth/internal/config"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

func NewRouter(handler *Handler, permsService appperms.Service, cfg *config.Config) *gin.Engine {
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()

	router.Use(gin.Recovery())
	if cfg.Observability.TraceEnabled {
		router.Use(otelgin.Middleware(serviceName))
	}
	router.Use(requestIDMiddleware())
	router.Use(loggingMiddleware())

	router.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	api := router.Group("/api/v1")
	api.Use(RequirePermission(permsService, cfg.Perms.ExposeReasons))
	{
		api.GET("/bundles", handler.GetBundles)
		api.GET("/bundles/:id", handler.GetBundle)
		api.POST("/bundles", handler.SubmitBundle)
		api.GET("/transactions", handler.GetTransactions)
	}

	return router
}
