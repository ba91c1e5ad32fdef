package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/plasmarift/lobby-server/internal/auth"
	"github.com/plasmarift/lobby-server/internal/autohost"
	"github.com/plasmarift/lobby-server/internal/config"
	"github.com/plasmarift/lobby-server/internal/core"
)

// NewServer builds the HTTP server: health and status endpoints plus the
// client and autohost websocket upgrades.
func NewServer(router *core.Router, registry *core.Registry, fleet *autohost.Manager, tokenCfg *auth.TokenConfig, cfg config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), LoggerMiddleware(logger))

	engine.GET("/healthz", healthHandler)

	api := NewAPIHandlers(registry, fleet, logger)
	engine.GET("/api/status", api.Status)

	engine.GET("/ws", NewWSHandler(router, logger))
	engine.GET("/autohost", NewAutohostHandler(fleet, tokenCfg, logger))

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           engine,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
