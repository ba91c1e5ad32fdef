package http

import (
	"net"
	stdhttp "net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/plasmarift/lobby-server/internal/auth"
	"github.com/plasmarift/lobby-server/internal/autohost"
)

// NewAutohostHandler upgrades autohost fleet connections. When a shared
// secret is configured, the peer must present a bearer token minted with
// it; without one the endpoint is open (development setups).
func NewAutohostHandler(fleet *autohost.Manager, tokenCfg *auth.TokenConfig, logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if len(tokenCfg.Secret) > 0 {
			if !autohostAuthorized(c, tokenCfg, logger) {
				c.JSON(stdhttp.StatusUnauthorized, gin.H{"error": "invalid autohost token"})
				return
			}
		}

		conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			logger.Error().Err(err).Msg("autohost ws accept error")
			return
		}

		addr := peerAddr(c.Request)
		fleet.Register(addr, conn)
		defer fleet.Disconnect(addr)

		// Autohosts only receive directives; drain the connection until
		// it drops.
		ctx := c.Request.Context()
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				conn.Close(websocket.StatusNormalClosure, "closing")
				return
			}
		}
	}
}

func autohostAuthorized(c *gin.Context, tokenCfg *auth.TokenConfig, logger *zerolog.Logger) bool {
	header := c.GetHeader("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		logger.Debug().Msg("autohost connection without bearer token")
		return false
	}
	if _, err := auth.ValidateAutohostToken(tokenCfg, parts[1]); err != nil {
		logger.Debug().Err(err).Msg("autohost token rejected")
		return false
	}
	return true
}

func peerAddr(r *stdhttp.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
