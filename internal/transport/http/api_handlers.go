package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/plasmarift/lobby-server/internal/autohost"
	"github.com/plasmarift/lobby-server/internal/core"
)

// APIHandlers provides the read-only operational endpoints.
type APIHandlers struct {
	registry *core.Registry
	fleet    *autohost.Manager
	log      *zerolog.Logger
}

// NewAPIHandlers creates the handler set.
func NewAPIHandlers(registry *core.Registry, fleet *autohost.Manager, logger *zerolog.Logger) *APIHandlers {
	return &APIHandlers{
		registry: registry,
		fleet:    fleet,
		log:      logger,
	}
}

// StatusResponse summarizes registry and fleet occupancy.
type StatusResponse struct {
	Users     int            `json:"users"`
	ChatRooms int            `json:"chatRooms"`
	GameRooms int            `json:"gameRooms"`
	Autohosts map[string]int `json:"autohosts"`
}

// Status reports current counters.
// GET /api/status
func (h *APIHandlers) Status(c *gin.Context) {
	users, chats, games := h.registry.Counts()
	c.JSON(stdhttp.StatusOK, StatusResponse{
		Users:     users,
		ChatRooms: chats,
		GameRooms: games,
		Autohosts: h.fleet.Loads(),
	})
}
