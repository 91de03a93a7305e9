package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/argus-labs/tabletop/server/types"
)

type GetHealthResponse struct {
	WorldID  string `json:"worldId"`
	Entities int    `json:"entities"`
	Pending  int    `json:"pending"`
	Tracking bool   `json:"tracking"`
}

// GetHealth reports the world id and the size of the store.
func GetHealth(p types.Provider) func(*fiber.Ctx) error {
	return func(ctx *fiber.Ctx) error {
		store := p.Store()
		stats := store.Stats()
		return ctx.JSON(GetHealthResponse{
			WorldID:  p.WorldID(),
			Entities: stats.Entities,
			Pending:  stats.Pending,
			Tracking: store.TracksChanges(),
		})
	}
}
