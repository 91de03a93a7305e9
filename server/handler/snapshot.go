package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/argus-labs/tabletop/gamedata"
	"github.com/argus-labs/tabletop/server/types"
	"github.com/argus-labs/tabletop/snapshot"
)

func GetSnapshot(p types.Provider) func(*fiber.Ctx) error {
	return func(ctx *fiber.Ctx) error {
		snap, err := p.Snapshot()
		if err != nil {
			return err
		}
		return ctx.JSON(snap)
	}
}

type PostReconcileResponse struct {
	Changes []gamedata.Change `json:"changes"`
}

// PostReconcile takes a snapshot document and answers with the changes that turn it into this world's
// committed state. The world itself is not modified.
func PostReconcile(p types.Provider) func(*fiber.Ctx) error {
	return func(ctx *fiber.Ctx) error {
		doc, err := snapshot.Decode(ctx.Body())
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "failed to parse document: "+err.Error())
		}
		base, err := snapshot.Restore(gamedata.NewSession(), doc)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "failed to restore document: "+err.Error())
		}

		changes := gamedata.BuildChanges(base, p.Store())
		if changes == nil {
			changes = []gamedata.Change{}
		}
		return ctx.JSON(PostReconcileResponse{Changes: changes})
	}
}
