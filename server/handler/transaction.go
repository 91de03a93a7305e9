package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rotisserie/eris"

	"github.com/argus-labs/tabletop/gamedata"
	"github.com/argus-labs/tabletop/server/types"
)

type GetPendingResponse struct {
	Changes []gamedata.Change `json:"changes"`
}

func GetPending(p types.Provider) func(*fiber.Ctx) error {
	return func(ctx *fiber.Ctx) error {
		changes := p.Store().Pending()
		if changes == nil {
			changes = []gamedata.Change{}
		}
		return ctx.JSON(GetPendingResponse{Changes: changes})
	}
}

// PostCommit commits the pending transaction. Read-only worlds answer 409.
func PostCommit(p types.Provider) func(*fiber.Ctx) error {
	return func(ctx *fiber.Ctx) error {
		res, err := p.Commit(ctx.UserContext())
		if err != nil {
			if eris.Is(err, types.ErrReadOnly) {
				return fiber.NewError(fiber.StatusConflict, err.Error())
			}
			return err
		}
		if res.Changes == nil {
			res.Changes = []gamedata.Change{}
		}
		return ctx.JSON(res)
	}
}

type PostRollbackResponse struct {
	Discarded int `json:"discarded"`
}

func PostRollback(p types.Provider) func(*fiber.Ctx) error {
	return func(ctx *fiber.Ctx) error {
		discarded := len(p.Store().Pending())
		p.Rollback()
		return ctx.JSON(PostRollbackResponse{Discarded: discarded})
	}
}
