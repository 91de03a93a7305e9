package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rotisserie/eris"

	"github.com/argus-labs/tabletop/gamedata"
	"github.com/argus-labs/tabletop/query"
	"github.com/argus-labs/tabletop/server/types"
	"github.com/argus-labs/tabletop/snapshot"
)

// EntityResponse is an entity as readers currently see it, uncommitted changes included.
type EntityResponse struct {
	snapshot.Object
	HeldBy   int64 `json:"heldBy"`
	Modified bool  `json:"modified"`
}

type GetEntitiesResponse struct {
	Entities []EntityResponse `json:"entities"`
}

// GetEntities lists the entities matching the optional query and where parameters. query uses the key=value
// query language, where is an expr-lang boolean expression.
func GetEntities(p types.Provider) func(*fiber.Ctx) error {
	return func(ctx *fiber.Ctx) error {
		var q *query.Query
		if raw := ctx.Query("query"); raw != "" {
			parsed, err := query.Parse(raw)
			if err != nil {
				return fiber.NewError(fiber.StatusBadRequest, err.Error())
			}
			q = parsed
			if block := ctx.Query("block"); block != "" {
				q = q.InBlock(block)
			}
		}

		matches, err := p.Store().Search(q, ctx.Query("where"))
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		res := GetEntitiesResponse{Entities: make([]EntityResponse, 0, len(matches))}
		for _, e := range matches {
			res.Entities = append(res.Entities, entityResponse(e))
		}
		return ctx.JSON(res)
	}
}

// GetEntity returns one entity by id, 404 when it does not exist.
func GetEntity(p types.Provider) func(*fiber.Ctx) error {
	return func(ctx *fiber.Ctx) error {
		id, err := ctx.ParamsInt("id", -1)
		if err != nil || id < 0 {
			return fiber.NewError(fiber.StatusBadRequest, "invalid entity id: "+ctx.Params("id"))
		}

		e, err := p.Store().Entity(gamedata.ID(id))
		if err != nil {
			if eris.Is(err, gamedata.ErrEntityNotFound) {
				return fiber.NewError(fiber.StatusNotFound, err.Error())
			}
			return err
		}
		return ctx.JSON(entityResponse(e))
	}
}

func entityResponse(e *gamedata.Entity) EntityResponse {
	data := e.Data()
	return EntityResponse{
		Object:   snapshot.NewObject(data),
		HeldBy:   int64(data.HeldBy),
		Modified: e.IsModified(),
	}
}
