package routes

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/vault-pay/vault_pay/internal/asset"
)

// RegisterAssetRoutes wires the asset catalog endpoint.
func RegisterAssetRoutes(r fiber.Router, repo asset.Repository) {
	r.Get("/assets", func(c *fiber.Ctx) error {
		assets, err := repo.List(c.UserContext())
		if err != nil {
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
		out := make([]fiber.Map, 0, len(assets))
		for _, a := range assets {
			out = append(out, fiber.Map{"id": a.ID, "name": a.Name, "scale": a.Scale})
		}
		return c.Status(http.StatusOK).JSON(fiber.Map{"assets": out})
	})
}
