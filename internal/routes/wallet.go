package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/vault-pay/vault_pay/internal/transactions"
)

// RegisterWalletRoutes wires transaction execution and wallet query endpoints.
func RegisterWalletRoutes(r fiber.Router, h *transactions.Handler, rateLimiter fiber.Handler) {
	r.Post("/wallet/topup", rateLimiter, h.Topup)
	r.Post("/wallet/bonus", rateLimiter, h.Bonus)
	r.Post("/wallet/spend", rateLimiter, h.Spend)
	r.Get("/wallet/:userId/balance", h.Balance)
	r.Get("/wallet/:userId/ledger", h.Ledger)
}
