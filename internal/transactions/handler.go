package transactions

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/vault-pay/vault_pay/internal/ledger"
)

// Handler exposes wallet transaction endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a transaction handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type transactionRequest struct {
	UserID         string          `json:"user_id"`
	AssetID        string          `json:"asset_id"`
	Amount         decimal.Decimal `json:"amount"`
	IdempotencyKey string          `json:"idempotency_key"`
	Metadata       map[string]any  `json:"metadata"`
}

type transactionResponse struct {
	ID             string         `json:"id"`
	IdempotencyKey string         `json:"idempotency_key"`
	Type           string         `json:"type"`
	Status         string         `json:"status"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// Topup credits a user wallet from the asset's treasury.
func (h *Handler) Topup(c *fiber.Ctx) error {
	return h.execute(c, ledger.TypeTopup, http.StatusCreated)
}

// Bonus credits a user wallet as a promotional grant.
func (h *Handler) Bonus(c *fiber.Ctx) error {
	return h.execute(c, ledger.TypeBonus, http.StatusCreated)
}

// Spend debits a user wallet back to the treasury.
func (h *Handler) Spend(c *fiber.Ctx) error {
	return h.execute(c, ledger.TypeSpend, http.StatusOK)
}

func (h *Handler) execute(c *fiber.Ctx, txType string, successStatus int) error {
	var req transactionRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if req.UserID == "" || req.AssetID == "" {
		return fiber.NewError(http.StatusBadRequest, "user_id and asset_id are required")
	}
	if !req.Amount.IsPositive() {
		return fiber.NewError(http.StatusBadRequest, "amount must be positive")
	}

	metadata := req.Metadata
	if metadata == nil {
		metadata = map[string]any{"source": "api"}
	}

	tx, err := h.service.Execute(c.UserContext(), Request{
		UserID:         req.UserID,
		AssetID:        req.AssetID,
		Amount:         req.Amount,
		Type:           txType,
		IdempotencyKey: req.IdempotencyKey,
		Metadata:       metadata,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidAmount):
			return fiber.NewError(http.StatusBadRequest, "amount must be positive")
		case errors.Is(err, ErrWalletNotFound):
			return fiber.NewError(http.StatusNotFound, "user wallet not found")
		case errors.Is(err, ErrSystemWalletMissing):
			return fiber.NewError(http.StatusBadRequest, "system wallet not provisioned for asset")
		case errors.Is(err, ErrInsufficientFunds):
			return fiber.NewError(http.StatusBadRequest, "insufficient funds")
		default:
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
	}

	return c.Status(successStatus).JSON(transactionResponse{
		ID:             tx.ID,
		IdempotencyKey: tx.IdempotencyKey,
		Type:           tx.Type,
		Status:         tx.Status,
		Metadata:       tx.Metadata,
		CreatedAt:      tx.CreatedAt,
	})
}

// Balance returns derived balances for a user: one asset when ?asset= is
// given, otherwise every catalogued asset.
func (h *Handler) Balance(c *fiber.Ctx) error {
	userID := c.Params("userId")

	if assetID := c.Query("asset"); assetID != "" {
		balance, err := h.service.GetBalance(c.UserContext(), userID, assetID)
		if err != nil {
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"user_id":  userID,
			"balances": map[string]decimal.Decimal{assetID: balance},
		})
	}

	balances, err := h.service.Balances(c.UserContext(), userID)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"user_id":  userID,
		"balances": balances,
	})
}

type entryResponse struct {
	ID            string               `json:"id"`
	TransactionID string               `json:"transaction_id"`
	WalletID      string               `json:"wallet_id"`
	Amount        decimal.Decimal      `json:"amount"`
	BalanceAfter  *decimal.Decimal     `json:"balance_after,omitempty"`
	Type          string               `json:"type"`
	CreatedAt     time.Time            `json:"created_at"`
	Transaction   *transactionResponse `json:"transaction,omitempty"`
}

// Ledger returns a wallet's entries newest first.
func (h *Handler) Ledger(c *fiber.Ctx) error {
	userID := c.Params("userId")
	assetID := c.Query("asset")
	if assetID == "" {
		return fiber.NewError(http.StatusBadRequest, "asset query parameter is required")
	}

	entries, err := h.service.GetLedger(c.UserContext(), userID, assetID)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}

	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		resp := entryResponse{
			ID:            e.ID,
			TransactionID: e.TransactionID,
			WalletID:      e.WalletID,
			Amount:        e.Amount,
			Type:          e.Type,
			CreatedAt:     e.CreatedAt,
		}
		if e.BalanceAfter.Valid {
			after := e.BalanceAfter.Decimal
			resp.BalanceAfter = &after
		}
		if e.Transaction != nil {
			resp.Transaction = &transactionResponse{
				ID:             e.Transaction.ID,
				IdempotencyKey: e.Transaction.IdempotencyKey,
				Type:           e.Transaction.Type,
				Status:         e.Transaction.Status,
				Metadata:       e.Transaction.Metadata,
				CreatedAt:      e.Transaction.CreatedAt,
			}
		}
		out = append(out, resp)
	}

	return c.Status(http.StatusOK).JSON(fiber.Map{
		"user_id": userID,
		"asset":   assetID,
		"entries": out,
	})
}
