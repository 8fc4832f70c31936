package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const (
	idempotencyKeyHeader = "Idempotency-Key"
	idempotencyPrefix    = "idem:tx:"
	inProgressMarker     = "__in_progress__"
	cacheOpTimeout       = 2 * time.Second
)

type storedResponse struct {
	Status      int    `json:"status"`
	Body        string `json:"body"`
	ContentType string `json:"content_type,omitempty"`
}

// Idempotency replays cached responses for repeated unsafe requests carrying
// the same Idempotency-Key header. It is a transport fast path only: two
// requests can race past the cache, so the at-most-once guarantee lives in
// the database's unique constraint on the transaction key. Requests without
// the header pass through untouched; the service issues its own key then.
func Idempotency(cache *redis.Client, ttl time.Duration, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		switch c.Method() {
		case fiber.MethodGet, fiber.MethodHead, fiber.MethodOptions:
			return c.Next()
		}

		key := c.Get(idempotencyKeyHeader)
		if key == "" {
			return c.Next()
		}
		cacheKey := idempotencyPrefix + key

		ctx, cancel := context.WithTimeout(context.Background(), cacheOpTimeout)
		cached, err := cache.Get(ctx, cacheKey).Result()
		cancel()
		if err == nil {
			return replayStored(c, key, cached, logger)
		}
		if err != redis.Nil {
			// Cache trouble never blocks the request; the unique
			// constraint still deduplicates.
			logger.Warn("idempotency cache unavailable", "key", key, "error", err)
			return c.Next()
		}

		reserveCtx, cancel := context.WithTimeout(context.Background(), cacheOpTimeout)
		reserved, err := cache.SetNX(reserveCtx, cacheKey, inProgressMarker, ttl).Result()
		cancel()
		if err != nil {
			logger.Warn("idempotency reservation failed", "key", key, "error", err)
			return c.Next()
		}
		if !reserved {
			return fiber.NewError(fiber.StatusConflict, "request with this idempotency key is in flight")
		}

		if err := c.Next(); err != nil {
			release(cache, cacheKey)
			return err
		}

		// Only successful outcomes are worth replaying; a failed attempt
		// should stay retryable.
		if c.Response().StatusCode() >= fiber.StatusMultipleChoices {
			release(cache, cacheKey)
			return nil
		}

		persistResponse(cache, cacheKey, storedResponse{
			Status:      c.Response().StatusCode(),
			Body:        string(c.Response().Body()),
			ContentType: string(c.Response().Header.ContentType()),
		}, ttl, key, logger)

		return nil
	}
}

func replayStored(c *fiber.Ctx, key, cached string, logger *slog.Logger) error {
	if cached == inProgressMarker {
		return fiber.NewError(fiber.StatusConflict, "request with this idempotency key is in flight")
	}

	var stored storedResponse
	if err := json.Unmarshal([]byte(cached), &stored); err != nil {
		logger.Warn("stored idempotent response is corrupt", "key", key, "error", err)
		return fiber.NewError(fiber.StatusConflict, "duplicate request")
	}

	if stored.ContentType != "" {
		c.Set(fiber.HeaderContentType, stored.ContentType)
	}
	return c.Status(stored.Status).SendString(stored.Body)
}

func release(cache *redis.Client, cacheKey string) {
	ctx, cancel := context.WithTimeout(context.Background(), cacheOpTimeout)
	defer cancel()
	cache.Del(ctx, cacheKey)
}

func persistResponse(cache *redis.Client, cacheKey string, stored storedResponse, ttl time.Duration, key string, logger *slog.Logger) {
	payload, err := json.Marshal(stored)
	if err != nil {
		logger.Error("encode idempotent response", "key", key, "error", err)
		release(cache, cacheKey)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), cacheOpTimeout)
	defer cancel()
	if err := cache.Set(ctx, cacheKey, payload, ttl).Err(); err != nil {
		logger.Warn("persist idempotent response", "key", key, "error", err)
		cache.Del(ctx, cacheKey)
	}
}
