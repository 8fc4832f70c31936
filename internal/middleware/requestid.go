package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// HeaderRequestID is the header carrying the request identifier.
const HeaderRequestID = "X-Request-ID"

// LocalsRequestID is the fiber locals key under which the identifier is
// stored for downstream handlers and the access logger.
const LocalsRequestID = "request_id"

// RequestID tags every request with an identifier, keeping the caller's
// X-Request-ID when one is supplied so traces line up across services.
func RequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Get(HeaderRequestID)
		if id == "" {
			id = uuid.New().String()
		}

		c.Locals(LocalsRequestID, id)
		c.Set(HeaderRequestID, id)

		return c.Next()
	}
}
