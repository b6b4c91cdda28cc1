package emulator

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
)

const principalKey = "principal"

// SetupMiddleware configures the middleware every request goes through
func SetupMiddleware(app *fiber.App) {
	// Request ID middleware
	app.Use(requestid.New())

	// Recover middleware
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	// Timing middleware
	app.Use(timingMiddleware())
}

// fail writes err as the error envelope. Errors other than *Error are
// reported as INTERNAL.
func fail(c *fiber.Ctx, err error) error {
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		apiErr = &Error{Code: http.StatusInternalServerError, Status: StatusInternal, Message: err.Error()}
	}
	return c.Status(apiErr.Code).JSON(NewErrorResponse(apiErr))
}

// ErrorHandler renders errors escaping the handlers, such as unmatched
// routes, as the error envelope
func ErrorHandler(c *fiber.Ctx, err error) error {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return fail(c, apiErr)
	}

	code := fiber.StatusInternalServerError
	status := StatusInternal
	message := "Internal Server Error"

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		code = fiberErr.Code
		message = fiberErr.Message
	}

	switch code {
	case fiber.StatusNotFound:
		status = StatusNotFound
	case fiber.StatusBadRequest, fiber.StatusMethodNotAllowed:
		status = StatusInvalidArgument
	case fiber.StatusTooManyRequests:
		status = StatusResourceExhausted
	case fiber.StatusServiceUnavailable:
		status = StatusUnavailable
	}

	return c.Status(code).JSON(NewErrorResponse(&Error{Code: code, Status: status, Message: message}))
}

// timingMiddleware adds request timing headers
func timingMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		c.Set("X-Response-Time", fmt.Sprintf("%d ms", time.Since(start).Milliseconds()))
		return err
	}
}

// RequireBearer rejects requests without a bearer token issued by auth and
// stores the caller's Principal in the request locals
func RequireBearer(auth *Authority) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			RecordAuthFailure()
			return fail(c, unauthenticated("Request is missing required authentication credential."))
		}

		principal, err := auth.Verify(token)
		if err != nil {
			RecordAuthFailure()
			return fail(c, err)
		}
		c.Locals(principalKey, principal)
		return c.Next()
	}
}

// PrincipalFrom returns the caller stored by RequireBearer, or nil
func PrincipalFrom(c *fiber.Ctx) *Principal {
	p, _ := c.Locals(principalKey).(*Principal)
	return p
}

// RateLimiter answers 429 RESOURCE_EXHAUSTED once a client IP exceeds
// requestsPerMinute within a one minute window
func RateLimiter(requestsPerMinute int) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        requestsPerMinute,
		Expiration: time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return fail(c, &Error{Code: http.StatusTooManyRequests, Status: StatusResourceExhausted, Message: "Quota exceeded."})
		},
	})
}
