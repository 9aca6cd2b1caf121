package middleware

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/Windi-Fikriyansyah/multimarket_be/internal/apperror"
)

// ErrorHandler renders every error returned by a handler as the JSON
// envelope. Internal errors are logged and reported without detail.
func ErrorHandler(log *zap.SugaredLogger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		if e, ok := apperror.As(err); ok {
			body := fiber.Map{
				"success": false,
				"message": e.Message,
				"code":    e.Code,
			}
			if len(e.Fields) > 0 {
				body["errors"] = e.Fields
			}
			if e.Kind == apperror.KindTooManyRequests {
				secs := e.RetryAfterSeconds()
				body["retry_after"] = secs
				c.Set(fiber.HeaderRetryAfter, strconv.Itoa(secs))
			}
			if e.Kind == apperror.KindInternal {
				log.Errorw("internal error", "method", c.Method(), "path", c.Path(), "error", e.Err)
			}
			return c.Status(e.Status()).JSON(body)
		}

		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(fiber.Map{
				"success": false,
				"message": fe.Message,
				"code":    codeFor(fe.Code),
			})
		}

		log.Errorw("unhandled error", "method", c.Method(), "path", c.Path(), "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Internal server error",
			"code":    "SERVER_ERROR",
		})
	}
}

func codeFor(status int) string {
	switch status {
	case fiber.StatusNotFound:
		return "NOT_FOUND"
	case fiber.StatusMethodNotAllowed:
		return "METHOD_NOT_ALLOWED"
	case fiber.StatusRequestEntityTooLarge:
		return "PAYLOAD_TOO_LARGE"
	case fiber.StatusBadRequest:
		return "BAD_REQUEST"
	}
	return "HTTP_ERROR"
}
