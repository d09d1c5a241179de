package serverutils

import (
	"errors"

	"neon-assistant-be/internal/service"

	"github.com/gofiber/fiber/v2"
)

// ErrorHandlerMiddleware maps service errors onto the HTTP contract:
// unknown sessions are 404, provider and Neon failures are 502, explicit
// fiber errors keep their status, everything else is 500.
func ErrorHandlerMiddleware() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		err := ctx.Next()
		if err == nil {
			return nil
		}

		var fiberErr *fiber.Error
		switch {
		case errors.As(err, &fiberErr):
			return ctx.Status(fiberErr.Code).JSON(ErrorResponse(fiberErr.Code, fiberErr.Message))
		case errors.Is(err, service.ErrMissingAPIKey):
			return ctx.Status(fiber.StatusBadRequest).JSON(ErrorResponse(fiber.StatusBadRequest, service.ErrMissingAPIKey.Error()))
		case errors.Is(err, service.ErrSessionNotFound):
			return ctx.Status(fiber.StatusNotFound).JSON(ErrorResponse(fiber.StatusNotFound, service.ErrSessionNotFound.Error()))
		case errors.Is(err, service.ErrUpstream):
			return ctx.Status(fiber.StatusBadGateway).JSON(ErrorResponse(fiber.StatusBadGateway, err.Error()))
		default:
			return ctx.Status(fiber.StatusInternalServerError).JSON(ErrorResponse(fiber.StatusInternalServerError, "Internal server error"))
		}
	}
}
