package handlers

import (
	"errors"
	"log/slog"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/publishflow/internal/publisher"
	"github.com/maheshrc27/publishflow/internal/service"
)

func GetUserID(c *fiber.Ctx) int64 {
	userID, _ := strconv.ParseInt(c.Locals("user_id").(string), 10, 64)
	return userID
}

// GetActor returns the authenticated caller as a publish actor.
func GetActor(c *fiber.Ctx) publisher.Actor {
	isAdmin, _ := c.Locals("is_admin").(bool)
	return publisher.Actor{UserID: GetUserID(c), IsAdmin: isAdmin}
}

func paramID(c *fiber.Ctx) (int64, error) {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}
	return int64(id), nil
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, publisher.ErrUnauthorized):
		return fiber.StatusForbidden
	case errors.Is(err, publisher.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, publisher.ErrConflict), errors.Is(err, publisher.ErrNothingToPublish):
		return fiber.StatusConflict
	case errors.Is(err, publisher.ErrUnsupportedPlatform):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, service.ErrInvalid):
		return fiber.StatusBadRequest
	}
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return fiber.StatusInternalServerError
}

func respondError(c *fiber.Ctx, err error) error {
	status := errorStatus(err)
	message := err.Error()
	if status == fiber.StatusInternalServerError {
		slog.Error("request failed", "path", c.Path(), "error", err)
		message = "internal error"
	}
	return c.Status(status).JSON(fiber.Map{
		"error": message,
	})
}
