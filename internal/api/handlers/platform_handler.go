package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/publishflow/internal/service"
	"github.com/maheshrc27/publishflow/internal/transfer"
)

type PlatformHandler struct {
	ps service.PlatformService
}

func NewPlatformHandler(ps service.PlatformService) *PlatformHandler {
	return &PlatformHandler{
		ps: ps,
	}
}

func (h *PlatformHandler) ListSocialAccounts(c *fiber.Ctx) error {
	accounts, err := h.ps.List(c.Context(), GetUserID(c))
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(accounts)
}

// SetActive switches the caller's link to an account on or off.
func (h *PlatformHandler) SetActive(c *fiber.Ctx) error {
	accountID, err := paramID(c)
	if err != nil {
		return respondError(c, err)
	}

	var body transfer.ActiveUpdate
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse body",
		})
	}

	if err := h.ps.SetActive(c.Context(), GetUserID(c), accountID, body.IsActive); err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"account_id": accountID,
		"is_active":  body.IsActive,
	})
}
