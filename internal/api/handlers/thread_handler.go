package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/publishflow/internal/publisher"
	"github.com/maheshrc27/publishflow/internal/service"
	"github.com/maheshrc27/publishflow/internal/transfer"
)

type ThreadHandler struct {
	s   service.ThreadService
	pub publisher.Publisher
}

func NewThreadHandler(service service.ThreadService, pub publisher.Publisher) *ThreadHandler {
	return &ThreadHandler{s: service, pub: pub}
}

func (h *ThreadHandler) CreateThread(c *fiber.Ctx) error {
	var tc transfer.ThreadCreation
	if err := c.BodyParser(&tc); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse body",
		})
	}

	thread, err := h.s.Create(c.Context(), GetActor(c), &tc)
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(thread)
}

func (h *ThreadHandler) ListThreads(c *fiber.Ctx) error {
	threads, err := h.s.List(c.Context(), GetUserID(c))
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(threads)
}

func (h *ThreadHandler) GetThread(c *fiber.Ctx) error {
	threadID, err := paramID(c)
	if err != nil {
		return respondError(c, err)
	}

	thread, err := h.s.ThreadInfo(c.Context(), GetActor(c), threadID)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(thread)
}

func (h *ThreadHandler) RemoveThread(c *fiber.Ctx) error {
	threadID, err := paramID(c)
	if err != nil {
		return respondError(c, err)
	}

	if err := h.s.Remove(c.Context(), GetActor(c), threadID); err != nil {
		return respondError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// PublishThread starts delivery to every pending account. Segments are sent
// in the background; the response lists which accounts started.
func (h *ThreadHandler) PublishThread(c *fiber.Ctx) error {
	threadID, err := paramID(c)
	if err != nil {
		return respondError(c, err)
	}

	start, err := h.pub.PublishThread(c.Context(), GetActor(c), threadID)
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(start)
}
