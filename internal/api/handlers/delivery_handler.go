package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/publishflow/internal/publisher"
	"github.com/maheshrc27/publishflow/internal/service"
)

type DeliveryHandler struct {
	s   service.PostService
	pub publisher.Publisher
}

func NewDeliveryHandler(service service.PostService, pub publisher.Publisher) *DeliveryHandler {
	return &DeliveryHandler{s: service, pub: pub}
}

func (h *DeliveryHandler) PublishDelivery(c *fiber.Ctx) error {
	deliveryID, err := paramID(c)
	if err != nil {
		return respondError(c, err)
	}

	result, err := h.pub.PublishOne(c.Context(), GetActor(c), deliveryID)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(result)
}

func (h *DeliveryHandler) ResetDelivery(c *fiber.Ctx) error {
	deliveryID, err := paramID(c)
	if err != nil {
		return respondError(c, err)
	}

	d, err := h.pub.ResetDelivery(c.Context(), GetActor(c), deliveryID)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(d)
}

func (h *DeliveryHandler) ListLogs(c *fiber.Ctx) error {
	deliveryID, err := paramID(c)
	if err != nil {
		return respondError(c, err)
	}

	logs, err := h.s.Logs(c.Context(), GetActor(c), deliveryID)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(logs)
}

func (h *DeliveryHandler) ResetSegmentDelivery(c *fiber.Ctx) error {
	deliveryID, err := paramID(c)
	if err != nil {
		return respondError(c, err)
	}

	d, err := h.pub.ResetSegmentDelivery(c.Context(), GetActor(c), deliveryID)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(d)
}
