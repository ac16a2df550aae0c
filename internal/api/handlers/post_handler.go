package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/publishflow/internal/publisher"
	"github.com/maheshrc27/publishflow/internal/service"
	"github.com/maheshrc27/publishflow/internal/transfer"
)

type PostHandler struct {
	s   service.PostService
	pub publisher.Publisher
}

func NewPostHandler(service service.PostService, pub publisher.Publisher) *PostHandler {
	return &PostHandler{s: service, pub: pub}
}

func (h *PostHandler) CreatePost(c *fiber.Ctx) error {
	var pc transfer.PostCreation
	if err := c.BodyParser(&pc); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse body",
		})
	}

	post, err := h.s.Create(c.Context(), GetActor(c), &pc)
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(post)
}

func (h *PostHandler) ListPosts(c *fiber.Ctx) error {
	posts, err := h.s.List(c.Context(), GetUserID(c))
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(posts)
}

func (h *PostHandler) GetPost(c *fiber.Ctx) error {
	postID, err := paramID(c)
	if err != nil {
		return respondError(c, err)
	}

	post, err := h.s.PostInfo(c.Context(), GetActor(c), postID)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(post)
}

func (h *PostHandler) UpdatePost(c *fiber.Ctx) error {
	postID, err := paramID(c)
	if err != nil {
		return respondError(c, err)
	}

	var pc transfer.PostCreation
	if err := c.BodyParser(&pc); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse body",
		})
	}

	post, err := h.s.Update(c.Context(), GetActor(c), postID, &pc)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(post)
}

func (h *PostHandler) RemovePost(c *fiber.Ctx) error {
	postID, err := paramID(c)
	if err != nil {
		return respondError(c, err)
	}

	if err := h.s.Remove(c.Context(), GetActor(c), postID); err != nil {
		return respondError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// PublishPost publishes every eligible target of the post. Platform failures
// are reported per target in the batch result.
func (h *PostHandler) PublishPost(c *fiber.Ctx) error {
	postID, err := paramID(c)
	if err != nil {
		return respondError(c, err)
	}

	batch, err := h.pub.PublishAll(c.Context(), GetActor(c), postID)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(batch)
}
