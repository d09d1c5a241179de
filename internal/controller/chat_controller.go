package controller

import (
	"neon-assistant-be/internal/dto"
	"neon-assistant-be/internal/pkg/serverutils"
	"neon-assistant-be/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type IChatController interface {
	RegisterRoutes(r fiber.Router, chatLimiter fiber.Handler)
	NewChat(ctx *fiber.Ctx) error
	Chat(ctx *fiber.Ctx) error
	History(ctx *fiber.Ctx) error
	Delete(ctx *fiber.Ctx) error
}

type chatController struct {
	chatService service.IChatService
}

func NewChatController(chatService service.IChatService) IChatController {
	return &chatController{
		chatService: chatService,
	}
}

func (c *chatController) RegisterRoutes(r fiber.Router, chatLimiter fiber.Handler) {
	r.Post("/chat/new", c.NewChat)
	r.Post("/chat", chatLimiter, c.Chat)
	r.Get("/chat/:id/history", c.History)
	r.Delete("/chat/:id", c.Delete)
}

// NewChat and Chat return flat bodies, they are the published client contract.

func (c *chatController) NewChat(ctx *fiber.Ctx) error {
	res, err := c.chatService.CreateSession(ctx.Context())
	if err != nil {
		return err
	}

	return ctx.Status(fiber.StatusCreated).JSON(res)
}

func (c *chatController) Chat(ctx *fiber.Ctx) error {
	var req dto.ChatRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.chatService.Chat(ctx.Context(), &req)
	if err != nil {
		return err
	}

	return ctx.JSON(res)
}

func (c *chatController) History(ctx *fiber.Ctx) error {
	id, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid chat id")
	}

	res, err := c.chatService.GetHistory(ctx.Context(), id)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success get chat history", res))
}

func (c *chatController) Delete(ctx *fiber.Ctx) error {
	id, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid chat id")
	}

	if err := c.chatService.DeleteSession(ctx.Context(), id); err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse[any]("Success delete chat session", nil))
}
