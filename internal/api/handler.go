// Package api implements the HTTP submission surface using a Fiber
// handler shape.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"smshub/internal/domain"
	"smshub/internal/ports"
	"smshub/internal/tenant"
)

const maxBatchSize = 100
const subscriptionKeyHeader = "ocp-apim-subscription-key"

// Handler holds all HTTP handlers for the message hub.
type Handler struct {
	repo      ports.MessageRepository
	publisher ports.MessagePublisher
	registry  *tenant.Registry
	log       *slog.Logger
}

// NewHandler wires up a Handler with its dependencies.
func NewHandler(repo ports.MessageRepository, publisher ports.MessagePublisher, registry *tenant.Registry, log *slog.Logger) *Handler {
	return &Handler{repo: repo, publisher: publisher, registry: registry, log: log}
}

// Register mounts all routes onto the given Fiber app.
func (h *Handler) Register(app *fiber.App) {
	app.Get("/ping", h.Ping)
	app.Get("/health", h.Health)

	api := app.Group("/api", h.authenticate)
	api.Post("/message", h.SubmitMessage)
	api.Post("/messages", h.SubmitBatch)
	api.Get("/messages/:id/status", h.GetStatus)
	api.Get("/messages/history", h.History)
}

// Ping is an unauthenticated liveness probe.
func (h *Handler) Ping(c *fiber.Ctx) error {
	return c.SendString("Service is alive")
}

// Health is the readiness endpoint used by orchestration probes.
func (h *Handler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// authenticate resolves the ocp-apim-subscription-key header against the
// tenant registry, rejecting with 401 on a missing or unknown key.
func (h *Handler) authenticate(c *fiber.Ctx) error {
	key := c.Get(subscriptionKeyHeader)
	if key == "" {
		return c.SendStatus(fiber.StatusUnauthorized)
	}
	t, ok := h.registry.Get(key)
	if !ok {
		return c.SendStatus(fiber.StatusUnauthorized)
	}
	c.Locals("tenant", t)
	return c.Next()
}

func tenantFromCtx(c *fiber.Ctx) domain.TenantConfig {
	return c.Locals("tenant").(domain.TenantConfig)
}

type submitRequest struct {
	Recipient   string `json:"recipient"`
	Message     string `json:"message"`
	ChannelType string `json:"channelType"`
}

type submitResponse struct {
	MessageID string `json:"messageId"`
	Status    string `json:"status"`
	StatusURL string `json:"statusUrl"`
}

func validateSubmit(t domain.TenantConfig, req submitRequest) *string {
	msg := ""
	recipientLen := utf8.RuneCountInString(req.Recipient)
	messageLen := utf8.RuneCountInString(req.Message)
	switch {
	case recipientLen < 1 || recipientLen > 100:
		msg = "recipient must be 1-100 characters"
	case messageLen < 1 || messageLen > 1600:
		msg = "message must be 1-1600 characters"
	case req.ChannelType == "":
		msg = "channelType is required"
	case !t.HasChannel(domain.NormalizeChannelType(req.ChannelType)):
		msg = fmt.Sprintf("channelType %q is not configured for this tenant", req.ChannelType)
	default:
		return nil
	}
	return &msg
}

// SubmitMessage handles a single-message submission.
//
// POST /api/message
// Body: {"recipient":"...","message":"...","channelType":"HTTP"|"SMPP"}
func (h *Handler) SubmitMessage(c *fiber.Ctx) error {
	t := tenantFromCtx(c)

	var req submitRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if errMsg := validateSubmit(t, req); errMsg != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": *errMsg})
	}

	msg, err := h.submitOne(c.Context(), t, req)
	if err != nil {
		h.log.Error("submit message failed", "tenant", t.SubscriptionKey, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
	}

	return c.Status(fiber.StatusOK).JSON(submitResponse{
		MessageID: msg.ID.String(),
		Status:    string(msg.Status),
		StatusURL: fmt.Sprintf("/api/messages/%s/status", msg.ID),
	})
}

// submitOne implements the single-message flow shared by the single and
// batch endpoints: insert Queued, then publish, demoting to Failed if the
// publish step fails after the insert already committed.
func (h *Handler) submitOne(ctx context.Context, t domain.TenantConfig, req submitRequest) (domain.Message, error) {
	channel := domain.NormalizeChannelType(req.ChannelType)
	msg := domain.NewMessage(t.SubscriptionKey, req.Recipient, req.Message, channel)

	if err := h.repo.Insert(ctx, msg); err != nil {
		return domain.Message{}, fmt.Errorf("insert message: %w", err)
	}

	event := domain.QueuedEvent{
		MessageID:       msg.ID,
		SubscriptionKey: msg.SubscriptionKey,
		Content:         msg.Content,
		Recipient:       msg.Recipient,
		ChannelType:     msg.ChannelType,
		CreatedAt:       msg.CreatedAt,
	}
	if err := h.publisher.Publish(ctx, event); err != nil {
		failMsg := "Failed to queue message for processing"
		_ = h.repo.UpdateStatus(ctx, msg.ID, ports.StatusUpdate{Status: domain.StatusFailed, ErrorMessage: &failMsg})
		msg.Status = domain.StatusFailed
		msg.ErrorMessage = failMsg
		return msg, nil
	}

	return msg, nil
}

type batchRequest struct {
	Messages []submitRequest `json:"messages"`
}

type batchItemResult struct {
	MessageID    string `json:"messageId,omitempty"`
	Status       string `json:"status"`
	Recipient    string `json:"recipient"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

type batchResponse struct {
	Results          []batchItemResult `json:"results"`
	StatusURLPattern string            `json:"statusUrlPattern"`
	TotalCount       int               `json:"totalCount"`
	SuccessCount     int               `json:"successCount"`
	FailedCount      int               `json:"failedCount"`
}

// SubmitBatch handles a batch of up to 100 messages, applying the single
// flow to each and continuing past individual failures.
//
// POST /api/messages
// Body: {"messages":[{"recipient":"...","message":"...","channelType":"..."}]}
func (h *Handler) SubmitBatch(c *fiber.Ctx) error {
	t := tenantFromCtx(c)

	var req batchRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if len(req.Messages) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "messages must not be empty"})
	}
	if len(req.Messages) > maxBatchSize {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": fmt.Sprintf("batch size exceeds maximum of %d", maxBatchSize)})
	}

	resp := batchResponse{
		Results:          make([]batchItemResult, 0, len(req.Messages)),
		StatusURLPattern: "/api/messages/{id}/status",
	}

	for _, item := range req.Messages {
		if errMsg := validateSubmit(t, item); errMsg != nil {
			resp.Results = append(resp.Results, batchItemResult{
				Status:       "Failed",
				Recipient:    item.Recipient,
				ErrorMessage: *errMsg,
			})
			resp.FailedCount++
			continue
		}

		msg, err := h.submitOne(c.Context(), t, item)
		if err != nil {
			h.log.Error("batch submit item failed", "tenant", t.SubscriptionKey, "error", err)
			resp.Results = append(resp.Results, batchItemResult{
				Status:       "Failed",
				Recipient:    item.Recipient,
				ErrorMessage: "internal server error",
			})
			resp.FailedCount++
			continue
		}

		result := batchItemResult{
			MessageID: msg.ID.String(),
			Status:    string(msg.Status),
			Recipient: msg.Recipient,
		}
		if msg.Status == domain.StatusFailed {
			result.ErrorMessage = msg.ErrorMessage
			resp.FailedCount++
		} else {
			resp.SuccessCount++
		}
		resp.Results = append(resp.Results, result)
	}

	resp.TotalCount = len(req.Messages)
	return c.Status(fiber.StatusOK).JSON(resp)
}

type statusResponse struct {
	MessageID         string `json:"messageId"`
	Status            string `json:"status"`
	CreatedAt         string `json:"createdAt"`
	UpdatedAt         string `json:"updatedAt"`
	ExternalMessageID string `json:"externalMessageId,omitempty"`
	ErrorMessage      string `json:"errorMessage,omitempty"`
	RetryCount        int    `json:"retryCount"`
	Recipient         string `json:"recipient"`
	ChannelType       string `json:"channelType"`
}

func toStatusResponse(m domain.Message) statusResponse {
	return statusResponse{
		MessageID:         m.ID.String(),
		Status:            string(m.Status),
		CreatedAt:         m.CreatedAt.Format("2006-01-02T15:04:05.000Z07:00"),
		UpdatedAt:         m.UpdatedAt.Format("2006-01-02T15:04:05.000Z07:00"),
		ExternalMessageID: m.ExternalMessageID,
		ErrorMessage:      m.ErrorMessage,
		RetryCount:        m.RetryCount,
		Recipient:         m.Recipient,
		ChannelType:       string(m.ChannelType),
	}
}

// GetStatus returns a single message's current status, scoped to the
// requesting tenant.
//
// GET /api/messages/{id}/status
func (h *Handler) GetStatus(c *fiber.Ctx) error {
	t := tenantFromCtx(c)

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "id must be a valid UUID"})
	}

	msg, err := h.repo.GetByIDForTenant(c.Context(), id, t.SubscriptionKey)
	if err != nil {
		return c.SendStatus(fiber.StatusNotFound)
	}

	return c.Status(fiber.StatusOK).JSON(toStatusResponse(*msg))
}

// History returns the requesting tenant's message history, optionally
// filtered by status.
//
// GET /api/messages/history?limit=&status=
func (h *Handler) History(c *fiber.Ctx) error {
	t := tenantFromCtx(c)

	limit := c.QueryInt("limit", 50)
	if limit <= 0 || limit > maxBatchSize {
		limit = maxBatchSize
	}
	statusFilter := domain.Status(c.Query("status"))

	msgs, err := h.repo.ListForTenant(c.Context(), t.SubscriptionKey, statusFilter, limit)
	if err != nil {
		h.log.Error("list history failed", "tenant", t.SubscriptionKey, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
	}

	out := make([]statusResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toStatusResponse(m))
	}
	return c.Status(fiber.StatusOK).JSON(out)
}
