// Command mock-sms-provider is a local stand-in for an HTTP SMS provider,
// used to exercise internal/channel/httpchan without a real Twilio/Vonage/
// MessageBird account. It accepts any JSON body internal/payload builds and
// echoes back a provider-assigned id under "messageId", the first key
// internal/channel/httpchan.extractExternalID checks.
package main

import (
	"context"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	addr := getenv("HTTP_ADDR", ":9090")
	failureRate := getenvFloat("FAILURE_RATE", 0.0)

	fiberApp := fiber.New(fiber.Config{AppName: "mock-sms-provider", DisableStartupMessage: true})

	fiberApp.Post("/send", func(c *fiber.Ctx) error {
		var body map[string]any
		if err := c.BodyParser(&body); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
		}

		if failureRate > 0 && rand.Float64() < failureRate {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "simulated provider outage"})
		}

		providerID := uuid.New().String()
		log.Info("mock provider accepted message", "provider_id", providerID, "body", body)

		return c.Status(fiber.StatusOK).JSON(fiber.Map{"messageId": providerID})
	})

	fiberApp.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info("mock-sms-provider listening", "addr", addr)
		if err := fiberApp.Listen(addr); err != nil {
			log.Error("fiber listen", "error", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down mock-sms-provider")
	_ = fiberApp.Shutdown()
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

// getenvFloat parses FAILURE_RATE as the fraction (0-1) of /send calls that
// should simulate a provider outage, for exercising internal/channel/httpchan's
// retry and circuit-breaker behavior against a local server.
func getenvFloat(k string, def float64) float64 {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}
