package gateway

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/example/realtime-chat/modules/auth"
	"github.com/example/realtime-chat/modules/chat"
	"github.com/example/realtime-chat/modules/storage"
	"github.com/example/realtime-chat/modules/userinfo"
)

// Module exposes the HTTP surface: the websocket endpoint every client
// speaks through plus a small REST API for conversation history. The
// chat module is passed in directly because the socket handler drives
// its session lifecycle; storage and userinfo are reached through
// their service adapters.
type Module struct {
	app      *fiber.App
	addr     string
	chatMod  *chat.Module
	authMod  *auth.AuthModule
	authPort auth.Port
	store    storage.Port
	users    userinfo.Port
	logger   types.Logger
}

// NewModule creates the gateway listening on addr.
func NewModule(addr string, chatMod *chat.Module, authMod *auth.AuthModule, moduleLogger types.Logger) *Module {
	return &Module{
		addr:    addr,
		chatMod: chatMod,
		authMod: authMod,
		logger:  moduleLogger,
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "gateway"
}

// Dependencies returns the modules whose services the gateway calls.
func (m *Module) Dependencies() []string {
	return []string{"storage", "userinfo", "auth"}
}

// SetDependencyServiceContainer wires dependency adapters.
func (m *Module) SetDependencyServiceContainer(dependency string, container mono.ServiceContainer) {
	switch dependency {
	case "storage":
		m.store = storage.NewAdapter(container)
	case "userinfo":
		m.users = userinfo.NewAdapter(container)
	case "auth":
		m.authPort = auth.NewAdapter(container)
	}
}

// Start builds the Fiber app and begins serving.
func (m *Module) Start(_ context.Context) error {
	m.app = fiber.New(fiber.Config{
		AppName:               "realtime-chat",
		DisableStartupMessage: true,
		ErrorHandler:          m.errorHandler,
		ReadTimeout:           15 * time.Second,
		WriteTimeout:          15 * time.Second,
		IdleTimeout:           75 * time.Second,
	})

	m.app.Use(recover.New())
	m.app.Use(m.requestLogger)

	allowedOrigins := os.Getenv("CORS_ALLOWED_ORIGINS")
	if allowedOrigins == "" {
		allowedOrigins = "http://localhost:3000,http://localhost:5173"
	}
	m.app.Use(cors.New(cors.Config{
		AllowOrigins: allowedOrigins,
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Content-Type,Authorization",
	}))

	m.registerRoutes()

	errCh := make(chan error, 1)
	go func() {
		if err := m.app.Listen(m.addr); err != nil {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("gateway failed to start: %w", err)
	case <-time.After(100 * time.Millisecond):
	}

	m.logger.Info("Gateway started", "addr", m.addr, "authEnabled", m.authMod.Enabled())
	return nil
}

// Stop shuts the server down, draining in-flight requests.
func (m *Module) Stop(ctx context.Context) error {
	if m.app != nil {
		if err := m.app.ShutdownWithContext(ctx); err != nil {
			return fmt.Errorf("failed to shutdown gateway: %w", err)
		}
	}
	m.logger.Info("Gateway stopped")
	return nil
}

// Health reports listener state and the live session count.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	if m.app == nil {
		return mono.HealthStatus{Healthy: false, Message: "server not started"}
	}
	return mono.HealthStatus{
		Healthy: true,
		Message: "serving",
		Details: map[string]any{
			"addr":     m.addr,
			"sessions": m.chatMod.SessionCount(),
		},
	}
}

func (m *Module) registerRoutes() {
	m.app.Get("/health", m.healthHandler)

	m.app.Use("/ws", m.upgradeGuard)
	m.app.Get("/ws", websocket.New(m.handleSocket))

	api := m.app.Group("/api/v1")
	api.Get("/users/:id/conversations", m.listConversations)
	api.Get("/users/:id/unread-count", m.unreadCount)
	api.Get("/conversations/:id/messages", m.listMessages)
}

// requestLogger logs completed HTTP requests. Websocket upgrades are
// skipped, their lifetime is logged by the socket handler instead.
func (m *Module) requestLogger(c *fiber.Ctx) error {
	if c.Get("Upgrade") == "websocket" {
		return c.Next()
	}
	err := c.Next()
	m.logger.Info("HTTP request",
		"method", c.Method(),
		"path", c.Path(),
		"status", c.Response().StatusCode(),
	)
	return err
}

func (m *Module) errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	m.logger.Error("HTTP error", "code", code, "message", message, "error", err)

	return c.Status(code).JSON(fiber.Map{
		"error": message,
	})
}
