package main

import (
	"context"
	"log"
	"os"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/go-monolith/mono"

	"github.com/example/realtime-chat/modules/auth"
	"github.com/example/realtime-chat/modules/chat"
	"github.com/example/realtime-chat/modules/gateway"
	"github.com/example/realtime-chat/modules/storage"
	"github.com/example/realtime-chat/modules/userinfo"
)

const shutdownTimeout = 30 * time.Second

func main() {
	log.Println("=== Realtime Chat - WebSocket messaging with call signaling ===")

	app, err := mono.NewMonoApplication(
		mono.WithShutdownTimeout(shutdownTimeout),
		mono.WithLogLevel(mono.LogLevelInfo),
		mono.WithLogFormat(mono.LogFormatText),
	)
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "3000"
	}

	// Create modules
	storageModule := storage.NewModule()
	authModule := auth.NewModule()
	userInfoModule := userinfo.NewModule()
	chatModule := chat.NewModule()

	// The gateway drives chat session lifecycle directly, so the chat
	// module is injected rather than reached through ServiceContainer.
	gatewayModule := gateway.NewModule(":"+port, chatModule, authModule, app.Logger())

	// Register modules with the framework.
	// Order: independent modules first, then modules with dependencies
	// - storage: persistence services (GORM + SQLite)
	// - auth: token validation
	// - userinfo: display-info resolver (Redis cache over storage)
	// - chat: sessions, delivery tracking, presence, call signaling
	// - gateway: Fiber HTTP/WebSocket server
	app.Register(storageModule)
	app.Register(authModule)
	app.Register(userInfoModule)
	app.Register(chatModule)
	app.Register(gatewayModule)

	if err := app.Start(context.Background()); err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}

	printStartupInfo(port, authModule.Enabled())

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		shutdownTimeout,
		map[string]gfshutdown.Operation{
			"mono-app": func(ctx context.Context) error {
				log.Println("Graceful shutdown initiated...")
				return app.Stop(ctx)
			},
		},
	)

	exitCode := <-wait
	log.Printf("Application exited with code: %d", exitCode)
	os.Exit(exitCode)
}

func printStartupInfo(port string, authEnabled bool) {
	dbPath := os.Getenv("CHAT_DB_PATH")
	if dbPath == "" {
		dbPath = "chat.db"
	}
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "(disabled)"
	}

	log.Println("")
	log.Println("Application started successfully!")
	log.Println("")
	log.Println("Architecture:")
	log.Println("  - HTTP Framework: Fiber with WebSocket support")
	log.Printf("  - Persistence: SQLite via GORM (%s)", dbPath)
	log.Printf("  - Profile cache: Redis %s", redisAddr)
	log.Printf("  - Auth: JWT enabled=%v", authEnabled)
	log.Println("")
	log.Printf("REST API Endpoints (http://localhost:%s):", port)
	log.Println("  GET    /health                              - Health check")
	log.Println("  GET    /api/v1/users/:id/conversations      - List conversations")
	log.Println("  GET    /api/v1/users/:id/unread-count       - Total unread count")
	log.Println("  GET    /api/v1/conversations/:id/messages   - Message history")
	log.Println("")
	log.Printf("WebSocket Endpoint (ws://localhost:%s/ws):", port)
	if authEnabled {
		log.Println("  Connect with: ws://localhost:" + port + "/ws?token=<jwt>")
	} else {
		log.Println("  Connect with: ws://localhost:" + port + "/ws?userId=<uuid>&name=<display name>")
	}
	log.Println("  Client events: send-message, mark-as-seen, typing, call-user,")
	log.Println("                 accept-call, reject-call, cancel-call, ice-candidate,")
	log.Println("                 end-call, check-online, get-online-users")
	log.Println("  Server events: connected, user-online, user-offline, new-message,")
	log.Println("                 message-sent, message-delivered, messages-seen,")
	log.Println("                 user-typing, incoming-call, call-accepted, call-ended")
	log.Println("")
	log.Println("Press Ctrl+C to shutdown gracefully")
}
