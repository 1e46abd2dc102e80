package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	domain "github.com/example/realtime-chat/domain/chat"
)

// StorageModule persists conversations, messages and user status via
// GORM + SQLite and exposes them as request-reply services.
type StorageModule struct {
	db     *gorm.DB
	repo   *Repository
	dbPath string
}

// Compile-time interface checks.
var _ mono.Module = (*StorageModule)(nil)
var _ mono.ServiceProviderModule = (*StorageModule)(nil)
var _ mono.HealthCheckableModule = (*StorageModule)(nil)

// NewModule creates a new StorageModule.
func NewModule() *StorageModule {
	dbPath := os.Getenv("CHAT_DB_PATH")
	if dbPath == "" {
		dbPath = "chat.db"
	}
	return &StorageModule{
		dbPath: dbPath,
	}
}

// Name returns the module name.
func (m *StorageModule) Name() string {
	return "storage"
}

// Health performs a health check on the storage module.
func (m *StorageModule) Health(ctx context.Context) mono.HealthStatus {
	if m.db == nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: "database not initialized",
		}
	}

	sqlDB, err := m.db.DB()
	if err != nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: fmt.Sprintf("failed to get sql.DB: %v", err),
		}
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: fmt.Sprintf("database ping failed: %v", err),
		}
	}

	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"driver": "sqlite",
			"path":   m.dbPath,
		},
	}
}

// RegisterServices registers request-reply services in the service
// container.
func (m *StorageModule) RegisterServices(container mono.ServiceContainer) error {
	services := []struct {
		name     string
		register func() error
	}{
		{"send-message", func() error {
			return helper.RegisterTypedRequestReplyService(container, "send-message", json.Unmarshal, json.Marshal, m.sendMessage)
		}},
		{"get-conversation", func() error {
			return helper.RegisterTypedRequestReplyService(container, "get-conversation", json.Unmarshal, json.Marshal, m.getConversation)
		}},
		{"mark-delivered", func() error {
			return helper.RegisterTypedRequestReplyService(container, "mark-delivered", json.Unmarshal, json.Marshal, m.markDelivered)
		}},
		{"mark-read", func() error {
			return helper.RegisterTypedRequestReplyService(container, "mark-read", json.Unmarshal, json.Marshal, m.markRead)
		}},
		{"save-call-message", func() error {
			return helper.RegisterTypedRequestReplyService(container, "save-call-message", json.Unmarshal, json.Marshal, m.saveCallMessage)
		}},
		{"set-online", func() error {
			return helper.RegisterTypedRequestReplyService(container, "set-online", json.Unmarshal, json.Marshal, m.setOnline)
		}},
		{"upsert-user-info", func() error {
			return helper.RegisterTypedRequestReplyService(container, "upsert-user-info", json.Unmarshal, json.Marshal, m.upsertUserInfo)
		}},
		{"get-users-info", func() error {
			return helper.RegisterTypedRequestReplyService(container, "get-users-info", json.Unmarshal, json.Marshal, m.getUsersInfo)
		}},
		{"list-conversations", func() error {
			return helper.RegisterTypedRequestReplyService(container, "list-conversations", json.Unmarshal, json.Marshal, m.listConversations)
		}},
		{"list-messages", func() error {
			return helper.RegisterTypedRequestReplyService(container, "list-messages", json.Unmarshal, json.Marshal, m.listMessages)
		}},
		{"unread-count", func() error {
			return helper.RegisterTypedRequestReplyService(container, "unread-count", json.Unmarshal, json.Marshal, m.unreadCount)
		}},
	}

	for _, svc := range services {
		if err := svc.register(); err != nil {
			return fmt.Errorf("failed to register %s service: %w", svc.name, err)
		}
	}

	log.Printf("[storage] Registered %d services", len(services))
	return nil
}

// Start opens the database connection and runs migrations.
func (m *StorageModule) Start(_ context.Context) error {
	log.Printf("[storage] Connecting to SQLite database: %s", m.dbPath)

	logLevel := logger.Silent
	if os.Getenv("DB_DEBUG") == "true" {
		logLevel = logger.Info
	}

	db, err := gorm.Open(sqlite.Open(m.dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	m.db = db

	if err := m.db.AutoMigrate(
		&domain.Conversation{},
		&domain.Message{},
		&domain.UserStatus{},
	); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	m.repo = NewRepository(m.db)

	log.Println("[storage] Module started successfully")
	return nil
}

// Stop closes the database connection.
func (m *StorageModule) Stop(_ context.Context) error {
	if m.db == nil {
		return nil
	}

	log.Println("[storage] Closing database connection...")

	sqlDB, err := m.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}

	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	log.Println("[storage] Database connection closed")
	return nil
}
