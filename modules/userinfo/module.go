package userinfo

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/redis/go-redis/v9"

	"github.com/example/realtime-chat/modules/storage"
)

// UserInfoModule serves display-info lookups for the realtime layer,
// with an optional Redis cache in front of storage.
type UserInfoModule struct {
	resolver  *Resolver
	store     storage.Port
	client    *redis.Client
	cache     *Cache
	redisAddr string
	ttl       time.Duration
}

// Compile-time interface checks.
var _ mono.Module = (*UserInfoModule)(nil)
var _ mono.ServiceProviderModule = (*UserInfoModule)(nil)
var _ mono.DependentModule = (*UserInfoModule)(nil)
var _ mono.HealthCheckableModule = (*UserInfoModule)(nil)

// NewModule creates a new UserInfoModule. Leaving REDIS_ADDR unset
// disables the cache; lookups then read straight through to storage.
func NewModule() *UserInfoModule {
	return &UserInfoModule{
		redisAddr: os.Getenv("REDIS_ADDR"),
		ttl:       5 * time.Minute,
	}
}

// Name returns the module name.
func (m *UserInfoModule) Name() string {
	return "userinfo"
}

// Dependencies returns the list of module dependencies.
func (m *UserInfoModule) Dependencies() []string {
	return []string{"storage"}
}

// SetDependencyServiceContainer receives service containers from
// dependencies.
func (m *UserInfoModule) SetDependencyServiceContainer(dependency string, container mono.ServiceContainer) {
	switch dependency {
	case "storage":
		m.store = storage.NewAdapter(container)
	}
}

// Start connects to Redis when configured and builds the resolver.
func (m *UserInfoModule) Start(ctx context.Context) error {
	if m.store == nil {
		return fmt.Errorf("storage dependency not set")
	}

	if m.redisAddr != "" {
		m.client = redis.NewClient(&redis.Options{
			Addr:         m.redisAddr,
			PoolSize:     50,
			MinIdleConns: 5,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		})
		if err := m.client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		m.cache = NewCache(m.client, "userinfo:", m.ttl)
		log.Printf("[userinfo] Connected to Redis at %s (TTL: %s)", m.redisAddr, m.ttl)
	} else {
		log.Println("[userinfo] No REDIS_ADDR, caching disabled")
	}

	if m.cache != nil {
		m.resolver = NewResolver(m.store, m.cache)
	} else {
		m.resolver = NewResolver(m.store, nil)
	}

	log.Println("[userinfo] Module started")
	return nil
}

// Stop closes the Redis connection.
func (m *UserInfoModule) Stop(_ context.Context) error {
	if m.client != nil {
		if err := m.client.Close(); err != nil {
			return fmt.Errorf("failed to close Redis connection: %w", err)
		}
	}
	log.Println("[userinfo] Module stopped")
	return nil
}

// Health returns the health status of the module.
func (m *UserInfoModule) Health(ctx context.Context) mono.HealthStatus {
	details := map[string]any{
		"cache_enabled": m.cache != nil,
	}
	if m.cache != nil {
		if err := m.cache.Ping(ctx); err != nil {
			return mono.HealthStatus{
				Healthy: false,
				Message: fmt.Sprintf("redis ping failed: %v", err),
				Details: details,
			}
		}
		details["cache_stats"] = m.cache.StatsSnapshot()
	}
	return mono.HealthStatus{
		Healthy: m.resolver != nil,
		Message: "operational",
		Details: details,
	}
}

// RegisterServices registers the display-info services.
func (m *UserInfoModule) RegisterServices(container mono.ServiceContainer) error {
	if err := helper.RegisterTypedRequestReplyService(
		container, "get-display-info", json.Unmarshal, json.Marshal, m.getDisplayInfo,
	); err != nil {
		return fmt.Errorf("failed to register get-display-info service: %w", err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container, "invalidate", json.Unmarshal, json.Marshal, m.invalidate,
	); err != nil {
		return fmt.Errorf("failed to register invalidate service: %w", err)
	}

	log.Printf("[userinfo] Registered services: services.userinfo.{get-display-info,invalidate}")
	return nil
}

// getDisplayInfo handles the userinfo.get-display-info service request.
func (m *UserInfoModule) getDisplayInfo(ctx context.Context, req GetDisplayInfoRequest, _ *mono.Msg) (GetDisplayInfoResponse, error) {
	if m.resolver == nil {
		return GetDisplayInfoResponse{}, fmt.Errorf("module not started")
	}
	users, err := m.resolver.Resolve(ctx, req.UserIDs)
	if err != nil {
		return GetDisplayInfoResponse{}, err
	}
	return GetDisplayInfoResponse{Users: users}, nil
}

// invalidate handles the userinfo.invalidate service request, dropping
// a cached profile after it changed.
func (m *UserInfoModule) invalidate(ctx context.Context, req InvalidateRequest, _ *mono.Msg) (InvalidateResponse, error) {
	if m.resolver != nil {
		m.resolver.Invalidate(ctx, req.UserID)
	}
	return InvalidateResponse{Invalidated: true}, nil
}
