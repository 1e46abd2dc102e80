package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
)

// AuthModule validates access tokens on behalf of the gateway. Token
// issuance and credential management live in the external identity
// service; this module only shares its signing secret.
type AuthModule struct {
	jwtManager *JWTManager
	enabled    bool
}

// Compile-time interface checks.
var _ mono.Module = (*AuthModule)(nil)
var _ mono.ServiceProviderModule = (*AuthModule)(nil)
var _ mono.HealthCheckableModule = (*AuthModule)(nil)

// NewModule creates a new AuthModule. With no JWT_SECRET_KEY in the
// environment the module stays in dev mode: validation requests are
// rejected and the gateway falls back to plain userId admission.
func NewModule() *AuthModule {
	config := DefaultJWTConfig()
	config.SecretKey = os.Getenv("JWT_SECRET_KEY")

	return &AuthModule{
		jwtManager: NewJWTManager(config),
		enabled:    config.SecretKey != "",
	}
}

// Name returns the module name.
func (m *AuthModule) Name() string {
	return "auth"
}

// Enabled reports whether a signing secret is configured.
func (m *AuthModule) Enabled() bool {
	return m.enabled
}

// Start initializes the auth module.
func (m *AuthModule) Start(_ context.Context) error {
	if m.enabled {
		log.Println("[auth] Module started (token validation enabled)")
	} else {
		log.Println("[auth] Module started (no JWT_SECRET_KEY, dev mode)")
	}
	return nil
}

// Stop shuts down the module.
func (m *AuthModule) Stop(_ context.Context) error {
	log.Println("[auth] Module stopped")
	return nil
}

// Health returns the health status of the module.
func (m *AuthModule) Health(_ context.Context) mono.HealthStatus {
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"token_validation": m.enabled,
		},
	}
}

// RegisterServices registers the validate-token service.
func (m *AuthModule) RegisterServices(container mono.ServiceContainer) error {
	if err := helper.RegisterTypedRequestReplyService(
		container, "validate-token", json.Unmarshal, json.Marshal, m.validateToken,
	); err != nil {
		return fmt.Errorf("failed to register validate-token service: %w", err)
	}

	log.Printf("[auth] Registered services: services.auth.validate-token")
	return nil
}

// validateToken handles the auth.validate-token service request.
func (m *AuthModule) validateToken(_ context.Context, req ValidateTokenRequest, _ *mono.Msg) (ValidateTokenResponse, error) {
	if !m.enabled {
		return ValidateTokenResponse{Valid: false, Error: "token validation disabled"}, nil
	}
	if req.Token == "" {
		return ValidateTokenResponse{Valid: false, Error: "token is required"}, nil
	}

	claims, err := m.jwtManager.ValidateAccessToken(req.Token)
	if err != nil {
		return ValidateTokenResponse{Valid: false, Error: err.Error()}, nil
	}

	return ValidateTokenResponse{
		Valid:  true,
		UserID: claims.UserID,
		Email:  claims.Email,
	}, nil
}
