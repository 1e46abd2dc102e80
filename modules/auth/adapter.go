package auth

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
)

// Claims is the identity resolved from a validated token.
type Claims struct {
	UserID string
	Email  string
}

// Port defines the interface for token validation.
type Port interface {
	ValidateToken(ctx context.Context, token string) (*Claims, error)
}

// Adapter implements Port using the auth module's service container.
type Adapter struct {
	container mono.ServiceContainer
}

// NewAdapter creates a new auth adapter.
func NewAdapter(container mono.ServiceContainer) *Adapter {
	if container == nil {
		panic("auth: ServiceContainer is nil")
	}
	return &Adapter{container: container}
}

var _ Port = (*Adapter)(nil)

// ValidateToken validates an access token and returns its claims.
func (a *Adapter) ValidateToken(ctx context.Context, token string) (*Claims, error) {
	req := ValidateTokenRequest{Token: token}
	var resp ValidateTokenResponse

	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		"validate-token",
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return nil, fmt.Errorf("validate-token request failed: %w", err)
	}

	if !resp.Valid {
		return nil, fmt.Errorf("token validation failed: %s", resp.Error)
	}

	return &Claims{UserID: resp.UserID, Email: resp.Email}, nil
}
