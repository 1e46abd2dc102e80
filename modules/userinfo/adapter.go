package userinfo

import (
	"context"
	"encoding/json"
	"fmt"

	domain "github.com/example/realtime-chat/domain/chat"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
)

// Port is the interface other modules use for display-info lookups.
type Port interface {
	GetDisplayInfo(ctx context.Context, userIDs []string) (map[string]domain.UserInfo, error)
	Invalidate(ctx context.Context, userID string) error
}

// Adapter implements Port using the userinfo module's service
// container.
type Adapter struct {
	container mono.ServiceContainer
}

// NewAdapter creates a new userinfo adapter.
func NewAdapter(container mono.ServiceContainer) *Adapter {
	if container == nil {
		panic("userinfo: ServiceContainer is nil")
	}
	return &Adapter{container: container}
}

var _ Port = (*Adapter)(nil)

// GetDisplayInfo returns display info for every requested user id.
func (a *Adapter) GetDisplayInfo(ctx context.Context, userIDs []string) (map[string]domain.UserInfo, error) {
	req := GetDisplayInfoRequest{UserIDs: userIDs}
	var resp GetDisplayInfoResponse
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		"get-display-info",
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return nil, fmt.Errorf("get-display-info request failed: %w", err)
	}
	return resp.Users, nil
}

// Invalidate drops a user's cached profile.
func (a *Adapter) Invalidate(ctx context.Context, userID string) error {
	req := InvalidateRequest{UserID: userID}
	var resp InvalidateResponse
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		"invalidate",
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return fmt.Errorf("invalidate request failed: %w", err)
	}
	return nil
}
