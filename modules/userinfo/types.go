package userinfo

import domain "github.com/example/realtime-chat/domain/chat"

// GetDisplayInfoRequest asks for display info for a set of users.
type GetDisplayInfoRequest struct {
	UserIDs []string `json:"user_ids"`
}

// GetDisplayInfoResponse maps user id to display info. Every requested
// id has an entry; unknown users carry the fallback name.
type GetDisplayInfoResponse struct {
	Users map[string]domain.UserInfo `json:"users"`
}

// InvalidateRequest drops a cached profile.
type InvalidateRequest struct {
	UserID string `json:"user_id"`
}

// InvalidateResponse acknowledges the invalidation.
type InvalidateResponse struct {
	Invalidated bool `json:"invalidated"`
}
