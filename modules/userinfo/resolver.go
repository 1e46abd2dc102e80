package userinfo

import (
	"context"
	"log"

	domain "github.com/example/realtime-chat/domain/chat"
	"github.com/example/realtime-chat/modules/storage"
)

// UnknownUserName is shown when no profile exists for a user id.
const UnknownUserName = "Unknown User"

// infoStore is the slice of the storage port the resolver needs.
type infoStore interface {
	GetUsersInfo(ctx context.Context, userIDs []string) (storage.GetUsersInfoResponse, error)
}

// infoCache abstracts the Redis layer so the resolver works with the
// cache disabled.
type infoCache interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any) error
	Delete(ctx context.Context, key string) error
}

// Resolver answers display-info lookups, cache first, storage second.
// Ids with no stored profile come back with the unknown-user fallback
// so callers always get an entry per requested id.
type Resolver struct {
	store infoStore
	cache infoCache
}

// NewResolver creates a resolver. cache may be nil.
func NewResolver(store infoStore, cache infoCache) *Resolver {
	return &Resolver{store: store, cache: cache}
}

// Resolve returns display info for every requested id.
func (r *Resolver) Resolve(ctx context.Context, userIDs []string) (map[string]domain.UserInfo, error) {
	result := make(map[string]domain.UserInfo, len(userIDs))

	var missing []string
	for _, id := range userIDs {
		if id == "" {
			continue
		}
		if r.cache != nil {
			var info domain.UserInfo
			found, err := r.cache.Get(ctx, id, &info)
			if err != nil {
				// A broken cache degrades to storage reads.
				log.Printf("[userinfo] cache read failed for %s: %v", id, err)
			} else if found {
				result[id] = info
				continue
			}
		}
		missing = append(missing, id)
	}

	if len(missing) == 0 {
		return result, nil
	}

	resp, err := r.store.GetUsersInfo(ctx, missing)
	if err != nil {
		return nil, err
	}

	for _, id := range missing {
		status, ok := resp.Users[id]
		info := domain.UserInfo{UserID: id, Name: UnknownUserName}
		if ok {
			if status.Name != "" {
				info.Name = status.Name
			}
			info.Avatar = status.Avatar
		}
		result[id] = info

		// Only real profiles are worth caching: an unknown user may be
		// created at any moment.
		if ok && r.cache != nil {
			if err := r.cache.Set(ctx, id, info); err != nil {
				log.Printf("[userinfo] cache write failed for %s: %v", id, err)
			}
		}
	}

	return result, nil
}

// Invalidate drops a user's cached entry after a profile update.
func (r *Resolver) Invalidate(ctx context.Context, userID string) {
	if r.cache == nil || userID == "" {
		return
	}
	if err := r.cache.Delete(ctx, userID); err != nil {
		log.Printf("[userinfo] cache invalidate failed for %s: %v", userID, err)
	}
}
