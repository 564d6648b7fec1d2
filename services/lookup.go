package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"focusforgeAPI/internal/store"
)

func resolveUserID(ctx context.Context, q store.Queries, clerkID string) (uuid.UUID, error) {
	userID, err := q.GetUserIDByClerkID(ctx, clerkID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("user not found: %w", err)
	}
	return userID, nil
}
