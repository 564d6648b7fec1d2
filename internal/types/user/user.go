package user

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID        uuid.UUID       `json:"id"`
	ClerkID   string          `json:"clerkId"`
	Username  string          `json:"username"`
	ImageURL  *string         `json:"imageUrl,omitempty"`
	Privacy   json.RawMessage `json:"privacy,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

type privacySettings struct {
	ShowLeaderboard *bool `json:"showLeaderboard"`
}

// ShowOnLeaderboard is false only when the privacy blob explicitly opts out.
// Missing or unparsable settings leave the user visible.
func (u *User) ShowOnLeaderboard() bool {
	if len(u.Privacy) == 0 {
		return true
	}
	var p privacySettings
	if err := json.Unmarshal(u.Privacy, &p); err != nil {
		return true
	}
	return p.ShowLeaderboard == nil || *p.ShowLeaderboard
}
