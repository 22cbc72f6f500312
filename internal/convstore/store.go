// Package convstore persists conversation transcripts and user profiles.
// Encryption is applied by a Codec at the store boundary.
package convstore

import (
	"context"
	"errors"
	"time"

	"github.com/ashureev/agentdesk/internal/domain"
)

// ErrNotFound is returned when no snapshot exists for a user.
var ErrNotFound = errors.New("conversation not found")

// Snapshot is the persisted state of one user's conversation.
type Snapshot struct {
	UserID    string             `json:"userId"`
	Messages  []domain.Message   `json:"messages"`
	Profile   domain.UserProfile `json:"profile"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// Store loads and saves snapshots keyed by user id.
type Store interface {
	// Load returns the user's snapshot. A missing or undecodable record yields
	// an empty snapshot and no error.
	Load(ctx context.Context, userID string) (Snapshot, error)
	Save(ctx context.Context, snap Snapshot) error
	Close() error
}

func emptySnapshot(userID string) Snapshot {
	return Snapshot{UserID: userID, Messages: []domain.Message{}}
}
