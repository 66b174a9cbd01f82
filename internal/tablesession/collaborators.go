package tablesession

import (
	"context"
	"time"
)

// Store is the durable system of record. All writes for one session are
// issued by that session's actor.
type Store interface {
	// LoadSession returns ErrSessionNotFound for unknown ids.
	LoadSession(ctx context.Context, sessionID string) (*Snapshot, error)
	SaveParticipant(ctx context.Context, p Participant) error
	DeleteParticipant(ctx context.Context, sessionID, participantID string) error
	// ApplyAssignments saves and deletes assignments atomically.
	ApplyAssignments(ctx context.Context, sessionID string, change AssignmentChange) error
	SaveLock(ctx context.Context, sessionID string, status Status, lockedBy *string) error
	CloseSession(ctx context.Context, sessionID string, totalAmount int64, closedAt time.Time) error
}

type AssignmentChange struct {
	Saved   []Assignment
	Deleted []string
}

type Profile struct {
	DisplayName string
	AvatarURL   string
}

// Directory resolves an already authenticated user id to profile data.
type Directory interface {
	LookupUser(ctx context.Context, userID string) (Profile, error)
}

// Invoicer materializes settlement records for a finalized session. It must
// tolerate being called again for the same session.
type Invoicer interface {
	MaterializeSettlement(ctx context.Context, s Settlement) error
}

type Notifier interface {
	SessionFinalized(ctx context.Context, s Settlement) error
}
