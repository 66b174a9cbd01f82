package tablesession

import "github.com/susu3304/tablesplit/internal/hub"

// Command is a request processed by a session actor. Origin is the
// connection that issued it, or nil for internal and REST callers.
type Command interface {
	origin() *hub.Client
}

type Join struct {
	Origin *hub.Client
	// UserID is nil for anonymous participants.
	UserID *string
}

type AssignItem struct {
	Origin          *hub.Client
	OrderItemID     string
	CreditorID      string
	DebtorID        *string
	RequestedAmount int64
}

type UpdateAssignment struct {
	Origin       *hub.Client
	AssignmentID string
	Amount       int64
}

type RemoveAssignment struct {
	Origin       *hub.Client
	AssignmentID string
}

type GetSelectableParticipants struct {
	Origin        *hub.Client
	OrderItemID   string
	ParticipantID string
}

type GetPayingForParticipants struct {
	Origin        *hub.Client
	OrderItemID   string
	ParticipantID string
}

type RequestSummary struct {
	Origin *hub.Client
}

type ValidateAssignments struct {
	Origin *hub.Client
}

type LockSession struct {
	Origin        *hub.Client
	ParticipantID string
}

type UnlockSession struct {
	Origin        *hub.Client
	ParticipantID string
}

type FinalizeSession struct {
	Origin        *hub.Client
	ParticipantID string
}

type Leave struct {
	Origin        *hub.Client
	ParticipantID string
}

// Disconnect is issued when the last connection of a participant closes.
type Disconnect struct {
	ParticipantID string
}

type CalculateEqualSplit struct {
	Origin *hub.Client
}

// GetState replies with the full session_state snapshot.
type GetState struct {
	Origin *hub.Client
}

// GetSummary returns the summary to the caller without broadcasting it.
type GetSummary struct{}

func (c Join) origin() *hub.Client                      { return c.Origin }
func (c AssignItem) origin() *hub.Client                { return c.Origin }
func (c UpdateAssignment) origin() *hub.Client          { return c.Origin }
func (c RemoveAssignment) origin() *hub.Client          { return c.Origin }
func (c GetSelectableParticipants) origin() *hub.Client { return c.Origin }
func (c GetPayingForParticipants) origin() *hub.Client  { return c.Origin }
func (c RequestSummary) origin() *hub.Client            { return c.Origin }
func (c ValidateAssignments) origin() *hub.Client       { return c.Origin }
func (c LockSession) origin() *hub.Client               { return c.Origin }
func (c UnlockSession) origin() *hub.Client             { return c.Origin }
func (c FinalizeSession) origin() *hub.Client           { return c.Origin }
func (c Leave) origin() *hub.Client                     { return c.Origin }
func (c Disconnect) origin() *hub.Client                { return nil }
func (c CalculateEqualSplit) origin() *hub.Client       { return c.Origin }
func (c GetState) origin() *hub.Client                  { return c.Origin }
func (c GetSummary) origin() *hub.Client                { return nil }

// caller resolves the acting participant from an explicit id or the
// origin's binding.
func caller(explicit string, origin *hub.Client) string {
	if explicit != "" {
		return explicit
	}
	if origin != nil {
		return origin.ParticipantID()
	}
	return ""
}
