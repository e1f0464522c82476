package models

import (
	"errors"
	"fmt"
	"strings"
)

// StatusID identifies a ticket status. The numeric values are shared with
// existing clients and must not change.
type StatusID int

const (
	StatusOpen              StatusID = 1
	StatusInAttendance      StatusID = 3
	StatusFinalized         StatusID = 4
	StatusClosureRequested  StatusID = 5
	StatusPausedByRequester StatusID = 14
)

// FinalizedStatusName is the display name some records carry instead of the id
const FinalizedStatusName = "Finalizado"

var (
	ErrUnknownStatus     = errors.New("unknown status")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Status is the denormalized status shown on a ticket
type Status struct {
	ID    StatusID `json:"id"`
	Name  string   `json:"name"`
	Color string   `json:"color"`
}

var statusTable = map[StatusID]Status{
	StatusOpen:              {ID: StatusOpen, Name: "Aberto", Color: "#3b82f6"},
	StatusInAttendance:      {ID: StatusInAttendance, Name: "Em atendimento", Color: "#f59e0b"},
	StatusClosureRequested:  {ID: StatusClosureRequested, Name: "Encerramento solicitado", Color: "#8b5cf6"},
	StatusPausedByRequester: {ID: StatusPausedByRequester, Name: "Pausado pelo solicitante", Color: "#6b7280"},
	StatusFinalized:         {ID: StatusFinalized, Name: FinalizedStatusName, Color: "#10b981"},
}

var statusTransitions = map[StatusID][]StatusID{
	StatusOpen:              {StatusInAttendance, StatusClosureRequested, StatusPausedByRequester, StatusFinalized},
	StatusInAttendance:      {StatusClosureRequested, StatusPausedByRequester, StatusFinalized},
	StatusClosureRequested:  {StatusInAttendance, StatusFinalized},
	StatusPausedByRequester: {StatusInAttendance, StatusFinalized},
	StatusFinalized:         {},
}

// Valid returns true if the id is a known status
func (s StatusID) Valid() bool {
	_, ok := statusTable[s]
	return ok
}

// Info returns the full status record for the id
func (s StatusID) Info() Status {
	if st, ok := statusTable[s]; ok {
		return st
	}
	return Status{ID: s, Name: fmt.Sprintf("status %d", int(s))}
}

// IsTerminal returns true if no transition leaves the status
func (s StatusID) IsTerminal() bool {
	return s.Valid() && len(statusTransitions[s]) == 0
}

// CanTransitionTo reports whether a ticket in s may move to next.
// Staying in the same status is always allowed and is a no-op.
func (s StatusID) CanTransitionTo(next StatusID) bool {
	if s == next {
		return true
	}
	for _, allowed := range statusTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// NextStatuses returns the statuses reachable from s
func (s StatusID) NextStatuses() []StatusID {
	next := make([]StatusID, len(statusTransitions[s]))
	copy(next, statusTransitions[s])
	return next
}

// ValidateTransition returns an error unless from may move to to
func ValidateTransition(from, to StatusID) error {
	if !to.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownStatus, int(to))
	}
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from.Info().Name, to.Info().Name)
	}
	return nil
}

// AllStatuses returns every known status ordered by id
func AllStatuses() []Status {
	ids := []StatusID{StatusOpen, StatusInAttendance, StatusFinalized, StatusClosureRequested, StatusPausedByRequester}
	out := make([]Status, 0, len(ids))
	for _, id := range ids {
		out = append(out, statusTable[id])
	}
	return out
}

// IsFinalizedName matches the finalized status by display name
func IsFinalizedName(name string) bool {
	return strings.EqualFold(strings.TrimSpace(name), FinalizedStatusName)
}
