// README: Trip aggregate, status flow and transition records.
package trip

import (
	"errors"
	"time"

	"fleettrack/internal/modules/geofence"
	"fleettrack/internal/modules/route"
	"fleettrack/internal/types"
)

type Status string

const (
	StatusAssigned             Status = "ASSIGNED"
	StatusAccepted             Status = "ACCEPTED"
	StatusInProgress           Status = "IN_PROGRESS"
	StatusAwaitingConfirmation Status = "AWAITING_CONFIRMATION"
	StatusCompleted            Status = "COMPLETED"
)

// ActiveStatuses are the statuses a tracker keeps a worker for.
var ActiveStatuses = []Status{StatusAssigned, StatusAccepted, StatusInProgress, StatusAwaitingConfirmation}

// AllowedTransitions represents the trip state flow as code. Force-complete
// is handled separately by CanForceComplete.
var AllowedTransitions = map[Status][]Status{
	StatusAssigned:             {StatusAccepted},
	StatusAccepted:             {StatusInProgress},
	StatusInProgress:           {StatusAwaitingConfirmation},
	StatusAwaitingConfirmation: {StatusCompleted},
}

func CanTransition(from, to Status) bool {
	for _, s := range AllowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func CanForceComplete(from Status) bool {
	_, ok := AllowedTransitions[from]
	return ok
}

func (s Status) Terminal() bool {
	return s == StatusCompleted
}

var (
	ErrNotFound      = errors.New("trip not found")
	ErrInvalidState  = errors.New("invalid state transition")
	ErrConflict      = errors.New("trip state conflict")
	ErrBadRequest    = errors.New("bad request")
	ErrWrongDriver   = errors.New("trip assigned to another driver")
	ErrTrackerClosed = errors.New("tracker closed")
	// ErrTransient marks a transition that was not persisted and may be retried.
	ErrTransient = errors.New("transient failure")
)

type Trip struct {
	ID            types.ID `firestore:"-" json:"id"`
	Status        Status   `firestore:"status" json:"status"`
	StatusVersion int      `firestore:"statusVersion" json:"status_version"`
	DriverID      types.ID `firestore:"assignedDriverId" json:"assigned_driver_id"`

	Destination          geofence.Destination `firestore:"destination" json:"destination"`
	GeofenceRadiusMeters float64              `firestore:"geofenceRadiusMeters,omitempty" json:"geofence_radius_meters,omitempty"`
	Geofence             *geofence.Geofence   `firestore:"geofence,omitempty" json:"geofence,omitempty"`

	// GeofenceKey is the destination key the stored geofence was resolved for.
	GeofenceKey string `firestore:"geofenceKey,omitempty" json:"-"`

	DistanceRemainingMeters *float64        `firestore:"distanceRemainingMeters,omitempty" json:"distance_remaining_meters,omitempty"`
	ETASeconds              *int            `firestore:"etaSeconds,omitempty" json:"eta_seconds,omitempty"`
	RouteSummary            *route.Summary  `firestore:"routeSummary,omitempty" json:"route_summary,omitempty"`
	Route                   *route.Route    `firestore:"-" json:"route,omitempty"`
	LastPosition            *types.Position `firestore:"-" json:"last_position,omitempty"`

	CreatedAt   time.Time  `firestore:"createdAt" json:"created_at"`
	StartedAt   *time.Time `firestore:"startedAt,omitempty" json:"started_at,omitempty"`
	MovingAt    *time.Time `firestore:"movingAt,omitempty" json:"moving_at,omitempty"`
	ArrivedAt   *time.Time `firestore:"arrivedAt,omitempty" json:"arrived_at,omitempty"`
	ConfirmedAt *time.Time `firestore:"confirmedAt,omitempty" json:"confirmed_at,omitempty"`
	CompletedAt *time.Time `firestore:"completedAt,omitempty" json:"completed_at,omitempty"`

	ForceCompleted bool   `firestore:"forceCompleted" json:"force_completed"`
	ForceReason    string `firestore:"forceReason,omitempty" json:"force_reason,omitempty"`
	ForcedBy       string `firestore:"forcedBy,omitempty" json:"forced_by,omitempty"`
}

// Clone returns a copy that shares no pointers with t.
func (t Trip) Clone() Trip {
	cp := t
	if t.Geofence != nil {
		g := t.Geofence.Clone()
		cp.Geofence = &g
	}
	if t.Destination.Point != nil {
		p := *t.Destination.Point
		cp.Destination.Point = &p
	}
	if t.Route != nil {
		r := t.Route.Clone()
		cp.Route = &r
	}
	cp.DistanceRemainingMeters = clonePtr(t.DistanceRemainingMeters)
	cp.ETASeconds = clonePtr(t.ETASeconds)
	cp.RouteSummary = clonePtr(t.RouteSummary)
	cp.LastPosition = clonePtr(t.LastPosition)
	cp.StartedAt = clonePtr(t.StartedAt)
	cp.MovingAt = clonePtr(t.MovingAt)
	cp.ArrivedAt = clonePtr(t.ArrivedAt)
	cp.ConfirmedAt = clonePtr(t.ConfirmedAt)
	cp.CompletedAt = clonePtr(t.CompletedAt)
	return cp
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

type ActorType string

const (
	ActorDriver   ActorType = "driver"
	ActorOperator ActorType = "operator"
	ActorSystem   ActorType = "system"
)

type Actor struct {
	Type ActorType
	ID   string
}

// Transition is one status change. It is persisted as a single write of the
// status plus the timestamp fields it implies.
type Transition struct {
	TripID      types.ID
	From        Status
	To          Status
	FromVersion int
	At          time.Time
	Actor       Actor
	Reason      string
	Forced      bool
}

// Apply returns the trip after tr. The receiver is not modified.
func (t Trip) Apply(tr Transition) Trip {
	next := t.Clone()
	next.Status = tr.To
	next.StatusVersion = tr.FromVersion + 1
	at := tr.At
	if tr.Forced {
		next.CompletedAt = &at
		next.ForceCompleted = true
		next.ForceReason = tr.Reason
		next.ForcedBy = tr.Actor.ID
		return next
	}
	switch tr.To {
	case StatusAccepted:
		next.StartedAt = &at
	case StatusInProgress:
		next.MovingAt = &at
	case StatusAwaitingConfirmation:
		next.ArrivedAt = &at
	case StatusCompleted:
		next.ConfirmedAt = &at
		next.CompletedAt = &at
	}
	return next
}

// Fields lists the persisted attributes tr writes, keyed by store field name.
func (tr Transition) Fields() map[string]any {
	f := map[string]any{
		"status":        string(tr.To),
		"statusVersion": tr.FromVersion + 1,
	}
	if tr.Forced {
		f["completedAt"] = tr.At
		f["forceCompleted"] = true
		f["forceReason"] = tr.Reason
		f["forcedBy"] = tr.Actor.ID
		return f
	}
	switch tr.To {
	case StatusAccepted:
		f["startedAt"] = tr.At
	case StatusInProgress:
		f["movingAt"] = tr.At
	case StatusAwaitingConfirmation:
		f["arrivedAt"] = tr.At
	case StatusCompleted:
		f["confirmedAt"] = tr.At
		f["completedAt"] = tr.At
	}
	return f
}

// Event is the history record of an applied transition.
type Event struct {
	ID        string    `json:"id"`
	TripID    types.ID  `json:"trip_id"`
	From      Status    `json:"from"`
	To        Status    `json:"to"`
	ActorType ActorType `json:"actor_type"`
	ActorID   string    `json:"actor_id,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Forced    bool      `json:"forced"`
	CreatedAt time.Time `json:"created_at"`
}

// Progress is the best-effort dispatcher-visible tracking state.
type Progress struct {
	DistanceRemainingMeters float64
	ETASeconds              int
	UpdatedAt               time.Time
}
