package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ResourceType is the domain category a mutation targets
type ResourceType string

const (
	ResourceBooking      ResourceType = "booking"
	ResourceProfile      ResourceType = "profile"
	ResourcePayment      ResourceType = "payment"
	ResourceNotification ResourceType = "notification"
	ResourceCustom       ResourceType = "custom"
)

// Action is the kind of change a mutation carries
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Priority orders mutations across bands; FIFO within a band
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium" // default
	PriorityLow    Priority = "low"
)

// DefaultMaxRetries is the retry ceiling applied when enqueue options leave it unset.
const DefaultMaxRetries = 3

// DefaultTenant scopes records enqueued without an explicit tenant.
const DefaultTenant = "default"

var (
	ErrInvalidResourceType = errors.New("invalid resource type")
	ErrInvalidAction       = errors.New("invalid action")
	ErrInvalidPriority     = errors.New("invalid priority")
)

// Rank returns the ordering weight of a priority: high=3, medium=2, low=1.
// Unknown priorities rank with medium.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityLow:
		return 1
	default:
		return 2
	}
}

// AllResourceTypes returns all valid resource types.
func AllResourceTypes() []ResourceType {
	return []ResourceType{ResourceBooking, ResourceProfile, ResourcePayment, ResourceNotification, ResourceCustom}
}

// IsValid reports whether rt is a known resource type
func (rt ResourceType) IsValid() bool {
	switch rt {
	case ResourceBooking, ResourceProfile, ResourcePayment, ResourceNotification, ResourceCustom:
		return true
	}
	return false
}

// IsValid reports whether a is a known action
func (a Action) IsValid() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete:
		return true
	}
	return false
}

// IsValid reports whether p is a known priority
func (p Priority) IsValid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// ParseResourceType normalizes user input ("Bookings", "user_profile") to a
// canonical resource type.
func ParseResourceType(s string) (ResourceType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "booking", "bookings":
		return ResourceBooking, nil
	case "profile", "profiles", "user_profile", "user-profile":
		return ResourceProfile, nil
	case "payment", "payments":
		return ResourcePayment, nil
	case "notification", "notifications":
		return ResourceNotification, nil
	case "custom":
		return ResourceCustom, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidResourceType, s)
}

// ParseAction normalizes an action name
func ParseAction(s string) (Action, error) {
	a := Action(strings.ToLower(strings.TrimSpace(s)))
	if !a.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidAction, s)
	}
	return a, nil
}

// ParsePriority normalizes a priority name; empty input yields medium.
func ParsePriority(s string) (Priority, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return PriorityMedium, nil
	}
	p := Priority(s)
	if !p.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidPriority, s)
	}
	return p, nil
}

// MutationRecord is a queued create/update/delete awaiting delivery.
type MutationRecord struct {
	ID           string          `json:"id"`
	ResourceType ResourceType    `json:"resource_type"`
	Action       Action          `json:"action"`
	Payload      json.RawMessage `json:"payload"`
	CreatedAt    time.Time       `json:"created_at"`
	Tenant       string          `json:"tenant"`
	RetryCount   int             `json:"retry_count"`
	MaxRetries   int             `json:"max_retries"`
	Priority     Priority        `json:"priority"`
	LastError    string          `json:"last_error,omitempty"`
	Seq          int64           `json:"seq"` // store insertion order, FIFO tiebreaker
}

// Before reports whether m sorts ahead of other in drain order:
// higher priority first, then older CreatedAt, then lower Seq.
func (m *MutationRecord) Before(other *MutationRecord) bool {
	if rm, ro := m.Priority.Rank(), other.Priority.Rank(); rm != ro {
		return rm > ro
	}
	if !m.CreatedAt.Equal(other.CreatedAt) {
		return m.CreatedAt.Before(other.CreatedAt)
	}
	return m.Seq < other.Seq
}

// ConflictResolution records how a manual conflict was settled
type ConflictResolution string

const (
	ResolutionServer ConflictResolution = "server"
	ResolutionClient ConflictResolution = "client"
)

// ConflictRecord is a server-reported conflict parked for external resolution.
type ConflictRecord struct {
	ID           string             `json:"id"`
	MutationID   string             `json:"mutation_id"`
	ResourceType ResourceType       `json:"resource_type"`
	Action       Action             `json:"action"`
	Tenant       string             `json:"tenant"`
	ClientData   json.RawMessage    `json:"client_data"`
	ServerData   json.RawMessage    `json:"server_data"`
	Resolved     bool               `json:"resolved"`
	Resolution   ConflictResolution `json:"resolution,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
	ResolvedAt   *time.Time         `json:"resolved_at,omitempty"`
}

// SyncMetadata summarises the last completed drain for one engine tenant.
type SyncMetadata struct {
	Tenant       string     `json:"tenant"`
	LastSyncTime *time.Time `json:"last_sync_time,omitempty"`
	Successful   int        `json:"successful"`
	Failed       int        `json:"failed"`
}

// SyncOutcome is the result recorded in sync history for one processed mutation
type SyncOutcome string

const (
	OutcomeSynced    SyncOutcome = "synced"
	OutcomeConflict  SyncOutcome = "conflict"
	OutcomeRetry     SyncOutcome = "retry"
	OutcomeAbandoned SyncOutcome = "abandoned"
	OutcomeExpired   SyncOutcome = "expired"
)

// SyncHistoryEntry is one row of the sync_history audit table.
type SyncHistoryEntry struct {
	ID           int64        `json:"id"`
	MutationID   string       `json:"mutation_id"`
	ResourceType ResourceType `json:"resource_type"`
	Action       Action       `json:"action"`
	Tenant       string       `json:"tenant"`
	Outcome      SyncOutcome  `json:"outcome"`
	Strategy     string       `json:"strategy,omitempty"`
	Error        string       `json:"error,omitempty"`
	Timestamp    time.Time    `json:"timestamp"`
}
