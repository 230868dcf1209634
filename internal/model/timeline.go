package model

import (
	"time"

	"github.com/google/uuid"
)

// Timeline event names
const (
	EventRequestCreated    = "REQUEST_CREATED"
	EventRequestSubmitted  = "REQUEST_SUBMITTED"
	EventStepDecided       = "STEP_DECIDED"
	EventChainApproved     = "CHAIN_APPROVED"
	EventDelegationCreated = "DELEGATION_CREATED"
	EventDelegationRevoked = "DELEGATION_REVOKED"
)

// Actor roles recorded on timeline events
const (
	ActorRoleApprover = "APPROVER"
	ActorRoleDelegate = "DELEGATE"
	ActorRoleSystem   = "SYSTEM"
)

// TimelineEvent tracks Who, What, and When for the change-request feed.
// Written best-effort by the notifier — a failed insert is logged, never
// surfaced to the caller.
type TimelineEvent struct {
	ID              uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OrgID           uuid.UUID  `gorm:"type:uuid;not null;index" json:"org_id"`
	ChangeRequestID *uuid.UUID `gorm:"type:uuid;index" json:"change_request_id"`
	ChainID         *uuid.UUID `gorm:"type:uuid;index" json:"chain_id"`
	StepID          *uuid.UUID `gorm:"type:uuid" json:"step_id"`
	ActorUserID     *uuid.UUID `gorm:"type:uuid;index" json:"actor_user_id"`
	Actor           *User      `gorm:"foreignKey:ActorUserID" json:"actor,omitempty"`
	ActorRole       string     `gorm:"type:varchar(20);not null;default:'SYSTEM'" json:"actor_role"`
	Event           string     `gorm:"type:varchar(50);not null;index" json:"event"`
	Details         string     `gorm:"type:jsonb" json:"details"` // serialized JSON payload
	CreatedAt       time.Time  `gorm:"index" json:"created_at"`
}
