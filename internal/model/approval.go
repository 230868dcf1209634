package model

import (
	"time"

	"github.com/google/uuid"
)

// Approver principal kinds. Only USER principals can satisfy the direct-approval
// check; other kinds are placeholders resolved by external tooling.
const (
	PrincipalKindUser   = "USER"
	PrincipalKindGroup  = "GROUP"
	PrincipalKindSystem = "SYSTEM"
)

// Decision verdict constants
const (
	VerdictApproved = "APPROVED"
	VerdictRejected = "REJECTED"
)

// ApproverPrincipal is an organization-level named approver slot (e.g. "Head of
// Engineering"), not a raw user. USER principals point at the user currently
// holding the slot.
type ApproverPrincipal struct {
	ID        uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OrgID     uuid.UUID  `gorm:"type:uuid;not null;index" json:"org_id"`
	Name      string     `gorm:"type:varchar(255);not null" json:"name"`
	Kind      string     `gorm:"type:varchar(20);not null;default:'USER'" json:"kind"`
	UserID    *uuid.UUID `gorm:"type:uuid;index" json:"user_id"` // set for kind=USER
	User      *User      `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Active    bool       `gorm:"not null;default:true" json:"active"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// ApprovalChain is the ordered approval pipeline for exactly one change request.
// Created once at submission time; never mutated or deleted afterwards.
type ApprovalChain struct {
	ID              uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ChangeRequestID uuid.UUID  `gorm:"type:uuid;not null;index" json:"change_request_id"`
	CreatedBy       *uuid.UUID `gorm:"type:uuid" json:"created_by"`
	CreatedAt       time.Time  `json:"created_at"`
}

// ApprovalStep is one ordered stage within a chain. StepOrder is unique within
// the chain; ascending order means earlier. Immutable once created.
type ApprovalStep struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ChainID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_chain_step_order" json:"chain_id"`
	StepOrder int       `gorm:"not null;uniqueIndex:idx_chain_step_order" json:"step_order"`
	Name      string    `gorm:"type:varchar(255)" json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// StepApprover declares that a principal must approve a given step. The step's
// required count is the number of its active rows.
type StepApprover struct {
	ID          uuid.UUID          `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	StepID      uuid.UUID          `gorm:"type:uuid;not null;index" json:"step_id"`
	PrincipalID uuid.UUID          `gorm:"type:uuid;not null;index" json:"principal_id"`
	Principal   *ApproverPrincipal `gorm:"foreignKey:PrincipalID" json:"principal,omitempty"`
	Active      bool               `gorm:"not null;default:true" json:"active"`
	CreatedAt   time.Time          `json:"created_at"`
}

// ApprovalDecision is one principal's verdict on one step. The unique index on
// (chain_id, step_id, principal_id) backs the upsert: a later submission
// overwrites, it never duplicates. ActingUserID may differ from the principal's
// user when the decision was recorded through a delegation.
type ApprovalDecision struct {
	ID           uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ChainID      uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_decision_key" json:"chain_id"`
	StepID       uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_decision_key" json:"step_id"`
	PrincipalID  uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_decision_key" json:"principal_id"`
	ActingUserID uuid.UUID `gorm:"type:uuid;not null;index" json:"acting_user_id"`
	ActingUser   *User     `gorm:"foreignKey:ActingUserID" json:"acting_user,omitempty"`
	Decision     string    `gorm:"type:varchar(20);not null" json:"decision"`
	Reason       string    `gorm:"type:text" json:"reason"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
