package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Lane enum constants — the execution lane a change request currently sits in
const (
	LaneIntake    = "INTAKE"
	LaneAnalysis  = "ANALYSIS"
	LaneReview    = "REVIEW"
	LaneExecution = "EXECUTION"
	LaneDone      = "DONE"
)

// Decision status enum constants
const (
	DecisionNone      = "NONE"
	DecisionSubmitted = "SUBMITTED"
	DecisionApproved  = "APPROVED"
	DecisionRejected  = "REJECTED"
)

// ChangeRequest is the host entity gated by the approval chain. Its lane tracks
// where the request sits in the delivery pipeline; decision_status tracks the
// outcome of the review. Only the approval orchestrator moves decision_status
// past SUBMITTED.
type ChangeRequest struct {
	ID             uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OrgID          uuid.UUID       `gorm:"type:uuid;not null;index" json:"org_id"`
	ProjectID      uuid.UUID       `gorm:"type:uuid;not null;index" json:"project_id"`
	Code           string          `gorm:"type:varchar(30);uniqueIndex;not null" json:"code"` // e.g. CR-20260901-00001
	Title          string          `gorm:"type:varchar(255);not null" json:"title"`
	Description    string          `gorm:"type:text" json:"description"`
	Lane           string          `gorm:"type:varchar(20);not null;default:'INTAKE';index" json:"lane"`
	DecisionStatus string          `gorm:"type:varchar(20);not null;default:'NONE';index" json:"decision_status"`
	BudgetImpact   decimal.Decimal `gorm:"type:numeric(14,2);default:0" json:"budget_impact"`
	ScheduleImpact int             `gorm:"default:0" json:"schedule_impact_days"`
	RequestedBy    *uuid.UUID      `gorm:"type:uuid;index" json:"requested_by"`
	Requester      *User           `gorm:"foreignKey:RequestedBy" json:"requester,omitempty"`
	DecisionBy     *uuid.UUID      `gorm:"type:uuid" json:"decision_by"`
	Decider        *User           `gorm:"foreignKey:DecisionBy" json:"decider,omitempty"`
	DecisionAt     *time.Time      `json:"decision_at"`
	DecisionNote   string          `gorm:"type:text" json:"decision_note"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}
