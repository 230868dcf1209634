package repository

import (
	"context"

	"pmo-backend/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DecisionRepository persists approval decisions. The single write path is an
// upsert keyed on (chain_id, step_id, principal_id): resubmitting a decision
// overwrites the verdict, reason and acting user, it never duplicates a row.
type DecisionRepository interface {
	Upsert(ctx context.Context, decision *model.ApprovalDecision) error
	ListByChain(ctx context.Context, chainID uuid.UUID) ([]model.ApprovalDecision, error)
	ListByStep(ctx context.Context, stepID uuid.UUID) ([]model.ApprovalDecision, error)
}

type decisionRepository struct {
	db *gorm.DB
}

func NewDecisionRepository(db *gorm.DB) DecisionRepository {
	return &decisionRepository{db: db}
}

func (r *decisionRepository) Upsert(ctx context.Context, decision *model.ApprovalDecision) error {
	return GetDB(ctx, r.db).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "chain_id"},
			{Name: "step_id"},
			{Name: "principal_id"},
		},
		DoUpdates: clause.AssignmentColumns([]string{"acting_user_id", "decision", "reason", "updated_at"}),
	}).Create(decision).Error
}

func (r *decisionRepository) ListByChain(ctx context.Context, chainID uuid.UUID) ([]model.ApprovalDecision, error) {
	var decisions []model.ApprovalDecision
	if err := GetDB(ctx, r.db).
		Where("chain_id = ?", chainID).
		Order("updated_at ASC").
		Find(&decisions).Error; err != nil {
		return nil, err
	}
	return decisions, nil
}

func (r *decisionRepository) ListByStep(ctx context.Context, stepID uuid.UUID) ([]model.ApprovalDecision, error) {
	var decisions []model.ApprovalDecision
	if err := GetDB(ctx, r.db).
		Preload("ActingUser").
		Where("step_id = ?", stepID).
		Order("updated_at ASC").
		Find(&decisions).Error; err != nil {
		return nil, err
	}
	return decisions, nil
}
