package repository

import (
	"context"

	"pmo-backend/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ApprovalChainRepository provides access to chains, steps and step approvers.
// Chains and steps are written only by the submission workflow; the approval
// core reads them.
type ApprovalChainRepository interface {
	CreateChain(ctx context.Context, chain *model.ApprovalChain) error
	CreateStep(ctx context.Context, step *model.ApprovalStep) error
	CreateStepApprover(ctx context.Context, sa *model.StepApprover) error
	LatestChainForRequest(ctx context.Context, changeRequestID uuid.UUID) (*model.ApprovalChain, error)
	StepsByChain(ctx context.Context, chainID uuid.UUID) ([]model.ApprovalStep, error)
	ActiveApproversBySteps(ctx context.Context, stepIDs []uuid.UUID) (map[uuid.UUID][]model.StepApprover, error)
	PrincipalsByIDs(ctx context.Context, ids []uuid.UUID) ([]model.ApproverPrincipal, error)
	ListPrincipals(ctx context.Context, orgID uuid.UUID) ([]model.ApproverPrincipal, error)
	CreatePrincipal(ctx context.Context, p *model.ApproverPrincipal) error
}

type approvalChainRepository struct {
	db *gorm.DB
}

func NewApprovalChainRepository(db *gorm.DB) ApprovalChainRepository {
	return &approvalChainRepository{db: db}
}

func (r *approvalChainRepository) CreateChain(ctx context.Context, chain *model.ApprovalChain) error {
	return GetDB(ctx, r.db).Create(chain).Error
}

func (r *approvalChainRepository) CreateStep(ctx context.Context, step *model.ApprovalStep) error {
	return GetDB(ctx, r.db).Create(step).Error
}

func (r *approvalChainRepository) CreateStepApprover(ctx context.Context, sa *model.StepApprover) error {
	return GetDB(ctx, r.db).Create(sa).Error
}

// LatestChainForRequest returns the most recently created chain registered for
// the change request, or gorm.ErrRecordNotFound.
func (r *approvalChainRepository) LatestChainForRequest(ctx context.Context, changeRequestID uuid.UUID) (*model.ApprovalChain, error) {
	var chain model.ApprovalChain
	err := GetDB(ctx, r.db).
		Where("change_request_id = ?", changeRequestID).
		Order("created_at DESC").
		First(&chain).Error
	if err != nil {
		return nil, err
	}
	return &chain, nil
}

// StepsByChain loads all steps of a chain ordered ascending by step_order.
func (r *approvalChainRepository) StepsByChain(ctx context.Context, chainID uuid.UUID) ([]model.ApprovalStep, error) {
	var steps []model.ApprovalStep
	if err := GetDB(ctx, r.db).
		Where("chain_id = ?", chainID).
		Order("step_order ASC").
		Find(&steps).Error; err != nil {
		return nil, err
	}
	return steps, nil
}

// ActiveApproversBySteps loads active StepApprover rows (with their principals)
// for the given steps, keyed by step id.
func (r *approvalChainRepository) ActiveApproversBySteps(ctx context.Context, stepIDs []uuid.UUID) (map[uuid.UUID][]model.StepApprover, error) {
	var rows []model.StepApprover
	if err := GetDB(ctx, r.db).
		Preload("Principal").
		Where("step_id IN ? AND active = ?", stepIDs, true).
		Find(&rows).Error; err != nil {
		return nil, err
	}

	byStep := make(map[uuid.UUID][]model.StepApprover, len(stepIDs))
	for _, row := range rows {
		byStep[row.StepID] = append(byStep[row.StepID], row)
	}
	return byStep, nil
}

func (r *approvalChainRepository) PrincipalsByIDs(ctx context.Context, ids []uuid.UUID) ([]model.ApproverPrincipal, error) {
	var principals []model.ApproverPrincipal
	if err := GetDB(ctx, r.db).Where("id IN ?", ids).Find(&principals).Error; err != nil {
		return nil, err
	}
	return principals, nil
}

func (r *approvalChainRepository) ListPrincipals(ctx context.Context, orgID uuid.UUID) ([]model.ApproverPrincipal, error) {
	var principals []model.ApproverPrincipal
	if err := GetDB(ctx, r.db).
		Preload("User").
		Where("org_id = ? AND active = ?", orgID, true).
		Order("name ASC").
		Find(&principals).Error; err != nil {
		return nil, err
	}
	return principals, nil
}

func (r *approvalChainRepository) CreatePrincipal(ctx context.Context, p *model.ApproverPrincipal) error {
	return GetDB(ctx, r.db).Create(p).Error
}
