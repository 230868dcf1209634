package repository

import (
	"context"
	"errors"
	"time"

	"pmo-backend/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DelegationRepository manages holiday-cover delegations.
type DelegationRepository interface {
	Create(ctx context.Context, delegation *model.Delegation) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Delegation, error)
	ListByOrg(ctx context.Context, orgID uuid.UUID, page, limit int) ([]model.Delegation, int64, error)
	Deactivate(ctx context.Context, id uuid.UUID) error
	FindActiveFor(ctx context.Context, orgID uuid.UUID, approverUserIDs []uuid.UUID, delegateUserID uuid.UUID, at time.Time) (*model.Delegation, error)
}

type delegationRepository struct {
	db *gorm.DB
}

func NewDelegationRepository(db *gorm.DB) DelegationRepository {
	return &delegationRepository{db: db}
}

func (r *delegationRepository) Create(ctx context.Context, delegation *model.Delegation) error {
	return GetDB(ctx, r.db).Create(delegation).Error
}

func (r *delegationRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Delegation, error) {
	var delegation model.Delegation
	if err := GetDB(ctx, r.db).First(&delegation, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &delegation, nil
}

func (r *delegationRepository) ListByOrg(ctx context.Context, orgID uuid.UUID, page, limit int) ([]model.Delegation, int64, error) {
	var delegations []model.Delegation
	var total int64

	db := GetDB(ctx, r.db)
	if err := db.Model(&model.Delegation{}).Where("org_id = ?", orgID).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := db.Preload("ApproverUser").Preload("DelegateUser").
		Where("org_id = ?", orgID).
		Order("created_at DESC").
		Offset(offset).Limit(limit).
		Find(&delegations).Error; err != nil {
		return nil, 0, err
	}

	return delegations, total, nil
}

func (r *delegationRepository) Deactivate(ctx context.Context, id uuid.UUID) error {
	return GetDB(ctx, r.db).Model(&model.Delegation{}).
		Where("id = ?", id).
		Update("active", false).Error
}

// FindActiveFor returns the first delegation allowing delegateUserID to act for
// any of the given approver users at instant `at`. A nil result with nil error
// means no delegation applies.
func (r *delegationRepository) FindActiveFor(ctx context.Context, orgID uuid.UUID, approverUserIDs []uuid.UUID, delegateUserID uuid.UUID, at time.Time) (*model.Delegation, error) {
	if len(approverUserIDs) == 0 {
		return nil, nil
	}

	var delegation model.Delegation
	err := GetDB(ctx, r.db).
		Where("org_id = ? AND delegate_user_id = ? AND approver_user_id IN ? AND active = ?",
			orgID, delegateUserID, approverUserIDs, true).
		Where("(starts_at IS NULL OR starts_at <= ?) AND (ends_at IS NULL OR ends_at >= ?)", at, at).
		Order("created_at ASC").
		First(&delegation).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &delegation, nil
}
