package repository

import (
	"context"
	"fmt"
	"time"

	"pmo-backend/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ChangeRequestFilter narrows List queries.
type ChangeRequestFilter struct {
	OrgID          uuid.UUID
	Lane           string
	DecisionStatus string
	Page           int
	Limit          int
}

// ChangeRequestRepository provides access to the host change-request records.
// All lifecycle writes past SUBMITTED go through the guarded updates below so a
// racing duplicate is a no-op instead of a double transition.
type ChangeRequestRepository interface {
	Create(ctx context.Context, cr *model.ChangeRequest) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.ChangeRequest, error)
	FindByIDWithRelations(ctx context.Context, id uuid.UUID) (*model.ChangeRequest, error)
	List(ctx context.Context, filter ChangeRequestFilter) ([]model.ChangeRequest, int64, error)
	MarkSubmitted(ctx context.Context, id uuid.UUID) (bool, error)
	MarkApproved(ctx context.Context, id uuid.UUID, decidedBy uuid.UUID, note string, optionalColumns []string) (bool, error)
	NextCode(ctx context.Context) (string, error)
}

type changeRequestRepository struct {
	db *gorm.DB
}

func NewChangeRequestRepository(db *gorm.DB) ChangeRequestRepository {
	return &changeRequestRepository{db: db}
}

func (r *changeRequestRepository) Create(ctx context.Context, cr *model.ChangeRequest) error {
	return GetDB(ctx, r.db).Create(cr).Error
}

func (r *changeRequestRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.ChangeRequest, error) {
	var cr model.ChangeRequest
	if err := GetDB(ctx, r.db).First(&cr, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &cr, nil
}

func (r *changeRequestRepository) FindByIDWithRelations(ctx context.Context, id uuid.UUID) (*model.ChangeRequest, error) {
	var cr model.ChangeRequest
	if err := GetDB(ctx, r.db).Preload("Requester").Preload("Decider").First(&cr, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &cr, nil
}

func (r *changeRequestRepository) List(ctx context.Context, filter ChangeRequestFilter) ([]model.ChangeRequest, int64, error) {
	var requests []model.ChangeRequest
	var total int64

	db := GetDB(ctx, r.db)
	query := db.Model(&model.ChangeRequest{}).Where("org_id = ?", filter.OrgID)
	if filter.Lane != "" {
		query = query.Where("lane = ?", filter.Lane)
	}
	if filter.DecisionStatus != "" {
		query = query.Where("decision_status = ?", filter.DecisionStatus)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (filter.Page - 1) * filter.Limit
	fetchQuery := db.Preload("Requester").Preload("Decider").Where("org_id = ?", filter.OrgID)
	if filter.Lane != "" {
		fetchQuery = fetchQuery.Where("lane = ?", filter.Lane)
	}
	if filter.DecisionStatus != "" {
		fetchQuery = fetchQuery.Where("decision_status = ?", filter.DecisionStatus)
	}
	if err := fetchQuery.Order("created_at DESC").Offset(offset).Limit(filter.Limit).Find(&requests).Error; err != nil {
		return nil, 0, err
	}

	return requests, total, nil
}

// MarkSubmitted moves a request into review. Guarded on the current decision
// status so a request already under (or past) review cannot be resubmitted
// concurrently; returns whether this call performed the transition.
func (r *changeRequestRepository) MarkSubmitted(ctx context.Context, id uuid.UUID) (bool, error) {
	res := GetDB(ctx, r.db).Model(&model.ChangeRequest{}).
		Where("id = ? AND decision_status IN ?", id, []string{model.DecisionNone, model.DecisionRejected}).
		Updates(map[string]interface{}{
			"decision_status": model.DecisionSubmitted,
			"lane":            model.LaneReview,
		})
	return res.RowsAffected > 0, res.Error
}

// MarkApproved performs the terminal transition: decision status SUBMITTED ->
// APPROVED, lane -> EXECUTION. The WHERE clause on the current status makes a
// duplicate completion attempt a no-op. Decision metadata columns are written
// only when declared in optionalColumns (older deployments lack some of them);
// if the full write fails, it is retried once with the required columns alone.
func (r *changeRequestRepository) MarkApproved(ctx context.Context, id uuid.UUID, decidedBy uuid.UUID, note string, optionalColumns []string) (bool, error) {
	updates := map[string]interface{}{
		"decision_status": model.DecisionApproved,
		"lane":            model.LaneExecution,
	}
	for _, col := range optionalColumns {
		switch col {
		case "decision_by":
			updates["decision_by"] = decidedBy
		case "decision_at":
			updates["decision_at"] = time.Now()
		case "decision_note":
			updates["decision_note"] = note
		}
	}

	res := GetDB(ctx, r.db).Model(&model.ChangeRequest{}).
		Where("id = ? AND decision_status = ?", id, model.DecisionSubmitted).
		Updates(updates)
	if res.Error == nil {
		return res.RowsAffected > 0, nil
	}

	// Reduced write: required columns only.
	res = GetDB(ctx, r.db).Model(&model.ChangeRequest{}).
		Where("id = ? AND decision_status = ?", id, model.DecisionSubmitted).
		Updates(map[string]interface{}{
			"decision_status": model.DecisionApproved,
			"lane":            model.LaneExecution,
		})
	return res.RowsAffected > 0, res.Error
}

// NextCode generates a sequential change-request code for today, e.g.
// CR-20260901-00003. An advisory lock prevents concurrent duplicates.
func (r *changeRequestRepository) NextCode(ctx context.Context) (string, error) {
	db := GetDB(ctx, r.db)
	today := time.Now().Format("20060102")
	prefix := "CR-" + today + "-"

	db.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", prefix)

	var count int64
	if err := db.Model(&model.ChangeRequest{}).
		Where("code LIKE ?", prefix+"%").
		Count(&count).Error; err != nil {
		return "", err
	}

	return fmt.Sprintf("%s%05d", prefix, count+1), nil
}
