package repository

import (
	"context"

	"pmo-backend/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TimelineFilter narrows timeline queries.
type TimelineFilter struct {
	OrgID           uuid.UUID
	ChangeRequestID *uuid.UUID
	Page            int
	Limit           int
}

// TimelineRepository persists the audit/timeline feed.
type TimelineRepository interface {
	Create(ctx context.Context, event *model.TimelineEvent) error
	List(ctx context.Context, filter TimelineFilter) ([]model.TimelineEvent, int64, error)
}

type timelineRepository struct {
	db *gorm.DB
}

func NewTimelineRepository(db *gorm.DB) TimelineRepository {
	return &timelineRepository{db: db}
}

func (r *timelineRepository) Create(ctx context.Context, event *model.TimelineEvent) error {
	return GetDB(ctx, r.db).Create(event).Error
}

func (r *timelineRepository) List(ctx context.Context, filter TimelineFilter) ([]model.TimelineEvent, int64, error) {
	var events []model.TimelineEvent
	var total int64

	db := GetDB(ctx, r.db)
	query := db.Model(&model.TimelineEvent{}).Where("org_id = ?", filter.OrgID)
	if filter.ChangeRequestID != nil {
		query = query.Where("change_request_id = ?", *filter.ChangeRequestID)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (filter.Page - 1) * filter.Limit
	fetchQuery := db.Preload("Actor").Where("org_id = ?", filter.OrgID)
	if filter.ChangeRequestID != nil {
		fetchQuery = fetchQuery.Where("change_request_id = ?", *filter.ChangeRequestID)
	}
	if err := fetchQuery.Order("created_at DESC").Offset(offset).Limit(filter.Limit).Find(&events).Error; err != nil {
		return nil, 0, err
	}

	return events, total, nil
}
