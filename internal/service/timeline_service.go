package service

import (
	"context"
	"fmt"
	"time"

	"pmo-backend/internal/repository"
	"pmo-backend/pkg/apperror"

	"github.com/google/uuid"
)

type TimelineEventResponse struct {
	ID              string  `json:"id"`
	ChangeRequestID *string `json:"change_request_id"`
	ChainID         *string `json:"chain_id"`
	ActorUserID     *string `json:"actor_user_id"`
	ActorUsername   string  `json:"actor_username"`
	ActorRole       string  `json:"actor_role"`
	Event           string  `json:"event"`
	Details         string  `json:"details"`
	CreatedAt       string  `json:"created_at"`
}

type TimelineService interface {
	GetTimeline(ctx context.Context, orgID string, changeRequestID string, page, limit int) ([]TimelineEventResponse, int64, error)
}

type timelineService struct {
	timelineRepo repository.TimelineRepository
}

// NewTimelineService creates a new TimelineService instance
func NewTimelineService(timelineRepo repository.TimelineRepository) TimelineService {
	return &timelineService{timelineRepo: timelineRepo}
}

// GetTimeline retrieves the paginated event feed, optionally narrowed to one
// change request.
func (s *timelineService) GetTimeline(ctx context.Context, orgID string, changeRequestID string, page, limit int) ([]TimelineEventResponse, int64, error) {
	org, err := uuid.Parse(orgID)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: invalid organization", apperror.ErrUnauthenticated)
	}

	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}

	filter := repository.TimelineFilter{OrgID: org, Page: page, Limit: limit}
	if changeRequestID != "" {
		crID, parseErr := uuid.Parse(changeRequestID)
		if parseErr != nil {
			return nil, 0, fmt.Errorf("invalid change_request_id: %w", parseErr)
		}
		filter.ChangeRequestID = &crID
	}

	events, total, err := s.timelineRepo.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: failed to load timeline: %v", apperror.ErrStorageFailure, err)
	}

	res := make([]TimelineEventResponse, 0, len(events))
	for _, e := range events {
		item := TimelineEventResponse{
			ID:        e.ID.String(),
			ActorRole: e.ActorRole,
			Event:     e.Event,
			Details:   e.Details,
			CreatedAt: e.CreatedAt.Format(time.RFC3339),
		}
		if e.ChangeRequestID != nil {
			v := e.ChangeRequestID.String()
			item.ChangeRequestID = &v
		}
		if e.ChainID != nil {
			v := e.ChainID.String()
			item.ChainID = &v
		}
		if e.ActorUserID != nil {
			v := e.ActorUserID.String()
			item.ActorUserID = &v
		}
		if e.Actor != nil {
			item.ActorUsername = e.Actor.Username
		}
		res = append(res, item)
	}

	return res, total, nil
}
