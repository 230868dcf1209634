package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"pmo-backend/internal/model"
	"pmo-backend/internal/repository"
	"pmo-backend/pkg/apperror"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// --- DTOs ---

type CreateDelegationRequest struct {
	ApproverUserID string `json:"approver_user_id" binding:"required,uuid"`
	DelegateUserID string `json:"delegate_user_id" binding:"required,uuid"`
	StartsAt       string `json:"starts_at"` // RFC3339, optional
	EndsAt         string `json:"ends_at"`   // RFC3339, optional
	Note           string `json:"note"`
}

type DelegationResponse struct {
	ID               string  `json:"id"`
	ApproverUserID   string  `json:"approver_user_id"`
	ApproverUsername string  `json:"approver_username"`
	DelegateUserID   string  `json:"delegate_user_id"`
	DelegateUsername string  `json:"delegate_username"`
	Active           bool    `json:"active"`
	StartsAt         *string `json:"starts_at"`
	EndsAt           *string `json:"ends_at"`
	Note             string  `json:"note"`
	CreatedAt        string  `json:"created_at"`
}

type CreateApproverRequest struct {
	Name   string `json:"name" binding:"required"`
	Kind   string `json:"kind" binding:"omitempty,oneof=USER GROUP SYSTEM"`
	UserID string `json:"user_id" binding:"omitempty,uuid"`
}

type ApproverResponse struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Kind     string  `json:"kind"`
	UserID   *string `json:"user_id"`
	Username string  `json:"username"`
	Active   bool    `json:"active"`
}

// --- Interface ---

// DelegationService administers holiday-cover delegations and the
// organization's named approver slots.
type DelegationService interface {
	CreateDelegation(ctx context.Context, orgID, userID string, req CreateDelegationRequest) (*DelegationResponse, error)
	ListDelegations(ctx context.Context, orgID string, page, limit int) ([]DelegationResponse, int64, error)
	RevokeDelegation(ctx context.Context, orgID, userID, id string) error
	ListApprovers(ctx context.Context, orgID string) ([]ApproverResponse, error)
	CreateApprover(ctx context.Context, orgID string, req CreateApproverRequest) (*ApproverResponse, error)
}

type delegationService struct {
	delegationRepo repository.DelegationRepository
	chainRepo      repository.ApprovalChainRepository
	timelineRepo   repository.TimelineRepository
}

func NewDelegationService(
	delegationRepo repository.DelegationRepository,
	chainRepo repository.ApprovalChainRepository,
	timelineRepo repository.TimelineRepository,
) DelegationService {
	return &delegationService{
		delegationRepo: delegationRepo,
		chainRepo:      chainRepo,
		timelineRepo:   timelineRepo,
	}
}

// --- Implementation ---

func (s *delegationService) CreateDelegation(ctx context.Context, orgID, userID string, req CreateDelegationRequest) (*DelegationResponse, error) {
	org, err := uuid.Parse(orgID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid organization", apperror.ErrUnauthenticated)
	}
	approverID, err := uuid.Parse(req.ApproverUserID)
	if err != nil {
		return nil, fmt.Errorf("invalid approver_user_id: %w", err)
	}
	delegateID, err := uuid.Parse(req.DelegateUserID)
	if err != nil {
		return nil, fmt.Errorf("invalid delegate_user_id: %w", err)
	}
	if approverID == delegateID {
		return nil, errors.New("approver and delegate must be different users")
	}

	var startsAt, endsAt *time.Time
	if req.StartsAt != "" {
		parsed, parseErr := time.Parse(time.RFC3339, req.StartsAt)
		if parseErr != nil {
			return nil, fmt.Errorf("invalid starts_at: %w", parseErr)
		}
		startsAt = &parsed
	}
	if req.EndsAt != "" {
		parsed, parseErr := time.Parse(time.RFC3339, req.EndsAt)
		if parseErr != nil {
			return nil, fmt.Errorf("invalid ends_at: %w", parseErr)
		}
		endsAt = &parsed
	}
	if startsAt != nil && endsAt != nil && endsAt.Before(*startsAt) {
		return nil, errors.New("ends_at must not precede starts_at")
	}

	delegation := &model.Delegation{
		OrgID:          org,
		ApproverUserID: approverID,
		DelegateUserID: delegateID,
		Active:         true,
		StartsAt:       startsAt,
		EndsAt:         endsAt,
		Note:           req.Note,
	}
	if err := s.delegationRepo.Create(ctx, delegation); err != nil {
		return nil, fmt.Errorf("%w: failed to create delegation: %v", apperror.ErrStorageFailure, err)
	}

	s.logDelegationEvent(org, userID, model.EventDelegationCreated, delegation)

	return toDelegationResponse(delegation), nil
}

func (s *delegationService) ListDelegations(ctx context.Context, orgID string, page, limit int) ([]DelegationResponse, int64, error) {
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

	delegations, total, err := s.delegationRepo.ListByOrg(ctx, org, page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: failed to list delegations: %v", apperror.ErrStorageFailure, err)
	}

	result := make([]DelegationResponse, 0, len(delegations))
	for i := range delegations {
		result = append(result, *toDelegationResponse(&delegations[i]))
	}
	return result, total, nil
}

func (s *delegationService) RevokeDelegation(ctx context.Context, orgID, userID, id string) error {
	org, err := uuid.Parse(orgID)
	if err != nil {
		return fmt.Errorf("%w: invalid organization", apperror.ErrUnauthenticated)
	}
	delegationID, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("%w: invalid delegation id", apperror.ErrNotFound)
	}

	delegation, err := s.delegationRepo.FindByID(ctx, delegationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: delegation %s", apperror.ErrNotFound, delegationID)
		}
		return fmt.Errorf("%w: failed to load delegation: %v", apperror.ErrStorageFailure, err)
	}
	if delegation.OrgID != org {
		return fmt.Errorf("%w: delegation belongs to another organization", apperror.ErrForbidden)
	}

	if err := s.delegationRepo.Deactivate(ctx, delegationID); err != nil {
		return fmt.Errorf("%w: failed to revoke delegation: %v", apperror.ErrStorageFailure, err)
	}

	s.logDelegationEvent(org, userID, model.EventDelegationRevoked, delegation)
	return nil
}

func (s *delegationService) ListApprovers(ctx context.Context, orgID string) ([]ApproverResponse, error) {
	org, err := uuid.Parse(orgID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid organization", apperror.ErrUnauthenticated)
	}

	principals, err := s.chainRepo.ListPrincipals(ctx, org)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list approvers: %v", apperror.ErrStorageFailure, err)
	}

	result := make([]ApproverResponse, 0, len(principals))
	for i := range principals {
		result = append(result, *toApproverResponse(&principals[i]))
	}
	return result, nil
}

func (s *delegationService) CreateApprover(ctx context.Context, orgID string, req CreateApproverRequest) (*ApproverResponse, error) {
	org, err := uuid.Parse(orgID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid organization", apperror.ErrUnauthenticated)
	}

	kind := req.Kind
	if kind == "" {
		kind = model.PrincipalKindUser
	}

	principal := &model.ApproverPrincipal{
		OrgID:  org,
		Name:   req.Name,
		Kind:   kind,
		Active: true,
	}
	if kind == model.PrincipalKindUser {
		if req.UserID == "" {
			return nil, errors.New("user_id is required for USER approvers")
		}
		userID, parseErr := uuid.Parse(req.UserID)
		if parseErr != nil {
			return nil, fmt.Errorf("invalid user_id: %w", parseErr)
		}
		principal.UserID = &userID
	}

	if err := s.chainRepo.CreatePrincipal(ctx, principal); err != nil {
		return nil, fmt.Errorf("%w: failed to create approver: %v", apperror.ErrStorageFailure, err)
	}

	return toApproverResponse(principal), nil
}

// logDelegationEvent appends the timeline entry for delegation changes.
// Best-effort, mirrors the decision notifier.
func (s *delegationService) logDelegationEvent(org uuid.UUID, userID, event string, delegation *model.Delegation) {
	var actor *uuid.UUID
	if parsed, err := uuid.Parse(userID); err == nil {
		actor = &parsed
	}
	details, _ := json.Marshal(map[string]interface{}{
		"approver_user_id": delegation.ApproverUserID.String(),
		"delegate_user_id": delegation.DelegateUserID.String(),
		"note":             delegation.Note,
	})
	entry := &model.TimelineEvent{
		OrgID:       org,
		ActorUserID: actor,
		ActorRole:   model.ActorRoleSystem,
		Event:       event,
		Details:     string(details),
	}
	go func() {
		if err := s.timelineRepo.Create(context.Background(), entry); err != nil {
			logrus.WithError(err).WithField("event", event).Error("failed to record timeline event")
		}
	}()
}

// --- Helpers ---

func toDelegationResponse(d *model.Delegation) *DelegationResponse {
	resp := &DelegationResponse{
		ID:             d.ID.String(),
		ApproverUserID: d.ApproverUserID.String(),
		DelegateUserID: d.DelegateUserID.String(),
		Active:         d.Active,
		Note:           d.Note,
		CreatedAt:      d.CreatedAt.Format(time.RFC3339),
	}
	if d.ApproverUser != nil {
		resp.ApproverUsername = d.ApproverUser.Username
	}
	if d.DelegateUser != nil {
		resp.DelegateUsername = d.DelegateUser.Username
	}
	if d.StartsAt != nil {
		v := d.StartsAt.Format(time.RFC3339)
		resp.StartsAt = &v
	}
	if d.EndsAt != nil {
		v := d.EndsAt.Format(time.RFC3339)
		resp.EndsAt = &v
	}
	return resp
}

func toApproverResponse(p *model.ApproverPrincipal) *ApproverResponse {
	resp := &ApproverResponse{
		ID:     p.ID.String(),
		Name:   p.Name,
		Kind:   p.Kind,
		Active: p.Active,
	}
	if p.UserID != nil {
		v := p.UserID.String()
		resp.UserID = &v
	}
	if p.User != nil {
		resp.Username = p.User.Username
	}
	return resp
}
