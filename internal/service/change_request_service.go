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
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// --- DTOs ---

type CreateChangeRequestRequest struct {
	ProjectID      string `json:"project_id" binding:"required,uuid"`
	Title          string `json:"title" binding:"required"`
	Description    string `json:"description"`
	BudgetImpact   string `json:"budget_impact"`
	ScheduleImpact int    `json:"schedule_impact_days"`
}

// SubmitStepRequest defines one approval stage for submission: its display
// name and the approver principals that must all approve it.
type SubmitStepRequest struct {
	Name        string   `json:"name"`
	ApproverIDs []string `json:"approver_ids" binding:"required,min=1,dive,uuid"`
}

type SubmitChangeRequestRequest struct {
	Steps []SubmitStepRequest `json:"steps" binding:"required,min=1,dive"`
}

type ChangeRequestFilter struct {
	Lane           string
	DecisionStatus string
	Page           int
	Limit          int
}

type ChangeRequestResponse struct {
	ID             string  `json:"id"`
	ProjectID      string  `json:"project_id"`
	Code           string  `json:"code"`
	Title          string  `json:"title"`
	Description    string  `json:"description"`
	Lane           string  `json:"lane"`
	DecisionStatus string  `json:"decision_status"`
	BudgetImpact   string  `json:"budget_impact"`
	ScheduleImpact int     `json:"schedule_impact_days"`
	RequestedBy    *string `json:"requested_by"`
	RequesterName  string  `json:"requester_name"`
	DecisionBy     *string `json:"decision_by"`
	DeciderName    string  `json:"decider_name"`
	DecisionAt     *string `json:"decision_at"`
	DecisionNote   string  `json:"decision_note"`
	CreatedAt      string  `json:"created_at"`
}

// --- Interface ---

type ChangeRequestService interface {
	Create(ctx context.Context, orgID, userID string, req CreateChangeRequestRequest) (*ChangeRequestResponse, error)
	Get(ctx context.Context, id string) (*ChangeRequestResponse, error)
	List(ctx context.Context, orgID string, filter ChangeRequestFilter) ([]ChangeRequestResponse, int64, error)
	Submit(ctx context.Context, id, userID string, req SubmitChangeRequestRequest) (*ChangeRequestResponse, error)
}

type changeRequestService struct {
	crRepo       repository.ChangeRequestRepository
	chainRepo    repository.ApprovalChainRepository
	timelineRepo repository.TimelineRepository
	txManager    repository.TransactionManager
}

func NewChangeRequestService(
	crRepo repository.ChangeRequestRepository,
	chainRepo repository.ApprovalChainRepository,
	timelineRepo repository.TimelineRepository,
	txManager repository.TransactionManager,
) ChangeRequestService {
	return &changeRequestService{
		crRepo:       crRepo,
		chainRepo:    chainRepo,
		timelineRepo: timelineRepo,
		txManager:    txManager,
	}
}

// --- Implementation ---

func (s *changeRequestService) Create(ctx context.Context, orgID, userID string, req CreateChangeRequestRequest) (*ChangeRequestResponse, error) {
	org, err := uuid.Parse(orgID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid organization", apperror.ErrUnauthenticated)
	}
	projectID, err := uuid.Parse(req.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("invalid project_id: %w", err)
	}

	var requesterID *uuid.UUID
	if parsed, parseErr := uuid.Parse(userID); parseErr == nil {
		requesterID = &parsed
	}

	budget := decimal.Zero
	if req.BudgetImpact != "" {
		if parsed, parseErr := decimal.NewFromString(req.BudgetImpact); parseErr == nil {
			budget = parsed
		} else {
			return nil, fmt.Errorf("invalid budget_impact: %w", parseErr)
		}
	}

	cr := &model.ChangeRequest{
		OrgID:          org,
		ProjectID:      projectID,
		Title:          req.Title,
		Description:    req.Description,
		Lane:           model.LaneIntake,
		DecisionStatus: model.DecisionNone,
		BudgetImpact:   budget,
		ScheduleImpact: req.ScheduleImpact,
		RequestedBy:    requesterID,
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		code, codeErr := s.crRepo.NextCode(txCtx)
		if codeErr != nil {
			return fmt.Errorf("failed to generate change request code: %w", codeErr)
		}
		cr.Code = code

		if createErr := s.crRepo.Create(txCtx, cr); createErr != nil {
			return fmt.Errorf("failed to create change request: %w", createErr)
		}

		details, _ := json.Marshal(map[string]interface{}{"code": cr.Code, "title": cr.Title})
		crID := cr.ID
		event := &model.TimelineEvent{
			OrgID:           org,
			ChangeRequestID: &crID,
			ActorUserID:     requesterID,
			ActorRole:       model.ActorRoleSystem,
			Event:           model.EventRequestCreated,
			Details:         string(details),
		}
		return s.timelineRepo.Create(txCtx, event)
	})
	if err != nil {
		return nil, err
	}

	return toChangeRequestResponse(cr), nil
}

func (s *changeRequestService) Get(ctx context.Context, id string) (*ChangeRequestResponse, error) {
	crID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid change request id", apperror.ErrNotFound)
	}
	cr, err := s.crRepo.FindByIDWithRelations(ctx, crID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: change request %s", apperror.ErrNotFound, crID)
		}
		return nil, fmt.Errorf("%w: failed to load change request: %v", apperror.ErrStorageFailure, err)
	}
	return toChangeRequestResponse(cr), nil
}

func (s *changeRequestService) List(ctx context.Context, orgID string, filter ChangeRequestFilter) ([]ChangeRequestResponse, int64, error) {
	org, err := uuid.Parse(orgID)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: invalid organization", apperror.ErrUnauthenticated)
	}

	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.Limit <= 0 {
		filter.Limit = 20
	}

	requests, total, err := s.crRepo.List(ctx, repository.ChangeRequestFilter{
		OrgID:          org,
		Lane:           filter.Lane,
		DecisionStatus: filter.DecisionStatus,
		Page:           filter.Page,
		Limit:          filter.Limit,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("%w: failed to list change requests: %v", apperror.ErrStorageFailure, err)
	}

	result := make([]ChangeRequestResponse, 0, len(requests))
	for i := range requests {
		result = append(result, *toChangeRequestResponse(&requests[i]))
	}
	return result, total, nil
}

// Submit moves a change request into review and registers its approval chain:
// the ordered steps and the approver principals each step requires. This is
// the only place chains are created; the approval core reads them as given.
func (s *changeRequestService) Submit(ctx context.Context, id, userID string, req SubmitChangeRequestRequest) (*ChangeRequestResponse, error) {
	crID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid change request id", apperror.ErrNotFound)
	}
	actorID, err := uuid.Parse(userID)
	if err != nil {
		return nil, fmt.Errorf("%w: missing or invalid acting user", apperror.ErrUnauthenticated)
	}

	var cr *model.ChangeRequest
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var txErr error
		cr, txErr = s.crRepo.FindByID(txCtx, crID)
		if txErr != nil {
			if errors.Is(txErr, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: change request %s", apperror.ErrNotFound, crID)
			}
			return fmt.Errorf("%w: failed to load change request: %v", apperror.ErrStorageFailure, txErr)
		}

		// Validate every referenced principal before touching anything.
		principalIDs := make([]uuid.UUID, 0)
		seen := make(map[uuid.UUID]bool)
		for _, step := range req.Steps {
			for _, raw := range step.ApproverIDs {
				pid, parseErr := uuid.Parse(raw)
				if parseErr != nil {
					return fmt.Errorf("invalid approver id %q: %w", raw, parseErr)
				}
				if !seen[pid] {
					seen[pid] = true
					principalIDs = append(principalIDs, pid)
				}
			}
		}
		principals, txErr := s.chainRepo.PrincipalsByIDs(txCtx, principalIDs)
		if txErr != nil {
			return fmt.Errorf("%w: failed to load approver principals: %v", apperror.ErrStorageFailure, txErr)
		}
		known := make(map[uuid.UUID]model.ApproverPrincipal, len(principals))
		for _, p := range principals {
			known[p.ID] = p
		}
		for _, pid := range principalIDs {
			p, ok := known[pid]
			if !ok || !p.Active || p.OrgID != cr.OrgID {
				return fmt.Errorf("approver principal %s is not an active approver of this organization", pid)
			}
		}

		transitioned, txErr := s.crRepo.MarkSubmitted(txCtx, crID)
		if txErr != nil {
			return fmt.Errorf("%w: failed to submit change request: %v", apperror.ErrStorageFailure, txErr)
		}
		if !transitioned {
			return fmt.Errorf("%w: change request is %s and cannot be submitted",
				apperror.ErrInvalidState, cr.DecisionStatus)
		}

		chain := &model.ApprovalChain{ChangeRequestID: crID, CreatedBy: &actorID}
		if txErr = s.chainRepo.CreateChain(txCtx, chain); txErr != nil {
			return fmt.Errorf("failed to create approval chain: %w", txErr)
		}
		for i, stepReq := range req.Steps {
			step := &model.ApprovalStep{
				ChainID:   chain.ID,
				StepOrder: i + 1,
				Name:      stepReq.Name,
			}
			if txErr = s.chainRepo.CreateStep(txCtx, step); txErr != nil {
				return fmt.Errorf("failed to create approval step: %w", txErr)
			}
			for _, raw := range stepReq.ApproverIDs {
				pid, _ := uuid.Parse(raw)
				sa := &model.StepApprover{StepID: step.ID, PrincipalID: pid, Active: true}
				if txErr = s.chainRepo.CreateStepApprover(txCtx, sa); txErr != nil {
					return fmt.Errorf("failed to create step approver: %w", txErr)
				}
			}
		}

		details, _ := json.Marshal(map[string]interface{}{
			"code":  cr.Code,
			"steps": len(req.Steps),
		})
		chainID := chain.ID
		event := &model.TimelineEvent{
			OrgID:           cr.OrgID,
			ChangeRequestID: &crID,
			ChainID:         &chainID,
			ActorUserID:     &actorID,
			ActorRole:       model.ActorRoleSystem,
			Event:           model.EventRequestSubmitted,
			Details:         string(details),
		}
		return s.timelineRepo.Create(txCtx, event)
	})
	if err != nil {
		return nil, err
	}

	if reloaded, loadErr := s.crRepo.FindByIDWithRelations(ctx, crID); loadErr == nil {
		cr = reloaded
	}
	return toChangeRequestResponse(cr), nil
}

// --- Helpers ---

func toChangeRequestResponse(cr *model.ChangeRequest) *ChangeRequestResponse {
	resp := &ChangeRequestResponse{
		ID:             cr.ID.String(),
		ProjectID:      cr.ProjectID.String(),
		Code:           cr.Code,
		Title:          cr.Title,
		Description:    cr.Description,
		Lane:           cr.Lane,
		DecisionStatus: cr.DecisionStatus,
		BudgetImpact:   cr.BudgetImpact.StringFixed(2),
		ScheduleImpact: cr.ScheduleImpact,
		DecisionNote:   cr.DecisionNote,
		CreatedAt:      cr.CreatedAt.Format(time.RFC3339),
	}

	if cr.RequestedBy != nil {
		v := cr.RequestedBy.String()
		resp.RequestedBy = &v
	}
	if cr.Requester != nil {
		resp.RequesterName = cr.Requester.Username
	}
	if cr.DecisionBy != nil {
		v := cr.DecisionBy.String()
		resp.DecisionBy = &v
	}
	if cr.Decider != nil {
		resp.DeciderName = cr.Decider.Username
	}
	if cr.DecisionAt != nil {
		v := cr.DecisionAt.Format(time.RFC3339)
		resp.DecisionAt = &v
	}

	return resp
}
