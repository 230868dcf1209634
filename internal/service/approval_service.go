package service

import (
	"context"
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

type SubmitDecisionRequest struct {
	Decision string `json:"decision" binding:"required,oneof=APPROVED REJECTED"`
	Reason   string `json:"reason"`
}

type DecisionResult struct {
	ChainID       string                 `json:"chain_id"`
	Decision      string                 `json:"decision"`
	ActorRole     string                 `json:"actor_role"`
	StepOrder     int                    `json:"step_order"`
	StepComplete  bool                   `json:"step_complete"`
	ChainComplete bool                   `json:"chain_complete"`
	ChangeRequest *ChangeRequestResponse `json:"change_request"`
}

type StepDecisionResponse struct {
	PrincipalID  string `json:"principal_id"`
	ActingUserID string `json:"acting_user_id"`
	Decision     string `json:"decision"`
	Reason       string `json:"reason"`
	DecidedAt    string `json:"decided_at"`
}

type StepApproverResponse struct {
	PrincipalID string `json:"principal_id"`
	Name        string `json:"name"`
	Kind        string `json:"kind"`
}

type StepStatusResponse struct {
	StepID    string                 `json:"step_id"`
	Order     int                    `json:"order"`
	Name      string                 `json:"name"`
	Required  int                    `json:"required"`
	Approved  int                    `json:"approved"`
	Satisfied bool                   `json:"satisfied"`
	Pending   bool                   `json:"pending"`
	Approvers []StepApproverResponse `json:"approvers"`
	Decisions []StepDecisionResponse `json:"decisions"`
}

type ChainStatusResponse struct {
	ChainID  string               `json:"chain_id"`
	Complete bool                 `json:"complete"`
	Steps    []StepStatusResponse `json:"steps"`
}

// --- Interface ---

// ApprovalService is the entry point of the approval core: it authorizes the
// actor, records the decision idempotently, recomputes the chain state and, on
// completion, performs the terminal transition of the change request.
type ApprovalService interface {
	SubmitDecision(ctx context.Context, changeRequestID, actingUserID string, req SubmitDecisionRequest) (*DecisionResult, error)
	GetChainStatus(ctx context.Context, changeRequestID string) (*ChainStatusResponse, error)
}

type approvalService struct {
	crRepo          repository.ChangeRequestRepository
	chainRepo       repository.ApprovalChainRepository
	decisionRepo    repository.DecisionRepository
	delegationRepo  repository.DelegationRepository
	notifier        Notifier
	decisionColumns []string
	now             func() time.Time
}

func NewApprovalService(
	crRepo repository.ChangeRequestRepository,
	chainRepo repository.ApprovalChainRepository,
	decisionRepo repository.DecisionRepository,
	delegationRepo repository.DelegationRepository,
	notifier Notifier,
	decisionColumns []string,
) ApprovalService {
	return &approvalService{
		crRepo:          crRepo,
		chainRepo:       chainRepo,
		decisionRepo:    decisionRepo,
		delegationRepo:  delegationRepo,
		notifier:        notifier,
		decisionColumns: decisionColumns,
		now:             time.Now,
	}
}

// --- Implementation ---

// SubmitDecision runs the gates in strict order. Gates 1-4 (state, chain,
// steps, authorization) abort with nothing written; the decision upsert is the
// single durable mutation; the terminal change-request update is guarded by its
// current status so a racing duplicate completion is a no-op. Timeline and
// websocket emission happen after the authoritative writes and cannot fail the
// call.
func (s *approvalService) SubmitDecision(ctx context.Context, changeRequestID, actingUserID string, req SubmitDecisionRequest) (*DecisionResult, error) {
	crID, err := uuid.Parse(changeRequestID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid change request id", apperror.ErrNotFound)
	}
	actorID, err := uuid.Parse(actingUserID)
	if err != nil {
		return nil, fmt.Errorf("%w: missing or invalid acting user", apperror.ErrUnauthenticated)
	}

	// Gate 1: the request must currently await a decision.
	cr, err := s.crRepo.FindByID(ctx, crID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: change request %s", apperror.ErrNotFound, crID)
		}
		return nil, fmt.Errorf("%w: failed to load change request: %v", apperror.ErrStorageFailure, err)
	}
	if cr.DecisionStatus != model.DecisionSubmitted {
		return nil, fmt.Errorf("%w: change request is %s, expected %s",
			apperror.ErrInvalidState, cr.DecisionStatus, model.DecisionSubmitted)
	}

	// Gate 2: a chain must have been registered at submission time.
	chain, err := s.chainRepo.LatestChainForRequest(ctx, crID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: change request %s has no approval chain", apperror.ErrChainNotFound, crID)
		}
		return nil, fmt.Errorf("%w: failed to resolve approval chain: %v", apperror.ErrStorageFailure, err)
	}

	// Gate 3: find the pending step.
	state, err := s.loadChainState(ctx, chain.ID)
	if err != nil {
		return nil, err
	}
	for i := range state.Steps {
		if state.Steps[i].Required == 0 {
			logrus.WithFields(logrus.Fields{
				"chain_id":   chain.ID,
				"step_order": state.Steps[i].Step.StepOrder,
			}).Warn("approval step has no active approvers, auto-satisfied")
		}
	}
	if state.Complete() {
		// Nothing pending: idempotent success. Re-attempt the guarded terminal
		// update in case an earlier completion failed after the last decision.
		return s.finalize(ctx, cr, chain.ID, actorID, req.Reason, nil, req.Decision)
	}
	pending := state.Pending()

	// Gate 4: authorize the actor against the pending step.
	resolution, err := resolveActor(ctx, s.delegationRepo, cr.OrgID, pending.Approvers, actorID, s.now())
	if err != nil {
		return nil, err
	}

	// The single durable mutation: upsert under the effective principal,
	// authored by the real acting user.
	decision := &model.ApprovalDecision{
		ChainID:      chain.ID,
		StepID:       pending.Step.ID,
		PrincipalID:  resolution.Principal.ID,
		ActingUserID: actorID,
		Decision:     req.Decision,
		Reason:       req.Reason,
	}
	if err := s.decisionRepo.Upsert(ctx, decision); err != nil {
		return nil, fmt.Errorf("%w: failed to record decision: %v", apperror.ErrStorageFailure, err)
	}

	// Recompute from the stored decisions.
	state, err = s.loadChainState(ctx, chain.ID)
	if err != nil {
		return nil, err
	}

	stepID := pending.Step.ID
	evt := DecisionEvent{
		OrgID:           cr.OrgID,
		ChangeRequestID: cr.ID,
		ChainID:         chain.ID,
		StepID:          &stepID,
		StepOrder:       pending.Step.StepOrder,
		StepName:        pending.Step.Name,
		ActorUserID:     actorID,
		ActorRole:       resolution.Role,
		Decision:        req.Decision,
		Note:            req.Reason,
	}

	if !state.Complete() {
		stepState := state.StateOf(pending.Step.ID)
		evt.StepComplete = stepState != nil && stepState.Satisfied
		s.notifier.StepDecided(evt)

		return &DecisionResult{
			ChainID:       chain.ID.String(),
			Decision:      req.Decision,
			ActorRole:     resolution.Role,
			StepOrder:     pending.Step.StepOrder,
			StepComplete:  evt.StepComplete,
			ChainComplete: false,
			ChangeRequest: toChangeRequestResponse(cr),
		}, nil
	}

	return s.finalize(ctx, cr, chain.ID, actorID, req.Reason, &evt, req.Decision)
}

// finalize performs the exactly-once terminal transition and emits the chain
// approved event when this call won the race. evt is nil when the chain was
// already complete before this call recorded anything.
func (s *approvalService) finalize(ctx context.Context, cr *model.ChangeRequest, chainID, actorID uuid.UUID, note string, evt *DecisionEvent, decision string) (*DecisionResult, error) {
	transitioned, err := s.crRepo.MarkApproved(ctx, cr.ID, actorID, note, s.decisionColumns)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to finalize change request: %v", apperror.ErrStorageFailure, err)
	}

	if transitioned && evt != nil {
		evt.StepComplete = true
		evt.ChainComplete = true
		s.notifier.ChainApproved(*evt)
	}

	// Best-effort reload so the caller sees the post-transition snapshot.
	snapshot := cr
	if reloaded, loadErr := s.crRepo.FindByIDWithRelations(ctx, cr.ID); loadErr == nil {
		snapshot = reloaded
	}

	result := &DecisionResult{
		ChainID:       chainID.String(),
		Decision:      decision,
		StepComplete:  true,
		ChainComplete: true,
		ChangeRequest: toChangeRequestResponse(snapshot),
	}
	if evt != nil {
		result.ActorRole = evt.ActorRole
		result.StepOrder = evt.StepOrder
	}
	return result, nil
}

func (s *approvalService) loadChainState(ctx context.Context, chainID uuid.UUID) (*ChainState, error) {
	steps, err := s.chainRepo.StepsByChain(ctx, chainID)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load approval steps: %v", apperror.ErrStorageFailure, err)
	}
	if len(steps) == 0 {
		return nil, fmt.Errorf("%w: chain %s", apperror.ErrNoStepsConfigured, chainID)
	}

	stepIDs := make([]uuid.UUID, 0, len(steps))
	for _, step := range steps {
		stepIDs = append(stepIDs, step.ID)
	}
	approvers, err := s.chainRepo.ActiveApproversBySteps(ctx, stepIDs)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load step approvers: %v", apperror.ErrStorageFailure, err)
	}
	decisions, err := s.decisionRepo.ListByChain(ctx, chainID)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load decisions: %v", apperror.ErrStorageFailure, err)
	}

	return evaluateChain(chainID, steps, approvers, decisions), nil
}

func (s *approvalService) GetChainStatus(ctx context.Context, changeRequestID string) (*ChainStatusResponse, error) {
	crID, err := uuid.Parse(changeRequestID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid change request id", apperror.ErrNotFound)
	}

	if _, err := s.crRepo.FindByID(ctx, crID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: change request %s", apperror.ErrNotFound, crID)
		}
		return nil, fmt.Errorf("%w: failed to load change request: %v", apperror.ErrStorageFailure, err)
	}

	chain, err := s.chainRepo.LatestChainForRequest(ctx, crID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: change request %s has no approval chain", apperror.ErrChainNotFound, crID)
		}
		return nil, fmt.Errorf("%w: failed to resolve approval chain: %v", apperror.ErrStorageFailure, err)
	}

	state, err := s.loadChainState(ctx, chain.ID)
	if err != nil {
		return nil, err
	}
	decisionsByStep := make(map[uuid.UUID][]StepDecisionResponse)
	for _, d := range state.Decisions {
		decisionsByStep[d.StepID] = append(decisionsByStep[d.StepID], StepDecisionResponse{
			PrincipalID:  d.PrincipalID.String(),
			ActingUserID: d.ActingUserID.String(),
			Decision:     d.Decision,
			Reason:       d.Reason,
			DecidedAt:    d.UpdatedAt.Format(time.RFC3339),
		})
	}

	resp := &ChainStatusResponse{
		ChainID:  chain.ID.String(),
		Complete: state.Complete(),
	}
	pending := state.Pending()
	for _, ss := range state.Steps {
		stepResp := StepStatusResponse{
			StepID:    ss.Step.ID.String(),
			Order:     ss.Step.StepOrder,
			Name:      ss.Step.Name,
			Required:  ss.Required,
			Approved:  ss.Approved,
			Satisfied: ss.Satisfied,
			Pending:   pending != nil && pending.Step.ID == ss.Step.ID,
			Decisions: decisionsByStep[ss.Step.ID],
		}
		for _, row := range ss.Approvers {
			approver := StepApproverResponse{PrincipalID: row.PrincipalID.String()}
			if row.Principal != nil {
				approver.Name = row.Principal.Name
				approver.Kind = row.Principal.Kind
			}
			stepResp.Approvers = append(stepResp.Approvers, approver)
		}
		resp.Steps = append(resp.Steps, stepResp)
	}

	return resp, nil
}
