package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"pmo-backend/internal/model"
	"pmo-backend/pkg/apperror"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// approvalHarness wires the approval service against in-memory fakes with one
// submitted change request and a chain whose steps are given as lists of
// approver user names. The same name always maps to the same user/principal.
type approvalHarness struct {
	crRepo      *fakeChangeRequestRepo
	chainRepo   *fakeChainRepo
	decisions   *fakeDecisionRepo
	delegations *fakeDelegationRepo
	notifier    *fakeNotifier
	svc         ApprovalService

	orgID uuid.UUID
	cr    *model.ChangeRequest
	chain *model.ApprovalChain
	users map[string]uuid.UUID
}

func newApprovalHarness(stepApprovers ...[]string) *approvalHarness {
	h := &approvalHarness{
		crRepo:      &fakeChangeRequestRepo{},
		chainRepo:   &fakeChainRepo{approvers: make(map[uuid.UUID][]model.StepApprover)},
		decisions:   newFakeDecisionRepo(),
		delegations: &fakeDelegationRepo{},
		notifier:    &fakeNotifier{},
		orgID:       uuid.New(),
		users:       make(map[string]uuid.UUID),
	}

	h.cr = &model.ChangeRequest{
		ID:             uuid.New(),
		OrgID:          h.orgID,
		ProjectID:      uuid.New(),
		Code:           "CR-20260901-00001",
		Title:          "Extend data retention",
		Lane:           model.LaneReview,
		DecisionStatus: model.DecisionSubmitted,
	}
	h.crRepo.cr = h.cr

	h.chain = &model.ApprovalChain{ID: uuid.New(), ChangeRequestID: h.cr.ID}
	h.chainRepo.chain = h.chain

	principals := make(map[string]model.ApproverPrincipal)
	for i, names := range stepApprovers {
		step := model.ApprovalStep{ID: uuid.New(), ChainID: h.chain.ID, StepOrder: i + 1}
		h.chainRepo.steps = append(h.chainRepo.steps, step)
		for _, name := range names {
			p, ok := principals[name]
			if !ok {
				userID := h.user(name)
				p = model.ApproverPrincipal{
					ID:     uuid.New(),
					OrgID:  h.orgID,
					Name:   name,
					Kind:   model.PrincipalKindUser,
					UserID: &userID,
					Active: true,
				}
				principals[name] = p
			}
			h.chainRepo.approvers[step.ID] = append(h.chainRepo.approvers[step.ID], model.StepApprover{
				ID:          uuid.New(),
				StepID:      step.ID,
				PrincipalID: p.ID,
				Principal:   &p,
				Active:      true,
			})
		}
	}

	h.svc = NewApprovalService(h.crRepo, h.chainRepo, h.decisions, h.delegations, h.notifier,
		[]string{"decision_by", "decision_at", "decision_note"})
	return h
}

func (h *approvalHarness) user(name string) uuid.UUID {
	if id, ok := h.users[name]; ok {
		return id
	}
	id := uuid.New()
	h.users[name] = id
	return id
}

func (h *approvalHarness) decide(t *testing.T, name, verdict string) *DecisionResult {
	t.Helper()
	res, err := h.svc.SubmitDecision(context.Background(), h.cr.ID.String(), h.user(name).String(),
		SubmitDecisionRequest{Decision: verdict})
	require.NoError(t, err)
	return res
}

func TestSubmitDecisionRequiresSubmittedState(t *testing.T) {
	for _, status := range []string{model.DecisionNone, model.DecisionApproved, model.DecisionRejected} {
		t.Run(status, func(t *testing.T) {
			h := newApprovalHarness([]string{"alice"})
			h.cr.DecisionStatus = status

			_, err := h.svc.SubmitDecision(context.Background(), h.cr.ID.String(), h.user("alice").String(),
				SubmitDecisionRequest{Decision: model.VerdictApproved})

			assert.ErrorIs(t, err, apperror.ErrInvalidState)
			assert.Zero(t, h.decisions.upserts, "gate failures must not write decisions")
		})
	}
}

func TestSubmitDecisionUnknownRequest(t *testing.T) {
	h := newApprovalHarness([]string{"alice"})

	_, err := h.svc.SubmitDecision(context.Background(), uuid.NewString(), h.user("alice").String(),
		SubmitDecisionRequest{Decision: model.VerdictApproved})

	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestSubmitDecisionChainNotFound(t *testing.T) {
	h := newApprovalHarness([]string{"alice"})
	h.chainRepo.chain = nil

	_, err := h.svc.SubmitDecision(context.Background(), h.cr.ID.String(), h.user("alice").String(),
		SubmitDecisionRequest{Decision: model.VerdictApproved})

	assert.ErrorIs(t, err, apperror.ErrChainNotFound)
	assert.Zero(t, h.decisions.upserts)
}

func TestSubmitDecisionNoStepsConfigured(t *testing.T) {
	h := newApprovalHarness([]string{"alice"})
	h.chainRepo.steps = nil

	_, err := h.svc.SubmitDecision(context.Background(), h.cr.ID.String(), h.user("alice").String(),
		SubmitDecisionRequest{Decision: model.VerdictApproved})

	assert.ErrorIs(t, err, apperror.ErrNoStepsConfigured)
	assert.Zero(t, h.decisions.upserts)
}

func TestSubmitDecisionForbiddenForStranger(t *testing.T) {
	h := newApprovalHarness([]string{"alice"})

	_, err := h.svc.SubmitDecision(context.Background(), h.cr.ID.String(), uuid.NewString(),
		SubmitDecisionRequest{Decision: model.VerdictApproved})

	assert.ErrorIs(t, err, apperror.ErrForbidden)
	assert.Zero(t, h.decisions.upserts)
}

func TestSubmitDecisionOnlyPendingStepAuthorizes(t *testing.T) {
	h := newApprovalHarness([]string{"alice"}, []string{"bob"})

	// Bob sits on step 2; while step 1 is pending he may not decide.
	_, err := h.svc.SubmitDecision(context.Background(), h.cr.ID.String(), h.user("bob").String(),
		SubmitDecisionRequest{Decision: model.VerdictApproved})

	assert.ErrorIs(t, err, apperror.ErrForbidden)
	assert.Zero(t, h.decisions.upserts)
}

func TestSubmitDecisionApprovesStep(t *testing.T) {
	h := newApprovalHarness([]string{"alice"}, []string{"bob", "carol"})

	res := h.decide(t, "alice", model.VerdictApproved)

	assert.Equal(t, 1, res.StepOrder)
	assert.True(t, res.StepComplete)
	assert.False(t, res.ChainComplete)
	assert.Equal(t, model.ActorRoleApprover, res.ActorRole)
	assert.Equal(t, model.DecisionSubmitted, h.cr.DecisionStatus, "chain incomplete, request untouched")
	require.Len(t, h.notifier.stepDecided, 1)
	assert.True(t, h.notifier.stepDecided[0].StepComplete)
	assert.Empty(t, h.notifier.chainApproved)
}

func TestSubmitDecisionPartialStepNotComplete(t *testing.T) {
	h := newApprovalHarness([]string{"bob", "carol"})

	res := h.decide(t, "bob", model.VerdictApproved)

	assert.False(t, res.StepComplete)
	assert.False(t, res.ChainComplete)
	require.Len(t, h.notifier.stepDecided, 1)
	assert.False(t, h.notifier.stepDecided[0].StepComplete)
}

func TestSubmitDecisionIdempotentResubmission(t *testing.T) {
	h := newApprovalHarness([]string{"bob", "carol"})

	h.decide(t, "bob", model.VerdictApproved)
	h.decide(t, "bob", model.VerdictApproved)
	h.decide(t, "bob", model.VerdictApproved)

	decisions, err := h.decisions.ListByChain(context.Background(), h.chain.ID)
	require.NoError(t, err)
	assert.Len(t, decisions, 1, "resubmission overwrites, never duplicates")
	assert.Equal(t, model.DecisionSubmitted, h.cr.DecisionStatus)
}

func TestSubmitDecisionRejectionRecordedAndOverwritable(t *testing.T) {
	h := newApprovalHarness([]string{"alice"}, []string{"bob"})

	res := h.decide(t, "alice", model.VerdictRejected)
	assert.False(t, res.StepComplete)
	assert.False(t, res.ChainComplete)

	decisions, _ := h.decisions.ListByChain(context.Background(), h.chain.ID)
	require.Len(t, decisions, 1)
	assert.Equal(t, model.VerdictRejected, decisions[0].Decision)
	assert.Equal(t, model.DecisionSubmitted, h.cr.DecisionStatus, "rejection does not close the request")

	// The approver reconsiders; the same row flips to APPROVED.
	res = h.decide(t, "alice", model.VerdictApproved)
	assert.True(t, res.StepComplete)
	decisions, _ = h.decisions.ListByChain(context.Background(), h.chain.ID)
	require.Len(t, decisions, 1)
	assert.Equal(t, model.VerdictApproved, decisions[0].Decision)
}

func TestSubmitDecisionFullChainApproval(t *testing.T) {
	h := newApprovalHarness([]string{"alice"}, []string{"bob", "carol"})

	h.decide(t, "alice", model.VerdictApproved)
	h.decide(t, "bob", model.VerdictApproved)
	res := h.decide(t, "carol", model.VerdictApproved)

	assert.True(t, res.ChainComplete)
	assert.Equal(t, model.DecisionApproved, h.cr.DecisionStatus)
	assert.Equal(t, model.LaneExecution, h.cr.Lane)
	assert.Equal(t, 1, h.crRepo.transitions, "terminal transition happens exactly once")
	assert.Equal(t, []string{"decision_by", "decision_at", "decision_note"}, h.crRepo.lastColumns)
	require.NotNil(t, res.ChangeRequest)
	assert.Equal(t, model.DecisionApproved, res.ChangeRequest.DecisionStatus)

	assert.Len(t, h.notifier.stepDecided, 2)
	require.Len(t, h.notifier.chainApproved, 1)
	assert.True(t, h.notifier.chainApproved[0].ChainComplete)

	// Nothing further can be decided once the request left SUBMITTED.
	_, err := h.svc.SubmitDecision(context.Background(), h.cr.ID.String(), h.user("alice").String(),
		SubmitDecisionRequest{Decision: model.VerdictApproved})
	assert.ErrorIs(t, err, apperror.ErrInvalidState)
	assert.Equal(t, 1, h.crRepo.transitions)
}

func TestSubmitDecisionDelegateActsForApprover(t *testing.T) {
	h := newApprovalHarness([]string{"alice"}, []string{"bob", "carol"})
	h.decide(t, "alice", model.VerdictApproved)

	// Dana covers bob while he is away.
	start := time.Now().Add(-time.Hour)
	end := time.Now().Add(time.Hour)
	h.delegations.delegations = []model.Delegation{{
		ID:             uuid.New(),
		OrgID:          h.orgID,
		ApproverUserID: h.user("bob"),
		DelegateUserID: h.user("dana"),
		Active:         true,
		StartsAt:       &start,
		EndsAt:         &end,
	}}

	res := h.decide(t, "dana", model.VerdictApproved)
	assert.Equal(t, model.ActorRoleDelegate, res.ActorRole)

	// The decision counts as bob's slot, authored by dana.
	decisions, _ := h.decisions.ListByChain(context.Background(), h.chain.ID)
	require.Len(t, decisions, 2)
	last := decisions[1]
	assert.Equal(t, h.user("dana"), last.ActingUserID)

	// Bob's slot is spent: dana deciding again overwrites it, carol still
	// finishes the chain herself.
	res = h.decide(t, "carol", model.VerdictApproved)
	assert.True(t, res.ChainComplete)
	assert.Equal(t, model.DecisionApproved, h.cr.DecisionStatus)
}

func TestSubmitDecisionZeroApproverStepSkipped(t *testing.T) {
	h := newApprovalHarness([]string{}, []string{"alice"})

	// Step 1 has no active approvers: pending falls through to step 2.
	res := h.decide(t, "alice", model.VerdictApproved)

	assert.Equal(t, 2, res.StepOrder)
	assert.True(t, res.ChainComplete)
	assert.Equal(t, model.DecisionApproved, h.cr.DecisionStatus)
}

func TestSubmitDecisionFinalizesAlreadyCompleteChain(t *testing.T) {
	h := newApprovalHarness([]string{"alice"})

	// The decision exists but a previous completion attempt died before the
	// terminal update. The request is still SUBMITTED.
	row := h.chainRepo.approvers[h.chainRepo.steps[0].ID][0]
	require.NoError(t, h.decisions.Upsert(context.Background(), &model.ApprovalDecision{
		ChainID:      h.chain.ID,
		StepID:       h.chainRepo.steps[0].ID,
		PrincipalID:  row.PrincipalID,
		ActingUserID: h.user("alice"),
		Decision:     model.VerdictApproved,
	}))
	h.decisions.upserts = 0

	res := h.decide(t, "alice", model.VerdictApproved)

	assert.True(t, res.ChainComplete)
	assert.Equal(t, model.DecisionApproved, h.cr.DecisionStatus)
	assert.Equal(t, 1, h.crRepo.transitions)
	assert.Zero(t, h.decisions.upserts, "re-finalization records nothing new")
	assert.Empty(t, h.notifier.chainApproved, "no fresh decision, no event")
}

func TestSubmitDecisionTerminalWriteFailure(t *testing.T) {
	h := newApprovalHarness([]string{"alice"})
	h.crRepo.markApprovedErr = errors.New("connection reset by peer")

	_, err := h.svc.SubmitDecision(context.Background(), h.cr.ID.String(), h.user("alice").String(),
		SubmitDecisionRequest{Decision: model.VerdictApproved})

	assert.ErrorIs(t, err, apperror.ErrStorageFailure)
	assert.Equal(t, model.DecisionSubmitted, h.cr.DecisionStatus, "failed finalize leaves the request open")
	assert.Empty(t, h.notifier.chainApproved, "no event for a transition that never happened")

	// The decision row survived; once storage recovers the chain finalizes.
	h.crRepo.markApprovedErr = nil
	res := h.decide(t, "alice", model.VerdictApproved)
	assert.True(t, res.ChainComplete)
	assert.Equal(t, model.DecisionApproved, h.cr.DecisionStatus)
}

func TestSubmitDecisionFinalizesWithoutOptionalColumns(t *testing.T) {
	h := newApprovalHarness([]string{"alice"})
	h.crRepo.missingOptionalColumns = true

	res := h.decide(t, "alice", model.VerdictApproved)

	assert.True(t, res.ChainComplete)
	assert.Equal(t, model.DecisionApproved, h.cr.DecisionStatus)
	assert.Equal(t, 1, h.crRepo.reducedWrites, "full write fails, reduced write carries the transition")
	assert.Nil(t, h.cr.DecisionBy, "metadata columns are skipped on the reduced write")
	assert.Empty(t, h.cr.DecisionNote)
	require.Len(t, h.notifier.chainApproved, 1)
}

func TestGetChainStatus(t *testing.T) {
	h := newApprovalHarness([]string{"alice"}, []string{"bob", "carol"})
	h.decide(t, "alice", model.VerdictApproved)
	h.decide(t, "bob", model.VerdictApproved)

	status, err := h.svc.GetChainStatus(context.Background(), h.cr.ID.String())

	require.NoError(t, err)
	assert.Equal(t, h.chain.ID.String(), status.ChainID)
	assert.False(t, status.Complete)
	require.Len(t, status.Steps, 2)

	first := status.Steps[0]
	assert.True(t, first.Satisfied)
	assert.False(t, first.Pending)
	assert.Equal(t, 1, first.Required)
	assert.Equal(t, 1, first.Approved)
	require.Len(t, first.Decisions, 1)

	second := status.Steps[1]
	assert.False(t, second.Satisfied)
	assert.True(t, second.Pending)
	assert.Equal(t, 2, second.Required)
	assert.Equal(t, 1, second.Approved)
	assert.Len(t, second.Approvers, 2)
}

func TestGetChainStatusNotFound(t *testing.T) {
	h := newApprovalHarness([]string{"alice"})

	_, err := h.svc.GetChainStatus(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	h.chainRepo.chain = nil
	_, err = h.svc.GetChainStatus(context.Background(), h.cr.ID.String())
	assert.ErrorIs(t, err, apperror.ErrChainNotFound)
}
