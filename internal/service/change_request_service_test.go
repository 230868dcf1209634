package service

import (
	"context"
	"testing"

	"pmo-backend/internal/model"
	"pmo-backend/pkg/apperror"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type submitHarness struct {
	crRepo    *fakeChangeRequestRepo
	chainRepo *fakeChainRepo
	timeline  *fakeTimelineRepo
	svc       ChangeRequestService
	orgID     uuid.UUID
}

func newSubmitHarness() *submitHarness {
	h := &submitHarness{
		crRepo:    &fakeChangeRequestRepo{},
		chainRepo: &fakeChainRepo{approvers: make(map[uuid.UUID][]model.StepApprover)},
		timeline:  &fakeTimelineRepo{},
		orgID:     uuid.New(),
	}
	h.svc = NewChangeRequestService(h.crRepo, h.chainRepo, h.timeline, fakeTxManager{})
	return h
}

func (h *submitHarness) principal(name string) model.ApproverPrincipal {
	userID := uuid.New()
	p := model.ApproverPrincipal{
		OrgID:  h.orgID,
		Name:   name,
		Kind:   model.PrincipalKindUser,
		UserID: &userID,
		Active: true,
	}
	_ = h.chainRepo.CreatePrincipal(context.Background(), &p)
	return p
}

func TestCreateChangeRequest(t *testing.T) {
	h := newSubmitHarness()

	res, err := h.svc.Create(context.Background(), h.orgID.String(), uuid.NewString(), CreateChangeRequestRequest{
		ProjectID:      uuid.NewString(),
		Title:          "Swap payment provider",
		BudgetImpact:   "12500.50",
		ScheduleImpact: 10,
	})

	require.NoError(t, err)
	assert.Equal(t, model.LaneIntake, res.Lane)
	assert.Equal(t, model.DecisionNone, res.DecisionStatus)
	assert.Equal(t, "12500.50", res.BudgetImpact)
	assert.Contains(t, res.Code, "CR-")

	require.Len(t, h.timeline.events, 1)
	assert.Equal(t, model.EventRequestCreated, h.timeline.events[0].Event)
}

func TestCreateChangeRequestRejectsBadBudget(t *testing.T) {
	h := newSubmitHarness()

	_, err := h.svc.Create(context.Background(), h.orgID.String(), uuid.NewString(), CreateChangeRequestRequest{
		ProjectID:    uuid.NewString(),
		Title:        "Swap payment provider",
		BudgetImpact: "twelve",
	})

	assert.Error(t, err)
	assert.Nil(t, h.crRepo.cr)
}

func TestSubmitRegistersChain(t *testing.T) {
	h := newSubmitHarness()
	pA := h.principal("head of engineering")
	pB := h.principal("finance lead")
	h.crRepo.cr = &model.ChangeRequest{
		ID:             uuid.New(),
		OrgID:          h.orgID,
		ProjectID:      uuid.New(),
		Code:           "CR-20260901-00001",
		Lane:           model.LaneAnalysis,
		DecisionStatus: model.DecisionNone,
	}

	res, err := h.svc.Submit(context.Background(), h.crRepo.cr.ID.String(), uuid.NewString(), SubmitChangeRequestRequest{
		Steps: []SubmitStepRequest{
			{Name: "Technical review", ApproverIDs: []string{pA.ID.String()}},
			{Name: "Budget sign-off", ApproverIDs: []string{pA.ID.String(), pB.ID.String()}},
		},
	})

	require.NoError(t, err)
	assert.Equal(t, model.DecisionSubmitted, res.DecisionStatus)
	assert.Equal(t, model.LaneReview, res.Lane)

	require.NotNil(t, h.chainRepo.chain)
	require.Len(t, h.chainRepo.steps, 2)
	assert.Equal(t, 1, h.chainRepo.steps[0].StepOrder)
	assert.Equal(t, 2, h.chainRepo.steps[1].StepOrder)
	assert.Len(t, h.chainRepo.approvers[h.chainRepo.steps[0].ID], 1)
	assert.Len(t, h.chainRepo.approvers[h.chainRepo.steps[1].ID], 2)

	require.Len(t, h.timeline.events, 1)
	assert.Equal(t, model.EventRequestSubmitted, h.timeline.events[0].Event)
}

func TestSubmitRejectsUnknownPrincipal(t *testing.T) {
	h := newSubmitHarness()
	h.crRepo.cr = &model.ChangeRequest{
		ID:             uuid.New(),
		OrgID:          h.orgID,
		DecisionStatus: model.DecisionNone,
	}

	_, err := h.svc.Submit(context.Background(), h.crRepo.cr.ID.String(), uuid.NewString(), SubmitChangeRequestRequest{
		Steps: []SubmitStepRequest{{ApproverIDs: []string{uuid.NewString()}}},
	})

	assert.Error(t, err)
	assert.Nil(t, h.chainRepo.chain)
	assert.Equal(t, model.DecisionNone, h.crRepo.cr.DecisionStatus)
}

func TestSubmitRejectsForeignOrgPrincipal(t *testing.T) {
	h := newSubmitHarness()
	foreign := h.principal("outsider")
	h.chainRepo.principals[0].OrgID = uuid.New()
	h.crRepo.cr = &model.ChangeRequest{
		ID:             uuid.New(),
		OrgID:          h.orgID,
		DecisionStatus: model.DecisionNone,
	}

	_, err := h.svc.Submit(context.Background(), h.crRepo.cr.ID.String(), uuid.NewString(), SubmitChangeRequestRequest{
		Steps: []SubmitStepRequest{{ApproverIDs: []string{foreign.ID.String()}}},
	})

	assert.Error(t, err)
	assert.Nil(t, h.chainRepo.chain)
}

func TestSubmitBlockedWhileUnderReview(t *testing.T) {
	h := newSubmitHarness()
	p := h.principal("head of engineering")
	h.crRepo.cr = &model.ChangeRequest{
		ID:             uuid.New(),
		OrgID:          h.orgID,
		DecisionStatus: model.DecisionSubmitted,
	}

	_, err := h.svc.Submit(context.Background(), h.crRepo.cr.ID.String(), uuid.NewString(), SubmitChangeRequestRequest{
		Steps: []SubmitStepRequest{{ApproverIDs: []string{p.ID.String()}}},
	})

	assert.ErrorIs(t, err, apperror.ErrInvalidState)
	assert.Nil(t, h.chainRepo.chain)
}

func TestSubmitAllowedAfterRejection(t *testing.T) {
	h := newSubmitHarness()
	p := h.principal("head of engineering")
	h.crRepo.cr = &model.ChangeRequest{
		ID:             uuid.New(),
		OrgID:          h.orgID,
		DecisionStatus: model.DecisionRejected,
	}

	res, err := h.svc.Submit(context.Background(), h.crRepo.cr.ID.String(), uuid.NewString(), SubmitChangeRequestRequest{
		Steps: []SubmitStepRequest{{ApproverIDs: []string{p.ID.String()}}},
	})

	require.NoError(t, err)
	assert.Equal(t, model.DecisionSubmitted, res.DecisionStatus)
}
