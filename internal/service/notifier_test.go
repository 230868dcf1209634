package service

import (
	"errors"
	"testing"

	"pmo-backend/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventNotifierRecordsTimelineRow(t *testing.T) {
	repo := &fakeTimelineRepo{}
	n := &eventNotifier{timelineRepo: repo}

	stepID := uuid.New()
	n.emit(model.EventStepDecided, DecisionEvent{
		OrgID:           uuid.New(),
		ChangeRequestID: uuid.New(),
		ChainID:         uuid.New(),
		StepID:          &stepID,
		StepOrder:       2,
		StepName:        "Finance review",
		ActorUserID:     uuid.New(),
		ActorRole:       model.ActorRoleApprover,
		Decision:        model.VerdictApproved,
	})

	require.Len(t, repo.events, 1)
	entry := repo.events[0]
	assert.Equal(t, model.EventStepDecided, entry.Event)
	assert.Equal(t, model.ActorRoleApprover, entry.ActorRole)
	require.NotNil(t, entry.StepID)
	assert.Equal(t, stepID, *entry.StepID)
	assert.Contains(t, entry.Details, model.VerdictApproved)
	assert.Contains(t, entry.Details, "Finance review")
}

func TestEventNotifierSwallowsTimelineFailure(t *testing.T) {
	repo := &fakeTimelineRepo{createErr: errors.New("timeline table locked")}
	n := &eventNotifier{timelineRepo: repo}

	// Must log and return; the caller never sees the failure.
	n.emit(model.EventChainApproved, DecisionEvent{
		OrgID:           uuid.New(),
		ChangeRequestID: uuid.New(),
		ChainID:         uuid.New(),
		ActorUserID:     uuid.New(),
		ActorRole:       model.ActorRoleApprover,
		Decision:        model.VerdictApproved,
		ChainComplete:   true,
	})

	assert.Empty(t, repo.events)
}

func TestSubmitDecisionSurvivesNotifierFailure(t *testing.T) {
	h := newApprovalHarness([]string{"alice"})
	broken := NewEventNotifier(&fakeTimelineRepo{createErr: errors.New("timeline down")}, nil)
	h.svc = NewApprovalService(h.crRepo, h.chainRepo, h.decisions, h.delegations, broken,
		[]string{"decision_by", "decision_at", "decision_note"})

	res := h.decide(t, "alice", model.VerdictApproved)

	assert.True(t, res.ChainComplete)
	assert.Equal(t, model.DecisionApproved, h.cr.DecisionStatus)
	assert.Equal(t, 1, h.crRepo.transitions)
}
