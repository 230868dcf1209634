package service

import (
	"context"
	"testing"
	"time"

	"pmo-backend/internal/model"
	"pmo-backend/pkg/apperror"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDelegationService() (DelegationService, *fakeDelegationRepo, *fakeChainRepo) {
	delegations := &fakeDelegationRepo{}
	chains := &fakeChainRepo{approvers: make(map[uuid.UUID][]model.StepApprover)}
	svc := NewDelegationService(delegations, chains, &fakeTimelineRepo{})
	return svc, delegations, chains
}

func TestCreateDelegation(t *testing.T) {
	svc, repo, _ := newDelegationService()
	orgID := uuid.New()
	start := time.Now().Format(time.RFC3339)
	end := time.Now().Add(48 * time.Hour).Format(time.RFC3339)

	res, err := svc.CreateDelegation(context.Background(), orgID.String(), uuid.NewString(), CreateDelegationRequest{
		ApproverUserID: uuid.NewString(),
		DelegateUserID: uuid.NewString(),
		StartsAt:       start,
		EndsAt:         end,
		Note:           "annual leave",
	})

	require.NoError(t, err)
	assert.True(t, res.Active)
	require.NotNil(t, res.StartsAt)
	require.NotNil(t, res.EndsAt)
	require.Len(t, repo.delegations, 1)
	assert.Equal(t, orgID, repo.delegations[0].OrgID)
}

func TestCreateDelegationValidation(t *testing.T) {
	svc, repo, _ := newDelegationService()
	orgID := uuid.NewString()
	self := uuid.NewString()

	_, err := svc.CreateDelegation(context.Background(), orgID, uuid.NewString(), CreateDelegationRequest{
		ApproverUserID: self,
		DelegateUserID: self,
	})
	assert.Error(t, err, "self-delegation is rejected")

	_, err = svc.CreateDelegation(context.Background(), orgID, uuid.NewString(), CreateDelegationRequest{
		ApproverUserID: uuid.NewString(),
		DelegateUserID: uuid.NewString(),
		StartsAt:       time.Now().Add(time.Hour).Format(time.RFC3339),
		EndsAt:         time.Now().Format(time.RFC3339),
	})
	assert.Error(t, err, "inverted window is rejected")

	assert.Empty(t, repo.delegations)
}

func TestRevokeDelegation(t *testing.T) {
	svc, repo, _ := newDelegationService()
	orgID := uuid.New()
	delegation := model.Delegation{
		OrgID:          orgID,
		ApproverUserID: uuid.New(),
		DelegateUserID: uuid.New(),
		Active:         true,
	}
	require.NoError(t, repo.Create(context.Background(), &delegation))

	err := svc.RevokeDelegation(context.Background(), orgID.String(), uuid.NewString(), delegation.ID.String())

	require.NoError(t, err)
	assert.False(t, repo.delegations[0].Active)
}

func TestRevokeDelegationForeignOrg(t *testing.T) {
	svc, repo, _ := newDelegationService()
	delegation := model.Delegation{
		OrgID:          uuid.New(),
		ApproverUserID: uuid.New(),
		DelegateUserID: uuid.New(),
		Active:         true,
	}
	require.NoError(t, repo.Create(context.Background(), &delegation))

	err := svc.RevokeDelegation(context.Background(), uuid.NewString(), uuid.NewString(), delegation.ID.String())

	assert.ErrorIs(t, err, apperror.ErrForbidden)
	assert.True(t, repo.delegations[0].Active)
}

func TestRevokeDelegationNotFound(t *testing.T) {
	svc, _, _ := newDelegationService()

	err := svc.RevokeDelegation(context.Background(), uuid.NewString(), uuid.NewString(), uuid.NewString())

	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestCreateApprover(t *testing.T) {
	svc, _, chains := newDelegationService()
	orgID := uuid.NewString()

	res, err := svc.CreateApprover(context.Background(), orgID, CreateApproverRequest{
		Name:   "Head of Engineering",
		UserID: uuid.NewString(),
	})
	require.NoError(t, err)
	assert.Equal(t, model.PrincipalKindUser, res.Kind, "kind defaults to USER")
	require.NotNil(t, res.UserID)
	assert.Len(t, chains.principals, 1)

	_, err = svc.CreateApprover(context.Background(), orgID, CreateApproverRequest{Name: "CTO"})
	assert.Error(t, err, "USER approvers need a user_id")

	res, err = svc.CreateApprover(context.Background(), orgID, CreateApproverRequest{
		Name: "Steering Committee",
		Kind: model.PrincipalKindGroup,
	})
	require.NoError(t, err)
	assert.Equal(t, model.PrincipalKindGroup, res.Kind)
	assert.Nil(t, res.UserID)
}
