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

func userPrincipal(orgID, userID uuid.UUID) model.ApproverPrincipal {
	return model.ApproverPrincipal{
		ID:     uuid.New(),
		OrgID:  orgID,
		Name:   "approver",
		Kind:   model.PrincipalKindUser,
		UserID: &userID,
		Active: true,
	}
}

func stepApproverRow(p model.ApproverPrincipal) model.StepApprover {
	return model.StepApprover{
		ID:          uuid.New(),
		PrincipalID: p.ID,
		Principal:   &p,
		Active:      true,
	}
}

func TestResolveActorDirectApprover(t *testing.T) {
	orgID := uuid.New()
	userA := uuid.New()
	principal := userPrincipal(orgID, userA)
	approvers := []model.StepApprover{stepApproverRow(principal)}

	res, err := resolveActor(context.Background(), &fakeDelegationRepo{}, orgID, approvers, userA, time.Now())

	require.NoError(t, err)
	assert.Equal(t, model.ActorRoleApprover, res.Role)
	assert.Equal(t, principal.ID, res.Principal.ID)
}

func TestResolveActorStrangerForbidden(t *testing.T) {
	orgID := uuid.New()
	principal := userPrincipal(orgID, uuid.New())
	approvers := []model.StepApprover{stepApproverRow(principal)}

	_, err := resolveActor(context.Background(), &fakeDelegationRepo{}, orgID, approvers, uuid.New(), time.Now())

	assert.ErrorIs(t, err, apperror.ErrForbidden)
}

func TestResolveActorDelegateWithinWindow(t *testing.T) {
	orgID := uuid.New()
	approverUser := uuid.New()
	delegateUser := uuid.New()
	principal := userPrincipal(orgID, approverUser)
	approvers := []model.StepApprover{stepApproverRow(principal)}

	now := time.Now()
	start := now.Add(-time.Hour)
	end := now.Add(time.Hour)
	delegations := &fakeDelegationRepo{delegations: []model.Delegation{{
		ID:             uuid.New(),
		OrgID:          orgID,
		ApproverUserID: approverUser,
		DelegateUserID: delegateUser,
		Active:         true,
		StartsAt:       &start,
		EndsAt:         &end,
	}}}

	res, err := resolveActor(context.Background(), delegations, orgID, approvers, delegateUser, now)

	require.NoError(t, err)
	assert.Equal(t, model.ActorRoleDelegate, res.Role)
	// The decision lands under the covered approver's principal.
	assert.Equal(t, principal.ID, res.Principal.ID)
}

func TestResolveActorDelegationWindow(t *testing.T) {
	orgID := uuid.New()
	approverUser := uuid.New()
	delegateUser := uuid.New()
	principal := userPrincipal(orgID, approverUser)
	approvers := []model.StepApprover{stepApproverRow(principal)}

	now := time.Now()
	past := now.Add(-2 * time.Hour)
	future := now.Add(2 * time.Hour)

	cases := []struct {
		name     string
		startsAt *time.Time
		endsAt   *time.Time
		active   bool
		allowed  bool
	}{
		{"open ended", nil, nil, true, true},
		{"open start", nil, &future, true, true},
		{"open end", &past, nil, true, true},
		{"not yet started", &future, nil, true, false},
		{"already ended", nil, &past, true, false},
		{"revoked", &past, &future, false, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			delegations := &fakeDelegationRepo{delegations: []model.Delegation{{
				ID:             uuid.New(),
				OrgID:          orgID,
				ApproverUserID: approverUser,
				DelegateUserID: delegateUser,
				Active:         tc.active,
				StartsAt:       tc.startsAt,
				EndsAt:         tc.endsAt,
			}}}

			res, err := resolveActor(context.Background(), delegations, orgID, approvers, delegateUser, now)
			if tc.allowed {
				require.NoError(t, err)
				assert.Equal(t, model.ActorRoleDelegate, res.Role)
			} else {
				assert.ErrorIs(t, err, apperror.ErrForbidden)
			}
		})
	}
}

func TestResolveActorIgnoresNonUserPrincipals(t *testing.T) {
	orgID := uuid.New()
	userA := uuid.New()
	group := model.ApproverPrincipal{
		ID:     uuid.New(),
		OrgID:  orgID,
		Name:   "steering committee",
		Kind:   model.PrincipalKindGroup,
		UserID: &userA,
		Active: true,
	}
	inactive := userPrincipal(orgID, userA)
	inactive.Active = false
	approvers := []model.StepApprover{stepApproverRow(group), stepApproverRow(inactive)}

	_, err := resolveActor(context.Background(), &fakeDelegationRepo{}, orgID, approvers, userA, time.Now())

	assert.ErrorIs(t, err, apperror.ErrForbidden)
}

func TestResolveActorLookupFailureDegrades(t *testing.T) {
	orgID := uuid.New()
	principal := userPrincipal(orgID, uuid.New())
	approvers := []model.StepApprover{stepApproverRow(principal)}
	delegations := &fakeDelegationRepo{lookupErr: errors.New("connection refused")}

	// A broken delegation lookup must not surface as a storage failure; the
	// actor is simply treated as having no delegation.
	_, err := resolveActor(context.Background(), delegations, orgID, approvers, uuid.New(), time.Now())

	assert.ErrorIs(t, err, apperror.ErrForbidden)
	assert.NotErrorIs(t, err, apperror.ErrStorageFailure)
}
