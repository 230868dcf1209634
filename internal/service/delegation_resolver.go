package service

import (
	"context"
	"fmt"
	"time"

	"pmo-backend/internal/model"
	"pmo-backend/internal/repository"
	"pmo-backend/pkg/apperror"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// actorResolution names the principal a decision will be recorded under, and
// whether the actor is the approver themselves or a delegate covering them.
type actorResolution struct {
	Principal model.ApproverPrincipal
	Role      string // model.ActorRoleApprover or model.ActorRoleDelegate
}

// resolveActor authorizes actingUserID against the pending step's approver
// rows. Direct approvers act as themselves. Otherwise an active delegation
// whose validity window covers `at` lets the actor stand in for one of the
// step's approver users. Only USER principals participate; a failed delegation
// lookup degrades to "no delegation" so the direct path is never lost.
func resolveActor(ctx context.Context, delegations repository.DelegationRepository, orgID uuid.UUID, approvers []model.StepApprover, actingUserID uuid.UUID, at time.Time) (*actorResolution, error) {
	byUser := make(map[uuid.UUID]model.ApproverPrincipal)
	approverUserIDs := make([]uuid.UUID, 0, len(approvers))
	for _, row := range approvers {
		p := row.Principal
		if p == nil || p.Kind != model.PrincipalKindUser || !p.Active || p.UserID == nil {
			continue
		}
		if _, seen := byUser[*p.UserID]; !seen {
			byUser[*p.UserID] = *p
			approverUserIDs = append(approverUserIDs, *p.UserID)
		}
	}

	if principal, ok := byUser[actingUserID]; ok {
		return &actorResolution{Principal: principal, Role: model.ActorRoleApprover}, nil
	}

	delegation, err := delegations.FindActiveFor(ctx, orgID, approverUserIDs, actingUserID, at)
	if err != nil {
		// Authorization must not abort on a broken delegation lookup; the actor
		// simply has no delegation to lean on.
		logrus.WithError(err).Warn("delegation lookup failed, continuing without delegation")
		delegation = nil
	}
	if delegation != nil {
		if principal, ok := byUser[delegation.ApproverUserID]; ok {
			return &actorResolution{Principal: principal, Role: model.ActorRoleDelegate}, nil
		}
	}

	return nil, fmt.Errorf("%w: user %s is not an approver or delegate for this step", apperror.ErrForbidden, actingUserID)
}
