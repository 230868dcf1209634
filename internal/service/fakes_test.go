package service

import (
	"context"
	"fmt"
	"time"

	"pmo-backend/internal/model"
	"pmo-backend/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// In-memory repository fakes. They mirror the guarded-update and upsert
// semantics of the real postgres-backed repositories closely enough to drive
// the orchestration logic.

type fakeChangeRequestRepo struct {
	cr *model.ChangeRequest

	markApprovedErr error
	// missingOptionalColumns simulates a deployment whose change_requests table
	// lacks the decision metadata columns: the full write fails, the repository
	// falls back to the required columns alone.
	missingOptionalColumns bool

	approvedCalls int
	reducedWrites int
	transitions   int
	lastColumns   []string
}

func (f *fakeChangeRequestRepo) Create(ctx context.Context, cr *model.ChangeRequest) error {
	cr.ID = uuid.New()
	f.cr = cr
	return nil
}

func (f *fakeChangeRequestRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.ChangeRequest, error) {
	if f.cr == nil || f.cr.ID != id {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *f.cr
	return &copied, nil
}

func (f *fakeChangeRequestRepo) FindByIDWithRelations(ctx context.Context, id uuid.UUID) (*model.ChangeRequest, error) {
	return f.FindByID(ctx, id)
}

func (f *fakeChangeRequestRepo) List(ctx context.Context, filter repository.ChangeRequestFilter) ([]model.ChangeRequest, int64, error) {
	if f.cr == nil {
		return nil, 0, nil
	}
	return []model.ChangeRequest{*f.cr}, 1, nil
}

func (f *fakeChangeRequestRepo) MarkSubmitted(ctx context.Context, id uuid.UUID) (bool, error) {
	if f.cr == nil || f.cr.ID != id {
		return false, nil
	}
	if f.cr.DecisionStatus != model.DecisionNone && f.cr.DecisionStatus != model.DecisionRejected {
		return false, nil
	}
	f.cr.DecisionStatus = model.DecisionSubmitted
	f.cr.Lane = model.LaneReview
	return true, nil
}

func (f *fakeChangeRequestRepo) MarkApproved(ctx context.Context, id uuid.UUID, decidedBy uuid.UUID, note string, optionalColumns []string) (bool, error) {
	f.approvedCalls++
	f.lastColumns = optionalColumns
	if f.markApprovedErr != nil {
		return false, f.markApprovedErr
	}
	if f.missingOptionalColumns && len(optionalColumns) > 0 {
		optionalColumns = nil
		f.reducedWrites++
	}
	if f.cr == nil || f.cr.ID != id || f.cr.DecisionStatus != model.DecisionSubmitted {
		return false, nil
	}
	f.cr.DecisionStatus = model.DecisionApproved
	f.cr.Lane = model.LaneExecution
	for _, col := range optionalColumns {
		switch col {
		case "decision_by":
			f.cr.DecisionBy = &decidedBy
		case "decision_at":
			now := time.Now()
			f.cr.DecisionAt = &now
		case "decision_note":
			f.cr.DecisionNote = note
		}
	}
	f.transitions++
	return true, nil
}

func (f *fakeChangeRequestRepo) NextCode(ctx context.Context) (string, error) {
	return fmt.Sprintf("CR-%s-%05d", time.Now().Format("20060102"), 1), nil
}

type fakeChainRepo struct {
	chain      *model.ApprovalChain
	steps      []model.ApprovalStep
	approvers  map[uuid.UUID][]model.StepApprover
	principals []model.ApproverPrincipal
}

func (f *fakeChainRepo) CreateChain(ctx context.Context, chain *model.ApprovalChain) error {
	chain.ID = uuid.New()
	f.chain = chain
	return nil
}

func (f *fakeChainRepo) CreateStep(ctx context.Context, step *model.ApprovalStep) error {
	step.ID = uuid.New()
	f.steps = append(f.steps, *step)
	return nil
}

func (f *fakeChainRepo) CreateStepApprover(ctx context.Context, sa *model.StepApprover) error {
	sa.ID = uuid.New()
	if f.approvers == nil {
		f.approvers = make(map[uuid.UUID][]model.StepApprover)
	}
	f.approvers[sa.StepID] = append(f.approvers[sa.StepID], *sa)
	return nil
}

func (f *fakeChainRepo) LatestChainForRequest(ctx context.Context, changeRequestID uuid.UUID) (*model.ApprovalChain, error) {
	if f.chain == nil || f.chain.ChangeRequestID != changeRequestID {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *f.chain
	return &copied, nil
}

func (f *fakeChainRepo) StepsByChain(ctx context.Context, chainID uuid.UUID) ([]model.ApprovalStep, error) {
	var steps []model.ApprovalStep
	for _, s := range f.steps {
		if s.ChainID == chainID {
			steps = append(steps, s)
		}
	}
	return steps, nil
}

func (f *fakeChainRepo) ActiveApproversBySteps(ctx context.Context, stepIDs []uuid.UUID) (map[uuid.UUID][]model.StepApprover, error) {
	byStep := make(map[uuid.UUID][]model.StepApprover)
	for _, id := range stepIDs {
		for _, row := range f.approvers[id] {
			if row.Active {
				byStep[id] = append(byStep[id], row)
			}
		}
	}
	return byStep, nil
}

func (f *fakeChainRepo) PrincipalsByIDs(ctx context.Context, ids []uuid.UUID) ([]model.ApproverPrincipal, error) {
	want := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	seen := make(map[uuid.UUID]bool)
	var principals []model.ApproverPrincipal
	for _, p := range f.principals {
		if want[p.ID] && !seen[p.ID] {
			seen[p.ID] = true
			principals = append(principals, p)
		}
	}
	for _, rows := range f.approvers {
		for _, row := range rows {
			if row.Principal != nil && want[row.Principal.ID] && !seen[row.Principal.ID] {
				seen[row.Principal.ID] = true
				principals = append(principals, *row.Principal)
			}
		}
	}
	return principals, nil
}

func (f *fakeChainRepo) ListPrincipals(ctx context.Context, orgID uuid.UUID) ([]model.ApproverPrincipal, error) {
	return f.principals, nil
}

func (f *fakeChainRepo) CreatePrincipal(ctx context.Context, p *model.ApproverPrincipal) error {
	p.ID = uuid.New()
	f.principals = append(f.principals, *p)
	return nil
}

type decisionKey struct {
	chainID     uuid.UUID
	stepID      uuid.UUID
	principalID uuid.UUID
}

type fakeDecisionRepo struct {
	byKey     map[decisionKey]*model.ApprovalDecision
	order     []decisionKey
	upserts   int
	upsertErr error
}

func newFakeDecisionRepo() *fakeDecisionRepo {
	return &fakeDecisionRepo{byKey: make(map[decisionKey]*model.ApprovalDecision)}
}

func (f *fakeDecisionRepo) Upsert(ctx context.Context, decision *model.ApprovalDecision) error {
	f.upserts++
	if f.upsertErr != nil {
		return f.upsertErr
	}
	key := decisionKey{decision.ChainID, decision.StepID, decision.PrincipalID}
	if existing, ok := f.byKey[key]; ok {
		existing.ActingUserID = decision.ActingUserID
		existing.Decision = decision.Decision
		existing.Reason = decision.Reason
		existing.UpdatedAt = time.Now()
		return nil
	}
	decision.ID = uuid.New()
	decision.CreatedAt = time.Now()
	decision.UpdatedAt = decision.CreatedAt
	f.byKey[key] = decision
	f.order = append(f.order, key)
	return nil
}

func (f *fakeDecisionRepo) ListByChain(ctx context.Context, chainID uuid.UUID) ([]model.ApprovalDecision, error) {
	var decisions []model.ApprovalDecision
	for _, key := range f.order {
		if key.chainID == chainID {
			decisions = append(decisions, *f.byKey[key])
		}
	}
	return decisions, nil
}

func (f *fakeDecisionRepo) ListByStep(ctx context.Context, stepID uuid.UUID) ([]model.ApprovalDecision, error) {
	var decisions []model.ApprovalDecision
	for _, key := range f.order {
		if key.stepID == stepID {
			decisions = append(decisions, *f.byKey[key])
		}
	}
	return decisions, nil
}

type fakeDelegationRepo struct {
	delegations []model.Delegation
	lookupErr   error
}

func (f *fakeDelegationRepo) Create(ctx context.Context, delegation *model.Delegation) error {
	delegation.ID = uuid.New()
	f.delegations = append(f.delegations, *delegation)
	return nil
}

func (f *fakeDelegationRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Delegation, error) {
	for i := range f.delegations {
		if f.delegations[i].ID == id {
			copied := f.delegations[i]
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeDelegationRepo) ListByOrg(ctx context.Context, orgID uuid.UUID, page, limit int) ([]model.Delegation, int64, error) {
	return f.delegations, int64(len(f.delegations)), nil
}

func (f *fakeDelegationRepo) Deactivate(ctx context.Context, id uuid.UUID) error {
	for i := range f.delegations {
		if f.delegations[i].ID == id {
			f.delegations[i].Active = false
		}
	}
	return nil
}

func (f *fakeDelegationRepo) FindActiveFor(ctx context.Context, orgID uuid.UUID, approverUserIDs []uuid.UUID, delegateUserID uuid.UUID, at time.Time) (*model.Delegation, error) {
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	for i := range f.delegations {
		d := f.delegations[i]
		if d.OrgID != orgID || d.DelegateUserID != delegateUserID || !d.EffectiveAt(at) {
			continue
		}
		for _, approverID := range approverUserIDs {
			if d.ApproverUserID == approverID {
				copied := d
				return &copied, nil
			}
		}
	}
	return nil, nil
}

type fakeTimelineRepo struct {
	events    []model.TimelineEvent
	createErr error
}

func (f *fakeTimelineRepo) Create(ctx context.Context, event *model.TimelineEvent) error {
	if f.createErr != nil {
		return f.createErr
	}
	event.ID = uuid.New()
	event.CreatedAt = time.Now()
	f.events = append(f.events, *event)
	return nil
}

func (f *fakeTimelineRepo) List(ctx context.Context, filter repository.TimelineFilter) ([]model.TimelineEvent, int64, error) {
	return f.events, int64(len(f.events)), nil
}

type fakeNotifier struct {
	stepDecided   []DecisionEvent
	chainApproved []DecisionEvent
}

func (f *fakeNotifier) StepDecided(evt DecisionEvent)   { f.stepDecided = append(f.stepDecided, evt) }
func (f *fakeNotifier) ChainApproved(evt DecisionEvent) { f.chainApproved = append(f.chainApproved, evt) }

type fakeTxManager struct{}

func (fakeTxManager) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	return fn(ctx)
}
