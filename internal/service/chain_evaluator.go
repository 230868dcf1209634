package service

import (
	"pmo-backend/internal/model"

	"github.com/google/uuid"
)

// StepState is the derived status of one step: how many approvals it requires,
// how many it has, and whether it is satisfied.
type StepState struct {
	Step      model.ApprovalStep
	Approvers []model.StepApprover
	Required  int
	Approved  int
	Rejected  int
	Satisfied bool
}

// ChainState is the derived status of a whole chain. There is no persisted
// "current step" pointer anywhere — the pending step is recomputed from the
// decision rows on every evaluation, so it can never drift from them.
type ChainState struct {
	ChainID      uuid.UUID
	Steps        []StepState
	Decisions    []model.ApprovalDecision
	pendingIndex int
}

// Pending returns the lowest-order unsatisfied step, or nil when every step is
// satisfied.
func (cs *ChainState) Pending() *StepState {
	if cs.pendingIndex < 0 || cs.pendingIndex >= len(cs.Steps) {
		return nil
	}
	return &cs.Steps[cs.pendingIndex]
}

// Complete reports whether all steps are satisfied.
func (cs *ChainState) Complete() bool {
	return cs.pendingIndex < 0
}

// StateOf returns the derived state for a specific step id.
func (cs *ChainState) StateOf(stepID uuid.UUID) *StepState {
	for i := range cs.Steps {
		if cs.Steps[i].Step.ID == stepID {
			return &cs.Steps[i]
		}
	}
	return nil
}

// evaluateChain derives the chain state from its configuration and the stored
// decisions. A step is satisfied once its approved count reaches the number of
// its active approver rows (all must approve; there is no partial quorum). A
// step with zero active approvers is a configuration gap and counts as
// immediately satisfied.
func evaluateChain(chainID uuid.UUID, steps []model.ApprovalStep, approversByStep map[uuid.UUID][]model.StepApprover, decisions []model.ApprovalDecision) *ChainState {
	approvedByStep := make(map[uuid.UUID]int)
	rejectedByStep := make(map[uuid.UUID]int)
	for _, d := range decisions {
		switch d.Decision {
		case model.VerdictApproved:
			approvedByStep[d.StepID]++
		case model.VerdictRejected:
			rejectedByStep[d.StepID]++
		}
	}

	state := &ChainState{ChainID: chainID, Decisions: decisions, pendingIndex: -1}
	for _, step := range steps {
		approvers := approversByStep[step.ID]
		ss := StepState{
			Step:      step,
			Approvers: approvers,
			Required:  len(approvers),
			Approved:  approvedByStep[step.ID],
			Rejected:  rejectedByStep[step.ID],
		}
		ss.Satisfied = ss.Approved >= ss.Required
		if !ss.Satisfied && state.pendingIndex < 0 {
			state.pendingIndex = len(state.Steps)
		}
		state.Steps = append(state.Steps, ss)
	}
	return state
}
