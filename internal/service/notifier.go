package service

import (
	"context"
	"encoding/json"

	"pmo-backend/internal/model"
	"pmo-backend/internal/repository"
	ws "pmo-backend/internal/websocket"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// DecisionEvent carries everything the feed needs about one decision outcome.
type DecisionEvent struct {
	OrgID           uuid.UUID
	ChangeRequestID uuid.UUID
	ChainID         uuid.UUID
	StepID          *uuid.UUID
	StepOrder       int
	StepName        string
	ActorUserID     uuid.UUID
	ActorRole       string
	Decision        string
	Note            string
	StepComplete    bool
	ChainComplete   bool
}

// Notifier emits audit/timeline entries and downstream notifications for
// decision outcomes. Implementations are fire-and-forget: they run after the
// authoritative state change and their failures never propagate back into it.
type Notifier interface {
	StepDecided(evt DecisionEvent)
	ChainApproved(evt DecisionEvent)
}

type eventNotifier struct {
	timelineRepo repository.TimelineRepository
	hub          *ws.Hub
}

// NewEventNotifier builds the default notifier writing timeline rows and
// pushing websocket messages. hub may be nil (e.g. in one-off tools).
func NewEventNotifier(timelineRepo repository.TimelineRepository, hub *ws.Hub) Notifier {
	return &eventNotifier{timelineRepo: timelineRepo, hub: hub}
}

func (n *eventNotifier) StepDecided(evt DecisionEvent) {
	go n.emit(model.EventStepDecided, evt)
}

func (n *eventNotifier) ChainApproved(evt DecisionEvent) {
	go n.emit(model.EventChainApproved, evt)
}

// emit records the timeline entry and pushes the websocket message. Runs
// detached from the request; errors are logged and swallowed.
func (n *eventNotifier) emit(event string, evt DecisionEvent) {
	details, _ := json.Marshal(map[string]interface{}{
		"decision":       evt.Decision,
		"step_order":     evt.StepOrder,
		"step_name":      evt.StepName,
		"step_complete":  evt.StepComplete,
		"chain_complete": evt.ChainComplete,
		"note":           evt.Note,
	})

	crID := evt.ChangeRequestID
	chainID := evt.ChainID
	actorID := evt.ActorUserID
	entry := &model.TimelineEvent{
		OrgID:           evt.OrgID,
		ChangeRequestID: &crID,
		ChainID:         &chainID,
		StepID:          evt.StepID,
		ActorUserID:     &actorID,
		ActorRole:       evt.ActorRole,
		Event:           event,
		Details:         string(details),
	}
	if err := n.timelineRepo.Create(context.Background(), entry); err != nil {
		logrus.WithError(err).WithField("event", event).Error("failed to record timeline event")
	}

	if n.hub == nil {
		return
	}
	payload, _ := json.Marshal(map[string]interface{}{
		"event": event,
		"data": map[string]interface{}{
			"change_request_id": evt.ChangeRequestID.String(),
			"chain_id":          evt.ChainID.String(),
			"decision":          evt.Decision,
			"actor_role":        evt.ActorRole,
			"step_order":        evt.StepOrder,
			"chain_complete":    evt.ChainComplete,
		},
	})
	select {
	case n.hub.Broadcast <- payload:
	default:
		logrus.WithField("event", event).Warn("websocket broadcast dropped: hub busy")
	}
}
