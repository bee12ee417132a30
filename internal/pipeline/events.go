package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Nitesh802/customerintel-sub008/internal/domain"
)

// Notifier receives every recorded run event, e.g. to push it to live
// subscribers.
type Notifier interface {
	Publish(runID string, event domain.Event)
}

// recordEvent persists a telemetry event and forwards it to the notifier.
// Failures are logged; telemetry never fails a run.
func (o *Orchestrator) recordEvent(ctx context.Context, runID string, eventType domain.EventType, payload interface{}) {
	if err := o.writeEvent(ctx, runID, eventType, payload); err != nil {
		o.logger.Error("failed to record event",
			zap.String("run_id", runID),
			zap.String("type", string(eventType)),
			zap.Error(err))
	}
}

func (o *Orchestrator) writeEvent(ctx context.Context, runID string, eventType domain.EventType, payload interface{}) error {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	event := &domain.Event{
		EventID: "evt_" + uuid.New().String()[:8],
		RunID:   runID,
		Ts:      time.Now().UnixMilli(),
		Type:    eventType,
		Payload: payloadBytes,
	}
	if err := o.store.CreateEvent(ctx, event); err != nil {
		return err
	}
	if o.notifier != nil {
		o.notifier.Publish(runID, *event)
	}
	return nil
}

// setState moves the run to state and announces it.
func (o *Orchestrator) setState(ctx context.Context, runID string, state domain.PipelineState) error {
	if err := o.store.UpdateRunState(ctx, runID, domain.RunStatusRunning, state); err != nil {
		return fmt.Errorf("update run state: %w", err)
	}
	o.recordEvent(ctx, runID, domain.EventTypeStateChanged, map[string]interface{}{"state": state})
	return nil
}
