// Package events publishes account-integrity events for downstream consumers.
package events

import (
	"context"
	"encoding/json"

	"github.com/Gobusters/ectologger"
	"github.com/joiedevivre/jasmine/pkg/kafka"
	"github.com/joiedevivre/jasmine/pkg/models"
	"github.com/joiedevivre/jasmine/pkg/tracing"
)

const (
	EventScanCompleted         = "duplicates.scan_completed"
	EventBusinessCascadeDelete = "business.cascade_deleted"
)

type Publisher interface {
	Publish(ctx context.Context, event *kafka.Event) error
}

// Emitter is nil-safe: a nil *Emitter or one without a publisher drops events.
type Emitter struct {
	publisher Publisher
	logger    ectologger.Logger
}

func NewEmitter(publisher Publisher, logger ectologger.Logger) *Emitter {
	return &Emitter{publisher: publisher, logger: logger}
}

func (e *Emitter) EmitScanCompleted(ctx context.Context, actor models.Actor, summary models.ScanSummary) error {
	return e.emit(ctx, "events.Emitter.EmitScanCompleted", EventScanCompleted, actor.UserID, "duplicate-scan", summary)
}

func (e *Emitter) EmitBusinessCascadeDeleted(ctx context.Context, actor models.Actor, result models.CascadeResult) error {
	return e.emit(ctx, "events.Emitter.EmitBusinessCascadeDeleted", EventBusinessCascadeDelete, actor.UserID, result.BusinessID, result)
}

func (e *Emitter) emit(ctx context.Context, spanName, eventType, actorID, subjectID string, payload any) error {
	if e == nil || e.publisher == nil {
		return nil
	}

	ctx, span := tracing.StartSpan(ctx, spanName)
	defer span.End()

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	event := &kafka.Event{
		EventType: eventType,
		ActorID:   actorID,
		SubjectID: subjectID,
		Data:      data,
	}
	if err := e.publisher.Publish(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Errorf("Failed to emit %s event", eventType)
		return err
	}
	return nil
}
