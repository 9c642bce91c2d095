package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	"golang.org/x/sync/errgroup"

	"github.com/imrishuroy/go-meal-pipeline/internal/logger"
	"github.com/imrishuroy/go-meal-pipeline/internal/meals"
	"github.com/imrishuroy/go-meal-pipeline/internal/pipeline"
)

// TriggerHandler processes one upload trigger. *pipeline.Orchestrator implements it.
type TriggerHandler interface {
	HandleTrigger(ctx context.Context, fileKey string) error
}

// Processor handles SQS trigger batches.
type Processor struct {
	handler     TriggerHandler
	concurrency int
	log         *logger.Logger
}

// NewProcessor creates a worker processor running up to concurrency records at once.
func NewProcessor(handler TriggerHandler, concurrency int, log *logger.Logger) *Processor {
	if concurrency <= 0 {
		concurrency = 1
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Processor{handler: handler, concurrency: concurrency, log: log.With("service", "Worker")}
}

// Handle processes every record of the batch and reports the ones that failed so
// only those are redelivered.
func (p *Processor) Handle(ctx context.Context, ev events.SQSEvent) (events.SQSEventResponse, error) {
	var (
		mu       sync.Mutex
		failures []events.SQSBatchItemFailure
	)

	var g errgroup.Group
	g.SetLimit(p.concurrency)
	for _, rec := range ev.Records {
		rec := rec
		g.Go(func() error {
			if err := p.processMessage(ctx, rec); err != nil {
				mu.Lock()
				failures = append(failures, events.SQSBatchItemFailure{ItemIdentifier: rec.MessageId})
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	p.log.Info("batch processed", "records", len(ev.Records), "failed", len(failures))
	return events.SQSEventResponse{BatchItemFailures: failures}, nil
}

func (p *Processor) processMessage(ctx context.Context, rec events.SQSMessage) error {
	log := p.log.With("message_id", rec.MessageId)

	var msg pipeline.TriggerMessage
	if err := json.Unmarshal([]byte(rec.Body), &msg); err != nil {
		log.Error("invalid message body", "error", err.Error())
		return fmt.Errorf("invalid message body: %w", err)
	}
	if strings.TrimSpace(msg.FileKey) == "" {
		log.Error("message without fileKey")
		return errors.New("invalid message body: missing fileKey")
	}
	log = log.With("file_key", msg.FileKey)

	err := p.handler.HandleTrigger(ctx, msg.FileKey)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, pipeline.ErrInFlight):
		log.Info("meal in flight, retry later")
	case errors.Is(err, pipeline.ErrProcessingFailed):
		log.Warn("meal marked failed", "error", err.Error())
	case errors.Is(err, meals.ErrNotFound):
		// the file key index is eventually consistent; redelivery covers the lag
		log.Warn("no meal for file key", "error", err.Error())
	default:
		log.Error("trigger handling failed", "error", err.Error())
	}
	return err
}
