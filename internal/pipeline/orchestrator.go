package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/imrishuroy/go-meal-pipeline/internal/logger"
	"github.com/imrishuroy/go-meal-pipeline/internal/meals"
)

const (
	defaultStepTimeout = 60 * time.Second
	defaultStaleAfter  = 5 * time.Minute
)

// OrchestratorConfig bounds a processing attempt.
type OrchestratorConfig struct {
	// StepTimeout bounds each storage or AI call.
	StepTimeout time.Duration
	// StaleAfter is how long a meal may sit in processing before a redelivery
	// is allowed to reclaim it.
	StaleAfter time.Duration
}

// Orchestrator advances meals from uploading to a terminal status.
type Orchestrator struct {
	repo        Repository
	files       FileSource
	extractor   Extractor
	metrics     Metrics
	log         *logger.Logger
	stepTimeout time.Duration
	staleAfter  time.Duration
	nowFunc     func() time.Time
}

func NewOrchestrator(repo Repository, files FileSource, extractor Extractor, metrics Metrics, log *logger.Logger, cfg OrchestratorConfig) *Orchestrator {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if log == nil {
		log = logger.Nop()
	}
	if cfg.StepTimeout <= 0 {
		cfg.StepTimeout = defaultStepTimeout
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = defaultStaleAfter
	}
	return &Orchestrator{
		repo:        repo,
		files:       files,
		extractor:   extractor,
		metrics:     metrics,
		log:         log.With("service", "Orchestrator"),
		stepTimeout: cfg.StepTimeout,
		staleAfter:  cfg.StaleAfter,
		nowFunc:     time.Now,
	}
}

// HandleTrigger processes the meal whose upload landed at fileKey.
//
// It returns nil when the meal ends in success or when the delivery is a
// duplicate (meal already terminal, or another delivery won the claim). It
// returns meals.ErrNotFound for unknown keys, ErrInFlight while a recent attempt
// is still running, a *ProcessingError after persisting the failed status, and
// repository errors as they are.
func (o *Orchestrator) HandleTrigger(ctx context.Context, fileKey string) error {
	started := o.nowFunc()

	meal, err := o.repo.GetByFileKey(ctx, fileKey)
	if err != nil {
		return err
	}
	log := o.log.With("meal_id", meal.ID, "file_key", fileKey)

	if meal.Status.IsTerminal() {
		log.Info("meal already terminal, skipping", "status", string(meal.Status))
		return nil
	}
	if meal.Status == meals.StatusProcessing {
		age := started.Sub(meal.UpdatedAt)
		if age < o.staleAfter {
			return fmt.Errorf("%w: meal %s updated %s ago", ErrInFlight, meal.ID, age.Round(time.Second))
		}
		log.Warn("reclaiming stale processing meal", "age", age.String())
	}

	claimed, err := meal.StartProcessing(o.nowFunc())
	if err != nil {
		return err
	}
	claimed, err = o.repo.Update(ctx, claimed)
	if errors.Is(err, meals.ErrVersionConflict) {
		log.Info("meal claimed by another delivery, skipping")
		return nil
	}
	if err != nil {
		return err
	}

	done, procErr := o.process(ctx, claimed)
	if procErr != nil {
		log.Warn("meal processing failed", "error", procErr.Error())
		failed, err := claimed.Fail(o.nowFunc())
		if err != nil {
			return err
		}
		if _, err := o.repo.Update(ctx, failed); err != nil {
			return err
		}
		o.metrics.MealProcessed(ctx, string(meals.StatusFailed), o.nowFunc().Sub(started))
		return &ProcessingError{MealID: meal.ID, Err: procErr}
	}

	if _, err := o.repo.Update(ctx, done); err != nil {
		return err
	}
	o.metrics.MealProcessed(ctx, string(meals.StatusSuccess), o.nowFunc().Sub(started))
	log.Info("meal processed", "foods", len(done.Foods))
	return nil
}

// process runs the extraction steps for m and returns the completed snapshot.
func (o *Orchestrator) process(ctx context.Context, m meals.Meal) (meals.Meal, error) {
	var (
		details meals.Details
		err     error
	)
	switch m.InputType {
	case meals.InputTypeAudio:
		details, err = o.fromAudio(ctx, m)
	case meals.InputTypePicture:
		details, err = o.fromPicture(ctx, m)
	default:
		err = fmt.Errorf("unknown input type %q", m.InputType)
	}
	if err != nil {
		return meals.Meal{}, err
	}
	return m.Complete(details, o.nowFunc())
}

func (o *Orchestrator) fromAudio(ctx context.Context, m meals.Meal) (meals.Details, error) {
	stepCtx, cancel := context.WithTimeout(ctx, o.stepTimeout)
	audio, err := o.files.FetchBytes(stepCtx, m.InputFileKey)
	cancel()
	if err != nil {
		return meals.Details{}, err
	}

	stepCtx, cancel = context.WithTimeout(ctx, o.stepTimeout)
	text, err := o.extractor.Transcribe(stepCtx, audio)
	cancel()
	if err != nil {
		return meals.Details{}, err
	}

	stepCtx, cancel = context.WithTimeout(ctx, o.stepTimeout)
	defer cancel()
	return o.extractor.ExtractFromText(stepCtx, text, m.CreatedAt)
}

func (o *Orchestrator) fromPicture(ctx context.Context, m meals.Meal) (meals.Details, error) {
	stepCtx, cancel := context.WithTimeout(ctx, o.stepTimeout)
	url, err := o.files.ImageURL(stepCtx, m.InputFileKey)
	cancel()
	if err != nil {
		return meals.Details{}, err
	}

	stepCtx, cancel = context.WithTimeout(ctx, o.stepTimeout)
	defer cancel()
	return o.extractor.ExtractFromImage(stepCtx, url, m.CreatedAt)
}
