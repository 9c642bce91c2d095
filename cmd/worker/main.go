package main

import (
	"context"
	"log"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/imrishuroy/go-meal-pipeline/internal/aws"
	"github.com/imrishuroy/go-meal-pipeline/internal/config"
	"github.com/imrishuroy/go-meal-pipeline/internal/extraction"
	"github.com/imrishuroy/go-meal-pipeline/internal/logger"
	"github.com/imrishuroy/go-meal-pipeline/internal/meals"
	"github.com/imrishuroy/go-meal-pipeline/internal/metrics"
	"github.com/imrishuroy/go-meal-pipeline/internal/pipeline"
	"github.com/imrishuroy/go-meal-pipeline/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.RequireWorker(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	lg, err := logger.New(cfg.LogMode)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer lg.Sync()

	clients, err := aws.NewAWSClients(context.Background())
	if err != nil {
		lg.Fatal("failed to init aws clients", "error", err.Error())
	}

	ai, err := extraction.NewClient(extraction.Config{
		APIKey:          cfg.OpenAIAPIKey,
		BaseURL:         cfg.OpenAIBaseURL,
		Model:           cfg.OpenAIModel,
		TranscribeModel: cfg.OpenAITranscribeModel,
	}, lg)
	if err != nil {
		lg.Fatal("failed to init extraction client", "error", err.Error())
	}

	orchestrator := pipeline.NewOrchestrator(
		meals.NewStore(clients.DynamoDB, cfg.MealsTable),
		storage.NewGateway(clients.S3, clients.S3Presign, cfg.MealsBucket, cfg.UploadURLExpiry),
		ai,
		metrics.NewRecorder(clients.CloudWatch, cfg.MetricsNamespace, lg),
		lg,
		pipeline.OrchestratorConfig{
			StepTimeout: cfg.StepTimeout,
			StaleAfter:  cfg.StaleProcessingAfter,
		},
	)
	processor := NewProcessor(orchestrator, cfg.WorkerConcurrency, lg)

	// If RUN_LOCAL=true, process a single simulated SQS event for local testing.
	if cfg.RunLocal {
		testBody := os.Getenv("LOCAL_SQS_BODY")
		if testBody == "" {
			testBody = `{"fileKey":"meals/local.m4a"}`
		}
		event := events.SQSEvent{
			Records: []events.SQSMessage{
				{MessageId: "local-1", Body: testBody},
			},
		}
		resp, err := processor.Handle(context.Background(), event)
		if err != nil {
			lg.Fatal("local handler error", "error", err.Error())
		}
		lg.Info("local run finished", "failed", len(resp.BatchItemFailures))
		return
	}

	lambda.Start(processor.Handle)
}
