package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/imrishuroy/go-meal-pipeline/internal/aws"
	"github.com/imrishuroy/go-meal-pipeline/internal/config"
	"github.com/imrishuroy/go-meal-pipeline/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.RequireNotifier(); err != nil {
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

	n := NewNotifier(aws.NewPublisher(clients.SQS, cfg.ProcessingQueueURL), lg)
	lambda.Start(n.Handle)
}
