package main

import (
	"context"
	"log"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-meal-pipeline/internal/auth"
	"github.com/imrishuroy/go-meal-pipeline/internal/aws"
	"github.com/imrishuroy/go-meal-pipeline/internal/config"
	"github.com/imrishuroy/go-meal-pipeline/internal/handlers"
	"github.com/imrishuroy/go-meal-pipeline/internal/idempotency"
	"github.com/imrishuroy/go-meal-pipeline/internal/logger"
	"github.com/imrishuroy/go-meal-pipeline/internal/meals"
	"github.com/imrishuroy/go-meal-pipeline/internal/pipeline"
	"github.com/imrishuroy/go-meal-pipeline/internal/storage"
)

func setupRouter(cfg handlers.HandlerConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	// health
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	handlers.RegisterMealsRoutes(r, cfg)

	return r
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.RequireAPI(); err != nil {
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

	creator := pipeline.NewCreator(
		meals.NewStore(clients.DynamoDB, cfg.MealsTable),
		storage.NewGateway(clients.S3, clients.S3Presign, cfg.MealsBucket, cfg.UploadURLExpiry),
		aws.NewPublisher(clients.SQS, cfg.EventsQueueURL),
		lg,
	)

	r := setupRouter(handlers.HandlerConfig{
		Meals:       creator,
		Idempotency: idempotency.NewStore(clients.DynamoDB, cfg.IdempotencyTable, cfg.UploadURLExpiry),
		Verifier:    auth.NewVerifier(cfg.JWTSecret),
		Logger:      lg,
	})

	// if environment variable RUN_LOCAL is set to "true", run local HTTP server for development.
	if cfg.RunLocal {
		addr := ":8080"
		lg.Info("running local server", "addr", addr)
		if err := r.Run(addr); err != nil {
			lg.Fatal("failed to run local server", "error", err.Error())
		}
		return
	}

	// lambda adapter
	adapter := ginadapter.New(r)

	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}
