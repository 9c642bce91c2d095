package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/aws/aws-lambda-go/events"

	"github.com/imrishuroy/go-meal-pipeline/internal/aws"
	"github.com/imrishuroy/go-meal-pipeline/internal/logger"
	"github.com/imrishuroy/go-meal-pipeline/internal/pipeline"
)

// BatchPublisher sends several messages to the processing queue. *aws.Publisher implements it.
type BatchPublisher interface {
	PublishBatch(ctx context.Context, messages []aws.Message) error
}

// Notifier turns S3 ObjectCreated notifications into processing triggers.
type Notifier struct {
	publisher BatchPublisher
	log       *logger.Logger
}

func NewNotifier(publisher BatchPublisher, log *logger.Logger) *Notifier {
	if log == nil {
		log = logger.Nop()
	}
	return &Notifier{publisher: publisher, log: log.With("service", "UploadNotifier")}
}

// Handle publishes one trigger per uploaded object. Returning an error makes
// Lambda retry the whole notification; consumers tolerate the duplicates.
func (n *Notifier) Handle(ctx context.Context, ev events.S3Event) error {
	messages := make([]aws.Message, 0, len(ev.Records))
	for _, rec := range ev.Records {
		// S3 delivers keys form-encoded ("+" for spaces)
		key, err := url.QueryUnescape(rec.S3.Object.Key)
		if err != nil {
			n.log.Warn("skipping undecodable object key", "key", rec.S3.Object.Key, "error", err.Error())
			continue
		}
		body, err := json.Marshal(pipeline.TriggerMessage{FileKey: key})
		if err != nil {
			return fmt.Errorf("marshal trigger: %w", err)
		}
		messages = append(messages, aws.Message{Body: string(body)})
		n.log.Info("upload received", "bucket", rec.S3.Bucket.Name, "file_key", key, "size", rec.S3.Object.Size)
	}
	if len(messages) == 0 {
		return nil
	}
	if err := n.publisher.PublishBatch(ctx, messages); err != nil {
		return fmt.Errorf("publish triggers: %w", err)
	}
	return nil
}
