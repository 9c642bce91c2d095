package aws

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// maxBatchEntries is the SQS limit for SendMessageBatch.
const maxBatchEntries = 10

// Message is a single queue message with optional string attributes.
type Message struct {
	Body       string
	Attributes map[string]string
}

// Publisher wraps an SQS client and a queue URL.
type Publisher struct {
	SQS      SQSAPI
	QueueURL string
}

// NewPublisher returns a Publisher bound to a queue URL.
func NewPublisher(sqsClient SQSAPI, queueURL string) *Publisher {
	return &Publisher{
		SQS:      sqsClient,
		QueueURL: queueURL,
	}
}

// Publish sends one message to SQS. body should be a JSON string;
// attributes are sent as String MessageAttributes.
func (p *Publisher) Publish(ctx context.Context, body string, attributes map[string]string) error {
	input := &sqs.SendMessageInput{
		QueueUrl:          &p.QueueURL,
		MessageBody:       &body,
		MessageAttributes: toMessageAttributes(attributes),
	}

	if _, err := p.SQS.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// PublishBatch sends messages in chunks of ten. Entries rejected by SQS are
// reported together in the returned error.
func (p *Publisher) PublishBatch(ctx context.Context, messages []Message) error {
	for start := 0; start < len(messages); start += maxBatchEntries {
		end := min(start+maxBatchEntries, len(messages))

		entries := make([]sqstypes.SendMessageBatchRequestEntry, 0, end-start)
		for i, m := range messages[start:end] {
			entries = append(entries, sqstypes.SendMessageBatchRequestEntry{
				Id:                awsString("message-" + strconv.Itoa(start+i)),
				MessageBody:       awsString(m.Body),
				MessageAttributes: toMessageAttributes(m.Attributes),
			})
		}

		out, err := p.SQS.SendMessageBatch(ctx, &sqs.SendMessageBatchInput{
			QueueUrl: &p.QueueURL,
			Entries:  entries,
		})
		if err != nil {
			return fmt.Errorf("send message batch: %w", err)
		}
		if len(out.Failed) > 0 {
			failed := make([]string, 0, len(out.Failed))
			for _, f := range out.Failed {
				failed = append(failed, fmt.Sprintf("%s(%s)", deref(f.Id), deref(f.Code)))
			}
			return fmt.Errorf("send message batch: %d entries failed: %s", len(out.Failed), strings.Join(failed, ", "))
		}
	}
	return nil
}

func toMessageAttributes(attributes map[string]string) map[string]sqstypes.MessageAttributeValue {
	if len(attributes) == 0 {
		return nil
	}
	msgAttrs := make(map[string]sqstypes.MessageAttributeValue, len(attributes))
	for k, v := range attributes {
		// using string type for all attrs
		msgAttrs[k] = sqstypes.MessageAttributeValue{
			DataType:    awsString("String"),
			StringValue: awsString(v),
		}
	}
	return msgAttrs
}

// awsString helper
func awsString(s string) *string { return &s }

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
