package awsx

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// Nudge tells a queue-triggered worker that a new sync request row exists.
// The durable row in DynamoDB is the source of truth; the nudge only shortens
// the latency until the next drain pass, so losing one is harmless.
type Nudge struct {
	RequestID     string `json:"request_id"`
	SourceOrderID string `json:"source_order_id"`
	EventType     string `json:"event_type"`
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

// SendNudge publishes a wake-up message for the given sync request.
func (p *Publisher) SendNudge(ctx context.Context, n Nudge) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal nudge: %w", err)
	}

	bodyStr := string(body)
	input := &sqs.SendMessageInput{
		QueueUrl:    &p.QueueURL,
		MessageBody: &bodyStr,
		MessageAttributes: map[string]sqstypes.MessageAttributeValue{
			"source_order_id": {
				DataType:    awsString("String"),
				StringValue: &n.SourceOrderID,
			},
		},
	}

	_, err = p.SQS.SendMessage(ctx, input)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// awsString helper
func awsString(s string) *string { return &s }
