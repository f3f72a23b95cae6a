// Package queue publishes usage events for downstream billing and
// analytics consumers. Publication is fire-and-forget from the request
// path's perspective; a failed publish is logged, never surfaced to the
// caller.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/scisolve/scigateway/internal/usage"
)

type Queue interface {
	Publish(ctx context.Context, record usage.Record) error
}

type SQSQueue struct {
	client   *sqs.Client
	queueURL string
}

func NewSQSQueue(ctx context.Context, region, queueURL string) (*SQSQueue, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &SQSQueue{
		client:   sqs.NewFromConfig(cfg),
		queueURL: queueURL,
	}, nil
}

func NewSQSQueueWithConfig(cfg aws.Config, queueURL string) *SQSQueue {
	return &SQSQueue{
		client:   sqs.NewFromConfig(cfg),
		queueURL: queueURL,
	}
}

func (q *SQSQueue) Publish(ctx context.Context, record usage.Record) error {
	body, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal usage record: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"RequestID": {
				DataType:    aws.String("String"),
				StringValue: aws.String(record.RequestID),
			},
			"Intent": {
				DataType:    aws.String("String"),
				StringValue: aws.String(record.Intent),
			},
		},
	}

	_, err = q.client.SendMessage(ctx, input)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}

	return nil
}

type InMemoryQueue struct {
	mu      sync.Mutex
	records []usage.Record
}

func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{
		records: make([]usage.Record, 0),
	}
}

func (q *InMemoryQueue) Publish(ctx context.Context, record usage.Record) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.records = append(q.records, record)
	return nil
}

func (q *InMemoryQueue) Records() []usage.Record {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]usage.Record, len(q.records))
	copy(out, q.records)
	return out
}
