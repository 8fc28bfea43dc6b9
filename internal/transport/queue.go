package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/inletmail/inlet/internal/models"
)

// DefaultQueueNamespace is the Redis key namespace used for enqueued jobs,
// compatible with Resque-style workers.
const DefaultQueueNamespace = "resque"

// Queue enqueues payloads as background jobs. The rule's destination is a
// "queueName/JobClass" locator. Attachments are not carried on job payloads.
type Queue struct {
	rdb       redis.Cmdable
	namespace string
	logger    *slog.Logger
}

// NewQueue creates a new Queue transport on the given Redis client. An
// empty namespace falls back to DefaultQueueNamespace.
func NewQueue(rdb redis.Cmdable, namespace string, logger *slog.Logger) *Queue {
	if namespace == "" {
		namespace = DefaultQueueNamespace
	}
	return &Queue{rdb: rdb, namespace: namespace, logger: logger}
}

// Kind returns the transport identifier.
func (t *Queue) Kind() models.TransportKind {
	return models.TransportQueue
}

// ParseQueueLocator splits a destination locator into queue name and job
// class.
func ParseQueueLocator(destination string) (queueName, jobClass string, err error) {
	queueName, jobClass, ok := strings.Cut(strings.TrimPrefix(destination, "/"), "/")
	if !ok || queueName == "" || jobClass == "" {
		return "", "", fmt.Errorf("destination %q is not a queue/job locator", destination)
	}
	return queueName, jobClass, nil
}

type jobEnvelope struct {
	Class string `json:"class"`
	Args  []any  `json:"args"`
}

// Deliver pushes one job onto the destination queue. Broker failures are
// transport errors.
func (t *Queue) Deliver(ctx context.Context, mapping *models.Mapping, fields Fields) error {
	queueName, jobClass, err := ParseQueueLocator(mapping.Destination)
	if err != nil {
		return &Error{Kind: t.Kind(), Err: err}
	}

	payload, err := json.Marshal(jobEnvelope{Class: jobClass, Args: []any{jobArgs(fields)}})
	if err != nil {
		return &Error{Kind: t.Kind(), Err: err}
	}

	if err := t.rdb.SAdd(ctx, t.namespace+":queues", queueName).Err(); err != nil {
		return &Error{Kind: t.Kind(), Err: err}
	}
	if err := t.rdb.RPush(ctx, t.namespace+":queue:"+queueName, payload).Err(); err != nil {
		return &Error{Kind: t.Kind(), Err: err}
	}

	if t.logger != nil {
		t.logger.Debug("job enqueued",
			slog.String("queue", queueName),
			slog.String("class", jobClass))
	}
	return nil
}

// jobArgs renders the payload for job workers.
func jobArgs(fields Fields) map[string]any {
	return map[string]any{
		"subject": fields.Subject,
		"to":      fields.To,
		"from":    fields.From,
		"body":    fields.Body,
		"html":    fields.HTML,
		"emails":  fields.Emails,
		"headers": fields.Headers,
	}
}
