// Package messaging delivers scheme change notifications to downstream services.
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"workflow-scheme/backend/pkg/models"
)

// ErrClosed is returned when a notification is handed to a closed notifier.
var ErrClosed = errors.New("messaging: notifier closed")

// Logger is the subset of the application logger used here.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// StreamClient is the part of a redis client the notifier needs.
type StreamClient interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// Option configures a RedisNotifier.
type Option func(*RedisNotifier)

// WithBackOff sets the retry policy for one publish.
func WithBackOff(newBackOff func() backoff.BackOff) Option {
	return func(n *RedisNotifier) {
		if newBackOff != nil {
			n.newBackOff = newBackOff
		}
	}
}

// WithPublishTimeout bounds one publish including its retries.
func WithPublishTimeout(d time.Duration) Option {
	return func(n *RedisNotifier) {
		if d > 0 {
			n.timeout = d
		}
	}
}

// WithMaxLen caps the stream at approximately n entries.
func WithMaxLen(maxLen int64) Option {
	return func(n *RedisNotifier) {
		n.maxLen = maxLen
	}
}

// RedisNotifier appends change notifications to a redis stream in the background.
type RedisNotifier struct {
	client     StreamClient
	stream     string
	logger     Logger
	newBackOff func() backoff.BackOff
	timeout    time.Duration
	maxLen     int64

	// mu orders wg.Add in NotifySchemeDeployed against Close.
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewRedisNotifier creates a notifier publishing to stream.
func NewRedisNotifier(client StreamClient, stream string, logger Logger, opts ...Option) *RedisNotifier {
	n := &RedisNotifier{
		client: client,
		stream: stream,
		logger: logger,
		newBackOff: func() backoff.BackOff {
			bo := backoff.NewExponentialBackOff()
			bo.InitialInterval = 100 * time.Millisecond
			return backoff.WithMaxRetries(bo, 5)
		},
		timeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// NotifySchemeDeployed queues the notification and returns without waiting for delivery.
// Delivery failures are logged.
func (n *RedisNotifier) NotifySchemeDeployed(ctx context.Context, note *models.ChangeNotification) error {
	if note.EventID == "" {
		note.EventID = uuid.NewString()
	}
	payload, err := json.Marshal(note)
	if err != nil {
		return fmt.Errorf("messaging: marshal notification: %w", err)
	}
	args := &redis.XAddArgs{
		Stream: n.stream,
		MaxLen: n.maxLen,
		Approx: n.maxLen > 0,
		Values: map[string]any{
			"event_id":        note.EventID,
			"organization_id": strconv.FormatInt(note.OrganizationID, 10),
			"scheme_id":       strconv.FormatInt(note.SchemeID, 10),
			"payload":         string(payload),
		},
	}

	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return ErrClosed
	}
	n.wg.Add(1)
	n.mu.Unlock()
	go func() {
		defer n.wg.Done()
		n.publish(context.WithoutCancel(ctx), note, args)
	}()
	return nil
}

func (n *RedisNotifier) publish(ctx context.Context, note *models.ChangeNotification, args *redis.XAddArgs) {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	var id string
	err := backoff.Retry(func() error {
		var err error
		id, err = n.client.XAdd(ctx, args).Result()
		return err
	}, backoff.WithContext(n.newBackOff(), ctx))
	if err != nil {
		n.logger.Error("failed to publish scheme change notification",
			"event_id", note.EventID, "organization_id", note.OrganizationID, "scheme_id", note.SchemeID, "error", err)
		return
	}
	n.logger.Info("scheme change notification published",
		"event_id", note.EventID, "scheme_id", note.SchemeID, "stream_id", id)
}

// Close stops accepting notifications and waits for queued ones to finish.
func (n *RedisNotifier) Close() {
	n.mu.Lock()
	n.closed = true
	n.mu.Unlock()
	n.wg.Wait()
}

// NewRedisClient connects to redis and verifies the connection.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// LogNotifier only logs notifications. It is used when no redis is configured.
type LogNotifier struct {
	Logger Logger
}

func (n LogNotifier) NotifySchemeDeployed(_ context.Context, note *models.ChangeNotification) error {
	n.Logger.Info("scheme deployed",
		"organization_id", note.OrganizationID, "scheme_id", note.SchemeID,
		"added_statuses", len(note.AddedStatusIDs), "removed_statuses", len(note.RemovedStatusIDs),
		"change_items", len(note.ChangeItems))
	return nil
}
