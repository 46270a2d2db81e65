package messaging

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workflow-scheme/backend/internal/logging"
	"workflow-scheme/backend/pkg/models"
)

type fakeStream struct {
	mu       sync.Mutex
	failures int
	calls    int
	added    []*redis.XAddArgs
}

func (f *fakeStream) XAdd(_ context.Context, a *redis.XAddArgs) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failures > 0 {
		f.failures--
		return redis.NewStringResult("", redis.ErrClosed)
	}
	f.added = append(f.added, a)
	return redis.NewStringResult("1700000000000-0", nil)
}

func quickRetry(n uint64) Option {
	return WithBackOff(func() backoff.BackOff { return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, n) })
}

func TestRedisNotifier_Publishes(t *testing.T) {
	stream := &fakeStream{failures: 2}
	n := NewRedisNotifier(stream, "changes", logging.NoOpLogger{}, quickRetry(3), WithMaxLen(1000))

	ctx, cancel := context.WithCancel(context.Background())
	note := &models.ChangeNotification{OrganizationID: 7, SchemeID: 3, AddedStatusIDs: []int64{4}}
	require.NoError(t, n.NotifySchemeDeployed(ctx, note))
	// A cancelled request must not abort the background publish.
	cancel()
	n.Close()

	assert.NotEmpty(t, note.EventID)
	assert.Equal(t, 3, stream.calls)
	require.Len(t, stream.added, 1)
	args := stream.added[0]
	assert.Equal(t, "changes", args.Stream)
	assert.Equal(t, int64(1000), args.MaxLen)
	assert.True(t, args.Approx)

	values := args.Values.(map[string]any)
	assert.Equal(t, note.EventID, values["event_id"])
	assert.Equal(t, "7", values["organization_id"])
	var decoded models.ChangeNotification
	require.NoError(t, json.Unmarshal([]byte(values["payload"].(string)), &decoded))
	assert.Equal(t, []int64{4}, decoded.AddedStatusIDs)
}

func TestRedisNotifier_GivesUp(t *testing.T) {
	stream := &fakeStream{failures: 10}
	n := NewRedisNotifier(stream, "changes", logging.NoOpLogger{}, quickRetry(2))

	require.NoError(t, n.NotifySchemeDeployed(context.Background(), &models.ChangeNotification{EventID: "e1"}))
	n.Close()

	assert.Equal(t, 3, stream.calls)
	assert.Empty(t, stream.added)
}

func TestRedisNotifier_Closed(t *testing.T) {
	n := NewRedisNotifier(&fakeStream{}, "changes", logging.NoOpLogger{})
	n.Close()
	assert.ErrorIs(t, n.NotifySchemeDeployed(context.Background(), &models.ChangeNotification{}), ErrClosed)
}

func TestRedisNotifier_CloseWhileNotifying(t *testing.T) {
	stream := &fakeStream{}
	n := NewRedisNotifier(stream, "changes", logging.NoOpLogger{}, quickRetry(0))

	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := n.NotifySchemeDeployed(context.Background(), &models.ChangeNotification{SchemeID: 1})
			if err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, ErrClosed)
		}()
	}
	n.Close()
	published := func() int {
		stream.mu.Lock()
		defer stream.mu.Unlock()
		return len(stream.added)
	}
	// Everything accepted before Close returned has been delivered.
	mu.Lock()
	atClose := accepted
	mu.Unlock()
	assert.GreaterOrEqual(t, published(), atClose)
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, accepted, published())
}

func TestLogNotifier(t *testing.T) {
	assert.NoError(t, LogNotifier{Logger: logging.NoOpLogger{}}.NotifySchemeDeployed(context.Background(), &models.ChangeNotification{}))
}
