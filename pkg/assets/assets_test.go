package assets

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingRemover struct {
	mu      sync.Mutex
	removed []string
	fail    map[string]bool
}

func (r *recordingRemover) Backend() string { return "test" }

func (r *recordingRemover) Remove(_ context.Context, entity string, id any) error {
	key := Key(entity, id)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail[key] {
		return errors.New("bucket unavailable")
	}
	r.removed = append(r.removed, key)
	return nil
}

func TestKey(t *testing.T) {
	assert.Equal(t, "user/5", Key("user", 5))
	assert.Equal(t, "user/abc", Key("user", "abc"))
}

func TestCleanup(t *testing.T) {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})

	remover := &recordingRemover{fail: map[string]bool{"user/2": true}}
	Cleanup(context.Background(), remover, "user", []any{1, 2, 3}, logger)

	assert.ElementsMatch(t, []string{"user/1", "user/3"}, remover.removed)
	assert.Len(t, remover.removed, 2, "a failed removal does not stop the others")
}

func TestCleanup_Nothing(t *testing.T) {
	assert.NotPanics(t, func() {
		Cleanup(context.Background(), nil, "user", []any{1}, ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}))
		Cleanup(context.Background(), Noop{}, "user", nil, ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}))
	})
}

func TestRedisRemover_Unreachable(t *testing.T) {
	r := NewRedisRemover(RedisConfig{Host: "127.0.0.1", Port: 1}, ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}))
	defer r.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := r.Remove(ctx, "user", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fern:assets:user/1")
	assert.Equal(t, "redis", r.Backend())
}

func TestNewGCSRemover_RequiresBucket(t *testing.T) {
	_, err := NewGCSRemover(context.Background(), GCSConfig{}, ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}))
	assert.Error(t, err)
}
