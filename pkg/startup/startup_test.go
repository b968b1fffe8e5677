package startup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func TestStartup_StartsDependenciesFirst(t *testing.T) {
	started := []string{}
	record := func(name string) func(context.Context) error {
		return func(context.Context) error {
			started = append(started, name)
			return nil
		}
	}

	s := NewStartup(testLogger(), 1)
	s.AddDependency(&Dependency{Name: "http", Requires: []string{"schema", "db"}, OnStart: record("http")})
	s.AddDependency(&Dependency{Name: "schema", Requires: []string{"db"}, OnStart: record("schema")})
	s.AddDependency(&Dependency{Name: "db", OnStart: record("db")})

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, []string{"db", "schema", "http"}, started)
	assert.Equal(t, StartupStatusStarted, s.Status("http"))
}

func TestStartup_Retries(t *testing.T) {
	calls := 0
	s := NewStartup(testLogger(), 3)
	s.wait = func(int) time.Duration { return time.Millisecond }
	s.AddDependency(&Dependency{Name: "db", OnStart: func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return nil
	}})

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, 3, calls)

	t.Run("gives up after max attempts", func(t *testing.T) {
		s := NewStartup(testLogger(), 2)
		s.wait = func(int) time.Duration { return time.Millisecond }
		s.AddDependency(&Dependency{Name: "db", OnStart: func(context.Context) error { return errors.New("down") }})

		err := s.Start(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "startup failed after 2 attempts")
		assert.Equal(t, StartupStatusFailed, s.Status("db"))
	})
}

func TestStartup_StopReverseOrder(t *testing.T) {
	stopped := []string{}
	stop := func(name string) func(context.Context) error {
		return func(context.Context) error {
			stopped = append(stopped, name)
			return nil
		}
	}

	s := NewStartup(testLogger(), 1)
	s.AddDependency(&Dependency{Name: "db", OnStop: stop("db")})
	s.AddDependency(&Dependency{Name: "http", Requires: []string{"db"}, OnStop: stop("http")})
	s.AddDependency(&Dependency{Name: "never", Requires: []string{"missing"}})

	require.Error(t, s.Start(context.Background()))
	require.NoError(t, s.Stop(context.Background()))
	assert.Equal(t, []string{"http", "db"}, stopped)
}

func TestFibonacci(t *testing.T) {
	got := []time.Duration{}
	for i := 1; i <= 5; i++ {
		got = append(got, fibonacci(i))
	}
	assert.Equal(t, []time.Duration{time.Second, time.Second, 2 * time.Second, 3 * time.Second, 5 * time.Second}, got)
}
