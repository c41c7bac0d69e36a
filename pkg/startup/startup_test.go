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

func TestStartup_StartsInDependencyOrder(t *testing.T) {
	var started, stopped []string
	dep := func(name string, requires ...string) *Func {
		return &Func{
			Name:      name,
			Requires:  requires,
			StartFunc: func(context.Context) error { started = append(started, name); return nil },
			StopFunc:  func(context.Context) error { stopped = append(stopped, name); return nil },
		}
	}

	s := NewStartup(testLogger(), 1)
	s.AddDependency(dep("http", "engine"))
	s.AddDependency(dep("engine", "database"))
	s.AddDependency(dep("database"))

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, []string{"database", "engine", "http"}, started)
	assert.Equal(t, StartupStatusStarted, s.Status("http"))

	require.NoError(t, s.Stop(context.Background()))
	assert.Equal(t, []string{"http", "engine", "database"}, stopped)
	assert.Equal(t, StartupStatusStopped, s.Status("database"))
}

func TestStartup_RetriesWithBackoff(t *testing.T) {
	attempts := 0
	s := NewStartup(testLogger(), 3).WithBackoffUnit(time.Millisecond)
	s.AddDependency(&Func{
		Name: "flaky",
		StartFunc: func(context.Context) error {
			attempts++
			if attempts < 3 {
				return errors.New("not yet")
			}
			return nil
		},
	})

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, 3, attempts)
}

func TestStartup_GivesUp(t *testing.T) {
	s := NewStartup(testLogger(), 2).WithBackoffUnit(time.Millisecond)
	s.AddDependency(&Func{
		Name:      "down",
		StartFunc: func(context.Context) error { return errors.New("connection refused") },
	})

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempts")
	assert.Equal(t, StartupStatusFailed, s.Status("down"))
}

func TestStartup_MissingDependency(t *testing.T) {
	s := NewStartup(testLogger(), 1)
	s.AddDependency(&Func{Name: "engine", Requires: []string{"database"}})

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not registered")
}
