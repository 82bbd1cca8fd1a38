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

func newTestStartup(maxAttempts int) *Startup {
	s := NewStartup(ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}), maxAttempts)
	s.backoffUnit = time.Millisecond
	return s
}

func TestStartup_OrderAndDependencies(t *testing.T) {
	var started, stopped []string
	dep := func(name string, requires ...string) Dependency {
		return Dependency{
			Name:     name,
			Requires: requires,
			OnStart:  func(context.Context) error { started = append(started, name); return nil },
			OnStop:   func(context.Context) error { stopped = append(stopped, name); return nil },
		}
	}

	s := newTestStartup(1)
	s.AddDependency(dep("http", "postgres"))
	s.AddDependency(dep("postgres"))
	s.AddDependency(dep("kafka"))

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, []string{"postgres", "http", "kafka"}, started)
	assert.Equal(t, StartupStatusStarted, s.Status("http"))

	require.NoError(t, s.Stop(context.Background()))
	assert.Equal(t, []string{"kafka", "http", "postgres"}, stopped)
}

func TestStartup_RetriesWithBackoff(t *testing.T) {
	calls := 0
	s := newTestStartup(3)
	s.AddDependency(Dependency{Name: "flaky", OnStart: func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("not ready")
		}
		return nil
	}})

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, 3, calls)
}

func TestStartup_GivesUp(t *testing.T) {
	s := newTestStartup(2)
	s.AddDependency(Dependency{Name: "down", OnStart: func(context.Context) error { return errors.New("refused") }})

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempts")
	assert.Equal(t, StartupStatusFailed, s.Status("down"))
}

func TestStartup_UnknownRequirement(t *testing.T) {
	s := newTestStartup(1)
	s.AddDependency(Dependency{Name: "api", Requires: []string{"cache"}})
	assert.Error(t, s.Start(context.Background()))
}
