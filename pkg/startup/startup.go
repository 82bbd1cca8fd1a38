package startup

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
)

type StartupDependency interface {
	GetName() string
	DependsOn() []string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

type StartupStatus int

const (
	StartupStatusPending StartupStatus = iota
	StartupStatusStarted
	StartupStatusStopped
	StartupStatusFailed
)

// Startup starts dependencies in registration order, after whatever each one
// depends on, retrying the whole set with Fibonacci backoff
type Startup struct {
	order        []string
	started      []string
	dependencies map[string]StartupDependency
	logger       ectologger.Logger
	statuses     map[string]StartupStatus
	attempt      int
	maxAttempts  int
	backoffUnit  time.Duration
}

func NewStartup(logger ectologger.Logger, maxAttempts int) *Startup {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Startup{
		logger:       logger,
		dependencies: make(map[string]StartupDependency),
		statuses:     make(map[string]StartupStatus),
		maxAttempts:  maxAttempts,
		backoffUnit:  time.Second,
	}
}

func (s *Startup) AddDependency(dependency StartupDependency) {
	name := dependency.GetName()
	if _, exists := s.dependencies[name]; !exists {
		s.order = append(s.order, name)
	}
	s.dependencies[name] = dependency
}

func (s *Startup) Start(ctx context.Context) error {
	s.attempt = 0
	var lastErr error

	// Fibonacci backoff sequence
	a, b := 1, 1
	for s.attempt < s.maxAttempts {
		s.attempt++
		s.logger.WithField("attempt", s.attempt).Infof("Beginning startup attempt %d", s.attempt)

		success := true
		for _, name := range s.order {
			dependency := s.dependencies[name]
			if err := s.startDependency(ctx, dependency); err != nil {
				s.logger.WithError(err).Errorf("Startup dependency '%s' attempt %d failed", name, s.attempt)
				lastErr = err
				success = false
				break
			}
		}

		if success {
			return nil
		}

		if s.attempt >= s.maxAttempts {
			return fmt.Errorf("startup failed after %d attempts: %w", s.attempt, lastErr)
		}

		waitTime := time.Duration(a) * s.backoffUnit
		s.logger.Infof("Retrying in %v (attempt %d/%d)", waitTime, s.attempt, s.maxAttempts)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(waitTime):
		}

		a, b = b, a+b
	}

	return nil
}

func (s *Startup) startDependency(ctx context.Context, dependency StartupDependency) error {
	if s.statuses[dependency.GetName()] == StartupStatusStarted {
		return nil
	}

	for _, dependencyName := range dependency.DependsOn() {
		required, ok := s.dependencies[dependencyName]
		if !ok {
			return fmt.Errorf("dependency '%s' requires unknown dependency '%s'", dependency.GetName(), dependencyName)
		}
		if s.statuses[dependencyName] != StartupStatusStarted {
			if err := s.startDependency(ctx, required); err != nil {
				return err
			}
		}
	}

	s.logger.WithField("dependency", dependency.GetName()).Infof("Starting dependency '%s'", dependency.GetName())
	s.statuses[dependency.GetName()] = StartupStatusPending
	if err := dependency.Start(ctx); err != nil {
		s.statuses[dependency.GetName()] = StartupStatusFailed
		s.logger.WithError(err).WithField("dependency", dependency.GetName()).Errorf("Failed to start dependency '%s'", dependency.GetName())
		return err
	}
	s.statuses[dependency.GetName()] = StartupStatusStarted
	s.started = append(s.started, dependency.GetName())
	return nil
}

// Stop stops started dependencies in the reverse of the order they started
func (s *Startup) Stop(ctx context.Context) error {
	var firstErr error
	for i := len(s.started) - 1; i >= 0; i-- {
		name := s.started[i]
		if s.statuses[name] != StartupStatusStarted {
			continue
		}
		dependency := s.dependencies[name]
		s.logger.WithField("dependency", name).Infof("Stopping dependency '%s'", name)
		if err := dependency.Stop(ctx); err != nil {
			s.logger.WithError(err).WithField("dependency", name).Errorf("Failed to stop dependency '%s'", name)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		s.statuses[name] = StartupStatusStopped
	}
	return firstErr
}

// Status returns the current status of a dependency
func (s *Startup) Status(name string) StartupStatus {
	return s.statuses[name]
}

// Dependency adapts plain functions to a StartupDependency
type Dependency struct {
	Name     string
	Requires []string
	OnStart  func(ctx context.Context) error
	OnStop   func(ctx context.Context) error
}

func (d Dependency) GetName() string {
	return d.Name
}

func (d Dependency) DependsOn() []string {
	return d.Requires
}

func (d Dependency) Start(ctx context.Context) error {
	if d.OnStart == nil {
		return nil
	}
	return d.OnStart(ctx)
}

func (d Dependency) Stop(ctx context.Context) error {
	if d.OnStop == nil {
		return nil
	}
	return d.OnStop(ctx)
}
