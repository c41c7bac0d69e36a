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

// Startup starts dependencies in dependency order, retrying the whole set
// with fibonacci backoff until maxAttempts is reached.
type Startup struct {
	dependencies map[string]StartupDependency
	order        []string
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

// WithBackoffUnit scales the fibonacci wait between attempts.
func (s *Startup) WithBackoffUnit(unit time.Duration) *Startup {
	s.backoffUnit = unit
	return s
}

func (s *Startup) AddDependency(dependency StartupDependency) {
	name := dependency.GetName()
	if _, exists := s.dependencies[name]; !exists {
		s.order = append(s.order, name)
	}
	s.dependencies[name] = dependency
}

// Status returns the status of a named dependency.
func (s *Startup) Status(name string) StartupStatus {
	return s.statuses[name]
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
			err := s.startDependency(ctx, s.dependencies[name], nil)
			if err != nil {
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
		s.logger.Infof("Retrying in %s (attempt %d/%d)", waitTime, s.attempt, s.maxAttempts)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(waitTime):
		}

		a, b = b, a+b
	}

	return lastErr
}

func (s *Startup) startDependency(ctx context.Context, dependency StartupDependency, visiting map[string]bool) error {
	name := dependency.GetName()
	if s.statuses[name] == StartupStatusStarted {
		return nil
	}
	if visiting == nil {
		visiting = map[string]bool{}
	}
	if visiting[name] {
		return fmt.Errorf("dependency cycle detected at '%s'", name)
	}
	visiting[name] = true

	for _, dependencyName := range dependency.DependsOn() {
		dep, ok := s.dependencies[dependencyName]
		if !ok {
			return fmt.Errorf("dependency '%s' required by '%s' is not registered", dependencyName, name)
		}
		if s.statuses[dependencyName] != StartupStatusStarted {
			if err := s.startDependency(ctx, dep, visiting); err != nil {
				return err
			}
		}
	}

	s.logger.WithField("dependency", name).Infof("Starting dependency '%s'", name)
	s.statuses[name] = StartupStatusPending
	if err := dependency.Start(ctx); err != nil {
		s.statuses[name] = StartupStatusFailed
		s.logger.WithError(err).WithField("dependency", name).Errorf("Failed to start dependency '%s'", name)
		return err
	}
	s.statuses[name] = StartupStatusStarted
	return nil
}

// Stop stops started dependencies in reverse registration order. Dependents
// are stopped before the dependencies they rely on.
func (s *Startup) Stop(ctx context.Context) error {
	var firstErr error
	for i := len(s.order) - 1; i >= 0; i-- {
		if err := s.stopDependency(ctx, s.dependencies[s.order[i]]); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *Startup) stopDependency(ctx context.Context, dependency StartupDependency) error {
	name := dependency.GetName()
	if s.statuses[name] != StartupStatusStarted {
		return nil
	}

	// stop anything still running that depends on this one
	for _, other := range s.order {
		if s.statuses[other] != StartupStatusStarted {
			continue
		}
		for _, dep := range s.dependencies[other].DependsOn() {
			if dep == name {
				if err := s.stopDependency(ctx, s.dependencies[other]); err != nil {
					return err
				}
			}
		}
	}

	s.logger.WithField("dependency", name).Infof("Stopping dependency '%s'", name)
	if err := dependency.Stop(ctx); err != nil {
		s.logger.WithError(err).WithField("dependency", name).Errorf("Failed to stop dependency '%s'", name)
		return err
	}

	s.logger.WithField("dependency", name).Infof("Dependency '%s' stopped", name)
	s.statuses[name] = StartupStatusStopped
	return nil
}

// Func adapts plain functions to StartupDependency.
type Func struct {
	Name      string
	Requires  []string
	StartFunc func(ctx context.Context) error
	StopFunc  func(ctx context.Context) error
}

func (f *Func) GetName() string {
	return f.Name
}

func (f *Func) DependsOn() []string {
	return f.Requires
}

func (f *Func) Start(ctx context.Context) error {
	if f.StartFunc == nil {
		return nil
	}
	return f.StartFunc(ctx)
}

func (f *Func) Stop(ctx context.Context) error {
	if f.StopFunc == nil {
		return nil
	}
	return f.StopFunc(ctx)
}
