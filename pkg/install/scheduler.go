package install

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/apex/log"
	"github.com/binary-install/prebuild/pkg/matrix"
	"github.com/binary-install/prebuild/pkg/spec"
)

// Policy decides what happens to the queue after a failed install.
type Policy int

const (
	// AbortOnError stops at the first failure.
	AbortOnError Policy = iota
	// ContinueOnError installs every target and reports all failures.
	ContinueOnError
)

// TargetInstaller installs one target.
type TargetInstaller interface {
	Install(ctx context.Context, target spec.Target) error
}

// Failure is a target that could not be installed.
type Failure struct {
	Target spec.Target
	Err    error
}

// FailedError is returned under ContinueOnError when any install failed.
type FailedError struct {
	Failures []Failure
}

func (e *FailedError) Error() string {
	names := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		names[i] = f.Target.Essential()
	}
	return fmt.Sprintf("%d prebuild(s) failed to install: %s", len(e.Failures), strings.Join(names, ", "))
}

// Unwrap exposes every failure to errors.Is and errors.As.
func (e *FailedError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f.Err
	}
	return errs
}

// Scheduler installs the targets of a matrix one at a time, in order.
type Scheduler struct {
	Installer TargetInstaller
	Policy    Policy
	Out       io.Writer
}

// Run installs every target of m. The next install starts only after the
// previous one has completed.
func (s *Scheduler) Run(ctx context.Context, m matrix.Matrix) error {
	if m.HostImplied && len(m.Targets) == 1 {
		return s.Installer.Install(ctx, m.Targets[0])
	}

	queue := make(chan spec.Target, len(m.Targets))
	for _, t := range m.Targets {
		queue <- t
	}
	close(queue)

	return s.work(ctx, queue)
}

// work is the single consumer of the queue.
func (s *Scheduler) work(ctx context.Context, queue <-chan spec.Target) error {
	var failures []Failure
	for t := range queue {
		if err := ctx.Err(); err != nil {
			return err
		}

		fmt.Fprintln(s.out(), t.String())
		err := s.Installer.Install(ctx, t)
		if err == nil {
			continue
		}
		if s.Policy == AbortOnError {
			return err
		}
		log.WithError(err).WithField("target", t.Essential()).Error("install failed, continuing")
		failures = append(failures, Failure{Target: t, Err: err})
	}

	if len(failures) > 0 {
		return &FailedError{Failures: failures}
	}
	return nil
}

func (s *Scheduler) out() io.Writer {
	if s.Out == nil {
		return os.Stdout
	}
	return s.Out
}
