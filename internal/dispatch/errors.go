package dispatch

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidConfiguration matches every ConfigurationError.
	ErrInvalidConfiguration = errors.New("invalid configuration")
	// ErrBuilder matches every BuilderError.
	ErrBuilder = errors.New("dispatcher cannot be built")
	// ErrInfrastructure matches every InfrastructureFault.
	ErrInfrastructure = errors.New("infrastructure fault")

	ErrAlreadyStarted        = errors.New("dispatcher already started")
	ErrJobNotFinished        = errors.New("job has not reached a terminal state")
	ErrJobSubmissionRejected = errors.New("dispatcher only runs its own job")
)

// ConfigurationError reports an invalid configuration value.
type ConfigurationError struct {
	Option string
	Value  string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid value %q for %s: expected %s or %s", e.Value, e.Option, ModeNormal, ModeDetached)
}

func (e *ConfigurationError) Is(target error) bool { return target == ErrInvalidConfiguration }

// BuilderError lists every required service that was not provided.
type BuilderError struct {
	Missing []string
}

func (e *BuilderError) Error() string {
	return "build dispatcher: missing " + strings.Join(e.Missing, ", ")
}

func (e *BuilderError) Is(target error) bool { return target == ErrBuilder }

// Fault sources.
const (
	FaultLeadership      = "leadership"
	FaultHeartbeat       = "heartbeat"
	FaultResourceManager = "resource_manager"
	FaultRunner          = "runner"
	FaultEndpoint        = "endpoint"
	FaultHTTP            = "http"
)

// InfrastructureFault is a failure of the cluster rather than of the job. It
// is always delivered to the fatal error handler.
type InfrastructureFault struct {
	Source string
	Err    error
}

func (e *InfrastructureFault) Error() string {
	return fmt.Sprintf("infrastructure fault (%s): %v", e.Source, e.Err)
}

func (e *InfrastructureFault) Unwrap() error { return e.Err }

func (e *InfrastructureFault) Is(target error) bool { return target == ErrInfrastructure }
