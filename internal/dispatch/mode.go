package dispatch

// ExecutionMode decides what happens to the cluster once the job is done.
type ExecutionMode string

const (
	// ModeNormal shuts the cluster down when the job reaches a terminal state.
	ModeNormal ExecutionMode = "NORMAL"
	// ModeDetached keeps the cluster up after the job finishes.
	ModeDetached ExecutionMode = "DETACHED"
)

// ExecutionModeOption is the configuration key the mode is read from.
const ExecutionModeOption = "execution.mode"

// ParseExecutionMode resolves a configuration value. Matching is exact and
// case-sensitive; there is no default.
func ParseExecutionMode(s string) (ExecutionMode, error) {
	switch m := ExecutionMode(s); m {
	case ModeNormal, ModeDetached:
		return m, nil
	default:
		return "", &ConfigurationError{Option: ExecutionModeOption, Value: s}
	}
}

func (m ExecutionMode) valid() bool {
	return m == ModeNormal || m == ModeDetached
}
