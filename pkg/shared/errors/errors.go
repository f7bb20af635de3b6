package errors

// CommandError carries an exit code alongside the error message so
// commands can map failures to process exit statuses.
type CommandError struct {
	ExitCode int
	Message  string
}

func (e *CommandError) Error() string {
	return e.Message
}

// NewCommandError wraps err with the given exit code.
func NewCommandError(err error, code int) *CommandError {
	return &CommandError{
		ExitCode: code,
		Message:  err.Error(),
	}
}
