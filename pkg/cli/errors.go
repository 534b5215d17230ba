package cli

import "fmt"

// CommandError prefixes a command failure with the command's name, so
// the top-level error line identifies which subcommand broke.
type CommandError struct {
	Command string
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: %v", e.Command, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// NewCommandError wraps err with the failing command's name.
func NewCommandError(command string, err error) *CommandError {
	return &CommandError{Command: command, Err: err}
}

// UsageError reports a flag value the command cannot act on. Commands
// return it for mistakes a corrected invocation fixes, as opposed to
// runtime failures.
type UsageError struct {
	Flag    string
	Value   string
	Message string
}

func (e *UsageError) Error() string {
	return fmt.Sprintf("invalid --%s value %q: %s", e.Flag, e.Value, e.Message)
}

// NewUsageError reports that the named flag got an unusable value.
func NewUsageError(flag, value, message string) *UsageError {
	return &UsageError{Flag: flag, Value: value, Message: message}
}
