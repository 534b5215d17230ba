package cli

import (
	"errors"
	"testing"
)

func TestCommandErrorMessage(t *testing.T) {
	err := NewCommandError("audit list", errors.New("opening storage: file locked"))

	want := "audit list: opening storage: file locked"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestCommandErrorUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewCommandError("benchmark", cause)

	if !errors.Is(err, cause) {
		t.Error("errors.Is should reach the wrapped cause")
	}
}

func TestUsageErrorMessage(t *testing.T) {
	err := NewUsageError("since", "yesterday", "not a duration (try 1h, 24h)")

	want := `invalid --since value "yesterday": not a duration (try 1h, 24h)`
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestUsageErrorAs(t *testing.T) {
	var err error = NewUsageError("format", "xml", "use csv or json")

	var usage *UsageError
	if !errors.As(err, &usage) {
		t.Fatal("errors.As should match *UsageError")
	}
	if usage.Flag != "format" {
		t.Errorf("Flag = %q, want %q", usage.Flag, "format")
	}
}
