package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorFormatting(t *testing.T) {
	plain := New(CategoryTemplate, SeverityError, "unknown template id")
	if got := plain.Error(); got != "template (error): unknown template id" {
		t.Errorf("Error() = %q", got)
	}

	wrapped := Wrap(fmt.Errorf("connection refused"), CategoryNetwork, SeverityError, "fetch repository")
	if got := wrapped.Error(); !strings.Contains(got, "connection refused") {
		t.Errorf("wrapped Error() = %q, cause missing", got)
	}
}

func TestUnwrap(t *testing.T) {
	cause := fmt.Errorf("boom")
	err := Wrap(cause, CategoryStorage, SeverityError, "put object")
	if !stderrors.Is(err, cause) {
		t.Error("errors.Is should see through the wrapper")
	}
	if New(CategoryStorage, SeverityError, "x").Unwrap() != nil {
		t.Error("unwrapping without a cause should yield nil")
	}
}

func TestRetryability(t *testing.T) {
	if IsRetryable(New(CategoryInput, SeverityError, "nope")) {
		t.Error("New must produce non-retryable errors")
	}
	if !IsRetryable(Retryable(CategoryNetwork, SeverityWarning, "timeout")) {
		t.Error("Retryable must produce retryable errors")
	}
	if !IsRetryable(WrapRetryable(fmt.Errorf("x"), CategoryGit, SeverityWarning, "clone")) {
		t.Error("WrapRetryable must produce retryable errors")
	}
	if IsRetryable(fmt.Errorf("plain")) {
		t.Error("plain errors are never retryable")
	}
}

func TestCategoryHelpers(t *testing.T) {
	err := InputError("file missing")
	if !IsCategory(err, CategoryInput) {
		t.Error("InputError should be CategoryInput")
	}
	if IsCategory(err, CategoryConfig) {
		t.Error("category mismatch should be false")
	}
	if got := GetCategory(fmt.Errorf("plain")); got != CategoryInternal {
		t.Errorf("GetCategory(plain) = %s, want internal", got)
	}
	if ConfigError("bad yaml").Severity != SeverityFatal {
		t.Error("config errors are fatal")
	}
}

func TestWithContext(t *testing.T) {
	err := New(CategoryCheckpoint, SeverityError, "load failed").
		WithContext("stage", "extraction").
		WithContext("path", "/tmp/cp.json")
	if err.Context["stage"] != "extraction" || err.Context["path"] != "/tmp/cp.json" {
		t.Errorf("context = %v", err.Context)
	}
}

func TestExitCodes(t *testing.T) {
	a := NewCLIErrorAdapter(false, nil)

	cases := []struct {
		category ErrorCategory
		want     int
	}{
		{CategoryInput, 2},
		{CategoryConfig, 7},
		{CategoryNetwork, 8},
		{CategoryGit, 8},
		{CategoryExtraction, 11},
		{CategoryTransform, 11},
		{CategoryTemplate, 11},
		{CategoryValidation, 11},
		{CategoryGeneration, 11},
		{CategoryCheckpoint, 12},
		{CategoryStorage, 12},
		{CategoryEventStore, 12},
		{CategoryRuntime, 12},
		{CategoryInternal, 10},
	}
	for _, tc := range cases {
		err := New(tc.category, SeverityError, "x")
		if got := a.ExitCodeFor(err); got != tc.want {
			t.Errorf("ExitCodeFor(%s) = %d, want %d", tc.category, got, tc.want)
		}
	}

	if got := a.ExitCodeFor(nil); got != 0 {
		t.Errorf("ExitCodeFor(nil) = %d", got)
	}
	if got := a.ExitCodeFor(fmt.Errorf("plain")); got != 1 {
		t.Errorf("ExitCodeFor(plain) = %d", got)
	}
}

func TestFormatErrorVerbosity(t *testing.T) {
	err := Wrap(fmt.Errorf("dial tcp: refused"), CategoryNetwork, SeverityError, "fetch repository")

	terse := NewCLIErrorAdapter(false, nil).FormatError(err)
	if strings.Contains(terse, "dial tcp") {
		t.Errorf("terse output leaked the cause: %q", terse)
	}
	if !strings.HasPrefix(terse, "network:") {
		t.Errorf("terse output = %q", terse)
	}

	verbose := NewCLIErrorAdapter(true, nil).FormatError(err)
	if !strings.Contains(verbose, "dial tcp") {
		t.Errorf("verbose output should include the cause: %q", verbose)
	}

	// Input and config errors read as plain user messages.
	plain := NewCLIErrorAdapter(false, nil).FormatError(InputError("input file not found: x.md"))
	if plain != "input file not found: x.md" {
		t.Errorf("input formatting = %q", plain)
	}
}
