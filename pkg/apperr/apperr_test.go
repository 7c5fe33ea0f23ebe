package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestCodeOf(t *testing.T) {
	wrapped := fmt.Errorf("load: %w", NotFound("registration not found"))
	if CodeOf(wrapped) != CodeNotFound {
		t.Fatalf("CodeOf = %s", CodeOf(wrapped))
	}
	if CodeOf(errors.New("boom")) != CodeUnknown {
		t.Fatal("plain errors should be unknown")
	}
	if IsCode(nil, CodeNotFound) {
		t.Fatal("nil is not coded")
	}
}

func TestIsMatchesCode(t *testing.T) {
	err := fmt.Errorf("op: %w", Conflict("already registered"))
	if !errors.Is(err, &Error{Code: CodeConflict}) {
		t.Fatal("errors.Is should match on code")
	}
	if errors.Is(err, &Error{Code: CodeNotFound}) {
		t.Fatal("different code should not match")
	}
}

func TestDependencyUnwraps(t *testing.T) {
	cause := errors.New("smtp timeout")
	err := Dependency("send email", cause)
	if !errors.Is(err, cause) {
		t.Fatal("cause should unwrap")
	}
	if err.Error() != "send email: smtp timeout" {
		t.Fatalf("message = %q", err.Error())
	}
}
