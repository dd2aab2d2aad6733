package model

import (
	"errors"
	"fmt"
	"testing"
)

func TestAPIError_Error(t *testing.T) {
	err := &APIError{Code: ErrNotFound, Message: "task '42' not found"}
	want := "NOT_FOUND: task '42' not found"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestNewNotFoundError(t *testing.T) {
	err := NewNotFoundError("run", "run_abc")
	if err.Code != ErrNotFound {
		t.Errorf("Code = %q, want %q", err.Code, ErrNotFound)
	}
	if err.Message != "run 'run_abc' not found" {
		t.Errorf("Message = %q, want %q", err.Message, "run 'run_abc' not found")
	}
}

func TestInvalidTransitionError(t *testing.T) {
	err := &InvalidTransitionError{
		ID:   7,
		From: TaskStatusWaiting,
		To:   TaskStatusDelaying,
	}
	want := "invalid task status transition: waiting → delaying (task 7)"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestOutcome_IsFailure(t *testing.T) {
	if !(Outcome{Kind: OutcomeFailed}).IsFailure() {
		t.Error("failed outcome should report IsFailure")
	}
	if (Outcome{Kind: OutcomeKilled, Cause: CauseErrored}).IsFailure() {
		t.Error("killed outcome should not report IsFailure")
	}
}

func TestToAPIError(t *testing.T) {
	got := ToAPIError(fmt.Errorf("http: %w", NewLifecycleError("cancel", "cannot cancel a running thread")))
	if got.Code != ErrLifecycle {
		t.Errorf("Code = %q, want %q", got.Code, ErrLifecycle)
	}
	if got.Message != "cancel: cannot cancel a running thread" {
		t.Errorf("Message = %q", got.Message)
	}
	if ToAPIError(errors.New("disk full")).Code != ErrInternal {
		t.Error("plain error should map to INTERNAL_ERROR")
	}
	if v := NewValidationError("bad id %q", "x"); v.Code != ErrValidation || v.Message != `bad id "x"` {
		t.Errorf("NewValidationError = %+v", v)
	}
}
